package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Metric is the aggregate traffic figure a rule condition looks at
type Metric string

const (
	MetricIncoming Metric = "incoming"
	MetricOutgoing Metric = "outgoing"
)

// Operator compares a metric value against a threshold
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpEqual        Operator = "="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// ErrMalformedCondition is returned by ParseCondition for anything that is not
// "<metric> <operator> <threshold>".
var ErrMalformedCondition = errors.New("malformed condition")

// Condition is a parsed rule condition, e.g. "incoming > 1000" (Kbps)
type Condition struct {
	Metric    Metric   `yaml:"metric" json:"metric"`
	Operator  Operator `yaml:"operator" json:"operator"`
	Threshold float64  `yaml:"threshold" json:"threshold"`
	// raw keeps the threshold as the user typed it so messages echo it back
	raw string
}

// Rule is a user-defined threshold rule
type Rule struct {
	Name      string    `yaml:"name" json:"name"`
	Condition Condition `yaml:"-" json:"-"`
}

// RuleConfig is the on-disk / on-wire form of a rule
type RuleConfig struct {
	Name      string `yaml:"name" json:"name"`
	Condition string `yaml:"condition" json:"condition"`
}

// ParseCondition parses "<metric> <operator> <threshold>".
func ParseCondition(s string) (Condition, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Condition{}, fmt.Errorf("%w: expected \"<metric> <operator> <threshold>\", got %q", ErrMalformedCondition, s)
	}

	metric := Metric(strings.ToLower(fields[0]))
	switch metric {
	case MetricIncoming, MetricOutgoing:
	default:
		return Condition{}, fmt.Errorf("%w: unknown metric %q", ErrMalformedCondition, fields[0])
	}

	op := Operator(fields[1])
	switch op {
	case OpGreater, OpLess, OpEqual, OpGreaterEqual, OpLessEqual:
	default:
		return Condition{}, fmt.Errorf("%w: unknown operator %q", ErrMalformedCondition, fields[1])
	}

	threshold, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("%w: invalid threshold %q", ErrMalformedCondition, fields[2])
	}

	return Condition{Metric: metric, Operator: op, Threshold: threshold, raw: fields[2]}, nil
}

// Matches reports whether value satisfies the condition
func (c Condition) Matches(value float64) bool {
	switch c.Operator {
	case OpGreater:
		return value > c.Threshold
	case OpLess:
		return value < c.Threshold
	case OpEqual:
		return value == c.Threshold
	case OpGreaterEqual:
		return value >= c.Threshold
	case OpLessEqual:
		return value <= c.Threshold
	default:
		return false
	}
}

// ThresholdString returns the threshold in the form it was written
func (c Condition) ThresholdString() string {
	if c.raw != "" {
		return c.raw
	}
	return strconv.FormatFloat(c.Threshold, 'f', -1, 64)
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Metric, c.Operator, c.ThresholdString())
}

// Config returns the serializable form of the rule
func (r Rule) Config() RuleConfig {
	return RuleConfig{Name: r.Name, Condition: r.Condition.String()}
}
