package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"hostwatch/internal/model"

	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidRule          = errors.New("name and condition are required")
	ErrInvalidRuleCondition = errors.New("invalid rule condition")
	ErrInvalidRuleIndex     = errors.New("invalid rule index")
)

const (
	incomingMitigation = "Reduce incoming traffic by blocking suspicious IPs or limiting bandwidth."
	outgoingMitigation = "Check for unauthorized uploads or malware causing high outgoing traffic."
)

// Engine owns the ordered list of user threshold rules
type Engine struct {
	rules  []model.Rule
	logger *logrus.Logger
	mu     sync.RWMutex
}

func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{
		rules:  make([]model.Rule, 0),
		logger: logger,
	}
}

// AddRule validates and appends a rule. Conditions are parsed here, once, so
// evaluation never sees a malformed rule.
func (e *Engine) AddRule(name, condition string) (model.Rule, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(condition) == "" {
		return model.Rule{}, ErrInvalidRule
	}

	cond, err := model.ParseCondition(condition)
	if err != nil {
		return model.Rule{}, fmt.Errorf("%w: %v", ErrInvalidRuleCondition, err)
	}

	rule := model.Rule{Name: name, Condition: cond}

	e.mu.Lock()
	e.rules = append(e.rules, rule)
	count := len(e.rules)
	e.mu.Unlock()

	e.logger.Infof("Registered rule: %s (%s), %d rules configured", rule.Name, rule.Condition, count)
	return rule, nil
}

// LoadRules adds every configured rule, stopping at the first invalid one
func (e *Engine) LoadRules(configs []model.RuleConfig) error {
	for i, rc := range configs {
		if _, err := e.AddRule(rc.Name, rc.Condition); err != nil {
			return fmt.Errorf("rule %d (%q): %w", i, rc.Name, err)
		}
	}
	return nil
}

// DeleteRule removes the rule at index
func (e *Engine) DeleteRule(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.rules) {
		return fmt.Errorf("%w: %d (have %d rules)", ErrInvalidRuleIndex, index, len(e.rules))
	}

	removed := e.rules[index]
	e.rules = append(e.rules[:index:index], e.rules[index+1:]...)
	e.logger.Infof("Deleted rule %d: %s", index, removed.Name)
	return nil
}

// Rules returns the rules in insertion order
func (e *Engine) Rules() []model.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]model.Rule, len(e.rules))
	copy(result, e.rules)
	return result
}

// Evaluate checks every rule against the aggregate traffic of the device table.
// It works on a copy of the rule list, so concurrent AddRule/DeleteRule calls
// affect the next pass, never the one in progress.
func (e *Engine) Evaluate(devices []model.Device) []model.Finding {
	rules := e.Rules()

	incoming, outgoing := AggregateKbps(devices)

	var findings []model.Finding
	for _, rule := range rules {
		current := incoming
		mitigation := incomingMitigation
		if rule.Condition.Metric == model.MetricOutgoing {
			current = outgoing
			mitigation = outgoingMitigation
		}

		if !rule.Condition.Matches(current) {
			continue
		}

		message := fmt.Sprintf("%s violated: %s (Current: %.2f Kbps)", rule.Name, rule.Condition, current)
		findings = append(findings, model.NewFinding(model.CategoryViolation, message, mitigation))
		e.logger.Warnf("Threshold Rule Alert: %s", message)
	}

	return findings
}

// AggregateKbps sums the imputed device byte rates and converts them to Kbps
func AggregateKbps(devices []model.Device) (incoming, outgoing float64) {
	for _, d := range devices {
		incoming += model.BytesToKbps(d.BytesIn)
		outgoing += model.BytesToKbps(d.BytesOut)
	}
	return incoming, outgoing
}
