package model

import (
	"errors"
	"testing"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		metric    Metric
		op        Operator
		threshold float64
	}{
		{"greater", "incoming > 1000", false, MetricIncoming, OpGreater, 1000},
		{"less equal", "outgoing <= 12.5", false, MetricOutgoing, OpLessEqual, 12.5},
		{"equal", "incoming = 0", false, MetricIncoming, OpEqual, 0},
		{"extra spaces", "  outgoing   >=   3 ", false, MetricOutgoing, OpGreaterEqual, 3},
		{"upper case metric", "INCOMING < 5", false, MetricIncoming, OpLess, 5},
		{"unknown metric", "latency > 5", true, "", "", 0},
		{"unknown operator", "incoming != 5", true, "", "", 0},
		{"bad threshold", "incoming > lots", true, "", "", 0},
		{"missing threshold", "incoming >", true, "", "", 0},
		{"empty", "", true, "", "", 0},
		{"no spaces", "incoming>5", true, "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := ParseCondition(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedCondition) {
					t.Fatalf("expected ErrMalformedCondition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cond.Metric != tt.metric || cond.Operator != tt.op || cond.Threshold != tt.threshold {
				t.Errorf("got %+v, want %s %s %v", cond, tt.metric, tt.op, tt.threshold)
			}
		})
	}
}

func TestConditionMatches(t *testing.T) {
	tests := []struct {
		condition string
		value     float64
		want      bool
	}{
		{"incoming > 1000", 1200, true},
		{"incoming > 1000", 1000, false},
		{"incoming >= 1000", 1000, true},
		{"incoming < 10", 9.99, true},
		{"incoming <= 10", 10.01, false},
		{"outgoing = 42", 42, true},
		{"outgoing = 42", 42.01, false},
	}

	for _, tt := range tests {
		cond, err := ParseCondition(tt.condition)
		if err != nil {
			t.Fatalf("ParseCondition(%q): %v", tt.condition, err)
		}
		if got := cond.Matches(tt.value); got != tt.want {
			t.Errorf("%q.Matches(%v) = %v, want %v", tt.condition, tt.value, got, tt.want)
		}
	}
}

func TestConditionStringKeepsThresholdAsWritten(t *testing.T) {
	cond, err := ParseCondition("incoming   >   1000.50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cond.String(); got != "incoming > 1000.50" {
		t.Errorf("String() = %q, want %q", got, "incoming > 1000.50")
	}

	built := Condition{Metric: MetricOutgoing, Operator: OpLess, Threshold: 7}
	if got := built.String(); got != "outgoing < 7" {
		t.Errorf("String() = %q, want %q", got, "outgoing < 7")
	}
}

func TestNewFindingSeverity(t *testing.T) {
	if f := NewFinding(CategoryAnomaly, "m", "x"); f.Severity != SeverityHigh {
		t.Errorf("anomaly severity = %s, want %s", f.Severity, SeverityHigh)
	}
	f := NewFinding(CategoryViolation, "m", "x")
	if f.Severity != SeverityMedium {
		t.Errorf("violation severity = %s, want %s", f.Severity, SeverityMedium)
	}
	if f.ID == "" || f.Timestamp.IsZero() {
		t.Errorf("finding not stamped: %+v", f)
	}
}
