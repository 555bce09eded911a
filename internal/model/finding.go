package model

import (
	"time"

	"github.com/google/uuid"
)

// Category says which detector produced a finding
type Category string

const (
	CategoryViolation Category = "violation"
	CategoryAnomaly   Category = "anomaly"
	CategoryAttack    Category = "attack"
)

// Severity levels, same vocabulary as the alert notifiers use
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// Finding is an alert or attack record. Findings are never modified after
// NewFinding returns.
type Finding struct {
	ID         string    `json:"id"`
	Category   Category  `json:"category"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	Mitigation string    `json:"mitigation"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewFinding stamps a finding with a fresh ID and the current time
func NewFinding(category Category, message, mitigation string) Finding {
	return Finding{
		ID:         uuid.NewString(),
		Category:   category,
		Severity:   severityFor(category),
		Message:    message,
		Mitigation: mitigation,
		Timestamp:  time.Now(),
	}
}

func severityFor(category Category) string {
	if category == CategoryAnomaly {
		return SeverityHigh
	}
	return SeverityMedium
}
