package storage

import (
	"sync"
	"time"

	"hostwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// DefaultCapacity is how many findings a log keeps
const DefaultCapacity = 50

// FindingLog is a bounded, newest-first list of findings. Index 0 is always the
// most recently recorded finding, regardless of timestamps.
type FindingLog struct {
	name     string
	mu       sync.RWMutex
	findings []model.Finding
	capacity int
	logger   *logrus.Logger
	subs     map[*Subscriber]bool
	subsMu   sync.RWMutex
}

// Subscriber receives findings as they are recorded
type Subscriber struct {
	Channel chan model.Finding
	Filter  Filter
	Since   time.Time
}

// Filter narrows what a subscriber receives; empty fields match everything
type Filter struct {
	Category model.Category
	Severity string
}

func (f Filter) matches(finding model.Finding) bool {
	if f.Category != "" && finding.Category != f.Category {
		return false
	}
	if f.Severity != "" && finding.Severity != f.Severity {
		return false
	}
	return true
}

func NewFindingLog(name string, capacity int, logger *logrus.Logger) *FindingLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FindingLog{
		name:     name,
		findings: make([]model.Finding, 0, capacity+1),
		capacity: capacity,
		logger:   logger,
		subs:     make(map[*Subscriber]bool),
	}
}

func (l *FindingLog) Name() string {
	return l.name
}

// Record inserts the finding at the front and drops whatever falls off the tail
func (l *FindingLog) Record(finding model.Finding) {
	l.mu.Lock()
	l.findings = append(l.findings, model.Finding{})
	copy(l.findings[1:], l.findings)
	l.findings[0] = finding
	if len(l.findings) > l.capacity {
		l.findings[len(l.findings)-1] = model.Finding{}
		l.findings = l.findings[:l.capacity]
	}
	l.mu.Unlock()

	l.logger.Debugf("[%s] recorded %s finding: %s", l.name, finding.Category, finding.Message)
	l.notifySubscribers(finding)
}

// List returns the current contents, newest first
func (l *FindingLog) List() []model.Finding {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]model.Finding, len(l.findings))
	copy(result, l.findings)
	return result
}

// Filter returns the findings of one category, newest first
func (l *FindingLog) Filter(category model.Category) []model.Finding {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]model.Finding, 0)
	for _, f := range l.findings {
		if f.Category == category {
			result = append(result, f)
		}
	}
	return result
}

func (l *FindingLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.findings)
}

// Subscribe registers a subscriber with a buffered channel of the given size
func (l *FindingLog) Subscribe(filter Filter, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscriber{
		Channel: make(chan model.Finding, buffer),
		Filter:  filter,
		Since:   time.Now(),
	}

	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	l.subs[sub] = true
	return sub
}

func (l *FindingLog) Unsubscribe(sub *Subscriber) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	if _, ok := l.subs[sub]; !ok {
		return
	}
	delete(l.subs, sub)
	close(sub.Channel)
}

func (l *FindingLog) notifySubscribers(finding model.Finding) {
	l.subsMu.RLock()
	defer l.subsMu.RUnlock()

	for sub := range l.subs {
		if !sub.Filter.matches(finding) {
			continue
		}

		select {
		case sub.Channel <- finding:
		default:
			l.logger.Warnf("[%s] subscriber channel full, dropping finding %s", l.name, finding.ID)
		}
	}
}
