package alert

import (
	"context"

	"hostwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// LogAlertNotifier sends findings to local logs
type LogAlertNotifier struct {
	logger *logrus.Logger
}

func NewLogAlertNotifier(logger *logrus.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{
		logger: logger,
	}
}

func (ln *LogAlertNotifier) SendAlert(ctx context.Context, finding model.Finding) error {
	ln.logger.WithFields(logrus.Fields{
		"id":       finding.ID,
		"category": finding.Category,
	}).Warnf("ALERT [%s] %s: %s", finding.Severity, finding.Category, finding.Message)
	return nil
}
