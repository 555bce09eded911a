package alert

import (
	"context"

	"hostwatch/internal/model"
)

// Notifier delivers a finding outside the process. Implementations stop
// retrying once ctx is done.
type Notifier interface {
	SendAlert(ctx context.Context, finding model.Finding) error
}
