package report

import (
	"context"
	"errors"

	"github.com/saifguard/saifguard/internal/model"
)

// ErrPublishingDisabled is returned by the noop sink. Callers treat it as a
// configuration state, not a failure.
var ErrPublishingDisabled = errors.New("report: publishing is disabled")

// Sink pushes a reconciled discrepancy set to an external system. Publish
// returns an opaque message ID on success.
type Sink interface {
	Publish(ctx context.Context, sessionID string, set *model.DiscrepancySet) (string, error)
}

// NoopSink is the default sink when no publish target is configured.
type NoopSink struct{}

func (NoopSink) Publish(context.Context, string, *model.DiscrepancySet) (string, error) {
	return "", ErrPublishingDisabled
}
