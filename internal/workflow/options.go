package workflow

import (
	"context"
	"time"

	"diagdesk/internal/domain"
	"diagdesk/internal/models"
)

// Options carries the caller hooks of a flow. After a successful submission
// the flow waits SettleDelay so the backend's own follow-up writes can land,
// calls Refresh, waits CloseDelay, then calls OnClose.
type Options struct {
	SettleDelay time.Duration
	CloseDelay  time.Duration
	Refresh     func(ctx context.Context) error
	OnClose     func()
	Publisher   domain.EventPublisher

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the dashboard's timings: 1s settle, 500ms close.
func DefaultOptions() Options {
	return Options{
		SettleDelay: models.DefaultSettleDelayMS * time.Millisecond,
		CloseDelay:  models.DefaultCloseDelayMS * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
