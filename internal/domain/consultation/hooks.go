package consultation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/upstac/upstac/internal/platform/middleware"
)

// Hooks observe lifecycle calls made by the Handler. Either field may be nil.
type Hooks struct {
	Before func(ctx context.Context, op string)
	After  func(ctx context.Context, op string, err error, elapsed time.Duration)
}

func (h Hooks) before(ctx context.Context, op string) {
	if h.Before != nil {
		h.Before(ctx, op)
	}
}

func (h Hooks) after(ctx context.Context, op string, err error, elapsed time.Duration) {
	if h.After != nil {
		h.After(ctx, op, err, elapsed)
	}
}

// LogHooks logs the start and end of every operation.
func LogHooks(logger zerolog.Logger) Hooks {
	return Hooks{
		Before: func(ctx context.Context, op string) {
			logger.Debug().
				Str("request_id", middleware.RequestIDFromContext(ctx)).
				Str("op", op).
				Msg("consultation operation started")
		},
		After: func(ctx context.Context, op string, err error, elapsed time.Duration) {
			evt := logger.Info()
			if err != nil {
				evt = logger.Warn().Err(err)
			}
			evt.
				Str("request_id", middleware.RequestIDFromContext(ctx)).
				Str("op", op).
				Dur("elapsed", elapsed).
				Msg("consultation operation finished")
		},
	}
}
