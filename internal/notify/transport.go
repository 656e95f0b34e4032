package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Transport delivers one text message to the external alert channel.
type Transport interface {
	Send(ctx context.Context, text string) error
}

// RateLimitError is returned by a Transport when the remote side throttles
// us. It is the only retriable delivery error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// LogTransport writes alerts to the log. It is used when no external
// transport is configured.
type LogTransport struct {
	Log zerolog.Logger
}

func (t LogTransport) Send(_ context.Context, text string) error {
	t.Log.Info().Str("transport", "log").Msg(text)
	return nil
}
