package notifier

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier delivers a plain text message to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// LogNotifier writes messages to the log. Used when Telegram is not configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.log.Info().Msg(text)
	return nil
}
