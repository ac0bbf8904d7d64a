package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/events"
)

// Subscriber attaches its event handlers to a dispatcher.
type Subscriber interface {
	Register(d events.Dispatcher)
}

// StartSubscribers registers every non-nil subscriber on d. Handlers run inline
// with Publish, so there is nothing to stop on shutdown.
func StartSubscribers(d events.Dispatcher, logger *zap.Logger, subscribers ...Subscriber) int {
	started := 0
	for _, s := range subscribers {
		if s == nil {
			continue
		}
		s.Register(d)
		started++
	}
	logger.Info("event subscribers registered", zap.Int("count", started))
	return started
}
