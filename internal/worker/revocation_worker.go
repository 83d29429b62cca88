package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/token-service/internal/events"
	"github.com/spec-kit/token-service/internal/service"
)

// StartRevocationWorker subscribes the revocation listener to queue and
// delivers events in the background until ctx ends. The returned channel
// closes once delivery has stopped.
func StartRevocationWorker(ctx context.Context, queue *events.Queue, listener *service.RevocationListener, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if queue == nil || listener == nil {
		close(done)
		return done
	}
	listener.RegisterHandlers()

	go func() {
		defer close(done)
		logger.Info("revocation worker started")
		queue.Run(ctx)
		logger.Info("revocation worker stopped")
	}()
	return done
}
