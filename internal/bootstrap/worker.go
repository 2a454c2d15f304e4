package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const documentProcessTimeout = 5 * time.Minute

// RunWorker consumes submitted documents until ctx is done. Each document
// gets its own processing deadline.
func (a *App) RunWorker(ctx context.Context) error {
	if a.Queue == nil {
		return errors.New("worker requires QUEUE_ENABLED=true")
	}

	slog.Info("worker_subscribed", "subject", a.Config.NATSSubject)
	return a.Queue.SubscribeDocumentSubmitted(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, documentProcessTimeout)
		defer cancel()

		start := time.Now()
		if a.Metrics != nil {
			a.Metrics.StartDocument()
		}
		err := a.ProcessUC.ProcessByID(processCtx, documentID)
		if a.Metrics != nil {
			a.Metrics.FinishDocument(time.Since(start), err)
		}
		if err == nil {
			slog.Info("document_processed", "document_id", documentID, "duration_ms", time.Since(start).Milliseconds())
		}
		return err
	})
}
