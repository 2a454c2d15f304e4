package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// ProcessByID runs the pipeline for a submitted (pending) document and stores
// its extraction. Fields are sampled around the baseline chosen at upload.
func (uc *IngestDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.registry.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status != domain.StatusPending {
		return domain.WrapError(domain.ErrInvalidTransition, "process document", fmt.Errorf("document %s is %s, not pending", documentID, doc.Status))
	}

	// Compare-and-set claim: a redelivered submission loses here.
	if err := uc.repo.TransitionStatus(ctx, documentID, domain.StatusPending, domain.StatusProcessing); err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	doc.Status = domain.StatusProcessing

	baseline := doc.ConfidenceBaseline
	if baseline <= 0 {
		baseline = uc.opts.DefaultBaseline
	}
	ext, err := uc.runExtraction(ctx, doc, baseline)
	if err != nil {
		return uc.requeue(ctx, documentID, err)
	}

	if err := uc.repo.SaveExtraction(ctx, documentID, domain.StatusProcessing, ext); err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	uc.forgetAttempts(documentID)
	doc.ApplyExtraction(ext)
	doc.Status = domain.StatusExtracted

	if err := uc.recordDecision(ctx, doc); err != nil {
		return err
	}
	slog.Info("document_extracted", "document_id", documentID, "type", doc.Type, "avg_confidence", domain.AverageConfidence(*doc))
	return nil
}

// requeue moves a document whose run failed or was abandoned back to pending
// and publishes it again. After MaxProcessAttempts runs it stays pending
// without a new submission, where a reviewer can still reject it.
func (uc *IngestDocumentUseCase) requeue(ctx context.Context, documentID string, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := uc.repo.TransitionStatus(ctx, documentID, domain.StatusProcessing, domain.StatusPending); err != nil {
		return fmt.Errorf("%w; requeue document: %v", cause, err)
	}

	attempt := uc.recordAttempt(documentID)
	if attempt >= uc.opts.MaxProcessAttempts || uc.queue == nil {
		uc.forgetAttempts(documentID)
		slog.Error("document_requeue_exhausted", "document_id", documentID, "attempts", attempt, "error", cause)
		return cause
	}
	if err := uc.queue.PublishDocumentSubmitted(ctx, documentID); err != nil {
		return fmt.Errorf("%w; republish document: %v", cause, err)
	}
	slog.Warn("document_requeued", "document_id", documentID, "attempt", attempt, "error", cause)
	return cause
}

func (uc *IngestDocumentUseCase) recordAttempt(documentID string) int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.attempts[documentID]++
	return uc.attempts[documentID]
}

func (uc *IngestDocumentUseCase) forgetAttempts(documentID string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.attempts, documentID)
}
