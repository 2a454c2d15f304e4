package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
)

const defaultUploadSource = "manual upload"

type RegistryOptions struct {
	// PendingIncludesRejected keeps rejected documents in ListPending, as the
	// review queue always did.
	PendingIncludesRejected bool
	Now                     ports.Clock
}

// DocumentRegistry owns the ordered document collection and the audit entry
// written for every insertion.
type DocumentRegistry struct {
	repo  ports.DocumentRepository
	audit ports.AuditLog
	opts  RegistryOptions
}

func NewDocumentRegistry(repo ports.DocumentRepository, audit ports.AuditLog, opts RegistryOptions) *DocumentRegistry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &DocumentRegistry{repo: repo, audit: audit, opts: opts}
}

// Add stores doc at the front of the registry and appends exactly one audit
// event for it.
func (r *DocumentRegistry) Add(ctx context.Context, doc *domain.Document) error {
	if err := r.create(ctx, doc); err != nil {
		return err
	}
	return r.recordUpload(ctx, doc)
}

func (r *DocumentRegistry) create(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "add document", errors.New("document id is required"))
	}
	if !doc.Status.Valid() {
		return domain.WrapError(domain.ErrInvalidTransition, "add document", fmt.Errorf("unknown status %q", doc.Status))
	}
	if !doc.Type.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "add document", fmt.Errorf("unknown type %q", doc.Type))
	}
	if err := r.repo.Create(ctx, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (r *DocumentRegistry) recordUpload(ctx context.Context, doc *domain.Document) error {
	source := doc.Source
	if source == "" {
		source = defaultUploadSource
	}
	event := domain.AuditEvent{
		ID:         uuid.NewString(),
		Document:   doc.FileName,
		Action:     "Document Uploaded",
		Timestamp:  r.opts.Now().UTC(),
		Confidence: 1,
		Details:    fmt.Sprintf("Document uploaded from %s", source),
		User:       domain.ActorSystem,
	}
	if err := r.audit.RecordAudit(ctx, event); err != nil {
		return fmt.Errorf("record upload audit: %w", err)
	}
	return nil
}

// remove drops a document that was created but never announced.
func (r *DocumentRegistry) remove(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (r *DocumentRegistry) Get(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (r *DocumentRegistry) List(ctx context.Context) ([]domain.Document, error) {
	docs, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// ListPending returns every document that still needs review, most recent
// first. Approved documents never appear.
func (r *DocumentRegistry) ListPending(ctx context.Context) ([]domain.Document, error) {
	docs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		if r.isPending(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *DocumentRegistry) isPending(doc domain.Document) bool {
	switch doc.Status {
	case domain.StatusApproved:
		return false
	case domain.StatusRejected:
		return r.opts.PendingIncludesRejected
	default:
		return true
	}
}

// SetStatus applies an explicit transition. Terminal states and unknown
// statuses are rejected; re-applying the current status is a no-op.
func (r *DocumentRegistry) SetStatus(ctx context.Context, id string, status domain.DocumentStatus) (*domain.Document, error) {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(doc.Status, status); err != nil {
		return nil, err
	}
	if doc.Status == status {
		return doc, nil
	}
	if err := r.repo.TransitionStatus(ctx, id, doc.Status, status); err != nil {
		return nil, fmt.Errorf("set status=%s: %w", status, err)
	}
	doc.Status = status
	doc.UpdatedAt = r.opts.Now().UTC()
	return doc, nil
}

func (r *DocumentRegistry) Stats(ctx context.Context) (domain.ProcessingStats, error) {
	docs, err := r.List(ctx)
	if err != nil {
		return domain.ProcessingStats{}, err
	}

	var stats domain.ProcessingStats
	stats.Total = len(docs)

	var confSum float64
	var withFields, pendingWithFields, pendingHigh int
	for _, doc := range docs {
		if doc.Status == domain.StatusExtracted || doc.Status == domain.StatusApproved {
			stats.Processed++
		}
		hasFields := len(doc.Fields) > 0
		avg := domain.AverageConfidence(doc)
		if hasFields {
			withFields++
			confSum += avg
		}
		if r.isPending(doc) {
			stats.Pending++
			if hasFields {
				pendingWithFields++
				if avg >= domain.HighConfidencePct {
					pendingHigh++
				}
			}
		}
	}

	if withFields > 0 {
		stats.AverageConfidence = confSum / float64(withFields)
	}
	if stats.Total > 0 {
		stats.ProcessingRate = float64(stats.Processed) / float64(stats.Total) * 100
	}
	if pendingWithFields > 0 {
		stats.HighConfidencePercent = float64(pendingHigh) / float64(pendingWithFields) * 100
	}
	return stats, nil
}
