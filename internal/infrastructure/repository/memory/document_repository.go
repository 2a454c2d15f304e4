package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// DocumentRepository is an in-memory implementation of ports.DocumentRepository.
// docs is kept most-recent-first.
type DocumentRepository struct {
	mu   sync.RWMutex
	docs []domain.Document
}

func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(doc.ID) >= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("duplicate id=%s", doc.ID))
	}
	r.docs = append([]domain.Document{doc.Clone()}, r.docs...)
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexLocked(id)
	if i < 0 {
		return nil, notFound("get document", id)
	}
	doc := r.docs[i].Clone()
	return &doc, nil
}

func (r *DocumentRepository) List(ctx context.Context) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, doc.Clone())
	}
	return out, nil
}

func (r *DocumentRepository) TransitionStatus(ctx context.Context, id string, from, to domain.DocumentStatus) error {
	return r.update(ctx, "update document status", id, from, func(doc *domain.Document) {
		doc.Status = to
	})
}

func (r *DocumentRepository) SaveExtraction(ctx context.Context, id string, from domain.DocumentStatus, ext domain.Extraction) error {
	return r.update(ctx, "save extraction", id, from, func(doc *domain.Document) {
		doc.ApplyExtraction(ext)
		doc.Status = domain.StatusExtracted
	})
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 {
		r.docs = append(r.docs[:i], r.docs[i+1:]...)
	}
	return nil
}

func (r *DocumentRepository) update(ctx context.Context, op, id string, from domain.DocumentStatus, apply func(*domain.Document)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return notFound(op, id)
	}
	doc := &r.docs[i]
	if doc.Status != from {
		return domain.WrapError(domain.ErrInvalidTransition, op, fmt.Errorf("id=%s expected status %s, found %s", id, from, doc.Status))
	}
	apply(doc)
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *DocumentRepository) indexLocked(id string) int {
	for i := range r.docs {
		if r.docs[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound(op, id string) error {
	return domain.WrapError(domain.ErrDocumentNotFound, op, fmt.Errorf("id=%s", id))
}
