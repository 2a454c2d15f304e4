package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// CatalogRepository holds connectors in seed order and playbooks
// newest-first.
type CatalogRepository struct {
	mu         sync.RWMutex
	connectors []domain.Connector
	playbooks  []domain.Playbook
}

func NewCatalogRepository(connectors []domain.Connector, playbooks []domain.Playbook) *CatalogRepository {
	return &CatalogRepository{
		connectors: append([]domain.Connector(nil), connectors...),
		playbooks:  append([]domain.Playbook(nil), playbooks...),
	}
}

func (r *CatalogRepository) ListConnectors(ctx context.Context) ([]domain.Connector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Connector{}, r.connectors...), nil
}

func (r *CatalogRepository) UpdateConnector(ctx context.Context, id string, update func(*domain.Connector) error) (*domain.Connector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.connectors {
		if r.connectors[i].ID != id {
			continue
		}
		next := r.connectors[i]
		if err := update(&next); err != nil {
			return nil, err
		}
		r.connectors[i] = next
		return &next, nil
	}
	return nil, domain.WrapError(domain.ErrNotFound, "update connector", fmt.Errorf("id=%s", id))
}

func (r *CatalogRepository) ListPlaybooks(ctx context.Context) ([]domain.Playbook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Playbook{}, r.playbooks...), nil
}

func (r *CatalogRepository) AddPlaybook(ctx context.Context, pb domain.Playbook) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.playbooks {
		if existing.ID == pb.ID {
			return domain.WrapError(domain.ErrInvalidInput, "add playbook", fmt.Errorf("duplicate id=%s", pb.ID))
		}
	}
	r.playbooks = append([]domain.Playbook{pb}, r.playbooks...)
	return nil
}
