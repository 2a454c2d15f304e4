package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
)

// CatalogUseCase manages connector toggles and playbooks. Toggling is a
// bookkeeping change only.
type CatalogUseCase struct {
	store ports.CatalogStore
	now   ports.Clock
}

func NewCatalogUseCase(store ports.CatalogStore, now ports.Clock) *CatalogUseCase {
	if now == nil {
		now = time.Now
	}
	return &CatalogUseCase{store: store, now: now}
}

func (uc *CatalogUseCase) ListConnectors(ctx context.Context) ([]domain.Connector, error) {
	return uc.store.ListConnectors(ctx)
}

// ToggleConnector flips enabled; enabling stamps LastSync, disabling clears it.
func (uc *CatalogUseCase) ToggleConnector(ctx context.Context, id string) (*domain.Connector, error) {
	return uc.store.UpdateConnector(ctx, id, func(c *domain.Connector) error {
		c.Enabled = !c.Enabled
		if c.Enabled {
			now := uc.now().UTC()
			c.LastSync = &now
		} else {
			c.LastSync = nil
		}
		return nil
	})
}

func (uc *CatalogUseCase) ListPlaybooks(ctx context.Context) ([]domain.Playbook, error) {
	return uc.store.ListPlaybooks(ctx)
}

func (uc *CatalogUseCase) AddPlaybook(ctx context.Context, pb domain.Playbook) (*domain.Playbook, error) {
	pb.Name = strings.TrimSpace(pb.Name)
	pb.Rule = strings.TrimSpace(pb.Rule)
	if pb.Name == "" || pb.Rule == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "add playbook", errors.New("name and rule are required"))
	}
	if pb.ID == "" {
		pb.ID = uuid.NewString()
	}
	pb.Runs = 0
	pb.LastRun = nil
	if err := uc.store.AddPlaybook(ctx, pb); err != nil {
		return nil, fmt.Errorf("add playbook: %w", err)
	}
	return &pb, nil
}
