package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

func TestCatalogRepositoryUpdateConnector(t *testing.T) {
	repo := NewCatalogRepository([]domain.Connector{{ID: "1", Name: "Email"}}, nil)
	ctx := context.Background()

	updated, err := repo.UpdateConnector(ctx, "1", func(c *domain.Connector) error {
		c.Enabled = true
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Enabled {
		t.Fatalf("expected enabled connector")
	}

	failed := errors.New("boom")
	if _, err := repo.UpdateConnector(ctx, "1", func(c *domain.Connector) error {
		c.Enabled = false
		return failed
	}); !errors.Is(err, failed) {
		t.Fatalf("expected update error, got %v", err)
	}
	connectors, _ := repo.ListConnectors(ctx)
	if !connectors[0].Enabled {
		t.Fatalf("failed update must not be applied")
	}

	if _, err := repo.UpdateConnector(ctx, "404", func(*domain.Connector) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalogRepositoryAddPlaybookPrepends(t *testing.T) {
	repo := NewCatalogRepository(nil, []domain.Playbook{{ID: "old", Name: "Old"}})
	ctx := context.Background()

	if err := repo.AddPlaybook(ctx, domain.Playbook{ID: "new", Name: "New"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := repo.AddPlaybook(ctx, domain.Playbook{ID: "new"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	playbooks, _ := repo.ListPlaybooks(ctx)
	if len(playbooks) != 2 || playbooks[0].ID != "new" {
		t.Fatalf("unexpected playbooks: %+v", playbooks)
	}
}
