package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// DocumentRepository persists and reads document state. List returns
// documents most-recent-first.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	// TransitionStatus moves id from `from` to `to` only if its stored status
	// is still `from`; otherwise it fails with ErrInvalidTransition.
	TransitionStatus(ctx context.Context, id string, from, to domain.DocumentStatus) error
	// SaveExtraction stores ext and moves the document from `from` to extracted
	// under the same compare-and-set rule.
	SaveExtraction(ctx context.Context, id string, from domain.DocumentStatus, ext domain.Extraction) error
	// Delete drops a document whose submission never completed. A missing id
	// is not an error.
	Delete(ctx context.Context, id string) error
}

// AuditLog is the append-only audit/decision/compliance recorder. List
// methods return newest-first; limit <= 0 means no limit.
type AuditLog interface {
	RecordAudit(ctx context.Context, event domain.AuditEvent) error
	RecordDecision(ctx context.Context, decision domain.AIDecision) error
	RecordCompliance(ctx context.Context, record domain.ComplianceRecord) error
	ListAudit(ctx context.Context, limit int) ([]domain.AuditEvent, error)
	ListDecisions(ctx context.Context, limit int) ([]domain.AIDecision, error)
	ListCompliance(ctx context.Context, limit int) ([]domain.ComplianceRecord, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes submitted document IDs.
type MessageQueue interface {
	PublishDocumentSubmitted(ctx context.Context, documentID string) error
	SubscribeDocumentSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}

// FileInspector probes a stored upload.
type FileInspector interface {
	Inspect(ctx context.Context, doc *domain.Document) (*domain.Inspection, error)
}

// RandomSource is the single source of randomness for the simulation. It is
// shared across components, so implementations must be safe for concurrent use.
type RandomSource interface {
	Float64() float64
	IntN(n int) int
}

// Clock returns the current time.
type Clock func() time.Time

// CatalogStore persists connectors and playbooks.
type CatalogStore interface {
	ListConnectors(ctx context.Context) ([]domain.Connector, error)
	UpdateConnector(ctx context.Context, id string, update func(*domain.Connector) error) (*domain.Connector, error)
	ListPlaybooks(ctx context.Context) ([]domain.Playbook, error)
	AddPlaybook(ctx context.Context, pb domain.Playbook) error
}
