package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// UploadRequest describes one file handed to the ingestion entry point.
// Zero Model / ConfidenceBaseline fall back to configured defaults.
type UploadRequest struct {
	FileName           string
	MimeType           string
	Body               io.Reader
	Model              string
	ConfidenceBaseline float64
	Source             string
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.Document, error)
	Submit(ctx context.Context, req UploadRequest) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReviewer is the inbound contract for human review decisions.
type DocumentReviewer interface {
	Approve(ctx context.Context, documentID, reviewer, notes string) (*domain.Document, error)
	Reject(ctx context.Context, documentID, reviewer, notes string) (*domain.Document, error)
}

// DocumentReader is the inbound read model for the registry.
type DocumentReader interface {
	Get(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	ListPending(ctx context.Context) ([]domain.Document, error)
	Stats(ctx context.Context) (domain.ProcessingStats, error)
}

// AuditReader exposes the append-only logs newest-first.
type AuditReader interface {
	ListAudit(ctx context.Context, limit int) ([]domain.AuditEvent, error)
	ListDecisions(ctx context.Context, limit int) ([]domain.AIDecision, error)
	ListCompliance(ctx context.Context, limit int) ([]domain.ComplianceRecord, error)
}

// PipelineTracker reads and cancels in-flight pipeline runs.
type PipelineTracker interface {
	Snapshot(runID string) (domain.PipelineRun, bool)
	Cancel(runID string) bool
}

// CatalogService manages connector toggles and automation playbooks.
type CatalogService interface {
	ListConnectors(ctx context.Context) ([]domain.Connector, error)
	ToggleConnector(ctx context.Context, id string) (*domain.Connector, error)
	ListPlaybooks(ctx context.Context) ([]domain.Playbook, error)
	AddPlaybook(ctx context.Context, pb domain.Playbook) (*domain.Playbook, error)
}

// PipelineObserver receives pipeline lifecycle notifications (metrics).
type PipelineObserver interface {
	RunStarted()
	RunFinished(status domain.RunStatus, duration time.Duration)
	StageCompleted(stage string, duration time.Duration)
}

// ReviewObserver receives review outcomes (metrics).
type ReviewObserver interface {
	ObserveReview(action string, err error)
}
