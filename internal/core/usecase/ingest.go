package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
)

const (
	DefaultModel              = "forml-document-v2.1"
	DefaultConfidenceBaseline = 0.85
	DefaultMaxProcessAttempts = 3

	ocrStageID = 2

	cleanupTimeout = 5 * time.Second
)

type IngestOptions struct {
	DefaultModel    string
	DefaultBaseline float64
	// MaxProcessAttempts caps how many worker runs one submitted document
	// gets before it is left pending for a reviewer.
	MaxProcessAttempts int
	Now                ports.Clock
}

type IngestDocumentUseCase struct {
	registry  *DocumentRegistry
	repo      ports.DocumentRepository
	audit     ports.AuditLog
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	runner    *StageRunner
	extractor *FieldExtractor
	inspector ports.FileInspector
	opts      IngestOptions

	mu       sync.Mutex
	attempts map[string]int
}

// NewIngestDocumentUseCase wires the ingestion entry point. queue and
// inspector may be nil: without a queue Submit reports ErrUnavailable, without
// an inspector the OCR stage skips the file probe.
func NewIngestDocumentUseCase(
	registry *DocumentRegistry,
	repo ports.DocumentRepository,
	audit ports.AuditLog,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	runner *StageRunner,
	extractor *FieldExtractor,
	inspector ports.FileInspector,
	opts IngestOptions,
) *IngestDocumentUseCase {
	if opts.DefaultModel == "" {
		opts.DefaultModel = DefaultModel
	}
	if opts.DefaultBaseline <= 0 {
		opts.DefaultBaseline = DefaultConfidenceBaseline
	}
	if opts.MaxProcessAttempts <= 0 {
		opts.MaxProcessAttempts = DefaultMaxProcessAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &IngestDocumentUseCase{
		registry:  registry,
		repo:      repo,
		audit:     audit,
		storage:   storage,
		queue:     queue,
		runner:    runner,
		extractor: extractor,
		inspector: inspector,
		opts:      opts,
		attempts:  make(map[string]int),
	}
}

// Upload runs the whole pipeline inline and registers the document as
// extracted once every stage has completed. A failed run registers nothing
// and removes the stored file.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.Document, error) {
	baseline, err := uc.baseline(req.ConfidenceBaseline)
	if err != nil {
		return nil, err
	}
	doc, err := uc.store(ctx, req, baseline)
	if err != nil {
		return nil, err
	}

	ext, err := uc.runExtraction(ctx, doc, baseline)
	if err != nil {
		uc.discardFile(ctx, doc)
		return nil, err
	}
	doc.ApplyExtraction(ext)
	doc.Status = domain.StatusExtracted
	doc.UpdatedAt = uc.opts.Now().UTC()

	if err := uc.registry.Add(ctx, doc); err != nil {
		return nil, err
	}
	if err := uc.recordDecision(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Submit registers a pending document and hands it to the worker queue. The
// upload audit event is written only once the submission is on the queue; a
// failed publish removes the document and its file again.
func (uc *IngestDocumentUseCase) Submit(ctx context.Context, req ports.UploadRequest) (*domain.Document, error) {
	if uc.queue == nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "submit document", errors.New("asynchronous ingestion requires a message queue"))
	}
	baseline, err := uc.baseline(req.ConfidenceBaseline)
	if err != nil {
		return nil, err
	}
	doc, err := uc.store(ctx, req, baseline)
	if err != nil {
		return nil, err
	}
	doc.Status = domain.StatusPending

	if err := uc.registry.create(ctx, doc); err != nil {
		uc.discardFile(ctx, doc)
		return nil, err
	}
	if err := uc.queue.PublishDocumentSubmitted(ctx, doc.ID); err != nil {
		uc.rollbackSubmission(ctx, doc)
		return nil, fmt.Errorf("publish submission event: %w", err)
	}
	if err := uc.registry.recordUpload(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (uc *IngestDocumentUseCase) rollbackSubmission(ctx context.Context, doc *domain.Document) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := uc.registry.remove(cleanupCtx, doc.ID); err != nil {
		slog.Warn("submission_rollback_failed", "document_id", doc.ID, "error", err)
	}
	uc.discardFile(cleanupCtx, doc)
}

// discardFile removes the stored upload of a document that will never be
// registered. It runs even when ctx is already cancelled.
func (uc *IngestDocumentUseCase) discardFile(ctx context.Context, doc *domain.Document) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := uc.storage.Delete(cleanupCtx, doc.StoragePath); err != nil {
		slog.Warn("stored_file_cleanup_failed", "document_id", doc.ID, "storage_path", doc.StoragePath, "error", err)
	}
}

func (uc *IngestDocumentUseCase) store(ctx context.Context, req ports.UploadRequest, baseline float64) (*domain.Document, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file name is required"))
	}
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file body is required"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(req.FileName))
	if err := uc.storage.Save(ctx, storageKey, req.Body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = uc.opts.DefaultModel
	}
	now := uc.opts.Now().UTC()
	return &domain.Document{
		ID:                 id,
		Type:               uc.extractor.DetectType(req.FileName),
		FileName:           req.FileName,
		StoragePath:        storageKey,
		UploadedAt:         now,
		Model:              model,
		ConfidenceBaseline: baseline,
		Source:             req.Source,
		UpdatedAt:          now,
	}, nil
}

// runExtraction walks the stage sequence for doc (run ID = document ID) and
// synthesizes its fields once every stage has completed.
func (uc *IngestDocumentUseCase) runExtraction(ctx context.Context, doc *domain.Document, baseline float64) (domain.Extraction, error) {
	var inspection *domain.Inspection
	work := func(ctx context.Context, stage domain.PipelineStage) error {
		if stage.ID != ocrStageID || uc.inspector == nil {
			return nil
		}
		insp, err := uc.inspector.Inspect(ctx, doc)
		if err != nil {
			slog.Warn("file_inspection_failed", "document_id", doc.ID, "file_name", doc.FileName, "error", err)
			return nil
		}
		inspection = insp
		return nil
	}

	if _, err := uc.runner.Run(ctx, doc.ID, work); err != nil {
		return domain.Extraction{}, fmt.Errorf("run pipeline: %w", err)
	}

	fields, err := uc.extractor.Extract(doc.FileName, doc.Type, baseline)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extract fields: %w", err)
	}

	model := doc.Model
	if model == "" {
		model = uc.opts.DefaultModel
	}
	return domain.Extraction{
		Type:           doc.Type,
		Fields:         fields,
		Model:          model,
		ProcessingTime: uc.extractor.SimulateProcessingTime(),
		Inspection:     inspection,
	}, nil
}

func (uc *IngestDocumentUseCase) recordDecision(ctx context.Context, doc *domain.Document) error {
	inputTokens, outputTokens := uc.extractor.SimulateUsage()
	decision := domain.AIDecision{
		ID:           uuid.NewString(),
		Document:     doc.FileName,
		Model:        doc.Model,
		Confidence:   domain.AverageConfidence(*doc) / 100,
		Extracted:    summarizeFields(doc.Fields),
		Timestamp:    uc.opts.Now().UTC(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
	if err := uc.audit.RecordDecision(ctx, decision); err != nil {
		return fmt.Errorf("record ai decision: %w", err)
	}
	return nil
}

func (uc *IngestDocumentUseCase) baseline(requested float64) (float64, error) {
	if requested == 0 {
		return uc.opts.DefaultBaseline, nil
	}
	if requested < 0 || requested > 1 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("confidence baseline %v is outside [0,1]", requested))
	}
	return requested, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "document.bin"
	}
	return base
}
