package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
)

type ingestFixture struct {
	env       testEnv
	storage   *memStorage
	queue     *queueFake
	inspector *inspectorFake
	runner    *StageRunner
	uc        *IngestDocumentUseCase
}

func newIngestFixture(rng *seqRandom, withQueue bool) ingestFixture {
	env := newTestEnv(true)
	f := ingestFixture{
		env:       env,
		storage:   newMemStorage(),
		inspector: &inspectorFake{out: &domain.Inspection{SizeBytes: 7, Pages: 1}},
		runner:    instantRunner(rng, nil),
	}
	var queue ports.MessageQueue
	if withQueue {
		f.queue = &queueFake{}
		queue = f.queue
	}
	f.uc = NewIngestDocumentUseCase(
		env.registry, env.repo, env.audit, f.storage, queue, f.runner,
		NewFieldExtractor(rng, fixedClock, 0), f.inspector,
		IngestOptions{Now: fixedClock},
	)
	return f
}

func TestUploadInvoiceRunsPipelineAndExtracts(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.75), false)
	ctx := context.Background()

	doc, err := f.uc.Upload(ctx, ports.UploadRequest{
		FileName:           "invoice.pdf",
		Body:               strings.NewReader("%PDF-1"),
		ConfidenceBaseline: 0.85,
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Type != domain.TypeInvoice || doc.Status != domain.StatusExtracted {
		t.Fatalf("unexpected document %+v", doc)
	}
	want := []string{"vendor", "total", "invoiceNo", "dueDate", "currency", "taxAmount"}
	if len(doc.Fields) != len(want) {
		t.Fatalf("expected %d fields, got %v", len(want), doc.Fields)
	}
	for _, name := range want {
		c := doc.Fields[name].Confidence
		if c < 0.6 || c > 0.99 {
			t.Fatalf("field %s confidence %v outside [0.6, 0.99]", name, c)
		}
	}
	if doc.Model != DefaultModel || doc.ProcessingTime <= 0 {
		t.Fatalf("unexpected model metadata %+v", doc)
	}
	if doc.Inspection == nil || doc.Inspection.Pages != 1 || f.inspector.calls != 1 {
		t.Fatalf("expected one inspection during OCR, got %+v calls=%d", doc.Inspection, f.inspector.calls)
	}
	if _, ok := f.storage.files[doc.StoragePath]; !ok {
		t.Fatalf("upload was not stored under %s", doc.StoragePath)
	}

	stored, err := f.env.registry.Get(ctx, doc.ID)
	if err != nil || stored.Status != domain.StatusExtracted {
		t.Fatalf("registry copy = %+v, %v", stored, err)
	}
	run, ok := f.runner.Snapshot(doc.ID)
	if !ok || run.Status != domain.RunCompleted {
		t.Fatalf("expected completed run keyed by document id, got %+v ok=%v", run, ok)
	}

	events, _ := f.env.audit.ListAudit(ctx, 0)
	decisions, _ := f.env.audit.ListDecisions(ctx, 0)
	if len(events) != 1 || len(decisions) != 1 {
		t.Fatalf("expected one audit event and one decision, got %d and %d", len(events), len(decisions))
	}
	if d := decisions[0]; d.Document != "invoice.pdf" || d.InputTokens < 1000 || d.OutputTokens < 100 || d.Confidence <= 0 || d.Confidence > 1 {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestUploadHonorsModelOverride(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.5), false)
	doc, err := f.uc.Upload(context.Background(), ports.UploadRequest{
		FileName: "request.eml",
		Body:     strings.NewReader("From: a@b.c"),
		Model:    "forml-legal-v1.5",
		Source:   "Gmail",
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Model != "forml-legal-v1.5" || doc.Type != domain.TypeEmail || doc.Source != "Gmail" {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestUploadValidatesInput(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.5), false)
	ctx := context.Background()

	cases := []ports.UploadRequest{
		{FileName: "", Body: strings.NewReader("x")},
		{FileName: "a.pdf"},
		{FileName: "a.pdf", Body: strings.NewReader("x"), ConfidenceBaseline: 1.2},
		{FileName: "a.pdf", Body: strings.NewReader("x"), ConfidenceBaseline: -0.1},
	}
	for i, req := range cases {
		if _, err := f.uc.Upload(ctx, req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
	if docs, _ := f.env.registry.List(ctx); len(docs) != 0 {
		t.Fatalf("invalid uploads must not register documents")
	}
}

func TestUploadToleratesInspectionFailure(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.75), false)
	f.inspector.out = nil
	f.inspector.err = errors.New("corrupt pdf")

	doc, err := f.uc.Upload(context.Background(), ports.UploadRequest{FileName: "invoice.pdf", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Inspection != nil || doc.Status != domain.StatusExtracted {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestUploadAbandonedRunRegistersNothing(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.75), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.uc.Upload(ctx, ports.UploadRequest{FileName: "invoice.pdf", Body: strings.NewReader("x")}); err == nil {
		t.Fatalf("expected error for abandoned upload")
	}
	if docs, _ := f.env.registry.List(context.Background()); len(docs) != 0 {
		t.Fatalf("abandoned upload must not register a document")
	}
	if len(f.storage.files) != 0 {
		t.Fatalf("abandoned upload must not leave its file behind: %v", f.storage.files)
	}
}

func TestSubmitRequiresQueue(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.5), false)
	_, err := f.uc.Submit(context.Background(), ports.UploadRequest{FileName: "a.pdf", Body: strings.NewReader("x")})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSubmitThenProcess(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.75), true)
	ctx := context.Background()

	doc, err := f.uc.Submit(ctx, ports.UploadRequest{FileName: "invoice.pdf", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if doc.Status != domain.StatusPending || len(doc.Fields) != 0 {
		t.Fatalf("submitted document must be pending without fields, got %+v", doc)
	}
	if len(f.queue.published) != 1 || f.queue.published[0] != doc.ID {
		t.Fatalf("expected submission event for %s, got %v", doc.ID, f.queue.published)
	}

	if err := f.uc.ProcessByID(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	processed, err := f.env.registry.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if processed.Status != domain.StatusExtracted || len(processed.Fields) != 6 {
		t.Fatalf("unexpected processed document %+v", processed)
	}
	decisions, _ := f.env.audit.ListDecisions(ctx, 0)
	if len(decisions) != 1 {
		t.Fatalf("expected one decision, got %d", len(decisions))
	}

	if err := f.uc.ProcessByID(ctx, doc.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("reprocessing an extracted document must fail, got %v", err)
	}
}

func TestSubmitThenProcessHonorsOverrides(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.75), true)
	ctx := context.Background()

	doc, err := f.uc.Submit(ctx, ports.UploadRequest{
		FileName:           "invoice.pdf",
		Body:               strings.NewReader("x"),
		Model:              "forml-legal-v1.5",
		ConfidenceBaseline: 0.65,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if doc.ConfidenceBaseline != 0.65 {
		t.Fatalf("submitted document must carry its baseline, got %v", doc.ConfidenceBaseline)
	}
	if err := f.uc.ProcessByID(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	processed, err := f.env.registry.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if processed.Model != "forml-legal-v1.5" {
		t.Fatalf("expected model override, got %q", processed.Model)
	}
	// 0.65 + (0.75-0.5)*0.15
	for name, field := range processed.Fields {
		if math.Abs(field.Confidence-0.6875) > 1e-9 {
			t.Fatalf("field %s sampled around the wrong baseline: %v", name, field.Confidence)
		}
	}
	if avg := domain.AverageConfidence(*processed); math.Abs(avg-68.75) > 1e-6 {
		t.Fatalf("expected average confidence 68.75%%, got %v", avg)
	}
}

func TestSubmitRollsBackWhenPublishFails(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.5), true)
	f.queue.err = domain.WrapError(domain.ErrTemporary, "nats publish", errors.New("nats down"))
	ctx := context.Background()

	_, err := f.uc.Submit(ctx, ports.UploadRequest{FileName: "invoice.pdf", Body: strings.NewReader("x")})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if docs, _ := f.env.registry.List(ctx); len(docs) != 0 {
		t.Fatalf("failed submission must not stay registered: %+v", docs)
	}
	if events, _ := f.env.audit.ListAudit(ctx, 0); len(events) != 0 {
		t.Fatalf("failed submission must not be audited as uploaded: %+v", events)
	}
	if len(f.storage.files) != 0 {
		t.Fatalf("failed submission must not leave its file behind: %v", f.storage.files)
	}

	f.queue.err = nil
	doc, err := f.uc.Submit(ctx, ports.UploadRequest{FileName: "invoice.pdf", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("retried Submit() error = %v", err)
	}
	if events, _ := f.env.audit.ListAudit(ctx, 0); len(events) != 1 || events[0].Action != "Document Uploaded" {
		t.Fatalf("expected one upload event, got %+v", events)
	}
	if len(f.queue.published) != 1 || f.queue.published[0] != doc.ID {
		t.Fatalf("unexpected submissions %v", f.queue.published)
	}
}

func TestProcessRequeuesAbandonedRun(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.75), true)
	ctx := context.Background()
	doc, err := f.uc.Submit(ctx, ports.UploadRequest{FileName: "invoice.pdf", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	f.uc.runner = NewStageRunner(newSeqRandom(0.5), StageRunnerOptions{
		Sleep: func(context.Context, time.Duration) error { return context.Canceled },
	})
	if err := f.uc.ProcessByID(ctx, doc.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	requeued, err := f.env.registry.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if requeued.Status != domain.StatusPending {
		t.Fatalf("abandoned run must requeue to pending, got %s", requeued.Status)
	}
	if len(f.queue.published) != 2 || f.queue.published[1] != doc.ID {
		t.Fatalf("requeued document must be submitted again, got %v", f.queue.published)
	}
}

func TestProcessStopsRequeueingAfterMaxAttempts(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.75), true)
	f.uc.opts.MaxProcessAttempts = 2
	ctx := context.Background()
	doc, err := f.uc.Submit(ctx, ports.UploadRequest{FileName: "invoice.pdf", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	working := f.uc.runner
	f.uc.runner = NewStageRunner(newSeqRandom(0.5), StageRunnerOptions{
		Sleep: func(context.Context, time.Duration) error { return context.DeadlineExceeded },
	})
	for i := 0; i < 2; i++ {
		if err := f.uc.ProcessByID(ctx, doc.ID); err == nil {
			t.Fatalf("run %d: expected failure", i)
		}
	}
	if len(f.queue.published) != 2 {
		t.Fatalf("expected the submission plus one republish, got %v", f.queue.published)
	}
	stuck, _ := f.env.registry.Get(ctx, doc.ID)
	if stuck.Status != domain.StatusPending {
		t.Fatalf("exhausted document must stay pending, got %s", stuck.Status)
	}

	f.uc.runner = working
	if err := f.uc.ProcessByID(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	done, _ := f.env.registry.Get(ctx, doc.ID)
	if done.Status != domain.StatusExtracted {
		t.Fatalf("expected extracted after a manual rerun, got %s", done.Status)
	}
}

func TestProcessIgnoresDocumentAlreadyClaimed(t *testing.T) {
	f := newIngestFixture(newSeqRandom(0.75), true)
	ctx := context.Background()
	doc, err := f.uc.Submit(ctx, ports.UploadRequest{FileName: "invoice.pdf", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := f.env.repo.TransitionStatus(ctx, doc.ID, domain.StatusPending, domain.StatusProcessing); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := f.uc.ProcessByID(ctx, doc.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for a claimed document, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"invoice 2024.pdf": "invoice_2024.pdf",
		"../../etc/passwd": "passwd",
		"réçu.pdf":         "r__u.pdf",
		"":                 "document.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
