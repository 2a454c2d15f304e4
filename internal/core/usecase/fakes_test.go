package usecase

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/repository/memory"
)

// seqRandom replays a fixed cycle of floats; IntN scales the next float.
type seqRandom struct {
	mu     sync.Mutex
	values []float64
	i      int
}

func newSeqRandom(values ...float64) *seqRandom {
	return &seqRandom{values: values}
}

func (r *seqRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.values[r.i%len(r.values)]
	r.i++
	return v
}

func (r *seqRandom) IntN(n int) int {
	return int(r.Float64() * float64(n))
}

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) error {
	if s.err != nil {
		return s.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = raw
	return nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.files[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (q *queueFake) PublishDocumentSubmitted(_ context.Context, documentID string) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, documentID)
	return nil
}

func (q *queueFake) SubscribeDocumentSubmitted(context.Context, func(context.Context, string) error) error {
	return nil
}

type inspectorFake struct {
	calls int
	out   *domain.Inspection
	err   error
}

func (f *inspectorFake) Inspect(context.Context, *domain.Document) (*domain.Inspection, error) {
	f.calls++
	return f.out, f.err
}

type pipelineObserverFake struct {
	mu       sync.Mutex
	started  int
	finished []domain.RunStatus
	stages   []string
}

func (o *pipelineObserverFake) RunStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *pipelineObserverFake) RunFinished(status domain.RunStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, status)
}

func (o *pipelineObserverFake) StageCompleted(stage string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

type reviewObserverFake struct {
	actions []string
	errs    []error
}

func (o *reviewObserverFake) ObserveReview(action string, err error) {
	o.actions = append(o.actions, action)
	o.errs = append(o.errs, err)
}

func fixedClock() time.Time {
	return time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
}

type testEnv struct {
	repo     *memory.DocumentRepository
	audit    *memory.AuditLog
	registry *DocumentRegistry
}

func newTestEnv(pendingIncludesRejected bool) testEnv {
	repo := memory.NewDocumentRepository()
	audit := memory.NewAuditLog()
	return testEnv{
		repo:     repo,
		audit:    audit,
		registry: NewDocumentRegistry(repo, audit, RegistryOptions{PendingIncludesRejected: pendingIncludesRejected, Now: fixedClock}),
	}
}

func instantRunner(rng *seqRandom, observer *pipelineObserverFake) *StageRunner {
	opts := StageRunnerOptions{
		Sleep: func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
		Now:   fixedClock,
	}
	if observer != nil {
		opts.Observer = observer
	}
	return NewStageRunner(rng, opts)
}

func docWithConfidences(id string, status domain.DocumentStatus, confidences ...float64) *domain.Document {
	fields := make(map[string]domain.Field, len(confidences))
	for i, c := range confidences {
		fields[string(rune('a'+i))] = domain.Field{Value: i, Confidence: c, Source: "test"}
	}
	return &domain.Document{
		ID:         id,
		Type:       domain.TypeInvoice,
		FileName:   id + ".pdf",
		Status:     status,
		Fields:     fields,
		UploadedAt: fixedClock(),
	}
}
