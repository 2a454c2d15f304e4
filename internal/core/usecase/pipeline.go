package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
)

const (
	DefaultStageMinDelay = 800 * time.Millisecond
	DefaultStageMaxDelay = 2000 * time.Millisecond
	DefaultRunHistory    = 100
)

// StageWork runs inside a stage after its simulated delay, while the stage is
// still marked processing.
type StageWork func(ctx context.Context, stage domain.PipelineStage) error

type StageRunnerOptions struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	History  int
	Observer ports.PipelineObserver
	Sleep    func(ctx context.Context, d time.Duration) error
	Now      ports.Clock
}

// StageRunner walks the fixed stage sequence. Every run owns an isolated copy
// of the stage list keyed by run ID, so concurrent runs never interleave.
type StageRunner struct {
	opts StageRunnerOptions
	rng  ports.RandomSource

	mu       sync.Mutex
	runs     map[string]*pipelineRun
	finished []string
}

type pipelineRun struct {
	mu     sync.Mutex
	state  domain.PipelineRun
	cancel context.CancelFunc
}

func NewStageRunner(rng ports.RandomSource, opts StageRunnerOptions) *StageRunner {
	if opts.MinDelay < 0 {
		opts.MinDelay = 0
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if opts.History <= 0 {
		opts.History = DefaultRunHistory
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &StageRunner{
		opts: opts,
		rng:  rng,
		runs: make(map[string]*pipelineRun),
	}
}

// Run executes all stages strictly in order. An empty runID gets a fresh one.
// Cancelling ctx or calling Cancel(runID) abandons the run; the returned
// error then wraps context.Canceled (or the ctx error).
func (r *StageRunner) Run(ctx context.Context, runID string, work StageWork) (domain.PipelineRun, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := &pipelineRun{
		state: domain.PipelineRun{
			ID:        runID,
			Status:    domain.RunRunning,
			Stages:    domain.DefaultStages(),
			StartedAt: r.opts.Now().UTC(),
		},
		cancel: cancel,
	}
	if err := r.register(run); err != nil {
		return domain.PipelineRun{}, err
	}

	if r.opts.Observer != nil {
		r.opts.Observer.RunStarted()
	}
	start := time.Now()

	err := r.walk(runCtx, run, work)
	status := run.finish(err, r.opts.Now().UTC())
	r.retire(runID)

	if r.opts.Observer != nil {
		r.opts.Observer.RunFinished(status, time.Since(start))
	}
	slog.Debug("pipeline_run_finished", "run_id", runID, "status", status, "duration_ms", time.Since(start).Milliseconds())

	return run.snapshot(), err
}

func (r *StageRunner) walk(ctx context.Context, run *pipelineRun, work StageWork) error {
	for i := 0; i < len(run.state.Stages); i++ {
		stage, ok := run.setStage(ctx, i, domain.StageProcessing)
		if !ok {
			return abandoned(ctx, run.state.ID)
		}
		stageStart := time.Now()

		if err := r.opts.Sleep(ctx, r.delay()); err != nil {
			return abandoned(ctx, run.state.ID)
		}
		if work != nil {
			if err := work(ctx, stage); err != nil {
				if ctx.Err() != nil {
					return abandoned(ctx, run.state.ID)
				}
				run.setStage(ctx, i, domain.StageFailed)
				return fmt.Errorf("pipeline run %s: stage %q: %w", run.state.ID, stage.Name, err)
			}
		}

		if _, ok := run.setStage(ctx, i, domain.StageCompleted); !ok {
			return abandoned(ctx, run.state.ID)
		}
		if r.opts.Observer != nil {
			r.opts.Observer.StageCompleted(stage.Name, time.Since(stageStart))
		}
	}
	return nil
}

// Snapshot returns a copy of the run's current state.
func (r *StageRunner) Snapshot(runID string) (domain.PipelineRun, bool) {
	r.mu.Lock()
	run, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return domain.PipelineRun{}, false
	}
	return run.snapshot(), true
}

// Cancel abandons an in-flight run. Once it returns true the run's stage
// state is frozen.
func (r *StageRunner) Cancel(runID string) bool {
	r.mu.Lock()
	run, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	run.mu.Lock()
	if run.state.Status != domain.RunRunning {
		run.mu.Unlock()
		return false
	}
	now := r.opts.Now().UTC()
	run.state.Status = domain.RunCancelled
	run.state.FinishedAt = &now
	run.state.Error = context.Canceled.Error()
	for i := range run.state.Stages {
		if run.state.Stages[i].Status == domain.StageProcessing {
			run.state.Stages[i].Status = domain.StageFailed
		}
	}
	run.mu.Unlock()

	run.cancel()
	return true
}

func (r *StageRunner) register(run *pipelineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := run.state.ID
	if existing, ok := r.runs[id]; ok {
		existing.mu.Lock()
		inFlight := existing.state.Status == domain.RunRunning
		existing.mu.Unlock()
		if inFlight {
			return domain.WrapError(domain.ErrInvalidInput, "start pipeline run", fmt.Errorf("run %s is already in flight", id))
		}
		r.dropFinished(id)
	}
	r.runs[id] = run
	return nil
}

func (r *StageRunner) retire(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finished = append(r.finished, runID)
	for len(r.finished) > r.opts.History {
		oldest := r.finished[0]
		r.finished = r.finished[1:]
		delete(r.runs, oldest)
	}
}

func (r *StageRunner) dropFinished(runID string) {
	for i, id := range r.finished {
		if id == runID {
			r.finished = append(r.finished[:i], r.finished[i+1:]...)
			return
		}
	}
}

func (r *StageRunner) delay() time.Duration {
	span := r.opts.MaxDelay - r.opts.MinDelay
	if span <= 0 {
		return r.opts.MinDelay
	}
	return r.opts.MinDelay + time.Duration(r.rng.Float64()*float64(span))
}

// setStage updates stage i unless the run was abandoned. It returns the
// updated stage and whether the update happened.
func (p *pipelineRun) setStage(ctx context.Context, i int, status domain.StageStatus) (domain.PipelineStage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Status != domain.RunRunning || ctx.Err() != nil {
		return domain.PipelineStage{}, false
	}
	p.state.Stages[i].Status = status
	return p.state.Stages[i], true
}

func (p *pipelineRun) finish(err error, now time.Time) domain.RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Status != domain.RunRunning {
		return p.state.Status
	}
	p.state.FinishedAt = &now
	switch {
	case err == nil:
		p.state.Status = domain.RunCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		p.state.Status = domain.RunCancelled
		p.state.Error = err.Error()
	default:
		p.state.Status = domain.RunFailed
		p.state.Error = err.Error()
	}
	if err != nil {
		for i := range p.state.Stages {
			if p.state.Stages[i].Status == domain.StageProcessing {
				p.state.Stages[i].Status = domain.StageFailed
			}
		}
	}
	return p.state.Status
}

func (p *pipelineRun) snapshot() domain.PipelineRun {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.state
	out.Stages = append([]domain.PipelineStage(nil), p.state.Stages...)
	if p.state.FinishedAt != nil {
		finished := *p.state.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

func abandoned(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline run %s abandoned: %w", runID, err)
	}
	return fmt.Errorf("pipeline run %s abandoned: %w", runID, context.Canceled)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
