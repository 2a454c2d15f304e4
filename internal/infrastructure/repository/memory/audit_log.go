package memory

import (
	"context"
	"sync"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// AuditLog keeps the three append-only logs in insertion order and serves
// them newest-first.
type AuditLog struct {
	mu         sync.RWMutex
	events     []domain.AuditEvent
	decisions  []domain.AIDecision
	compliance []domain.ComplianceRecord
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) RecordAudit(ctx context.Context, event domain.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *AuditLog) RecordDecision(ctx context.Context, decision domain.AIDecision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, decision)
	return nil
}

func (l *AuditLog) RecordCompliance(ctx context.Context, record domain.ComplianceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.compliance = append(l.compliance, record)
	return nil
}

func (l *AuditLog) ListAudit(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return newestFirst(l.events, limit), nil
}

func (l *AuditLog) ListDecisions(ctx context.Context, limit int) ([]domain.AIDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return newestFirst(l.decisions, limit), nil
}

func (l *AuditLog) ListCompliance(ctx context.Context, limit int) ([]domain.ComplianceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return newestFirst(l.compliance, limit), nil
}

func newestFirst[T any](entries []T, limit int) []T {
	n := len(entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}
