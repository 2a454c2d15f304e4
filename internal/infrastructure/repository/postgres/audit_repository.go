package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/resilience"
)

// AuditRepository stores the append-only audit, AI decision and compliance
// logs. Lists are ordered by insertion sequence, newest first.
type AuditRepository struct {
	db   *sql.DB
	exec *resilience.Executor
}

func NewAuditRepository(db *sql.DB, exec *resilience.Executor) *AuditRepository {
	return &AuditRepository{db: db, exec: exec}
}

func (r *AuditRepository) RecordAudit(ctx context.Context, e domain.AuditEvent) error {
	return r.exec.Do(ctx, "postgres.audit.record_event", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_events (id, document, action, ts, confidence, details, actor)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, e.ID, e.Document, e.Action, e.Timestamp, e.Confidence, e.Details, e.User)
		if err != nil {
			return markTransient("insert audit event", fmt.Errorf("insert audit event: %w", err))
		}
		return nil
	})
}

func (r *AuditRepository) RecordDecision(ctx context.Context, d domain.AIDecision) error {
	return r.exec.Do(ctx, "postgres.audit.record_decision", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO ai_decisions (id, document, model, confidence, extracted, ts, input_tokens, output_tokens)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, d.ID, d.Document, d.Model, d.Confidence, d.Extracted, d.Timestamp, d.InputTokens, d.OutputTokens)
		if err != nil {
			return markTransient("insert ai decision", fmt.Errorf("insert ai decision: %w", err))
		}
		return nil
	})
}

func (r *AuditRepository) RecordCompliance(ctx context.Context, c domain.ComplianceRecord) error {
	return r.exec.Do(ctx, "postgres.audit.record_compliance", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO compliance_records (id, document, action, actor, ts, compliant, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, c.ID, c.Document, c.Action, c.User, c.Timestamp, c.Compliant, c.Notes)
		if err != nil {
			return markTransient("insert compliance record", fmt.Errorf("insert compliance record: %w", err))
		}
		return nil
	})
}

func (r *AuditRepository) ListAudit(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	return resilience.Query(ctx, r.exec, "postgres.audit.list_events", func(ctx context.Context) ([]domain.AuditEvent, error) {
		rows, err := r.query(ctx, `
SELECT id, document, action, ts, confidence, details, actor
FROM audit_events
ORDER BY seq DESC`, limit)
		if err != nil {
			return nil, markTransient("list audit events", fmt.Errorf("list audit events: %w", err))
		}
		defer rows.Close()

		out := make([]domain.AuditEvent, 0)
		for rows.Next() {
			var e domain.AuditEvent
			if err := rows.Scan(&e.ID, &e.Document, &e.Action, &e.Timestamp, &e.Confidence, &e.Details, &e.User); err != nil {
				return nil, fmt.Errorf("scan audit event: %w", err)
			}
			out = append(out, e)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate audit events: %w", err)
		}
		return out, nil
	})
}

func (r *AuditRepository) ListDecisions(ctx context.Context, limit int) ([]domain.AIDecision, error) {
	return resilience.Query(ctx, r.exec, "postgres.audit.list_decisions", func(ctx context.Context) ([]domain.AIDecision, error) {
		rows, err := r.query(ctx, `
SELECT id, document, model, confidence, extracted, ts, input_tokens, output_tokens
FROM ai_decisions
ORDER BY seq DESC`, limit)
		if err != nil {
			return nil, markTransient("list ai decisions", fmt.Errorf("list ai decisions: %w", err))
		}
		defer rows.Close()

		out := make([]domain.AIDecision, 0)
		for rows.Next() {
			var d domain.AIDecision
			if err := rows.Scan(&d.ID, &d.Document, &d.Model, &d.Confidence, &d.Extracted, &d.Timestamp, &d.InputTokens, &d.OutputTokens); err != nil {
				return nil, fmt.Errorf("scan ai decision: %w", err)
			}
			out = append(out, d)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate ai decisions: %w", err)
		}
		return out, nil
	})
}

func (r *AuditRepository) ListCompliance(ctx context.Context, limit int) ([]domain.ComplianceRecord, error) {
	return resilience.Query(ctx, r.exec, "postgres.audit.list_compliance", func(ctx context.Context) ([]domain.ComplianceRecord, error) {
		rows, err := r.query(ctx, `
SELECT id, document, action, actor, ts, compliant, notes
FROM compliance_records
ORDER BY seq DESC`, limit)
		if err != nil {
			return nil, markTransient("list compliance records", fmt.Errorf("list compliance records: %w", err))
		}
		defer rows.Close()

		out := make([]domain.ComplianceRecord, 0)
		for rows.Next() {
			var c domain.ComplianceRecord
			if err := rows.Scan(&c.ID, &c.Document, &c.Action, &c.User, &c.Timestamp, &c.Compliant, &c.Notes); err != nil {
				return nil, fmt.Errorf("scan compliance record: %w", err)
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate compliance records: %w", err)
		}
		return out, nil
	})
}

func (r *AuditRepository) query(ctx context.Context, query string, limit int) (*sql.Rows, error) {
	if limit > 0 {
		return r.db.QueryContext(ctx, query+"\nLIMIT $1", limit)
	}
	return r.db.QueryContext(ctx, query)
}
