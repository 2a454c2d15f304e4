package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

func newReviewFixture(t *testing.T, doc *domain.Document) (testEnv, *ReviewUseCase, *reviewObserverFake) {
	t.Helper()
	env := newTestEnv(true)
	if err := env.registry.Add(context.Background(), doc); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	observer := &reviewObserverFake{}
	uc := NewReviewUseCase(env.registry, env.audit, observer, ReviewOptions{Now: fixedClock})
	return env, uc, observer
}

func TestApproveBelowThresholdFails(t *testing.T) {
	env, uc, observer := newReviewFixture(t, docWithConfidences("low", domain.StatusExtracted, 0.6, 0.7))
	ctx := context.Background()

	if _, err := uc.Approve(ctx, "low", "", ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	doc, _ := env.registry.Get(ctx, "low")
	if doc.Status != domain.StatusExtracted {
		t.Fatalf("status must stay extracted, got %s", doc.Status)
	}
	records, _ := env.audit.ListCompliance(ctx, 0)
	if len(records) != 0 {
		t.Fatalf("failed approval must not write compliance records")
	}
	if len(observer.errs) != 1 || observer.errs[0] == nil || observer.actions[0] != "approve" {
		t.Fatalf("unexpected observer state %+v", observer)
	}
}

func TestApproveHighConfidenceAppendsComplianceRecord(t *testing.T) {
	env, uc, _ := newReviewFixture(t, docWithConfidences("high", domain.StatusExtracted, 0.95, 0.97))
	ctx := context.Background()

	doc, err := uc.Approve(ctx, "high", "", "")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if doc.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %s", doc.Status)
	}
	records, _ := env.audit.ListCompliance(ctx, 0)
	if len(records) != 1 {
		t.Fatalf("expected one compliance record, got %d", len(records))
	}
	rec := records[0]
	if !rec.Compliant || rec.Action != "Document Approved" || rec.User != DefaultReviewer || rec.Document != "high.pdf" {
		t.Fatalf("unexpected compliance record %+v", rec)
	}
	if rec.Notes != "Document approved after AI extraction and verification" {
		t.Fatalf("unexpected notes %q", rec.Notes)
	}

	if _, err := uc.Approve(ctx, "high", "other@company.com", ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("re-approval must fail, got %v", err)
	}
	records, _ = env.audit.ListCompliance(ctx, 0)
	if len(records) != 1 {
		t.Fatalf("re-approval must not append records, got %d", len(records))
	}
}

func TestApproveRequiresExtractedFields(t *testing.T) {
	_, uc, _ := newReviewFixture(t, docWithConfidences("pending", domain.StatusPending))
	if _, err := uc.Approve(context.Background(), "pending", "", ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestApproveUsesReviewerAndNotes(t *testing.T) {
	env, uc, _ := newReviewFixture(t, docWithConfidences("doc", domain.StatusExtracted, 0.8))
	ctx := context.Background()
	if _, err := uc.Approve(ctx, "doc", " jane@company.com ", "checked totals"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	records, _ := env.audit.ListCompliance(ctx, 0)
	if records[0].User != "jane@company.com" || records[0].Notes != "checked totals" {
		t.Fatalf("unexpected record %+v", records[0])
	}
}

func TestRejectAppendsAuditEvent(t *testing.T) {
	env, uc, observer := newReviewFixture(t, docWithConfidences("doc", domain.StatusExtracted, 0.5, 0.7))
	ctx := context.Background()

	doc, err := uc.Reject(ctx, "doc", "jane@company.com", "illegible scan")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if doc.Status != domain.StatusRejected {
		t.Fatalf("expected rejected, got %s", doc.Status)
	}
	events, _ := env.audit.ListAudit(ctx, 0)
	if len(events) != 2 || events[0].Action != "Document Rejected" {
		t.Fatalf("expected upload + rejection events, got %+v", events)
	}
	if events[0].Details != "Document rejected by reviewer: illegible scan" || events[0].User != "jane@company.com" {
		t.Fatalf("unexpected rejection event %+v", events[0])
	}

	if _, err := uc.Reject(ctx, "doc", "", ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("rejecting twice must fail, got %v", err)
	}
	if _, err := uc.Approve(ctx, "doc", "", ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("approving a rejected document must fail, got %v", err)
	}
	if len(observer.actions) != 3 || observer.errs[0] != nil {
		t.Fatalf("unexpected observer state %+v", observer)
	}
}

func TestReviewMissingDocument(t *testing.T) {
	_, uc, _ := newReviewFixture(t, docWithConfidences("doc", domain.StatusExtracted, 0.9))
	if _, err := uc.Approve(context.Background(), "missing", "", ""); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
