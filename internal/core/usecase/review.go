package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
)

const (
	DefaultApprovalThreshold = domain.MediumConfidencePct
	DefaultReviewer          = "current.user@company.com"
)

type ReviewOptions struct {
	// ApprovalThreshold is the minimum average confidence (percent).
	ApprovalThreshold float64
	DefaultReviewer   string
	Now               ports.Clock
}

type ReviewUseCase struct {
	registry *DocumentRegistry
	audit    ports.AuditLog
	observer ports.ReviewObserver
	opts     ReviewOptions
}

func NewReviewUseCase(registry *DocumentRegistry, audit ports.AuditLog, observer ports.ReviewObserver, opts ReviewOptions) *ReviewUseCase {
	if opts.ApprovalThreshold <= 0 {
		opts.ApprovalThreshold = DefaultApprovalThreshold
	}
	if opts.DefaultReviewer == "" {
		opts.DefaultReviewer = DefaultReviewer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ReviewUseCase{registry: registry, audit: audit, observer: observer, opts: opts}
}

// Approve moves an extracted document to approved when its fields clear the
// confidence gate, then appends one compliance record.
func (uc *ReviewUseCase) Approve(ctx context.Context, documentID, reviewer, notes string) (*domain.Document, error) {
	doc, err := uc.approve(ctx, documentID, uc.reviewer(reviewer), notes)
	uc.observe("approve", err)
	return doc, err
}

func (uc *ReviewUseCase) approve(ctx context.Context, documentID, reviewer, notes string) (*domain.Document, error) {
	doc, err := uc.registry.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(doc.Status, domain.StatusApproved); err != nil {
		return nil, err
	}
	if err := domain.CanApprove(*doc, uc.opts.ApprovalThreshold); err != nil {
		return nil, err
	}

	updated, err := uc.registry.SetStatus(ctx, documentID, domain.StatusApproved)
	if err != nil {
		return nil, err
	}

	if notes == "" {
		notes = "Document approved after AI extraction and verification"
	}
	record := domain.ComplianceRecord{
		ID:        uuid.NewString(),
		Document:  updated.FileName,
		Action:    "Document Approved",
		User:      reviewer,
		Timestamp: uc.opts.Now().UTC(),
		Compliant: true,
		Notes:     notes,
	}
	if err := uc.audit.RecordCompliance(ctx, record); err != nil {
		return nil, fmt.Errorf("record compliance: %w", err)
	}
	return updated, nil
}

// Reject moves a non-terminal document to rejected and appends an audit event.
func (uc *ReviewUseCase) Reject(ctx context.Context, documentID, reviewer, notes string) (*domain.Document, error) {
	doc, err := uc.reject(ctx, documentID, uc.reviewer(reviewer), notes)
	uc.observe("reject", err)
	return doc, err
}

func (uc *ReviewUseCase) reject(ctx context.Context, documentID, reviewer, notes string) (*domain.Document, error) {
	doc, err := uc.registry.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(doc.Status, domain.StatusRejected); err != nil {
		return nil, err
	}

	updated, err := uc.registry.SetStatus(ctx, documentID, domain.StatusRejected)
	if err != nil {
		return nil, err
	}

	details := "Document rejected by reviewer"
	if notes != "" {
		details = details + ": " + notes
	}
	event := domain.AuditEvent{
		ID:         uuid.NewString(),
		Document:   updated.FileName,
		Action:     "Document Rejected",
		Timestamp:  uc.opts.Now().UTC(),
		Confidence: domain.AverageConfidence(*updated) / 100,
		Details:    details,
		User:       reviewer,
	}
	if err := uc.audit.RecordAudit(ctx, event); err != nil {
		return nil, fmt.Errorf("record rejection audit: %w", err)
	}
	return updated, nil
}

func (uc *ReviewUseCase) reviewer(reviewer string) string {
	if r := strings.TrimSpace(reviewer); r != "" {
		return r
	}
	return uc.opts.DefaultReviewer
}

func (uc *ReviewUseCase) observe(action string, err error) {
	if uc.observer != nil {
		uc.observer.ObserveReview(action, err)
	}
}
