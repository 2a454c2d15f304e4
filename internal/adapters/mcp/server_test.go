package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

type docsFake struct {
	docs []domain.Document
}

func (f docsFake) Get(_ context.Context, id string) (*domain.Document, error) {
	for _, doc := range f.docs {
		if doc.ID == id {
			out := doc.Clone()
			return &out, nil
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id="+id))
}

func (f docsFake) List(context.Context) ([]domain.Document, error) {
	return append([]domain.Document(nil), f.docs...), nil
}

func (f docsFake) ListPending(context.Context) ([]domain.Document, error) {
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.Status != domain.StatusApproved {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f docsFake) Stats(context.Context) (domain.ProcessingStats, error) {
	return domain.ProcessingStats{Total: len(f.docs)}, nil
}

type reviewerFake struct {
	calls []string
	err   error
}

func (f *reviewerFake) Approve(_ context.Context, id, reviewer, notes string) (*domain.Document, error) {
	f.calls = append(f.calls, "approve:"+id+":"+reviewer+":"+notes)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Status: domain.StatusApproved}, nil
}

func (f *reviewerFake) Reject(_ context.Context, id, reviewer, notes string) (*domain.Document, error) {
	f.calls = append(f.calls, "reject:"+id+":"+reviewer+":"+notes)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Status: domain.StatusRejected}, nil
}

type auditFake struct{}

func (auditFake) ListAudit(_ context.Context, limit int) ([]domain.AuditEvent, error) {
	events := []domain.AuditEvent{{ID: "e2", Action: "Document Rejected"}, {ID: "e1", Action: "Document Uploaded"}}
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}

func (auditFake) ListDecisions(context.Context, int) ([]domain.AIDecision, error) {
	return []domain.AIDecision{{ID: "d1", Model: "forml-document-v2.1"}}, nil
}

func (auditFake) ListCompliance(context.Context, int) ([]domain.ComplianceRecord, error) {
	return nil, nil
}

type pipelineFake struct{}

func (pipelineFake) Snapshot(runID string) (domain.PipelineRun, bool) {
	if runID != "doc-1" {
		return domain.PipelineRun{}, false
	}
	return domain.PipelineRun{ID: runID, Status: domain.RunCompleted, Stages: domain.DefaultStages(), StartedAt: time.Now()}, true
}

func (pipelineFake) Cancel(string) bool { return false }

func newTestTools(reviewer *reviewerFake) *Tools {
	return NewTools(Services{
		Documents: docsFake{docs: []domain.Document{
			{ID: "doc-2", FileName: "b.pdf", Status: domain.StatusApproved, Fields: map[string]domain.Field{"a": {Value: 1, Confidence: 0.95}}},
			{ID: "doc-1", FileName: "a.pdf", Status: domain.StatusExtracted, Fields: map[string]domain.Field{"a": {Value: 1, Confidence: 0.65}}},
		}},
		Reviewer: reviewer,
		Audit:    auditFake{},
		Pipeline: pipelineFake{},
	})
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func TestListDocumentsPendingSkipsApproved(t *testing.T) {
	tools := newTestTools(&reviewerFake{})

	res, err := tools.listDocuments(context.Background(), callRequest("list_documents", map[string]any{"status": "pending"}))
	if err != nil {
		t.Fatalf("listDocuments() error = %v", err)
	}
	var views []documentView
	if err := json.Unmarshal([]byte(resultText(t, res)), &views); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(views) != 1 || views[0].ID != "doc-1" {
		t.Fatalf("unexpected pending documents %+v", views)
	}
	if views[0].AverageConfidence != 65 || views[0].ConfidenceBand != domain.BandLow {
		t.Fatalf("unexpected confidence view %+v", views[0])
	}
}

func TestListDocumentsByStatusAndLimit(t *testing.T) {
	tools := newTestTools(&reviewerFake{})

	res, _ := tools.listDocuments(context.Background(), callRequest("list_documents", map[string]any{"status": "approved"}))
	var views []documentView
	if err := json.Unmarshal([]byte(resultText(t, res)), &views); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(views) != 1 || views[0].ID != "doc-2" {
		t.Fatalf("unexpected approved documents %+v", views)
	}

	res, _ = tools.listDocuments(context.Background(), callRequest("list_documents", map[string]any{"limit": 1}))
	if err := json.Unmarshal([]byte(resultText(t, res)), &views); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(views) != 1 || views[0].ID != "doc-2" {
		t.Fatalf("limit must keep the most recent document, got %+v", views)
	}
}

func TestGetDocumentNotFoundIsToolError(t *testing.T) {
	tools := newTestTools(&reviewerFake{})

	res, err := tools.getDocument(context.Background(), callRequest("get_document", map[string]any{"id": "missing"}))
	if err != nil {
		t.Fatalf("domain errors must not be protocol errors: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "document not found") {
		t.Fatalf("expected not-found tool error, got %+v", res)
	}

	res, _ = tools.getDocument(context.Background(), callRequest("get_document", map[string]any{}))
	if !res.IsError {
		t.Fatalf("missing id must be a tool error")
	}
}

func TestApproveAndRejectForwardReviewerAndNotes(t *testing.T) {
	reviewer := &reviewerFake{}
	tools := newTestTools(reviewer)

	res, err := tools.approveDocument(context.Background(), callRequest("approve_document", map[string]any{
		"id":       "doc-1",
		"reviewer": "bob@company.com",
		"notes":    "ok",
	}))
	if err != nil || res.IsError {
		t.Fatalf("approve failed: %v %+v", err, res)
	}
	if _, err := tools.rejectDocument(context.Background(), callRequest("reject_document", map[string]any{"id": "doc-3"})); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	want := []string{"approve:doc-1:bob@company.com:ok", "reject:doc-3::"}
	if len(reviewer.calls) != len(want) {
		t.Fatalf("calls = %v", reviewer.calls)
	}
	for i := range want {
		if reviewer.calls[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, reviewer.calls[i], want[i])
		}
	}
}

func TestApproveBelowThresholdIsToolError(t *testing.T) {
	reviewer := &reviewerFake{err: domain.WrapError(domain.ErrInvalidTransition, "approve", errors.New("average confidence 65.0 is below 70.0"))}
	tools := newTestTools(reviewer)

	res, err := tools.approveDocument(context.Background(), callRequest("approve_document", map[string]any{"id": "doc-1"}))
	if err != nil {
		t.Fatalf("approveDocument() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "below 70.0") {
		t.Fatalf("expected gating error, got %+v", res)
	}
}

func TestListAuditSelectsLog(t *testing.T) {
	tools := newTestTools(&reviewerFake{})

	res, _ := tools.listAudit(context.Background(), callRequest("list_audit", map[string]any{"log": "events", "limit": 1}))
	var events []domain.AuditEvent
	if err := json.Unmarshal([]byte(resultText(t, res)), &events); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(events) != 1 || events[0].ID != "e2" {
		t.Fatalf("unexpected events %+v", events)
	}

	res, _ = tools.listAudit(context.Background(), callRequest("list_audit", map[string]any{"log": "tickets"}))
	if !res.IsError {
		t.Fatalf("unknown log must be a tool error")
	}
}

func TestGetPipelineRun(t *testing.T) {
	tools := newTestTools(&reviewerFake{})

	res, _ := tools.getPipelineRun(context.Background(), callRequest("get_pipeline_run", map[string]any{"id": "doc-1"}))
	var run domain.PipelineRun
	if err := json.Unmarshal([]byte(resultText(t, res)), &run); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if run.Status != domain.RunCompleted || len(run.Stages) != 5 {
		t.Fatalf("unexpected run %+v", run)
	}

	res, _ = tools.getPipelineRun(context.Background(), callRequest("get_pipeline_run", map[string]any{"id": "other"}))
	if !res.IsError {
		t.Fatalf("unknown run must be a tool error")
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(Services{
		Documents: docsFake{},
		Reviewer:  &reviewerFake{},
		Audit:     auditFake{},
		Pipeline:  pipelineFake{},
	}, "test")

	tools := s.ListTools()
	for _, name := range []string{"list_documents", "get_document", "approve_document", "reject_document", "list_audit", "get_stats", "get_pipeline_run"} {
		if _, ok := tools[name]; !ok {
			t.Fatalf("tool %s not registered", name)
		}
	}
}
