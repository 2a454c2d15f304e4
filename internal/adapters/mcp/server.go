// Package mcpadapter exposes the review workflow as MCP tools so an
// assistant can list, inspect, approve and reject documents.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
)

const serverName = "ai-ops-console"

type Services struct {
	Documents ports.DocumentReader
	Reviewer  ports.DocumentReviewer
	Audit     ports.AuditReader
	Pipeline  ports.PipelineTracker
}

type Tools struct {
	svc Services
}

func NewTools(svc Services) *Tools {
	return &Tools{svc: svc}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(svc Services, version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	NewTools(svc).Register(s)
	return s
}

func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List documents most recent first. status=pending returns the review queue."),
		mcp.WithString("status", mcp.Description("Optional status filter."),
			mcp.Enum("pending", "processing", "extracted", "approved", "rejected")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of documents; 0 returns all.")),
	), t.listDocuments)

	s.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Fetch one document with its extracted fields and average confidence."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document ID.")),
	), t.getDocument)

	s.AddTool(mcp.NewTool("approve_document",
		mcp.WithDescription("Approve an extracted document. Fails when average confidence is below the approval threshold."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document ID.")),
		mcp.WithString("reviewer", mcp.Description("Reviewer identity; defaults to the configured reviewer.")),
		mcp.WithString("notes", mcp.Description("Optional compliance notes.")),
	), t.approveDocument)

	s.AddTool(mcp.NewTool("reject_document",
		mcp.WithDescription("Reject a document that is not yet approved or rejected."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document ID.")),
		mcp.WithString("reviewer", mcp.Description("Reviewer identity; defaults to the configured reviewer.")),
		mcp.WithString("notes", mcp.Description("Optional rejection reason.")),
	), t.rejectDocument)

	s.AddTool(mcp.NewTool("list_audit",
		mcp.WithDescription("Read an append-only log newest first."),
		mcp.WithString("log", mcp.Required(), mcp.Enum("events", "decisions", "compliance")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries; 0 returns all.")),
	), t.listAudit)

	s.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Processing statistics: totals, average confidence and processing rate."),
	), t.getStats)

	s.AddTool(mcp.NewTool("get_pipeline_run",
		mcp.WithDescription("Stage-by-stage state of a pipeline run. The run ID equals the document ID."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Run ID.")),
	), t.getPipelineRun)
}

type documentView struct {
	domain.Document
	AverageConfidence float64               `json:"average_confidence"`
	ConfidenceBand    domain.ConfidenceBand `json:"confidence_band"`
}

func newDocumentView(doc domain.Document) documentView {
	avg := domain.AverageConfidence(doc)
	return documentView{Document: doc, AverageConfidence: avg, ConfidenceBand: domain.ClassifyConfidence(avg)}
}

func (t *Tools) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := req.GetString("status", "")
	limit := req.GetInt("limit", 0)

	var (
		docs []domain.Document
		err  error
	)
	switch status {
	case "":
		docs, err = t.svc.Documents.List(ctx)
	case string(domain.StatusPending):
		docs, err = t.svc.Documents.ListPending(ctx)
	default:
		docs, err = t.listByStatus(ctx, status)
	}
	if err != nil {
		return toolError("list_documents", err), nil
	}

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	views := make([]documentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, newDocumentView(doc))
	}
	return jsonResult(views)
}

func (t *Tools) listByStatus(ctx context.Context, raw string) ([]domain.Document, error) {
	want, err := domain.ParseDocumentStatus(raw)
	if err != nil {
		return nil, err
	}
	docs, err := t.svc.Documents.List(ctx)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, doc := range docs {
		if doc.Status == want {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (t *Tools) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := t.svc.Documents.Get(ctx, id)
	if err != nil {
		return toolError("get_document", err), nil
	}
	return jsonResult(newDocumentView(*doc))
}

func (t *Tools) approveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.review(ctx, req, "approve_document", t.svc.Reviewer.Approve)
}

func (t *Tools) rejectDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.review(ctx, req, "reject_document", t.svc.Reviewer.Reject)
}

func (t *Tools) review(
	ctx context.Context,
	req mcp.CallToolRequest,
	tool string,
	decide func(ctx context.Context, documentID, reviewer, notes string) (*domain.Document, error),
) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := decide(ctx, id, req.GetString("reviewer", ""), req.GetString("notes", ""))
	if err != nil {
		return toolError(tool, err), nil
	}
	slog.Info("mcp_review", "tool", tool, "document_id", id, "status", doc.Status)
	return jsonResult(newDocumentView(*doc))
}

func (t *Tools) listAudit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 0)

	var (
		entries any
		err     error
	)
	switch log := req.GetString("log", ""); log {
	case "events":
		entries, err = t.svc.Audit.ListAudit(ctx, limit)
	case "decisions":
		entries, err = t.svc.Audit.ListDecisions(ctx, limit)
	case "compliance":
		entries, err = t.svc.Audit.ListCompliance(ctx, limit)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown log %q: want events, decisions or compliance", log)), nil
	}
	if err != nil {
		return toolError("list_audit", err), nil
	}
	return jsonResult(entries)
}

func (t *Tools) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.svc.Documents.Stats(ctx)
	if err != nil {
		return toolError("get_stats", err), nil
	}
	return jsonResult(stats)
}

func (t *Tools) getPipelineRun(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, ok := t.svc.Pipeline.Snapshot(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("pipeline run %s not found", id)), nil
	}
	return jsonResult(run)
}

// toolError reports domain failures as tool-level errors so the client sees
// the reason instead of a protocol error.
func toolError(tool string, err error) *mcp.CallToolResult {
	if !domain.IsKind(err, domain.ErrInvalidTransition) && !domain.IsKind(err, domain.ErrDocumentNotFound) &&
		!domain.IsKind(err, domain.ErrInvalidInput) {
		slog.Error("mcp_tool_failed", "tool", tool, "error", err)
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
