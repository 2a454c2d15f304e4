package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"
	"golang.org/x/time/rate"

	"github.com/kirillkom/ai-ops-console/internal/config"
	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
	"github.com/kirillkom/ai-ops-console/internal/observability/metrics"
)

const (
	serviceName      = "api"
	reviewerHeader   = "X-User"
	backpressureWait = 250 * time.Millisecond
	multipartMemory  = 8 << 20
)

// Services are the inbound ports the router dispatches to.
type Services struct {
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentReader
	Reviewer  ports.DocumentReviewer
	Audit     ports.AuditReader
	Pipeline  ports.PipelineTracker
	Catalog   ports.CatalogService
}

// Options carries optional observability hooks.
type Options struct {
	Metrics        *metrics.HTTPServerMetrics
	MetricsHandler http.Handler
}

type Router struct {
	cfg  config.Config
	svc  Services
	opts Options
}

func NewRouter(cfg config.Config, svc Services, opts Options) *Router {
	return &Router{cfg: cfg, svc: svc, opts: opts}
}

// Handler assembles the mux and the middleware chain. It fails only if the
// embedded OpenAPI contract is broken.
func (rt *Router) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", rt.opts.MetricsHandler)
	}

	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("POST /v1/documents/{id}/approve", rt.approveDocument)
	mux.HandleFunc("POST /v1/documents/{id}/reject", rt.rejectDocument)

	mux.HandleFunc("GET /v1/pipeline/runs/{id}", rt.getPipelineRun)
	mux.HandleFunc("DELETE /v1/pipeline/runs/{id}", rt.cancelPipelineRun)

	mux.HandleFunc("GET /v1/audit/events", rt.listAuditEvents)
	mux.HandleFunc("GET /v1/audit/decisions", rt.listDecisions)
	mux.HandleFunc("GET /v1/audit/compliance", rt.listCompliance)
	mux.HandleFunc("GET /v1/stats", rt.stats)

	mux.HandleFunc("GET /v1/connectors", rt.listConnectors)
	mux.HandleFunc("POST /v1/connectors/{id}/toggle", rt.toggleConnector)
	mux.HandleFunc("GET /v1/playbooks", rt.listPlaybooks)
	mux.HandleFunc("POST /v1/playbooks", rt.addPlaybook)

	var handler http.Handler = mux
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(serviceName, handler)
	}

	contract, err := loadOpenAPIRouter()
	if err != nil {
		return nil, err
	}
	handler = openAPIValidationMiddleware(handler, contract)
	handler = rt.trafficControl(handler)
	return requestIDMiddleware(accessLogMiddleware(handler)), nil
}

// trafficControl applies rate limiting and backpressure to /v1/ routes only,
// so health checks and scrapes are never shed.
func (rt *Router) trafficControl(next http.Handler) http.Handler {
	limited := next
	if rt.cfg.APIMaxInFlight > 0 {
		limited = backpressureMiddleware(limited, rt.cfg.APIMaxInFlight, backpressureWait, rt.recordRejected)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		burst := rt.cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst)
		limited = rateLimitMiddleware(limited, limiter, rt.recordRejected)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rt *Router) recordRejected(reason string) {
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIContract)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	var async *bool
	if err := runtime.BindQueryParameter("form", true, false, "async", r.URL.Query(), &async); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid async parameter"})
		return
	}

	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	req := ports.UploadRequest{
		FileName: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Body:     file,
		Model:    strings.TrimSpace(r.FormValue("model")),
		Source:   strings.TrimSpace(r.FormValue("source")),
	}
	if raw := strings.TrimSpace(r.FormValue("confidence_baseline")); raw != "" {
		baseline, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "confidence_baseline must be a number"})
			return
		}
		req.ConfidenceBaseline = baseline
	}

	if async != nil && *async {
		doc, err := rt.svc.Ingestor.Submit(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, newDocumentResponse(*doc))
		return
	}

	doc, err := rt.svc.Ingestor.Upload(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDocumentResponse(*doc))
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	var status *string
	if err := runtime.BindQueryParameter("form", true, false, "status", r.URL.Query(), &status); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status parameter"})
		return
	}
	limit, err := bindLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var docs []domain.Document
	switch {
	case status == nil || *status == "":
		docs, err = rt.svc.Documents.List(r.Context())
	case *status == string(domain.StatusPending):
		docs, err = rt.svc.Documents.ListPending(r.Context())
	default:
		docs, err = rt.listByStatus(r, *status)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	docs = truncate(docs, limit)
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, newDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, documentListResponse{Documents: out, Count: len(out)})
}

func (rt *Router) listByStatus(r *http.Request, raw string) ([]domain.Document, error) {
	want, err := domain.ParseDocumentStatus(raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", err)
	}
	docs, err := rt.svc.Documents.List(r.Context())
	if err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Status == want {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.svc.Documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(*doc))
}

func (rt *Router) approveDocument(w http.ResponseWriter, r *http.Request) {
	rt.review(w, r, rt.svc.Reviewer.Approve)
}

func (rt *Router) rejectDocument(w http.ResponseWriter, r *http.Request) {
	rt.review(w, r, rt.svc.Reviewer.Reject)
}

type reviewFunc func(ctx context.Context, documentID, reviewer, notes string) (*domain.Document, error)

func (rt *Router) review(w http.ResponseWriter, r *http.Request, decide reviewFunc) {
	var body reviewRequest
	if err := decodeOptionalJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	doc, err := decide(r.Context(), r.PathValue("id"), r.Header.Get(reviewerHeader), strings.TrimSpace(body.Notes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(*doc))
}

func (rt *Router) getPipelineRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, ok := rt.svc.Pipeline.Snapshot(id)
	if !ok {
		writeError(w, r, domain.WrapError(domain.ErrNotFound, "get pipeline run", fmt.Errorf("run %s", id)))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) cancelPipelineRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !rt.svc.Pipeline.Cancel(id) {
		writeError(w, r, domain.WrapError(domain.ErrNotFound, "cancel pipeline run", fmt.Errorf("no running run %s", id)))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "cancelled": true})
}

func (rt *Router) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	listLog(w, r, rt.svc.Audit.ListAudit)
}

func (rt *Router) listDecisions(w http.ResponseWriter, r *http.Request) {
	listLog(w, r, rt.svc.Audit.ListDecisions)
}

func (rt *Router) listCompliance(w http.ResponseWriter, r *http.Request) {
	listLog(w, r, rt.svc.Audit.ListCompliance)
}

func listLog[T any](w http.ResponseWriter, r *http.Request, list func(ctx context.Context, limit int) ([]T, error)) {
	limit, err := bindLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	entries, err := list(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.svc.Documents.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) listConnectors(w http.ResponseWriter, r *http.Request) {
	connectors, err := rt.svc.Catalog.ListConnectors(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connectors": connectors})
}

func (rt *Router) toggleConnector(w http.ResponseWriter, r *http.Request) {
	connector, err := rt.svc.Catalog.ToggleConnector(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, connector)
}

func (rt *Router) listPlaybooks(w http.ResponseWriter, r *http.Request) {
	playbooks, err := rt.svc.Catalog.ListPlaybooks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playbooks": playbooks})
}

func (rt *Router) addPlaybook(w http.ResponseWriter, r *http.Request) {
	var req playbookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	pb, err := rt.svc.Catalog.AddPlaybook(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pb)
}

func bindLimit(r *http.Request) (int, error) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if limit == nil {
		return 0, nil
	}
	if *limit < 0 {
		return 0, errors.New("limit must not be negative")
	}
	return *limit, nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
