package httpadapter

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/ai-ops-console/internal/config"
	"github.com/kirillkom/ai-ops-console/internal/core/usecase"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/catalog"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/random"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/repository/memory"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/storage/localfs"
)

// newTestServices wires the real use cases over in-memory stores with
// zero stage delays.
func newTestServices(t *testing.T) Services {
	t.Helper()

	repo := memory.NewDocumentRepository()
	audit := memory.NewAuditLog()
	storage, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	seed, err := catalog.LoadFile("", time.Now())
	if err != nil {
		t.Fatalf("catalog.LoadFile() error = %v", err)
	}

	rng := random.New(7)
	runner := usecase.NewStageRunner(rng, usecase.StageRunnerOptions{})
	registry := usecase.NewDocumentRegistry(repo, audit, usecase.RegistryOptions{PendingIncludesRejected: true})
	ingest := usecase.NewIngestDocumentUseCase(
		registry, repo, audit, storage, nil, runner,
		usecase.NewFieldExtractor(rng, nil, 0), nil,
		usecase.IngestOptions{},
	)

	return Services{
		Ingestor:  ingest,
		Documents: registry,
		Reviewer:  usecase.NewReviewUseCase(registry, audit, nil, usecase.ReviewOptions{}),
		Audit:     audit,
		Pipeline:  runner,
		Catalog:   usecase.NewCatalogUseCase(memory.NewCatalogRepository(seed.Connectors, seed.Playbooks), nil),
	}
}

func newTestHandler(t *testing.T, cfg config.Config, svc Services) http.Handler {
	t.Helper()
	handler, err := NewRouter(cfg, svc, Options{}).Handler()
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	return handler
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func multipartUpload(t *testing.T, target, fileName string, content []byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%s) error = %v", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(method, target string, payload any) *http.Request {
	var body io.Reader = http.NoBody
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (body=%q)", err, res.Body.String())
	}
}

// uploadDocument runs a synchronous upload and returns the document ID.
func uploadDocument(t *testing.T, handler http.Handler, fileName string, fields map[string]string) string {
	t.Helper()
	res := serve(handler, multipartUpload(t, "/v1/documents", fileName, []byte("payload"), fields))
	if res.Code != http.StatusCreated {
		t.Fatalf("upload expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var doc map[string]any
	decodeBody(t, res, &doc)
	id, _ := doc["id"].(string)
	if id == "" {
		t.Fatalf("upload returned no id: %+v", doc)
	}
	return id
}
