package inspector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
)

const defaultMaxBytes = 32 << 20

// Inspector probes stored uploads for basic structural facts (page count,
// sheet names, line count) shown alongside the simulated extraction.
type Inspector struct {
	storage  ports.ObjectStorage
	maxBytes int64
}

func New(storage ports.ObjectStorage, maxBytes int64) *Inspector {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Inspector{storage: storage, maxBytes: maxBytes}
}

func (i *Inspector) Inspect(ctx context.Context, doc *domain.Document) (*domain.Inspection, error) {
	reader, err := i.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, i.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > i.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "inspect document", fmt.Errorf("%s exceeds %d bytes", doc.FileName, i.maxBytes))
	}

	out := &domain.Inspection{SizeBytes: int64(len(raw))}
	switch strings.ToLower(filepath.Ext(doc.FileName)) {
	case ".pdf":
		pages, err := countPDFPages(raw)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "inspect pdf", err)
		}
		out.Pages = pages
	case ".xlsx", ".xls":
		sheets, err := listSheets(raw)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "inspect workbook", err)
		}
		out.Sheets = sheets
	default:
		if utf8.Valid(raw) {
			out.Lines = countLines(raw)
		}
	}
	return out, nil
}

// countPDFPages recovers from parser panics, which ledongthuc/pdf raises on
// some malformed cross-reference tables.
func countPDFPages(raw []byte) (pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	return r.NumPage(), nil
}

func listSheets(raw []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func countLines(raw []byte) int {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}
