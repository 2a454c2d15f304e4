package usecase

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
)

const (
	minFieldConfidence = 0.6
	maxFieldConfidence = 0.99

	DefaultConfidenceVariance = 0.15
)

// FieldExtractor simulates type-specific field extraction. All randomness
// comes from rng, so a seeded source makes it deterministic.
type FieldExtractor struct {
	rng      ports.RandomSource
	now      ports.Clock
	variance float64

	mu          sync.Mutex
	nextInvoice int
}

func NewFieldExtractor(rng ports.RandomSource, now ports.Clock, variance float64) *FieldExtractor {
	if now == nil {
		now = time.Now
	}
	if variance <= 0 {
		variance = DefaultConfidenceVariance
	}
	return &FieldExtractor{
		rng:         rng,
		now:         now,
		variance:    variance,
		nextInvoice: 1000 + rng.IntN(9000),
	}
}

// DetectType guesses the document type from the file extension.
func (e *FieldExtractor) DetectType(fileName string) domain.DocumentType {
	switch strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".") {
	case "pdf":
		e.mu.Lock()
		coin := e.rng.Float64()
		e.mu.Unlock()
		if coin > 0.5 {
			return domain.TypeInvoice
		}
		return domain.TypeContract
	case "xls", "xlsx":
		return domain.TypeCSV
	case "eml":
		return domain.TypeEmail
	default:
		return domain.TypeInvoice
	}
}

// Extract produces the field map for docType. baseline is the fraction every
// field confidence is sampled around.
func (e *FieldExtractor) Extract(fileName string, docType domain.DocumentType, baseline float64) (map[string]domain.Field, error) {
	if !docType.Valid() {
		return nil, domain.WrapError(domain.ErrExtractionUnavailable, "extract fields", fmt.Errorf("no template for type %q (%s)", docType, fileName))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	field := func(value any, source string) domain.Field {
		return domain.Field{Value: value, Confidence: e.confidence(baseline), Source: source}
	}
	now := e.now().UTC()

	switch docType {
	case domain.TypeInvoice:
		e.nextInvoice++
		return map[string]domain.Field{
			"vendor":    field("TechCorp Solutions Inc.", "Entity Recognition"),
			"total":     field(roundCents(e.rng.Float64()*10000+500), "OCR + Validation"),
			"invoiceNo": field(fmt.Sprintf("INV-%d", e.nextInvoice), "Pattern Recognition"),
			"dueDate":   field(now.Add(time.Duration(e.rng.Float64()*60*24)*time.Hour).Format(time.DateOnly), "Date Parser"),
			"currency":  field("USD", "Currency Detector"),
			"taxAmount": field(roundCents(e.rng.Float64()*1000+50), "Tax Calculator"),
		}, nil
	case domain.TypeContract:
		return map[string]domain.Field{
			"contractType": field("Service Agreement", "Document Classifier"),
			"parties":      field("Company A & Company B", "Entity Extraction"),
			"startDate":    field(now.Format(time.DateOnly), "Date Parser"),
			"endDate":      field(now.AddDate(1, 0, 0).Format(time.DateOnly), "Date Parser"),
			"value":        field(e.rng.IntN(100000)+10000, "Financial Extraction"),
			"terms":        field("30 days net payment", "Terms Extractor"),
		}, nil
	case domain.TypeEmail:
		return map[string]domain.Field{
			"sender":         field("john.doe@supplier.com", "Email Parser"),
			"subject":        field("Invoice Submission - Urgent", "Text Analysis"),
			"priority":       field("High", "Priority Classifier"),
			"attachments":    field("2 files", "Attachment Analyzer"),
			"actionRequired": field("Payment Processing", "Intent Recognition"),
		}, nil
	default:
		return map[string]domain.Field{
			"documentType": field(string(docType), "Document Classifier"),
			"content":      field("Mixed content detected", "Content Analyzer"),
		}, nil
	}
}

// confidence samples baseline +/- variance/2 and clamps it to the band the
// simulated models report.
func (e *FieldExtractor) confidence(baseline float64) float64 {
	c := baseline + (e.rng.Float64()-0.5)*e.variance
	return math.Max(minFieldConfidence, math.Min(maxFieldConfidence, c))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// summarizeFields renders "key: value" pairs in key order.
func summarizeFields(fields map[string]domain.Field) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, fields[k].Value))
	}
	return strings.Join(parts, ", ")
}

// SimulateUsage returns plausible model token counts for one extraction.
func (e *FieldExtractor) SimulateUsage() (inputTokens, outputTokens int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.IntN(3000) + 1000, e.rng.IntN(500) + 100
}

// SimulateProcessingTime returns the reported model latency in seconds.
func (e *FieldExtractor) SimulateProcessingTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return math.Round((2.1+e.rng.Float64()*3)*10) / 10
}
