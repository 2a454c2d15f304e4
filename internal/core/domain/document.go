package domain

import (
	"fmt"
	"time"
)

type DocumentType string

const (
	TypeInvoice       DocumentType = "invoice"
	TypePurchaseOrder DocumentType = "purchase-order"
	TypeEmail         DocumentType = "email"
	TypeCSV           DocumentType = "csv"
	TypePDF           DocumentType = "pdf"
	TypeExcel         DocumentType = "excel"
	TypeContract      DocumentType = "contract"
	TypeReceipt       DocumentType = "receipt"
)

var documentTypes = map[DocumentType]struct{}{
	TypeInvoice:       {},
	TypePurchaseOrder: {},
	TypeEmail:         {},
	TypeCSV:           {},
	TypePDF:           {},
	TypeExcel:         {},
	TypeContract:      {},
	TypeReceipt:       {},
}

func (t DocumentType) Valid() bool {
	_, ok := documentTypes[t]
	return ok
}

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusExtracted  DocumentStatus = "extracted"
	StatusApproved   DocumentStatus = "approved"
	StatusRejected   DocumentStatus = "rejected"
)

// allowedTransitions lists every legal status change. Approved and rejected
// have no outgoing edges.
var allowedTransitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:    {StatusProcessing, StatusExtracted, StatusRejected},
	StatusProcessing: {StatusExtracted, StatusPending, StatusRejected},
	StatusExtracted:  {StatusApproved, StatusRejected},
	StatusApproved:   nil,
	StatusRejected:   nil,
}

func (s DocumentStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

func (s DocumentStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseDocumentStatus validates a status coming from outside the core.
func ParseDocumentStatus(raw string) (DocumentStatus, error) {
	status := DocumentStatus(raw)
	if !status.Valid() {
		return "", WrapError(ErrInvalidTransition, "parse status", fmt.Errorf("unknown status %q", raw))
	}
	return status, nil
}

// ValidateTransition reports whether a document may move from one status to
// another. Re-applying a non-terminal status is accepted as a no-op.
func ValidateTransition(from, to DocumentStatus) error {
	if !to.Valid() {
		return WrapError(ErrInvalidTransition, "validate transition", fmt.Errorf("unknown status %q", to))
	}
	if from.Terminal() {
		return WrapError(ErrInvalidTransition, "validate transition", fmt.Errorf("document is already %s", from))
	}
	if from == to {
		return nil
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return WrapError(ErrInvalidTransition, "validate transition", fmt.Errorf("%s -> %s is not allowed", from, to))
}

// Field is one extracted datum. Confidence is a fraction in [0,1].
type Field struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

// Inspection holds what the file probe learned about the stored upload.
type Inspection struct {
	SizeBytes int64    `json:"size_bytes"`
	Pages     int      `json:"pages,omitempty"`
	Sheets    []string `json:"sheets,omitempty"`
	Lines     int      `json:"lines,omitempty"`
}

// Document is one uploaded file. ConfidenceBaseline is the fraction its field
// confidences are sampled around, fixed at upload time.
type Document struct {
	ID                 string           `json:"id"`
	Type               DocumentType     `json:"type"`
	FileName           string           `json:"file_name"`
	StoragePath        string           `json:"storage_path,omitempty"`
	UploadedAt         time.Time        `json:"uploaded_at"`
	Status             DocumentStatus   `json:"status"`
	Fields             map[string]Field `json:"fields,omitempty"`
	Model              string           `json:"model,omitempty"`
	ConfidenceBaseline float64          `json:"confidence_baseline,omitempty"`
	ProcessingTime     float64          `json:"processing_time,omitempty"`
	Source             string           `json:"source,omitempty"`
	Inspection         *Inspection      `json:"inspection,omitempty"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Extraction is the outcome of one pipeline run, applied to a document when it
// reaches the extracted status.
type Extraction struct {
	Type           DocumentType
	Fields         map[string]Field
	Model          string
	ProcessingTime float64
	Inspection     *Inspection
}

func (d *Document) ApplyExtraction(ext Extraction) {
	d.Type = ext.Type
	d.Fields = ext.Fields
	d.Model = ext.Model
	d.ProcessingTime = ext.ProcessingTime
	if ext.Inspection != nil {
		d.Inspection = ext.Inspection
	}
}

// Clone returns a copy that shares no mutable state with d.
func (d Document) Clone() Document {
	out := d
	if d.Fields != nil {
		out.Fields = make(map[string]Field, len(d.Fields))
		for k, v := range d.Fields {
			out.Fields[k] = v
		}
	}
	if d.Inspection != nil {
		insp := *d.Inspection
		insp.Sheets = append([]string(nil), d.Inspection.Sheets...)
		out.Inspection = &insp
	}
	return out
}
