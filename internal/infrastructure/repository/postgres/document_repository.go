package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/resilience"
)

type DocumentRepository struct {
	db   *sql.DB
	exec *resilience.Executor
}

// NewDocumentRepository runs every statement through exec; a nil exec runs
// each statement once.
func NewDocumentRepository(db *sql.DB, exec *resilience.Executor) *DocumentRepository {
	return &DocumentRepository{db: db, exec: exec}
}

const documentColumns = `id, doc_type, filename, storage_path, status, fields, model, confidence_baseline, processing_time, source, inspection, uploaded_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	fieldsJSON, inspectionJSON, err := marshalExtraction(doc.Fields, doc.Inspection)
	if err != nil {
		return err
	}

	return r.exec.Do(ctx, "postgres.documents.create", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
			doc.ID, string(doc.Type), doc.FileName, doc.StoragePath, string(doc.Status), fieldsJSON,
			doc.Model, doc.ConfidenceBaseline, doc.ProcessingTime, doc.Source, inspectionJSON, doc.UploadedAt, doc.UpdatedAt,
		)
		if err != nil {
			return markTransient("insert document", fmt.Errorf("insert document: %w", err))
		}
		return nil
	})
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return resilience.Query(ctx, r.exec, "postgres.documents.get", func(ctx context.Context) (*domain.Document, error) {
		row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

		doc, err := scanDocument(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
			}
			return nil, markTransient("get document", err)
		}
		return &doc, nil
	})
}

func (r *DocumentRepository) List(ctx context.Context) ([]domain.Document, error) {
	return resilience.Query(ctx, r.exec, "postgres.documents.list", func(ctx context.Context) ([]domain.Document, error) {
		rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
ORDER BY seq DESC
`)
		if err != nil {
			return nil, markTransient("list documents", fmt.Errorf("list documents: %w", err))
		}
		defer rows.Close()

		out := make([]domain.Document, 0)
		for rows.Next() {
			doc, err := scanDocument(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, doc)
		}
		if err := rows.Err(); err != nil {
			return nil, markTransient("list documents", fmt.Errorf("iterate documents: %w", err))
		}
		return out, nil
	})
}

func (r *DocumentRepository) TransitionStatus(ctx context.Context, id string, from, to domain.DocumentStatus) error {
	return r.exec.Do(ctx, "postgres.documents.transition", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
`, id, string(from), string(to), time.Now().UTC())
		if err != nil {
			return markTransient("update document status", fmt.Errorf("update document status: %w", err))
		}
		return r.checkAffected(ctx, res, "update document status", id, from)
	})
}

func (r *DocumentRepository) SaveExtraction(ctx context.Context, id string, from domain.DocumentStatus, ext domain.Extraction) error {
	fieldsJSON, inspectionJSON, err := marshalExtraction(ext.Fields, ext.Inspection)
	if err != nil {
		return err
	}
	return r.exec.Do(ctx, "postgres.documents.save_extraction", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, doc_type = $4, fields = $5, model = $6, processing_time = $7, inspection = $8, updated_at = $9
WHERE id = $1 AND status = $2
`, id, string(from), string(domain.StatusExtracted), string(ext.Type), fieldsJSON, ext.Model, ext.ProcessingTime, inspectionJSON, time.Now().UTC())
		if err != nil {
			return markTransient("save extraction", fmt.Errorf("save extraction: %w", err))
		}
		return r.checkAffected(ctx, res, "save extraction", id, from)
	})
}

// Delete removes a document that never became visible to reviewers. Deleting
// a missing id is not an error.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	return r.exec.Do(ctx, "postgres.documents.delete", func(ctx context.Context) error {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
			return markTransient("delete document", fmt.Errorf("delete document: %w", err))
		}
		return nil
	})
}

// checkAffected turns a zero-row compare-and-set update into either
// ErrDocumentNotFound or ErrInvalidTransition.
func (r *DocumentRepository) checkAffected(ctx context.Context, res sql.Result, op, id string, from domain.DocumentStatus) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrDocumentNotFound, op, fmt.Errorf("id=%s", id))
		}
		return markTransient(op, fmt.Errorf("%s: read current status: %w", op, err))
	}
	return domain.WrapError(domain.ErrInvalidTransition, op, fmt.Errorf("id=%s expected status %s, found %s", id, from, current))
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		doc           domain.Document
		docType       string
		status        string
		fieldsRaw     []byte
		inspectionRaw []byte
	)
	err := row.Scan(
		&doc.ID, &docType, &doc.FileName, &doc.StoragePath, &status, &fieldsRaw,
		&doc.Model, &doc.ConfidenceBaseline, &doc.ProcessingTime, &doc.Source, &inspectionRaw, &doc.UploadedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, err
		}
		return domain.Document{}, fmt.Errorf("scan document: %w", err)
	}
	doc.Type = domain.DocumentType(docType)
	doc.Status = domain.DocumentStatus(status)

	if len(fieldsRaw) > 0 {
		if err := json.Unmarshal(fieldsRaw, &doc.Fields); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	if len(inspectionRaw) > 0 {
		var insp domain.Inspection
		if err := json.Unmarshal(inspectionRaw, &insp); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal inspection: %w", err)
		}
		doc.Inspection = &insp
	}
	return doc, nil
}

func marshalExtraction(fields map[string]domain.Field, inspection *domain.Inspection) ([]byte, []byte, error) {
	if fields == nil {
		fields = map[string]domain.Field{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal fields: %w", err)
	}
	if inspection == nil {
		return fieldsJSON, nil, nil
	}
	inspectionJSON, err := json.Marshal(inspection)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal inspection: %w", err)
	}
	return fieldsJSON, inspectionJSON, nil
}
