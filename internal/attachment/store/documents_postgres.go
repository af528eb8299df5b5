package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"coverline/internal/attachment/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/platform/tx"
)

// PostgresDocumentStore persists document records. File content lives in
// object storage; only the key is kept here.
type PostgresDocumentStore struct {
	db *sql.DB
}

func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

const documentColumns = `id, user_id, claim_id, document_type, file_name, file_key, uploaded_at, verified`

func (s *PostgresDocumentStore) Save(ctx context.Context, doc *models.Document) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			document_type = EXCLUDED.document_type,
			file_name = EXCLUDED.file_name,
			file_key = EXCLUDED.file_key,
			uploaded_at = EXCLUDED.uploaded_at,
			verified = EXCLUDED.verified`,
		uuid.UUID(doc.ID), uuid.UUID(doc.UserID), uuid.UUID(doc.ClaimID), string(doc.Type),
		doc.FileName, doc.FileKey, doc.UploadedAt, doc.Verified,
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (s *PostgresDocumentStore) FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, uuid.UUID(documentID))
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return d, err
}

func (s *PostgresDocumentStore) Delete(ctx context.Context, documentID id.DocumentID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, uuid.UUID(documentID))
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresDocumentStore) ListAll(ctx context.Context) ([]*models.Document, error) {
	return s.list(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY uploaded_at`)
}

func (s *PostgresDocumentStore) ListByClaim(ctx context.Context, claimID id.ClaimID) ([]*models.Document, error) {
	return s.list(ctx, `SELECT `+documentColumns+` FROM documents WHERE claim_id = $1 ORDER BY uploaded_at`, uuid.UUID(claimID))
}

func (s *PostgresDocumentStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Document, error) {
	return s.list(ctx, `SELECT `+documentColumns+` FROM documents WHERE user_id = $1 ORDER BY uploaded_at`, uuid.UUID(userID))
}

func (s *PostgresDocumentStore) list(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var (
		d       models.Document
		docID   uuid.UUID
		userID  uuid.UUID
		claimID uuid.UUID
		docType string
	)
	err := row.Scan(&docID, &userID, &claimID, &docType, &d.FileName, &d.FileKey, &d.UploadedAt, &d.Verified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.ID = id.DocumentID(docID)
	d.UserID = id.UserID(userID)
	d.ClaimID = id.ClaimID(claimID)
	d.Type = models.DocumentType(docType)
	return &d, nil
}
