package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"coverline/internal/instrument/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/platform/tx"
)

// PostgresStore persists instruments in PostgreSQL. Kind-specific inputs and
// computed values are kept together in the details JSONB column.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed instrument store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const instrumentColumns = `id, kind, user_id, status, purchase_id, details, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, instrument *models.Instrument) error {
	details, err := json.Marshal(instrument.Details)
	if err != nil {
		return fmt.Errorf("encode instrument details: %w", err)
	}
	var purchaseID *uuid.UUID
	if instrument.PurchaseID != nil {
		p := uuid.UUID(*instrument.PurchaseID)
		purchaseID = &p
	}
	_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO instruments (`+instrumentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			purchase_id = EXCLUDED.purchase_id,
			details = EXCLUDED.details,
			updated_at = EXCLUDED.updated_at`,
		uuid.UUID(instrument.ID), string(instrument.Kind), uuid.UUID(instrument.UserID),
		string(instrument.Status), purchaseID, details, instrument.CreatedAt, instrument.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save instrument: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*models.Instrument, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+instrumentColumns+` FROM instruments WHERE id = $1 AND kind = $2`,
		uuid.UUID(instrumentID), string(kind))
	inst, err := scanInstrument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return inst, err
}

func (s *PostgresStore) ListByKind(ctx context.Context, kind id.InstrumentKind) ([]*models.Instrument, error) {
	return s.list(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE kind = $1 ORDER BY created_at`, string(kind))
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Instrument, error) {
	return s.list(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE user_id = $1 ORDER BY created_at`, uuid.UUID(userID))
}

func (s *PostgresStore) Delete(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM instruments WHERE id = $1 AND kind = $2`, uuid.UUID(instrumentID), string(kind))
	if err != nil {
		return fmt.Errorf("delete instrument: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete instrument: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Instrument, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Instrument, 0)
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstrument(row scanner) (*models.Instrument, error) {
	var (
		inst         models.Instrument
		instrumentID uuid.UUID
		userID       uuid.UUID
		kind         string
		status       string
		purchaseID   uuid.NullUUID
		details      []byte
	)
	if err := row.Scan(&instrumentID, &kind, &userID, &status, &purchaseID, &details, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan instrument: %w", err)
	}
	inst.ID = id.InstrumentID(instrumentID)
	inst.Kind = id.InstrumentKind(kind)
	inst.UserID = id.UserID(userID)
	inst.Status = models.Status(status)
	if purchaseID.Valid {
		p := id.PurchaseID(purchaseID.UUID)
		inst.PurchaseID = &p
	}
	d, err := models.UnmarshalDetails(inst.Kind, details)
	if err != nil {
		return nil, err
	}
	inst.Details = d
	return &inst, nil
}
