package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coverline/internal/purchase/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/platform/tx"
)

// PostgresStore persists purchases in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed purchase store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const purchaseColumns = `id, user_id, instrument_kind, instrument_id, purchase_date, expiry_date, status`

func (s *PostgresStore) Save(ctx context.Context, purchase *models.Purchase) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			purchase_date = EXCLUDED.purchase_date,
			expiry_date = EXCLUDED.expiry_date,
			status = EXCLUDED.status`,
		uuid.UUID(purchase.ID), uuid.UUID(purchase.UserID),
		string(purchase.Instrument.Kind), uuid.UUID(purchase.Instrument.ID),
		purchase.PurchaseDate, purchase.ExpiryDate, string(purchase.Status),
	)
	if err != nil {
		return fmt.Errorf("save purchase: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, purchaseID id.PurchaseID) (*models.Purchase, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, uuid.UUID(purchaseID))
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Purchase, error) {
	return s.list(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE user_id = $1 ORDER BY purchase_date`,
		uuid.UUID(userID))
}

func (s *PostgresStore) ListByUserAndStatus(ctx context.Context, userID id.UserID, status models.Status) ([]*models.Purchase, error) {
	return s.list(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE user_id = $1 AND status = $2 ORDER BY purchase_date`,
		uuid.UUID(userID), string(status))
}

func (s *PostgresStore) ListActiveByUser(ctx context.Context, userID id.UserID, today time.Time) ([]*models.Purchase, error) {
	return s.list(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE user_id = $1 AND status = $2 AND expiry_date >= $3 ORDER BY purchase_date`,
		uuid.UUID(userID), string(models.StatusActive), models.Day(today))
}

func (s *PostgresStore) ListExpiredByUser(ctx context.Context, userID id.UserID, today time.Time) ([]*models.Purchase, error) {
	return s.list(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE user_id = $1 AND expiry_date < $2 ORDER BY purchase_date`,
		uuid.UUID(userID), models.Day(today))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Purchase, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Purchase, 0)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row scanner) (*models.Purchase, error) {
	var (
		p            models.Purchase
		purchaseID   uuid.UUID
		userID       uuid.UUID
		kind         string
		instrumentID uuid.UUID
		status       string
	)
	if err := row.Scan(&purchaseID, &userID, &kind, &instrumentID, &p.PurchaseDate, &p.ExpiryDate, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan purchase: %w", err)
	}
	p.ID = id.PurchaseID(purchaseID)
	p.UserID = id.UserID(userID)
	p.Instrument = models.InstrumentRef{Kind: id.InstrumentKind(kind), ID: id.InstrumentID(instrumentID)}
	p.PurchaseDate = models.Day(p.PurchaseDate)
	p.ExpiryDate = models.Day(p.ExpiryDate)
	p.Status = models.Status(status)
	return &p, nil
}
