package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"coverline/internal/claim/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/platform/tx"
)

// PostgresStore persists claims in PostgreSQL. The claimed_purchases table
// records every purchase that was ever claimed, so withdrawing a claim does
// not allow a second one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed claim store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const claimColumns = `id, user_id, purchase_id, status, created_at`

// CreateIfPurchaseUnclaimed reserves the purchase and inserts the claim in one
// transaction. It joins the caller's transaction when ctx carries one.
func (s *PostgresStore) CreateIfPurchaseUnclaimed(ctx context.Context, claim *models.Claim) error {
	if _, ok := tx.From(ctx); ok {
		return s.createIfUnclaimed(ctx, claim)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim tx: %w", err)
	}
	if err := s.createIfUnclaimed(tx.WithTx(ctx, sqlTx), claim); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit claim tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) createIfUnclaimed(ctx context.Context, claim *models.Claim) error {
	exec := tx.Exec(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`INSERT INTO claimed_purchases (purchase_id, claimed_at) VALUES ($1, $2) ON CONFLICT (purchase_id) DO NOTHING`,
		uuid.UUID(claim.PurchaseID), claim.CreatedAt)
	if err != nil {
		return fmt.Errorf("reserve purchase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve purchase: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return s.Save(ctx, claim)
}

func (s *PostgresStore) Save(ctx context.Context, claim *models.Claim) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		uuid.UUID(claim.ID), uuid.UUID(claim.UserID), uuid.UUID(claim.PurchaseID), string(claim.Status), claim.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1`, uuid.UUID(claimID))
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) Delete(ctx context.Context, claimID id.ClaimID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM claims WHERE id = $1`, uuid.UUID(claimID))
	if err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Claim, error) {
	return s.list(ctx, `SELECT `+claimColumns+` FROM claims ORDER BY created_at`)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Claim, error) {
	return s.list(ctx, `SELECT `+claimColumns+` FROM claims WHERE user_id = $1 ORDER BY created_at`, uuid.UUID(userID))
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.Claim, error) {
	return s.list(ctx, `SELECT `+claimColumns+` FROM claims WHERE status = $1 ORDER BY created_at`, string(status))
}

func (s *PostgresStore) ListByPurchase(ctx context.Context, purchaseID id.PurchaseID) ([]*models.Claim, error) {
	return s.list(ctx, `SELECT `+claimColumns+` FROM claims WHERE purchase_id = $1 ORDER BY created_at`, uuid.UUID(purchaseID))
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status models.Status) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM claims WHERE status = $1`, string(status))
}

func (s *PostgresStore) CountByUser(ctx context.Context, userID id.UserID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM claims WHERE user_id = $1`, uuid.UUID(userID))
}

// ClaimedPurchases reports which of purchaseIDs were ever claimed.
func (s *PostgresStore) ClaimedPurchases(ctx context.Context, purchaseIDs []id.PurchaseID) (map[id.PurchaseID]bool, error) {
	out := make(map[id.PurchaseID]bool)
	if len(purchaseIDs) == 0 {
		return out, nil
	}
	ids := lo.Map(purchaseIDs, func(p id.PurchaseID, _ int) string { return p.String() })
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT purchase_id FROM claimed_purchases WHERE purchase_id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list claimed purchases: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pid uuid.UUID
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("scan claimed purchase: %w", err)
		}
		out[id.PurchaseID(pid)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list claimed purchases: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := tx.Exec(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Claim, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Claim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(row scanner) (*models.Claim, error) {
	var (
		c          models.Claim
		claimID    uuid.UUID
		userID     uuid.UUID
		purchaseID uuid.UUID
		status     string
	)
	if err := row.Scan(&claimID, &userID, &purchaseID, &status, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	c.ID = id.ClaimID(claimID)
	c.UserID = id.UserID(userID)
	c.PurchaseID = id.PurchaseID(purchaseID)
	c.Status = models.Status(status)
	return &c, nil
}
