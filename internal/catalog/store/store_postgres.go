package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"coverline/internal/catalog/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/platform/tx"
)

// PostgresStore persists catalog policies in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const policyColumns = `id, name, type, premium, tenure_months, coverage, active, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, policy *models.Policy) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO catalog_policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			premium = EXCLUDED.premium,
			tenure_months = EXCLUDED.tenure_months,
			coverage = EXCLUDED.coverage,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		uuid.UUID(policy.ID), policy.Name, policy.Type, policy.Premium, policy.TenureMonths,
		policy.Coverage, policy.Active, policy.CreatedAt, policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save catalog policy: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM catalog_policies WHERE id = $1`, uuid.UUID(policyID))
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return p, err
}

// List applies the optional type and active filters in SQL. An empty type or
// a NULL active flag disables that condition.
func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.Policy, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+policyColumns+` FROM catalog_policies
		WHERE ($1 = '' OR LOWER(type) = LOWER($1))
		  AND ($2::BOOLEAN IS NULL OR active = $2)
		ORDER BY created_at, name`,
		filter.Type, filter.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("list catalog policies: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Policy, 0)
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list catalog policies: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, policyID id.PolicyID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM catalog_policies WHERE id = $1`, uuid.UUID(policyID))
	if err != nil {
		return fmt.Errorf("delete catalog policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete catalog policy: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row scanner) (*models.Policy, error) {
	var (
		p        models.Policy
		policyID uuid.UUID
	)
	err := row.Scan(&policyID, &p.Name, &p.Type, &p.Premium, &p.TenureMonths,
		&p.Coverage, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan catalog policy: %w", err)
	}
	p.ID = id.PolicyID(policyID)
	return &p, nil
}
