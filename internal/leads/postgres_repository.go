package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository needs, so
// pgxmock can stand in for tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const leadColumns = "id, name, phone, course, status, ym_client_id, created_at, updated_at"

// ListExportable returns leads in an exportable status, most recently
// updated first. Ties and missing updated_at fall back to id order so
// repeated runs see the same sequence.
func (r *PostgresRepository) ListExportable(ctx context.Context) ([]Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE status = ANY($1)
		ORDER BY updated_at DESC NULLS LAST, id DESC
	`
	statuses := make([]string, len(ExportableStatuses))
	for i, s := range ExportableStatuses {
		statuses[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, query, statuses)
	if err != nil {
		return nil, fmt.Errorf("leads: select exportable failed: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// List returns leads for the admin listing, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Lead, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// GetByID fetches a single lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE id = $1
	`
	row := r.pool.QueryRow(ctx, query, id)
	var (
		lead   Lead
		status string
	)
	if err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Phone,
		&lead.Course,
		&status,
		&lead.YMClientID,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	lead.Status = Status(status)
	return &lead, nil
}

// UpdateStatus moves a lead to a new lifecycle state and bumps
// updated_at, which in turn shifts the lead's conversion timestamp.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("leads: update status failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func scanLeads(rows pgx.Rows) ([]Lead, error) {
	var out []Lead
	for rows.Next() {
		var (
			lead   Lead
			status string
		)
		if err := rows.Scan(
			&lead.ID,
			&lead.Name,
			&lead.Phone,
			&lead.Course,
			&status,
			&lead.YMClientID,
			&lead.CreatedAt,
			&lead.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		lead.Status = Status(status)
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: rows failed: %w", err)
	}
	return out, nil
}
