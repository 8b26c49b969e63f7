package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

const entryColumns = `id, provider_id, patient_id, patient_name, priority, status, arrived_at, called_at, completed_at`

func (r *PgRepository) EnsureProvider(ctx context.Context, providerID uuid.UUID) error {
	var id uuid.UUID
	err := r.q.QueryRow(ctx, `SELECT id FROM providers WHERE id = $1`, providerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProviderNotFound
		}
		return err
	}
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry

	err := row.Scan(
		&e.ID,
		&e.ProviderID,
		&e.PatientID,
		&e.PatientName,
		&e.Priority,
		&e.Status,
		&e.ArrivedAt,
		&e.CalledAt,
		&e.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	return &e, nil
}

func (r *PgRepository) CreateEntry(ctx context.Context, e *Entry) (*Entry, error) {
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO queue_entries (id, provider_id, patient_id, patient_name, priority, status, arrived_at)
		VALUES ($1, $2, $3, $4, $5, 'waiting', now())
		RETURNING `+entryColumns+`
	`, id, e.ProviderID, e.PatientID, e.PatientName, e.Priority)

	return scanEntry(row)
}

func (r *PgRepository) GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) GetServingEntry(ctx context.Context, providerID uuid.UUID) (*Entry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE provider_id = $1 AND status = 'serving'
	`, providerID)
	return scanEntry(row)
}

func (r *PgRepository) NextWaitingEntry(ctx context.Context, providerID uuid.UUID) (*Entry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE provider_id = $1 AND status = 'waiting'
		ORDER BY priority DESC, arrived_at ASC
		LIMIT 1
	`, providerID)
	return scanEntry(row)
}

func (r *PgRepository) MarkServing(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'serving',
		    called_at = now()
		WHERE id = $1
		  AND status = 'waiting'
		RETURNING `+entryColumns+`
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) MarkCompleted(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'completed',
		    completed_at = now()
		WHERE id = $1
		  AND status = 'serving'
		RETURNING `+entryColumns+`
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) ListEntries(ctx context.Context, providerID uuid.UUID) ([]Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE provider_id = $1
		  AND status IN ('waiting', 'serving')
		  AND arrived_at >= date_trunc('day', now())
		ORDER BY status ASC, priority DESC, arrived_at ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) WithProviderTx(ctx context.Context, providerID uuid.UUID, fn func(Repository) error) error {
	if r.pool == nil {
		return errors.New("nested provider transaction")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM providers WHERE id = $1 FOR UPDATE`, providerID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("lock provider row: %w", err)
	}

	if err := fn(&PgRepository{q: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
