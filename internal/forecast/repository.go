package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores and retrieves forecast runs.
type Repository interface {
	Insert(ctx context.Context, run Run) (Run, error)
	Latest(ctx context.Context) (Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, run Run) (Run, error) {
	payload, err := json.Marshal(run.Balances)
	if err != nil {
		return Run{}, fmt.Errorf("forecast: encode balances: %w", err)
	}
	err = r.db.QueryRow(ctx,
		`INSERT INTO forecast_runs (run_date, horizon_days, balances) VALUES ($1, $2, $3) RETURNING id, created_at`,
		run.RunDate, run.HorizonDays, payload,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return Run{}, fmt.Errorf("forecast: insert run: %w", err)
	}
	return run, nil
}

func (r *repository) Latest(ctx context.Context) (Run, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, run_date, horizon_days, balances, created_at FROM forecast_runs ORDER BY run_date DESC, id DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrUnavailable
	}
	return run, err
}

func (r *repository) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, run_date, horizon_days, balances, created_at FROM forecast_runs ORDER BY run_date DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run     Run
		payload []byte
	)
	if err := row.Scan(&run.ID, &run.RunDate, &run.HorizonDays, &payload, &run.CreatedAt); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal(payload, &run.Balances); err != nil {
		return Run{}, fmt.Errorf("forecast: decode balances: %w", err)
	}
	return run, nil
}
