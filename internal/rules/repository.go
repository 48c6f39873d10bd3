package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides access to rule_changes rows.
type Repository interface {
	Insert(ctx context.Context, text string) (RuleChange, error)
	Get(ctx context.Context, id int64) (RuleChange, error)
	List(ctx context.Context, limit, offset int) ([]RuleChange, int, error)
	ListPending(ctx context.Context) ([]RuleChange, error)
	ListAppliedEffects(ctx context.Context) ([]PolicyEffect, error)
	MarkApplied(ctx context.Context, id int64, effect PolicyEffect, at time.Time) error
	RecordError(ctx context.Context, id int64, msg string) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const ruleColumns = `id, nl_text, applied, effect, last_error, created_at, applied_at`

func scanRule(row pgx.Row) (RuleChange, error) {
	var (
		rc        RuleChange
		effectRaw []byte
	)
	if err := row.Scan(&rc.ID, &rc.Text, &rc.Applied, &effectRaw, &rc.LastError, &rc.CreatedAt, &rc.AppliedAt); err != nil {
		return RuleChange{}, err
	}
	if len(effectRaw) > 0 {
		var effect PolicyEffect
		if err := json.Unmarshal(effectRaw, &effect); err != nil {
			return RuleChange{}, fmt.Errorf("rules: decode effect: %w", err)
		}
		rc.Effect = &effect
	}
	return rc, nil
}

func (r *repository) Insert(ctx context.Context, text string) (RuleChange, error) {
	rc := RuleChange{Text: text}
	err := r.db.QueryRow(ctx,
		`INSERT INTO rule_changes (nl_text, applied, last_error, created_at) VALUES ($1, false, '', NOW()) RETURNING id, created_at`,
		text).Scan(&rc.ID, &rc.CreatedAt)
	if err != nil {
		return RuleChange{}, err
	}
	return rc, nil
}

func (r *repository) Get(ctx context.Context, id int64) (RuleChange, error) {
	row := r.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM rule_changes WHERE id = $1`, id)
	rc, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RuleChange{}, ErrNotFound
	}
	return rc, err
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]RuleChange, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM rule_changes`).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `SELECT `+ruleColumns+` FROM rule_changes ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []RuleChange
	for rows.Next() {
		rc, err := scanRule(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rc)
	}
	return out, total, rows.Err()
}

func (r *repository) ListPending(ctx context.Context) ([]RuleChange, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ruleColumns+` FROM rule_changes WHERE applied = false ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuleChange
	for rows.Next() {
		rc, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *repository) ListAppliedEffects(ctx context.Context) ([]PolicyEffect, error) {
	rows, err := r.db.Query(ctx, `SELECT effect FROM rule_changes WHERE applied = true AND effect IS NOT NULL ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PolicyEffect
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var effect PolicyEffect
		if err := json.Unmarshal(raw, &effect); err != nil {
			return nil, fmt.Errorf("rules: decode effect: %w", err)
		}
		out = append(out, effect)
	}
	return out, rows.Err()
}

func (r *repository) MarkApplied(ctx context.Context, id int64, effect PolicyEffect, at time.Time) error {
	raw, err := json.Marshal(effect)
	if err != nil {
		return fmt.Errorf("rules: encode effect: %w", err)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE rule_changes SET applied = true, effect = $2, last_error = '', applied_at = $3 WHERE id = $1 AND applied = false`,
		id, raw, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) RecordError(ctx context.Context, id int64, msg string) error {
	_, err := r.db.Exec(ctx, `UPDATE rule_changes SET last_error = $2 WHERE id = $1`, id, msg)
	return err
}
