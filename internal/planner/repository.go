package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cashplan-fin/cashplan-fin/internal/creditors"
	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/suppliers"
	"github.com/cashplan-fin/cashplan-fin/internal/platform/db"
	"github.com/cashplan-fin/cashplan-fin/internal/rules"
)

// Snapshot is the consistent input state of one generation run, read in a
// single repeatable-read transaction.
type Snapshot struct {
	Suppliers []suppliers.Supplier
	Creditors []creditors.Creditor
	Effects   []rules.PolicyEffect
	Entries   []PlanEntry
}

// Repository persists payment plans and reads run snapshots.
type Repository interface {
	Snapshot(ctx context.Context, dueBefore time.Time) (Snapshot, error)
	ReplaceGenerated(ctx context.Context, runID uuid.UUID, entries []PlanEntry) error
	ListEntries(ctx context.Context) ([]PlanEntry, error)
	OverrideEntry(ctx context.Context, entry PlanEntry) (PlanEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const planColumns = `id, creditor_id, scheduled_date, amount::text, COALESCE(note, ''), source, deficit_flag, run_id, created_at`

func scanEntry(row pgx.Row) (PlanEntry, error) {
	var (
		e      PlanEntry
		amount string
		source string
	)
	if err := row.Scan(&e.ID, &e.CreditorID, &e.ScheduledDate, &amount, &e.Note, &source, &e.DeficitFlag, &e.RunID, &e.CreatedAt); err != nil {
		return PlanEntry{}, err
	}
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return PlanEntry{}, fmt.Errorf("planner: parse amount: %w", err)
	}
	e.Amount = dec
	e.Source = Source(source)
	return e, nil
}

// Snapshot reads suppliers, outstanding payables falling due before the
// horizon end, applied rule effects and the current plan inside one
// repeatable-read transaction, so a concurrent rule submission or forecast
// refresh never interleaves mid-run.
func (r *repository) Snapshot(ctx context.Context, dueBefore time.Time) (Snapshot, error) {
	var snap Snapshot
	err := db.WithReadTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		if snap.Suppliers, err = snapshotSuppliers(ctx, tx); err != nil {
			return fmt.Errorf("planner: snapshot suppliers: %w", err)
		}
		if snap.Creditors, err = snapshotCreditors(ctx, tx, dueBefore); err != nil {
			return fmt.Errorf("planner: snapshot creditors: %w", err)
		}
		if snap.Effects, err = snapshotEffects(ctx, tx); err != nil {
			return fmt.Errorf("planner: snapshot rule effects: %w", err)
		}
		if snap.Entries, err = listEntries(ctx, tx); err != nil {
			return fmt.Errorf("planner: snapshot plan entries: %w", err)
		}
		return nil
	})
	return snap, err
}

func snapshotSuppliers(ctx context.Context, tx pgx.Tx) ([]suppliers.Supplier, error) {
	rows, err := tx.Query(ctx, `SELECT id, name, type, max_delay_days, created_at, updated_at FROM suppliers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []suppliers.Supplier
	for rows.Next() {
		var s suppliers.Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.MaxDelayDays, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func snapshotCreditors(ctx context.Context, tx pgx.Tx, dueBefore time.Time) ([]creditors.Creditor, error) {
	rows, err := tx.Query(ctx,
		`SELECT c.id, c.supplier_id, s.name, c.invoice_date, c.due_date, c.amount::text, c.aging_days, c.status, c.created_at, c.updated_at
		 FROM creditors c JOIN suppliers s ON s.id = c.supplier_id
		 WHERE c.status = $1 AND c.due_date <= $2
		 ORDER BY c.id`, string(creditors.StatusPayment), dueBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []creditors.Creditor
	for rows.Next() {
		var (
			c      creditors.Creditor
			amount string
			status string
		)
		if err := rows.Scan(&c.ID, &c.SupplierID, &c.SupplierName, &c.InvoiceDate, &c.DueDate, &amount, &c.AgingDays, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		dec, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		c.Amount = dec
		c.Status = creditors.CreditorStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

func snapshotEffects(ctx context.Context, tx pgx.Tx) ([]rules.PolicyEffect, error) {
	rows, err := tx.Query(ctx, `SELECT effect FROM rule_changes WHERE applied = true AND effect IS NOT NULL ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.PolicyEffect
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var effect rules.PolicyEffect
		if err := json.Unmarshal(raw, &effect); err != nil {
			return nil, err
		}
		out = append(out, effect)
	}
	return out, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listEntries(ctx context.Context, q querier) ([]PlanEntry, error) {
	rows, err := q.Query(ctx, `SELECT `+planColumns+` FROM payment_plans ORDER BY scheduled_date ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlanEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReplaceGenerated swaps the generated entry set atomically: the prior
// run's generated entries are deleted and the new set inserted in one
// transaction. Manual entries are never touched.
func (r *repository) ReplaceGenerated(ctx context.Context, runID uuid.UUID, entries []PlanEntry) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM payment_plans WHERE source = $1`, string(SourceGenerated)); err != nil {
			return fmt.Errorf("planner: delete generated entries: %w", err)
		}
		for _, e := range entries {
			_, err := tx.Exec(ctx,
				`INSERT INTO payment_plans (creditor_id, scheduled_date, amount, note, source, deficit_flag, run_id) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				e.CreditorID, e.ScheduledDate, e.Amount.String(), e.Note, string(e.Source), e.DeficitFlag, runID)
			if err != nil {
				return fmt.Errorf("planner: insert entry for creditor %d: %w", e.CreditorID, err)
			}
		}
		return nil
	})
}

func (r *repository) ListEntries(ctx context.Context) ([]PlanEntry, error) {
	return listEntries(ctx, r.db)
}

// OverrideEntry validates and stores a manual entry, deleting the
// creditor's generated entries in the same transaction; the next run
// re-derives them around the override.
func (r *repository) OverrideEntry(ctx context.Context, entry PlanEntry) (PlanEntry, error) {
	var stored PlanEntry
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var (
			cred   creditors.Creditor
			amount string
			status string
		)
		row := tx.QueryRow(ctx, `SELECT id, invoice_date, due_date, amount::text, status FROM creditors WHERE id = $1`, entry.CreditorID)
		if err := row.Scan(&cred.ID, &cred.InvoiceDate, &cred.DueDate, &amount, &status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return creditors.ErrNotFound
			}
			return fmt.Errorf("planner: load creditor: %w", err)
		}
		dec, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("planner: parse amount: %w", err)
		}
		cred.Amount = dec
		cred.Status = creditors.CreditorStatus(status)

		rows, err := tx.Query(ctx, `SELECT `+planColumns+` FROM payment_plans WHERE creditor_id = $1 ORDER BY id`, entry.CreditorID)
		if err != nil {
			return fmt.Errorf("planner: load creditor entries: %w", err)
		}
		existing, err := collectEntries(rows)
		if err != nil {
			return err
		}

		if err := validateOverride(cred, existing, entry); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM payment_plans WHERE creditor_id = $1 AND source = $2`, entry.CreditorID, string(SourceGenerated)); err != nil {
			return fmt.Errorf("planner: delete generated entries: %w", err)
		}

		stored = entry
		err = tx.QueryRow(ctx,
			`INSERT INTO payment_plans (creditor_id, scheduled_date, amount, note, source, deficit_flag) VALUES ($1, $2, $3, $4, $5, false) RETURNING id, created_at`,
			entry.CreditorID, entry.ScheduledDate, entry.Amount.String(), entry.Note, string(SourceManual)).Scan(&stored.ID, &stored.CreatedAt)
		if err != nil {
			return fmt.Errorf("planner: insert manual entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return PlanEntry{}, err
	}
	return stored, nil
}

func collectEntries(rows pgx.Rows) ([]PlanEntry, error) {
	defer rows.Close()
	var out []PlanEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
