package creditors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/shared"
)

// Repository provides access to creditor records.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Creditor, int, error)
	Get(ctx context.Context, id int64) (Creditor, error)
	ListOutstanding(ctx context.Context) ([]Creditor, error)
	Insert(ctx context.Context, records []Creditor) (int, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const creditorColumns = `c.id, c.supplier_id, s.name, c.invoice_date, c.due_date, c.amount::text, c.aging_days, c.status, c.created_at, c.updated_at`

func scanCreditor(row pgx.Row) (Creditor, error) {
	var (
		c      Creditor
		amount string
		status string
	)
	if err := row.Scan(&c.ID, &c.SupplierID, &c.SupplierName, &c.InvoiceDate, &c.DueDate, &amount, &c.AgingDays, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Creditor{}, err
	}
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Creditor{}, fmt.Errorf("creditors: parse amount: %w", err)
	}
	c.Amount = dec
	c.Status = CreditorStatus(status)
	return c, nil
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Creditor, int, error) {
	query := `SELECT ` + creditorColumns + ` FROM creditors c JOIN suppliers s ON s.id = c.supplier_id WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		query += ` AND s.name ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Search+"%")
	}

	countQuery := `SELECT COUNT(*) FROM creditors c JOIN suppliers s ON s.id = c.supplier_id WHERE 1=1`
	countArgs := []interface{}{}
	if filters.Search != "" {
		countQuery += ` AND s.name ILIKE $1`
		countArgs = append(countArgs, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY c.due_date ASC, c.id ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Creditor
	for rows.Next() {
		c, err := scanCreditor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Creditor, error) {
	row := r.db.QueryRow(ctx, `SELECT `+creditorColumns+` FROM creditors c JOIN suppliers s ON s.id = c.supplier_id WHERE c.id = $1`, id)
	c, err := scanCreditor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Creditor{}, ErrNotFound
	}
	return c, err
}

func (r *repository) ListOutstanding(ctx context.Context) ([]Creditor, error) {
	rows, err := r.db.Query(ctx, `SELECT `+creditorColumns+` FROM creditors c JOIN suppliers s ON s.id = c.supplier_id WHERE c.status = $1 ORDER BY c.id`, string(StatusPayment))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Creditor
	for rows.Next() {
		c, err := scanCreditor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Insert(ctx context.Context, records []Creditor) (int, error) {
	inserted := 0
	now := time.Now()
	for _, c := range records {
		_, err := r.db.Exec(ctx,
			`INSERT INTO creditors (supplier_id, invoice_date, due_date, amount, aging_days, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.SupplierID, c.InvoiceDate, c.DueDate, c.Amount.String(), c.AgingDays, string(c.Status), now, now)
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
