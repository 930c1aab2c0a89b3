// Package storage persists users, invoices and monthly aggregates in SQLite
// behind one shared connection pool.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"utilibill/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateUser registers a new account. The email must not already exist.
func (r *SQLiteRepository) CreateUser(ctx context.Context, name, email, passwordHash string) (int64, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email = ?`, email).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check existing user: %w", err)
	}
	if exists > 0 {
		return 0, core.ErrUserExists
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash) VALUES (?, ?, ?)`,
		name, email, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("user insert id: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", id)
	return id, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, address, postcode, created_at
		 FROM users WHERE email = ?`, email))
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, address, postcode, created_at
		 FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Address, &u.Postcode, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *SQLiteRepository) UpdateUserProfile(ctx context.Context, id int64, name, email, address, postcode string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, address = ?, postcode = ? WHERE id = ?`,
		name, email, address, postcode, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

// InsertInvoice writes one invoice record in a single statement. Invoices are
// insert-only; nothing here ever updates or deletes them.
func (r *SQLiteRepository) InsertInvoice(ctx context.Context, inv core.Invoice) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO invoices (
			user_id, utility_type, provider_name, account_number,
			billing_period_start, billing_period_end,
			usage_quantity, unit_type, rate_per_unit,
			subtotal_cents, markup_cents, total_cents
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.UserID, string(inv.UtilityType),
		nullString(inv.ProviderName), nullString(inv.AccountNumber),
		nullString(inv.PeriodStart), nullString(inv.PeriodEnd),
		nullDecimal(inv.Usage), inv.UnitType, nullDecimal(inv.RatePerUnit),
		nullCents(inv.Subtotal), nullCents(inv.Markup), nullCents(inv.TotalCost))
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("invoice insert id: %w", err)
	}

	slog.InfoContext(ctx, "Invoice saved",
		"invoice_id", id,
		"user_id", inv.UserID,
		"utility_type", inv.UtilityType,
		"unit_type", inv.UnitType)

	return id, nil
}

func (r *SQLiteRepository) ListInvoicesByUser(ctx context.Context, userID int64) ([]core.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, utility_type, provider_name, account_number,
		        billing_period_start, billing_period_end,
		        usage_quantity, unit_type, rate_per_unit,
		        subtotal_cents, markup_cents, total_cents, created_at
		 FROM invoices WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []core.Invoice
	for rows.Next() {
		var (
			inv                     core.Invoice
			utility                 string
			provider, account       sql.NullString
			periodStart, periodEnd  sql.NullString
			usage, rate             sql.NullString
			subtotal, markup, total sql.NullInt64
		)
		err := rows.Scan(&inv.ID, &inv.UserID, &utility, &provider, &account,
			&periodStart, &periodEnd, &usage, &inv.UnitType, &rate,
			&subtotal, &markup, &total, &inv.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.UtilityType = core.UtilityType(utility)
		inv.ProviderName = provider.String
		inv.AccountNumber = account.String
		inv.PeriodStart = periodStart.String
		inv.PeriodEnd = periodEnd.String
		if inv.Usage, err = decimalFromNull(usage); err != nil {
			return nil, fmt.Errorf("invoice %d usage: %w", inv.ID, err)
		}
		if inv.RatePerUnit, err = decimalFromNull(rate); err != nil {
			return nil, fmt.Errorf("invoice %d rate: %w", inv.ID, err)
		}
		inv.Subtotal = centsFromNull(subtotal)
		inv.Markup = centsFromNull(markup)
		inv.TotalCost = centsFromNull(total)
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}
	return invoices, nil
}

// UpsertAggregateSums inserts a monthly aggregate or, when the
// (user, year, month, unit) row already exists, overwrites only the four sum
// columns. Paid status and creation timestamp are never touched here.
func (r *SQLiteRepository) UpsertAggregateSums(ctx context.Context, agg core.MonthlyAggregate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO monthly_invoices (
			user_id, month, year, total_usage, usage_unit,
			total_cost_before_markup_cents, total_markup_cents, total_cost_with_markup_cents
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, year, month, usage_unit) DO UPDATE SET
			total_usage = excluded.total_usage,
			total_cost_before_markup_cents = excluded.total_cost_before_markup_cents,
			total_markup_cents = excluded.total_markup_cents,
			total_cost_with_markup_cents = excluded.total_cost_with_markup_cents`,
		agg.UserID, agg.Month, agg.Year, agg.TotalUsage.String(), agg.UsageUnit,
		agg.CostBefore.Cents, agg.TotalMarkup.Cents, agg.CostWith.Cents)
	if err != nil {
		return fmt.Errorf("upsert monthly aggregate: %w", err)
	}
	return nil
}

// GetAggregate fetches the one aggregate for a (user, year, month, unit) key.
func (r *SQLiteRepository) GetAggregate(ctx context.Context, userID int64, year, month int, unit string) (*core.MonthlyAggregate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, month, year, total_usage, usage_unit,
		        total_cost_before_markup_cents, total_markup_cents, total_cost_with_markup_cents,
		        paid_status, created_at
		 FROM monthly_invoices
		 WHERE user_id = ? AND year = ? AND month = ? AND usage_unit = ?`,
		userID, year, month, unit)

	agg, err := scanAggregate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// GetAggregateByID fetches one aggregate by row id.
func (r *SQLiteRepository) GetAggregateByID(ctx context.Context, aggregateID int64) (*core.MonthlyAggregate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, month, year, total_usage, usage_unit,
		        total_cost_before_markup_cents, total_markup_cents, total_cost_with_markup_cents,
		        paid_status, created_at
		 FROM monthly_invoices
		 WHERE id = ?`, aggregateID)

	agg, err := scanAggregate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", core.ErrAggregateNotFound, aggregateID)
	}
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// ListAggregatesByUser returns the monthly ledger, most recent period first.
func (r *SQLiteRepository) ListAggregatesByUser(ctx context.Context, userID int64) ([]core.MonthlyAggregate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, month, year, total_usage, usage_unit,
		        total_cost_before_markup_cents, total_markup_cents, total_cost_with_markup_cents,
		        paid_status, created_at
		 FROM monthly_invoices
		 WHERE user_id = ?
		 ORDER BY year DESC, month DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list monthly aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []core.MonthlyAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows.Scan)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, *agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly aggregates: %w", err)
	}
	return aggs, nil
}

// MarkAggregatePaid flips an aggregate to paid. The transition is monotone:
// there is no statement anywhere that sets paid_status back to unpaid.
func (r *SQLiteRepository) MarkAggregatePaid(ctx context.Context, aggregateID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE monthly_invoices SET paid_status = 'paid' WHERE id = ?`, aggregateID)
	if err != nil {
		return fmt.Errorf("mark aggregate paid: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", core.ErrAggregateNotFound, aggregateID)
	}

	slog.InfoContext(ctx, "Monthly aggregate marked paid", "aggregate_id", aggregateID)
	return nil
}

func scanAggregate(scan func(dest ...any) error) (*core.MonthlyAggregate, error) {
	var (
		agg    core.MonthlyAggregate
		usage  string
		status string
	)
	err := scan(&agg.ID, &agg.UserID, &agg.Month, &agg.Year, &usage, &agg.UsageUnit,
		&agg.CostBefore.Cents, &agg.TotalMarkup.Cents, &agg.CostWith.Cents,
		&status, &agg.CreatedAt)
	if err != nil {
		return nil, err
	}
	total, err := decimal.NewFromString(usage)
	if err != nil {
		return nil, fmt.Errorf("aggregate %d total usage: %w", agg.ID, err)
	}
	agg.TotalUsage = total
	agg.PaidStatus = core.PaymentStatus(status)
	return &agg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullCents(m *core.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Cents, Valid: true}
}

func decimalFromNull(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func centsFromNull(n sql.NullInt64) *core.Money {
	if !n.Valid {
		return nil
	}
	return &core.Money{Cents: n.Int64}
}
