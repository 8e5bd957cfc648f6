// Package stats keeps rolling per-product sales counters and the jobs that
// reset them at the start of each day, week and month.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/database"
)

// Period is a counter window
type Period string

const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
)

// Periods lists every counter window
var Periods = []Period{Day, Week, Month}

// ErrUnknownPeriod is returned for a period outside Periods
var ErrUnknownPeriod = errors.New("unknown stats period")

// ErrNotFound is returned when a product has no counters yet
var ErrNotFound = errors.New("product stats not found")

// columns returns the counter and reset timestamp columns for p
func (p Period) columns() (counter, resetAt string, err error) {
	switch p {
	case Day:
		return "sold_day", "day_reset_at", nil
	case Week:
		return "sold_week", "week_reset_at", nil
	case Month:
		return "sold_month", "month_reset_at", nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnknownPeriod, string(p))
}

// ProductStats are the sales counters of one product
type ProductStats struct {
	ProductID    string     `json:"product_id"`
	SoldDay      int64      `json:"sold_day"`
	SoldWeek     int64      `json:"sold_week"`
	SoldMonth    int64      `json:"sold_month"`
	SoldTotal    int64      `json:"sold_total"`
	DayResetAt   *time.Time `json:"day_reset_at,omitempty"`
	WeekResetAt  *time.Time `json:"week_reset_at,omitempty"`
	MonthResetAt *time.Time `json:"month_reset_at,omitempty"`
}

// Repository handles product_stats persistence
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new stats repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "product_stats").Logger(),
	}
}

// RecordSale adds qty to every counter of productID
func (r *Repository) RecordSale(ctx context.Context, productID string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("sale quantity must be positive, got %d", qty)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO product_stats (product_id, sold_day, sold_week, sold_month, sold_total)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			sold_day = sold_day + excluded.sold_day,
			sold_week = sold_week + excluded.sold_week,
			sold_month = sold_month + excluded.sold_month,
			sold_total = sold_total + excluded.sold_total`,
		productID, qty, qty, qty, qty,
	)
	if err != nil {
		return fmt.Errorf("failed to record sale of %s: %w", productID, err)
	}
	return nil
}

// Get returns the counters of productID
func (r *Repository) Get(ctx context.Context, productID string) (*ProductStats, error) {
	var (
		s                               ProductStats
		dayReset, weekReset, monthReset sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT product_id, sold_day, sold_week, sold_month, sold_total,
			day_reset_at, week_reset_at, month_reset_at
		FROM product_stats WHERE product_id = ?`, productID).Scan(
		&s.ProductID, &s.SoldDay, &s.SoldWeek, &s.SoldMonth, &s.SoldTotal,
		&dayReset, &weekReset, &monthReset,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats of %s: %w", productID, err)
	}
	s.DayResetAt = database.NullTime(dayReset)
	s.WeekResetAt = database.NullTime(weekReset)
	s.MonthResetAt = database.NullTime(monthReset)
	return &s, nil
}

// Reset zeroes the period's counter on every product and stamps the reset time.
// Returns the number of products whose counter was non-zero.
func (r *Repository) Reset(ctx context.Context, p Period, at time.Time) (int64, error) {
	counter, resetAt, err := p.columns()
	if err != nil {
		return 0, err
	}

	var changed int64
	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM product_stats WHERE "+counter+" != 0").Scan(&changed); err != nil {
			return fmt.Errorf("failed to count %s counters: %w", p, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE product_stats SET "+counter+" = 0, "+resetAt+" = ?", at.Unix()); err != nil {
			return fmt.Errorf("failed to reset %s counters: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
