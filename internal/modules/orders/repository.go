package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/database"
	"github.com/aristath/shopkeeper/internal/reconcile"
)

// transitionColumns are the only columns a reconciliation transition may write
// besides status, terminal and updated_at.
var transitionColumns = map[string]bool{
	"delivered_at": true,
	"is_paid":      true,
	"paid_at":      true,
}

const orderColumns = `id, user_id, status, payment_method, is_paid, paid_at, total_cents,
	terminal, created_at, updated_at, shipped_at, delivered_at`

// Repository handles order persistence in the shop database.
// It also implements reconcile.Store so the delivery job can scan and advance orders.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewRepository creates a new order repository.
//
// Parameters:
//   - db: Connection to the shop database
//   - log: Structured logger
//
// Returns:
//   - *Repository: Initialized repository instance
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "orders").Logger(),
		now: time.Now,
	}
}

// SetClock overrides the time source used for CRUD timestamps
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// Create inserts a new order in the placed state.
// ID, CreatedAt and UpdatedAt are filled in when empty.
//
// Parameters:
//   - ctx: Context
//   - o: Order to insert; modified in place with generated values
//
// Returns:
//   - error: Error if the insert fails
func (r *Repository) Create(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = StatusPlaced
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.now()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	o.Terminal = IsTerminal(o.Status)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, string(o.Status), o.PaymentMethod,
		database.Value(o.IsPaid), database.Value(o.PaidAt), o.TotalCents,
		database.Value(o.Terminal), database.Value(o.CreatedAt), database.Value(o.UpdatedAt),
		database.Value(o.ShippedAt), database.Value(o.DeliveredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an order by id, or ErrNotFound
func (r *Repository) GetByID(ctx context.Context, id string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return o, nil
}

// ListByStatus returns orders in the given status in insertion order
func (r *Repository) ListByStatus(ctx context.Context, status reconcile.State) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = ? ORDER BY rowid", string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s orders: %w", status, err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MarkShipped moves a placed order to shipped
func (r *Repository) MarkShipped(ctx context.Context, id string) error {
	at := r.now()
	return r.crudTransition(ctx, id, StatusPlaced, StatusShipped, reconcile.Fields{"shipped_at": at}, at)
}

// Cancel cancels a placed order
func (r *Repository) Cancel(ctx context.Context, id string) error {
	return r.crudTransition(ctx, id, StatusPlaced, StatusCancelled, nil, r.now())
}

func (r *Repository) crudTransition(ctx context.Context, id string, from, to reconcile.State, fields reconcile.Fields, at time.Time) error {
	applied, err := r.update(ctx, reconcile.Transition{
		EntityID: id,
		From:     []reconcile.State{from},
		To:       to,
		Terminal: IsTerminal(to),
		At:       at,
		Fields:   fields,
	}, map[string]bool{"shipped_at": true})
	if err != nil {
		return err
	}
	if !applied {
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: order %s is not %s", ErrInvalidTransition, id, from)
	}
	return nil
}

// FindStale implements reconcile.Store.
// Returns orders in one of q.States whose last activity is before q.InactiveBefore,
// in insertion order. Terminal orders are excluded when q.ExcludeTerminal is set.
func (r *Repository) FindStale(ctx context.Context, q reconcile.Query) ([]reconcile.Entity, error) {
	if len(q.States) == 0 {
		return []reconcile.Entity{}, nil
	}

	query := "SELECT " + orderColumns + " FROM orders WHERE status IN (" +
		database.Placeholders(len(q.States)) + ") AND updated_at < ?"
	args := make([]any, 0, len(q.States)+1)
	for _, s := range q.States {
		args = append(args, string(s))
	}
	args = append(args, q.InactiveBefore.Unix())
	if q.ExcludeTerminal {
		query += " AND terminal = 0"
	}
	query += " ORDER BY rowid"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale orders: %w", err)
	}
	defer rows.Close()

	entities := []reconcile.Entity{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		entities = append(entities, o.Entity())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale orders: %w", err)
	}
	return entities, nil
}

// Transition implements reconcile.Store with a single guarded UPDATE
func (r *Repository) Transition(ctx context.Context, t reconcile.Transition) (bool, error) {
	return r.update(ctx, t, transitionColumns)
}

func (r *Repository) update(ctx context.Context, t reconcile.Transition, allowed map[string]bool) (bool, error) {
	if len(t.From) == 0 {
		return false, fmt.Errorf("transition for order %s has no source states", t.EntityID)
	}

	sets := []string{"status = ?", "terminal = ?", "updated_at = ?"}
	args := []any{string(t.To), database.Value(t.Terminal), database.Value(t.At)}
	for col, val := range t.Fields {
		if !allowed[col] {
			return false, fmt.Errorf("column %q cannot be set by a transition", col)
		}
		sets = append(sets, col+" = ?")
		args = append(args, database.Value(val))
	}

	args = append(args, t.EntityID)
	for _, s := range t.From {
		args = append(args, string(s))
	}

	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET "+strings.Join(sets, ", ")+
			" WHERE id = ? AND terminal = 0 AND status IN ("+database.Placeholders(len(t.From))+")",
		args...)
	if err != nil {
		return false, fmt.Errorf("failed to update order %s: %w", t.EntityID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for order %s: %w", t.EntityID, err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o                              Order
		status                         string
		isPaid, terminal               int
		createdAt, updatedAt           int64
		paidAt, shippedAt, deliveredAt sql.NullInt64
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &status, &o.PaymentMethod, &isPaid, &paidAt, &o.TotalCents,
		&terminal, &createdAt, &updatedAt, &shippedAt, &deliveredAt,
	); err != nil {
		return nil, err
	}

	o.Status = reconcile.State(status)
	o.IsPaid = isPaid == 1
	o.Terminal = terminal == 1
	o.CreatedAt = database.Time(createdAt)
	o.UpdatedAt = database.Time(updatedAt)
	o.PaidAt = database.NullTime(paidAt)
	o.ShippedAt = database.NullTime(shippedAt)
	o.DeliveredAt = database.NullTime(deliveredAt)
	return &o, nil
}
