package chat

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

var transitionColumns = map[string]bool{
	"is_active":  true,
	"closed_at":  true,
	"staff_id":   true,
	"staff_name": true,
}

const sessionColumns = `id, customer_id, staff_id, staff_name, status, is_active, terminal,
	created_at, last_activity_at, closed_at`

// SessionRepository persists chat sessions and implements reconcile.Store
type SessionRepository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB, log zerolog.Logger) *SessionRepository {
	return &SessionRepository{
		db:  db,
		log: log.With().Str("repository", "chat_sessions").Logger(),
		now: time.Now,
	}
}

// SetClock overrides the time source used for CRUD timestamps
func (r *SessionRepository) SetClock(now func() time.Time) {
	r.now = now
}

// Create opens a new session
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = StatusOpen
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = s.CreatedAt
	}
	s.Terminal = IsTerminal(s.Status)
	s.IsActive = !s.Terminal

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CustomerID, nullString(s.StaffID), nullString(s.StaffName), string(s.Status),
		database.Value(s.IsActive), database.Value(s.Terminal),
		database.Value(s.CreatedAt), database.Value(s.LastActivityAt), database.Value(s.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create chat session %s: %w", s.ID, err)
	}
	return nil
}

// GetByID returns a session or ErrNotFound
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM chat_sessions WHERE id = ?", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session %s: %w", id, err)
	}
	return s, nil
}

// Resolve marks an assigned session resolved by its staff member
func (r *SessionRepository) Resolve(ctx context.Context, id string) error {
	at := r.now()
	applied, err := r.update(ctx, reconcile.Transition{
		EntityID: id,
		From:     []reconcile.State{StatusAssigned},
		To:       StatusResolved,
		Terminal: true,
		At:       at,
		Fields:   reconcile.Fields{"is_active": false, "closed_at": at},
	})
	if err != nil {
		return err
	}
	if !applied {
		if _, err := r.GetByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: session %s is not assigned", ErrInvalidTransition, id)
	}
	return nil
}

// touch bumps last activity of a non-terminal session inside tx
func touch(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE chat_sessions SET last_activity_at = ? WHERE id = ? AND terminal = 0",
		at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to touch chat session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionClosed
	}
	return nil
}

// CountActiveByStaff returns how many non-terminal sessions staffID holds
func (r *SessionRepository) CountActiveByStaff(ctx context.Context, staffID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_sessions WHERE staff_id = ? AND terminal = 0", staffID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions for staff %s: %w", staffID, err)
	}
	return n, nil
}

// FindStale implements reconcile.Store
func (r *SessionRepository) FindStale(ctx context.Context, q reconcile.Query) ([]reconcile.Entity, error) {
	if len(q.States) == 0 {
		return []reconcile.Entity{}, nil
	}

	query := "SELECT " + sessionColumns + " FROM chat_sessions WHERE status IN (" +
		database.Placeholders(len(q.States)) + ") AND last_activity_at < ?"
	args := make([]any, 0, len(q.States)+1)
	for _, s := range q.States {
		args = append(args, string(s))
	}
	args = append(args, q.InactiveBefore.Unix())
	if q.ExcludeTerminal {
		query += " AND terminal = 0"
	}
	if q.Meta[FilterUnassigned] == "true" {
		query += " AND staff_id IS NULL"
	}
	query += " ORDER BY rowid"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale chat sessions: %w", err)
	}
	defer rows.Close()

	entities := []reconcile.Entity{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		entities = append(entities, s.Entity())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale chat sessions: %w", err)
	}
	return entities, nil
}

// Transition implements reconcile.Store
func (r *SessionRepository) Transition(ctx context.Context, t reconcile.Transition) (bool, error) {
	return r.update(ctx, t)
}

func (r *SessionRepository) update(ctx context.Context, t reconcile.Transition) (bool, error) {
	if len(t.From) == 0 {
		return false, fmt.Errorf("transition for chat session %s has no source states", t.EntityID)
	}

	// Status changes made by staff or the scheduler are not customer activity,
	// so last_activity_at is left alone.
	sets := []string{"status = ?", "terminal = ?"}
	args := []any{string(t.To), database.Value(t.Terminal)}
	for col, val := range t.Fields {
		if !transitionColumns[col] {
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
		"UPDATE chat_sessions SET "+strings.Join(sets, ", ")+
			" WHERE id = ? AND terminal = 0 AND status IN ("+database.Placeholders(len(t.From))+")",
		args...)
	if err != nil {
		return false, fmt.Errorf("failed to update chat session %s: %w", t.EntityID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for chat session %s: %w", t.EntityID, err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s                         Session
		status                    string
		staffID, staffName        sql.NullString
		isActive, terminal        int
		createdAt, lastActivityAt int64
		closedAt                  sql.NullInt64
	)
	if err := row.Scan(
		&s.ID, &s.CustomerID, &staffID, &staffName, &status, &isActive, &terminal,
		&createdAt, &lastActivityAt, &closedAt,
	); err != nil {
		return nil, err
	}

	s.StaffID = staffID.String
	s.StaffName = staffName.String
	s.Status = reconcile.State(status)
	s.IsActive = isActive == 1
	s.Terminal = terminal == 1
	s.CreatedAt = database.Time(createdAt)
	s.LastActivityAt = database.Time(lastActivityAt)
	s.ClosedAt = database.NullTime(closedAt)
	return &s, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
