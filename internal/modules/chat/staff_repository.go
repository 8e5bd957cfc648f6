package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/database"
)

// ErrNoStaffAvailable is returned when every active staff member is at capacity
var ErrNoStaffAvailable = errors.New("no staff available")

// StaffRepository manages the support staff directory
type StaffRepository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewStaffRepository creates a new staff repository
func NewStaffRepository(db *sql.DB, log zerolog.Logger) *StaffRepository {
	return &StaffRepository{
		db:  db,
		log: log.With().Str("repository", "staff").Logger(),
		now: time.Now,
	}
}

// Create adds a staff member. A zero MaxActiveChats takes the column default.
func (r *StaffRepository) Create(ctx context.Context, s *Staff) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	if s.MaxActiveChats <= 0 {
		s.MaxActiveChats = 5
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO staff (id, name, active, max_active_chats, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Name, database.Value(s.Active), s.MaxActiveChats, database.Value(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create staff %s: %w", s.ID, err)
	}
	return nil
}

// SetActive toggles whether a staff member takes new sessions
func (r *StaffRepository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE staff SET active = ? WHERE id = ?", database.Value(active), id)
	if err != nil {
		return fmt.Errorf("failed to update staff %s: %w", id, err)
	}
	return nil
}

// LeastLoaded returns the active staff member with the fewest non-terminal
// sessions who is still under capacity. Ties go to the longest-serving member.
func (r *StaffRepository) LeastLoaded(ctx context.Context) (*Staff, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.name, s.active, s.max_active_chats, s.created_at, COUNT(c.id) AS load
		FROM staff s
		LEFT JOIN chat_sessions c ON c.staff_id = s.id AND c.terminal = 0
		WHERE s.active = 1
		GROUP BY s.id
		HAVING load < s.max_active_chats
		ORDER BY load, s.created_at, s.id
		LIMIT 1`)

	var (
		s         Staff
		active    int
		createdAt int64
	)
	err := row.Scan(&s.ID, &s.Name, &active, &s.MaxActiveChats, &createdAt, &s.ActiveChats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoStaffAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select least loaded staff: %w", err)
	}
	s.Active = active == 1
	s.CreatedAt = database.Time(createdAt)
	return &s, nil
}
