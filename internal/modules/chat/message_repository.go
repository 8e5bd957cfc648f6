package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/database"
	"github.com/aristath/shopkeeper/internal/reconcile"
)

// MessageRepository is the append-only chat message log.
// It implements reconcile.RecordStore so reconciliation rules can post system messages.
type MessageRepository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *sql.DB, log zerolog.Logger) *MessageRepository {
	return &MessageRepository{
		db:  db,
		log: log.With().Str("repository", "chat_messages").Logger(),
		now: time.Now,
	}
}

// SetClock overrides the time source used for message timestamps
func (r *MessageRepository) SetClock(now func() time.Time) {
	r.now = now
}

// Post appends a user message and bumps the session's last activity in one
// transaction. Posting to a closed or resolved session returns ErrSessionClosed.
func (r *MessageRepository) Post(ctx context.Context, sessionID, senderID, body string) (*Message, error) {
	m := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: r.now(),
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM chat_sessions WHERE id = ?", sessionID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up chat session %s: %w", sessionID, err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		if err := touch(ctx, tx, sessionID, m.CreatedAt); err != nil {
			return err
		}
		return insertMessage(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Insert implements reconcile.RecordStore. The record lands as a system message
// without sender and does not count as session activity.
func (r *MessageRepository) Insert(ctx context.Context, rec reconcile.SideEffectRecord) error {
	m := &Message{
		ID:        rec.ID,
		SessionID: rec.EntityID,
		IsSystem:  rec.System,
		Body:      rec.Body,
		CreatedAt: rec.CreatedAt,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}

	if err := insertMessage(ctx, r.db, m); err != nil {
		return err
	}
	r.log.Debug().
		Str("session_id", m.SessionID).
		Str("message_id", m.ID).
		Str("kind", rec.Kind).
		Msg("System message appended")
	return nil
}

// ListBySession returns the session's messages oldest first
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, sender_id, is_system, body, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of session %s: %w", sessionID, err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var (
			m         Message
			senderID  sql.NullString
			isSystem  int
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &senderID, &isSystem, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.SenderID = senderID.String
		m.IsSystem = isSystem == 1
		m.CreatedAt = database.Time(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, m *Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, sender_id, is_system, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, nullString(m.SenderID), database.Value(m.IsSystem), m.Body, database.Value(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message into session %s: %w", m.SessionID, err)
	}
	return nil
}
