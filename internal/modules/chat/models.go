// Package chat provides support chat sessions, their message log and the staff
// directory, together with the rules that auto-assign waiting sessions and close
// inactive ones.
package chat

import (
	"errors"
	"time"

	"github.com/aristath/shopkeeper/internal/reconcile"
)

// Session statuses
const (
	StatusOpen     reconcile.State = "open"
	StatusAssigned reconcile.State = "assigned"
	StatusResolved reconcile.State = "resolved"
	StatusClosed   reconcile.State = "closed"
)

// Transitions is the session state machine
var Transitions = reconcile.TransitionSet{
	StatusOpen:     {StatusAssigned, StatusClosed},
	StatusAssigned: {StatusResolved, StatusClosed},
}

// IsTerminal reports whether no further transition may leave s
func IsTerminal(s reconcile.State) bool {
	return len(Transitions[s]) == 0
}

var (
	// ErrNotFound is returned when a session does not exist
	ErrNotFound = errors.New("chat session not found")
	// ErrSessionClosed is returned when posting to a terminal session
	ErrSessionClosed = errors.New("chat session is closed")
	// ErrInvalidTransition is returned when a CRUD status change is not allowed
	ErrInvalidTransition = errors.New("invalid chat session transition")
)

// Entity meta keys and query filters
const (
	MetaCustomerID = "customer_id"
	MetaStaffID    = "staff_id"

	// FilterUnassigned restricts a staleness query to sessions without staff
	FilterUnassigned = "unassigned"
)

// Session is a support conversation between a customer and a staff member
type Session struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customer_id"`
	StaffID        string          `json:"staff_id,omitempty"`
	StaffName      string          `json:"staff_name,omitempty"`
	Status         reconcile.State `json:"status"`
	IsActive       bool            `json:"is_active"`
	Terminal       bool            `json:"terminal"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

// Entity returns the reconciliation view of the session
func (s *Session) Entity() reconcile.Entity {
	return reconcile.Entity{
		ID:           s.ID,
		State:        s.Status,
		LastActivity: s.LastActivityAt,
		Terminal:     s.Terminal,
		Meta: map[string]string{
			MetaCustomerID: s.CustomerID,
			MetaStaffID:    s.StaffID,
		},
	}
}

// Message is one chat line. System messages have no sender.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id,omitempty"`
	IsSystem  bool      `json:"is_system"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Staff is a support agent who can be assigned sessions
type Staff struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Active         bool      `json:"active"`
	MaxActiveChats int       `json:"max_active_chats"`
	CreatedAt      time.Time `json:"created_at"`
	ActiveChats    int       `json:"active_chats"` // Filled by LeastLoaded
}
