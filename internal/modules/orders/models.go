// Package orders provides the order store and the automatic delivery
// confirmation rule for shipped orders.
package orders

import (
	"errors"
	"time"

	"github.com/aristath/shopkeeper/internal/reconcile"
)

// Order statuses
const (
	StatusPlaced    reconcile.State = "placed"
	StatusShipped   reconcile.State = "shipped"
	StatusDelivered reconcile.State = "delivered"
	StatusCancelled reconcile.State = "cancelled"
)

// Transitions is the order state machine: placed -> shipped -> delivered,
// with cancellation possible only before shipping.
var Transitions = reconcile.TransitionSet{
	StatusPlaced:  {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered},
}

// IsTerminal reports whether no further transition may leave s
func IsTerminal(s reconcile.State) bool {
	return len(Transitions[s]) == 0
}

var (
	// ErrNotFound is returned when an order does not exist
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned when a CRUD status change is not allowed
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// Order represents a customer order
type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Status        reconcile.State `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	IsPaid        bool            `json:"is_paid"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	TotalCents    int64           `json:"total_cents"`
	Terminal      bool            `json:"terminal"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"` // Last activity
	ShippedAt     *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
}

// Entity returns the reconciliation view of the order
func (o *Order) Entity() reconcile.Entity {
	return reconcile.Entity{
		ID:           o.ID,
		State:        o.Status,
		LastActivity: o.UpdatedAt,
		Terminal:     o.Terminal,
		Meta: map[string]string{
			MetaPaymentMethod: o.PaymentMethod,
			MetaUserID:        o.UserID,
		},
	}
}

// Entity meta keys
const (
	MetaPaymentMethod = "payment_method"
	MetaUserID        = "user_id"
)
