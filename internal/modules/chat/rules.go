package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/shopkeeper/internal/reconcile"
)

// Job names of the chat reconciliation rules
const (
	InactivityRuleName = "chat_inactive_close"
	AssignmentRuleName = "chat_auto_assign"
)

// Side effect kinds
const (
	KindAutoClosed   = "chat_auto_closed"
	KindAutoAssigned = "chat_auto_assigned"
)

// StaffPicker chooses who gets the next waiting session
type StaffPicker interface {
	LeastLoaded(ctx context.Context) (*Staff, error)
}

// InactivityRule closes open or assigned sessions that saw no activity for
// longer than maxAge and leaves a system message explaining why.
func InactivityRule(maxAge time.Duration) reconcile.Rule {
	return reconcile.Rule{
		Name:         InactivityRuleName,
		SourceStates: []reconcile.State{StatusOpen, StatusAssigned},
		MaxAge:       maxAge,
		TargetState:  StatusClosed,
		Terminal:     true,
		Fields:       reconcile.Fields{"is_active": false},
		Augment: reconcile.AugmenterFunc(func(_ context.Context, _ reconcile.Entity, at time.Time) (reconcile.Fields, error) {
			return reconcile.Fields{"closed_at": at}, nil
		}),
		SideEffects: []reconcile.SideEffect{
			reconcile.SideEffectFunc(closedNotice(maxAge)),
		},
	}
}

func closedNotice(maxAge time.Duration) func(reconcile.Entity, reconcile.Transition) reconcile.SideEffectRecord {
	return func(e reconcile.Entity, t reconcile.Transition) reconcile.SideEffectRecord {
		return reconcile.SideEffectRecord{
			Kind: KindAutoClosed,
			Body: fmt.Sprintf("This conversation was closed automatically after %s without activity.", humanize(maxAge)),
		}
	}
}

// AssignmentRule hands unassigned sessions that have waited longer than maxWait
// to the least loaded staff member. Sessions stay open when nobody is available.
func AssignmentRule(maxWait time.Duration, staff StaffPicker) reconcile.Rule {
	return reconcile.Rule{
		Name:         AssignmentRuleName,
		SourceStates: []reconcile.State{StatusOpen},
		MaxAge:       maxWait,
		TargetState:  StatusAssigned,
		Filter:       map[string]string{FilterUnassigned: "true"},
		Augment: reconcile.AugmenterFunc(func(ctx context.Context, _ reconcile.Entity, _ time.Time) (reconcile.Fields, error) {
			s, err := staff.LeastLoaded(ctx)
			if errors.Is(err, ErrNoStaffAvailable) {
				return nil, fmt.Errorf("%w: %w", reconcile.ErrSkip, err)
			}
			if err != nil {
				return nil, err
			}
			return reconcile.Fields{"staff_id": s.ID, "staff_name": s.Name}, nil
		}),
		SideEffects: []reconcile.SideEffect{
			reconcile.SideEffectFunc(assignedNotice),
		},
	}
}

func assignedNotice(e reconcile.Entity, t reconcile.Transition) reconcile.SideEffectRecord {
	name, _ := t.Fields["staff_name"].(string)
	if name == "" {
		name = "a support agent"
	}
	return reconcile.SideEffectRecord{
		Kind: KindAutoAssigned,
		Body: fmt.Sprintf("You are now chatting with %s.", name),
	}
}

func humanize(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		if days := int(d / (24 * time.Hour)); days > 1 {
			return fmt.Sprintf("%d days", days)
		}
		return "1 day"
	case d >= time.Hour && d%time.Hour == 0:
		if hours := int(d / time.Hour); hours > 1 {
			return fmt.Sprintf("%d hours", hours)
		}
		return "1 hour"
	default:
		return d.String()
	}
}
