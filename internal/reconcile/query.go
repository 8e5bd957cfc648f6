package reconcile

import (
	"context"
	"time"
)

// Query selects the entities eligible for a rule at one point in time
type Query struct {
	States          []State
	InactiveBefore  time.Time // LastActivity must be strictly earlier
	ExcludeTerminal bool
	Meta            map[string]string // Optional store-specific filters, e.g. unassigned chats
}

// NewQuery builds the staleness query for rule at now.
// now - lastActivity > maxAge is the same as lastActivity < now - maxAge.
func NewQuery(rule Rule, now time.Time) Query {
	return Query{
		States:          rule.SourceStates,
		InactiveBefore:  now.Add(-rule.MaxAge),
		ExcludeTerminal: true,
		Meta:            rule.Filter,
	}
}

// Matches reports whether e satisfies the query's state, age and terminal filters.
// Stores backed by SQL express the same predicate in their WHERE clause.
func (q Query) Matches(e Entity) bool {
	if q.ExcludeTerminal && e.Terminal {
		return false
	}
	if !e.LastActivity.Before(q.InactiveBefore) {
		return false
	}
	for _, s := range q.States {
		if e.State == s {
			return true
		}
	}
	return false
}

// Store is the persisted entity collection a rule reconciles
type Store interface {
	// FindStale returns matching entities in insertion order. No match is an empty
	// slice, not an error.
	FindStale(ctx context.Context, q Query) ([]Entity, error)

	// Transition applies t atomically for one entity. It reports false, with no
	// error, when the guard rejected the update because the entity became terminal
	// or left the source states since it was read.
	Transition(ctx context.Context, t Transition) (bool, error)
}
