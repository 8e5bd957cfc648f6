// Package reconcile implements scheduled state reconciliation: a pass selects the
// entities that have been sitting in a source state for longer than a rule's
// threshold, advances each one to the rule's target state and appends the side
// effect records the rule asks for.
//
// A pass isolates failures per entity. Errors for one entity are recorded on the
// JobRun and the pass moves on; only a failing staleness query aborts the run.
package reconcile

import (
	"fmt"
	"time"
)

// State is an entity status value such as "shipped" or "open"
type State string

// Entity is the reconciliation view of a persisted record.
// Meta carries the few extra attributes augmenters need (payment method, staff id).
type Entity struct {
	ID           string
	State        State
	LastActivity time.Time
	Terminal     bool
	Meta         map[string]string
}

// Age returns how long the entity has been inactive at now
func (e Entity) Age(now time.Time) time.Duration {
	return now.Sub(e.LastActivity)
}

// Fields are column updates applied together with a state change
type Fields map[string]any

// Merge copies other into f, overwriting existing keys
func (f Fields) Merge(other Fields) Fields {
	if f == nil {
		f = Fields{}
	}
	for k, v := range other {
		f[k] = v
	}
	return f
}

// TransitionSet lists, per state, the states an entity may move to
type TransitionSet map[State][]State

// Allows reports whether from -> to is a permitted transition
func (ts TransitionSet) Allows(from, to State) bool {
	for _, s := range ts[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one guarded state change handed to a Store.
// Stores must apply it only while the entity is non-terminal and still in one of From.
type Transition struct {
	EntityID string
	From     []State
	To       State
	Terminal bool
	At       time.Time
	Fields   Fields
}

// SideEffectRecord is an immutable record appended when a transition fires
type SideEffectRecord struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entity_id"`
	Kind      string    `json:"kind"`
	Body      string    `json:"body"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"created_at"`
}

// Stage names the pipeline step an entity failed in
type Stage string

const (
	StageAugment Stage = "augment"
	StageApply   Stage = "apply"
	StageEmit    Stage = "emit"
	StagePanic   Stage = "panic"
)

// EntityError is a per-entity failure recorded on a run
type EntityError struct {
	EntityID string
	Stage    Stage
	Err      error
}

func (e EntityError) Error() string {
	return fmt.Sprintf("entity %s failed at %s: %v", e.EntityID, e.Stage, e.Err)
}

func (e EntityError) Unwrap() error {
	return e.Err
}

// JobRun describes one invocation of one job at one tick. It is never persisted.
type JobRun struct {
	ID          string
	Job         string
	StartedAt   time.Time
	FinishedAt  time.Time
	Scanned     int
	Updated     int
	Skipped     int
	SideEffects int
	Errors      []EntityError
	Err         error // Run-level failure; nothing was touched when set by the query
}

// Duration returns how long the run took
func (r *JobRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed returns the number of entities that recorded an error
func (r *JobRun) Failed() int {
	return len(r.Errors)
}
