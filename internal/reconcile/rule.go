package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRule is returned by Rule.Validate
	ErrInvalidRule = errors.New("invalid staleness rule")

	// ErrSkip tells the pass to leave an entity alone this tick without counting a failure
	ErrSkip = errors.New("entity skipped")
)

// Augmenter computes the extra field updates for one entity's transition
type Augmenter interface {
	Augment(ctx context.Context, e Entity, at time.Time) (Fields, error)
}

// AugmenterFunc adapts a function to Augmenter
type AugmenterFunc func(ctx context.Context, e Entity, at time.Time) (Fields, error)

// Augment calls f
func (f AugmenterFunc) Augment(ctx context.Context, e Entity, at time.Time) (Fields, error) {
	return f(ctx, e, at)
}

// Rule is the pure configuration of one reconciliation: entities in any of
// SourceStates that have been inactive for longer than MaxAge move to TargetState.
type Rule struct {
	Name         string
	SourceStates []State
	MaxAge       time.Duration
	TargetState  State
	Terminal     bool              // TargetState is terminal
	Filter       map[string]string // Store-specific extra predicates, see Query.Meta
	Fields       Fields
	Augment      Augmenter
	SideEffects  []SideEffect
}

// Validate checks the rule against the entity's allowed transitions
func (r Rule) Validate(allowed TransitionSet) error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if r.MaxAge <= 0 {
		return fmt.Errorf("%w: %s: max age must be positive, got %s", ErrInvalidRule, r.Name, r.MaxAge)
	}
	if len(r.SourceStates) == 0 {
		return fmt.Errorf("%w: %s: at least one source state is required", ErrInvalidRule, r.Name)
	}
	if r.TargetState == "" {
		return fmt.Errorf("%w: %s: target state is required", ErrInvalidRule, r.Name)
	}
	for _, from := range r.SourceStates {
		if !allowed.Allows(from, r.TargetState) {
			return fmt.Errorf("%w: %s: %s -> %s is not an allowed transition",
				ErrInvalidRule, r.Name, from, r.TargetState)
		}
	}
	return nil
}

// transitionFor builds the guarded transition for e at time at
func (r Rule) transitionFor(e Entity, at time.Time, extra Fields) Transition {
	fields := Fields{}.Merge(r.Fields).Merge(extra)
	return Transition{
		EntityID: e.ID,
		From:     r.SourceStates,
		To:       r.TargetState,
		Terminal: r.Terminal,
		At:       at,
		Fields:   fields,
	}
}
