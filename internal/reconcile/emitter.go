package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SideEffect derives one record from a transition that just fired
type SideEffect interface {
	Record(e Entity, t Transition) SideEffectRecord
}

// SideEffectFunc adapts a function to SideEffect
type SideEffectFunc func(e Entity, t Transition) SideEffectRecord

// Record calls f
func (f SideEffectFunc) Record(e Entity, t Transition) SideEffectRecord {
	return f(e, t)
}

// RecordStore is the append-only store side effect records land in
type RecordStore interface {
	Insert(ctx context.Context, rec SideEffectRecord) error
}

// Emitter appends the side effect records of a transition
type Emitter struct {
	records RecordStore
	newID   func() string
}

// NewEmitter creates an emitter writing to records
func NewEmitter(records RecordStore) *Emitter {
	return &Emitter{
		records: records,
		newID:   uuid.NewString,
	}
}

// Emit appends one record per effect. Records are tagged as system generated and
// stamped with the transition time. On failure the records appended so far are
// returned together with the error so callers can log them.
func (em *Emitter) Emit(ctx context.Context, e Entity, t Transition, effects []SideEffect) ([]SideEffectRecord, error) {
	if len(effects) == 0 {
		return nil, nil
	}
	if em == nil || em.records == nil {
		return nil, fmt.Errorf("no record store configured for %d side effects", len(effects))
	}

	written := make([]SideEffectRecord, 0, len(effects))
	for _, effect := range effects {
		rec := effect.Record(e, t)
		if rec.ID == "" {
			rec.ID = em.newID()
		}
		if rec.EntityID == "" {
			rec.EntityID = e.ID
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = t.At
		}
		rec.System = true

		if err := em.records.Insert(ctx, rec); err != nil {
			return written, fmt.Errorf("failed to insert %s record: %w", rec.Kind, err)
		}
		written = append(written, rec)
	}

	return written, nil
}
