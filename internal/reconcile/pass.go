package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PassConfig holds the collaborators of a reconciliation pass
type PassConfig struct {
	Rule        Rule
	Store       Store
	Records     RecordStore // Required only when the rule has side effects
	Now         func() time.Time
	Concurrency int // Entities in flight at once; 1 keeps query order
	Log         zerolog.Logger
}

// Pass runs one rule's query -> transition -> side effect pipeline
type Pass struct {
	rule        Rule
	store       Store
	emitter     *Emitter
	now         func() time.Time
	concurrency int
	log         zerolog.Logger
}

// NewPass creates a pass for cfg.Rule
func NewPass(cfg PassConfig) *Pass {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pass{
		rule:        cfg.Rule,
		store:       cfg.Store,
		emitter:     NewEmitter(cfg.Records),
		now:         now,
		concurrency: concurrency,
		log:         cfg.Log.With().Str("rule", cfg.Rule.Name).Logger(),
	}
}

// Name returns the rule name
func (p *Pass) Name() string {
	return p.rule.Name
}

// Rule returns the rule the pass applies
func (p *Pass) Rule() Rule {
	return p.rule
}

// outcome is the result of reconciling one entity
type outcome struct {
	updated     bool
	skipped     bool
	sideEffects int
	errs        []EntityError
}

// Run executes one reconciliation pass.
// A failing staleness query aborts the run before any entity is touched and is
// returned as an error. Per-entity failures are collected on the run instead.
func (p *Pass) Run(ctx context.Context) (*JobRun, error) {
	run := &JobRun{
		ID:        uuid.NewString(),
		Job:       p.rule.Name,
		StartedAt: p.now(),
	}

	entities, err := p.store.FindStale(ctx, NewQuery(p.rule, run.StartedAt))
	if err != nil {
		run.Err = fmt.Errorf("staleness query failed: %w", err)
		run.FinishedAt = p.now()
		return run, run.Err
	}
	run.Scanned = len(entities)

	if len(entities) == 0 {
		run.FinishedAt = p.now()
		p.log.Debug().Msg("No stale entities")
		return run, nil
	}

	var mu sync.Mutex
	collect := func(out outcome) {
		mu.Lock()
		defer mu.Unlock()
		if out.updated {
			run.Updated++
		}
		if out.skipped {
			run.Skipped++
		}
		run.SideEffects += out.sideEffects
		run.Errors = append(run.Errors, out.errs...)
	}

	if p.concurrency == 1 {
		for _, e := range entities {
			collect(p.reconcileOne(ctx, e))
		}
	} else {
		var g errgroup.Group
		g.SetLimit(p.concurrency)
		for _, e := range entities {
			e := e
			g.Go(func() error {
				collect(p.reconcileOne(ctx, e))
				return nil
			})
		}
		_ = g.Wait()
	}

	run.FinishedAt = p.now()

	evt := p.log.Info()
	if run.Updated == 0 && run.Failed() == 0 {
		evt = p.log.Debug()
	}
	evt.Str("run_id", run.ID).
		Int("scanned", run.Scanned).
		Int("updated", run.Updated).
		Int("skipped", run.Skipped).
		Int("side_effects", run.SideEffects).
		Int("failed", run.Failed()).
		Dur("duration", run.Duration()).
		Msg("Reconciliation pass complete")

	return run, nil
}

// reconcileOne advances a single entity. It never panics and never returns an
// error; failures are reported on the outcome.
func (p *Pass) reconcileOne(ctx context.Context, e Entity) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			p.log.Error().
				Str("entity_id", e.ID).
				Interface("panic", r).
				Msg("Recovered panic while reconciling entity")
			out.errs = append(out.errs, EntityError{EntityID: e.ID, Stage: StagePanic, Err: err})
		}
	}()

	if e.Terminal {
		out.skipped = true
		return out
	}

	at := p.now()

	var extra Fields
	if p.rule.Augment != nil {
		fields, err := p.rule.Augment.Augment(ctx, e, at)
		if errors.Is(err, ErrSkip) {
			p.log.Debug().Str("entity_id", e.ID).Err(err).Msg("Entity skipped")
			out.skipped = true
			return out
		}
		if err != nil {
			p.log.Error().Err(err).Str("entity_id", e.ID).Msg("Failed to compute transition fields")
			out.errs = append(out.errs, EntityError{EntityID: e.ID, Stage: StageAugment, Err: err})
			return out
		}
		extra = fields
	}

	t := p.rule.transitionFor(e, at, extra)

	applied, err := p.store.Transition(ctx, t)
	if err != nil {
		p.log.Error().
			Err(err).
			Str("entity_id", e.ID).
			Str("to_state", string(t.To)).
			Msg("Failed to apply transition")
		out.errs = append(out.errs, EntityError{EntityID: e.ID, Stage: StageApply, Err: err})
		return out
	}
	if !applied {
		// Terminal or moved on since the query ran; a concurrent run or a CRUD write won
		p.log.Debug().Str("entity_id", e.ID).Msg("Transition guard rejected update")
		out.skipped = true
		return out
	}
	out.updated = true

	written, err := p.emitter.Emit(ctx, e, t, p.rule.SideEffects)
	out.sideEffects = len(written)
	if err != nil {
		ids := make([]string, 0, len(written))
		for _, rec := range written {
			ids = append(ids, rec.ID)
		}
		p.log.Error().
			Err(err).
			Str("entity_id", e.ID).
			Str("to_state", string(t.To)).
			Strs("written_record_ids", ids).
			Int("expected_records", len(p.rule.SideEffects)).
			Msg("Entity transitioned but side effects are incomplete, manual reconciliation required")
		out.errs = append(out.errs, EntityError{EntityID: e.ID, Stage: StageEmit, Err: err})
		return out
	}

	p.log.Debug().
		Str("entity_id", e.ID).
		Str("from_state", string(e.State)).
		Str("to_state", string(t.To)).
		Msg("Entity reconciled")

	return out
}
