package reconcile

import (
	"context"
	"errors"
	"sync"
)

// memStore is an in-memory Store and RecordStore with injectable failures
type memStore struct {
	mu       sync.Mutex
	entities []*Entity
	fields   map[string]Fields
	records  []SideEffectRecord

	findErr      error
	applyErrFor  map[string]error
	insertErrFor map[string]error
	ignoreQuery  bool // return every entity regardless of the query
}

func newMemStore(entities ...Entity) *memStore {
	s := &memStore{
		fields:       make(map[string]Fields),
		applyErrFor:  make(map[string]error),
		insertErrFor: make(map[string]error),
	}
	for i := range entities {
		e := entities[i]
		s.entities = append(s.entities, &e)
	}
	return s
}

func (s *memStore) FindStale(ctx context.Context, q Query) ([]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := []Entity{}
	for _, e := range s.entities {
		if s.ignoreQuery || q.Matches(*e) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memStore) Transition(ctx context.Context, t Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyErrFor[t.EntityID]; err != nil {
		return false, err
	}
	for _, e := range s.entities {
		if e.ID != t.EntityID {
			continue
		}
		if e.Terminal || !containsState(t.From, e.State) {
			return false, nil
		}
		e.State = t.To
		e.Terminal = t.Terminal
		e.LastActivity = t.At
		s.fields[e.ID] = Fields{}.Merge(s.fields[e.ID]).Merge(t.Fields)
		return true, nil
	}
	return false, errors.New("not found")
}

func (s *memStore) Insert(ctx context.Context, rec SideEffectRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErrFor[rec.EntityID]; err != nil {
		return err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memStore) get(id string) Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.ID == id {
			return *e
		}
	}
	return Entity{}
}

func (s *memStore) recordsFor(id string) []SideEffectRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SideEffectRecord
	for _, r := range s.records {
		if r.EntityID == id {
			out = append(out, r)
		}
	}
	return out
}

func containsState(states []State, s State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
