// Package entitystore implements the engine's in-memory entity store:
// insert/update/select/count_where over entity instances, exclusively
// mutated by the scheduler.
package entitystore

import (
	"fmt"
	"reflect"

	"github.com/roach88/resinker/internal/specmodel"
	"github.com/roach88/resinker/internal/value"
)

// kindBucket holds every instance of one entity kind, preserving creation
// order so Select's iteration order (and therefore the `selection` PRNG
// sub-stream's candidate indexing) is deterministic regardless of Go's
// randomized map iteration.
type kindBucket struct {
	order []string
	byKey map[string]*Instance
}

// Store is the engine's exclusive owner of entity instances.
type Store struct {
	kinds map[string]*kindBucket
}

// New returns an empty entity store.
func New() *Store {
	return &Store{kinds: make(map[string]*kindBucket)}
}

func (s *Store) bucket(kind string) *kindBucket {
	b, ok := s.kinds[kind]
	if !ok {
		b = &kindBucket{byKey: make(map[string]*Instance)}
		s.kinds[kind] = b
	}
	return b
}

// Insert adds a new instance, failing if its primary key already exists
// within its kind (primary_key_value must be unique within its kind).
func (s *Store) Insert(inst *Instance) error {
	b := s.bucket(inst.Kind)
	key := primaryKeyString(inst.PrimaryKeyValue)
	if _, exists := b.byKey[key]; exists {
		return fmt.Errorf("entitystore: primary key collision for kind %q", inst.Kind)
	}
	b.byKey[key] = inst
	b.order = append(b.order, key)
	return nil
}

// Get returns the instance for kind+primaryKeyValue, if present.
func (s *Store) Get(kind string, primaryKeyValue value.Value) (*Instance, bool) {
	b, ok := s.kinds[kind]
	if !ok {
		return nil, false
	}
	inst, ok := b.byKey[primaryKeyString(primaryKeyValue)]
	return inst, ok
}

// Update applies mutator to the instance identified by kind+primaryKeyValue.
// The mutator is applied atomically: if it returns an error the instance is
// left unchanged.
func (s *Store) Update(kind string, primaryKeyValue value.Value, mutator func(*Instance) error) error {
	inst, ok := s.Get(kind, primaryKeyValue)
	if !ok {
		return fmt.Errorf("entitystore: no %q instance with that primary key", kind)
	}
	snapshot := *inst
	snapshot.Payload = inst.Payload.Clone()
	snapshot.State = inst.State.Clone()
	if err := mutator(inst); err != nil {
		*inst = snapshot
		return err
	}
	return nil
}

// Delete removes the instance identified by kind+primaryKeyValue, if
// present. Used to undo an insert when a later mutation in the same
// commit fails, so the whole commit rolls back as a unit.
func (s *Store) Delete(kind string, primaryKeyValue value.Value) {
	b, ok := s.kinds[kind]
	if !ok {
		return
	}
	key := primaryKeyString(primaryKeyValue)
	if _, exists := b.byKey[key]; !exists {
		return
	}
	delete(b.byKey, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Select returns every instance of kind whose payload and state satisfy
// filter's conjunction, in creation order.
func (s *Store) Select(kind string, filter specmodel.SelectionFilter) []*Instance {
	b, ok := s.kinds[kind]
	if !ok {
		return nil
	}
	out := make([]*Instance, 0, len(b.order))
	for _, key := range b.order {
		inst := b.byKey[key]
		if Matches(inst, filter) {
			out = append(out, inst)
		}
	}
	return out
}

// All returns every instance of kind in creation order, unfiltered.
func (s *Store) All(kind string) []*Instance {
	return s.Select(kind, nil)
}

// CountWhere counts instances of kind whose state attribute equals value;
// used to enforce a max_active_instances_of_state cap.
func (s *Store) CountWhere(kind, attribute string, want any) int {
	b, ok := s.kinds[kind]
	if !ok {
		return 0
	}
	count := 0
	for _, key := range b.order {
		inst := b.byKey[key]
		actual, ok := inst.State.Get(attribute)
		if !ok {
			continue
		}
		if reflect.DeepEqual(value.ToNative(actual), normalizeNative(want)) {
			count++
		}
	}
	return count
}

// Count returns the total number of instances of kind.
func (s *Store) Count(kind string) int {
	b, ok := s.kinds[kind]
	if !ok {
		return 0
	}
	return len(b.order)
}
