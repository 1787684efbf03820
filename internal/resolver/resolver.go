// Package resolver implements the dependency resolver: given an event
// type, it decides whether enough matching entities exist to generate
// it, and picks the specific candidates that will be bound.
package resolver

import (
	"math/rand"

	"github.com/roach88/resinker/internal/entitystore"
	"github.com/roach88/resinker/internal/prng"
	"github.com/roach88/resinker/internal/specmodel"
)

// Resolver checks feasibility and picks candidates against one entity store.
type Resolver struct {
	store *entitystore.Store
}

// New returns a resolver reading from store.
func New(store *entitystore.Store) *Resolver {
	return &Resolver{store: store}
}

// Feasible reports whether event is currently producible: every
// consumes_entities element has at least min_required matching candidates,
// and producing it would not exceed its max_active_instances_of_state
// budget, if declared.
func (r *Resolver) Feasible(event *specmodel.EventTypeDef) bool {
	for _, consumption := range event.ConsumesEntities {
		candidates := r.store.Select(consumption.Name, consumption.SelectionFilter)
		minRequired := consumption.MinRequired
		if minRequired < 1 {
			minRequired = 1
		}
		if len(candidates) < minRequired {
			return false
		}
	}
	if budget := event.MaxActiveInstancesOfState; budget != nil {
		count := r.store.CountWhere(budget.Entity, budget.Attribute, budget.Value)
		if count >= budget.MaxCount {
			return false
		}
	}
	return true
}

// Resolve picks, for each consumes_entities element, min_required distinct
// candidates chosen uniformly at random from the matching pool via
// selectionStream. Callers must have already confirmed Feasible.
func (r *Resolver) Resolve(event *specmodel.EventTypeDef, selectionStream *rand.Rand) (*entitystore.Binding, error) {
	binding := entitystore.NewBinding()
	for _, consumption := range event.ConsumesEntities {
		candidates := r.store.Select(consumption.Name, consumption.SelectionFilter)
		minRequired := consumption.MinRequired
		if minRequired < 1 {
			minRequired = 1
		}
		picked := pickDistinct(candidates, minRequired, selectionStream)
		for i, inst := range picked {
			alias := consumption.Alias
			if minRequired > 1 {
				// Multiple required candidates bind under the same alias;
				// the first bound instance wins alias resolution, matching
				// entitystore.Binding's "bind once, resolve first" semantics
				// for arrays of consumed entities.
				if i > 0 {
					alias = ""
				}
			}
			binding.Bind(alias, consumption.Name, inst)
		}
	}
	return binding, nil
}

// pickDistinct samples n distinct instances from pool uniformly at random
// using r, preserving pool's declared (creation) order for tie-breaking
// when n >= len(pool).
func pickDistinct(pool []*entitystore.Instance, n int, r *rand.Rand) []*entitystore.Instance {
	if n >= len(pool) {
		out := make([]*entitystore.Instance, len(pool))
		copy(out, pool)
		return out
	}
	shuffled := make([]*entitystore.Instance, len(pool))
	copy(shuffled, pool)
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}

// FeasibleScenario reports whether a scenario's requires_initial_entities
// are all currently satisfiable, one candidate per requirement.
func (r *Resolver) FeasibleScenario(reqs []specmodel.ScenarioEntityRequirement) bool {
	for _, req := range reqs {
		if len(r.store.Select(req.Name, req.SelectionFilter)) == 0 {
			return false
		}
	}
	return true
}

// ResolveScenario binds one candidate per scenario entity requirement,
// chosen via selectionStream.
func (r *Resolver) ResolveScenario(reqs []specmodel.ScenarioEntityRequirement, selectionStream *rand.Rand) *entitystore.Binding {
	binding := entitystore.NewBinding()
	for _, req := range reqs {
		candidates := r.store.Select(req.Name, req.SelectionFilter)
		if len(candidates) == 0 {
			continue
		}
		idx := 0
		if len(candidates) > 1 {
			idx = selectionStream.Intn(len(candidates))
		}
		binding.Bind(req.Alias, req.Name, candidates[idx])
	}
	return binding
}

// StreamName is the PRNG sub-stream resolver callers must pass for
// candidate selection.
const StreamName = prng.StreamSelection
