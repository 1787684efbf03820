package resolver

import (
	"math/rand"
	"testing"

	"github.com/roach88/resinker/internal/entitystore"
	"github.com/roach88/resinker/internal/specmodel"
	"github.com/roach88/resinker/internal/value"
)

func insertUser(t *testing.T, store *entitystore.Store, id string, loggedIn bool) {
	t.Helper()
	payload := value.NewObject()
	payload.Set("user_id", value.String(id))
	state := value.NewObject()
	state.Set("is_logged_in", value.Bool(loggedIn))
	inst := &entitystore.Instance{Kind: "User", PrimaryKeyValue: value.String(id), Payload: payload, State: state}
	if err := store.Insert(inst); err != nil {
		t.Fatal(err)
	}
}

func TestFeasibleRequiresMinCandidates(t *testing.T) {
	store := entitystore.New()
	insertUser(t, store, "u1", false)
	r := New(store)

	event := &specmodel.EventTypeDef{
		ConsumesEntities: []specmodel.EntityConsumption{
			{Name: "User", Alias: "user", MinRequired: 2},
		},
	}
	if r.Feasible(event) {
		t.Fatal("expected infeasible: only 1 candidate, 2 required")
	}

	insertUser(t, store, "u2", false)
	if !r.Feasible(event) {
		t.Fatal("expected feasible with 2 candidates")
	}
}

func TestFeasibleHonorsMaxActiveInstancesOfState(t *testing.T) {
	store := entitystore.New()
	for i := 0; i < 3; i++ {
		insertUser(t, store, string(rune('a'+i)), true)
	}
	r := New(store)

	event := &specmodel.EventTypeDef{
		MaxActiveInstancesOfState: &specmodel.MaxActiveInstancesOfState{
			Entity: "User", Attribute: "is_logged_in", Value: true, MaxCount: 3,
		},
	}
	if r.Feasible(event) {
		t.Fatal("expected infeasible: budget already at max_count")
	}
}

func TestResolveBindsConsumedEntity(t *testing.T) {
	store := entitystore.New()
	insertUser(t, store, "u1", false)
	r := New(store)

	event := &specmodel.EventTypeDef{
		ConsumesEntities: []specmodel.EntityConsumption{
			{Name: "User", Alias: "user", MinRequired: 1},
		},
	}
	binding, err := r.Resolve(event, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	inst, ok := binding.ByAlias("user")
	if !ok || inst.PrimaryKeyValue != value.String("u1") {
		t.Fatalf("expected user alias bound to u1, got %v ok=%v", inst, ok)
	}
}

func TestFeasibleScenarioRequiresCandidates(t *testing.T) {
	store := entitystore.New()
	r := New(store)
	reqs := []specmodel.ScenarioEntityRequirement{{Name: "User", Alias: "user"}}
	if r.FeasibleScenario(reqs) {
		t.Fatal("expected infeasible: no User instances")
	}
	insertUser(t, store, "u1", false)
	if !r.FeasibleScenario(reqs) {
		t.Fatal("expected feasible with 1 candidate")
	}
}
