package scheduler

import (
	"testing"
	"time"

	"github.com/roach88/resinker/internal/entitystore"
	"github.com/roach88/resinker/internal/prng"
	"github.com/roach88/resinker/internal/simclock"
	"github.com/roach88/resinker/internal/specmodel"
)

type recordingEmitter struct {
	records []Record
}

func (e *recordingEmitter) Emit(r Record) {
	e.records = append(e.records, r)
}

func userSpec(t *testing.T) *specmodel.Spec {
	t.Helper()

	idProp := specmodel.NewOrderedMap[*specmodel.SchemaNode]()
	idProp.Set("user_id", &specmodel.SchemaNode{Kind: specmodel.SchemaPrimitive, Generator: "uuid_v4"})
	userSchema := &specmodel.SchemaNode{Kind: specmodel.SchemaObject, Properties: idProp}

	schemas := specmodel.NewOrderedMap[*specmodel.SchemaNode]()
	schemas.Set("UserPayload", userSchema)

	entities := specmodel.NewOrderedMap[*specmodel.EntityDef]()
	entities.Set("User", &specmodel.EntityDef{Schema: "UserPayload", PrimaryKey: "user_id"})

	eventTypes := specmodel.NewOrderedMap[*specmodel.EventTypeDef]()
	eventTypes.Set("UserSignedUp", &specmodel.EventTypeDef{
		PayloadSchema:   "UserPayload",
		ProducesEntity:  "User",
		FrequencyWeight: 1.0,
	})

	return &specmodel.Spec{
		SimulationSettings: specmodel.SimulationSettings{
			TotalEvents: intPtr(5),
		},
		Schemas:    schemas,
		Entities:   entities,
		EventTypes: eventTypes,
	}
}

func intPtr(n int) *int { return &n }

func TestRunEmitsTotalEventsThenStops(t *testing.T) {
	spec := userSpec(t)
	store := entitystore.New()
	streams := prng.New(42)
	clock := simclock.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	emitter := &recordingEmitter{}

	sched := New(spec, store, streams, clock, emitter, nil)
	if err := sched.InitializeEntities(); err != nil {
		t.Fatal(err)
	}
	result, err := sched.Run()
	if err != nil {
		t.Fatal(err)
	}
	if result.TerminationReason != TerminationTotalEvents {
		t.Fatalf("termination reason = %q, want %q", result.TerminationReason, TerminationTotalEvents)
	}
	if result.EventsEmitted != 5 {
		t.Fatalf("events emitted = %d, want 5", result.EventsEmitted)
	}
	if len(emitter.records) != 5 {
		t.Fatalf("emitter received %d records, want 5", len(emitter.records))
	}
	if store.Count("User") != 5 {
		t.Fatalf("store has %d User instances, want 5", store.Count("User"))
	}
}

func TestRunIsDeterministicForFixedSeed(t *testing.T) {
	run := func() []Record {
		spec := userSpec(t)
		store := entitystore.New()
		streams := prng.New(7)
		clock := simclock.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1)
		emitter := &recordingEmitter{}
		sched := New(spec, store, streams, clock, emitter, nil)
		if err := sched.InitializeEntities(); err != nil {
			t.Fatal(err)
		}
		if _, err := sched.Run(); err != nil {
			t.Fatal(err)
		}
		return emitter.records
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		uid1, _ := first[i].Payload.Get("user_id")
		uid2, _ := second[i].Payload.Get("user_id")
		if uid1 != uid2 {
			t.Fatalf("record %d: user_id differs between runs: %v vs %v", i, uid1, uid2)
		}
	}
}

func TestRunTerminatesAsStarvedWhenNoEventFeasible(t *testing.T) {
	consumerEntities := specmodel.NewOrderedMap[*specmodel.EntityDef]()
	consumerEntities.Set("User", &specmodel.EntityDef{Schema: "UserPayload", PrimaryKey: "user_id"})

	idProp := specmodel.NewOrderedMap[*specmodel.SchemaNode]()
	idProp.Set("user_id", &specmodel.SchemaNode{Kind: specmodel.SchemaPrimitive, Generator: "uuid_v4"})
	userSchema := &specmodel.SchemaNode{Kind: specmodel.SchemaObject, Properties: idProp}
	schemas := specmodel.NewOrderedMap[*specmodel.SchemaNode]()
	schemas.Set("UserPayload", userSchema)

	eventTypes := specmodel.NewOrderedMap[*specmodel.EventTypeDef]()
	eventTypes.Set("UserLoggedIn", &specmodel.EventTypeDef{
		PayloadSchema:   "UserPayload",
		FrequencyWeight: 1.0,
		ConsumesEntities: []specmodel.EntityConsumption{
			{Name: "User", Alias: "user", MinRequired: 1},
		},
	})

	spec := &specmodel.Spec{Schemas: schemas, Entities: consumerEntities, EventTypes: eventTypes}
	store := entitystore.New()
	streams := prng.New(1)
	clock := simclock.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	emitter := &recordingEmitter{}

	sched := New(spec, store, streams, clock, emitter, nil)
	sched.starvationBound = 3
	result, err := sched.Run()
	if err != nil {
		t.Fatal(err)
	}
	if result.TerminationReason != TerminationStarved {
		t.Fatalf("termination reason = %q, want %q", result.TerminationReason, TerminationStarved)
	}
	if result.EventsEmitted != 0 {
		t.Fatalf("events emitted = %d, want 0", result.EventsEmitted)
	}
}
