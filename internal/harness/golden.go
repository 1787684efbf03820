// Package harness runs a full spec through the scheduler end to end and
// captures its emitted records for golden-file comparison.
package harness

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/resinker/internal/entitystore"
	"github.com/roach88/resinker/internal/prng"
	"github.com/roach88/resinker/internal/scheduler"
	"github.com/roach88/resinker/internal/simclock"
	"github.com/roach88/resinker/internal/specmodel"
	"github.com/roach88/resinker/internal/value"
)

// fixedNow anchors "now"-relative runs to a fixed instant, so a spec
// whose time_progression.start_time is "now" still emits reproducible
// wall-clock-independent snapshots.
var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// collectingEmitter accumulates every record a run produces, in order.
type collectingEmitter struct {
	records []scheduler.Record
}

func (c *collectingEmitter) Emit(rec scheduler.Record) {
	c.records = append(c.records, rec)
}

// Outcome is the result of running a spec to completion: the emitted
// records plus the entity store, so assertions can inspect final state.
type Outcome struct {
	Result  scheduler.Result
	Records []scheduler.Record
	Store   *entitystore.Store
}

// Run executes an already-loaded spec to completion using its own random_seed
// and time_progression settings.
func Run(spec *specmodel.Spec) (*Outcome, error) {
	start, err := simclock.ResolveStartTime(spec.SimulationSettings.TimeProgression.StartTime, fixedNow)
	if err != nil {
		return nil, err
	}
	clock := simclock.New(start, spec.SimulationSettings.TimeProgression.TimeMultiplier)
	streams := prng.New(spec.SimulationSettings.RandomSeed)
	store := entitystore.New()
	emitter := &collectingEmitter{}

	sched := scheduler.New(spec, store, streams, clock, emitter, nil)
	if err := sched.InitializeEntities(); err != nil {
		return nil, err
	}
	result, err := sched.Run()
	if err != nil {
		return nil, err
	}
	return &Outcome{Result: result, Records: emitter.records, Store: store}, nil
}

// recordSnapshot is the golden-comparable projection of one record:
// event_type and payload only. Timestamps are excluded since a spec
// using time_progression.start_time "now" makes them wall-clock
// dependent.
type recordSnapshot struct {
	EventType string `json:"event_type"`
	Payload   any    `json:"payload"`
}

// snapshotRecords projects records into their golden-comparable form.
func snapshotRecords(records []scheduler.Record) []recordSnapshot {
	out := make([]recordSnapshot, len(records))
	for i, rec := range records {
		out[i] = recordSnapshot{EventType: rec.EventType, Payload: value.ToNative(rec.Payload)}
	}
	return out
}

// AssertGolden compares outcome's emitted records against
// testdata/golden/<name>.golden, canonically JSON-encoded with
// two-space indentation. Run `go test ./internal/harness -update` to
// regenerate fixtures after an intentional behavior change.
func AssertGolden(t *testing.T, name string, outcome *Outcome) {
	t.Helper()
	snap := snapshotRecords(outcome.Records)
	blob, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, name, blob)
}
