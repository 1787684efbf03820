// Package scheduler implements the engine's event loop: scenario
// initiation, the per-tick candidate pool, weighted selection, payload
// generation, commit, and clock advance. Scheduling is synchronous and
// per-tick, running on a single writer goroutine that owns the entity
// store and the simulation clock.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/resinker/internal/entitystore"
	"github.com/roach88/resinker/internal/generate"
	"github.com/roach88/resinker/internal/prng"
	"github.com/roach88/resinker/internal/resolver"
	"github.com/roach88/resinker/internal/simclock"
	"github.com/roach88/resinker/internal/simerr"
	"github.com/roach88/resinker/internal/specmodel"
	"github.com/roach88/resinker/internal/value"
)

// Record is one emitted event.
type Record struct {
	EventType string
	Timestamp time.Time
	Payload   *value.Object
}

// Emitter delivers a Record to every enabled output sink. Implementations
// must not return an error for a sink-local failure — sink faults are
// logged and do not abort the run.
type Emitter interface {
	Emit(Record)
}

// Result is the engine's run(spec, options) return value.
type Result struct {
	EventsEmitted     int
	DurationObserved  time.Duration
	TerminationReason string
}

// Termination reasons.
const (
	TerminationDuration    = "duration_reached"
	TerminationTotalEvents = "total_events_reached"
	TerminationStarved     = "starved"
	TerminationQueueEmpty  = "queue_empty"
	TerminationStopped     = "stop_requested"
)

// defaultStarvationBound is the number of consecutive empty-candidate-pool
// ticks tolerated before the run terminates as starved.
const defaultStarvationBound = 300

// doNothingWeightFactor scales the "do nothing" scenario-initiation slot
// relative to the sum of scenario initiation_weights. A factor of 1.0
// gives the idle slot equal total weight to all scenarios combined, so a
// spec with few/low-weight scenarios doesn't saturate active scenario
// count every tick.
const doNothingWeightFactor = 1.0

// Scheduler runs the engine's single-threaded event loop.
type Scheduler struct {
	spec            *specmodel.Spec
	store           *entitystore.Store
	resolve         *resolver.Resolver
	interp          *generate.Interpreter
	streams         *prng.Streams
	clock           *simclock.Clock
	emitter         Emitter
	starvationBound int
	log             *slog.Logger
	stopRequested   atomic.Bool

	scenarios []*scenarioRun
}

// Stop requests that Run terminate at the start of its next tick (used by
// the CLI's signal handler for graceful shutdown on SIGINT/SIGTERM).
func (s *Scheduler) Stop() { s.stopRequested.Store(true) }

// New builds a scheduler. logger may be nil, in which case slog.Default() is used.
func New(spec *specmodel.Spec, store *entitystore.Store, streams *prng.Streams, clock *simclock.Clock, emitter Emitter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		spec:            spec,
		store:           store,
		resolve:         resolver.New(store),
		interp:          generate.New(spec),
		streams:         streams,
		clock:           clock,
		emitter:         emitter,
		starvationBound: defaultStarvationBound,
		log:             logger,
	}
}

type scenarioRun struct {
	name          string
	def           *specmodel.ScenarioDef
	stepIndex     int
	loopRemaining int
	binding       *entitystore.Binding
	pendingWakeup time.Time
	completed     bool
}

// InitializeEntities creates the initial_entity_counts-declared entities,
// kind by kind in the order the entities section declares them.
func (s *Scheduler) InitializeEntities() error {
	for kind := range s.spec.SimulationSettings.InitialEntityCounts {
		if _, ok := s.spec.Entity(kind); !ok {
			return fmt.Errorf("scheduler: initial_entity_counts references unknown entity %q", kind)
		}
	}
	if s.spec.Entities == nil {
		return nil
	}
	for _, kind := range s.spec.Entities.Keys() {
		count, ok := s.spec.SimulationSettings.InitialEntityCounts[kind]
		if !ok {
			continue
		}
		entityDef, _ := s.spec.Entity(kind)
		schema, ok := s.spec.Schema(entityDef.Schema)
		if !ok {
			return fmt.Errorf("scheduler: entity %q references unknown schema %q", kind, entityDef.Schema)
		}
		for i := 0; i < count; i++ {
			ctx := &generate.RenderContext{
				Clock: s.clock, PRNG: s.streams, Store: s.store,
				Binding: entitystore.NewBinding(), Provider: s.provider(),
			}
			payload, err := s.interp.GenerateObject(schema, ctx)
			if err != nil {
				return fmt.Errorf("scheduler: generating initial %q entity %d/%d: %w", kind, i+1, count, err)
			}
			inst, err := instantiateEntity(kind, entityDef, payload)
			if err != nil {
				return err
			}
			if err := s.store.Insert(inst); err != nil {
				return fmt.Errorf("scheduler: inserting initial %q entity: %w", kind, err)
			}
		}
		s.log.Info("created initial entities", "kind", kind, "count", count)
	}
	return nil
}

func (s *Scheduler) provider() generate.Provider {
	return generate.NewBuiltinProvider(s.streams.Stream(prng.StreamGenerator))
}

// Run executes the scheduler loop to completion.
func (s *Scheduler) Run() (Result, error) {
	wallStart := time.Now()
	var duration time.Duration
	if s.spec.SimulationSettings.Duration != "" {
		d, err := time.ParseDuration(s.spec.SimulationSettings.Duration)
		if err != nil {
			return Result{}, fmt.Errorf("scheduler: invalid duration %q: %w", s.spec.SimulationSettings.Duration, err)
		}
		duration = d
	}
	totalEvents := s.spec.SimulationSettings.TotalEvents

	emitted := 0
	consecutiveStarved := 0

	for {
		if s.stopRequested.Load() {
			return s.finish(emitted, wallStart, TerminationStopped), nil
		}
		if duration > 0 && time.Since(wallStart) >= duration {
			return s.finish(emitted, wallStart, TerminationDuration), nil
		}
		if totalEvents != nil && emitted >= *totalEvents {
			return s.finish(emitted, wallStart, TerminationTotalEvents), nil
		}

		s.attemptScenarioInitiation()

		candidates := s.buildCandidatePool()
		candidates = s.filterFeasible(candidates)

		if len(candidates) == 0 {
			consecutiveStarved++
			if consecutiveStarved >= s.starvationBound {
				s.log.Warn("simulation starved", "consecutive_ticks", consecutiveStarved)
				return s.finish(emitted, wallStart, TerminationStarved), nil
			}
			s.clock.Advance(simclock.DefaultInterEventDelta)
			continue
		}
		consecutiveStarved = 0

		chosen := s.pickWeighted(candidates)
		if err := s.generateAndCommit(chosen); err != nil {
			s.log.Warn("event commit failed, skipping", "event_type", chosen.eventTypeName, "error", err)
			s.clock.Advance(simclock.DefaultInterEventDelta)
			continue
		}

		emitted++
		if emitted%100 == 0 {
			s.log.Info("progress", "events_emitted", emitted, "simulation_time", s.clock.Now())
		}
		s.clock.Advance(simclock.DefaultInterEventDelta)
	}
}

func (s *Scheduler) finish(emitted int, wallStart time.Time, reason string) Result {
	return Result{EventsEmitted: emitted, DurationObserved: time.Since(wallStart), TerminationReason: reason}
}

// candidateKind discriminates a standalone event-type candidate from a
// pending scenario-step candidate.
type candidateKind int

const (
	candidateStandalone candidateKind = iota
	candidateScenarioStep
)

type candidate struct {
	kind          candidateKind
	eventTypeName string
	eventDef      *specmodel.EventTypeDef
	weight        float64
	scenario      *scenarioRun
	step          *specmodel.ScenarioStep
}

// buildCandidatePool unions pending scenario steps whose wakeup has
// arrived with every standalone event type, in
// spec-declared order so weighted-pick ties break deterministically.
func (s *Scheduler) buildCandidatePool() []candidate {
	var pool []candidate
	now := s.clock.Now()
	for _, run := range s.scenarios {
		if run.completed || run.pendingWakeup.After(now) {
			continue
		}
		step := s.currentStep(run)
		if step == nil {
			continue
		}
		eventDef, ok := s.spec.EventType(step.EventType)
		if !ok {
			s.log.Warn("scenario step references unknown event type", "scenario", run.name, "event_type", step.EventType)
			continue
		}
		pool = append(pool, candidate{
			kind: candidateScenarioStep, eventTypeName: step.EventType, eventDef: eventDef,
			weight: eventDef.FrequencyWeight, scenario: run, step: step,
		})
	}
	if s.spec.EventTypes != nil {
		for _, name := range s.spec.EventTypes.Keys() {
			eventDef, _ := s.spec.EventType(name)
			pool = append(pool, candidate{kind: candidateStandalone, eventTypeName: name, eventDef: eventDef, weight: eventDef.FrequencyWeight})
		}
	}
	return pool
}

func (s *Scheduler) currentStep(run *scenarioRun) *specmodel.ScenarioStep {
	if run.stepIndex >= len(run.def.Steps) {
		return nil
	}
	return &run.def.Steps[run.stepIndex]
}

// filterFeasible retains only candidates feasible per the dependency
// resolver.
func (s *Scheduler) filterFeasible(pool []candidate) []candidate {
	out := make([]candidate, 0, len(pool))
	for _, c := range pool {
		if s.resolve.Feasible(c.eventDef) {
			out = append(out, c)
		}
	}
	return out
}

// pickWeighted samples one candidate by weight using the schedule
// sub-stream.
func (s *Scheduler) pickWeighted(pool []candidate) candidate {
	weights := make([]float64, len(pool))
	for i, c := range pool {
		weights[i] = c.weight
	}
	idx := prng.WeightedIndex(s.streams.Stream(prng.StreamSchedule), weights)
	if idx < 0 {
		idx = 0
	}
	return pool[idx]
}

// attemptScenarioInitiation makes one weighted draw (scenario vs. "do
// nothing") using the scenario_init sub-stream, starting a new scenario
// run when a feasible one is chosen.
func (s *Scheduler) attemptScenarioInitiation() {
	if s.spec.Scenarios == nil || s.spec.Scenarios.Len() == 0 {
		return
	}
	names := s.spec.Scenarios.Keys()
	weights := make([]float64, 0, len(names)+1)
	total := 0.0
	for _, name := range names {
		def, _ := s.spec.Scenario(name)
		weights = append(weights, def.InitiationWeight)
		total += def.InitiationWeight
	}
	weights = append(weights, total*doNothingWeightFactor) // "do nothing" slot

	idx := prng.WeightedIndex(s.streams.Stream(prng.StreamScenarioInit), weights)
	if idx < 0 || idx == len(names) {
		return // do-nothing slot, or all weights zero
	}

	name := names[idx]
	def, _ := s.spec.Scenario(name)
	if !s.resolve.FeasibleScenario(def.RequiresInitialEntities) {
		return
	}
	binding := s.resolve.ResolveScenario(def.RequiresInitialEntities, s.streams.Stream(prng.StreamSelection))
	run := &scenarioRun{name: name, def: def, binding: binding, pendingWakeup: s.clock.Now()}
	s.scenarios = append(s.scenarios, run)
	s.log.Debug("scenario initiated", "scenario", name)
}

// generateAndCommit renders the chosen candidate's payload, applies any
// scenario step payload_overrides, commits entity effects, emits the
// record, and advances scenario bookkeeping.
func (s *Scheduler) generateAndCommit(c candidate) error {
	binding := entitystore.NewBinding()
	if c.scenario != nil {
		binding = c.scenario.binding
	}
	resolved, err := s.resolve.Resolve(c.eventDef, s.streams.Stream(prng.StreamSelection))
	if err != nil {
		return err
	}
	binding.MergeFrom(resolved)

	schema, ok := s.spec.Schema(c.eventDef.PayloadSchema)
	if !ok {
		return fmt.Errorf("event_type %q: payload_schema %q not found", c.eventTypeName, c.eventDef.PayloadSchema)
	}
	ctx := &generate.RenderContext{Clock: s.clock, PRNG: s.streams, Store: s.store, Binding: binding, Provider: s.provider()}
	payload, err := s.interp.GenerateObject(schema, ctx)
	if err != nil {
		return simerr.NewGeneratorFault(c.eventTypeName, "", err)
	}
	if c.step != nil {
		for field, override := range c.step.PayloadOverrides {
			payload.Set(field, value.FromNative(override))
		}
	}

	if err := s.commit(c, binding, payload); err != nil {
		return err
	}

	s.emitter.Emit(Record{EventType: c.eventTypeName, Timestamp: s.clock.Now(), Payload: payload})

	if c.scenario != nil {
		s.advanceScenario(c.scenario, c.step)
	}
	return nil
}

// commit applies produces_entity/produces_or_updates_entity and
// updates_entity_state as a single unit: every step that mutates the
// store pushes an undo closure, and if any later step fails, every undo
// pushed so far runs in reverse order before the error is returned. This
// guarantees an event is never partially committed — either every
// declared mutation lands, or none does, so the next tick never observes
// state left behind by an event that was never emitted.
func (s *Scheduler) commit(c candidate, binding *entitystore.Binding, payload *value.Object) error {
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	if kind := c.eventDef.ProducesEntity; kind != "" {
		entityDef, ok := s.spec.Entity(kind)
		if !ok {
			return fmt.Errorf("produces_entity: unknown entity %q", kind)
		}
		inst, err := instantiateEntity(kind, entityDef, payload)
		if err != nil {
			return err
		}
		if err := s.store.Insert(inst); err != nil {
			return err
		}
		pk := inst.PrimaryKeyValue
		undo = append(undo, func() { s.store.Delete(kind, pk) })
		binding.Bind("", kind, inst)
	}

	if kind := c.eventDef.ProducesOrUpdatesEntity; kind != "" {
		entityDef, ok := s.spec.Entity(kind)
		if !ok {
			rollback()
			return fmt.Errorf("produces_or_updates_entity: unknown entity %q", kind)
		}
		inst, instUndo, err := s.produceOrUpdate(kind, entityDef, payload, c.eventDef.UpdateExistingProbability)
		if err != nil {
			rollback()
			return err
		}
		undo = append(undo, instUndo)
		binding.Bind("", kind, inst)
	}

	if err := applyStateUpdates(binding, c.eventDef.UpdatesEntityState, payload); err != nil {
		rollback()
		return err
	}
	return nil
}

// produceOrUpdate decides, via the generator sub-stream, whether to update
// an existing entity of kind or create a new one (zero instances of the
// target kind always creates). It returns an undo closure reverting
// whichever branch ran, so commit can unwind this step if a later step in
// the same commit fails.
func (s *Scheduler) produceOrUpdate(kind string, entityDef *specmodel.EntityDef, payload *value.Object, updateProb float64) (*entitystore.Instance, func(), error) {
	existing := s.store.All(kind)
	r := s.streams.Stream(prng.StreamGenerator)
	if len(existing) > 0 && r.Float64() < updateProb {
		target := existing[r.Intn(len(existing))]
		previousPayload := target.Payload.Clone()
		err := s.store.Update(kind, target.PrimaryKeyValue, func(inst *entitystore.Instance) error {
			for _, field := range payload.Keys() {
				v, _ := payload.Get(field)
				inst.Payload.Set(field, v)
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		undo := func() { target.Payload = previousPayload }
		return target, undo, nil
	}
	inst, err := instantiateEntity(kind, entityDef, payload)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.Insert(inst); err != nil {
		return nil, nil, err
	}
	pk := inst.PrimaryKeyValue
	undo := func() { s.store.Delete(kind, pk) }
	return inst, undo, nil
}

// advanceScenario moves run to its next step or loop iteration and
// schedules its next wakeup.
func (s *Scheduler) advanceScenario(run *scenarioRun, step *specmodel.ScenarioStep) {
	delay := simclock.DefaultInterEventDelta
	if step.Loop != nil {
		if run.loopRemaining == 0 {
			r := s.streams.Stream(prng.StreamScenarioInit)
			run.loopRemaining = step.Loop.MinCount + r.Intn(step.Loop.MaxCount-step.Loop.MinCount+1) - 1
			delay = time.Duration(step.Loop.DelayBetweenLoops * float64(time.Second))
		} else {
			run.loopRemaining--
			delay = time.Duration(step.Loop.DelayBetweenLoops * float64(time.Second))
		}
		if run.loopRemaining > 0 {
			run.pendingWakeup = s.clock.Now().Add(delay)
			return
		}
	}
	if step.DelayAfterPrevious != nil {
		u := prng.Uniform(s.streams.Stream(prng.StreamSchedule), step.DelayAfterPrevious.MinSeconds, step.DelayAfterPrevious.MaxSeconds)
		delay = time.Duration(u * float64(time.Second))
	}
	run.stepIndex++
	if run.stepIndex >= len(run.def.Steps) {
		run.completed = true
		s.removeCompletedScenarios()
		return
	}
	run.pendingWakeup = s.clock.Now().Add(delay)
}

func (s *Scheduler) removeCompletedScenarios() {
	out := s.scenarios[:0]
	for _, r := range s.scenarios {
		if !r.completed {
			out = append(out, r)
		}
	}
	s.scenarios = out
}
