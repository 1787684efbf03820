package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/resinker/internal/entitystore"
	"github.com/roach88/resinker/internal/prng"
	"github.com/roach88/resinker/internal/scheduler"
	"github.com/roach88/resinker/internal/simclock"
	"github.com/roach88/resinker/internal/sink"
	"github.com/roach88/resinker/internal/specmodel"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SeedOverride int64
	HaveSeed     bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <spec.yaml>",
		Short: "Run a simulation to completion",
		Long: `Run a simulation to completion, emitting events to every enabled output.

Example:
  resinker run ./scenarios/signup.yaml
  resinker run --seed 42 ./scenarios/signup.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.SeedOverride, "seed", 0, "override random_seed from the spec")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		opts.HaveSeed = cmd.Flags().Changed("seed")
		return nil
	}

	return cmd
}

func runSimulation(opts *RunOptions, specPath string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	spec, err := loadSpecFile(specPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load spec", err)
	}
	if opts.HaveSeed {
		spec.SimulationSettings.RandomSeed = opts.SeedOverride
	}

	sinks, err := sink.Build(spec.Outputs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build output sinks", err)
	}
	fanOut := sink.NewFanOut(sinks, logger)

	sched, err := newScheduler(spec, fanOut, logger)
	if err != nil {
		fanOut.Close()
		return WrapExitError(ExitCommandError, "failed to initialize simulation", err)
	}

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after current tick", "signal", sig)
			sched.Stop()
		case <-done:
			return
		}
		// A second signal means the operator doesn't want to wait for the
		// current tick to finish; abort immediately instead of draining.
		select {
		case sig := <-sigChan:
			logger.Error("received second signal, aborting immediately", "signal", sig)
			os.Exit(ExitFailure)
		case <-done:
		}
	}()

	logger.Info("simulation starting", "spec", specPath, "random_seed", spec.SimulationSettings.RandomSeed)
	result, runErr := sched.Run()
	close(done)
	fanOut.Close()

	if runErr != nil {
		return WrapExitError(ExitFailure, "simulation failed", runErr)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	return formatter.Success(runSummary{
		EventsEmitted:     result.EventsEmitted,
		DurationObserved:  result.DurationObserved.String(),
		TerminationReason: result.TerminationReason,
	})
}

type runSummary struct {
	EventsEmitted     int    `json:"events_emitted"`
	DurationObserved  string `json:"duration_observed"`
	TerminationReason string `json:"termination_reason"`
}

func (r runSummary) String() string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("emitted %d event(s) in %s (%s)", r.EventsEmitted, r.DurationObserved, r.TerminationReason)
}

// newScheduler wires a fresh entity store, PRNG streams, and clock from
// spec and returns a scheduler with initial entities already created.
func newScheduler(spec *specmodel.Spec, emitter scheduler.Emitter, logger *slog.Logger) (*scheduler.Scheduler, error) {
	start, err := simclock.ResolveStartTime(spec.SimulationSettings.TimeProgression.StartTime, time.Now())
	if err != nil {
		return nil, err
	}
	clock := simclock.New(start, spec.SimulationSettings.TimeProgression.TimeMultiplier)
	streams := prng.New(spec.SimulationSettings.RandomSeed)
	store := entitystore.New()

	sched := scheduler.New(spec, store, streams, clock, emitter, logger)
	if err := sched.InitializeEntities(); err != nil {
		return nil, err
	}
	return sched, nil
}

func loadSpecFile(path string) (*specmodel.Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()
	return specmodel.Load(f)
}
