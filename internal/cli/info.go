package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/resinker/internal/specmodel"
)

// SpecInfo summarizes a spec's top-level shape for the info command.
type SpecInfo struct {
	Version        string   `json:"version"`
	SchemaCount    int      `json:"schema_count"`
	EntityKinds    []string `json:"entity_kinds"`
	EventTypes     []string `json:"event_types"`
	Scenarios      []string `json:"scenarios"`
	OutputTypes    []string `json:"output_types"`
	Duration       string   `json:"duration,omitempty"`
	TotalEvents    *int     `json:"total_events,omitempty"`
	RandomSeed     int64    `json:"random_seed"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <spec.yaml>",
		Short: "Summarize a spec's entities, event types, scenarios, and outputs",
		Args:  cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInfo(opts *RootOptions, specPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	spec, err := loadSpecFile(specPath)
	if err != nil {
		_ = formatter.Error("E_LOAD", err.Error(), nil)
		return NewExitError(ExitCommandError, "failed to load spec")
	}

	info := SpecInfo{
		Version:     spec.Version,
		SchemaCount: specmodel.SchemaCount(spec),
		Duration:    spec.SimulationSettings.Duration,
		TotalEvents: spec.SimulationSettings.TotalEvents,
		RandomSeed:  spec.SimulationSettings.RandomSeed,
	}
	if spec.Entities != nil {
		info.EntityKinds = spec.Entities.Keys()
	}
	if spec.EventTypes != nil {
		info.EventTypes = spec.EventTypes.Keys()
	}
	if spec.Scenarios != nil {
		info.Scenarios = spec.Scenarios.Keys()
	}
	for _, out := range spec.Outputs {
		if out.Enabled {
			info.OutputTypes = append(info.OutputTypes, out.Type)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(info)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "version: %s\n", info.Version)
	fmt.Fprintf(w, "random_seed: %d\n", info.RandomSeed)
	if info.Duration != "" {
		fmt.Fprintf(w, "duration: %s\n", info.Duration)
	}
	if info.TotalEvents != nil {
		fmt.Fprintf(w, "total_events: %d\n", *info.TotalEvents)
	}
	fmt.Fprintf(w, "schemas: %d\n", info.SchemaCount)
	fmt.Fprintf(w, "entities (%d): %v\n", len(info.EntityKinds), info.EntityKinds)
	fmt.Fprintf(w, "event_types (%d): %v\n", len(info.EventTypes), info.EventTypes)
	fmt.Fprintf(w, "scenarios (%d): %v\n", len(info.Scenarios), info.Scenarios)
	fmt.Fprintf(w, "enabled outputs: %v\n", info.OutputTypes)
	return nil
}
