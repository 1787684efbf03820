package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/resinker/internal/specmodel"
)

// ValidationResult is the validate command's JSON payload.
type ValidationResult struct {
	Valid  bool                          `json:"valid"`
	Errors []specmodel.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec.yaml>",
		Short: "Validate a spec's internal references without running it",
		Long: `Load a spec and cross-check every reference it makes against its own
declared schemas, entities, and event types (payload_schema, produces_entity,
consumes_entities, scenario step event types, and $ref targets).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, specPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	spec, err := loadSpecFile(specPath)
	if err != nil {
		_ = formatter.Error("E_LOAD", err.Error(), nil)
		return NewExitError(ExitCommandError, "failed to load spec")
	}

	formatter.VerboseLog("loaded spec %q: %d schema(s), %d entity kind(s), %d event type(s), %d scenario(s)",
		specPath, specmodel.SchemaCount(spec), specmodel.EntityCount(spec), specmodel.EventTypeCount(spec), specmodel.ScenarioCount(spec))

	errs := spec.Validate()
	if len(errs) == 0 {
		if opts.Format == "json" {
			return formatter.Success(ValidationResult{Valid: true})
		}
		fmt.Fprintln(formatter.Writer, "spec is valid")
		return nil
	}

	if opts.Format == "json" {
		if err := formatter.Success(ValidationResult{Valid: false, Errors: errs}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "spec is invalid")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  [%s] %s: %s\n", e.Code, e.Field, e.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
