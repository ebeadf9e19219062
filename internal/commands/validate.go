package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"evalgo.org/mgapphost/internal/validation"
	"evalgo.org/mgapphost/pkg/appmodel"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configured application model",
	Long: `Build the application model from configuration and report every
registration problem (invalid names, duplicate resources, bad ports)
without contacting Docker.

Examples:
  mgapphost validate
  mgapphost validate --config prod.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	app, _, err := buildModel(cfg, logger)
	return reportValidation(cmd.OutOrStdout(), app, err)
}

// reportValidation prints the outcome of a model build and returns a
// non-nil error when the model is invalid.
func reportValidation(w io.Writer, app *appmodel.Application, buildErr error) error {
	if buildErr == nil {
		fmt.Fprintf(w, "✓ Application model is valid (%d resources)\n", len(app.Resources()))
		return nil
	}

	errs := []error{buildErr}
	var merr *multierror.Error
	if errors.As(buildErr, &merr) {
		errs = merr.Errors
	}

	fmt.Fprintln(w, "✗ Validation failed:")
	for _, e := range errs {
		var ve *validation.ValidationError
		if errors.As(e, &ve) && ve.Value != nil {
			fmt.Fprintf(w, "  - %s (value: %v)\n", e, ve.Value)
		} else {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}

	return fmt.Errorf("validation failed")
}
