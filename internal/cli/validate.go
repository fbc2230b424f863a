package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/hookrun/internal/manifest"
	"github.com/roach88/hookrun/internal/recipes"
	"github.com/roach88/hookrun/internal/registry"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Bindings int                 `json:"bindings,omitempty"`
	Errors   []ManifestErrorInfo `json:"errors,omitempty"`
}

// ManifestErrorInfo is a manifest error in CLI output.
type ManifestErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Index   int    `json:"index"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a binding manifest without running anything",
		Long: `Validate a CUE binding manifest against the manifest schema and the
recipe app catalog. Every command and observer name must resolve and every
hook method must have the right shape for its kind.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	formatter.VerboseLog("Loading manifest %s", path)
	m, err := manifest.Load(path)
	if err == nil {
		formatter.VerboseLog("Resolving %d binding(s)", len(m.Bindings))
		var n int
		n, err = m.Apply(recipes.Catalog(), registry.New())
		if err == nil {
			return outputValidateSuccess(formatter, n)
		}
	}

	info := ManifestErrorInfo{Code: ErrCodeGeneric, Message: err.Error(), Index: -1}
	var merr *manifest.Error
	if errors.As(err, &merr) {
		info = ManifestErrorInfo{Code: merr.Code, Message: merr.Message, Index: merr.Index}
		if merr.Pos.IsValid() {
			info.Line = merr.Pos.Line()
		}
	}
	return outputValidationErrors(formatter, path, info)
}

func outputValidateSuccess(f *OutputFormatter, bindings int) error {
	if f.Format == "json" {
		return f.Success(ValidationResult{Valid: true, Bindings: bindings})
	}
	fmt.Fprintf(f.Writer, "✓ Manifest is valid (%d bindings)\n", bindings)
	return nil
}

func outputValidationErrors(f *OutputFormatter, path string, info ManifestErrorInfo) error {
	if f.Format == "json" {
		_ = f.Error(info.Code, info.Message, ValidationResult{Valid: false, Errors: []ManifestErrorInfo{info}})
	} else {
		fmt.Fprintln(f.Writer, "✗ Manifest is invalid")
		location := path
		if info.Line > 0 {
			location = fmt.Sprintf("%s:%d", path, info.Line)
		}
		if info.Index >= 0 {
			fmt.Fprintf(f.Writer, "  [%s] %s: bindings[%d]: %s\n", info.Code, location, info.Index, info.Message)
		} else {
			fmt.Fprintf(f.Writer, "  [%s] %s: %s\n", info.Code, location, info.Message)
		}
	}
	return NewExitError(ExitFailure, "manifest validation failed")
}
