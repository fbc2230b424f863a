package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/hookrun/internal/recipes"
)

// BindingInfo describes one registered binding.
type BindingInfo struct {
	Kind     string `json:"kind"`
	Command  string `json:"command"`
	Observer string `json:"observer"`
	Method   string `json:"method"`
	Priority int    `json:"priority"`
}

// NewBindingsCommand creates the bindings command.
func NewBindingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bindings",
		Short: "List registered bindings in execution order",
		Long: `List every middleware, before and after binding of the recipe app,
including those added by --manifest, in the order the runner executes them.

Examples:
  hookrun bindings
  hookrun bindings --manifest bindings.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBindings(rootOpts, cmd)
		},
	}
	return cmd
}

func runBindings(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cat := recipes.Catalog()
	reg, err := appBindings(cat, opts.Manifest)
	if err != nil {
		_ = formatter.Error(ErrCodeManifest, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load bindings", err)
	}

	all := reg.All()
	infos := make([]BindingInfo, len(all))
	for i, b := range all {
		infos[i] = BindingInfo{
			Kind:     b.Kind.String(),
			Command:  cat.Name(b.Observed),
			Observer: cat.Name(b.Observer),
			Method:   b.Method,
			Priority: b.Priority,
		}
	}

	if opts.Format == "json" {
		return formatter.Success(infos)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tCOMMAND\tOBSERVER\tPRIORITY")
	for _, b := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s.%s\t%d\n", b.Kind, b.Command, b.Observer, b.Method, b.Priority)
	}
	return tw.Flush()
}
