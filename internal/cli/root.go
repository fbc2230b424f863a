package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that back every flag:
// --db is also read from HOOKRUN_DB, --format from HOOKRUN_FORMAT.
const EnvPrefix = "HOOKRUN"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Manifest string // optional CUE binding manifest
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the hookrun CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hookrun",
		Short: "hookrun - command dispatch with hooks",
		Long: `Run commands through middleware, before and after hooks, record every
invocation and completion to SQLite, and inspect the recorded flows.

Every flag can also be set through a HOOKRUN_<FLAG> environment variable.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.prepare(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Manifest, "manifest", "", "CUE manifest with extra bindings")

	cmd.AddCommand(
		NewRunCommand(opts),
		NewBindingsCommand(opts),
		NewValidateCommand(opts),
		NewTraceCommand(opts),
		NewTestCommand(opts),
	)
	return cmd
}

// prepare runs before every subcommand: environment first, then checks
// that need the final flag values.
func (o *RootOptions) prepare(cmd *cobra.Command) error {
	if err := bindEnv(cmd); err != nil {
		return err
	}
	if !slices.Contains(ValidFormats, o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}
	return nil
}

// bindEnv fills every flag the user did not set from its HOOKRUN_*
// environment variable.
func bindEnv(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var first error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if first != nil {
			return
		}
		if first = v.BindPFlag(f.Name, f); first != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := cmd.Flags().Set(f.Name, v.GetString(f.Name)); err != nil {
			first = fmt.Errorf("%s: %w", envName(f.Name), err)
		}
	})
	return first
}

// envName is the variable backing a flag, e.g. HOOKRUN_GOLDEN_DIR for
// --golden-dir.
func envName(flag string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// newLogger returns the CLI logger: a charmbracelet/log handler behind
// slog, at info level or debug with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := charmlog.InfoLevel
	if opts.Verbose {
		level = charmlog.DebugLevel
	}
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Prefix: "hookrun",
		Level:  level,
	})
	if opts.Format == "json" {
		handler.SetFormatter(charmlog.JSONFormatter)
	}
	return slog.New(handler)
}
