package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/hookrun/internal/catalog"
	"github.com/roach88/hookrun/internal/engine"
	"github.com/roach88/hookrun/internal/harness"
	"github.com/roach88/hookrun/internal/manifest"
	"github.com/roach88/hookrun/internal/recipes"
	"github.com/roach88/hookrun/internal/registry"
	"github.com/roach88/hookrun/internal/store"
)

// Error codes for CLI output.
const (
	ErrCodeGeneric      = "E001"
	ErrCodeUnknownCmd   = "E002" // Command name not in the catalog
	ErrCodeBadInput     = "E003" // --input does not decode into the command's input type
	ErrCodeDispatch     = "E004" // Run failed in a hook or handler
	ErrCodeFlowNotFound = "E005"
	ErrCodeManifest     = "E006"
)

// appBindings builds the registry the CLI dispatches with: the recipe
// bindings plus the optional manifest.
func appBindings(cat *catalog.Catalog, manifestPath string) (*registry.Registry, error) {
	reg := registry.New()
	if err := recipes.Register(engine.Declare(reg)); err != nil {
		return nil, fmt.Errorf("register recipe bindings: %w", err)
	}
	if manifestPath == "" {
		return reg, nil
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	if _, err := m.Apply(cat, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// appRuntime is a runner wired to the recipe app and a trace store.
type appRuntime struct {
	catalog *catalog.Catalog
	runner  *engine.Runner
}

func newAppRuntime(ctx context.Context, opts *RootOptions, st *store.Store, out io.Writer, flowGen engine.FlowTokenGenerator, logger *slog.Logger) (*appRuntime, error) {
	cat := recipes.Catalog()
	reg, err := appBindings(cat, opts.Manifest)
	if err != nil {
		return nil, err
	}

	resolver, err := recipes.Build(ctx, st.DB(), out, true)
	if err != nil {
		return nil, err
	}

	// Continue the sequence of earlier runs recorded in the same database.
	last, err := st.MaxSeq(ctx)
	if err != nil {
		return nil, err
	}

	runner := engine.New(
		engine.WithRegistry(reg),
		engine.WithResolver(resolver),
		engine.WithRecorder(st),
		engine.WithNamer(cat),
		engine.WithFlowGenerator(flowGen),
		engine.WithClock(engine.NewClockAt(last)),
		engine.WithLogger(logger),
	)
	return &appRuntime{catalog: cat, runner: runner}, nil
}

// harnessApp describes the recipe app to the scenario harness.
func harnessApp() harness.App {
	return harness.App{
		Catalog:  recipes.Catalog(),
		Register: recipes.Register,
		Build: func(ctx context.Context, db *sql.DB, out io.Writer) (engine.Resolver, error) {
			return recipes.Build(ctx, db, out, false)
		},
	}
}
