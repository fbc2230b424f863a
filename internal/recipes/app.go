package recipes

import (
	"context"
	"database/sql"
	"io"
	"reflect"

	"github.com/roach88/hookrun/internal/catalog"
	"github.com/roach88/hookrun/internal/container"
	"github.com/roach88/hookrun/internal/engine"
)

// Catalog names the recipe commands and observers.
func Catalog() *catalog.Catalog {
	c := catalog.New()
	mustAdd(c.AddCommand("CreateRecipe", engine.CommandType[*CreateRecipe](), reflect.TypeFor[*CreateRecipeInput]()))
	mustAdd(c.AddCommand("GetRecipes", engine.CommandType[*GetRecipes](), nil))
	mustAdd(c.AddCommand("Notify", engine.CommandType[*Notify](), reflect.TypeFor[string]()))
	mustAdd(c.AddObserver("RequireTitle", reflect.TypeFor[*RequireTitle]()))
	mustAdd(c.AddObserver("RecipeHooks", reflect.TypeFor[*RecipeHooks]()))
	return c
}

func mustAdd(err error) {
	if err != nil {
		panic(err)
	}
}

// Register declares the recipe bindings: the title gate, input
// normalization before create, and the audit hook after create.
func Register(d *engine.Declarer) error {
	create := engine.CommandType[*CreateRecipe]()
	hooks := reflect.TypeFor[*RecipeHooks]()

	if err := d.Use(create, engine.HandleMethod, reflect.TypeFor[*RequireTitle]()); err != nil {
		return err
	}
	if err := d.Before(create, hooks, "Normalize", engine.WithPriority(10)); err != nil {
		return err
	}
	return d.After(create, hooks, "Audit")
}

// NewContainer wires the recipe handlers and hooks. Notify and the audit
// hook write to out.
func NewContainer(repo *Repository, out io.Writer) *container.Container {
	c := container.New()
	c.MustProvide(func() *Repository { return repo })
	c.MustProvide(NewCreateRecipe)
	c.MustProvide(NewGetRecipes)
	c.MustProvide(func() *Notify { return NewNotify(out) })
	c.MustProvide(func() *RecipeHooks { return NewRecipeHooks(out) })
	c.MustProvide(func() *RequireTitle { return &RequireTitle{} })
	return c
}

// Build creates the recipes table on db and returns a resolver for the
// recipe handlers and hooks. The table is seeded when seed is set.
func Build(ctx context.Context, db *sql.DB, out io.Writer, seed bool) (engine.Resolver, error) {
	repo, err := NewRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	if seed {
		if err := repo.Seed(ctx); err != nil {
			return nil, err
		}
	}
	return NewContainer(repo, out), nil
}
