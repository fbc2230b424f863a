package recipes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/hookrun/internal/engine"
)

// ErrTitleRequired rejects recipes without a title.
var ErrTitleRequired = errors.New("recipe title is required")

// RequireTitle is a gate on CreateRecipe.
type RequireTitle struct{}

func (*RequireTitle) Use(ctx context.Context, input any, r *engine.Runner) error {
	in, ok := input.(*CreateRecipeInput)
	if !ok || in == nil || strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	return nil
}

// RecipeHooks normalizes recipe input and audits created recipes.
type RecipeHooks struct {
	out io.Writer
}

// NewRecipeHooks creates hooks writing audit lines to out.
func NewRecipeHooks(out io.Writer) *RecipeHooks {
	return &RecipeHooks{out: out}
}

// Normalize trims the title and description. Runs before CreateRecipe.
func (h *RecipeHooks) Normalize(ctx context.Context, in *CreateRecipeInput) error {
	if in == nil {
		return nil
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	return nil
}

// Audit records a created recipe. Runs after CreateRecipe.
func (h *RecipeHooks) Audit(ctx context.Context, in *CreateRecipeInput, recipe Recipe) error {
	_, err := fmt.Fprintf(h.out, "audit: recipe %d %q created\n", recipe.ID, recipe.Title)
	return err
}

// Announce dispatches Notify about a created recipe. It is not registered
// by Register; manifests bind it.
func (h *RecipeHooks) Announce(ctx context.Context, in *CreateRecipeInput, recipe Recipe, r *engine.Runner) error {
	_, err := r.Run(ctx, engine.CommandType[*Notify](), "New recipe: "+recipe.Title)
	return err
}
