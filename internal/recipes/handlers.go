package recipes

import (
	"context"
	"fmt"
	"io"

	"github.com/roach88/hookrun/internal/engine"
)

// CreateRecipe stores a recipe and dispatches Notify about it.
type CreateRecipe struct {
	engine.BaseHandler
	repo *Repository
}

// NewCreateRecipe creates the handler.
func NewCreateRecipe(repo *Repository) *CreateRecipe {
	return &CreateRecipe{repo: repo}
}

func (h *CreateRecipe) Handle(ctx context.Context, input any) (any, error) {
	in, err := engine.As[*CreateRecipeInput](input)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, ErrTitleRequired
	}

	recipe, err := h.repo.Create(ctx, *in)
	if err != nil {
		return nil, err
	}

	if _, err := h.Run(ctx, engine.CommandType[*Notify](), fmt.Sprintf("Created Recipe %d", recipe.ID)); err != nil {
		return nil, err
	}
	return recipe, nil
}

// GetRecipes lists every recipe.
type GetRecipes struct {
	repo *Repository
}

// NewGetRecipes creates the handler.
func NewGetRecipes(repo *Repository) *GetRecipes {
	return &GetRecipes{repo: repo}
}

func (h *GetRecipes) Handle(ctx context.Context, input any) (any, error) {
	return h.repo.Find(ctx)
}

// Notify writes its string input as one line.
type Notify struct {
	out io.Writer
}

// NewNotify creates the handler writing to out.
func NewNotify(out io.Writer) *Notify {
	return &Notify{out: out}
}

func (h *Notify) Handle(ctx context.Context, input any) (any, error) {
	msg, err := engine.As[string](input)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintln(h.out, msg); err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	return nil, nil
}
