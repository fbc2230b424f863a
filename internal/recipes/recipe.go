// Package recipes is a small recipe book built on the engine: handlers for
// creating and listing recipes, a notification command the create handler
// dispatches, a title gate and before/after hooks.
package recipes

// Recipe is a stored recipe.
type Recipe struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// CreateRecipeInput is the input of CreateRecipe.
type CreateRecipeInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}
