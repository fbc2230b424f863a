package recipes

import (
	"context"
	"database/sql"
	"fmt"
)

const recipesSchema = `
CREATE TABLE IF NOT EXISTS recipes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT ''
)`

// Repository stores recipes in SQLite. It shares the database handle of the
// trace store when run from the CLI.
type Repository struct {
	db *sql.DB
}

// NewRepository creates the recipes table if needed.
func NewRepository(ctx context.Context, db *sql.DB) (*Repository, error) {
	if _, err := db.ExecContext(ctx, recipesSchema); err != nil {
		return nil, fmt.Errorf("create recipes table: %w", err)
	}
	return &Repository{db: db}, nil
}

// Seed inserts the starter recipe into an empty table.
func (r *Repository) Seed(ctx context.Context) error {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipes`).Scan(&n); err != nil {
		return fmt.Errorf("count recipes: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err := r.Create(ctx, CreateRecipeInput{Title: "Pizza", Description: "Pepperoni"})
	return err
}

// Find returns every recipe ordered by ID.
func (r *Repository) Find(ctx context.Context) ([]Recipe, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, description FROM recipes ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query recipes: %w", err)
	}
	defer rows.Close()

	recipes := []Recipe{}
	for rows.Next() {
		var rec Recipe
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description); err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		recipes = append(recipes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", err)
	}
	return recipes, nil
}

// Create inserts a recipe and returns it with its assigned ID.
func (r *Repository) Create(ctx context.Context, in CreateRecipeInput) (Recipe, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recipes (title, description) VALUES (?, ?)`,
		in.Title, in.Description,
	)
	if err != nil {
		return Recipe{}, fmt.Errorf("insert recipe: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Recipe{}, fmt.Errorf("insert recipe: %w", err)
	}
	return Recipe{ID: id, Title: in.Title, Description: in.Description}, nil
}
