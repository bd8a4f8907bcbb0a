package enrich

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lysyi3m/content-forge/app/database"
)

const Uncategorized = "Uncategorized"

// CategoryOutcome carries the resolved category. ID is nil for the
// Uncategorized sentinel.
type CategoryOutcome struct {
	ID   *string
	Name string
}

func (o CategoryOutcome) IsUncategorized() bool {
	return o.ID == nil
}

type CategoryResolver struct {
	repo database.CategoryRepository
}

func NewCategoryResolver(repo database.CategoryRepository) *CategoryResolver {
	return &CategoryResolver{repo: repo}
}

// Resolve never fails: lookup or creation errors degrade to Uncategorized.
func (r *CategoryResolver) Resolve(ctx context.Context, siteID, suggested string) CategoryOutcome {
	name := strings.Join(strings.Fields(suggested), " ")
	if name == "" || strings.EqualFold(name, Uncategorized) {
		return CategoryOutcome{Name: Uncategorized}
	}

	existing, err := r.repo.FindCategoryByName(ctx, siteID, name)
	if err != nil {
		slog.Warn("Category lookup failed", "site", siteID, "category", name, "error", err)
		return CategoryOutcome{Name: Uncategorized}
	}
	if existing != nil {
		return CategoryOutcome{ID: &existing.ID, Name: existing.Name}
	}

	created, err := r.repo.CreateCategory(ctx, siteID, name, Slugify(name))
	if err != nil {
		slog.Warn("Category creation failed", "site", siteID, "category", name, "error", err)
		return CategoryOutcome{Name: Uncategorized}
	}

	slog.Info("Category created", "site", siteID, "category", created.Name, "id", created.ID)
	return CategoryOutcome{ID: &created.ID, Name: created.Name}
}
