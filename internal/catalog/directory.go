package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ensam-campus/wayfinder/internal/models"
)

// Directory is the categorized listing of campus destinations used by the discovery flow.
type Directory struct {
	Categories []models.DestinationCategory `json:"categories"`
}

// LoadDirectory fetches and validates the destination directory at source.
func LoadDirectory(ctx context.Context, source string, opts ...Option) (*Directory, error) {
	data, err := ReadSource(ctx, source, opts...)
	if err != nil {
		return nil, err
	}
	var d Directory
	if err := json.Unmarshal(data, &d); err != nil {
		slog.Error("catalog.LoadDirectory: invalid directory document", "error", err)
		return nil, fmt.Errorf("invalid directory document: %w", err)
	}
	for i, cat := range d.Categories {
		if err := validate.Struct(cat); err != nil {
			slog.Error("catalog.LoadDirectory: invalid category", "index", i, "error", err)
			return nil, fmt.Errorf("invalid category %d: %w", i, err)
		}
	}
	slog.Debug("catalog.LoadDirectory: directory ready", "categories", len(d.Categories))
	return &d, nil
}

// Category returns the category with the given id.
func (d *Directory) Category(id string) (models.DestinationCategory, bool) {
	for _, c := range d.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return models.DestinationCategory{}, false
}

// Unreachable lists destinations whose path id is not a usable catalog route and is
// not a gendered indirection.
func (d *Directory) Unreachable(c *Catalog) []models.Destination {
	var out []models.Destination
	for _, cat := range d.Categories {
		for _, loc := range cat.Locations {
			if loc.PathID == "" {
				continue
			}
			if loc.Gendered || c.IsGenderedRedirect(loc.PathID) {
				continue
			}
			if _, err := c.LoadPath(loc.PathID); err != nil {
				out = append(out, loc)
			}
		}
	}
	return out
}
