package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/go-playground/validator/v10"
)

// Genders accepted by the gendered destination flow.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

var (
	// ErrNotFound is returned when no usable record matches an id.
	ErrNotFound = errors.New("path not found in catalog")
	// ErrInvalidGender is returned for a gender outside the supported set.
	ErrInvalidGender = errors.New("gender must be male or female")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Route is a catalog record together with its navigation mode.
type Route struct {
	models.PathRecord
	Mode models.Mode
}

// Catalog is the read-only collection of path records.
type Catalog struct {
	routes   []Route
	dropped  int
	gendered map[string]struct{}
}

// Load fetches and parses the catalog document at source.
func Load(ctx context.Context, source string, opts ...Option) (*Catalog, error) {
	data, err := ReadSource(ctx, source, opts...)
	if err != nil {
		return nil, err
	}
	return Parse(data, opts...)
}

// Parse decodes a JSON array of path records.
func Parse(data []byte, opts ...Option) (*Catalog, error) {
	var records []models.PathRecord
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Error("catalog.Parse: invalid catalog document", "error", err)
		return nil, fmt.Errorf("invalid catalog document: %w", err)
	}
	return New(records, opts...), nil
}

// New builds a catalog from records. Records that fail validation or carry no
// navigation mode are kept out of lookups, so they behave as catalog misses.
func New(records []models.PathRecord, opts ...Option) *Catalog {
	cfg := applyOpts(opts)
	c := &Catalog{gendered: make(map[string]struct{}, len(cfg.GenderedIDs))}
	for _, id := range cfg.GenderedIDs {
		c.gendered[strings.ToLower(id)] = struct{}{}
	}
	for _, rec := range records {
		if err := validate.Struct(rec); err != nil {
			slog.Warn("catalog.New: dropping invalid record", "id", rec.ID, "error", err)
			c.dropped++
			continue
		}
		mode, err := rec.Mode()
		if err != nil {
			slog.Warn("catalog.New: dropping record without navigation mode", "id", rec.ID, "error", err)
			c.dropped++
			continue
		}
		c.routes = append(c.routes, Route{PathRecord: rec, Mode: mode})
	}
	slog.Debug("catalog.New: catalog ready", "routes", len(c.routes), "dropped", c.dropped)
	return c
}

// LoadPath looks up a route by id.
func (c *Catalog) LoadPath(id string) (Route, error) {
	for _, r := range c.routes {
		if r.ID == id {
			return r, nil
		}
	}
	slog.Debug("Catalog.LoadPath: miss", "id", id)
	return Route{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// All returns the usable records in catalog order.
func (c *Catalog) All() []models.PathRecord {
	out := make([]models.PathRecord, 0, len(c.routes))
	for _, r := range c.routes {
		out = append(out, r.PathRecord)
	}
	return out
}

// Len returns the number of usable routes.
func (c *Catalog) Len() int {
	return len(c.routes)
}

// Dropped returns the number of records rejected at load.
func (c *Catalog) Dropped() int {
	return c.dropped
}

// IsGenderedRedirect reports whether id is an indirection to the gendered
// destination flow rather than a direct path record.
func (c *Catalog) IsGenderedRedirect(id string) bool {
	_, ok := c.gendered[strings.ToLower(id)]
	return ok
}

// GenderedTarget returns the path id a gendered indirection resolves to.
func GenderedTarget(id, gender string) (string, error) {
	g := strings.ToLower(strings.TrimSpace(gender))
	if g != GenderMale && g != GenderFemale {
		return "", ErrInvalidGender
	}
	return id + "-" + g, nil
}
