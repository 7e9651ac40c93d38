package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/models"
)

// SearchOptions narrow a search.
type SearchOptions struct {
	// Limit caps the number of results; zero means no cap.
	Limit int

	// EntityTypes restricts cache-mode matching and is forwarded in live mode.
	EntityTypes []string

	// Extra is merged into the live query body.
	Extra map[string]any
}

// GetCremaData returns the discovery sub-document. Absent discovery data is
// not an error: the result is nil and nothing is cached. The top-level
// mapping is a copy of the cached one.
func (c *Client) GetCremaData(ctx context.Context) (models.CremaData, error) {
	if value, ok := c.lookup(ctx, cremaKey); ok {
		return value.(models.CremaData).Clone(), nil
	}

	var (
		crema models.CremaData
		err   error
	)
	if c.GetMode() == config.ModeLive {
		crema, err = c.liveCrema(ctx)
	} else {
		crema, err = c.snapshotCrema(ctx)
	}
	if err != nil {
		return nil, err
	}

	if crema == nil {
		c.logger.Debug("Crema data absent")
		return nil, nil
	}

	c.remember(cremaKey, crema)
	return crema.Clone(), nil
}

func (c *Client) snapshotCrema(ctx context.Context) (models.CremaData, error) {
	snap, err := c.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Crema, nil
}

// GetSources returns the discovered data sources.
func (c *Client) GetSources(ctx context.Context) ([]any, error) {
	crema, err := c.GetCremaData(ctx)
	if err != nil {
		return nil, err
	}
	return crema.Sources(), nil
}

// GetCategories returns the discovered categories.
func (c *Client) GetCategories(ctx context.Context) ([]any, error) {
	crema, err := c.GetCremaData(ctx)
	if err != nil {
		return nil, err
	}
	return crema.Categories(), nil
}

// GetDataTypes returns the discovered data types.
func (c *Client) GetDataTypes(ctx context.Context) ([]any, error) {
	crema, err := c.GetCremaData(ctx)
	if err != nil {
		return nil, err
	}
	return crema.DataTypes(), nil
}

// GetCollectionStats returns collection statistics.
func (c *Client) GetCollectionStats(ctx context.Context) (map[string]any, error) {
	crema, err := c.GetCremaData(ctx)
	if err != nil {
		return nil, err
	}
	return crema.CollectionStats(), nil
}

// GetEntityData returns the entities of one type whose fields equal every
// filter value.
func (c *Client) GetEntityData(ctx context.Context, entityType string, filters map[string]any) ([]map[string]any, error) {
	if c.GetMode() == config.ModeLive {
		return c.liveEntities(ctx, entityType, filters)
	}

	crema, err := c.GetCremaData(ctx)
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for _, entity := range crema.Entities(entityType) {
		if matchesFilters(entity, filters) {
			out = append(out, entity)
		}
	}
	return out, nil
}

// Search looks up entities matching query. Cache mode does a case-insensitive
// substring match over the string fields of every discovered entity; live
// mode forwards the query.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]map[string]any, error) {
	if c.GetMode() == config.ModeLive {
		return c.liveSearch(ctx, query, opts)
	}

	crema, err := c.GetCremaData(ctx)
	if err != nil {
		return nil, err
	}

	// Casers are stateful; one per call.
	fold := cases.Fold()
	needle := fold.String(query)

	var results []map[string]any
	for _, entityType := range crema.EntityTypes() {
		if len(opts.EntityTypes) > 0 && !contains(opts.EntityTypes, entityType) {
			continue
		}
		for _, entity := range crema.Entities(entityType) {
			if !matchesQuery(entity, needle, fold) {
				continue
			}

			hit := make(map[string]any, len(entity)+1)
			for k, v := range entity {
				hit[k] = v
			}
			hit["entity_type"] = entityType
			results = append(results, hit)

			if opts.Limit > 0 && len(results) >= opts.Limit {
				return results, nil
			}
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"query":   query,
		"results": len(results),
	}).Debug("Searched crema entities")

	return results, nil
}

func matchesFilters(entity map[string]any, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := entity[key]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func matchesQuery(entity map[string]any, needle string, fold cases.Caser) bool {
	if needle == "" {
		return true
	}

	keys := make([]string, 0, len(entity))
	for k := range entity {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s, ok := entity[k].(string)
		if ok && strings.Contains(fold.String(s), needle) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
