package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/TheMichaelB/metricsnap/internal/models"
)

// liveRecord queries the metrics endpoint for one period.
func (c *Client) liveRecord(ctx context.Context, period string) (*models.PeriodRecord, error) {
	resp, err := c.transport.GetJSON(ctx, c.cfg.API.MetricsPath, url.Values{"period": {period}})
	if err != nil {
		return nil, fmt.Errorf("get live metrics: %w", err)
	}

	body := resp
	metrics, ok := resp["metrics"].(map[string]interface{})
	if !ok {
		data, isMap := resp["data"].(map[string]interface{})
		if !isMap {
			return nil, fmt.Errorf("%w: live response for %s", models.ErrInvalidRecord, period)
		}
		body = data
		if inner, ok := data["metrics"].(map[string]interface{}); ok {
			metrics = inner
		} else {
			metrics = data
		}
	}

	rec := &models.PeriodRecord{
		DateRange:      body["date_range"],
		Metrics:        metrics,
		SourceTargets:  body["source_targets"],
		AllMetricsData: body["all_metrics_data"],
		Timestamp:      body["timestamp"],
	}

	c.logger.WithFields(map[string]interface{}{
		"period":  period,
		"metrics": len(metrics),
	}).Debug("Fetched live metrics")

	return rec, nil
}

// liveCrema queries the discovery endpoint. A 404 means no discovery data.
func (c *Client) liveCrema(ctx context.Context) (models.CremaData, error) {
	resp, err := c.transport.GetJSON(ctx, c.cfg.API.DiscoveryPath, nil)
	if err != nil {
		var fetchErr *models.FetchError
		if errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get live discovery: %w", err)
	}

	if data, ok := resp["data"].(map[string]interface{}); ok {
		return models.CremaData(data), nil
	}
	if crema, ok := resp["crema"].(map[string]interface{}); ok {
		return models.CremaData(crema), nil
	}
	return models.CremaData(resp), nil
}

// liveEntities queries the entity endpoint.
func (c *Client) liveEntities(ctx context.Context, entityType string, filters map[string]any) ([]map[string]any, error) {
	payload := map[string]interface{}{"type": entityType}
	if len(filters) > 0 {
		payload["filters"] = filters
	}

	resp, err := c.transport.PostJSON(ctx, c.cfg.API.EntitiesPath, payload)
	if err != nil {
		return nil, fmt.Errorf("get live entities: %w", err)
	}

	return objects(listField(resp, "entities")), nil
}

// liveSearch posts the query. Results come back as {results} or
// {data: {results}}.
func (c *Client) liveSearch(ctx context.Context, query string, opts SearchOptions) ([]map[string]any, error) {
	payload := make(map[string]interface{}, len(opts.Extra)+3)
	for k, v := range opts.Extra {
		payload[k] = v
	}
	payload["query"] = query
	if opts.Limit > 0 {
		payload["limit"] = opts.Limit
	}
	if len(opts.EntityTypes) > 0 {
		payload["entity_types"] = opts.EntityTypes
	}

	resp, err := c.transport.PostJSON(ctx, c.cfg.API.QueryPath, payload)
	if err != nil {
		return nil, fmt.Errorf("live search: %w", err)
	}

	results := objects(listField(resp, "results"))
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// listField reads resp[key] or resp["data"][key]. A bare list under data is
// also accepted.
func listField(resp map[string]interface{}, key string) []interface{} {
	if items, ok := resp[key].([]interface{}); ok {
		return items
	}
	switch data := resp["data"].(type) {
	case map[string]interface{}:
		items, _ := data[key].([]interface{})
		return items
	case []interface{}:
		return data
	}
	return nil
}

func objects(items []interface{}) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
