// Package source implements the HTTP client against the source search API
// (an Elasticsearch-style POST-query endpoint) and the query templates it
// sends.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Record is one raw source asset, as returned under the query response's
// "data" array.
type Record = map[string]interface{}

// Client posts rendered queries to the source endpoint and decodes its
// envelope response.
type Client struct {
	endpoint        string
	httpClient      *http.Client
	queries         *Queries
	timestampFormat string
}

// New builds a Client for endpoint using tpl to render queries and
// timestampFormat (a Go reference-time layout) to render GetCreated/
// GetChanged's start/end bounds.
func New(endpoint string, tpl *Queries, timestampFormat string) *Client {
	return &Client{
		endpoint:        endpoint,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		queries:         tpl,
		timestampFormat: timestampFormat,
	}
}

type envelope struct {
	Success bool     `json:"success"`
	Data    []Record `json:"data"`
}

func (c *Client) postQuery(ctx context.Context, query string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader([]byte(query)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		// a non-JSON or malformed body is treated the same as "no data",
		// matching the original's bare `except` around response parsing
		return nil, nil
	}
	if !env.Success {
		return nil, nil
	}
	return env.Data, nil
}

// GetCreated returns every record created within (start, end].
func (c *Client) GetCreated(ctx context.Context, start, end time.Time) ([]Record, error) {
	return c.postQuery(ctx, c.queries.Created(start.Format(c.timestampFormat), end.Format(c.timestampFormat)))
}

// GetChanged returns every record modified within (start, end].
func (c *Client) GetChanged(ctx context.Context, start, end time.Time) ([]Record, error) {
	return c.postQuery(ctx, c.queries.Modified(start.Format(c.timestampFormat), end.Format(c.timestampFormat)))
}

// GetByID returns the single record with the given id, or nil if it no
// longer exists on the source.
func (c *Client) GetByID(ctx context.Context, id string) (Record, error) {
	records, err := c.postQuery(ctx, c.queries.ByID(id))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// GetAll returns every record the source holds, unfiltered.
func (c *Client) GetAll(ctx context.Context) ([]Record, error) {
	return c.postQuery(ctx, "{}")
}
