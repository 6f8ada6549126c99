package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/rentdesk/rentdesk-api/internal/infra/resilience"
)

// ============================================================
// HTTP helpers for POST, PATCH, DELETE
// ============================================================

const (
	preferInsertIgnore = "resolution=ignore-duplicates,return=representation"
	preferUpsert       = "resolution=merge-duplicates,return=representation"
)

// doPost inserts one row or a JSON array of rows. path may carry an
// on_conflict target; prefer selects the duplicate resolution.
func (c *Client) doPost(ctx context.Context, path string, data any, prefer string) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	return c.send(ctx, http.MethodPost, path, bytes.NewReader(jsonBody), prefer)
}

// doPatch updates the rows matched by the filters in path and returns them.
// An empty array means no row matched.
func (c *Client) doPatch(ctx context.Context, path string, data map[string]any) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	return c.send(ctx, http.MethodPatch, path, bytes.NewReader(jsonBody), "return=representation")
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	_, err := c.send(ctx, http.MethodDelete, path, nil, "return=minimal")
	return err
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
