// Package client talks to a running tmpsweepd.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bit2swaz/tmpsweep/internal/api"
	"github.com/bit2swaz/tmpsweep/internal/history"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// Sweeps over large stores take a while.
		httpClient: &http.Client{Timeout: 15 * time.Minute},
	}
}

type SweepParams struct {
	DryRun bool
	// Days overrides the daemon's window when not nil.
	Days *int
}

// Sweep triggers a sweep on the daemon and waits for its result.
func (c *Client) Sweep(ctx context.Context, p SweepParams) (*api.SweepResult, error) {
	q := url.Values{}
	q.Set("dry_run", strconv.FormatBool(p.DryRun))
	if p.Days != nil {
		q.Set("days", strconv.Itoa(*p.Days))
	}

	var result api.SweepResult
	if err := c.do(ctx, http.MethodPost, "/v1/sweep?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Runs lists the most recent recorded runs.
func (c *Client) Runs(ctx context.Context, limit int) ([]history.Run, error) {
	var result api.RunsResult
	if err := c.do(ctx, http.MethodGet, "/v1/runs?limit="+strconv.Itoa(limit), &result); err != nil {
		return nil, err
	}
	return result.Runs, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
