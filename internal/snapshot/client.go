package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client fetches live server lists from the public server-list API, one
// request per game variant.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds a Client against the given API base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchServers retrieves the current snapshot for every server of one game
// variant, normalized to the uniform view. Fetch failures are transient:
// callers log them and treat the cycle as "no data".
func (c *Client) FetchServers(ctx context.Context, game string) ([]ServerView, error) {
	url := fmt.Sprintf("%s/v2/%s/servers", c.baseURL, game)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s servers: %w", game, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s servers: unexpected status %d", game, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)

	switch game {
	case GameBF1942:
		var raw []bf1942Server
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s servers: %w", game, err)
		}
		views := make([]ServerView, 0, len(raw))
		for _, s := range raw {
			views = append(views, s.view())
		}
		return views, nil

	case GameFH2:
		var raw []fh2Server
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s servers: %w", game, err)
		}
		views := make([]ServerView, 0, len(raw))
		for _, s := range raw {
			views = append(views, s.view())
		}
		return views, nil

	case GameBFVietnam:
		var raw []bfvSvr
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s servers: %w", game, err)
		}
		views := make([]ServerView, 0, len(raw))
		for _, s := range raw {
			views = append(views, s.view())
		}
		return views, nil
	}

	return nil, fmt.Errorf("unknown game variant %q", game)
}
