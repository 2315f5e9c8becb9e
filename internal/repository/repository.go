// Package repository talks to the digital repository's REST API: paged
// object enumeration and per-object checksum validation.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

// Config configures the HTTP client.
type Config struct {
	BaseURL string
	Timeout time.Duration // per-request; 0 means 30s
}

// Client implements audit.Source against the repository REST API.
//
// Endpoints:
//
//	GET {base}/objects/count                  -> {"count": N}
//	GET {base}/objects?offset=O&limit=L       -> {"objects": ["pid", ...]}
//	GET {base}/objects/{pid}/checksum         -> {"match": true|false}
//
// A 200 response with match=false is a genuine mismatch; any other status
// or a transport failure is an error (the caller releases the item and
// retries on a later tick).
type Client struct {
	base string
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("repository base_url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("repository base_url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

func (c *Client) TotalObjectCount(ctx context.Context) (int, error) {
	var body struct {
		Count int `json:"count"`
	}
	if err := c.getJSON(ctx, c.base+"/objects/count", &body); err != nil {
		return 0, err
	}
	if body.Count < 0 {
		return 0, fmt.Errorf("repository returned negative object count %d", body.Count)
	}
	return body.Count, nil
}

func (c *Client) ListObjectIdentifiers(ctx context.Context, offset, limit int) ([]audit.ID, error) {
	if limit <= 0 {
		return nil, nil
	}
	u := c.base + "/objects?offset=" + strconv.Itoa(offset) + "&limit=" + strconv.Itoa(limit)
	var body struct {
		Objects []string `json:"objects"`
	}
	if err := c.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	ids := make([]audit.ID, 0, len(body.Objects))
	for _, pid := range body.Objects {
		if pid == "" {
			continue
		}
		ids = append(ids, audit.ID(pid))
	}
	return ids, nil
}

func (c *Client) ValidateChecksum(ctx context.Context, id audit.ID) (bool, error) {
	u := c.base + "/objects/" + url.PathEscape(string(id)) + "/checksum"
	var body struct {
		Match bool `json:"match"`
	}
	if err := c.getJSON(ctx, u, &body); err != nil {
		return false, err
	}
	return body.Match, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("repository returned %s for %s", resp.Status, u)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}
