package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client reads the relay's HTTP API.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient builds a client for the daemon at baseURL. A bind address such
// as "0.0.0.0:8080" is accepted and mapped to loopback.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: httpClient, baseURL: normalizeBase(baseURL), token: strings.TrimSpace(token)}
}

func normalizeBase(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if strings.Contains(raw, "://") {
		return raw
	}
	if host, port, err := net.SplitHostPort(raw); err == nil {
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "127.0.0.1"
		}
		raw = net.JoinHostPort(host, port)
	}
	return "http://" + raw
}

// Status polls the status of a request id.
func (c *Client) Status(ctx context.Context, id string) (StatusResponse, error) {
	var out StatusResponse
	err := c.get(ctx, "/status/"+url.PathEscape(id), &out)
	return out, err
}

// Requests lists recent ledger records.
func (c *Client) Requests(ctx context.Context, limit int) ([]RequestRecord, error) {
	path := "/api/requests"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out RequestListResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Health fetches the liveness report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.get(ctx, "/healthz", &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: http %d: %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s: http %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
