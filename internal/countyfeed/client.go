// Package countyfeed pulls delinquency lists published by a county over HTTP.
package countyfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"taxlien/internal/config"
	"taxlien/internal/source"
)

const maxAttempts = 5

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

// File is one downloaded list.
type File struct {
	Name    string
	URL     string
	Content []byte
}

// manifest lets a feed URL point at several lists at once.
type manifest struct {
	Files []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"files"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.FeedTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.FeedRateLimitRPS),
	}
}

// Fetch downloads the feed. A JSON manifest response is expanded into the files it lists,
// resolved relative to the feed URL; anything else is returned as a single file.
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]File, error) {
	f, contentType, err := c.Download(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "application/json") {
		return []File{f}, nil
	}

	var m manifest
	if err := json.Unmarshal(f.Content, &m); err != nil {
		return nil, fmt.Errorf("decode feed manifest: %w", err)
	}
	base, err := url.Parse(feedURL)
	if err != nil {
		return nil, err
	}
	out := make([]File, 0, len(m.Files))
	for _, entry := range m.Files {
		ref, err := url.Parse(entry.URL)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", entry.URL, err)
		}
		file, _, err := c.Download(ctx, base.ResolveReference(ref).String())
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(entry.Name) != "" {
			file.Name = entry.Name
		}
		out = append(out, file)
	}
	return out, nil
}

// Download GETs one URL, retrying 429 and 5xx responses with exponential backoff.
func (c *Client) Download(ctx context.Context, rawURL string) (File, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return File{}, "", err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return File{}, "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return File{}, "", err
		}
		if token := strings.TrimSpace(c.cfg.FeedToken); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return File{}, "", ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				if err := sleepCtx(ctx, backoff); err != nil {
					return File{}, "", err
				}
				lastErr = fmt.Errorf("feed status %d", resp.StatusCode)
				continue
			}
			return File{}, "", fmt.Errorf("feed error: status=%d body=%s", resp.StatusCode, truncate(string(body), 200))
		}

		contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		return File{Name: fileName(u, resp.Header, contentType), URL: u.String(), Content: body}, contentType, nil
	}

	if lastErr == nil {
		lastErr = errors.New("feed request failed")
	}
	return File{}, "", lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func extForType(contentType string) string {
	switch contentType {
	case "text/csv":
		return ".csv"
	case "text/html":
		return ".html"
	case "application/pdf":
		return ".pdf"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	}
	return ""
}

// fileName prefers Content-Disposition, then the URL path, and adds an extension from the
// content type when the name has none a reader understands.
func fileName(u *url.URL, header http.Header, contentType string) string {
	name := ""
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	if name == "" {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = u.Hostname()
	}
	if !source.Supported(name) {
		name += extForType(contentType)
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
