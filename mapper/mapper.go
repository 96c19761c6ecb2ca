// CLAUDE:SUMMARY Client for the external site-mapping service: health probe and map(url, limits, exclude globs) returning page candidates.
// Package mapper talks to the site-mapping collaborator. Link traversal
// happens there; this package only sends the request and decodes the pages.
package mapper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/bellscout/horosafe"
)

// ErrMapperUnavailable is returned when the service cannot be reached or
// answers with a server error, on the health probe or a map call.
var ErrMapperUnavailable = errors.New("mapper: service unavailable")

// Page is one candidate page found by the mapper.
type Page struct {
	URL              string `json:"url"`
	Depth            int    `json:"depth"`
	Title            string `json:"title"`
	Heading          string `json:"heading"`
	Meta             string `json:"meta"`
	TimePatternCount int    `json:"timePatternCount"`
	KeywordMatches   int    `json:"keywordMatches"`
	HasDocumentLink  bool   `json:"hasDocumentLink"`
}

// Stats is the mapper's own accounting, passed through for the manifest.
type Stats struct {
	Requested  int   `json:"requested"`
	Visited    int   `json:"visited"`
	Skipped    int   `json:"skipped"`
	DurationMs int64 `json:"durationMs"`
}

// Result is the reply to a map request.
type Result struct {
	Success bool   `json:"success"`
	Pages   []Page `json:"pages"`
	Stats   Stats  `json:"stats"`
	Error   string `json:"error,omitempty"`
}

// Request bounds one mapping run.
type Request struct {
	URL          string   `json:"url"`
	MaxRequests  int      `json:"maxRequests"`
	MaxDepth     int      `json:"maxDepth"`
	ExcludeGlobs []string `json:"excludeGlobs,omitempty"`
}

// Config configures the client.
type Config struct {
	// BaseURL of the mapping service. Default: http://localhost:3000.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// HealthTimeout bounds the health probe. Default: 5s.
	HealthTimeout time.Duration `json:"health_timeout" yaml:"health_timeout"`

	// MapTimeout bounds one map call. Default: 5m.
	MapTimeout time.Duration `json:"map_timeout" yaml:"map_timeout"`

	// MaxRequests and MaxDepth are used when a request leaves them at 0.
	MaxRequests int `json:"max_requests" yaml:"max_requests"`
	MaxDepth    int `json:"max_depth" yaml:"max_depth"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:3000"
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 5 * time.Second
	}
	if c.MapTimeout <= 0 {
		c.MapTimeout = 5 * time.Minute
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = 200
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 4
	}
}

// Client calls the mapping service.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a client. A nil cfg uses defaults.
func New(cfg *Config, logger *slog.Logger) *Client {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return &Client{cfg: c, http: &http.Client{}, logger: logger}
}

// Health probes GET /health. Anything but 200 is ErrMapperUnavailable.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("mapper: health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMapperUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrMapperUnavailable, resp.StatusCode)
	}
	return nil
}

// Map asks the service to map req.URL. A reply with success=false is an
// error carrying the service's message.
func (c *Client) Map(ctx context.Context, r Request) (*Result, error) {
	if r.MaxRequests <= 0 {
		r.MaxRequests = c.cfg.MaxRequests
	}
	if r.MaxDepth <= 0 {
		r.MaxDepth = c.cfg.MaxDepth
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("mapper: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.MapTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/map", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("mapper: map request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: map %s: %v", ErrMapperUnavailable, r.URL, err)
	}
	defer resp.Body.Close()

	data, err := horosafe.LimitedReadAll(resp.Body, 32<<20)
	if err != nil {
		return nil, fmt.Errorf("mapper: read reply: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: map %s: status %d", ErrMapperUnavailable, r.URL, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("mapper: map %s: status %d", r.URL, resp.StatusCode)
	}
	var out Result
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("mapper: decode reply: %w", err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "success=false"
		}
		return nil, fmt.Errorf("mapper: map %s: %s", r.URL, msg)
	}

	c.logger.Info("mapper: mapped",
		"url", r.URL, "pages", len(out.Pages), "duration", time.Since(start))
	return &out, nil
}
