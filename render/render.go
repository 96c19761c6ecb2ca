// CLAUDE:SUMMARY Rendered-capture collaborator: the Renderer interface, its options, and the config that selects the HTTP service or a local browser.
// Package render captures pages through a headless browser, either the
// external capture service (Client) or a local Chrome driven by rod (Local).
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotAvailable is returned by a disabled or closed renderer.
var ErrNotAvailable = errors.New("render: renderer not available")

// Options select what a render produces. HTML is always returned.
type Options struct {
	// WaitFor is extra settle time after load, for script-built pages.
	WaitFor    time.Duration
	PDF        bool
	Screenshot bool
}

// Page is a rendered capture.
type Page struct {
	URL        string
	HTML       string
	Markdown   string
	PDF        []byte
	Screenshot []byte

	// Blocked is set when the renderer itself detected a bot wall.
	Blocked bool
}

// Renderer renders one URL.
type Renderer interface {
	Render(ctx context.Context, url string, opts Options) (*Page, error)
}

// Disabled never renders.
type Disabled struct{}

// Render implements Renderer.
func (Disabled) Render(context.Context, string, Options) (*Page, error) {
	return nil, ErrNotAvailable
}

// Config selects the renderer.
type Config struct {
	// Mode is "service", "local" or "none". Default: "service".
	Mode string `json:"mode" yaml:"mode"`

	// BaseURL of the capture service. Default: http://localhost:3001.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// RemoteURL is the DevTools WebSocket of an existing Chrome. Empty
	// launches one. Local mode only.
	RemoteURL string `json:"remote_url" yaml:"remote_url"`

	// Timeout bounds one render. Default: 60s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// RecycleAfter relaunches a local Chrome after this many renders.
	// Default: 200.
	RecycleAfter int `json:"recycle_after" yaml:"recycle_after"`
}

func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = "service"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:3001"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RecycleAfter <= 0 {
		c.RecycleAfter = 200
	}
}

// New builds the renderer named by cfg.Mode. The caller closes it when
// it implements io.Closer.
func New(cfg *Config, logger *slog.Logger) (Renderer, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.defaults()
	switch c.Mode {
	case "service":
		return NewClient(&c, logger), nil
	case "local":
		return NewLocal(&c, logger), nil
	case "none":
		return Disabled{}, nil
	}
	return nil, fmt.Errorf("render: unknown mode %q", c.Mode)
}
