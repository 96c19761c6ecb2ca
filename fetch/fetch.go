// CLAUDE:SUMMARY Document Fetch Engine: routes a URL to its channel list and walks it (direct download, indirect host, rendered capture), stopping at the first success or a security block.
// Package fetch retrieves candidate documents through an ordered list of
// channels chosen from the URL shape. Every channel and sub-step leaves an
// Attempt on the result so the history can be audited.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/bellscout/horosafe"
	"github.com/hazyhaar/bellscout/kit"
	"github.com/hazyhaar/bellscout/render"
)

var (
	// ErrNotSupported is the outcome of the vision step when no vision
	// model is configured.
	ErrNotSupported = errors.New("fetch: not supported")

	// ErrValidation means the bytes received are not a document.
	ErrValidation = errors.New("fetch: not a document")

	// ErrBlocked means a bot wall answered instead of the site.
	ErrBlocked = errors.New("fetch: blocked")

	// ErrNotFound means the host answered 404 or 410 for the document.
	// No other channel is tried.
	ErrNotFound = errors.New("fetch: not found")
)

// Channel is a retrieval method.
type Channel string

const (
	ChannelDirect   Channel = "direct-download"
	ChannelIndirect Channel = "indirect-host"
	ChannelRendered Channel = "rendered-capture"
)

// Result is the outcome of fetching one URL. At most one channel succeeds.
type Result struct {
	URL        string    `json:"url"`
	Success    bool      `json:"success"`
	Channel    Channel   `json:"channel"`
	FilePath   string    `json:"file_path,omitempty"`
	TextPath   string    `json:"text_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	Block      Block     `json:"block"`
	StatusCode int       `json:"status_code,omitempty"`
	Attempts   []Attempt `json:"attempts"`
}

// Blocked reports a security block (not a robots.txt refusal).
func (r *Result) Blocked() bool { return r.Block.Security() }

// Attempt is one channel step.
type Attempt struct {
	Channel    Channel `json:"channel"`
	Step       string  `json:"step"`
	OK         bool    `json:"ok"`
	Reason     string  `json:"reason,omitempty"`
	StatusCode int     `json:"status_code,omitempty"`
	DurationMs int64   `json:"duration_ms"`
}

// VisionExtractor reads text out of an image. llm.Vision satisfies it.
type VisionExtractor interface {
	ImageText(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

// Config configures the engine.
type Config struct {
	// UserAgent sent with direct requests. Default: "bellscout/1.0".
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// Timeout bounds each HTTP request. Default: 60s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxBytes caps a downloaded document. Default: 50MB.
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`

	// RespectRobots checks robots.txt before any channel runs.
	RespectRobots bool `json:"respect_robots" yaml:"respect_robots"`

	// AllowPrivateHosts disables the SSRF check (tests, intranets).
	AllowPrivateHosts bool `json:"allow_private_hosts" yaml:"allow_private_hosts"`

	// RenderWait is extra settle time for rendered captures. Default: 2s.
	RenderWait time.Duration `json:"render_wait" yaml:"render_wait"`

	// VisionPrompt is sent with preview screenshots.
	VisionPrompt string `json:"vision_prompt" yaml:"vision_prompt"`
}

func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = "bellscout/1.0"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 50 << 20
	}
	if c.RenderWait <= 0 {
		c.RenderWait = 2 * time.Second
	}
	if c.VisionPrompt == "" {
		c.VisionPrompt = "Transcribe this school bell schedule as plain text, one period per line with its start and end time."
	}
}

// Engine fetches documents. Safe for concurrent use.
type Engine struct {
	cfg      Config
	client   *http.Client
	renderer render.Renderer
	vision   VisionExtractor
	robots   *robotsCache
	validate func(string) error
	export   func(*url.URL) (string, bool)
	logger   *slog.Logger
}

// New creates an engine. A nil renderer disables rendered capture and
// preview; a nil vision makes the vision step report ErrNotSupported.
func New(cfg *Config, renderer render.Renderer, vision VisionExtractor, logger *slog.Logger) *Engine {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if renderer == nil {
		renderer = render.Disabled{}
	}

	validate := horosafe.ValidateURL
	if c.AllowPrivateHosts {
		validate = func(raw string) error {
			_, err := horosafe.CheckScheme(raw)
			return err
		}
	}

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	e := &Engine{
		cfg: c,
		client: &http.Client{
			Timeout: c.Timeout,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		renderer: renderer,
		vision:   vision,
		validate: validate,
		export:   ExportURL,
		logger:   logger,
	}
	e.robots = newRobotsCache(e.client, c.UserAgent)
	return e
}

// Fetch retrieves rawURL into destDir/base.<ext>, trying the channels of
// Route(rawURL) in order. It never returns an error: failures are on the
// Result.
func (e *Engine) Fetch(ctx context.Context, rawURL, destDir, base string) *Result {
	res := &Result{URL: rawURL, Block: BlockNone}
	log := e.logger.With("url", rawURL, "job_key", kit.GetJobKey(ctx))

	if err := e.validate(rawURL); err != nil {
		res.Error = err.Error()
		return res
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		res.Error = fmt.Sprintf("fetch: create %s: %v", destDir, err)
		return res
	}
	if e.cfg.RespectRobots && !e.robots.Allowed(ctx, rawURL) {
		res.Block = BlockRobots
		res.Error = "fetch: disallowed by robots.txt"
		log.Info("fetch: robots disallow")
		return res
	}

	for _, ch := range Route(rawURL) {
		res.Channel = ch
		var path string
		var err error
		switch ch {
		case ChannelDirect:
			path, err = e.direct(ctx, res, rawURL, destDir, base)
		case ChannelIndirect:
			path, err = e.indirect(ctx, res, rawURL, destDir, base)
		case ChannelRendered:
			path, err = e.rendered(ctx, res, ChannelRendered, "render", rawURL, destDir, base)
		}
		if err == nil {
			res.Success = true
			res.Error = ""
			if strings.HasSuffix(path, ".txt") {
				res.TextPath = path
			}
			res.FilePath = path
			log.Info("fetch: captured", "channel", ch, "file", path)
			return res
		}
		res.Error = err.Error()
		if res.Blocked() {
			log.Warn("fetch: security block, stopping", "channel", ch, "block", res.Block)
			return res
		}
		if errors.Is(err, ErrNotFound) {
			log.Info("fetch: not found, stopping", "channel", ch, "status", res.StatusCode)
			return res
		}
		log.Debug("fetch: channel failed", "channel", ch, "error", err)
	}
	return res
}

// record appends an attempt and keeps the last HTTP status on the result.
func (r *Result) record(ch Channel, step string, start time.Time, status int, err error) {
	a := Attempt{
		Channel:    ch,
		Step:       step,
		OK:         err == nil,
		StatusCode: status,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		a.Reason = err.Error()
	}
	if status != 0 {
		r.StatusCode = status
	}
	r.Attempts = append(r.Attempts, a)
}
