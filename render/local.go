// CLAUDE:SUMMARY Local headless Chrome renderer on rod + stealth: lazy launch, stealth tabs, HTML/PDF/screenshot capture, recycle after N renders.
package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Local renders pages in a Chrome it launches on first use (or in the
// remote Chrome named by Config.RemoteURL).
type Local struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	renders int
	closed  bool
}

// NewLocal creates a local renderer. Chrome is not started until the
// first Render.
func NewLocal(cfg *Config, logger *slog.Logger) *Local {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{cfg: c, logger: logger}
}

// Render implements Renderer.
func (l *Local) Render(ctx context.Context, pageURL string, opts Options) (*Page, error) {
	b, err := l.acquire()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("render: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("render: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		l.logger.Warn("render: wait load timeout", "url", pageURL, "error", err)
	}
	if opts.WaitFor > 0 {
		select {
		case <-time.After(opts.WaitFor):
		case <-navCtx.Done():
			return nil, fmt.Errorf("render: settle %s: %w", pageURL, navCtx.Err())
		}
	}

	out := &Page{URL: pageURL}
	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("render: get DOM: %w", err)
	}
	out.HTML = res.Value.Str()

	if opts.PDF {
		r, err := p.PDF(&proto.PagePrintToPDF{PrintBackground: true})
		if err != nil {
			return out, fmt.Errorf("render: print %s: %w", pageURL, err)
		}
		if out.PDF, err = io.ReadAll(r); err != nil {
			return out, fmt.Errorf("render: read pdf: %w", err)
		}
	}
	if opts.Screenshot {
		if out.Screenshot, err = p.Screenshot(true, nil); err != nil {
			return out, fmt.Errorf("render: screenshot %s: %w", pageURL, err)
		}
	}
	return out, nil
}

// acquire returns the browser, launching or recycling it as needed.
func (l *Local) acquire() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrNotAvailable
	}
	if l.browser != nil && l.renders >= l.cfg.RecycleAfter {
		l.logger.Info("render: recycling chrome", "renders", l.renders)
		l.cleanup()
	}
	if l.browser == nil {
		b, err := l.launch()
		if err != nil {
			return nil, err
		}
		l.browser = b
		l.renders = 0
	}
	l.renders++
	return l.browser, nil
}

func (l *Local) launch() (*rod.Browser, error) {
	wsURL := l.cfg.RemoteURL
	if wsURL == "" {
		ln := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := ln.Launch()
		if err != nil {
			return nil, fmt.Errorf("%w: launch chrome: %v", ErrNotAvailable, err)
		}
		wsURL = u
		l.lnch = ln
		l.logger.Info("render: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrNotAvailable, err)
	}
	return b, nil
}

func (l *Local) cleanup() {
	if l.browser != nil {
		l.browser.Close()
		l.browser = nil
	}
	if l.lnch != nil {
		l.lnch.Cleanup()
		l.lnch = nil
	}
}

// Close shuts Chrome down. Later renders return ErrNotAvailable.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.cleanup()
	return nil
}
