package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsCache keeps one parsed robots.txt per scheme+host for the engine's
// lifetime. A robots.txt that cannot be fetched allows everything.
type robotsCache struct {
	client *http.Client
	agent  string

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group
}

func newRobotsCache(client *http.Client, agent string) *robotsCache {
	return &robotsCache{client: client, agent: agent, hosts: make(map[string]*robotstxt.Group)}
}

// Allowed reports whether the agent may fetch rawURL.
func (c *robotsCache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	key := u.Scheme + "://" + u.Host

	c.mu.Lock()
	g, ok := c.hosts[key]
	c.mu.Unlock()
	if !ok {
		g = c.load(ctx, key)
		c.mu.Lock()
		c.hosts[key] = g
		c.mu.Unlock()
	}
	if g == nil {
		return true
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return g.Test(p)
}

func (c *robotsCache) load(ctx context.Context, origin string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.agent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(c.agent)
}
