// CLAUDE:SUMMARY Compiles include/exclude globs (gobwas/glob) and matches lower-cased URL paths against them.
package patterns

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher tests URLs against an effective pattern set. Globs are compiled
// without a separator, so '*' also spans '/': "**/*bell*schedule*" matches
// "/schools/bell-schedules/2024.pdf".
type Matcher struct {
	include []compiled
	exclude []compiled
}

type compiled struct {
	src string
	g   glob.Glob
}

// NewMatcher compiles eff. Invalid globs are reported, not skipped.
func NewMatcher(eff Effective) (*Matcher, error) {
	m := &Matcher{}
	var err error
	if m.include, err = compileAll(eff.IncludeGlobs); err != nil {
		return nil, err
	}
	if m.exclude, err = compileAll(eff.ExcludeGlobs); err != nil {
		return nil, err
	}
	return m, nil
}

func compileAll(srcs []string) ([]compiled, error) {
	out := make([]compiled, 0, len(srcs))
	for _, s := range srcs {
		g, err := glob.Compile(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("patterns: compile %q: %w", s, err)
		}
		out = append(out, compiled{src: s, g: g})
	}
	return out, nil
}

// Included returns the first include glob matching rawURL, or "".
func (m *Matcher) Included(rawURL string) string {
	return firstMatch(m.include, matchPath(rawURL))
}

// Excluded returns the first exclude glob matching rawURL, or "".
func (m *Matcher) Excluded(rawURL string) string {
	return firstMatch(m.exclude, matchPath(rawURL))
}

func firstMatch(globs []compiled, path string) string {
	for _, c := range globs {
		if c.g.Match(path) {
			return c.src
		}
	}
	return ""
}

func matchPath(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.EscapedPath()
		if unesc, err := url.PathUnescape(p); err == nil {
			p = unesc
		}
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.ToLower(p)
}
