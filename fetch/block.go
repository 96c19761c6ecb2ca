// CLAUDE:SUMMARY Bot-wall detection (Cloudflare, CAPTCHA, WAF) and outcome classification of fetch results for the attempt log.
package fetch

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Block classifies what stopped a fetch.
type Block string

const (
	BlockNone       Block = "none"
	BlockCloudflare Block = "cloudflare"
	BlockCaptcha    Block = "captcha"
	BlockWAF        Block = "waf"
	BlockRobots     Block = "robots"
)

// Security reports whether b is a bot wall. Such blocks are never
// retried and stop the rest of the job's fetches.
func (b Block) Security() bool {
	return b == BlockCloudflare || b == BlockCaptcha || b == BlockWAF
}

// DetectBlock looks for bot-wall signatures. Interstitial markers count
// on any status. Widgets and edge scripts also ride along on ordinary
// pages (a reCAPTCHA contact form, Turnstile, the Incapsula beacon), so
// they count only on an error status, under a challenge title, or on a
// page with next to no text. Generic words need an error status.
func DetectBlock(status int, header http.Header, body []byte) Block {
	if header != nil {
		if header.Get("Cf-Mitigated") != "" {
			return BlockCloudflare
		}
		if strings.Contains(strings.ToLower(header.Get("Server")), "akamaighost") && status == http.StatusForbidden {
			return BlockWAF
		}
	}

	raw := body[:min(len(body), 256<<10)]
	text := strings.ToLower(string(raw))
	failed := status >= 400
	interstitial := func() bool {
		return failed || challengeTitle(text) || thinPage(raw)
	}

	switch {
	case strings.Contains(text, "cf-browser-verification"),
		strings.Contains(text, "attention required! | cloudflare"),
		strings.Contains(text, "challenges.cloudflare.com") && interstitial(),
		strings.Contains(text, "just a moment...") && interstitial():
		return BlockCloudflare
	case strings.Contains(text, "g-recaptcha") && interstitial(),
		strings.Contains(text, "h-captcha") && interstitial(),
		failed && strings.Contains(text, "captcha"):
		return BlockCaptcha
	case strings.Contains(text, "_incapsula_resource") && interstitial(),
		strings.Contains(text, "sucuri website firewall"),
		failed && strings.Contains(text, "reference #") && strings.Contains(text, "access denied"),
		status == http.StatusForbidden && (strings.Contains(text, "access denied") || strings.Contains(text, "request blocked")):
		return BlockWAF
	}
	return BlockNone
}

var challengeTitles = []string{
	"just a moment",
	"attention required",
	"security check",
	"verify you are human",
	"are you a robot",
	"captcha",
	"access denied",
	"ddos protection",
}

// challengeTitle reports whether the <title> of the lower-cased page text
// names a challenge.
func challengeTitle(text string) bool {
	i := strings.Index(text, "<title")
	if i < 0 {
		return false
	}
	rest := text[i:]
	if j := strings.IndexByte(rest, '>'); j >= 0 {
		rest = rest[j+1:]
	}
	if j := strings.Index(rest, "</title"); j >= 0 {
		rest = rest[:j]
	}
	for _, t := range challengeTitles {
		if strings.Contains(rest, t) {
			return true
		}
	}
	return false
}

// thinPageRunes is the visible-text size under which a page carrying a
// widget is taken for the widget alone.
const thinPageRunes = 200

// thinPage reports whether the page shows almost no text once scripts and
// styles are dropped.
func thinPage(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	doc.Find("script, style, noscript, template").Remove()
	visible := strings.Join(strings.Fields(doc.Text()), " ")
	return utf8.RuneCountInString(visible) < thinPageRunes
}

// Outcomes of one fetched URL, as written to the attempt log.
const (
	OutcomeSuccess  = "success"
	OutcomeBlocked  = "blocked"
	OutcomeNotFound = "not_found"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// Outcome classifies res for the attempt log.
func Outcome(res *Result) string {
	switch {
	case res.Success:
		return OutcomeSuccess
	case res.Block != BlockNone && res.Block != "":
		return OutcomeBlocked
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return OutcomeNotFound
	case isTimeout(res.Error):
		return OutcomeTimeout
	}
	return OutcomeError
}

func isTimeout(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "timed out")
}

// IsNotSupported reports whether err is the vision step's typed refusal.
func IsNotSupported(err error) bool { return errors.Is(err, ErrNotSupported) }
