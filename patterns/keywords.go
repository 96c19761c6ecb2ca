// CLAUDE:SUMMARY Keyword vocabularies and URL-to-glob construction (first two sorted keywords, wildcard-joined).
package patterns

import (
	"net/url"
	"slices"
	"strings"
)

// Positive lists path keywords that suggest a bell schedule. Plurals are
// listed because tokens match whole words; they fold to the singular.
var Positive = []string{"bell", "bells", "schedule", "schedules", "hours", "times", "daily", "period", "periods", "timetable", "horario"}

// Negative lists path keywords of pages that are almost never the target.
var Negative = []string{"athletics", "sports", "menu", "lunch", "nutrition", "calendar", "employment", "jobs", "board", "minutes", "agenda"}

// Candidate is the pattern a URL would contribute to.
type Candidate struct {
	Pattern  string
	Kind     string
	Keywords []string
}

// ExtractKeywords returns the sorted positive and negative keywords found in
// the path segments of rawURL. A token matches when it is a vocabulary word
// or made only of vocabulary words, so "bellschedules" yields bell and
// schedule while "sometimes" yields nothing.
func ExtractKeywords(rawURL string) (pos, neg []string) {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	if p, err := url.PathUnescape(path); err == nil {
		path = p
	}
	tokens := strings.FieldsFunc(strings.ToLower(path), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return matchVocab(tokens, Positive), matchVocab(tokens, Negative)
}

// maxCompoundToken bounds the tokens tried as compounds.
const maxCompoundToken = 48

func matchVocab(tokens, vocab []string) []string {
	var out []string
	for _, tok := range tokens {
		if len(tok) > maxCompoundToken {
			continue
		}
		for _, w := range segment(tok, vocab) {
			out = append(out, singular(w, vocab))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// segment splits tok into vocabulary words when it consists of nothing
// else, and returns nil otherwise.
func segment(tok string, vocab []string) []string {
	if slices.Contains(vocab, tok) {
		return []string{tok}
	}
	for _, w := range vocab {
		if len(w) >= len(tok) || !strings.HasPrefix(tok, w) {
			continue
		}
		if rest := segment(tok[len(w):], vocab); rest != nil {
			return append([]string{w}, rest...)
		}
	}
	return nil
}

// singular folds "bells" to "bell" when both are in vocab.
func singular(w string, vocab []string) string {
	if s, ok := strings.CutSuffix(w, "s"); ok && slices.Contains(vocab, s) {
		return s
	}
	return w
}

// BuildPattern turns keywords into a glob. One keyword gives "**/*kw*";
// with more, only the first two in sorted order are used.
func BuildPattern(keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	kw := slices.Clone(keywords)
	slices.Sort(kw)
	kw = slices.Compact(kw)
	if len(kw) > 2 {
		kw = kw[:2]
	}
	return "**/*" + strings.Join(kw, "*") + "*"
}

// CandidateFor derives the pattern for rawURL. Positive keywords win; a URL
// with only negative keywords yields an exclude pattern; ok is false when
// neither vocabulary matches.
func CandidateFor(rawURL string) (c Candidate, ok bool) {
	pos, neg := ExtractKeywords(rawURL)
	switch {
	case len(pos) > 0:
		return Candidate{Pattern: BuildPattern(pos), Kind: KindInclude, Keywords: firstTwo(pos)}, true
	case len(neg) > 0:
		return Candidate{Pattern: BuildPattern(neg), Kind: KindExclude, Keywords: firstTwo(neg)}, true
	}
	return Candidate{}, false
}

func firstTwo(kw []string) []string {
	if len(kw) > 2 {
		return kw[:2]
	}
	return kw
}
