package reference

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// MatcherOption configures a [Matcher].
type MatcherOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for an entry
// whose Double Metaphone codes overlap the query. Default: 0.70.
func WithPhoneticThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for an entry with
// no phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher finds the catalog entry a learner meant from free word text, for
// example "schmeterling" for "Schmetterling". Entries whose Double Metaphone codes
// overlap the query are ranked by Jaro-Winkler similarity first; only when
// none qualifies does a plain Jaro-Winkler pass with a stricter threshold
// run. Safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a [Matcher] with the given options applied.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the entry of entries whose Word best matches query. An exact
// match after case and umlaut folding wins with confidence 1. When nothing
// clears the thresholds, ok is false.
func (m *Matcher) Match(query string, entries []Entry) (best Entry, confidence float64, ok bool) {
	q := fold(query)
	if q == "" || len(entries) == 0 {
		return Entry{}, 0, false
	}
	qTokens := strings.Fields(q)
	qCodes := codesForTokens(qTokens)

	var bestPhonetic bool
	for _, e := range entries {
		w := fold(e.Word)
		if w == "" {
			continue
		}
		if w == q {
			return e, 1, true
		}
		wTokens := strings.Fields(w)
		phonetic := codesOverlap(qCodes, codesForTokens(wTokens))
		score := bestJWScore(qTokens, wTokens, q, w)

		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > confidence {
				best, confidence, ok, bestPhonetic = e, score, true, true
			}
		case !phonetic && !bestPhonetic && score >= m.fuzzyThreshold && score > confidence:
			best, confidence, ok = e, score, true
		}
	}
	return best, confidence, ok
}

var umlauts = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"é", "e", "è", "e", "à", "a",
)

// fold lower-cases s, spells out umlauts and collapses whitespace so that
// "Häuser", "haeuser" and " HÄUSER " compare equal.
func fold(s string) string {
	s = umlauts.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler score over the full strings, the
// space-stripped strings and every token pair.
func bestJWScore(qTokens, wTokens []string, q, w string) float64 {
	score := matchr.JaroWinkler(q, w, false)
	if len(qTokens) > 1 || len(wTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(wTokens, ""), false); s > score {
			score = s
		}
	}
	for _, a := range qTokens {
		for _, b := range wTokens {
			if s := matchr.JaroWinkler(a, b, false); s > score {
				score = s
			}
		}
	}
	return score
}
