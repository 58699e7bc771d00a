package skill

import (
	"regexp"
	"strings"
	"unicode"
)

var tokenPattern = regexp.MustCompile(`\$([A-Z]{2,10})`)

var (
	bullishCues = []string{"bullish", "moon", "pump", "buy", "long", "alpha", "gem", "breakout", "accumulate"}
	bearishCues = []string{"bearish", "dump", "sell", "short", "rug", "scam", "dead", "crash", "exit"}
)

const cueWeight = 0.2

// ExtractTokens returns the distinct $SYMBOL mentions of content in order
// of first appearance.
func ExtractTokens(content string) []string {
	matches := tokenPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		tokens = append(tokens, m[1])
	}
	return tokens
}

// Polarity scores content in [-1, 1]. Each bullish cue present adds 0.2,
// each bearish cue subtracts 0.2. A cue matches any word it prefixes
// ("pumping" hits "pump") and counts once per text.
func Polarity(content string) float64 {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	hits := 0
	for _, cue := range bullishCues {
		if hasCue(words, cue) {
			hits++
		}
	}
	for _, cue := range bearishCues {
		if hasCue(words, cue) {
			hits--
		}
	}
	return clamp(float64(hits)*cueWeight, -1, 1)
}

func hasCue(words []string, cue string) bool {
	for _, w := range words {
		if strings.HasPrefix(w, cue) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
