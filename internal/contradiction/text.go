package contradiction

import (
	"strings"
	"unicode"
)

var stopwords = set(
	"a", "an", "the", "and", "or", "but", "if", "then", "so", "to", "of", "in", "on", "at",
	"for", "by", "with", "from", "as", "is", "are", "was", "were", "be", "been", "it", "its",
	"this", "that", "these", "those", "we", "you", "they", "i", "our", "your", "their",
	"should", "would", "could", "can", "will", "do", "does", "did", "has", "have", "had",
	"when", "which", "what", "about", "into", "over", "than", "also", "any", "some",
)

var negations = set(
	"not", "no", "never", "don't", "dont", "doesn't", "doesnt", "isn't", "isnt", "aren't",
	"shouldn't", "shouldnt", "can't", "cant", "cannot", "won't", "wont", "mustn't", "avoid",
	"without", "stop", "disable", "disabled", "deprecated", "nor", "against",
)

var absolutePositive = set("always", "must", "every", "all", "required", "mandatory")

var absoluteNegative = set("never", "none", "nothing", "forbidden", "prohibited")

var positiveWords = set(
	"good", "great", "works", "working", "helpful", "prefer", "preferred", "recommended",
	"correct", "useful", "love", "better", "best", "fast", "reliable", "approve", "approved",
	"like", "clean", "safe", "effective", "solid",
)

var negativeWords = set(
	"bad", "wrong", "broken", "slow", "hate", "worse", "worst", "incorrect", "fails",
	"failing", "failed", "buggy", "unreliable", "dislike", "useless", "problem", "problems",
	"issue", "issues", "confusing", "unsafe", "flaky", "painful", "outdated",
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// tokenize lowercases and splits on anything but letters, digits and apostrophes.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
}

func normalizeToken(tok string) string {
	return strings.ReplaceAll(tok, "’", "'")
}

// topicTokens are the content words of s, without stopwords, negations,
// absolutes or sentiment words.
func topicTokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, raw := range tokenize(s) {
		tok := normalizeToken(raw)
		if stopwords[tok] || negations[tok] || absolutePositive[tok] || absoluteNegative[tok] ||
			positiveWords[tok] || negativeWords[tok] {
			continue
		}
		out[tok] = true
	}
	return out
}

func countIn(s string, vocab map[string]bool) int {
	n := 0
	for _, raw := range tokenize(s) {
		if vocab[normalizeToken(raw)] {
			n++
		}
	}
	return n
}

func hasNegation(s string) bool {
	return countIn(s, negations) > 0
}

// sentiment returns +1, -1 or 0. A negation directly before a sentiment word flips it.
func sentiment(s string) int {
	score := 0
	prevNegated := false
	for _, raw := range tokenize(s) {
		tok := normalizeToken(raw)
		polarity := 1
		if prevNegated {
			polarity = -1
		}
		switch {
		case positiveWords[tok]:
			score += polarity
		case negativeWords[tok]:
			score -= polarity
		}
		prevNegated = negations[tok]
	}
	switch {
	case score > 0:
		return 1
	case score < 0:
		return -1
	}
	return 0
}

// overlapCoefficient is |A∩B| / min(|A|,|B|).
func overlapCoefficient(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for k := range a {
		if b[k] {
			shared++
		}
	}
	return float64(shared) / float64(min(len(a), len(b)))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sa := make(map[string]bool, len(a))
	for _, x := range a {
		sa[strings.ToLower(x)] = true
	}
	sb := make(map[string]bool, len(b))
	for _, x := range b {
		sb[strings.ToLower(x)] = true
	}
	shared := 0
	for k := range sa {
		if sb[k] {
			shared++
		}
	}
	return float64(shared) / float64(len(sa)+len(sb)-shared)
}

func sharedStrings(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, x := range b {
		in[x] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, x := range a {
		if in[x] && !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

func firstIn(s string, vocab map[string]bool) string {
	for _, raw := range tokenize(s) {
		if tok := normalizeToken(raw); vocab[tok] {
			return tok
		}
	}
	return ""
}

func sameText(a, b string) bool {
	return strings.Join(tokenize(a), " ") == strings.Join(tokenize(b), " ")
}
