package council

import (
	"strings"
	"unicode"
)

// wordSet splits lowercase text into a set of bare words.
func wordSet(lower string) map[string]bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[strings.Trim(f, "'")] = true
	}
	return out
}

func countWords(words map[string]bool, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if words[k] {
			n++
		}
	}
	return n
}

// containsAny reports whether lower contains any of the phrases.
func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// startsWithAny reports whether the first word of lower is one of words.
func startsWithAny(lower string, words []string) bool {
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return false
	}
	first := strings.TrimFunc(fields[0], func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if first == w {
			return true
		}
	}
	return false
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
