package memory

import (
	"strings"
	"unicode"
)

// #region stopwords

// Words that carry no topic in companion chat. Contractions are split on the
// apostrophe, so their fragments ("don", "ll") are listed too.
var stopwordGroups = []string{
	// function words
	"a an the and or but nor if then than so as at by for from in into of on onto to with about over under up down out off",
	"is are was were be been being am do does did done have has had will would could should can may might must shall",
	"not no it its this that these those there here what which who whom how when where why",
	// pronouns
	"i me my mine you your yours we us our they them their he him his she her",
	// chat filler
	"hey hi ok okay yeah yep yes sure oh um uh hmm lol well really very just also too still again",
	"please thanks thank tell let lets want wanna gonna get got go going maybe some any something anything",
	// contraction fragments
	"im ive id ill don doesn didn isn aren wasn won wouldn couldn shouldn ll re ve",
}

var stopwords = buildStopwords(stopwordGroups)

func buildStopwords(groups []string) map[string]bool {
	out := make(map[string]bool)
	for _, g := range groups {
		for _, w := range strings.Fields(g) {
			out[w] = true
		}
	}
	return out
}

// Tokenize splits text into unique lowercase non-stopword tokens.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range words {
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// SharedKeywords returns the count of tokens present in both slices.
func SharedKeywords(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}

// #endregion stopwords
