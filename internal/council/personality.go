package council

import (
	"context"
	"fmt"
	"strings"
)

// #region keywords

var excitedKeywords = []string{
	"amazing", "awesome", "incredible", "wow", "yay", "fantastic", "can't wait", "so excited",
}

var positiveKeywords = []string{
	"good", "great", "love", "like", "nice", "thanks", "thank", "happy", "glad", "wonderful",
	"beautiful", "fun", "cool", "perfect", "enjoy",
}

var negativeKeywords = []string{
	"bad", "sad", "hate", "angry", "upset", "tired", "awful", "terrible", "annoyed", "worried",
	"lonely", "bored", "stressed", "frustrated", "sorry", "hurt",
}

var questionStarters = []string{
	"what", "why", "how", "where", "when", "who", "which", "can", "could", "would", "do", "does", "is", "are",
}

// styleBuckets maps a response style to the personality words that select it.
// Order breaks ties.
var styleBuckets = []struct {
	style string
	words []string
}{
	{"friendly", []string{"friendly", "warm", "kind", "cheerful", "caring", "sweet", "helpful"}},
	{"professional", []string{"professional", "formal", "efficient", "precise", "serious", "organized"}},
	{"playful", []string{"playful", "funny", "witty", "mischievous", "silly", "curious", "energetic"}},
	{"calm", []string{"calm", "gentle", "serene", "patient", "relaxed", "quiet", "thoughtful"}},
}

var sentimentModifiers = map[string]string{
	"excited":  "matching enthusiasm",
	"positive": "warm affirmation",
	"negative": "gentle empathy",
	"curious":  "informative detail",
}

// #endregion keywords

const (
	personalityReasoner = "personality"
	defaultStyle        = "friendly, professional"
	balancedStyle       = "balanced"
	defaultStyleConf    = 0.8
	personaStyleConf    = 0.95
)

// #region analysis

// PersonalityAnalysis is the personality reasoner's structured output.
type PersonalityAnalysis struct {
	Sentiment          string   `json:"sentiment"`
	BaseStyle          string   `json:"base_style"`
	Modifier           string   `json:"modifier,omitempty"`
	ResponseStyle      string   `json:"response_style"`
	PersonaName        string   `json:"persona_name,omitempty"`
	DefaultPersonality bool     `json:"default_personality"`
	Traits             []string `json:"traits,omitempty"`
}

// #endregion analysis

// PersonalityReasoner derives a response style from the persona and the message's sentiment.
type PersonalityReasoner struct{}

// NewPersonalityReasoner creates a PersonalityReasoner.
func NewPersonalityReasoner() *PersonalityReasoner { return &PersonalityReasoner{} }

// Name implements Reasoner.
func (*PersonalityReasoner) Name() string { return personalityReasoner }

// Reason implements Reasoner.
func (*PersonalityReasoner) Reason(_ context.Context, rc *ReasoningContext) Result {
	sentiment := ClassifySentiment(rc.UserMessage)
	a := PersonalityAnalysis{Sentiment: sentiment, Modifier: sentimentModifiers[sentiment]}

	conf := personaStyleConf
	if rc.Persona == nil {
		a.DefaultPersonality = true
		a.BaseStyle = defaultStyle
		conf = defaultStyleConf
	} else {
		a.PersonaName = rc.Persona.Name
		a.BaseStyle, a.Traits = styleFor(rc.Persona.Personality)
	}
	a.ResponseStyle = a.BaseStyle
	if a.Modifier != "" {
		a.ResponseStyle += " with " + a.Modifier
	}

	var b strings.Builder
	if a.DefaultPersonality {
		b.WriteString("No persona loaded; using the default personality (friendly, professional). ")
	} else {
		fmt.Fprintf(&b, "Speaking as %s with a %s style", displayName(rc.Persona), a.BaseStyle)
		if len(a.Traits) > 0 {
			fmt.Fprintf(&b, " (traits: %s)", strings.Join(a.Traits, ", "))
		}
		b.WriteString(". ")
	}
	fmt.Fprintf(&b, "The message reads as %s", sentiment)
	if a.Modifier != "" {
		fmt.Fprintf(&b, ", so respond with %s", a.Modifier)
	}
	b.WriteString(".")

	return Result{
		ReasonerName: personalityReasoner,
		Reasoning:    b.String(),
		Confidence:   conf,
		Metadata:     a,
	}
}

// #region classify

// ClassifySentiment buckets a message as excited, positive, negative, curious or neutral.
func ClassifySentiment(msg string) string {
	lower := strings.ToLower(strings.TrimSpace(msg))
	if lower == "" {
		return "neutral"
	}
	exclaims := strings.Count(lower, "!")
	if exclaims >= 2 || (exclaims >= 1 && containsAny(lower, excitedKeywords)) {
		return "excited"
	}

	words := wordSet(lower)
	pos := countWords(words, positiveKeywords)
	neg := countWords(words, negativeKeywords)
	switch {
	case neg > pos:
		return "negative"
	case pos > neg:
		return "positive"
	}

	if strings.Contains(lower, "?") || startsWithAny(lower, questionStarters) {
		return "curious"
	}
	return "neutral"
}

// styleFor picks the bucket with the most matching personality words.
func styleFor(personality string) (string, []string) {
	words := wordSet(strings.ToLower(personality))
	best, bestCount := balancedStyle, 0
	var traits []string
	for _, bucket := range styleBuckets {
		n := 0
		for _, w := range bucket.words {
			if words[w] {
				n++
				traits = append(traits, w)
			}
		}
		if n > bestCount {
			best, bestCount = bucket.style, n
		}
	}
	return best, traits
}

// #endregion classify

func displayName(p *Persona) string {
	if p == nil || p.Name == "" {
		return "the companion"
	}
	return p.Name
}
