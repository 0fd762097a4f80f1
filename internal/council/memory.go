package council

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
)

const memoryReasoner = "memory"

// #region keywords

// topicKeywords buckets conversation content into broad topics. Order breaks ties.
var topicKeywords = []struct {
	topic string
	words []string
}{
	{"movement", []string{"move", "go", "walk", "come", "over", "toward", "towards", "follow"}},
	{"objects", []string{"lamp", "book", "sofa", "chair", "table", "desk", "bed", "object", "thing", "pick"}},
	{"rooms", []string{"room", "bedroom", "kitchen", "living", "corner", "window", "door", "house"}},
	{"feelings", []string{"feel", "feeling", "happy", "sad", "tired", "excited", "mood", "lonely"}},
	{"preferences", []string{"like", "prefer", "favorite", "favourite", "love", "enjoy", "want"}},
	{"questions", []string{"what", "why", "how", "where", "when", "who"}},
	{"greetings", []string{"hello", "hi", "hey", "morning", "evening", "goodbye", "bye", "night"}},
	{"tasks", []string{"help", "please", "need", "task", "do", "can", "could"}},
}

var activityKeywords = []struct {
	tag   string
	words []string
}{
	{"exploration", []string{"explore", "look around", "wander", "discover", "check out"}},
	{"object_interaction", []string{"turn on", "turn off", "pick up", "put down", "open", "close", "use", "grab"}},
	{"movement", []string{"move", "go to", "come here", "walk", "head to"}},
	{"conversation", []string{"talk", "chat", "tell me", "story", "ask"}},
}

var continuityMarkers = []struct {
	kind    string
	prefix  bool
	phrases []string
}{
	{"clarification", false, []string{"what do you mean", "i meant", "clarify", "to be clear", "in other words", "i mean"}},
	{"topic_shift", false, []string{"by the way", "anyway", "changing the subject", "something else", "on another note", "never mind"}},
	{"question_followup", true, []string{"what about", "how about", "and what", "and why", "and how", "why", "how come", "then what"}},
	{"direct_continuation", true, []string{"yes", "no", "okay", "ok", "sure", "yeah", "yep", "nope", "thanks", "thank you", "right", "exactly"}},
}

var actionVerbs = []string{"move", "go", "walk", "come", "turn", "pick", "put", "open", "close", "grab", "bring", "explore"}
var socialWords = []string{"hello", "hi", "hey", "feel", "love", "miss", "thanks", "thank", "happy", "sad", "friend"}

// #endregion keywords

const (
	maxRecentTopics   = 3
	maxPatterns       = 3
	patternThreshold  = 0.3
	noHistoryConf     = 0.5
	historyBaseConf   = 0.7
	historyMaxBonus   = 0.2
	historyBonusAfter = 10
)

// #region analysis

// MemoryAnalysis is the memory reasoner's structured output.
type MemoryAnalysis struct {
	HasHistory          bool     `json:"has_history"`
	RecentCount         int      `json:"recent_count"`
	RetrievedCount      int      `json:"retrieved_count"`
	RecentTopics        []string `json:"recent_topics,omitempty"`
	CommunicationStyle  string   `json:"communication_style,omitempty"`
	ActivityPreferences []string `json:"activity_preferences,omitempty"`
	Continuity          string   `json:"continuity"`
	Patterns            []string `json:"patterns,omitempty"`
}

// #endregion analysis

// MemoryReasoner looks at conversation history for topics, preferences and continuity.
type MemoryReasoner struct{}

// NewMemoryReasoner creates a MemoryReasoner.
func NewMemoryReasoner() *MemoryReasoner { return &MemoryReasoner{} }

// Name implements Reasoner.
func (*MemoryReasoner) Name() string { return memoryReasoner }

// Reason implements Reasoner.
func (*MemoryReasoner) Reason(_ context.Context, rc *ReasoningContext) Result {
	if len(rc.Conversation) == 0 {
		return Result{
			ReasonerName: memoryReasoner,
			Reasoning:    "No conversation history; treating this as the start of a new conversation.",
			Confidence:   noHistoryConf,
			Metadata:     MemoryAnalysis{Continuity: "new_conversation"},
		}
	}

	retrieved, recent := rc.SplitConversation()
	userMsgs := userMessages(rc.Conversation)

	a := MemoryAnalysis{
		HasHistory:          true,
		RecentCount:         len(recent),
		RetrievedCount:      len(retrieved),
		RecentTopics:        recentTopics(recent, rc.UserMessage),
		CommunicationStyle:  communicationStyle(userMsgs),
		ActivityPreferences: activityPreferences(userMsgs),
		Continuity:          classifyContinuity(rc.UserMessage, recent),
		Patterns:            interactionPatterns(userMsgs),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversation history has %d recent and %d retrieved messages. ", a.RecentCount, a.RetrievedCount)
	if len(a.RecentTopics) > 0 {
		fmt.Fprintf(&b, "Recent topics: %s. ", strings.Join(a.RecentTopics, ", "))
	}
	fmt.Fprintf(&b, "This message looks like a %s.", strings.ReplaceAll(a.Continuity, "_", " "))
	if a.CommunicationStyle != "" {
		fmt.Fprintf(&b, " The user tends to be %s.", a.CommunicationStyle)
	}
	if len(a.Patterns) > 0 {
		fmt.Fprintf(&b, " Patterns: %s.", strings.Join(a.Patterns, ", "))
	}

	bonus := historyMaxBonus * float64(min(len(rc.Conversation), historyBonusAfter)) / historyBonusAfter
	return Result{
		ReasonerName: memoryReasoner,
		Reasoning:    b.String(),
		Confidence:   historyBaseConf + bonus,
		Metadata:     a,
	}
}

// #region topics

func recentTopics(recent []memory.Message, current string) []string {
	counts := make(map[string]int)
	texts := make([]string, 0, len(recent)+1)
	for _, m := range recent {
		texts = append(texts, m.Content)
	}
	texts = append(texts, current)
	for _, t := range texts {
		words := wordSet(strings.ToLower(t))
		for _, bucket := range topicKeywords {
			if n := countWords(words, bucket.words); n > 0 {
				counts[bucket.topic] += n
			}
		}
	}

	var topics []string
	for _, bucket := range topicKeywords {
		if counts[bucket.topic] > 0 {
			topics = append(topics, bucket.topic)
		}
	}
	sort.SliceStable(topics, func(i, j int) bool { return counts[topics[i]] > counts[topics[j]] })
	if len(topics) > maxRecentTopics {
		topics = topics[:maxRecentTopics]
	}
	return topics
}

// #endregion topics

// #region preferences

func userMessages(msgs []memory.Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Role == "user" {
			out = append(out, m.Content)
		}
	}
	return out
}

// communicationStyle infers verbosity from the average user message length in words.
func communicationStyle(msgs []string) string {
	if len(msgs) == 0 {
		return ""
	}
	total := 0
	for _, m := range msgs {
		total += len(strings.Fields(m))
	}
	avg := float64(total) / float64(len(msgs))
	switch {
	case avg < 6:
		return "concise"
	case avg < 20:
		return "conversational"
	default:
		return "detailed"
	}
}

func activityPreferences(msgs []string) []string {
	joined := strings.ToLower(strings.Join(msgs, " \n "))
	var tags []string
	for _, a := range activityKeywords {
		if containsAny(joined, a.words) {
			tags = append(tags, a.tag)
		}
	}
	return tags
}

// #endregion preferences

// #region continuity

// classifyContinuity labels how the current message relates to the recent conversation.
func classifyContinuity(current string, recent []memory.Message) string {
	lower := strings.ToLower(strings.TrimSpace(current))
	for _, m := range continuityMarkers {
		for _, p := range m.phrases {
			if m.prefix && hasPhrasePrefix(lower, p) {
				return m.kind
			}
			if !m.prefix && strings.Contains(lower, p) {
				return m.kind
			}
		}
	}

	currentTokens := memory.Tokenize(current)
	if len(currentTokens) == 0 {
		return "related_topic"
	}
	var prior []string
	for i := max(0, len(recent)-2); i < len(recent); i++ {
		prior = append(prior, memory.Tokenize(recent[i].Content)...)
	}
	shared := memory.SharedKeywords(prior, currentTokens)
	ratio := float64(shared) / float64(len(currentTokens))
	switch {
	case ratio >= 0.5:
		return "topic_continuation"
	case shared > 0:
		return "related_topic"
	default:
		return "topic_shift"
	}
}

func hasPhrasePrefix(lower, phrase string) bool {
	if !strings.HasPrefix(lower, phrase) {
		return false
	}
	if len(lower) == len(phrase) {
		return true
	}
	next := lower[len(phrase)]
	return !(next >= 'a' && next <= 'z')
}

// #endregion continuity

// #region patterns

func interactionPatterns(msgs []string) []string {
	if len(msgs) == 0 {
		return nil
	}
	type pattern struct {
		name  string
		ratio float64
	}
	var questions, actions, social int
	for _, m := range msgs {
		lower := strings.ToLower(m)
		words := wordSet(lower)
		if strings.Contains(lower, "?") || startsWithAny(lower, questionStarters) {
			questions++
		}
		if countWords(words, actionVerbs) > 0 {
			actions++
		}
		if countWords(words, socialWords) > 0 {
			social++
		}
	}
	n := float64(len(msgs))
	candidates := []pattern{
		{"inquiry-focused", float64(questions) / n},
		{"action-oriented", float64(actions) / n},
		{"socially-engaging", float64(social) / n},
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].ratio > candidates[j].ratio })

	var out []string
	for _, c := range candidates {
		if c.ratio >= patternThreshold && len(out) < maxPatterns {
			out = append(out, c.name)
		}
	}
	return out
}

// #endregion patterns
