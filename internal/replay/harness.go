package replay

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
)

// #region types

// Interaction represents a single recorded turn for replay.
type Interaction struct {
	TurnID  string
	Message string
}

// Expectation is what a turn's decision is checked against.
type Expectation struct {
	Mood             string
	PrimaryIntent    string
	ActionTypes      []string
	MinConfidence    float64
	ResponseContains string
}

// Result actions.
const (
	ActionPass      = "pass"
	ActionFail      = "fail"
	ActionUnchecked = "unchecked"
)

// ReplayResult captures the outcome of replaying one interaction through the council.
type ReplayResult struct {
	TurnID        string
	Action        string // "pass" | "fail" | "unchecked"
	Reason        string
	Decision      council.Decision
	PrimaryIntent string
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalTurns     int
	Passed         int
	Failed         int
	Unchecked      int
	MeanConfidence float64
	FinalAssistant council.AssistantSnapshot
}

// #endregion types

// #region transcript

// transcript is an in-memory conversation that stands in for the message store.
type transcript struct {
	msgs []memory.Message
	size int
}

func (t *transcript) GetContext(_ context.Context, _, _ string) ([]memory.Message, error) {
	start := max(0, len(t.msgs)-t.size)
	return append([]memory.Message(nil), t.msgs[start:]...), nil
}

func (t *transcript) RecentContextSize() int { return t.size }

func (t *transcript) add(role, content string) {
	t.msgs = append(t.msgs, memory.Message{Role: role, Content: content})
}

// #endregion transcript

// #region replay

// Replay runs each interaction through a rule-based council in memory. The decided mood
// carries into the next turn the way a committed decision would.
func Replay(ctx context.Context, start council.AssistantSnapshot, room council.RoomSnapshot, persona *council.Persona,
	interactions []Interaction, expectations map[string]Expectation) ([]ReplayResult, council.AssistantSnapshot) {
	convo := &transcript{size: memory.DefaultOptions().RecentContextSize}
	coord := council.NewCoordinator(council.CoordinatorConfig{Memory: convo})

	current := start
	results := make([]ReplayResult, 0, len(interactions))
	for _, inter := range interactions {
		d := coord.ProcessUserMessage(ctx, inter.Message, current, room, persona)
		convo.add("user", inter.Message)
		convo.add("assistant", d.Response)
		if d.Mood != "" {
			current.Mood = d.Mood
		}

		r := ReplayResult{TurnID: inter.TurnID, Decision: d, PrimaryIntent: metaString(d.Metadata, "primary_intent")}
		exp, ok := expectations[inter.TurnID]
		if !ok {
			r.Action = ActionUnchecked
		} else if problems := Check(r, exp); len(problems) > 0 {
			r.Action = ActionFail
			r.Reason = strings.Join(problems, "; ")
		} else {
			r.Action = ActionPass
		}
		results = append(results, r)
	}
	return results, current
}

// Check returns every way r misses exp.
func Check(r ReplayResult, exp Expectation) []string {
	var problems []string
	if exp.Mood != "" && r.Decision.Mood != exp.Mood {
		problems = append(problems, fmt.Sprintf("mood %q, want %q", r.Decision.Mood, exp.Mood))
	}
	if exp.PrimaryIntent != "" && r.PrimaryIntent != exp.PrimaryIntent {
		problems = append(problems, fmt.Sprintf("intent %q, want %q", r.PrimaryIntent, exp.PrimaryIntent))
	}
	if len(exp.ActionTypes) > 0 {
		got := make([]string, len(r.Decision.Actions))
		for i, a := range r.Decision.Actions {
			got[i] = string(a.Type)
		}
		if strings.Join(got, ",") != strings.Join(exp.ActionTypes, ",") {
			problems = append(problems, fmt.Sprintf("actions [%s], want [%s]", strings.Join(got, ","), strings.Join(exp.ActionTypes, ",")))
		}
	}
	if r.Decision.Confidence < exp.MinConfidence {
		problems = append(problems, fmt.Sprintf("confidence %.2f below %.2f", r.Decision.Confidence, exp.MinConfidence))
	}
	if exp.ResponseContains != "" && !strings.Contains(strings.ToLower(r.Decision.Response), strings.ToLower(exp.ResponseContains)) {
		problems = append(problems, fmt.Sprintf("response lacks %q", exp.ResponseContains))
	}
	return problems
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult, final council.AssistantSnapshot) ReplaySummary {
	s := ReplaySummary{TotalTurns: len(results), FinalAssistant: final}
	total := 0.0
	for _, r := range results {
		total += r.Decision.Confidence
		switch r.Action {
		case ActionPass:
			s.Passed++
		case ActionFail:
			s.Failed++
		default:
			s.Unchecked++
		}
	}
	if len(results) > 0 {
		s.MeanConfidence = total / float64(len(results))
	}
	return s
}

func metaString(meta map[string]interface{}, key string) string {
	if v, ok := meta[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// #endregion replay
