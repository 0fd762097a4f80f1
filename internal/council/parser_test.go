package council

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
)

// #region parser

const wellFormed = `{
  "response": "Sure, I'll turn the lamp on for you.",
  "actions": [
    {"type": "movement", "target": "lamp_001", "parameters": {"x": 120, "y": 100}},
    {"type": "state_change", "target": "lamp_001", "parameters": {"power": "on"}},
    {"type": "emotion", "target": "happy"}
  ],
  "mood": "helpful",
  "reasoning": "The user asked for light.",
  "council_reasoning": {
    "personality": "friendly",
    "memory": "new conversation",
    "spatial": "lamp in reach",
    "action": "turn on lamp",
    "validation": "safe"
  }
}`

func TestParse_WellFormed(t *testing.T) {
	d := NewResponseParser().Parse(wellFormed)

	assert.Equal(t, "Sure, I'll turn the lamp on for you.", d.Response)
	assert.Equal(t, "helpful", d.Mood)
	assert.Equal(t, "The user asked for light.", d.Reasoning)
	want := []Action{
		{Type: ActionMove, Target: "lamp_001", Parameters: map[string]interface{}{"x": 120.0, "y": 100.0}},
		{Type: ActionStateChange, Target: "lamp_001", Parameters: map[string]interface{}{"power": "on"}},
		{Type: ActionExpression, Target: "happy"},
	}
	if diff := cmp.Diff(want, d.Actions); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, d.CouncilReasoning, 5)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)
	assert.Equal(t, false, d.Metadata["repaired"])
}

func TestParse_FencedWithProse(t *testing.T) {
	raw := "Here is my answer:\n```json\n{\"response\": \"Hello there!\", \"mood\": \"happy\", \"actions\": []}\n```\nHope that helps {not json}."
	d := NewResponseParser().Parse(raw)
	assert.Equal(t, "Hello there!", d.Response)
	assert.Equal(t, "fenced", d.Metadata["parse_method"])
	assert.Empty(t, d.Actions)
}

func TestParse_BraceSpanInsideText(t *testing.T) {
	raw := `I think this works: {"response": "Brace {inside} string", "mood": "calm"} and that's it.`
	d := NewResponseParser().Parse(raw)
	assert.Equal(t, "Brace {inside} string", d.Response)
	assert.Equal(t, "braces", d.Metadata["parse_method"])
}

func TestParse_Repairs(t *testing.T) {
	raw := `{
		// model chatter
		response: 'Okay, moving now.',
		mood: 'determined', /* inline */
		actions: [{type: 'move', target: 'sofa_001'},],
	}`
	d := NewResponseParser().Parse(raw)
	assert.Equal(t, "Okay, moving now.", d.Response)
	assert.Equal(t, "determined", d.Mood)
	require.Len(t, d.Actions, 1)
	assert.Equal(t, ActionMove, d.Actions[0].Type)
	assert.Equal(t, true, d.Metadata["repaired"])
}

func TestParse_CoercesActions(t *testing.T) {
	var items []string
	for i := 0; i < 8; i++ {
		items = append(items, `{"type": "dance"}`)
	}
	d := NewResponseParser().Parse(`{"response": "x", "actions": [` + strings.Join(items, ",") + `]}`)
	require.Len(t, d.Actions, MaxParsedActions)
	for _, a := range d.Actions {
		assert.Equal(t, ActionExpression, a.Type)
	}

	d = NewResponseParser().Parse(`{"response": "x", "actions": "move"}`)
	assert.NotNil(t, d.Actions)
	assert.Empty(t, d.Actions)
}

func TestParse_MissingResponseUsesSentence(t *testing.T) {
	d := NewResponseParser().Parse("Let me think about that. {\"mood\": \"curious\"}")
	assert.Equal(t, "Let me think about that.", d.Response)
	assert.Equal(t, "curious", d.Mood)
}

func TestParse_NoJSON(t *testing.T) {
	for _, raw := range []string{
		"Sure thing, I can do that for you. Anything else?",
		"",
		"{{{ broken",
	} {
		d := NewResponseParser().Parse(raw)
		assert.NotEmpty(t, d.Response, "raw %q", raw)
		assert.Less(t, d.Confidence, 0.5)
		assert.Equal(t, true, d.Metadata["parse_fallback"])
		require.Len(t, d.Actions, 1)
		assert.Equal(t, Expression("thoughtful"), d.Actions[0])
	}
}

func TestParseActionType(t *testing.T) {
	cases := map[string]ActionType{
		"move": ActionMove, " Pick_Up ": ActionPickUp, "interaction": ActionInteract,
		"manipulation": ActionPickUp, "mood": ActionExpression, "rest": ActionExpression, "fly": ActionExpression,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseActionType(in), "input %q", in)
	}
}

// #endregion parser

// #region prompt

func TestPromptBuilder_Sections(t *testing.T) {
	room := livingRoom()
	for i := 0; i < 15; i++ {
		room.Objects = append(room.Objects, RoomObject{ID: "pebble_" + string(rune('a'+i)), Name: "Pebble", Position: pos(100+float64(i), 105)})
	}
	long := strings.Repeat("x", 150)
	rc := &ReasoningContext{
		UserMessage: "Turn on the lamp",
		Assistant:   assistantAt(pos(100, 100)),
		Room:        room,
		Persona:     testPersona(),
		Conversation: []memory.Message{
			{Role: "user", Content: long, Retrieved: true},
			{Role: "assistant", Content: "hello"},
		},
		RecentContextSize: 10,
	}
	prompt := NewPromptBuilder().Build(rc)

	for _, want := range []string{
		"You are Mira", "USER MESSAGE:\nTurn on the lamp", "PERSONA:", "Creator: tests",
		"CURRENT CONTEXT:", "Room: Living Room (400x400)", "Holding: nothing",
		"NEARBY OBJECTS:", "CONVERSATION MEMORY (1 retrieved, 1 recent)",
		strings.Repeat("x", 100) + "...", "VALIDATION", `"council_reasoning"`,
	} {
		assert.Contains(t, prompt, want)
	}
	assert.NotContains(t, prompt, strings.Repeat("x", 101))
	assert.Equal(t, 10, strings.Count(prompt, "px away"))
}

func TestPromptBuilder_Minimal(t *testing.T) {
	rc := &ReasoningContext{UserMessage: "hi", Room: RoomSnapshot{Bounds: geometry.NewBox(0, 0, 100, 100)}}
	prompt := NewPromptBuilder().Build(rc)
	assert.Contains(t, prompt, "virtual AI companion")
	assert.Contains(t, prompt, "NEARBY OBJECTS:\nNone")
	assert.NotContains(t, prompt, "PERSONA:")
	assert.NotContains(t, prompt, "CONVERSATION MEMORY")
}

func TestPromptBuilder_ForReasoner(t *testing.T) {
	rc := &ReasoningContext{UserMessage: "hi", Assistant: assistantAt(pos(100, 100)), Room: livingRoom()}
	pb := NewPromptBuilder()

	assert.Contains(t, pb.BuildForReasoner(rc, "spatial"), "NEARBY OBJECTS:")
	assert.NotContains(t, pb.BuildForReasoner(rc, "personality"), "NEARBY OBJECTS:")
	assert.Contains(t, pb.BuildForReasoner(rc, "humor"), "HUMOR perspective")
}

// #endregion prompt
