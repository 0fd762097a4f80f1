package council

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/llm"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
)

func TestMain(m *testing.M) {
	// started at init by the genai client's opencensus dependency
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// #region fixtures

func pos(x, y float64) geometry.Position { return geometry.Position{X: x, Y: y} }

func livingRoom() RoomSnapshot {
	return RoomSnapshot{
		ID:     "living_room",
		Name:   "Living Room",
		Bounds: geometry.NewBox(0, 0, 400, 400),
		Objects: []RoomObject{
			{ID: "lamp_001", Name: "Lamp", Type: "lamp", Position: pos(120, 100), Size: geometry.Size{Width: 20, Height: 20},
				Solid: true, Interactive: true, State: map[string]string{"power": "off"}},
			{ID: "book_001", Name: "Book", Type: "book", Position: pos(140, 110), Size: geometry.Size{Width: 10, Height: 10},
				Movable: true, Interactive: true},
			{ID: "sofa_001", Name: "Sofa", Type: "sofa", Position: pos(300, 300), Size: geometry.Size{Width: 150, Height: 60},
				Solid: true, Surface: true},
		},
	}
}

func assistantAt(p geometry.Position) AssistantSnapshot {
	return AssistantSnapshot{ID: "deskmate", Position: p, RoomID: "living_room", Status: "idle", Mood: "content", Energy: 1}
}

func testPersona() *Persona {
	return &Persona{Name: "Mira", Personality: "Warm, cheerful and a little playful", Creator: "tests"}
}

type panicReasoner struct{ name string }

func (p panicReasoner) Name() string { return p.name }
func (p panicReasoner) Reason(context.Context, *ReasoningContext) Result {
	panic("boom")
}

type errReasoner struct{ name string }

func (e errReasoner) Name() string { return e.name }
func (e errReasoner) Reason(context.Context, *ReasoningContext) Result {
	return errorResult(e.name, errors.New("backend unavailable"))
}

type fakeMemory struct {
	msgs []memory.Message
	err  error
}

func (f fakeMemory) GetContext(context.Context, string, string) ([]memory.Message, error) {
	return f.msgs, f.err
}
func (f fakeMemory) RecentContextSize() int { return 10 }

type fakeLLM struct {
	reply string
	err   error
	got   []llm.Message
}

func (f *fakeLLM) Complete(_ context.Context, msgs []llm.Message, _ llm.Options) (string, error) {
	f.got = msgs
	return f.reply, f.err
}

func (f *fakeLLM) Stream(context.Context, []llm.Message, llm.Options) (<-chan llm.Chunk, error) {
	return nil, errors.New("not implemented")
}

// #endregion fixtures

// #region registry

func TestRegistry_RejectsDuplicates(t *testing.T) {
	reg := NewRegistry(NewPersonalityReasoner())
	require.Error(t, reg.Register(NewPersonalityReasoner()))
	require.NoError(t, reg.Register(NewMemoryReasoner()))
	assert.Equal(t, 2, reg.Len())

	reg.Clear()
	assert.Zero(t, reg.Len())
}

func TestDefaultRegistry_Order(t *testing.T) {
	var names []string
	for _, r := range DefaultRegistry().Reasoners() {
		names = append(names, r.Name())
	}
	want := []string{"personality", "memory", "spatial", "action", "validator"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("reasoner order (-want +got):\n%s", diff)
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	res := runGuarded(context.Background(), panicReasoner{"broken"}, &ReasoningContext{})
	assert.False(t, res.Valid())
	assert.Zero(t, res.Confidence)
	assert.Equal(t, "broken", res.ReasonerName)
	assert.Contains(t, res.Reasoning, "boom")
}

// #endregion registry

// #region personality

func TestClassifySentiment(t *testing.T) {
	cases := map[string]string{
		"This is amazing!":           "excited",
		"wow!! look at that":         "excited",
		"I love this, thanks":        "positive",
		"I'm so tired and sad today": "negative",
		"Where is the kitchen?":      "curious",
		"what time it is":            "curious",
		"Turn on the lamp":           "neutral",
		"":                           "neutral",
	}
	for msg, want := range cases {
		assert.Equal(t, want, ClassifySentiment(msg), "message %q", msg)
	}
}

func TestPersonality_DefaultWithoutPersona(t *testing.T) {
	res := NewPersonalityReasoner().Reason(context.Background(), &ReasoningContext{UserMessage: "hello"})
	assert.Equal(t, 0.8, res.Confidence)
	assert.Contains(t, res.Reasoning, "default personality")
	a := res.Metadata.(PersonalityAnalysis)
	assert.True(t, a.DefaultPersonality)
	assert.Equal(t, "friendly, professional", a.BaseStyle)
}

func TestPersonality_StyleFromPersona(t *testing.T) {
	res := NewPersonalityReasoner().Reason(context.Background(), &ReasoningContext{
		UserMessage: "This is amazing!",
		Persona:     testPersona(),
	})
	assert.Equal(t, 0.95, res.Confidence)
	a := res.Metadata.(PersonalityAnalysis)
	assert.Equal(t, "friendly", a.BaseStyle)
	assert.Equal(t, "excited", a.Sentiment)
	assert.Equal(t, "friendly with matching enthusiasm", a.ResponseStyle)
}

// #endregion personality

// #region memory

func TestMemory_NoHistory(t *testing.T) {
	res := NewMemoryReasoner().Reason(context.Background(), &ReasoningContext{UserMessage: "hi"})
	assert.Equal(t, 0.5, res.Confidence)
	assert.Equal(t, "new_conversation", res.Metadata.(MemoryAnalysis).Continuity)
	assert.Contains(t, strings.ToLower(res.Reasoning), "new conversation")
}

func TestMemory_ContinuityAndTopics(t *testing.T) {
	history := []memory.Message{
		{Role: "user", Content: "Can you turn on the lamp?"},
		{Role: "assistant", Content: "Sure, the lamp is on now."},
		{Role: "user", Content: "Can you move to the bedroom?"},
		{Role: "assistant", Content: "Heading to the bedroom."},
	}
	cases := []struct {
		msg, want string
	}{
		{"yes please", "direct_continuation"},
		{"what about the kitchen", "question_followup"},
		{"by the way, I like jazz", "topic_shift"},
		{"what do you mean by that", "clarification"},
		{"bedroom", "topic_continuation"},
		{"quantum chromodynamics", "topic_shift"},
	}
	for _, tc := range cases {
		res := NewMemoryReasoner().Reason(context.Background(), &ReasoningContext{UserMessage: tc.msg, Conversation: history})
		a := res.Metadata.(MemoryAnalysis)
		assert.Equal(t, tc.want, a.Continuity, "message %q", tc.msg)
		assert.Greater(t, res.Confidence, 0.5)
		assert.Equal(t, "conversational", a.CommunicationStyle)
		assert.LessOrEqual(t, len(a.Patterns), 3)
		assert.LessOrEqual(t, len(a.RecentTopics), 3)
	}
}

func TestSplitConversation_UsesRetrievedFlag(t *testing.T) {
	rc := &ReasoningContext{Conversation: []memory.Message{
		{Content: "old", Retrieved: true},
		{Content: "new"},
	}, RecentContextSize: 10}
	retrieved, recent := rc.SplitConversation()
	require.Len(t, retrieved, 1)
	require.Len(t, recent, 1)
	assert.Equal(t, "old", retrieved[0].Content)
}

// #endregion memory

// #region spatial

func TestAnalyzeSpace(t *testing.T) {
	a := AnalyzeSpace(assistantAt(pos(100, 100)), livingRoom())

	require.Len(t, a.Visible, 2)
	assert.Equal(t, "lamp_001", a.Visible[0].ID)
	assert.ElementsMatch(t, []string{"lamp_001", "book_001"}, a.InRange)
	assert.Equal(t, []string{"book_001"}, a.Movable)
	require.Len(t, a.Clusters, 1)
	assert.ElementsMatch(t, []string{"lamp_001", "book_001"}, a.Clusters[0].Members)
	assert.Equal(t, []string{"sofa_001"}, a.Isolated)
	assert.Equal(t, "right", a.MostFreeDirection)
	assert.Empty(t, a.HoldingEffects)
	require.Len(t, a.NearbyObstacles, 1)
	assert.Equal(t, "east", a.NearbyObstacles[0].Direction)
}

func TestAnalyzeSpace_Holding(t *testing.T) {
	asst := assistantAt(pos(100, 100))
	asst.HeldObjectID = "book_001"
	a := AnalyzeSpace(asst, livingRoom())
	require.NotEmpty(t, a.HoldingEffects)
	assert.Contains(t, a.HoldingEffects[0], "Book")
	for _, z := range a.Zones {
		assert.NotContains(t, z.Actions, "pick_up")
	}
}

// #endregion spatial

// #region action

func TestAnalyzeIntent_TurnOnLamp(t *testing.T) {
	a := AnalyzeIntent("Turn on the lamp", assistantAt(pos(100, 100)), livingRoom())
	assert.Equal(t, IntentObjectInteraction, a.PrimaryIntent)
	assert.Equal(t, []string{"lamp_001"}, a.MentionedObjects)
	assert.Equal(t, "normal", a.Urgency)
	require.NotEmpty(t, a.Proposals)

	top := a.Proposals[0]
	assert.Equal(t, ActionStateChange, top.Type)
	assert.Equal(t, "lamp_001", top.Target)
	assert.Equal(t, "on", top.Parameters["power"])
}

func TestAnalyzeIntent_UrgencyScalesScore(t *testing.T) {
	cases := []struct {
		msg     string
		urgency string
		score   float64
	}{
		{"Turn on the lamp", "normal", 1.0},
		{"Turn on the lamp right now", "high", 1.2},
		{"Turn on the lamp whenever", "low", 0.8},
	}
	for _, tc := range cases {
		t.Run(tc.urgency, func(t *testing.T) {
			a := AnalyzeIntent(tc.msg, assistantAt(pos(100, 100)), livingRoom())
			assert.Equal(t, tc.urgency, a.Urgency)
			require.NotEmpty(t, a.Proposals)
			top := a.Proposals[0]
			assert.Equal(t, "high", top.Priority)
			assert.InDelta(t, tc.score, top.Score, 1e-9)
		})
	}
}

func TestAnalyzeIntent_MovementToLocation(t *testing.T) {
	a := AnalyzeIntent("please go to the corner right now", assistantAt(pos(200, 200)), livingRoom())
	assert.Equal(t, IntentMovement, a.PrimaryIntent)
	assert.Equal(t, "high", a.Urgency)
	require.NotEmpty(t, a.Proposals)
	assert.Equal(t, ActionMove, a.Proposals[0].Type)
}

func TestAnalyzeIntent_ExplorationSkipsNearbyPoints(t *testing.T) {
	a := AnalyzeIntent("let's explore", assistantAt(pos(100, 100)), livingRoom())
	assert.Equal(t, IntentExploration, a.PrimaryIntent)
	assert.LessOrEqual(t, len(a.Proposals), 5)
	for _, p := range a.Proposals {
		if p.Type != ActionMove {
			continue
		}
		target := pos(p.Parameters["x"].(float64), p.Parameters["y"].(float64))
		assert.GreaterOrEqual(t, geometry.Distance(pos(100, 100), target), ExplorationSkip)
	}
}

func TestAnalyzeIntent_PickUpWhileHolding(t *testing.T) {
	asst := assistantAt(pos(100, 100))
	asst.HeldObjectID = "book_001"
	a := AnalyzeIntent("put down the book", asst, livingRoom())
	assert.Equal(t, IntentObjectManipulation, a.PrimaryIntent)
	for _, p := range a.Proposals {
		assert.NotEqual(t, ActionPickUp, p.Type)
	}
}

func TestAnalyzeIntent_DefaultsToConversation(t *testing.T) {
	a := AnalyzeIntent("mmm", assistantAt(pos(100, 100)), livingRoom())
	assert.Equal(t, IntentConversation, a.PrimaryIntent)
	assert.Empty(t, a.Proposals)
}

// #endregion action

// #region validator

func TestValidate_BoundaryAndReach(t *testing.T) {
	v := Validate(assistantAt(pos(10, 100)), livingRoom(), nil)
	require.Len(t, v.BoundaryWarnings, 1)
	assert.Contains(t, v.BoundaryWarnings[0], "left")
	assert.True(t, v.HasSafetyIssues())

	for _, i := range v.Interactions {
		if i.ObjectID == "lamp_001" {
			assert.False(t, i.Valid)
			assert.Contains(t, i.Reason, "too far")
		}
	}
}

func TestValidate_CrowdedAndHot(t *testing.T) {
	room := RoomSnapshot{ID: "kitchen", Bounds: geometry.NewBox(0, 0, 400, 400)}
	for i, p := range []geometry.Position{pos(150, 200), pos(250, 200), pos(200, 150), pos(200, 250)} {
		room.Objects = append(room.Objects, RoomObject{ID: string(rune('a' + i)), Position: p, Solid: true, Size: geometry.Size{Width: 10, Height: 10}})
	}
	room.Objects = append(room.Objects, RoomObject{ID: "stove", Type: "stove", Position: pos(350, 350), State: map[string]string{"power": "on"}})

	v := Validate(assistantAt(pos(200, 200)), room, &Persona{Personality: "calm and careful"})
	require.Len(t, v.FeasibilityWarnings, 1)
	require.Len(t, v.Hazards, 1)
	assert.Equal(t, 2, v.ConcernsFound)
	assert.Len(t, v.PersonaNotes, 2)
}

func TestValidate_PutDownCollision(t *testing.T) {
	asst := assistantAt(pos(300, 300))
	asst.HeldObjectID = "book_001"
	room := livingRoom()
	room.Objects[2].Surface = false

	v := Validate(asst, room, nil)
	require.NotEmpty(t, v.Manipulations)
	assert.False(t, v.Manipulations[0].Valid)
	assert.Contains(t, v.Manipulations[0].Reason, "Sofa")
}

// #endregion validator

// #region coordinator

func TestCoordinator_TurnOnLamp(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{Logger: zaptest.NewLogger(t)})
	d := c.ProcessUserMessage(context.Background(), "Turn on the lamp", assistantAt(pos(100, 100)), livingRoom(), testPersona())

	assert.NotEmpty(t, d.Response)
	require.NotEmpty(t, d.Actions)
	assert.LessOrEqual(t, len(d.Actions), 3)
	hasExpression := false
	for _, a := range d.Actions {
		if a.Type == ActionExpression {
			hasExpression = true
		}
	}
	assert.True(t, hasExpression)
	assert.Equal(t, IntentObjectInteraction, d.Metadata["primary_intent"])
	assert.Len(t, d.CouncilReasoning, 5)
	assert.Greater(t, d.Confidence, 0.0)
}

func TestCoordinator_ResultsAndPrompt(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{Logger: zaptest.NewLogger(t)})
	ctx := context.Background()

	results := c.Results(ctx, "Turn on the lamp", assistantAt(pos(100, 100)), livingRoom(), testPersona())
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.ReasonerName
		assert.True(t, r.Valid(), "reasoner %s", r.ReasonerName)
	}
	assert.Equal(t, []string{"personality", "memory", "spatial", "action", "validator"}, names)

	prompt := c.Prompt(ctx, "Turn on the lamp", assistantAt(pos(100, 100)), livingRoom(), testPersona())
	assert.Contains(t, prompt, "Turn on the lamp")
	assert.Contains(t, prompt, "lamp_001")
	assert.Contains(t, prompt, "Mira")
}

func TestCoordinator_NoPersonaKeepsMood(t *testing.T) {
	asst := assistantAt(pos(100, 100))
	asst.Mood = "sleepy"
	c := NewCoordinator(CoordinatorConfig{})
	d := c.ProcessUserMessage(context.Background(), "I love this!", asst, livingRoom(), nil)
	assert.Equal(t, "sleepy", d.Mood)
}

func TestCoordinator_ReasonerIsolation(t *testing.T) {
	rc := &ReasoningContext{UserMessage: "Turn on the lamp", Assistant: assistantAt(pos(100, 100)), Room: livingRoom(), RecentContextSize: 10}
	healthy := []Reasoner{NewPersonalityReasoner(), NewSpatialReasoner(), NewActionReasoner(), NewValidationReasoner()}
	sum := 0.0
	for _, r := range healthy {
		sum += runGuarded(context.Background(), r, rc).Confidence
	}

	for _, broken := range []Reasoner{panicReasoner{"memory"}, errReasoner{"memory"}} {
		reg := NewRegistry(healthy[0], broken, healthy[1], healthy[2], healthy[3])
		c := NewCoordinator(CoordinatorConfig{Registry: reg, Logger: zaptest.NewLogger(t)})
		d := c.ProcessUserMessage(context.Background(), rc.UserMessage, rc.Assistant, rc.Room, nil)

		assert.InDelta(t, sum/4, d.Confidence, 1e-9)
		assert.NotEmpty(t, d.CouncilReasoning["memory"])
		assert.Equal(t, []string{"memory"}, d.Metadata["failed_reasoners"])
		assert.NotEmpty(t, d.Response)
	}
}

func TestCoordinator_LogsUnderCouncilName(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	reg := NewRegistry(NewPersonalityReasoner(), errReasoner{"memory"})
	c := NewCoordinator(CoordinatorConfig{Registry: reg, Logger: zap.New(core)})
	c.ProcessUserMessage(context.Background(), "hello", assistantAt(pos(1, 1)), RoomSnapshot{}, nil)

	entries := logs.FilterMessage("reasoner failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "council", entries[0].LoggerName)
	assert.Equal(t, "memory", entries[0].ContextMap()["reasoner"])
}

func TestCoordinator_NoValidReasoners(t *testing.T) {
	reg := NewRegistry(panicReasoner{"a"}, panicReasoner{"b"})
	d := NewCoordinator(CoordinatorConfig{Registry: reg}).ProcessUserMessage(context.Background(), "hi", assistantAt(pos(1, 1)), RoomSnapshot{}, nil)
	assert.Zero(t, d.Confidence)
	assert.Empty(t, d.Actions)
	assert.NotEmpty(t, d.Response)
}

func TestCoordinator_MemoryFailureIsTolerated(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{Memory: fakeMemory{err: errors.New("db locked")}})
	d := c.ProcessUserMessage(context.Background(), "hello", assistantAt(pos(100, 100)), livingRoom(), nil)
	assert.NotEmpty(t, d.Response)
	assert.Contains(t, d.CouncilReasoning["memory"], "new conversation")
}

func TestCoordinator_ProcessWithLLM(t *testing.T) {
	model := &fakeLLM{reply: "```json\n{\"response\": \"On it!\", \"actions\": [{\"type\": \"state_change\", \"target\": \"lamp_001\"}], \"mood\": \"helpful\", \"reasoning\": \"asked\"}\n```"}
	c := NewCoordinator(CoordinatorConfig{LLM: model, Memory: fakeMemory{msgs: []memory.Message{{Role: "user", Content: "earlier"}}}})

	d := c.ProcessWithLLM(context.Background(), "Turn on the lamp", assistantAt(pos(100, 100)), livingRoom(), testPersona())
	assert.Equal(t, "On it!", d.Response)
	assert.Equal(t, "helpful", d.Mood)
	require.Len(t, model.got, 1)
	prompt := model.got[0].Content
	assert.Contains(t, prompt, "USER MESSAGE:\nTurn on the lamp")
	assert.Contains(t, prompt, "Name: Mira")
	assert.Contains(t, prompt, "lamp_001")
	assert.Contains(t, prompt, "CONVERSATION MEMORY")
}

func TestCoordinator_ProcessWithLLMFallsBack(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{LLM: &fakeLLM{err: errors.New("quota")}})
	d := c.ProcessWithLLM(context.Background(), "Turn on the lamp", assistantAt(pos(100, 100)), livingRoom(), nil)
	assert.Equal(t, "council", d.Metadata["source"])
}

func TestProcessIdleReasoning(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{})
	tired := assistantAt(pos(0, 0))
	tired.Energy = 0.1
	d := c.ProcessIdleReasoning(context.Background(), IdleContext{Assistant: tired})
	require.Len(t, d.Actions, 1)
	assert.Equal(t, ActionRest, d.Actions[0].Type)

	d = c.ProcessIdleReasoning(context.Background(), IdleContext{Assistant: assistantAt(pos(0, 0))})
	require.Len(t, d.Actions, 1)
	assert.Equal(t, Expression("contemplative"), d.Actions[0])
	assert.Equal(t, "content", d.Mood)
}

func TestFallbackDecision(t *testing.T) {
	d := FallbackDecision()
	assert.Equal(t, "concerned", d.Mood)
	assert.Equal(t, 0.3, d.Confidence)
	assert.Equal(t, []Action{Expression("apologetic")}, d.Actions)
}

// #endregion coordinator
