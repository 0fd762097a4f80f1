package council

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/llm"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
)

var tracer = otel.Tracer("companion/council")

const (
	maxDecisionActions = 3
	fallbackConf       = 0.3
	lowEnergy          = 0.3
)

// #region mappings

var sentimentMood = map[string]string{
	"excited":  "excited",
	"positive": "happy",
	"negative": "concerned",
	"curious":  "curious",
	"neutral":  "content",
}

// intentExpressions is the conservative intent-to-action mapping: expressions only.
var intentExpressions = map[string][]string{
	IntentMovement:           {"determined"},
	IntentObjectInteraction:  {"focused", "helpful"},
	IntentObjectManipulation: {"focused"},
	IntentExploration:        {"curious", "excited"},
	IntentConversation:       {"attentive"},
	IntentExpression:         {"happy"},
}

var styleOpeners = map[string]string{
	"friendly":     "Happy to help!",
	"professional": "Certainly.",
	"playful":      "Ooh, fun!",
	"calm":         "Of course.",
	balancedStyle:  "Sure.",
	defaultStyle:   "I'd be glad to help.",
}

var continuityClauses = map[string]string{
	"new_conversation":    "Nice to chat with you.",
	"direct_continuation": "Got it.",
	"question_followup":   "Good follow-up.",
	"topic_shift":         "Switching gears then.",
	"clarification":       "Let me clarify.",
	"topic_continuation":  "Picking up where we left off.",
}

var intentClauses = map[string]string{
	IntentMovement:           "I'll head over there.",
	IntentObjectManipulation: "Let me handle that.",
	IntentExploration:        "I'd love to explore a bit.",
	IntentConversation:       "I'm listening.",
	IntentExpression:         "That really shows on my face!",
}

// #endregion mappings

// #region coordinator

// MemoryProvider supplies persona-scoped conversation context.
type MemoryProvider interface {
	GetContext(ctx context.Context, current, persona string) ([]memory.Message, error)
	RecentContextSize() int
}

// CoordinatorConfig wires a Coordinator. Only Registry is defaulted; Memory and LLM may be nil.
type CoordinatorConfig struct {
	Registry   *Registry
	Memory     MemoryProvider
	LLM        llm.Client
	LLMOptions llm.Options
	Logger     *zap.Logger
}

// Coordinator runs the reasoners and integrates their results into one decision.
type Coordinator struct {
	registry *Registry
	memory   MemoryProvider
	llm      llm.Client
	llmOpts  llm.Options
	prompts  *PromptBuilder
	parser   *ResponseParser
	log      *zap.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{
		registry: cfg.Registry,
		memory:   cfg.Memory,
		llm:      cfg.LLM,
		llmOpts:  cfg.LLMOptions,
		prompts:  NewPromptBuilder(),
		parser:   NewResponseParser(),
		log:      cfg.Logger.Named("council"),
	}
}

// Registry returns the coordinator's reasoner registry.
func (c *Coordinator) Registry() *Registry { return c.registry }

// #endregion coordinator

// #region process

// ProcessUserMessage runs every reasoner concurrently and integrates the results.
// It always returns a decision.
func (c *Coordinator) ProcessUserMessage(ctx context.Context, msg string, assistant AssistantSnapshot, room RoomSnapshot, persona *Persona) Decision {
	ctx, span := tracer.Start(ctx, "council.process")
	defer span.End()

	rc := c.buildContext(ctx, msg, assistant, room, persona)
	results := c.runReasoners(ctx, rc)
	d, err := c.integrate(rc, results)
	if err != nil {
		c.log.Error("council integration failed", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return FallbackDecision()
	}
	span.SetAttributes(
		attribute.Float64("council.confidence", d.Confidence),
		attribute.Int("council.actions", len(d.Actions)),
	)
	return d
}

// ProcessWithLLM asks the model for a decision using the council prompt and parses
// the reply. Without a model, or when the call fails, it falls back to the
// reasoner pipeline.
func (c *Coordinator) ProcessWithLLM(ctx context.Context, msg string, assistant AssistantSnapshot, room RoomSnapshot, persona *Persona) Decision {
	if c.llm == nil {
		return c.ProcessUserMessage(ctx, msg, assistant, room, persona)
	}
	ctx, span := tracer.Start(ctx, "council.process_llm")
	defer span.End()

	rc := c.buildContext(ctx, msg, assistant, room, persona)
	prompt := c.prompts.Build(rc)
	text, err := c.llm.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, c.llmOpts)
	if err != nil {
		c.log.Warn("llm call failed, using reasoner pipeline", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return c.ProcessUserMessage(ctx, msg, assistant, room, persona)
	}

	d := c.parser.Parse(text)
	span.SetAttributes(attribute.Float64("council.confidence", d.Confidence))
	return d
}

// Results runs the reasoners without integrating, for inspection tools.
func (c *Coordinator) Results(ctx context.Context, msg string, assistant AssistantSnapshot, room RoomSnapshot, persona *Persona) []Result {
	return c.runReasoners(ctx, c.buildContext(ctx, msg, assistant, room, persona))
}

// Prompt renders the council prompt for a message, for inspection tools.
func (c *Coordinator) Prompt(ctx context.Context, msg string, assistant AssistantSnapshot, room RoomSnapshot, persona *Persona) string {
	return c.prompts.Build(c.buildContext(ctx, msg, assistant, room, persona))
}

func (c *Coordinator) buildContext(ctx context.Context, msg string, assistant AssistantSnapshot, room RoomSnapshot, persona *Persona) *ReasoningContext {
	rc := &ReasoningContext{
		UserMessage:       msg,
		Assistant:         assistant,
		Room:              room,
		Persona:           persona,
		RecentContextSize: defaultRecentContextSize,
		Timestamp:         time.Now(),
	}
	if c.memory == nil {
		return rc
	}
	rc.RecentContextSize = c.memory.RecentContextSize()
	personaName := ""
	if persona != nil {
		personaName = persona.Name
	}
	conv, err := c.memory.GetContext(ctx, msg, personaName)
	if err != nil {
		c.log.Warn("conversation context unavailable", zap.Error(err))
		return rc
	}
	rc.Conversation = conv
	return rc
}

// runReasoners fans out to every registered reasoner. One failure never cancels the others.
func (c *Coordinator) runReasoners(ctx context.Context, rc *ReasoningContext) []Result {
	reasoners := c.registry.Reasoners()
	results := make([]Result, len(reasoners))

	var g errgroup.Group
	for i, r := range reasoners {
		g.Go(func() error {
			results[i] = runGuarded(ctx, r, rc)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if !res.Valid() {
			c.log.Warn("reasoner failed", zap.String("reasoner", res.ReasonerName), zap.String("error", res.Error))
		}
	}
	return results
}

// #endregion process

// #region integrate

func (c *Coordinator) integrate(rc *ReasoningContext, results []Result) (d Decision, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("integrate: panic: %v", p)
		}
	}()

	var (
		personality *PersonalityAnalysis
		mem         *MemoryAnalysis
		spatial     *SpatialAnalysis
		action      *ActionAnalysis
		validation  *ValidationAnalysis
	)
	reasoning := make(map[string]string, len(results))
	var valid []string
	var failed []string
	total := 0.0
	for _, r := range results {
		reasoning[r.ReasonerName] = r.Reasoning
		if !r.Valid() {
			failed = append(failed, r.ReasonerName)
			continue
		}
		valid = append(valid, r.ReasonerName)
		total += r.Confidence
		switch m := r.Metadata.(type) {
		case PersonalityAnalysis:
			personality = &m
		case MemoryAnalysis:
			mem = &m
		case SpatialAnalysis:
			spatial = &m
		case ActionAnalysis:
			action = &m
		case ValidationAnalysis:
			validation = &m
		}
	}

	conf := 0.0
	if len(valid) > 0 {
		conf = total / float64(len(valid))
	}

	intent := ""
	if action != nil {
		intent = action.PrimaryIntent
	}
	sentiment := ""
	if personality != nil {
		sentiment = personality.Sentiment
	}
	safety := validation != nil && validation.HasSafetyIssues()

	d = Decision{
		Response:         synthesizeResponse(rc, personality, mem, spatial, action),
		Actions:          decisionActions(action, safety),
		Mood:             decisionMood(rc, personality),
		Reasoning:        fmt.Sprintf("Council consensus: %d of %d reasoners contributed (%s).", len(valid), len(results), strings.Join(valid, ", ")),
		CouncilReasoning: reasoning,
		Confidence:       conf,
		Metadata: map[string]interface{}{
			"source":           "council",
			"reasoner_count":   len(results),
			"valid_reasoners":  len(valid),
			"failed_reasoners": failed,
			"primary_intent":   intent,
			"sentiment":        sentiment,
			"safety_issues":    safety,
		},
	}
	return d, nil
}

func decisionActions(action *ActionAnalysis, safety bool) []Action {
	out := []Action{}
	if action == nil {
		return out
	}
	if action.PrimaryIntent == IntentExpression {
		for _, p := range action.Proposals {
			if p.Type == ActionExpression {
				out = append(out, p.Action)
			}
		}
	}
	for _, e := range intentExpressions[action.PrimaryIntent] {
		out = append(out, Expression(e))
	}
	if safety {
		filtered := out[:0]
		for _, a := range out {
			if a.Type == ActionExpression {
				filtered = append(filtered, a)
			}
		}
		out = filtered
	}
	if len(out) > maxDecisionActions {
		out = out[:maxDecisionActions]
	}
	return out
}

// decisionMood maps sentiment to mood. Without a persona the assistant keeps its current mood.
func decisionMood(rc *ReasoningContext, personality *PersonalityAnalysis) string {
	if personality != nil && !personality.DefaultPersonality {
		if m, ok := sentimentMood[personality.Sentiment]; ok {
			return m
		}
	}
	if rc.Assistant.Mood != "" {
		return rc.Assistant.Mood
	}
	return "content"
}

func synthesizeResponse(rc *ReasoningContext, personality *PersonalityAnalysis, mem *MemoryAnalysis, spatial *SpatialAnalysis, action *ActionAnalysis) string {
	var clauses []string
	if personality != nil {
		if personality.Sentiment == "negative" {
			clauses = append(clauses, "I'm sorry to hear that.")
		} else if o, ok := styleOpeners[personality.BaseStyle]; ok {
			clauses = append(clauses, o)
		}
	}
	if mem != nil {
		if cl, ok := continuityClauses[mem.Continuity]; ok {
			clauses = append(clauses, cl)
		}
	}
	if action != nil {
		if action.PrimaryIntent == IntentObjectInteraction {
			target := "that"
			if len(action.MentionedObjects) > 0 {
				target = "the " + objectLabel(rc.Room, action.MentionedObjects[0])
			}
			clauses = append(clauses, fmt.Sprintf("Let me take care of %s.", target))
		} else if cl, ok := intentClauses[action.PrimaryIntent]; ok {
			clauses = append(clauses, cl)
		}
	}
	if spatial != nil {
		switch n := len(spatial.Visible); n {
		case 0:
			clauses = append(clauses, "There isn't much right around me.")
		case 1:
			clauses = append(clauses, "I can see one thing nearby.")
		default:
			clauses = append(clauses, fmt.Sprintf("I can see %d things nearby.", n))
		}
	}
	if len(clauses) == 0 {
		return "I'm here with you."
	}
	return strings.Join(clauses, " ")
}

func objectLabel(room RoomSnapshot, id string) string {
	if o, ok := room.Object(id); ok {
		return strings.ToLower(o.Label())
	}
	return id
}

// #endregion integrate

// #region fallback

// FallbackDecision is returned when integration itself fails.
func FallbackDecision() Decision {
	return Decision{
		Response:         "I'm sorry, I got a little muddled thinking about that. Could you say it again?",
		Actions:          []Action{Expression("apologetic")},
		Mood:             "concerned",
		Reasoning:        "Council processing failed; using fallback response.",
		CouncilReasoning: map[string]string{},
		Confidence:       fallbackConf,
		Metadata:         map[string]interface{}{"source": "fallback"},
	}
}

// #endregion fallback

// #region idle

// IdleContext is the input to idle reasoning.
type IdleContext struct {
	Assistant    AssistantSnapshot
	Room         RoomSnapshot
	IdleDuration time.Duration
	Persona      *Persona
}

// ProcessIdleReasoning decides what to do while nobody is talking. It skips the
// reasoner pipeline: low energy rests, otherwise the assistant looks contemplative.
func (c *Coordinator) ProcessIdleReasoning(_ context.Context, ic IdleContext) Decision {
	mood := ic.Assistant.Mood
	if mood == "" {
		mood = "content"
	}
	if ic.Assistant.Energy < lowEnergy {
		return Decision{
			Response:         "I'm feeling a bit worn out. Time for a short rest.",
			Actions:          []Action{{Type: ActionRest}},
			Mood:             "tired",
			Reasoning:        fmt.Sprintf("Energy is low (%.2f); resting.", ic.Assistant.Energy),
			CouncilReasoning: map[string]string{},
			Confidence:       0.8,
			Metadata:         map[string]interface{}{"source": "idle", "idle_seconds": ic.IdleDuration.Seconds()},
		}
	}
	return Decision{
		Response:         "Just taking a quiet moment to look around.",
		Actions:          []Action{Expression("contemplative")},
		Mood:             mood,
		Reasoning:        fmt.Sprintf("Idle for %s with energy %.2f; reflecting.", ic.IdleDuration.Round(time.Second), ic.Assistant.Energy),
		CouncilReasoning: map[string]string{},
		Confidence:       0.6,
		Metadata:         map[string]interface{}{"source": "idle", "idle_seconds": ic.IdleDuration.Seconds()},
	}
}

// #endregion idle
