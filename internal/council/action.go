package council

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

const actionReasoner = "action"

// #region intents

const (
	IntentMovement           = "movement"
	IntentObjectInteraction  = "object_interaction"
	IntentObjectManipulation = "object_manipulation"
	IntentExploration        = "exploration"
	IntentConversation       = "conversation"
	IntentExpression         = "expression"
)

var intentOrder = []string{
	IntentMovement, IntentObjectInteraction, IntentObjectManipulation,
	IntentExploration, IntentConversation, IntentExpression,
}

// intentKeywords weights phrases per intent. Phrases match on word boundaries.
var intentKeywords = map[string]map[string]float64{
	IntentMovement: {
		"go to": 1.0, "move": 0.8, "walk": 0.8, "come": 0.7, "come here": 1.0, "head": 0.5,
		"over to": 0.6, "get closer": 0.8, "go": 0.5, "follow": 0.7,
	},
	IntentObjectInteraction: {
		"turn on": 1.0, "turn off": 1.0, "switch": 0.8, "open": 0.8, "close": 0.8, "use": 0.6,
		"toggle": 0.8, "activate": 0.7, "look at": 0.5, "examine": 0.7, "read": 0.6,
	},
	IntentObjectManipulation: {
		"pick up": 1.0, "grab": 0.9, "take": 0.7, "put down": 1.0, "drop": 0.8, "place": 0.8,
		"carry": 0.8, "hold": 0.6, "bring": 0.7, "set down": 1.0,
	},
	IntentExploration: {
		"explore": 1.0, "look around": 1.0, "wander": 0.9, "check out": 0.6, "investigate": 0.8,
		"discover": 0.7,
	},
	IntentConversation: {
		"tell me": 0.6, "what": 0.3, "how are you": 0.8, "talk": 0.7, "chat": 0.7, "why": 0.3,
		"hello": 0.5, "hi": 0.4, "hey": 0.4,
	},
	IntentExpression: {
		"smile": 0.9, "happy": 0.5, "sad": 0.5, "laugh": 0.8, "dance": 0.8, "wave": 0.8,
		"feel": 0.4, "excited": 0.5, "show me": 0.4, "surprised": 0.6,
	},
}

var intentPatterns = compileIntentPatterns()

func compileIntentPatterns() map[string]map[*regexp.Regexp]float64 {
	out := make(map[string]map[*regexp.Regexp]float64, len(intentKeywords))
	for intent, kws := range intentKeywords {
		out[intent] = make(map[*regexp.Regexp]float64, len(kws))
		for kw, w := range kws {
			out[intent][regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`)] = w
		}
	}
	return out
}

var expressionWords = []struct {
	word, expression string
}{
	{"smile", "happy"}, {"happy", "happy"}, {"laugh", "laughing"}, {"sad", "sad"},
	{"dance", "excited"}, {"excited", "excited"}, {"wave", "waving"}, {"surprised", "surprised"},
}

var highUrgency = []string{"now", "immediately", "quickly", "hurry", "asap", "right away", "urgent"}
var lowUrgency = []string{"whenever", "no rush", "later", "sometime", "if you can", "maybe", "eventually"}

const (
	objectInteractionBoost  = 0.3
	objectManipulationBoost = 0.2
	locationBoost           = 0.4
	secondaryThreshold      = 0.3

	maxProposals            = 10
	maxExplorationProposals = 5
)

var priorityValue = map[string]float64{"high": 1.0, "medium": 0.6, "low": 0.3}
var urgencyFactor = map[string]float64{"high": 1.2, "normal": 1.0, "low": 0.8}

// #endregion intents

// #region analysis

// ProposedAction is a candidate action with a priority score.
type ProposedAction struct {
	Action
	Priority    string  `json:"priority"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// ActionAnalysis is the action reasoner's structured output.
type ActionAnalysis struct {
	PrimaryIntent      string             `json:"primary_intent"`
	IntentScores       map[string]float64 `json:"intent_scores"`
	SecondaryIntents   []string           `json:"secondary_intents,omitempty"`
	Urgency            string             `json:"urgency"`
	MentionedObjects   []string           `json:"mentioned_objects,omitempty"`
	MentionedLocations []string           `json:"mentioned_locations,omitempty"`
	Proposals          []ProposedAction   `json:"proposals"`
}

// #endregion analysis

// ActionReasoner classifies what the user wants done and proposes concrete actions.
type ActionReasoner struct{}

// NewActionReasoner creates an ActionReasoner.
func NewActionReasoner() *ActionReasoner { return &ActionReasoner{} }

// Name implements Reasoner.
func (*ActionReasoner) Name() string { return actionReasoner }

// Reason implements Reasoner.
func (*ActionReasoner) Reason(_ context.Context, rc *ReasoningContext) Result {
	a := AnalyzeIntent(rc.UserMessage, rc.Assistant, rc.Room)

	var b strings.Builder
	fmt.Fprintf(&b, "Primary intent: %s (%.2f)", a.PrimaryIntent, a.IntentScores[a.PrimaryIntent])
	if len(a.SecondaryIntents) > 0 {
		fmt.Fprintf(&b, "; secondary: %s", strings.Join(a.SecondaryIntents, ", "))
	}
	fmt.Fprintf(&b, "; urgency %s.", a.Urgency)
	if len(a.Proposals) > 0 {
		top := make([]string, 0, 3)
		for i := 0; i < len(a.Proposals) && i < 3; i++ {
			top = append(top, a.Proposals[i].Description)
		}
		fmt.Fprintf(&b, " Top actions: %s.", strings.Join(top, "; "))
	} else {
		b.WriteString(" No physical action needed.")
	}

	conf := 0.5 + 0.4*min(a.IntentScores[a.PrimaryIntent], 1)
	return Result{
		ReasonerName: actionReasoner,
		Reasoning:    b.String(),
		Confidence:   conf,
		Metadata:     a,
	}
}

// AnalyzeIntent scores the message against every intent and proposes actions for the winner.
func AnalyzeIntent(msg string, assistant AssistantSnapshot, room RoomSnapshot) ActionAnalysis {
	lower := strings.ToLower(msg)
	words := wordSet(lower)

	scores := make(map[string]float64, len(intentOrder))
	for intent, patterns := range intentPatterns {
		for re, w := range patterns {
			if re.MatchString(lower) {
				scores[intent] += w
			}
		}
	}
	if strings.Contains(lower, "?") {
		scores[IntentConversation] += 0.3
	}

	objects := mentionedObjects(words, room.Objects)
	locations := mentionedLocations(words)
	if len(objects) > 0 {
		scores[IntentObjectInteraction] += objectInteractionBoost
		scores[IntentObjectManipulation] += objectManipulationBoost
	}
	if len(locations) > 0 {
		scores[IntentMovement] += locationBoost
	}

	primary, best := IntentConversation, 0.0
	for _, intent := range intentOrder {
		if scores[intent] > best {
			primary, best = intent, scores[intent]
		}
	}
	var secondary []string
	for _, intent := range intentOrder {
		if intent != primary && scores[intent] > secondaryThreshold {
			secondary = append(secondary, intent)
		}
	}
	sort.SliceStable(secondary, func(i, j int) bool { return scores[secondary[i]] > scores[secondary[j]] })

	a := ActionAnalysis{
		PrimaryIntent:      primary,
		IntentScores:       scores,
		SecondaryIntents:   secondary,
		Urgency:            classifyUrgency(lower),
		MentionedObjects:   ids(objects),
		MentionedLocations: locations,
	}
	p := proposer{assistant: assistant, room: room, lower: lower, words: words, mentioned: objects, locations: locations}
	a.Proposals = p.propose(primary, a.Urgency)
	return a
}

// #region classify

func classifyUrgency(lower string) string {
	words := wordSet(lower)
	for _, w := range highUrgency {
		if words[w] || (strings.Contains(w, " ") && strings.Contains(lower, w)) {
			return "high"
		}
	}
	if strings.Count(lower, "!") >= 2 {
		return "high"
	}
	for _, w := range lowUrgency {
		if words[w] || (strings.Contains(w, " ") && strings.Contains(lower, w)) {
			return "low"
		}
	}
	return "normal"
}

// mentionedObjects returns room objects whose name, type or id words appear in the message.
func mentionedObjects(words map[string]bool, objects []RoomObject) []RoomObject {
	var out []RoomObject
	for _, o := range objects {
		if objectMentioned(words, o) {
			out = append(out, o)
		}
	}
	return out
}

func objectMentioned(words map[string]bool, o RoomObject) bool {
	candidates := []string{strings.ToLower(o.Type)}
	for name := range wordSet(strings.ToLower(o.Name)) {
		candidates = append(candidates, name)
	}
	for _, part := range strings.Split(strings.ToLower(o.ID), "_") {
		candidates = append(candidates, part)
	}
	for _, c := range candidates {
		if len(c) > 2 && words[c] {
			return true
		}
	}
	return false
}

func ids(objects []RoomObject) []string {
	var out []string
	for _, o := range objects {
		out = append(out, o.ID)
	}
	return out
}

// #endregion classify

// #region proposals

type proposer struct {
	assistant AssistantSnapshot
	room      RoomSnapshot
	lower     string
	words     map[string]bool
	mentioned []RoomObject
	locations []string
	out       []ProposedAction
}

func (p *proposer) add(act Action, priority, desc string) {
	p.out = append(p.out, ProposedAction{Action: act, Priority: priority, Score: priorityValue[priority], Description: desc})
}

func (p *proposer) propose(intent, urgency string) []ProposedAction {
	limit := maxProposals
	switch intent {
	case IntentMovement:
		p.proposeMovement()
	case IntentObjectInteraction:
		p.proposeInteraction()
	case IntentObjectManipulation:
		p.proposeManipulation()
	case IntentExploration:
		p.proposeExploration()
		limit = maxExplorationProposals
	case IntentExpression:
		p.proposeExpression()
	}

	factor := urgencyFactor[urgency]
	for i := range p.out {
		p.out[i].Score *= factor
	}
	sort.SliceStable(p.out, func(i, j int) bool { return p.out[i].Score > p.out[j].Score })
	if len(p.out) > limit {
		p.out = p.out[:limit]
	}
	if p.out == nil {
		p.out = []ProposedAction{}
	}
	return p.out
}

func (p *proposer) moveTo(pos geometry.Position, priority, desc string) {
	p.add(Action{Type: ActionMove, Parameters: map[string]interface{}{"x": pos.X, "y": pos.Y}}, priority, desc)
}

func (p *proposer) moveNear(o RoomObject, priority string) {
	p.add(Action{Type: ActionMove, Target: o.ID, Parameters: map[string]interface{}{"x": o.Position.X, "y": o.Position.Y}},
		priority, "move to "+o.Label())
}

func (p *proposer) proposeMovement() {
	for _, name := range p.locations {
		if pos, ok := ResolveLocation(name, p.room.Bounds); ok {
			p.moveTo(pos, "high", "move to the "+name)
		}
	}
	for _, o := range p.mentioned {
		if !geometry.CanInteract(p.assistant.Position, o.Position) {
			p.moveNear(o, "medium")
		}
	}
}

func (p *proposer) proposeInteraction() {
	targets := p.mentioned
	if len(targets) == 0 {
		for _, o := range p.room.Objects {
			if o.Interactive && geometry.CanInteract(p.assistant.Position, o.Position) {
				targets = append(targets, o)
			}
		}
	}
	for _, o := range targets {
		priority := "medium"
		if containsObject(p.mentioned, o.ID) {
			priority = "high"
		}
		if !geometry.CanInteract(p.assistant.Position, o.Position) {
			p.moveNear(o, "high")
		}
		if v, ok := o.State["power"]; ok {
			next := p.desired("on", "off", v)
			p.add(Action{Type: ActionStateChange, Target: o.ID, Parameters: map[string]interface{}{"power": next}},
				priority, fmt.Sprintf("turn %s %s", o.Label(), next))
		}
		if v, ok := o.State["open"]; ok {
			next := p.desiredOpen(v)
			p.add(Action{Type: ActionStateChange, Target: o.ID, Parameters: map[string]interface{}{"open": next}},
				priority, fmt.Sprintf("set %s open=%s", o.Label(), next))
		}
		if o.Interactive {
			p.add(Action{Type: ActionInteract, Target: o.ID, Parameters: map[string]interface{}{"interaction": "examine"}},
				"low", "examine "+o.Label())
		}
	}
}

// desired picks the requested power state, toggling when the message is ambiguous.
func (p *proposer) desired(on, off, current string) string {
	switch {
	case strings.Contains(p.lower, "turn on") || strings.Contains(p.lower, "switch on"):
		return on
	case strings.Contains(p.lower, "turn off") || strings.Contains(p.lower, "switch off"):
		return off
	case current == on:
		return off
	default:
		return on
	}
}

func (p *proposer) desiredOpen(current string) string {
	switch {
	case p.words["open"]:
		return "true"
	case p.words["close"]:
		return "false"
	case current == "true":
		return "false"
	default:
		return "true"
	}
}

func (p *proposer) proposeManipulation() {
	pos := p.assistant.Position
	if p.assistant.IsHolding() {
		p.add(Action{Type: ActionPutDown, Target: p.assistant.HeldObjectID, Parameters: map[string]interface{}{"x": pos.X, "y": pos.Y}},
			"medium", "put down here")
		for _, o := range p.room.Objects {
			if !o.Surface || !geometry.CanInteract(pos, o.Position) {
				continue
			}
			priority := "medium"
			if containsObject(p.mentioned, o.ID) {
				priority = "high"
			}
			p.add(Action{Type: ActionPutDown, Target: p.assistant.HeldObjectID, Parameters: map[string]interface{}{"surface": o.ID}},
				priority, "put down on "+o.Label())
		}
		return
	}
	for _, o := range p.room.Objects {
		if !o.Movable {
			continue
		}
		mentioned := containsObject(p.mentioned, o.ID)
		if !geometry.CanInteract(pos, o.Position) {
			if mentioned {
				p.moveNear(o, "high")
				p.add(Action{Type: ActionPickUp, Target: o.ID}, "medium", "pick up "+o.Label())
			}
			continue
		}
		priority := "medium"
		if mentioned {
			priority = "high"
		}
		p.add(Action{Type: ActionPickUp, Target: o.ID}, priority, "pick up "+o.Label())
	}
}

func (p *proposer) proposeExploration() {
	pos := p.assistant.Position
	for _, o := range p.room.Objects {
		if o.Interactive && geometry.CanInteract(pos, o.Position) {
			p.add(Action{Type: ActionInteract, Target: o.ID, Parameters: map[string]interface{}{"interaction": "examine"}},
				"medium", "examine "+o.Label())
		}
	}
	if p.room.Bounds.Width() <= 0 {
		return
	}
	for _, f := range explorationPoints {
		pt := fractionOf(p.room.Bounds, f)
		if geometry.Distance(pos, pt) < ExplorationSkip {
			continue
		}
		p.moveTo(pt, "low", fmt.Sprintf("explore toward (%.0f, %.0f)", pt.X, pt.Y))
	}
}

func (p *proposer) proposeExpression() {
	for _, e := range expressionWords {
		if p.words[e.word] {
			p.add(Expression(e.expression), "medium", "express "+e.expression)
			return
		}
	}
	p.add(Expression("thoughtful"), "low", "express thoughtful")
}

func containsObject(objects []RoomObject, id string) bool {
	for _, o := range objects {
		if o.ID == id {
			return true
		}
	}
	return false
}

// #endregion proposals
