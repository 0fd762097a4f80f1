package council

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
)

const (
	maxPromptObjects = 10
	memorySnippetLen = 100
)

// #region templates

const councilInstructions = `Think through this message as a council of five perspectives before answering:
1. PERSONALITY: how would this character naturally respond, given their traits and the user's tone?
2. MEMORY: what from the conversation so far matters here?
3. SPATIAL: what is nearby, what is reachable, and what is in the way?
4. ACTION: what concrete actions (if any) should follow?
5. VALIDATION: are those actions safe and feasible from the current position?`

const responseShape = `Reply with a single JSON object and nothing else:
{
  "response": "what you say to the user",
  "actions": [{"type": "move|interact|state_change|pick_up|put_down|expression", "target": "object id or expression", "parameters": {}}],
  "mood": "your mood after this exchange",
  "reasoning": "one sentence on why",
  "council_reasoning": {
    "personality": "...",
    "memory": "...",
    "spatial": "...",
    "action": "...",
    "validation": "..."
  }
}`

// #endregion templates

// PromptBuilder turns a reasoning context into model prompts.
type PromptBuilder struct{}

// NewPromptBuilder creates a PromptBuilder.
func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// Build assembles the full council prompt. A failure while building yields a prompt
// holding only the user message.
func (pb *PromptBuilder) Build(rc *ReasoningContext) (prompt string) {
	defer func() {
		if recover() != nil {
			prompt = userSection(rc.UserMessage)
		}
	}()
	sections := []string{
		systemSection(rc.Persona),
		userSection(rc.UserMessage),
		personaSection(rc.Persona),
		contextSection(rc),
		spatialSection(rc),
		memorySection(rc),
		councilInstructions,
		responseShape,
	}
	return joinSections(sections)
}

// BuildForReasoner assembles a narrower prompt for one perspective.
func (pb *PromptBuilder) BuildForReasoner(rc *ReasoningContext, name string) (prompt string) {
	defer func() {
		if recover() != nil {
			prompt = userSection(rc.UserMessage)
		}
	}()
	var sections []string
	switch name {
	case personalityReasoner:
		sections = []string{systemSection(rc.Persona), userSection(rc.UserMessage), personaSection(rc.Persona),
			"Analyze this message from the PERSONALITY perspective: tone, sentiment and the response style that fits the character."}
	case memoryReasoner:
		sections = []string{userSection(rc.UserMessage), memorySection(rc),
			"Analyze this message from the MEMORY perspective: relevant history, recurring topics and continuity."}
	case spatialReasoner:
		sections = []string{userSection(rc.UserMessage), contextSection(rc), spatialSection(rc),
			"Analyze this message from the SPATIAL perspective: what is visible, reachable and in the way."}
	case actionReasoner:
		sections = []string{userSection(rc.UserMessage), contextSection(rc), spatialSection(rc),
			"Analyze this message from the ACTION perspective: the user's intent and concrete actions to take."}
	case validationReasoner:
		sections = []string{contextSection(rc), spatialSection(rc), personaSection(rc.Persona),
			"Analyze the situation from the VALIDATION perspective: which actions are safe and feasible right now."}
	default:
		sections = []string{userSection(rc.UserMessage),
			fmt.Sprintf("Analyze this message from the %s perspective.", strings.ToUpper(name))}
	}
	return joinSections(sections)
}

// #region sections

func joinSections(sections []string) string {
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}

func systemSection(p *Persona) string {
	if p == nil || p.Name == "" {
		return "You are a virtual AI companion living in a small 2D home. You can move between rooms, interact with objects and show expressions."
	}
	return fmt.Sprintf("You are %s, a virtual companion living in a small 2D home. You can move between rooms, interact with objects and show expressions. Stay in character.", p.Name)
}

func userSection(msg string) string {
	return "USER MESSAGE:\n" + msg
}

func personaSection(p *Persona) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("PERSONA:\n")
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	fmt.Fprintf(&b, "Personality: %s", p.Personality)
	if p.Creator != "" {
		fmt.Fprintf(&b, "\nCreator: %s", p.Creator)
	}
	if len(p.Expressions) > 0 {
		fmt.Fprintf(&b, "\nExpressions: %s", strings.Join(p.Expressions, ", "))
	}
	return b.String()
}

func contextSection(rc *ReasoningContext) string {
	a := rc.Assistant
	var b strings.Builder
	b.WriteString("CURRENT CONTEXT:\n")
	fmt.Fprintf(&b, "Position: (%.0f, %.0f)\n", a.Position.X, a.Position.Y)
	room := rc.Room.Name
	if room == "" {
		room = rc.Room.ID
	}
	fmt.Fprintf(&b, "Room: %s (%.0fx%.0f)\n", room, rc.Room.Bounds.Width(), rc.Room.Bounds.Height())
	fmt.Fprintf(&b, "Status: %s\n", a.Status)
	fmt.Fprintf(&b, "Mood: %s\n", a.Mood)
	held := "nothing"
	if a.IsHolding() {
		held = a.HeldObjectID
	}
	fmt.Fprintf(&b, "Holding: %s", held)
	return b.String()
}

func spatialSection(rc *ReasoningContext) string {
	pos := rc.Assistant.Position
	var nearby []RoomObject
	for _, o := range rc.Room.Objects {
		if geometry.IsNearby(pos, o.Position) {
			nearby = append(nearby, o)
		}
	}
	if len(nearby) == 0 {
		return "NEARBY OBJECTS:\nNone"
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return geometry.Distance(pos, nearby[i].Position) < geometry.Distance(pos, nearby[j].Position)
	})
	if len(nearby) > maxPromptObjects {
		nearby = nearby[:maxPromptObjects]
	}

	var b strings.Builder
	b.WriteString("NEARBY OBJECTS:")
	for _, o := range nearby {
		fmt.Fprintf(&b, "\n- %s (%s): %.0fpx away, movable: %s, interactive: %s",
			o.Label(), o.ID, geometry.Distance(pos, o.Position), yesNo(o.Movable), yesNo(o.Interactive))
		if len(o.State) > 0 {
			fmt.Fprintf(&b, ", state: %s", formatState(o.State))
		}
	}
	return b.String()
}

func memorySection(rc *ReasoningContext) string {
	if len(rc.Conversation) == 0 {
		return ""
	}
	retrieved, recent := rc.SplitConversation()
	var b strings.Builder
	fmt.Fprintf(&b, "CONVERSATION MEMORY (%d retrieved, %d recent):", len(retrieved), len(recent))
	writeMessages(&b, "Relevant earlier messages:", retrieved)
	writeMessages(&b, "Recent messages:", recent)
	return b.String()
}

func writeMessages(b *strings.Builder, heading string, msgs []memory.Message) {
	if len(msgs) == 0 {
		return
	}
	b.WriteString("\n" + heading)
	for _, m := range msgs {
		fmt.Fprintf(b, "\n- %s: %s", m.Role, truncate(m.Content, memorySnippetLen))
	}
}

// #endregion sections

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func formatState(state map[string]string) string {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + state[k]
	}
	return strings.Join(parts, ", ")
}
