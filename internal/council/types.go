package council

import (
	"strings"
	"time"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
)

// #region action-type

// ActionType is the closed set of things a decision can ask the assistant to do.
type ActionType string

const (
	ActionMove        ActionType = "move"
	ActionInteract    ActionType = "interact"
	ActionStateChange ActionType = "state_change"
	ActionPickUp      ActionType = "pick_up"
	ActionPutDown     ActionType = "put_down"
	ActionExpression  ActionType = "expression"
	ActionRest        ActionType = "rest" // idle path only
)

var parsableActions = map[ActionType]bool{
	ActionMove: true, ActionInteract: true, ActionStateChange: true,
	ActionPickUp: true, ActionPutDown: true, ActionExpression: true,
}

var actionSynonyms = map[string]ActionType{
	"movement":     ActionMove,
	"interaction":  ActionInteract,
	"manipulation": ActionPickUp,
	"emotion":      ActionExpression,
	"mood":         ActionExpression,
}

// ParseActionType maps model output onto an ActionType. Unknown kinds become expressions.
func ParseActionType(s string) ActionType {
	s = strings.ToLower(strings.TrimSpace(s))
	if t := ActionType(s); parsableActions[t] {
		return t
	}
	if t, ok := actionSynonyms[s]; ok {
		return t
	}
	return ActionExpression
}

// #endregion action-type

// #region action-decision

// Action is one step of a decision. For expressions Target holds the expression name.
type Action struct {
	Type       ActionType             `json:"type"`
	Target     string                 `json:"target,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Expression builds an expression action.
func Expression(name string) Action {
	return Action{Type: ActionExpression, Target: name}
}

// Decision is the integrated output of one council invocation.
type Decision struct {
	Response         string                 `json:"response"`
	Actions          []Action               `json:"actions"`
	Mood             string                 `json:"mood"`
	Reasoning        string                 `json:"reasoning"`
	CouncilReasoning map[string]string      `json:"council_reasoning"`
	Confidence       float64                `json:"confidence"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// #endregion action-decision

// #region snapshots

// AssistantSnapshot is the assistant state the council reasons about.
type AssistantSnapshot struct {
	ID           string            `json:"id"`
	Position     geometry.Position `json:"position"`
	RoomID       string            `json:"room_id,omitempty"`
	Status       string            `json:"status"`
	Mood         string            `json:"mood"`
	Expression   string            `json:"expression,omitempty"`
	HeldObjectID string            `json:"held_object_id,omitempty"`
	Energy       float64           `json:"energy"`
}

// IsHolding reports whether the assistant has something in hand.
func (a AssistantSnapshot) IsHolding() bool { return a.HeldObjectID != "" }

// RoomObject is a furniture item as seen by the council. Position is the item's center.
type RoomObject struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Position    geometry.Position `json:"position"`
	Size        geometry.Size     `json:"size"`
	Solid       bool              `json:"solid"`
	Movable     bool              `json:"movable"`
	Interactive bool              `json:"interactive"`
	Surface     bool              `json:"surface"`
	State       map[string]string `json:"state,omitempty"`
}

// Box returns the object's bounding box around its center.
func (o RoomObject) Box() geometry.Box {
	return geometry.NewBox(o.Position.X-o.Size.Width/2, o.Position.Y-o.Size.Height/2, o.Size.Width, o.Size.Height)
}

// Label is the display name, falling back to the id.
func (o RoomObject) Label() string {
	if o.Name != "" {
		return o.Name
	}
	return o.ID
}

// RoomSnapshot is the room the assistant is in.
type RoomSnapshot struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Bounds  geometry.Box `json:"bounds"`
	Objects []RoomObject `json:"objects"`
}

// Object finds an object by id.
func (r RoomSnapshot) Object(id string) (RoomObject, bool) {
	for _, o := range r.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return RoomObject{}, false
}

// Persona is an already-validated character description.
type Persona struct {
	Name        string   `json:"name" yaml:"name"`
	Personality string   `json:"personality" yaml:"personality"`
	Creator     string   `json:"creator,omitempty" yaml:"creator"`
	Expressions []string `json:"expressions,omitempty" yaml:"expressions"`
}

// #endregion snapshots

// #region reasoning-context

// ReasoningContext is the shared, read-only input of every reasoner.
type ReasoningContext struct {
	UserMessage       string
	Assistant         AssistantSnapshot
	Room              RoomSnapshot
	Persona           *Persona         // nil when no persona is loaded
	Conversation      []memory.Message // retrieved-then-recent; nil when memory is unavailable
	RecentContextSize int
	Timestamp         time.Time
}

// SplitConversation returns the retrieved (older, relevance-ranked) and recent parts of
// the conversation. Messages flagged as retrieved are used when present; otherwise the
// last RecentContextSize messages count as recent.
func (rc *ReasoningContext) SplitConversation() (retrieved, recent []memory.Message) {
	flagged := false
	for _, m := range rc.Conversation {
		if m.Retrieved {
			flagged = true
			break
		}
	}
	if flagged {
		for _, m := range rc.Conversation {
			if m.Retrieved {
				retrieved = append(retrieved, m)
			} else {
				recent = append(recent, m)
			}
		}
		return retrieved, recent
	}

	n := rc.RecentContextSize
	if n <= 0 {
		n = defaultRecentContextSize
	}
	if len(rc.Conversation) <= n {
		return nil, rc.Conversation
	}
	cut := len(rc.Conversation) - n
	return rc.Conversation[:cut], rc.Conversation[cut:]
}

const defaultRecentContextSize = 10

// #endregion reasoning-context

// #region result

// Result is one reasoner's contribution. Metadata holds the reasoner's typed analysis.
type Result struct {
	ReasonerName string        `json:"reasoner_name"`
	Reasoning    string        `json:"reasoning"`
	Confidence   float64       `json:"confidence"`
	Metadata     interface{}   `json:"metadata,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Valid reports whether the reasoner finished without error and said something.
func (r Result) Valid() bool { return r.Error == "" && r.Reasoning != "" }

// #endregion result
