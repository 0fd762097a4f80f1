package council

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

const (
	validationReasoner = "validator"

	// BoundaryMargin is how close to a wall counts as a boundary concern.
	BoundaryMargin = 30.0
	// CrowdedThreshold is the number of nearby obstacles that makes movement a concern.
	CrowdedThreshold = 3

	validatorBaseConf    = 0.9
	validatorMinConf     = 0.5
	validatorConcernCost = 0.1
)

// #region keywords

var personaAlignment = []struct {
	words []string
	note  string
}{
	{[]string{"calm", "peaceful", "gentle", "serene"}, "prefers deliberate, unhurried actions"},
	{[]string{"energetic", "enthusiastic", "excitable", "lively"}, "supports dynamic interaction"},
	{[]string{"careful", "cautious", "anxious"}, "requires extra validation before acting"},
	{[]string{"playful", "creative", "curious", "mischievous"}, "tolerates creative actions"},
	{[]string{"professional", "formal", "polite"}, "requires decorum"},
}

var moodNotes = []struct {
	moods []string
	note  string
}{
	{[]string{"tired", "sleepy", "exhausted"}, "low-energy mood: favor restful actions"},
	{[]string{"happy", "excited", "joyful", "playful"}, "positive mood supports engagement"},
	{[]string{"sad", "concerned", "anxious", "upset"}, "subdued mood: prefer gentle actions"},
}

var hotObjects = []string{"stove", "oven", "heater", "kettle", "iron", "candle", "fireplace", "toaster"}

// #endregion keywords

// #region analysis

// ValidatedAction is one checked interaction or manipulation.
type ValidatedAction struct {
	ObjectID string     `json:"object_id"`
	Type     ActionType `json:"type"`
	Valid    bool       `json:"valid"`
	Reason   string     `json:"reason"`
}

// ValidationAnalysis is the validation reasoner's structured output.
type ValidationAnalysis struct {
	BoundaryWarnings    []string          `json:"boundary_warnings"`
	FeasibilityWarnings []string          `json:"feasibility_warnings"`
	Interactions        []ValidatedAction `json:"interactions"`
	Manipulations       []ValidatedAction `json:"manipulations"`
	PersonaNotes        []string          `json:"persona_notes,omitempty"`
	SafetyNotes         []string          `json:"safety_notes,omitempty"`
	Hazards             []string          `json:"hazards,omitempty"`
	ChecksPerformed     int               `json:"checks_performed"`
	ConcernsFound       int               `json:"concerns_found"`
	ValidCount          int               `json:"valid_count"`
	BlockedCount        int               `json:"blocked_count"`
}

// HasSafetyIssues reports whether any boundary, feasibility or hazard concern was raised.
func (v ValidationAnalysis) HasSafetyIssues() bool {
	return v.ConcernsFound > 0
}

// #endregion analysis

// ValidationReasoner checks what the assistant can safely and feasibly do right now.
type ValidationReasoner struct{}

// NewValidationReasoner creates a ValidationReasoner.
func NewValidationReasoner() *ValidationReasoner { return &ValidationReasoner{} }

// Name implements Reasoner.
func (*ValidationReasoner) Name() string { return validationReasoner }

// Reason implements Reasoner.
func (*ValidationReasoner) Reason(_ context.Context, rc *ReasoningContext) Result {
	v := Validate(rc.Assistant, rc.Room, rc.Persona)

	var b strings.Builder
	fmt.Fprintf(&b, "Ran %d checks: %d valid, %d blocked, %d concern(s).",
		v.ChecksPerformed, v.ValidCount, v.BlockedCount, v.ConcernsFound)
	for _, w := range append(append([]string{}, v.BoundaryWarnings...), v.FeasibilityWarnings...) {
		b.WriteString(" " + w + ".")
	}
	for _, h := range v.Hazards {
		b.WriteString(" " + h + ".")
	}

	conf := validatorBaseConf - validatorConcernCost*float64(min(v.ConcernsFound, 4))
	return Result{
		ReasonerName: validationReasoner,
		Reasoning:    b.String(),
		Confidence:   max(conf, validatorMinConf),
		Metadata:     v,
	}
}

// Validate runs boundary, feasibility, reach, manipulation, persona and safety checks.
func Validate(assistant AssistantSnapshot, room RoomSnapshot, persona *Persona) ValidationAnalysis {
	pos := assistant.Position
	v := ValidationAnalysis{
		BoundaryWarnings:    []string{},
		FeasibilityWarnings: []string{},
		Interactions:        []ValidatedAction{},
		Manipulations:       []ValidatedAction{},
	}

	// boundaries
	if room.Bounds.Width() > 0 {
		edges := room.Bounds.EdgeDistances(pos)
		for _, e := range edgeOrder {
			v.ChecksPerformed++
			if d := edges[e]; d < BoundaryMargin {
				v.BoundaryWarnings = append(v.BoundaryWarnings, fmt.Sprintf("close to the %s wall (%.0fpx)", e, d))
			}
		}
	}

	// crowding
	v.ChecksPerformed++
	obstacles := 0
	for _, o := range room.Objects {
		if o.Solid && geometry.Distance(pos, o.Position) <= ObstacleRadius {
			obstacles++
		}
	}
	if obstacles > CrowdedThreshold {
		v.FeasibilityWarnings = append(v.FeasibilityWarnings,
			fmt.Sprintf("crowded: %d obstacles within %.0fpx", obstacles, ObstacleRadius))
	}

	// reach
	for _, o := range room.Objects {
		if !o.Interactive {
			continue
		}
		v.Interactions = append(v.Interactions, v.checkReach(pos, o, ActionInteract))
	}

	v.checkManipulation(assistant, room)

	// persona and mood
	if persona != nil {
		words := wordSet(strings.ToLower(persona.Personality))
		for _, pa := range personaAlignment {
			if countWords(words, pa.words) > 0 {
				v.PersonaNotes = append(v.PersonaNotes, pa.note)
			}
		}
	}
	mood := strings.ToLower(assistant.Mood)
	for _, mn := range moodNotes {
		for _, m := range mn.moods {
			if mood == m {
				v.PersonaNotes = append(v.PersonaNotes, mn.note)
			}
		}
	}

	// safety
	for _, o := range room.Objects {
		v.ChecksPerformed++
		if isHot(o) {
			v.Hazards = append(v.Hazards, fmt.Sprintf("%s is hot or powered: handle with care", o.Label()))
		} else if o.State["power"] == "on" {
			v.SafetyNotes = append(v.SafetyNotes, o.Label()+" is powered on")
		}
	}
	if assistant.IsHolding() {
		v.SafetyNotes = append(v.SafetyNotes, fmt.Sprintf("currently holding %s; place it safely before other manipulation", assistant.HeldObjectID))
	}

	v.ConcernsFound = len(v.BoundaryWarnings) + len(v.FeasibilityWarnings) + len(v.Hazards)
	return v
}

func (v *ValidationAnalysis) checkReach(pos geometry.Position, o RoomObject, t ActionType) ValidatedAction {
	v.ChecksPerformed++
	d := geometry.Distance(pos, o.Position)
	if geometry.CanInteract(pos, o.Position) {
		v.ValidCount++
		return ValidatedAction{ObjectID: o.ID, Type: t, Valid: true, Reason: fmt.Sprintf("within reach (%.0fpx)", d)}
	}
	v.BlockedCount++
	return ValidatedAction{ObjectID: o.ID, Type: t, Valid: false,
		Reason: fmt.Sprintf("too far (%.0fpx > %.0fpx required)", d, geometry.InteractionDistance)}
}

func (v *ValidationAnalysis) checkManipulation(assistant AssistantSnapshot, room RoomSnapshot) {
	pos := assistant.Position
	if !assistant.IsHolding() {
		for _, o := range room.Objects {
			if o.Movable {
				v.Manipulations = append(v.Manipulations, v.checkReach(pos, o, ActionPickUp))
			}
		}
		return
	}

	// Put down in place: the held object must not land on anything solid.
	v.ChecksPerformed++
	size := geometry.Size{Width: 20, Height: 20}
	if held, ok := room.Object(assistant.HeldObjectID); ok {
		size = held.Size
	}
	drop := RoomObject{Position: pos, Size: size}.Box()
	put := ValidatedAction{ObjectID: assistant.HeldObjectID, Type: ActionPutDown, Valid: true, Reason: "clear floor space"}
	for _, o := range room.Objects {
		if o.ID != assistant.HeldObjectID && o.Solid && !o.Surface && drop.Overlaps(o.Box()) {
			put.Valid = false
			put.Reason = "would collide with " + o.Label()
			break
		}
	}
	if put.Valid {
		v.ValidCount++
	} else {
		v.BlockedCount++
	}
	v.Manipulations = append(v.Manipulations, put)

	for _, o := range room.Objects {
		if o.Surface && o.ID != assistant.HeldObjectID {
			va := v.checkReach(pos, o, ActionPutDown)
			va.ObjectID = o.ID
			v.Manipulations = append(v.Manipulations, va)
		}
	}
}

func isHot(o RoomObject) bool {
	if strings.EqualFold(o.State["temperature"], "hot") {
		return true
	}
	if o.State["power"] != "on" {
		return false
	}
	name := strings.ToLower(o.Type + " " + o.Name)
	return containsAny(name, hotObjects)
}
