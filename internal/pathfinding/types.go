package pathfinding

import (
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

// DefaultMovementSpeed is the assistant's walking speed in pixels per second.
const DefaultMovementSpeed = 200.0

// Waypoint is one point of a path, tagged with the room it lies in.
type Waypoint struct {
	geometry.Position
	RoomID string `json:"room_id"`
}

// RoomTransition records the crossing of one doorway along a multi-room path.
type RoomTransition struct {
	FromRoom            string            `json:"from_room"`
	ToRoom              string            `json:"to_room"`
	DoorwayID           string            `json:"doorway_id"`
	DoorwayPosition     geometry.Position `json:"doorway_position"`
	RequiresInteraction bool              `json:"requires_interaction"`
}

// Result is the output of a multi-room path search. An unreachable goal yields
// empty (non-nil) Path and RoomTransitions.
type Result struct {
	Path              []Waypoint       `json:"path"`
	RoomTransitions   []RoomTransition `json:"room_transitions"`
	DoorwaysToOpen    []string         `json:"doorways_to_open"`
	EstimatedDuration float64          `json:"estimated_duration"` // seconds
	TotalDistance     float64          `json:"total_distance"`     // pixels
}

// Found reports whether the result contains a usable path.
func (r Result) Found() bool {
	return len(r.Path) > 0
}

// Positions strips room tags from the path.
func (r Result) Positions() []geometry.Position {
	out := make([]geometry.Position, len(r.Path))
	for i, w := range r.Path {
		out[i] = w.Position
	}
	return out
}

// Options tunes the multi-room pathfinder.
type Options struct {
	MovementSpeed float64       // px/s, DefaultMovementSpeed when zero
	Footprint     geometry.Size // assistant collision size, geometry.DefaultFootprint when zero
}

func (o Options) withDefaults() Options {
	if o.MovementSpeed <= 0 {
		o.MovementSpeed = DefaultMovementSpeed
	}
	if o.Footprint.Width <= 0 || o.Footprint.Height <= 0 {
		o.Footprint = geometry.DefaultFootprint()
	}
	return o
}

func emptyResult() Result {
	return Result{
		Path:            []Waypoint{},
		RoomTransitions: []RoomTransition{},
		DoorwaysToOpen:  []string{},
	}
}
