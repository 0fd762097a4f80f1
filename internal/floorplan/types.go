package floorplan

import (
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

// #region door-state

// DoorState is the open/closed/locked state of a doorway's door.
type DoorState string

const (
	DoorOpen   DoorState = "open"
	DoorClosed DoorState = "closed"
	DoorLocked DoorState = "locked"
)

// #endregion door-state

// #region floor-plan

// FloorPlan is a dwelling layout. At most one plan is active at a time.
type FloorPlan struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Active bool    `json:"active" yaml:"active"`
}

// Bounds returns the whole plan as a box anchored at the origin.
func (f FloorPlan) Bounds() geometry.Box {
	return geometry.NewBox(0, 0, f.Width, f.Height)
}

// #endregion floor-plan

// #region room

// Room is a rectangular region of a floor plan.
type Room struct {
	ID            string  `json:"id" yaml:"id"`
	FloorPlanID   string  `json:"floor_plan_id" yaml:"floor_plan_id"`
	Name          string  `json:"name" yaml:"name"`
	Type          string  `json:"type" yaml:"type"`
	X             float64 `json:"x" yaml:"x"`
	Y             float64 `json:"y" yaml:"y"`
	Width         float64 `json:"width" yaml:"width"`
	Height        float64 `json:"height" yaml:"height"`
	FloorMaterial string  `json:"floor_material,omitempty" yaml:"floor_material"`
	Lighting      string  `json:"lighting,omitempty" yaml:"lighting"`
	Temperature   float64 `json:"temperature,omitempty" yaml:"temperature"`
	Accessible    bool    `json:"accessible" yaml:"accessible"`
}

// Bounds returns the room rectangle.
func (r Room) Bounds() geometry.Box {
	return geometry.NewBox(r.X, r.Y, r.Width, r.Height)
}

// Contains reports whether p is inside the room's closed bounds.
func (r Room) Contains(p geometry.Position) bool {
	return r.Bounds().Contains(p)
}

// #endregion room

// #region wall

// Wall is a line segment separating rooms or bounding the dwelling.
type Wall struct {
	ID          string            `json:"id" yaml:"id"`
	FloorPlanID string            `json:"floor_plan_id" yaml:"floor_plan_id"`
	Start       geometry.Position `json:"start" yaml:"start"`
	End         geometry.Position `json:"end" yaml:"end"`
	Type        string            `json:"type" yaml:"type"` // "interior" | "exterior"
	Thickness   float64           `json:"thickness" yaml:"thickness"`
}

// #endregion wall

// #region doorway

// Doorway is an opening in a wall connecting exactly two rooms.
type Doorway struct {
	ID                  string    `json:"id" yaml:"id"`
	FloorPlanID         string    `json:"floor_plan_id" yaml:"floor_plan_id"`
	WallID              string    `json:"wall_id" yaml:"wall_id"`
	PositionOnWall      float64   `json:"position_on_wall" yaml:"position_on_wall"` // 0.0-1.0
	Width               float64   `json:"width" yaml:"width"`
	RoomA               string    `json:"room_a_id" yaml:"room_a"`
	RoomB               string    `json:"room_b_id" yaml:"room_b"`
	Accessible          bool      `json:"is_accessible" yaml:"accessible"`
	HasDoor             bool      `json:"has_door" yaml:"has_door"`
	DoorState           DoorState `json:"door_state,omitempty" yaml:"door_state"`
	RequiresInteraction bool      `json:"requires_interaction" yaml:"requires_interaction"`
}

// ConnectsRooms reports whether the doorway joins rooms a and b, in either order.
func (d Doorway) ConnectsRooms(a, b string) bool {
	return (d.RoomA == a && d.RoomB == b) || (d.RoomA == b && d.RoomB == a)
}

// OtherRoom returns the room on the far side of the doorway from roomID.
func (d Doorway) OtherRoom(roomID string) (string, bool) {
	switch roomID {
	case d.RoomA:
		return d.RoomB, true
	case d.RoomB:
		return d.RoomA, true
	}
	return "", false
}

// NeedsOpening reports whether the doorway has a door that is currently closed.
func (d Doorway) NeedsOpening() bool {
	return d.HasDoor && d.DoorState == DoorClosed
}

// WorldPosition places the doorway along its wall.
func (d Doorway) WorldPosition(w Wall) geometry.Position {
	return geometry.Lerp(w.Start, w.End, d.PositionOnWall)
}

// #endregion doorway

// #region furniture

// FurnitureItem is a piece of furniture or a small object. Position is the top-left corner.
// An empty RoomID marks a piece that spans rooms.
type FurnitureItem struct {
	ID          string            `json:"id" yaml:"id"`
	FloorPlanID string            `json:"floor_plan_id" yaml:"floor_plan_id"`
	RoomID      string            `json:"room_id,omitempty" yaml:"room_id"`
	Name        string            `json:"name" yaml:"name"`
	Type        string            `json:"type" yaml:"type"`
	Position    geometry.Position `json:"position" yaml:"position"`
	Rotation    float64           `json:"rotation" yaml:"rotation"`
	Width       float64           `json:"width" yaml:"width"`
	Height      float64           `json:"height" yaml:"height"`
	Solid       bool              `json:"is_solid" yaml:"solid"`
	Movable     bool              `json:"is_movable" yaml:"movable"`
	Interactive bool              `json:"is_interactive" yaml:"interactive"`
	Surface     bool              `json:"is_surface" yaml:"surface"`
	State       map[string]string `json:"state,omitempty" yaml:"state"`
}

// Box returns the item's axis-aligned bounding box.
func (f FurnitureItem) Box() geometry.Box {
	return geometry.NewBox(f.Position.X, f.Position.Y, f.Width, f.Height)
}

// Center returns the middle of the item's bounding box.
func (f FurnitureItem) Center() geometry.Position {
	return f.Box().Center()
}

// #endregion furniture

// #region layout

// Layout is every record belonging to one floor plan.
type Layout struct {
	Plan      FloorPlan       `json:"floor_plan" yaml:"floor_plan"`
	Rooms     []Room          `json:"rooms" yaml:"rooms"`
	Walls     []Wall          `json:"walls" yaml:"walls"`
	Doorways  []Doorway       `json:"doorways" yaml:"doorways"`
	Furniture []FurnitureItem `json:"furniture" yaml:"furniture"`
}

// Room returns the room with the given id.
func (l Layout) Room(id string) (Room, bool) {
	for _, r := range l.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

// RoomAt returns the first room whose bounds contain p.
func (l Layout) RoomAt(p geometry.Position) (Room, bool) {
	for _, r := range l.Rooms {
		if r.Contains(p) {
			return r, true
		}
	}
	return Room{}, false
}

// FurnitureIn returns items whose RoomID is roomID, plus cross-room items overlapping it.
func (l Layout) FurnitureIn(roomID string) []FurnitureItem {
	room, ok := l.Room(roomID)
	var out []FurnitureItem
	for _, f := range l.Furniture {
		switch {
		case f.RoomID == roomID:
			out = append(out, f)
		case f.RoomID == "" && ok && room.Bounds().Overlaps(f.Box()):
			out = append(out, f)
		}
	}
	return out
}

// #endregion layout
