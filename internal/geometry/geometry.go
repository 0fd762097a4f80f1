package geometry

import (
	"math"

	"github.com/jakecoffman/cp"
)

// #region constants

const (
	// InteractionDistance is how close the assistant must be to act on an object.
	InteractionDistance = 50.0
	// NearbyDistance is how close an object must be to count as visible/relevant.
	NearbyDistance = 150.0

	// AssistantWidth and AssistantHeight are the assistant's default footprint in pixels.
	AssistantWidth  = 40.0
	AssistantHeight = 40.0

	// edgeEpsilon shrinks boxes for segment tests so grazing an edge or corner is not a hit.
	edgeEpsilon  = 1e-6
	equalEpsilon = 1e-9
)

// #endregion constants

// #region position

// Position is a point in floor-plan pixel coordinates. Y grows downward.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Vector converts the position to a chipmunk vector.
func (p Position) Vector() cp.Vector {
	return cp.Vector{X: p.X, Y: p.Y}
}

// FromVector converts a chipmunk vector back to a Position.
func FromVector(v cp.Vector) Position {
	return Position{X: v.X, Y: v.Y}
}

// Equal reports whether two positions are the same point within float tolerance.
func (p Position) Equal(o Position) bool {
	return math.Abs(p.X-o.X) < equalEpsilon && math.Abs(p.Y-o.Y) < equalEpsilon
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Position) float64 {
	return a.Vector().Distance(b.Vector())
}

// IsNearby reports whether b is within NearbyDistance of a.
func IsNearby(a, b Position) bool {
	return Distance(a, b) <= NearbyDistance
}

// CanInteract reports whether b is within InteractionDistance of a.
func CanInteract(a, b Position) bool {
	return Distance(a, b) <= InteractionDistance
}

// Lerp returns the point a fraction t of the way from a to b.
func Lerp(a, b Position, t float64) Position {
	return FromVector(a.Vector().Lerp(b.Vector(), t))
}

// Direction returns the dominant compass direction of the vector from a to b.
// North is toward smaller Y.
func Direction(from, to Position) string {
	dx := to.X - from.X
	dy := to.Y - from.Y
	if math.Abs(dx) >= math.Abs(dy) {
		if dx >= 0 {
			return "east"
		}
		return "west"
	}
	if dy >= 0 {
		return "south"
	}
	return "north"
}

// Facing maps a movement vector to the sprite facing used by the UI.
func Facing(from, to Position) string {
	switch Direction(from, to) {
	case "east":
		return "right"
	case "west":
		return "left"
	case "north":
		return "up"
	default:
		return "down"
	}
}

// #endregion position

// #region size

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// DefaultFootprint is the assistant's default collision size.
func DefaultFootprint() Size {
	return Size{Width: AssistantWidth, Height: AssistantHeight}
}

// #endregion size

// #region box

// Box is an axis-aligned bounding box. MinY is the top edge.
type Box struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// NewBox builds a box from a top-left corner and a size.
func NewBox(x, y, width, height float64) Box {
	return Box{MinX: x, MinY: y, MaxX: x + width, MaxY: y + height}
}

func (b Box) bb() cp.BB {
	return cp.BB{L: b.MinX, B: b.MinY, R: b.MaxX, T: b.MaxY}
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Center returns the midpoint of the box.
func (b Box) Center() Position {
	return Position{X: (b.MinX + b.MaxX) / 2, Y: (b.MinY + b.MaxY) / 2}
}

// Contains reports whether p lies within the closed bounds of the box.
func (b Box) Contains(p Position) bool {
	return b.bb().ContainsVect(p.Vector())
}

// Overlaps reports whether two boxes share any area or edge.
func (b Box) Overlaps(o Box) bool {
	return b.bb().Intersects(o.bb())
}

// Expand grows the box by dx on the left and right and dy on the top and bottom.
func (b Box) Expand(dx, dy float64) Box {
	return Box{MinX: b.MinX - dx, MinY: b.MinY - dy, MaxX: b.MaxX + dx, MaxY: b.MaxY + dy}
}

// Corners returns top-left, top-right, bottom-left, bottom-right.
func (b Box) Corners() [4]Position {
	return [4]Position{
		{X: b.MinX, Y: b.MinY},
		{X: b.MaxX, Y: b.MinY},
		{X: b.MinX, Y: b.MaxY},
		{X: b.MaxX, Y: b.MaxY},
	}
}

// Blocks reports whether the segment a→c passes through the open interior of the box.
// Segments that only touch an edge or a corner are not blocked.
func (b Box) Blocks(a, c Position) bool {
	inner := b.Expand(-edgeEpsilon, -edgeEpsilon)
	if inner.MinX >= inner.MaxX || inner.MinY >= inner.MaxY {
		return false
	}
	return inner.bb().IntersectsSegment(a.Vector(), c.Vector())
}

// Clamp moves p inside the box, keeping padding away from each edge where the box allows it.
func (b Box) Clamp(p Position, padding float64) Position {
	minX, maxX := b.MinX+padding, b.MaxX-padding
	if minX > maxX {
		minX, maxX = b.Center().X, b.Center().X
	}
	minY, maxY := b.MinY+padding, b.MaxY-padding
	if minY > maxY {
		minY, maxY = b.Center().Y, b.Center().Y
	}
	return Position{X: math.Min(math.Max(p.X, minX), maxX), Y: math.Min(math.Max(p.Y, minY), maxY)}
}

// EdgeDistances returns the distance from p to the left, right, top and bottom edges.
func (b Box) EdgeDistances(p Position) map[string]float64 {
	return map[string]float64{
		"left":   p.X - b.MinX,
		"right":  b.MaxX - p.X,
		"top":    p.Y - b.MinY,
		"bottom": b.MaxY - p.Y,
	}
}

// #endregion box
