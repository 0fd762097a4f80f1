package graph

import (
	"fmt"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

// #region types

// RoomGraph is the room connectivity of one floor plan. It is rebuilt per request.
type RoomGraph struct {
	FloorPlanID      string
	Rooms            map[string]floorplan.Room
	Doorways         map[string]floorplan.Doorway
	Connections      map[string][]string // room id -> neighbouring room ids, never missing for a known room
	DoorwayPositions map[string]geometry.Position

	doorwayOrder []string // layout order, used for first-found doorway lookup
}

// LayoutSource provides the materialized records of a floor plan.
type LayoutSource interface {
	Layout(planID string) (floorplan.Layout, error)
}

// #endregion types

// #region build

// Build materializes the room graph for a layout. Every room gets a Connections entry;
// each accessible doorway adds an edge in both directions.
func Build(layout floorplan.Layout) *RoomGraph {
	g := &RoomGraph{
		FloorPlanID:      layout.Plan.ID,
		Rooms:            make(map[string]floorplan.Room, len(layout.Rooms)),
		Doorways:         make(map[string]floorplan.Doorway, len(layout.Doorways)),
		Connections:      make(map[string][]string, len(layout.Rooms)),
		DoorwayPositions: make(map[string]geometry.Position, len(layout.Doorways)),
	}
	for _, r := range layout.Rooms {
		g.Rooms[r.ID] = r
		g.Connections[r.ID] = []string{}
	}

	walls := make(map[string]floorplan.Wall, len(layout.Walls))
	for _, w := range layout.Walls {
		walls[w.ID] = w
	}

	for _, d := range layout.Doorways {
		g.Doorways[d.ID] = d
		g.doorwayOrder = append(g.doorwayOrder, d.ID)
		g.DoorwayPositions[d.ID] = g.doorwayPosition(d, walls)

		if !d.Accessible {
			continue
		}
		g.link(d.RoomA, d.RoomB)
		g.link(d.RoomB, d.RoomA)
	}
	return g
}

func (g *RoomGraph) link(from, to string) {
	for _, n := range g.Connections[from] {
		if n == to {
			return
		}
	}
	g.Connections[from] = append(g.Connections[from], to)
}

// doorwayPosition derives the doorway's world position from its wall, falling back to
// the middle of the overlap between the two room boxes when the wall is unknown.
func (g *RoomGraph) doorwayPosition(d floorplan.Doorway, walls map[string]floorplan.Wall) geometry.Position {
	if w, ok := walls[d.WallID]; ok {
		return d.WorldPosition(w)
	}
	a, okA := g.Rooms[d.RoomA]
	b, okB := g.Rooms[d.RoomB]
	if !okA || !okB {
		return geometry.Position{}
	}
	ba, bb := a.Bounds(), b.Bounds()
	overlap := geometry.Box{
		MinX: max(ba.MinX, bb.MinX),
		MinY: max(ba.MinY, bb.MinY),
		MaxX: min(ba.MaxX, bb.MaxX),
		MaxY: min(ba.MaxY, bb.MaxY),
	}
	return overlap.Center()
}

// #endregion build

// #region builder

// Builder loads layouts and builds graphs from them.
type Builder struct {
	source LayoutSource
}

// NewBuilder creates a Builder reading from source.
func NewBuilder(source LayoutSource) *Builder {
	return &Builder{source: source}
}

// Build loads the plan's layout and returns its graph together with the layout.
func (b *Builder) Build(planID string) (*RoomGraph, floorplan.Layout, error) {
	layout, err := b.source.Layout(planID)
	if err != nil {
		return nil, floorplan.Layout{}, fmt.Errorf("load layout %s: %w", planID, err)
	}
	return Build(layout), layout, nil
}

// #endregion builder

// #region route

// Route performs a BFS from one room to another and returns the room sequence,
// both ends included. It returns nil when no accessible route exists.
func (g *RoomGraph) Route(from, to string) []string {
	if _, ok := g.Rooms[from]; !ok {
		return nil
	}
	if _, ok := g.Rooms[to]; !ok {
		return nil
	}
	if from == to {
		return []string{from}
	}

	parent := map[string]string{from: ""}
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.Connections[current] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			if next == to {
				return unwind(parent, from, to)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func unwind(parent map[string]string, from, to string) []string {
	var rev []string
	for at := to; at != from; at = parent[at] {
		rev = append(rev, at)
	}
	rev = append(rev, from)

	path := make([]string, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path
}

// #endregion route

// #region doorway-lookup

// DoorwayBetween returns the first accessible doorway, in layout order, joining a and b.
func (g *RoomGraph) DoorwayBetween(a, b string) (floorplan.Doorway, bool) {
	for _, id := range g.doorwayOrder {
		d := g.Doorways[id]
		if d.Accessible && d.ConnectsRooms(a, b) {
			return d, true
		}
	}
	return floorplan.Doorway{}, false
}

// Neighbors returns the rooms directly reachable from roomID.
func (g *RoomGraph) Neighbors(roomID string) []string {
	return g.Connections[roomID]
}

// #endregion doorway-lookup
