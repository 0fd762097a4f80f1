package pathfinding

import (
	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

// #region obstacles

// ObstaclesByRoom collects the bounding boxes of solid furniture for every room.
// Items without a room are counted in each room they overlap.
func ObstaclesByRoom(layout floorplan.Layout) map[string][]geometry.Box {
	out := make(map[string][]geometry.Box, len(layout.Rooms))
	for _, r := range layout.Rooms {
		boxes := []geometry.Box{}
		for _, f := range layout.FurnitureIn(r.ID) {
			if f.Solid {
				boxes = append(boxes, f.Box())
			}
		}
		out[r.ID] = boxes
	}
	return out
}

// #endregion obstacles

// #region find-room-path

// FindRoomPath routes from start to goal inside one room. Obstacles are grown by half the
// footprint; a clear straight line is returned as is, otherwise the route greedily hops
// between reachable obstacle corners, always taking the one closest to the goal. When no
// corner is reachable the goal is appended anyway, so the last segment may collide.
func FindRoomPath(start, goal geometry.Position, obstacles []geometry.Box, roomID string, footprint geometry.Size) []Waypoint {
	if start.Equal(goal) {
		return []Waypoint{{Position: start, RoomID: roomID}}
	}

	expanded := make([]geometry.Box, len(obstacles))
	for i, o := range obstacles {
		expanded[i] = o.Expand(footprint.Width/2, footprint.Height/2)
	}

	isClear := func(a, b geometry.Position) bool {
		for _, box := range expanded {
			if box.Blocks(a, b) {
				return false
			}
		}
		return true
	}

	path := []Waypoint{{Position: start, RoomID: roomID}}
	if isClear(start, goal) {
		return append(path, Waypoint{Position: goal, RoomID: roomID})
	}

	var corners []geometry.Position
	for _, box := range expanded {
		c := box.Corners()
		corners = append(corners, c[:]...)
	}
	used := make([]bool, len(corners))

	current := start
	for !isClear(current, goal) {
		best := -1
		bestDist := 0.0
		for i, c := range corners {
			if used[i] || c.Equal(current) || !isClear(current, c) {
				continue
			}
			d := geometry.Distance(c, goal)
			if best < 0 || d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		current = corners[best]
		path = append(path, Waypoint{Position: current, RoomID: roomID})
	}

	return append(path, Waypoint{Position: goal, RoomID: roomID})
}

// #endregion find-room-path

// PathDistance sums the Euclidean lengths of consecutive path segments.
func PathDistance(path []Waypoint) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += geometry.Distance(path[i-1].Position, path[i].Position)
	}
	return total
}
