package council

import (
	"strings"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

// symbolicLocations are fractions of the room's width and height.
var symbolicLocations = map[string][2]float64{
	"center": {0.5, 0.5},
	"middle": {0.5, 0.5},
	"corner": {0.1, 0.1},
	"left":   {0.15, 0.5},
	"right":  {0.85, 0.5},
	"front":  {0.5, 0.85},
	"back":   {0.5, 0.15},
}

var locationOrder = []string{"center", "middle", "corner", "left", "right", "front", "back"}

// explorationPoints are visited in order when exploring a room.
var explorationPoints = [][2]float64{
	{0.25, 0.25}, {0.75, 0.25}, {0.25, 0.75}, {0.75, 0.75}, {0.5, 0.5},
}

// ExplorationSkip is how close an exploration point may be before it is skipped.
const ExplorationSkip = 100.0

// ResolveLocation maps a symbolic location name to a point inside bounds.
func ResolveLocation(name string, bounds geometry.Box) (geometry.Position, bool) {
	f, ok := symbolicLocations[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return geometry.Position{}, false
	}
	return fractionOf(bounds, f), true
}

func fractionOf(bounds geometry.Box, f [2]float64) geometry.Position {
	return geometry.Position{
		X: bounds.MinX + f[0]*bounds.Width(),
		Y: bounds.MinY + f[1]*bounds.Height(),
	}
}

// mentionedLocations returns the symbolic locations named in the message.
func mentionedLocations(words map[string]bool) []string {
	var out []string
	for _, name := range locationOrder {
		if words[name] {
			out = append(out, name)
		}
	}
	return out
}
