package pathfinding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/graph"
)

// Pathfinder plans routes across the rooms of a floor plan.
type Pathfinder struct {
	builder *graph.Builder
	opts    Options
	log     *zap.Logger
}

// New creates a Pathfinder that loads layouts from source.
func New(source graph.LayoutSource, opts Options, log *zap.Logger) *Pathfinder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pathfinder{
		builder: graph.NewBuilder(source),
		opts:    opts.withDefaults(),
		log:     log.Named("pathfinding"),
	}
}

// Footprint returns the collision size used for routing.
func (p *Pathfinder) Footprint() geometry.Size { return p.opts.Footprint }

// MovementSpeed returns the speed used for duration estimates.
func (p *Pathfinder) MovementSpeed() float64 { return p.opts.MovementSpeed }

// FindMultiRoomPath plans a route from startPos in startRoom to goalPos in goalRoom.
// Unreachable goals produce an empty Result and a nil error; errors are reserved for
// failures loading the floor plan.
func (p *Pathfinder) FindMultiRoomPath(planID string, startPos geometry.Position, startRoom string, goalPos geometry.Position, goalRoom string) (Result, error) {
	g, layout, err := p.builder.Build(planID)
	if err != nil {
		return emptyResult(), fmt.Errorf("find path: %w", err)
	}
	obstacles := ObstaclesByRoom(layout)

	if startRoom == goalRoom {
		path := FindRoomPath(startPos, goalPos, obstacles[startRoom], startRoom, p.opts.Footprint)
		return p.finish(path, []RoomTransition{}, []string{}), nil
	}

	route := g.Route(startRoom, goalRoom)
	if len(route) == 0 {
		p.log.Debug("no room route", zap.String("from", startRoom), zap.String("to", goalRoom))
		return emptyResult(), nil
	}

	var (
		path        []Waypoint
		transitions = []RoomTransition{}
		toOpen      = []string{}
		current     = startPos
	)

	for i := 0; i < len(route)-1; i++ {
		from, to := route[i], route[i+1]
		door, ok := g.DoorwayBetween(from, to)
		if !ok {
			p.log.Warn("route step has no doorway",
				zap.String("plan", planID), zap.String("from", from), zap.String("to", to))
			return emptyResult(), nil
		}
		doorPos := g.DoorwayPositions[door.ID]

		transitions = append(transitions, RoomTransition{
			FromRoom:            from,
			ToRoom:              to,
			DoorwayID:           door.ID,
			DoorwayPosition:     doorPos,
			RequiresInteraction: door.RequiresInteraction,
		})
		if door.NeedsOpening() {
			toOpen = append(toOpen, door.ID)
		}

		path = stitch(path, FindRoomPath(current, doorPos, obstacles[from], from, p.opts.Footprint))
		current = doorPos
	}

	path = stitch(path, FindRoomPath(current, goalPos, obstacles[goalRoom], goalRoom, p.opts.Footprint))
	return p.finish(path, transitions, toOpen), nil
}

// stitch appends seg to path, dropping seg's first point when it repeats path's last.
func stitch(path, seg []Waypoint) []Waypoint {
	if len(path) > 0 && len(seg) > 0 && path[len(path)-1].Position.Equal(seg[0].Position) {
		seg = seg[1:]
	}
	return append(path, seg...)
}

func (p *Pathfinder) finish(path []Waypoint, transitions []RoomTransition, toOpen []string) Result {
	total := PathDistance(path)
	return Result{
		Path:              path,
		RoomTransitions:   transitions,
		DoorwaysToOpen:    toOpen,
		TotalDistance:     total,
		EstimatedDuration: total / p.opts.MovementSpeed,
	}
}
