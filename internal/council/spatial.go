package council

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

const (
	spatialReasoner = "spatial"

	// ClusterRadius links objects into the same cluster.
	ClusterRadius = 100.0
	// ObstacleRadius is how far solid objects count as nearby obstacles.
	ObstacleRadius = 80.0

	spatialConf   = 0.85
	emptyRoomConf = 0.7
)

// #region analysis

// ObjectDistance pairs an object id with its distance from the assistant.
type ObjectDistance struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// Cluster is a group of objects within ClusterRadius of each other.
type Cluster struct {
	Members  []string          `json:"members"`
	Centroid geometry.Position `json:"centroid"`
}

// Obstacle is a solid object close to the assistant.
type Obstacle struct {
	ID        string  `json:"id"`
	Direction string  `json:"direction"`
	Distance  float64 `json:"distance"`
}

// InteractionZone describes what can be done with a visible object.
type InteractionZone struct {
	ObjectID string   `json:"object_id"`
	Zone     string   `json:"zone"` // immediate | requires_movement
	Distance float64  `json:"distance"`
	Actions  []string `json:"actions"`
}

// SpatialAnalysis is the spatial reasoner's structured output.
type SpatialAnalysis struct {
	Visible           []ObjectDistance   `json:"visible"`
	InRange           []string           `json:"in_range"`
	Movable           []string           `json:"movable"`
	Surfaces          []string           `json:"surfaces"`
	Clusters          []Cluster          `json:"clusters"`
	Isolated          []string           `json:"isolated"`
	EdgeDistances     map[string]float64 `json:"edge_distances"`
	MostFreeDirection string             `json:"most_free_direction"`
	NearbyObstacles   []Obstacle         `json:"nearby_obstacles"`
	HoldingEffects    []string           `json:"holding_effects,omitempty"`
	Zones             []InteractionZone  `json:"zones"`
}

// #endregion analysis

// SpatialReasoner describes what is around the assistant and what it can reach.
type SpatialReasoner struct{}

// NewSpatialReasoner creates a SpatialReasoner.
func NewSpatialReasoner() *SpatialReasoner { return &SpatialReasoner{} }

// Name implements Reasoner.
func (*SpatialReasoner) Name() string { return spatialReasoner }

// Reason implements Reasoner.
func (*SpatialReasoner) Reason(_ context.Context, rc *ReasoningContext) Result {
	a := AnalyzeSpace(rc.Assistant, rc.Room)

	var b strings.Builder
	if len(a.Visible) == 0 {
		b.WriteString("Nothing is close enough to see clearly. ")
	} else {
		names := make([]string, 0, len(a.Visible))
		for _, v := range a.Visible {
			names = append(names, v.Name)
		}
		fmt.Fprintf(&b, "I can see %d object(s) nearby (%s); %d within reach. ",
			len(a.Visible), strings.Join(names, ", "), len(a.InRange))
	}
	if len(a.Clusters) > 0 {
		fmt.Fprintf(&b, "Objects form %d cluster(s). ", len(a.Clusters))
	}
	if a.MostFreeDirection != "" {
		fmt.Fprintf(&b, "Most open space is to the %s. ", a.MostFreeDirection)
	}
	if len(a.NearbyObstacles) > 0 {
		fmt.Fprintf(&b, "%d obstacle(s) close by. ", len(a.NearbyObstacles))
	}
	for _, e := range a.HoldingEffects {
		b.WriteString(e + ". ")
	}

	conf := spatialConf
	if len(rc.Room.Objects) == 0 {
		conf = emptyRoomConf
	}
	return Result{
		ReasonerName: spatialReasoner,
		Reasoning:    strings.TrimSpace(b.String()),
		Confidence:   conf,
		Metadata:     a,
	}
}

// AnalyzeSpace computes visibility, reach, clusters and constraints for the assistant in room.
func AnalyzeSpace(assistant AssistantSnapshot, room RoomSnapshot) SpatialAnalysis {
	pos := assistant.Position
	a := SpatialAnalysis{
		Visible:         []ObjectDistance{},
		InRange:         []string{},
		Movable:         []string{},
		Surfaces:        []string{},
		NearbyObstacles: []Obstacle{},
		Zones:           []InteractionZone{},
	}

	for _, o := range objectsByDistance(pos, room.Objects) {
		d := geometry.Distance(pos, o.Position)
		if o.Solid && d <= ObstacleRadius {
			a.NearbyObstacles = append(a.NearbyObstacles, Obstacle{ID: o.ID, Direction: geometry.Direction(pos, o.Position), Distance: d})
		}
		if !geometry.IsNearby(pos, o.Position) {
			continue
		}
		a.Visible = append(a.Visible, ObjectDistance{ID: o.ID, Name: o.Label(), Distance: d})
		zone := InteractionZone{ObjectID: o.ID, Zone: "requires_movement", Distance: d, Actions: supportedActions(o, assistant.IsHolding())}
		if geometry.CanInteract(pos, o.Position) {
			a.InRange = append(a.InRange, o.ID)
			zone.Zone = "immediate"
		}
		if o.Movable {
			a.Movable = append(a.Movable, o.ID)
		}
		if o.Surface {
			a.Surfaces = append(a.Surfaces, o.ID)
		}
		a.Zones = append(a.Zones, zone)
	}
	sort.SliceStable(a.Zones, func(i, j int) bool {
		if (a.Zones[i].Zone == "immediate") != (a.Zones[j].Zone == "immediate") {
			return a.Zones[i].Zone == "immediate"
		}
		return a.Zones[i].Distance < a.Zones[j].Distance
	})

	a.Clusters, a.Isolated = clusterObjects(room.Objects)

	if room.Bounds.Width() > 0 && room.Bounds.Height() > 0 {
		a.EdgeDistances = room.Bounds.EdgeDistances(pos)
		a.MostFreeDirection = mostFree(a.EdgeDistances)
	}

	if assistant.IsHolding() {
		held := assistant.HeldObjectID
		if o, ok := room.Object(held); ok {
			held = o.Label()
		}
		a.HoldingEffects = []string{
			fmt.Sprintf("Hands are occupied with %s", held),
			"Cannot pick anything else up until it is put down",
		}
	}
	return a
}

// #region helpers

func objectsByDistance(pos geometry.Position, objects []RoomObject) []RoomObject {
	out := make([]RoomObject, len(objects))
	copy(out, objects)
	sort.SliceStable(out, func(i, j int) bool {
		return geometry.Distance(pos, out[i].Position) < geometry.Distance(pos, out[j].Position)
	})
	return out
}

// supportedActions lists the interactions an object affords.
func supportedActions(o RoomObject, holding bool) []string {
	var acts []string
	if o.Interactive {
		acts = append(acts, "examine")
		if _, ok := o.State["power"]; ok {
			acts = append(acts, "toggle_power")
		}
		if _, ok := o.State["open"]; ok {
			acts = append(acts, "toggle_open")
		}
	}
	if o.Movable && !holding {
		acts = append(acts, "pick_up")
	}
	if o.Surface && holding {
		acts = append(acts, "place_on")
	}
	if len(acts) == 0 {
		acts = append(acts, "look_at")
	}
	return acts
}

// clusterObjects groups objects whose centers are within ClusterRadius, single-link.
func clusterObjects(objects []RoomObject) ([]Cluster, []string) {
	parent := make([]int, len(objects))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range objects {
		for j := i + 1; j < len(objects); j++ {
			if geometry.Distance(objects[i].Position, objects[j].Position) <= ClusterRadius {
				parent[find(j)] = find(i)
			}
		}
	}

	groups := make(map[int][]int)
	var order []int
	for i := range objects {
		root := find(i)
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], i)
	}

	clusters := []Cluster{}
	isolated := []string{}
	for _, root := range order {
		members := groups[root]
		if len(members) == 1 {
			isolated = append(isolated, objects[members[0]].ID)
			continue
		}
		c := Cluster{}
		var sx, sy float64
		for _, idx := range members {
			c.Members = append(c.Members, objects[idx].ID)
			sx += objects[idx].Position.X
			sy += objects[idx].Position.Y
		}
		c.Centroid = geometry.Position{X: sx / float64(len(members)), Y: sy / float64(len(members))}
		clusters = append(clusters, c)
	}
	return clusters, isolated
}

var edgeOrder = []string{"left", "right", "top", "bottom"}

func mostFree(edges map[string]float64) string {
	best, bestDist := "", -1.0
	for _, e := range edgeOrder {
		if d := edges[e]; d > bestDist {
			best, bestDist = e, d
		}
	}
	return best
}

// #endregion helpers
