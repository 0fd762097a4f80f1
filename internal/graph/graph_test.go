package graph

import (
	"errors"
	"testing"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

// #region helpers

// houseLayout is a corridor of four rooms a-b-c-d plus an isolated room e.
// Rooms b and c are joined by two doorways; the first one in layout order is "bc1".
func houseLayout() floorplan.Layout {
	room := func(id string, x float64) floorplan.Room {
		return floorplan.Room{ID: id, X: x, Width: 100, Height: 100, Accessible: true}
	}
	wall := func(id string, x float64) floorplan.Wall {
		return floorplan.Wall{ID: id, Start: geometry.Position{X: x, Y: 0}, End: geometry.Position{X: x, Y: 100}}
	}
	door := func(id, wallID, a, b string, pos float64, accessible bool) floorplan.Doorway {
		return floorplan.Doorway{ID: id, WallID: wallID, RoomA: a, RoomB: b, PositionOnWall: pos, Accessible: accessible}
	}
	return floorplan.Layout{
		Plan:  floorplan.FloorPlan{ID: "house"},
		Rooms: []floorplan.Room{room("a", 0), room("b", 100), room("c", 200), room("d", 300), room("e", 500)},
		Walls: []floorplan.Wall{wall("ab", 100), wall("bc", 200), wall("cd", 300)},
		Doorways: []floorplan.Doorway{
			door("ab1", "ab", "a", "b", 0.5, true),
			door("bc1", "bc", "b", "c", 0.2, true),
			door("bc2", "bc", "c", "b", 0.8, true),
			door("cd1", "cd", "c", "d", 0.5, true),
			door("de1", "missing-wall", "d", "e", 0.5, false),
		},
	}
}

type fakeSource struct {
	layout floorplan.Layout
	err    error
}

func (f fakeSource) Layout(string) (floorplan.Layout, error) { return f.layout, f.err }

// #endregion helpers

// #region build-tests

func TestBuild_ConnectionsPresentForEveryRoom(t *testing.T) {
	g := Build(houseLayout())

	for id := range g.Rooms {
		if _, ok := g.Connections[id]; !ok {
			t.Fatalf("missing connections entry for room %s", id)
		}
	}
	if n := len(g.Connections["e"]); n != 0 {
		t.Errorf("isolated room should have no neighbours, got %d", n)
	}
	if n := len(g.Connections["b"]); n != 2 {
		t.Errorf("b should have 2 distinct neighbours despite duplicate doorways, got %d", n)
	}
}

func TestBuild_DoorwayPositions(t *testing.T) {
	g := Build(houseLayout())

	got := g.DoorwayPositions["ab1"]
	if !got.Equal(geometry.Position{X: 100, Y: 50}) {
		t.Errorf("ab1 position: got %+v", got)
	}
	got = g.DoorwayPositions["bc2"]
	if !got.Equal(geometry.Position{X: 200, Y: 80}) {
		t.Errorf("bc2 position: got %+v", got)
	}
	// Missing wall falls back to overlap centre of the room boxes (no overlap here, so a degenerate box).
	if _, ok := g.DoorwayPositions["de1"]; !ok {
		t.Error("expected fallback position for doorway with unknown wall")
	}
}

func TestBuilder_PropagatesSourceError(t *testing.T) {
	b := NewBuilder(fakeSource{err: errors.New("boom")})
	if _, _, err := b.Build("house"); err == nil {
		t.Fatal("expected error")
	}
}

// #endregion build-tests

// #region route-tests

func TestRoute(t *testing.T) {
	g := Build(houseLayout())

	tests := []struct {
		name     string
		from, to string
		want     []string
	}{
		{"same-room", "a", "a", []string{"a"}},
		{"adjacent", "a", "b", []string{"a", "b"}},
		{"corridor", "a", "d", []string{"a", "b", "c", "d"}},
		{"reverse", "d", "a", []string{"d", "c", "b", "a"}},
		{"inaccessible-doorway", "d", "e", nil},
		{"unknown-room", "a", "zz", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Route(tt.from, tt.to)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestDoorwayBetween_FirstFoundWins(t *testing.T) {
	g := Build(houseLayout())

	d, ok := g.DoorwayBetween("c", "b")
	if !ok {
		t.Fatal("expected a doorway between b and c")
	}
	if d.ID != "bc1" {
		t.Errorf("expected first doorway bc1, got %s", d.ID)
	}
	if _, ok := g.DoorwayBetween("d", "e"); ok {
		t.Error("inaccessible doorway must not be returned")
	}
}

func TestDoorwaySymmetry(t *testing.T) {
	g := Build(houseLayout())
	rooms := []string{"a", "b", "c", "d", "e", "zz"}
	for _, d := range g.Doorways {
		for _, x := range rooms {
			for _, y := range rooms {
				if d.ConnectsRooms(x, y) != d.ConnectsRooms(y, x) {
					t.Fatalf("doorway %s asymmetric for %s/%s", d.ID, x, y)
				}
			}
		}
	}
}

// #endregion route-tests
