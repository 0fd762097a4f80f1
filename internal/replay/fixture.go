package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/companion"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Layout          string                  `json:"layout"` // floor plan YAML, relative to the fixture file
	Start           FixtureStart            `json:"start"`
	Persona         *council.Persona        `json:"persona,omitempty"`
	Interactions    []FixtureInteraction    `json:"interactions"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`

	dir string
}

// FixtureStart places the assistant before the first turn.
type FixtureStart struct {
	AssistantID string   `json:"assistant_id"`
	RoomID      string   `json:"room_id"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Mood        string   `json:"mood"`
	Energy      *float64 `json:"energy,omitempty"`
	Holding     string   `json:"holding,omitempty"`
}

// FixtureInteraction is one recorded user message.
type FixtureInteraction struct {
	TurnID  string `json:"turn_id"`
	Message string `json:"message"`
}

// FixtureExpectedResult lists what a turn's decision must satisfy. Empty fields are
// not checked.
type FixtureExpectedResult struct {
	TurnID           string   `json:"turn_id"`
	Mood             string   `json:"mood,omitempty"`
	PrimaryIntent    string   `json:"primary_intent,omitempty"`
	ActionTypes      []string `json:"action_types,omitempty"`
	MinConfidence    float64  `json:"min_confidence,omitempty"`
	ResponseContains string   `json:"response_contains,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	f.dir = filepath.Dir(path)
	return &f, nil
}

// Scene loads the fixture's layout and builds the starting snapshots.
func (f *Fixture) Scene() (council.AssistantSnapshot, council.RoomSnapshot, error) {
	layout, err := floorplan.LoadLayoutFile(filepath.Join(f.dir, f.Layout))
	if err != nil {
		return council.AssistantSnapshot{}, council.RoomSnapshot{}, err
	}

	pos := geometry.Position{X: f.Start.X, Y: f.Start.Y}
	r, ok := layout.Room(f.Start.RoomID)
	if !ok {
		if r, ok = layout.RoomAt(pos); !ok {
			return council.AssistantSnapshot{}, council.RoomSnapshot{}, fmt.Errorf("start position (%.0f, %.0f) is in no room", pos.X, pos.Y)
		}
	}

	id := f.Start.AssistantID
	if id == "" {
		id = "replay"
	}
	a := state.NewAssistant(id, pos)
	asst := council.AssistantSnapshot{
		ID:           id,
		Position:     pos,
		RoomID:       r.ID,
		Status:       a.CurrentAction,
		Mood:         a.Mood,
		Expression:   a.Expression,
		HeldObjectID: f.Start.Holding,
		Energy:       a.Energy,
	}
	if f.Start.Mood != "" {
		asst.Mood = f.Start.Mood
	}
	if f.Start.Energy != nil {
		asst.Energy = *f.Start.Energy
	}

	room := council.RoomSnapshot{ID: r.ID, Name: r.Name, Bounds: r.Bounds(), Objects: []council.RoomObject{}}
	for _, item := range layout.FurnitureIn(r.ID) {
		room.Objects = append(room.Objects, companion.RoomObject(item))
	}
	return asst, room, nil
}

// ToInteraction converts a FixtureInteraction to a domain Interaction.
func (fi *FixtureInteraction) ToInteraction() Interaction {
	return Interaction{TurnID: fi.TurnID, Message: fi.Message}
}

// Expectations indexes the expected results by turn id.
func (f *Fixture) Expectations() map[string]Expectation {
	out := make(map[string]Expectation, len(f.ExpectedResults))
	for _, e := range f.ExpectedResults {
		out[e.TurnID] = Expectation{
			Mood:             e.Mood,
			PrimaryIntent:    e.PrimaryIntent,
			ActionTypes:      e.ActionTypes,
			MinConfidence:    e.MinConfidence,
			ResponseContains: e.ResponseContains,
		}
	}
	return out
}

// #endregion fixture-loader
