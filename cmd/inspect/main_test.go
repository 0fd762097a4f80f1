package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

func seededStore(t *testing.T) *state.Store {
	t.Helper()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "companion.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	plans, err := floorplan.NewStore(store.DB())
	require.NoError(t, err)
	layout, err := floorplan.LoadLayoutFile(filepath.Join("..", "..", "internal", "floorplan", "testdata", "two_rooms.yaml"))
	require.NoError(t, err)
	require.NoError(t, plans.SaveLayout(layout))
	require.NoError(t, plans.Activate(layout.Plan.ID))

	a := state.NewAssistant("deskmate", geometry.Position{X: 305, Y: 55})
	a.CurrentRoomID = "living_room"
	require.NoError(t, store.Save(a))
	return store
}

func TestCouncilReport(t *testing.T) {
	store := seededStore(t)

	out, err := councilReport(context.Background(), store, "deskmate", "please turn on the lamp", "Mochi", true)
	require.NoError(t, err)

	assert.Equal(t, "living_room", out.Room.ID)
	require.Len(t, out.Results, 5)
	for _, r := range out.Results {
		assert.Empty(t, r.Error, "reasoner %s", r.ReasonerName)
		assert.NotEmpty(t, r.Reasoning, "reasoner %s", r.ReasonerName)
	}
	assert.Contains(t, out.Prompt, "please turn on the lamp")
	assert.Contains(t, out.Prompt, "lamp_001")
}

func TestCouncilReport_NoPromptUnlessAsked(t *testing.T) {
	store := seededStore(t)

	out, err := councilReport(context.Background(), store, "deskmate", "hello", "", false)
	require.NoError(t, err)
	assert.Empty(t, out.Prompt)
	assert.Len(t, out.Results, 5)
}
