package actions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/logging"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/navigation"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/notify"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		// started at init by the genai client's opencensus dependency
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// #region fixture

type fixture struct {
	exec       *Executor
	nav        *navigation.Navigator
	assistants *state.Store
	plans      *floorplan.Store
	events     <-chan notify.Event
}

func newFixture(t *testing.T, at geometry.Position, room string) *fixture {
	t.Helper()
	st, err := state.NewStore(filepath.Join(t.TempDir(), "actions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	plans, err := floorplan.NewStore(st.DB())
	require.NoError(t, err)
	require.NoError(t, logging.EnsureSchema(st.DB()))
	layout, err := floorplan.LoadLayoutFile(filepath.Join("..", "floorplan", "testdata", "two_rooms.yaml"))
	require.NoError(t, err)
	require.NoError(t, plans.SaveLayout(layout))

	a := state.NewAssistant("deskmate", at)
	a.FloorPlanID = "studio"
	a.CurrentRoomID = room
	require.NoError(t, st.Save(a))

	hub := notify.NewHub(nil)
	events, unsub := hub.Subscribe(256)
	t.Cleanup(unsub)

	log := zaptest.NewLogger(t)
	nav := navigation.New(navigation.Config{
		Assistants: st,
		FloorPlans: plans,
		Notifier:   hub,
		Options:    navigation.Options{StepInterval: time.Millisecond},
		Logger:     log,
	})
	t.Cleanup(nav.Close)

	exec := New(Config{
		Navigator:   nav,
		Assistants:  st,
		Objects:     plans,
		Notifier:    hub,
		ActionDB:    st.DB(),
		Logger:      log,
		ArrivalPoll: time.Millisecond,
	})
	return &fixture{exec: exec, nav: nav, assistants: st, plans: plans, events: events}
}

func (f *fixture) assistant(t *testing.T) state.Assistant {
	t.Helper()
	a, err := f.assistants.Get("deskmate")
	require.NoError(t, err)
	return a
}

// #endregion fixture

// #region objects

func TestExecute_StateChangeLamp(t *testing.T) {
	f := newFixture(t, geometry.Position{X: 305, Y: 55}, "living_room")

	out := f.exec.Execute(context.Background(), "deskmate", []council.Action{
		{Type: council.ActionStateChange, Target: "lamp_001", Parameters: map[string]interface{}{"power": "on"}},
	})
	require.Len(t, out, 1)
	assert.True(t, out[0].Success, out[0].Message)

	lamp, err := f.plans.Item("lamp_001")
	require.NoError(t, err)
	assert.Equal(t, "on", lamp.State["power"])

	ev := <-f.events
	assert.Equal(t, notify.EventObjectState, ev.Type)

	entries, err := logging.RecentActions(f.assistants.DB(), "deskmate", 5)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "state_change", entries[0].ActionType)
	assert.Equal(t, logging.StatusSuccess, entries[0].Status)
}

func TestExecute_InteractToggles(t *testing.T) {
	f := newFixture(t, geometry.Position{X: 305, Y: 55}, "living_room")
	act := council.Action{Type: council.ActionInteract, Target: "lamp_001"}

	f.exec.Execute(context.Background(), "deskmate", []council.Action{act})
	lamp, _ := f.plans.Item("lamp_001")
	assert.Equal(t, "on", lamp.State["power"])

	f.exec.Execute(context.Background(), "deskmate", []council.Action{act})
	lamp, _ = f.plans.Item("lamp_001")
	assert.Equal(t, "off", lamp.State["power"])
}

func TestExecute_FailuresDoNotStopLaterActions(t *testing.T) {
	f := newFixture(t, geometry.Position{X: 50, Y: 50}, "living_room")

	out := f.exec.Execute(context.Background(), "deskmate", []council.Action{
		{Type: council.ActionInteract, Target: "lamp_001"},
		{Type: council.ActionPickUp, Target: "ghost"},
		council.Expression("sheepish"),
	})
	require.Len(t, out, 3)
	assert.False(t, out[0].Success)
	assert.Contains(t, out[0].Message, "out of reach")
	assert.False(t, out[1].Success)
	assert.True(t, out[2].Success)
	assert.Equal(t, "sheepish", f.assistant(t).Expression)

	entries, err := logging.RecentActions(f.assistants.DB(), "deskmate", 5)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, logging.StatusFailed, entries[2].Status)
}

func TestExecute_PickUpAndPutDown(t *testing.T) {
	f := newFixture(t, geometry.Position{X: 600, Y: 100}, "bedroom")
	ctx := context.Background()

	out := f.exec.Execute(ctx, "deskmate", []council.Action{
		{Type: council.ActionPickUp, Target: "book_001"},
		{Type: council.ActionPickUp, Target: "book_001"},
	})
	assert.True(t, out[0].Success, out[0].Message)
	assert.False(t, out[1].Success)
	assert.Contains(t, out[1].Message, "already holding")

	a := f.assistant(t)
	assert.Equal(t, "book_001", a.HeldObjectID)
	assert.Equal(t, state.ActionHolding, a.CurrentAction)

	out = f.exec.Execute(ctx, "deskmate", []council.Action{
		{Type: council.ActionPutDown, Parameters: map[string]interface{}{"x": 620.0, "y": 120.0}},
	})
	require.True(t, out[0].Success, out[0].Message)
	a = f.assistant(t)
	assert.False(t, a.IsHolding())
	assert.Equal(t, state.ActionIdle, a.CurrentAction)

	book, err := f.plans.Item("book_001")
	require.NoError(t, err)
	assert.True(t, book.Center().Equal(geometry.Position{X: 620, Y: 120}))
	assert.Equal(t, "bedroom", book.RoomID)

	out = f.exec.Execute(ctx, "deskmate", []council.Action{{Type: council.ActionPutDown}})
	assert.False(t, out[0].Success)
}

func TestExecute_PickUpRequiresMovable(t *testing.T) {
	f := newFixture(t, geometry.Position{X: 175, Y: 240}, "living_room")
	out := f.exec.Execute(context.Background(), "deskmate", []council.Action{{Type: council.ActionPickUp, Target: "sofa_001"}})
	assert.False(t, out[0].Success)
	assert.Contains(t, out[0].Message, "cannot be picked up")
}

// #endregion objects

// #region assistant

func TestExecute_Rest(t *testing.T) {
	f := newFixture(t, geometry.Position{X: 50, Y: 50}, "living_room")
	require.NoError(t, f.assistants.SetEnergy("deskmate", 0.1))

	out := f.exec.Execute(context.Background(), "deskmate", []council.Action{{Type: council.ActionRest}})
	require.True(t, out[0].Success)
	a := f.assistant(t)
	assert.Equal(t, state.ActionResting, a.CurrentAction)
	assert.InDelta(t, 0.3, a.Energy, 1e-9)
}

func TestExecute_MoveThenExpress(t *testing.T) {
	f := newFixture(t, geometry.Position{X: 50, Y: 50}, "living_room")

	out := f.exec.Execute(context.Background(), "deskmate", []council.Action{
		{Type: council.ActionMove, Target: "center"},
		council.Expression("proud"),
	})
	require.Len(t, out, 2)
	require.True(t, out[0].Success, out[0].Message)
	assert.NotEmpty(t, out[0].NavigationID)

	a := f.assistant(t)
	assert.True(t, a.Position.Equal(geometry.Position{X: 200, Y: 200}), "position %+v", a.Position)
	assert.False(t, a.IsMoving())
	assert.Equal(t, "proud", a.Expression)
}

func TestExecute_MoveToObjectInOtherRoom(t *testing.T) {
	f := newFixture(t, geometry.Position{X: 50, Y: 50}, "living_room")

	out := f.exec.Execute(context.Background(), "deskmate", []council.Action{{Type: council.ActionMove, Target: "book_001"}})
	require.True(t, out[0].Success, out[0].Message)
	f.nav.Wait()

	a := f.assistant(t)
	assert.Equal(t, "bedroom", a.CurrentRoomID)
	assert.True(t, a.Position.Equal(geometry.Position{X: 605, Y: 105}), "position %+v", a.Position)
}

func TestExecute_MoveUnknownTarget(t *testing.T) {
	f := newFixture(t, geometry.Position{X: 50, Y: 50}, "living_room")
	out := f.exec.Execute(context.Background(), "deskmate", []council.Action{{Type: council.ActionMove, Target: "moon"}})
	assert.False(t, out[0].Success)
	assert.Contains(t, out[0].Message, "unknown move target")
}

// #endregion assistant
