package idle

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		// started at init by the genai client's opencensus dependency
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *fakeRunner) RunIdle(_ context.Context, _ string, idleFor time.Duration) (council.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, idleFor)
	return council.Decision{Mood: "content"}, nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newController(t *testing.T, opts Options) (*Controller, *state.Store, *fakeRunner, *clock) {
	t.Helper()
	st, err := state.NewStore(filepath.Join(t.TempDir(), "idle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Save(state.NewAssistant("deskmate", geometry.Position{X: 10, Y: 10})))

	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := &fakeRunner{}
	c := New("deskmate", r, st, opts, zaptest.NewLogger(t))
	c.now = clk.now
	c.lastActivity = clk.now()
	return c, st, r, clk
}

func TestTick_RunsAfterTimeoutOnly(t *testing.T) {
	c, _, r, clk := newController(t, Options{Timeout: time.Minute, Drain: 0})

	clk.advance(30 * time.Second)
	c.Tick(context.Background())
	assert.Equal(t, 0, r.count())

	clk.advance(45 * time.Second)
	c.Tick(context.Background())
	require.Equal(t, 1, r.count())
	assert.Equal(t, 75*time.Second, r.calls[0])

	// The quiet period restarts after a round.
	c.Tick(context.Background())
	assert.Equal(t, 1, r.count())
}

func TestTouch_PostponesIdle(t *testing.T) {
	c, _, r, clk := newController(t, Options{Timeout: time.Minute})

	clk.advance(50 * time.Second)
	c.Touch()
	clk.advance(50 * time.Second)
	c.Tick(context.Background())
	assert.Equal(t, 0, r.count())
	assert.Equal(t, 50*time.Second, c.IdleFor())
}

func TestTick_EnergyDrainsAndRecovers(t *testing.T) {
	c, st, _, _ := newController(t, Options{Timeout: time.Hour, Drain: 0.1, Recovery: 0.25})

	c.Tick(context.Background())
	a, err := st.Get("deskmate")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, a.Energy, 1e-9)

	require.NoError(t, st.SetAction("deskmate", state.ActionResting))
	c.Tick(context.Background())
	a, _ = st.Get("deskmate")
	assert.Equal(t, state.ActionIdle, a.CurrentAction, "full energy wakes the assistant")
	assert.InDelta(t, 1.0, a.Energy, 1e-9)
}

func TestRun_StopsOnCancel(t *testing.T) {
	c, _, _, _ := newController(t, Options{Tick: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
