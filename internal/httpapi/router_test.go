package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/companion"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/navigation"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/notify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// #region fakes

type fakeNavigator struct {
	last     navigation.Request
	err      error
	sessions map[string]navigation.Session
}

func (f *fakeNavigator) NavigateToPosition(_ context.Context, req navigation.Request) (navigation.Response, error) {
	f.last = req
	if f.err != nil {
		return navigation.Response{Error: f.err.Error()}, f.err
	}
	return navigation.Response{Success: true, NavigationID: "nav-1", Target: req.Target, TargetRoomID: req.TargetRoomID}, nil
}

func (f *fakeNavigator) PreviewPath(_ context.Context, req navigation.Request) (navigation.Response, error) {
	f.last = req
	if f.err != nil {
		return navigation.Response{Error: f.err.Error()}, f.err
	}
	return navigation.Response{Success: true, Target: req.Target, TotalDistance: 42}, nil
}

func (f *fakeNavigator) ActiveNavigation(assistantID string) (navigation.Session, bool) {
	for _, s := range f.sessions {
		if s.AssistantID == assistantID {
			return s, true
		}
	}
	return navigation.Session{}, false
}

func (f *fakeNavigator) CancelNavigation(id string) bool {
	if _, ok := f.sessions[id]; ok {
		delete(f.sessions, id)
		return true
	}
	return false
}

type fakeChat struct {
	persona *council.Persona
}

func (f *fakeChat) ProcessUserMessage(_ context.Context, assistantID, msg string, persona *council.Persona) companion.Response {
	f.persona = persona
	return companion.Response{
		AssistantID: assistantID,
		Decision:    council.Decision{Response: "echo: " + msg, Mood: "content", Confidence: 0.8},
	}
}

// #endregion fakes

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error
}

func TestHealthz(t *testing.T) {
	r := NewRouter(RouterConfig{Navigator: &fakeNavigator{}, Chat: &fakeChat{}})
	w := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r := NewRouter(RouterConfig{
		Navigator:    &fakeNavigator{},
		Chat:         &fakeChat{},
		AllowOrigins: []string{"http://localhost:5173"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// #region navigation

func TestNavigate(t *testing.T) {
	nav := &fakeNavigator{}
	r := NewRouter(RouterConfig{Navigator: nav, Chat: &fakeChat{}, Logger: zaptest.NewLogger(t)})

	w := do(t, r, http.MethodPost, "/api/navigation", `{"assistant_id":"deskmate","x":600,"y":300,"target_room_id":"bedroom"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp navigation.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "nav-1", resp.NavigationID)
	assert.Equal(t, geometry.Position{X: 600, Y: 300}, nav.last.Target)
	assert.Equal(t, "bedroom", nav.last.TargetRoomID)
	assert.True(t, nav.last.UserInitiated, "user_initiated defaults to true")
}

func TestNavigate_ErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: ghost", navigation.ErrAssistantNotFound), http.StatusNotFound, "assistant_not_found"},
		{fmt.Errorf("%w: attic", navigation.ErrRoomNotFound), http.StatusNotFound, "room_not_found"},
		{navigation.ErrNoActiveFloorPlan, http.StatusConflict, "no_active_floor_plan"},
		{fmt.Errorf("%w: a -> b", navigation.ErrNoPath), http.StatusUnprocessableEntity, "no_path"},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "navigation_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			r := NewRouter(RouterConfig{Navigator: &fakeNavigator{err: tc.err}, Chat: &fakeChat{}})
			w := do(t, r, http.MethodPost, "/api/navigation", `{"assistant_id":"a","x":1,"y":1}`)
			assert.Equal(t, tc.status, w.Code)
			apiErr := decodeError(t, w)
			assert.Equal(t, tc.code, apiErr.Code)
			assert.Equal(t, tc.err.Error(), apiErr.Message)
		})
	}
}

func TestNavigate_BadRequest(t *testing.T) {
	r := NewRouter(RouterConfig{Navigator: &fakeNavigator{}, Chat: &fakeChat{}})
	w := do(t, r, http.MethodPost, "/api/navigation", `{"x":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).Code)
}

func TestPreview(t *testing.T) {
	nav := &fakeNavigator{}
	r := NewRouter(RouterConfig{Navigator: nav, Chat: &fakeChat{}})
	w := do(t, r, http.MethodPost, "/api/navigation/preview", `{"assistant_id":"deskmate","x":10,"y":20,"user_initiated":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp navigation.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 42.0, resp.TotalDistance)
	assert.False(t, nav.last.UserInitiated)
}

func TestActiveAndCancel(t *testing.T) {
	nav := &fakeNavigator{sessions: map[string]navigation.Session{
		"nav-9": {ID: "nav-9", AssistantID: "deskmate", Status: navigation.StatusExecuting},
	}}
	r := NewRouter(RouterConfig{Navigator: nav, Chat: &fakeChat{}})

	w := do(t, r, http.MethodGet, "/api/assistants/deskmate/navigation", "")
	require.Equal(t, http.StatusOK, w.Code)
	var s navigation.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, "nav-9", s.ID)

	w = do(t, r, http.MethodDelete, "/api/navigation/nav-9", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodDelete, "/api/navigation/nav-9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/assistants/deskmate/navigation", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "navigation_not_found", decodeError(t, w).Code)
}

// #endregion navigation

// #region chat

func TestChat_DefaultPersona(t *testing.T) {
	chat := &fakeChat{}
	def := &council.Persona{Name: "Mochi"}
	r := NewRouter(RouterConfig{Navigator: &fakeNavigator{}, Chat: chat, Persona: def})

	w := do(t, r, http.MethodPost, "/api/chat", `{"assistant_id":"deskmate","message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp companion.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "echo: hi", resp.Decision.Response)
	assert.Same(t, def, chat.persona)

	w = do(t, r, http.MethodPost, "/api/chat", `{"assistant_id":"deskmate","message":"hi","persona":{"name":"Pip"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Pip", chat.persona.Name)
}

func TestChat_EmptyMessage(t *testing.T) {
	r := NewRouter(RouterConfig{Navigator: &fakeNavigator{}, Chat: &fakeChat{}})
	w := do(t, r, http.MethodPost, "/api/chat", `{"assistant_id":"deskmate","message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// #endregion chat

func TestEventStream(t *testing.T) {
	hub := notify.NewHub(nil)
	srv := httptest.NewServer(NewRouter(RouterConfig{Navigator: &fakeNavigator{}, Chat: &fakeChat{}, Events: hub}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	hub.Notify(ctx, notify.NewEvent(notify.EventDoorOpened, map[string]interface{}{"doorway_id": "d1"}))

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		lines = append(lines, line)
	}
	require.NotEmpty(t, lines)
	assert.Equal(t, "event:door_opened", lines[0])
	assert.Contains(t, strings.Join(lines, "\n"), `"doorway_id":"d1"`)
}
