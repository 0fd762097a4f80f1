package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/logging"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/navigation"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/notify"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

// RestRecovery is the energy regained by one rest action.
const RestRecovery = 0.2

var (
	ErrMissingTarget = errors.New("action has no target")
	ErrOutOfReach    = errors.New("object out of reach")
	ErrNotAllowed    = errors.New("action not allowed on object")
	ErrHandsFull     = errors.New("already holding something")
	ErrHandsEmpty    = errors.New("not holding anything")
)

// #region collaborators

// Navigator starts and tracks navigation sessions.
type Navigator interface {
	NavigateToPosition(ctx context.Context, req navigation.Request) (navigation.Response, error)
	ActiveNavigation(assistantID string) (navigation.Session, bool)
}

// AssistantStore is the assistant state the executor reads and writes.
type AssistantStore interface {
	Get(id string) (state.Assistant, error)
	SetMood(id, mood, expression string) error
	SetHolding(id, objectID string) error
	SetAction(id, action string) error
	SetEnergy(id string, energy float64) error
}

// ObjectStore gives access to furniture and rooms.
type ObjectStore interface {
	Item(id string) (floorplan.FurnitureItem, error)
	Room(id string) (floorplan.Room, error)
	SetItemState(itemID, key, value string) (floorplan.FurnitureItem, error)
	MoveItem(itemID string, pos geometry.Position, roomID string) error
}

// #endregion collaborators

// #region executor

// Outcome reports what happened to one action.
type Outcome struct {
	Action       council.Action `json:"action"`
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	NavigationID string         `json:"navigation_id,omitempty"`
}

// Config wires an Executor. Notifier and ActionDB are optional.
type Config struct {
	Navigator  Navigator
	Assistants AssistantStore
	Objects    ObjectStore
	Notifier   notify.Notifier
	ActionDB   *sql.DB
	Logger     *zap.Logger
	// ArrivalPoll is how often a pending move is checked before the next action runs.
	ArrivalPoll time.Duration
}

// Executor applies council actions to the world, one after another.
type Executor struct {
	nav        Navigator
	assistants AssistantStore
	objects    ObjectStore
	notifier   notify.Notifier
	actionDB   *sql.DB
	log        *zap.Logger
	poll       time.Duration
}

// New creates an Executor.
func New(cfg Config) *Executor {
	poll := cfg.ArrivalPoll
	if poll <= 0 {
		poll = 25 * time.Millisecond
	}
	return &Executor{
		nav:        cfg.Navigator,
		assistants: cfg.Assistants,
		objects:    cfg.Objects,
		notifier:   notify.OrNop(cfg.Notifier),
		actionDB:   cfg.ActionDB,
		log:        logging.OrNop(cfg.Logger).Named("actions"),
		poll:       poll,
	}
}

// Execute runs actions in order. A move followed by more actions waits for arrival first.
// Failures are reported per action and never stop the remaining ones.
func (e *Executor) Execute(ctx context.Context, assistantID string, acts []council.Action) []Outcome {
	out := make([]Outcome, 0, len(acts))
	for i, act := range acts {
		o := e.executeOne(ctx, assistantID, act)
		e.record(assistantID, o)
		out = append(out, o)
		if o.NavigationID != "" && i < len(acts)-1 {
			e.awaitArrival(ctx, assistantID, o.NavigationID)
		}
	}
	return out
}

func (e *Executor) executeOne(ctx context.Context, assistantID string, act council.Action) Outcome {
	var (
		msg   string
		navID string
		err   error
	)
	switch act.Type {
	case council.ActionMove:
		navID, msg, err = e.move(ctx, assistantID, act)
	case council.ActionInteract:
		msg, err = e.interact(ctx, assistantID, act)
	case council.ActionStateChange:
		msg, err = e.changeState(ctx, assistantID, act)
	case council.ActionPickUp:
		msg, err = e.pickUp(ctx, assistantID, act)
	case council.ActionPutDown:
		msg, err = e.putDown(ctx, assistantID, act)
	case council.ActionExpression:
		msg, err = e.express(ctx, assistantID, act)
	case council.ActionRest:
		msg, err = e.rest(ctx, assistantID)
	default:
		err = fmt.Errorf("unknown action type %q", act.Type)
	}
	if err != nil {
		e.log.Info("action failed", zap.String("type", string(act.Type)), zap.String("target", act.Target), zap.Error(err))
		return Outcome{Action: act, Message: err.Error()}
	}
	return Outcome{Action: act, Success: true, Message: msg, NavigationID: navID}
}

// awaitArrival blocks until the session has left the registry and the navigator has
// cleared the assistant's movement fields.
func (e *Executor) awaitArrival(ctx context.Context, assistantID, navID string) {
	t := time.NewTicker(e.poll)
	defer t.Stop()
	for {
		if s, ok := e.nav.ActiveNavigation(assistantID); !ok || s.ID != navID {
			a, err := e.assistants.Get(assistantID)
			if err != nil || !a.IsMoving() {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// #endregion executor

// #region move

func (e *Executor) move(ctx context.Context, assistantID string, act council.Action) (string, string, error) {
	if e.nav == nil {
		return "", "", errors.New("navigation unavailable")
	}
	a, err := e.assistants.Get(assistantID)
	if err != nil {
		return "", "", err
	}
	target, roomID, err := e.resolveTarget(a, act)
	if err != nil {
		return "", "", err
	}
	resp, err := e.nav.NavigateToPosition(ctx, navigation.Request{
		AssistantID:  assistantID,
		Target:       target,
		TargetRoomID: roomID,
	})
	if err != nil {
		return "", "", err
	}
	return resp.NavigationID, fmt.Sprintf("walking to (%.0f, %.0f), %.0fpx", resp.Target.X, resp.Target.Y, resp.TotalDistance), nil
}

// resolveTarget turns explicit coordinates, an object id or a symbolic location into a point.
func (e *Executor) resolveTarget(a state.Assistant, act council.Action) (geometry.Position, string, error) {
	roomID, _ := stringParam(act.Parameters, "room")
	x, okX := floatParam(act.Parameters, "x")
	y, okY := floatParam(act.Parameters, "y")
	if okX && okY {
		if roomID == "" && act.Target != "" {
			if item, err := e.objects.Item(act.Target); err == nil {
				roomID = item.RoomID
			}
		}
		return geometry.Position{X: x, Y: y}, roomID, nil
	}
	if act.Target == "" {
		return geometry.Position{}, "", ErrMissingTarget
	}
	if item, err := e.objects.Item(act.Target); err == nil {
		return item.Center(), item.RoomID, nil
	}

	if roomID == "" {
		roomID = a.CurrentRoomID
	}
	room, err := e.objects.Room(roomID)
	if err != nil {
		return geometry.Position{}, "", fmt.Errorf("resolve %q: %w", act.Target, err)
	}
	if p, ok := council.ResolveLocation(act.Target, room.Bounds()); ok {
		return p, room.ID, nil
	}
	return geometry.Position{}, "", fmt.Errorf("unknown move target %q", act.Target)
}

// #endregion move

// #region objects

func (e *Executor) reachable(assistantID, itemID string) (state.Assistant, floorplan.FurnitureItem, error) {
	if itemID == "" {
		return state.Assistant{}, floorplan.FurnitureItem{}, ErrMissingTarget
	}
	a, err := e.assistants.Get(assistantID)
	if err != nil {
		return state.Assistant{}, floorplan.FurnitureItem{}, err
	}
	item, err := e.objects.Item(itemID)
	if err != nil {
		return state.Assistant{}, floorplan.FurnitureItem{}, fmt.Errorf("object %s: %w", itemID, err)
	}
	if !geometry.CanInteract(a.Position, item.Center()) {
		return a, item, fmt.Errorf("%w: %s is %.0fpx away", ErrOutOfReach, itemID, geometry.Distance(a.Position, item.Center()))
	}
	return a, item, nil
}

func (e *Executor) interact(ctx context.Context, assistantID string, act council.Action) (string, error) {
	_, item, err := e.reachable(assistantID, act.Target)
	if err != nil {
		return "", err
	}
	if !item.Interactive {
		return "", fmt.Errorf("%w: %s is not interactive", ErrNotAllowed, item.ID)
	}

	kind, _ := stringParam(act.Parameters, "interaction")
	if kind == "" {
		switch {
		case hasKey(item.State, "power"):
			kind = "toggle_power"
		case hasKey(item.State, "open"):
			kind = "toggle_open"
		default:
			kind = "examine"
		}
	}
	switch kind {
	case "toggle_power":
		return e.setState(ctx, assistantID, item, "power", toggle(item.State["power"], "on", "off"))
	case "toggle_open":
		return e.setState(ctx, assistantID, item, "open", toggle(item.State["open"], "true", "false"))
	default:
		return fmt.Sprintf("examined %s", label(item)), nil
	}
}

// changeState applies every parameter as a state key; with none it toggles power or open.
func (e *Executor) changeState(ctx context.Context, assistantID string, act council.Action) (string, error) {
	_, item, err := e.reachable(assistantID, act.Target)
	if err != nil {
		return "", err
	}
	if !item.Interactive {
		return "", fmt.Errorf("%w: %s is not interactive", ErrNotAllowed, item.ID)
	}
	if len(act.Parameters) == 0 {
		switch {
		case hasKey(item.State, "power"):
			return e.setState(ctx, assistantID, item, "power", toggle(item.State["power"], "on", "off"))
		case hasKey(item.State, "open"):
			return e.setState(ctx, assistantID, item, "open", toggle(item.State["open"], "true", "false"))
		}
		return "", fmt.Errorf("%w: no state to change on %s", ErrNotAllowed, item.ID)
	}

	keys := make([]string, 0, len(act.Parameters))
	for k := range act.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var msg string
	for _, k := range keys {
		if msg, err = e.setState(ctx, assistantID, item, k, fmt.Sprint(act.Parameters[k])); err != nil {
			return "", err
		}
	}
	if len(keys) > 1 {
		msg = fmt.Sprintf("updated %d state keys on %s", len(keys), label(item))
	}
	return msg, nil
}

func (e *Executor) setState(ctx context.Context, assistantID string, item floorplan.FurnitureItem, key, value string) (string, error) {
	updated, err := e.objects.SetItemState(item.ID, key, value)
	if err != nil {
		return "", err
	}
	e.notifier.Notify(ctx, notify.NewEvent(notify.EventObjectState, map[string]interface{}{
		"assistant_id": assistantID,
		"object_id":    item.ID,
		"state":        updated.State,
	}))
	return fmt.Sprintf("set %s %s=%s", label(item), key, value), nil
}

func (e *Executor) pickUp(ctx context.Context, assistantID string, act council.Action) (string, error) {
	a, item, err := e.reachable(assistantID, act.Target)
	if err != nil {
		return "", err
	}
	if a.IsHolding() {
		return "", fmt.Errorf("%w: %s", ErrHandsFull, a.HeldObjectID)
	}
	if !item.Movable {
		return "", fmt.Errorf("%w: %s cannot be picked up", ErrNotAllowed, item.ID)
	}
	if err := e.assistants.SetHolding(assistantID, item.ID); err != nil {
		return "", err
	}
	if err := e.assistants.SetAction(assistantID, state.ActionHolding); err != nil {
		return "", err
	}
	e.notifier.Notify(ctx, notify.NewEvent(notify.EventAssistantState, map[string]interface{}{
		"assistant_id":   assistantID,
		"held_object_id": item.ID,
	}))
	return "picked up " + label(item), nil
}

func (e *Executor) putDown(ctx context.Context, assistantID string, act council.Action) (string, error) {
	a, err := e.assistants.Get(assistantID)
	if err != nil {
		return "", err
	}
	if !a.IsHolding() {
		return "", ErrHandsEmpty
	}
	held, err := e.objects.Item(a.HeldObjectID)
	if err != nil {
		return "", fmt.Errorf("held object %s: %w", a.HeldObjectID, err)
	}

	center, roomID := a.Position, a.CurrentRoomID
	where := "here"
	if surfaceID, ok := stringParam(act.Parameters, "surface"); ok && surfaceID != "" {
		_, surface, err := e.reachable(assistantID, surfaceID)
		if err != nil {
			return "", err
		}
		if !surface.Surface {
			return "", fmt.Errorf("%w: %s is not a surface", ErrNotAllowed, surface.ID)
		}
		center, roomID, where = surface.Center(), surface.RoomID, "on "+label(surface)
	} else if x, okX := floatParam(act.Parameters, "x"); okX {
		if y, okY := floatParam(act.Parameters, "y"); okY {
			center = geometry.Position{X: x, Y: y}
			if !geometry.CanInteract(a.Position, center) {
				return "", fmt.Errorf("%w: drop point is %.0fpx away", ErrOutOfReach, geometry.Distance(a.Position, center))
			}
		}
	}

	topLeft := geometry.Position{X: center.X - held.Width/2, Y: center.Y - held.Height/2}
	if err := e.objects.MoveItem(held.ID, topLeft, roomID); err != nil {
		return "", err
	}
	if err := e.assistants.SetHolding(assistantID, ""); err != nil {
		return "", err
	}
	if err := e.assistants.SetAction(assistantID, state.ActionIdle); err != nil {
		return "", err
	}
	e.notifier.Notify(ctx, notify.NewEvent(notify.EventAssistantState, map[string]interface{}{
		"assistant_id":   assistantID,
		"held_object_id": "",
		"placed":         held.ID,
	}))
	return fmt.Sprintf("put %s down %s", label(held), where), nil
}

// #endregion objects

// #region assistant

func (e *Executor) express(ctx context.Context, assistantID string, act council.Action) (string, error) {
	expr := act.Target
	if expr == "" {
		expr, _ = stringParam(act.Parameters, "expression")
	}
	if expr == "" {
		return "", ErrMissingTarget
	}
	a, err := e.assistants.Get(assistantID)
	if err != nil {
		return "", err
	}
	if err := e.assistants.SetMood(assistantID, a.Mood, expr); err != nil {
		return "", err
	}
	e.notifier.Notify(ctx, notify.NewEvent(notify.EventAssistantState, map[string]interface{}{
		"assistant_id": assistantID,
		"expression":   expr,
	}))
	return "expression " + expr, nil
}

func (e *Executor) rest(ctx context.Context, assistantID string) (string, error) {
	a, err := e.assistants.Get(assistantID)
	if err != nil {
		return "", err
	}
	if err := e.assistants.SetAction(assistantID, state.ActionResting); err != nil {
		return "", err
	}
	energy := min(1, a.Energy+RestRecovery)
	if err := e.assistants.SetEnergy(assistantID, energy); err != nil {
		return "", err
	}
	e.notifier.Notify(ctx, notify.NewEvent(notify.EventAssistantState, map[string]interface{}{
		"assistant_id":   assistantID,
		"current_action": state.ActionResting,
		"energy":         energy,
	}))
	return fmt.Sprintf("resting, energy %.2f", energy), nil
}

// #endregion assistant

// #region helpers

func (e *Executor) record(assistantID string, o Outcome) {
	if e.actionDB == nil {
		return
	}
	status := logging.StatusSuccess
	if !o.Success {
		status = logging.StatusFailed
	}
	err := logging.LogAction(e.actionDB, logging.ActionEntry{
		AssistantID: assistantID,
		ActionType:  string(o.Action.Type),
		Target:      o.Action.Target,
		Status:      status,
		DetailJSON:  logging.Detail(o.Action.Parameters),
		Reason:      o.Message,
	})
	if err != nil {
		e.log.Warn("action log write failed", zap.Error(err))
	}
}

func stringParam(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

func floatParam(params map[string]interface{}, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func hasKey(m map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}

func toggle(current, on, off string) string {
	if current == on {
		return off
	}
	return on
}

func label(item floorplan.FurnitureItem) string {
	if item.Name != "" {
		return item.Name
	}
	return item.ID
}

// #endregion helpers
