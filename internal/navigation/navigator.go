package navigation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/logging"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/notify"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/pathfinding"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

var tracer = otel.Tracer("companion/navigation")

// #region navigator

// Navigator plans routes and walks assistants along them in the background.
type Navigator struct {
	assistants AssistantStore
	plans      FloorPlanStore
	pathfinder *pathfinding.Pathfinder
	notifier   notify.Notifier
	actionDB   *sql.DB // optional action log
	opts       Options
	log        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// session is a registered navigation. step serializes a waypoint application against
// cancellation; done is closed exactly once when the session leaves the registry.
type session struct {
	info Session // guarded by Navigator.mu
	step sync.Mutex
	done chan struct{}
}

// Config bundles the navigator's collaborators.
type Config struct {
	Assistants AssistantStore
	FloorPlans FloorPlanStore
	Pathfinder *pathfinding.Pathfinder
	Notifier   notify.Notifier
	ActionDB   *sql.DB
	Options    Options
	Logger     *zap.Logger
}

// New creates a Navigator. Close must be called to stop in-flight sessions.
func New(cfg Config) *Navigator {
	log := logging.OrNop(cfg.Logger).Named("navigation")
	pf := cfg.Pathfinder
	if pf == nil {
		pf = pathfinding.New(cfg.FloorPlans, pathfinding.Options{}, log)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Navigator{
		assistants: cfg.Assistants,
		plans:      cfg.FloorPlans,
		pathfinder: pf,
		notifier:   notify.OrNop(cfg.Notifier),
		actionDB:   cfg.ActionDB,
		opts:       cfg.Options.withDefaults(),
		log:        log,
		sessions:   make(map[string]*session),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// #endregion navigator

// #region plan

type plannedRoute struct {
	assistant  state.Assistant
	plan       floorplan.FloorPlan
	target     geometry.Position
	targetRoom floorplan.Room
	result     pathfinding.Result
}

// planRoute resolves rooms, clamps the target and runs the pathfinder. It has no side effects.
func (n *Navigator) planRoute(req Request) (plannedRoute, error) {
	a, err := n.assistants.Get(req.AssistantID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return plannedRoute{}, fmt.Errorf("%w: %s", ErrAssistantNotFound, req.AssistantID)
		}
		return plannedRoute{}, fmt.Errorf("load assistant: %w", err)
	}

	plan, err := n.plans.ActivePlan()
	if err != nil {
		if errors.Is(err, floorplan.ErrNotFound) {
			return plannedRoute{}, ErrNoActiveFloorPlan
		}
		return plannedRoute{}, fmt.Errorf("load active plan: %w", err)
	}
	layout, err := n.plans.Layout(plan.ID)
	if err != nil {
		return plannedRoute{}, fmt.Errorf("load layout: %w", err)
	}

	startRoom, ok := layout.Room(a.CurrentRoomID)
	if !ok {
		if startRoom, ok = layout.RoomAt(a.Position); !ok {
			return plannedRoute{}, fmt.Errorf("%w: assistant %s is in no room", ErrRoomNotFound, a.ID)
		}
	}

	targetRoomID := req.TargetRoomID
	if targetRoomID == "" {
		targetRoomID = startRoom.ID
	}
	targetRoom, ok := layout.Room(targetRoomID)
	if !ok {
		return plannedRoute{}, fmt.Errorf("%w: %s", ErrRoomNotFound, targetRoomID)
	}

	target := req.Target
	if !targetRoom.Contains(target) {
		target = targetRoom.Bounds().Clamp(target, n.opts.ClampPadding)
	}

	res, err := n.pathfinder.FindMultiRoomPath(plan.ID, a.Position, startRoom.ID, target, targetRoom.ID)
	if err != nil {
		return plannedRoute{}, err
	}
	if !res.Found() {
		return plannedRoute{}, fmt.Errorf("%w: %s -> %s", ErrNoPath, startRoom.ID, targetRoom.ID)
	}
	return plannedRoute{assistant: a, plan: plan, target: target, targetRoom: targetRoom, result: res}, nil
}

func responseFor(r plannedRoute) Response {
	return Response{
		Success:           true,
		Path:              r.result.Path,
		RoomTransitions:   r.result.RoomTransitions,
		DoorsOpened:       []string{},
		EstimatedDuration: r.result.EstimatedDuration,
		TotalDistance:     r.result.TotalDistance,
		Target:            r.target,
		TargetRoomID:      r.targetRoom.ID,
	}
}

// PreviewPath plans a route without moving the assistant or touching doors.
func (n *Navigator) PreviewPath(ctx context.Context, req Request) (Response, error) {
	_, span := tracer.Start(ctx, "navigation.preview",
		trace.WithAttributes(attribute.String("assistant_id", req.AssistantID)))
	defer span.End()

	r, err := n.planRoute(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return failure(err), err
	}
	return responseFor(r), nil
}

// #endregion plan

// #region navigate

// NavigateToPosition plans a route, opens closed doors on it, registers a session and
// starts walking in the background. Any session already running for the assistant is
// cancelled first. The returned Response mirrors the error.
func (n *Navigator) NavigateToPosition(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "navigation.navigate")
	defer span.End()
	span.SetAttributes(
		attribute.String("assistant_id", req.AssistantID),
		attribute.String("target_room_id", req.TargetRoomID),
		attribute.Bool("user_initiated", req.UserInitiated),
	)

	r, err := n.planRoute(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		n.log.Info("navigation rejected", zap.String("assistant", req.AssistantID), zap.Error(err))
		return failure(err), err
	}
	resp := responseFor(r)

	for _, doorID := range r.result.DoorwaysToOpen {
		if err := n.plans.SetDoorState(doorID, floorplan.DoorOpen); err != nil {
			n.log.Warn("open door failed", zap.String("doorway", doorID), zap.Error(err))
			continue
		}
		resp.DoorsOpened = append(resp.DoorsOpened, doorID)
		n.record(req.AssistantID, "door_opened", doorID, logging.StatusSuccess, nil, "on navigation path")
		n.notifier.Notify(ctx, notify.NewEvent(notify.EventDoorOpened, map[string]interface{}{
			"assistant_id": req.AssistantID,
			"doorway_id":   doorID,
		}))
	}

	if prev, ok := n.ActiveNavigation(req.AssistantID); ok {
		n.cancelSession(prev.ID, "superseded by new navigation")
	}

	s := &session{
		info: Session{
			ID:              uuid.New().String(),
			AssistantID:     req.AssistantID,
			FloorPlanID:     r.plan.ID,
			Target:          r.target,
			TargetRoomID:    r.targetRoom.ID,
			Path:            r.result.Path,
			RoomTransitions: r.result.RoomTransitions,
			Status:          StatusCreated,
			UserInitiated:   req.UserInitiated,
			StartedAt:       time.Now().UTC(),
		},
		done: make(chan struct{}),
	}

	if err := n.assistants.StartMovement(req.AssistantID, r.target, r.result.Positions()); err != nil {
		err = fmt.Errorf("start movement: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return failure(err), err
	}

	n.mu.Lock()
	n.sessions[s.info.ID] = s
	n.mu.Unlock()

	resp.NavigationID = s.info.ID
	span.SetAttributes(attribute.String("navigation_id", s.info.ID), attribute.Int("waypoints", len(resp.Path)))

	n.record(req.AssistantID, "navigation_started", r.targetRoom.ID, logging.StatusInfo, map[string]interface{}{
		"navigation_id": s.info.ID,
		"target":        r.target,
		"distance":      r.result.TotalDistance,
	}, "")
	n.notifier.Notify(ctx, notify.NewEvent(notify.EventNavigationStarted, map[string]interface{}{
		"assistant_id":       req.AssistantID,
		"navigation_id":      s.info.ID,
		"path":               resp.Path,
		"room_transitions":   resp.RoomTransitions,
		"estimated_duration": resp.EstimatedDuration,
	}))

	n.wg.Add(1)
	go n.run(s)

	return resp, nil
}

// #endregion navigate

// #region execute

func (n *Navigator) run(s *session) {
	defer n.wg.Done()

	n.mu.Lock()
	s.info.Status = StatusExecuting
	id, assistantID := s.info.ID, s.info.AssistantID
	path, transitions := s.info.Path, s.info.RoomTransitions
	n.mu.Unlock()

	next := 0 // index of the next room transition to apply
	timer := time.NewTimer(n.opts.StepInterval)
	defer timer.Stop()

	for i := 1; i < len(path); i++ {
		select {
		case <-s.done:
			return
		case <-n.ctx.Done():
			n.cancelSession(id, "navigator shutting down")
			return
		case <-timer.C:
		}

		s.step.Lock()
		if !n.isRegistered(id, s) {
			s.step.Unlock()
			return
		}
		var err error
		next, err = n.applyStep(assistantID, path[i-1].Position, path[i], transitions, next)
		if err == nil {
			n.mu.Lock()
			s.info.CurrentIndex = i
			n.mu.Unlock()
		}
		s.step.Unlock()

		if err != nil {
			n.log.Warn("navigation step failed", zap.String("navigation", id), zap.Int("waypoint", i), zap.Error(err))
			n.cancelSession(id, err.Error())
			return
		}
		timer.Reset(n.opts.StepInterval)
	}

	n.complete(s)
}

// applyStep performs any doorway crossing near wp, then moves the assistant onto wp.
func (n *Navigator) applyStep(assistantID string, prev geometry.Position, wp pathfinding.Waypoint, transitions []pathfinding.RoomTransition, next int) (int, error) {
	for next < len(transitions) && geometry.Distance(wp.Position, transitions[next].DoorwayPosition) <= n.opts.DoorwayProximity {
		tr := transitions[next]
		if err := n.assistants.UpdateRoom(assistantID, tr.ToRoom); err != nil {
			return next, fmt.Errorf("room transition: %w", err)
		}
		n.record(assistantID, "room_transition", tr.ToRoom, logging.StatusSuccess, tr, "")
		n.notifier.Notify(n.ctx, notify.NewEvent(notify.EventRoomTransition, map[string]interface{}{
			"assistant_id": assistantID,
			"from_room":    tr.FromRoom,
			"to_room":      tr.ToRoom,
			"doorway_id":   tr.DoorwayID,
		}))
		next++
	}

	facing := geometry.Facing(prev, wp.Position)
	if err := n.assistants.UpdatePosition(assistantID, wp.Position, facing); err != nil {
		return next, fmt.Errorf("update position: %w", err)
	}
	n.notifier.Notify(n.ctx, notify.NewEvent(notify.EventAssistantPosition, map[string]interface{}{
		"assistant_id": assistantID,
		"x":            wp.X,
		"y":            wp.Y,
		"facing":       facing,
		"room_id":      wp.RoomID,
	}))
	return next, nil
}

func (n *Navigator) complete(s *session) {
	n.mu.Lock()
	if n.sessions[s.info.ID] != s {
		n.mu.Unlock()
		return
	}
	delete(n.sessions, s.info.ID)
	s.info.Status = StatusCompleted
	info := s.info
	n.mu.Unlock()

	s.step.Lock()
	defer s.step.Unlock()
	close(s.done)

	if err := n.assistants.UpdateRoom(info.AssistantID, info.TargetRoomID); err != nil {
		n.log.Warn("final room update failed", zap.String("navigation", info.ID), zap.Error(err))
	}
	if err := n.assistants.ClearMovement(info.AssistantID); err != nil {
		n.log.Warn("clear movement failed", zap.String("navigation", info.ID), zap.Error(err))
	}

	n.record(info.AssistantID, "navigation_completed", info.TargetRoomID, logging.StatusSuccess, map[string]interface{}{
		"navigation_id": info.ID,
		"target":        info.Target,
	}, "")
	n.notifier.Notify(n.ctx, notify.NewEvent(notify.EventNavigationCompleted, map[string]interface{}{
		"assistant_id":  info.AssistantID,
		"navigation_id": info.ID,
		"room_id":       info.TargetRoomID,
		"x":             info.Target.X,
		"y":             info.Target.Y,
	}))
	n.log.Debug("navigation completed", zap.String("navigation", info.ID), zap.Duration("elapsed", time.Since(info.StartedAt)))
}

// #endregion execute

// #region cancel

// CancelNavigation stops a session and clears the assistant's movement fields.
// It reports whether a session was actually cancelled. Once it returns, the
// session's goroutine applies no further updates.
func (n *Navigator) CancelNavigation(navigationID string) bool {
	return n.cancelSession(navigationID, "cancelled by request")
}

func (n *Navigator) cancelSession(id, reason string) bool {
	n.mu.Lock()
	s, ok := n.sessions[id]
	if ok {
		delete(n.sessions, id)
		s.info.Status = StatusCancelled
		s.info.CancelReason = reason
	}
	n.mu.Unlock()
	if !ok {
		return false
	}

	// Wait for an in-flight step before resetting movement.
	s.step.Lock()
	defer s.step.Unlock()
	close(s.done)

	assistantID := s.info.AssistantID
	if err := n.assistants.ClearMovement(assistantID); err != nil {
		n.log.Warn("clear movement on cancel failed", zap.String("navigation", id), zap.Error(err))
	}
	n.record(assistantID, "navigation_cancelled", "", logging.StatusInfo, map[string]interface{}{"navigation_id": id}, reason)
	n.notifier.Notify(n.ctx, notify.NewEvent(notify.EventNavigationCancelled, map[string]interface{}{
		"assistant_id":  assistantID,
		"navigation_id": id,
		"reason":        reason,
	}))
	n.log.Info("navigation cancelled", zap.String("navigation", id), zap.String("reason", reason))
	return true
}

// #endregion cancel

// #region queries

// ActiveNavigation returns the running session for an assistant.
func (n *Navigator) ActiveNavigation(assistantID string) (Session, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.sessions {
		if s.info.AssistantID == assistantID {
			return s.info, true
		}
	}
	return Session{}, false
}

// ActiveCount returns the number of registered sessions.
func (n *Navigator) ActiveCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}

func (n *Navigator) isRegistered(id string, s *session) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessions[id] == s
}

// #endregion queries

// #region lifecycle

// Wait blocks until every session goroutine has exited.
func (n *Navigator) Wait() {
	n.wg.Wait()
}

// Close cancels all running sessions and waits for their goroutines.
func (n *Navigator) Close() {
	n.cancel()
	n.mu.Lock()
	ids := make([]string, 0, len(n.sessions))
	for id := range n.sessions {
		ids = append(ids, id)
	}
	n.mu.Unlock()
	for _, id := range ids {
		n.cancelSession(id, "navigator closed")
	}
	n.wg.Wait()
}

func (n *Navigator) record(assistantID, actionType, target, status string, detail interface{}, reason string) {
	if n.actionDB == nil {
		return
	}
	entry := logging.ActionEntry{
		AssistantID: assistantID,
		ActionType:  actionType,
		Target:      target,
		Status:      status,
		Reason:      reason,
	}
	if detail != nil {
		entry.DetailJSON = logging.Detail(detail)
	}
	if err := logging.LogAction(n.actionDB, entry); err != nil {
		n.log.Warn("action log write failed", zap.String("action", actionType), zap.Error(err))
	}
}

// #endregion lifecycle
