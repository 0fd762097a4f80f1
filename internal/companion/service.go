package companion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/actions"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/logging"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/notify"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

// Floor size assumed when no floor plan is available.
const (
	defaultFloorWidth  = 800.0
	defaultFloorHeight = 600.0
)

// #region collaborators

// AssistantStore reads assistant state and records the decided mood.
type AssistantStore interface {
	Get(id string) (state.Assistant, error)
	SetMood(id, mood, expression string) error
}

// PlanStore reads the active floor plan.
type PlanStore interface {
	ActivePlan() (floorplan.FloorPlan, error)
	Layout(planID string) (floorplan.Layout, error)
}

// Conversation stores chat turns.
type Conversation interface {
	Save(ctx context.Context, role, content, persona string, metadata map[string]interface{}) (memory.Message, error)
}

// ActivityTracker is told whenever the user interacts.
type ActivityTracker interface {
	Touch()
}

// #endregion collaborators

// #region service

// Config wires a Service. Conversation, Notifier and Activity are optional.
type Config struct {
	Assistants   AssistantStore
	Plans        PlanStore
	Coordinator  *council.Coordinator
	Executor     *actions.Executor
	Conversation Conversation
	Notifier     notify.Notifier
	Activity     ActivityTracker
	UseLLM       bool
	Logger       *zap.Logger
}

// Service answers user messages: it gathers context, asks the council and carries out
// the resulting actions.
type Service struct {
	assistants AssistantStore
	plans      PlanStore
	council    *council.Coordinator
	executor   *actions.Executor
	convo      Conversation
	notifier   notify.Notifier
	activity   ActivityTracker
	useLLM     bool
	log        *zap.Logger
}

// Response is the result of one user message.
type Response struct {
	AssistantID string                    `json:"assistant_id"`
	Decision    council.Decision          `json:"decision"`
	Outcomes    []actions.Outcome         `json:"outcomes"`
	Assistant   council.AssistantSnapshot `json:"assistant"`
	RoomID      string                    `json:"room_id"`
}

// New creates a Service.
func New(cfg Config) *Service {
	return &Service{
		assistants: cfg.Assistants,
		plans:      cfg.Plans,
		council:    cfg.Coordinator,
		executor:   cfg.Executor,
		convo:      cfg.Conversation,
		notifier:   notify.OrNop(cfg.Notifier),
		activity:   cfg.Activity,
		useLLM:     cfg.UseLLM,
		log:        logging.OrNop(cfg.Logger).Named("companion"),
	}
}

// #endregion service

// #region process

// ProcessUserMessage runs one conversational turn. It always returns a response.
func (s *Service) ProcessUserMessage(ctx context.Context, assistantID, msg string, persona *council.Persona) Response {
	if s.activity != nil {
		s.activity.Touch()
	}
	asst, room := s.Snapshot(assistantID)

	var d council.Decision
	if s.useLLM {
		d = s.council.ProcessWithLLM(ctx, msg, asst, room, persona)
	} else {
		d = s.council.ProcessUserMessage(ctx, msg, asst, room, persona)
	}

	resp := Response{AssistantID: assistantID, Decision: d, Assistant: asst, RoomID: room.ID, Outcomes: []actions.Outcome{}}
	if s.executor != nil && len(d.Actions) > 0 {
		resp.Outcomes = s.executor.Execute(ctx, assistantID, d.Actions)
	}
	s.applyMood(assistantID, d.Mood)
	s.remember(ctx, msg, d, persona)

	s.notifier.Notify(ctx, notify.NewEvent(notify.EventCouncilDecision, map[string]interface{}{
		"assistant_id": assistantID,
		"response":     d.Response,
		"mood":         d.Mood,
		"actions":      d.Actions,
		"confidence":   d.Confidence,
	}))
	s.log.Info("turn processed",
		zap.String("assistant", assistantID),
		zap.Float64("confidence", d.Confidence),
		zap.Int("actions", len(d.Actions)))
	return resp
}

// RunIdle asks the council what to do after idleFor without user activity and does it.
func (s *Service) RunIdle(ctx context.Context, assistantID string, idleFor time.Duration) (council.Decision, error) {
	asst, room := s.Snapshot(assistantID)
	d := s.council.ProcessIdleReasoning(ctx, council.IdleContext{Assistant: asst, Room: room, IdleDuration: idleFor})
	if s.executor != nil {
		s.executor.Execute(ctx, assistantID, d.Actions)
	}
	s.applyMood(assistantID, d.Mood)
	return d, nil
}

func (s *Service) applyMood(assistantID, mood string) {
	if mood == "" {
		return
	}
	if err := s.assistants.SetMood(assistantID, mood, ""); err != nil {
		s.log.Warn("set mood failed", zap.String("assistant", assistantID), zap.Error(err))
	}
}

func (s *Service) remember(ctx context.Context, msg string, d council.Decision, persona *council.Persona) {
	if s.convo == nil {
		return
	}
	name := ""
	if persona != nil {
		name = persona.Name
	}
	if _, err := s.convo.Save(ctx, "user", msg, name, nil); err != nil {
		s.log.Warn("save user message failed", zap.Error(err))
		return
	}
	meta := map[string]interface{}{"mood": d.Mood, "confidence": d.Confidence, "actions": len(d.Actions)}
	if intent, ok := d.Metadata["primary_intent"]; ok {
		meta["primary_intent"] = intent
	}
	if _, err := s.convo.Save(ctx, "assistant", d.Response, name, meta); err != nil {
		s.log.Warn("save assistant message failed", zap.Error(err))
	}
}

// #endregion process

// #region snapshot

// Snapshot builds the council's view of the assistant and its room. Missing data falls
// back to an idle assistant at the center of the floor plan.
func (s *Service) Snapshot(assistantID string) (council.AssistantSnapshot, council.RoomSnapshot) {
	floor := geometry.NewBox(0, 0, defaultFloorWidth, defaultFloorHeight)
	var layout *floorplan.Layout
	if plan, err := s.plans.ActivePlan(); err != nil {
		s.log.Warn("no active floor plan", zap.Error(err))
	} else {
		floor = plan.Bounds()
		if l, err := s.plans.Layout(plan.ID); err != nil {
			s.log.Warn("load layout failed", zap.String("plan", plan.ID), zap.Error(err))
		} else {
			layout = &l
		}
	}

	a, err := s.assistants.Get(assistantID)
	if err != nil {
		s.log.Warn("assistant unavailable, using default snapshot", zap.String("assistant", assistantID), zap.Error(err))
		a = state.NewAssistant(assistantID, floor.Center())
	}
	asst := council.AssistantSnapshot{
		ID:           a.ID,
		Position:     a.Position,
		RoomID:       a.CurrentRoomID,
		Status:       a.CurrentAction,
		Mood:         a.Mood,
		Expression:   a.Expression,
		HeldObjectID: a.HeldObjectID,
		Energy:       a.Energy,
	}

	room := council.RoomSnapshot{ID: asst.RoomID, Bounds: floor, Objects: []council.RoomObject{}}
	if layout == nil {
		return asst, room
	}
	r, ok := layout.Room(a.CurrentRoomID)
	if !ok {
		if r, ok = layout.RoomAt(a.Position); !ok {
			return asst, room
		}
	}
	asst.RoomID = r.ID
	room = council.RoomSnapshot{ID: r.ID, Name: r.Name, Bounds: r.Bounds(), Objects: []council.RoomObject{}}
	for _, f := range layout.FurnitureIn(r.ID) {
		room.Objects = append(room.Objects, RoomObject(f))
	}
	return asst, room
}

// RoomObject converts a furniture record into the council's view of it.
func RoomObject(f floorplan.FurnitureItem) council.RoomObject {
	return council.RoomObject{
		ID:          f.ID,
		Name:        f.Name,
		Type:        f.Type,
		Position:    f.Center(),
		Size:        geometry.Size{Width: f.Width, Height: f.Height},
		Solid:       f.Solid,
		Movable:     f.Movable,
		Interactive: f.Interactive,
		Surface:     f.Surface,
		State:       f.State,
	}
}

// #endregion snapshot
