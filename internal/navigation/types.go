package navigation

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/pathfinding"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

// #region errors

var (
	ErrAssistantNotFound = errors.New("assistant not found")
	ErrNoActiveFloorPlan = errors.New("no active floor plan")
	ErrRoomNotFound      = errors.New("room not found")
	ErrNoPath            = errors.New("no path found")
)

// #endregion errors

// #region collaborators

// AssistantStore is the assistant persistence the navigator writes through.
type AssistantStore interface {
	Get(id string) (state.Assistant, error)
	UpdatePosition(id string, pos geometry.Position, facing string) error
	UpdateRoom(id, roomID string) error
	StartMovement(id string, target geometry.Position, path []geometry.Position) error
	ClearMovement(id string) error
}

// FloorPlanStore gives read access to layouts and toggles doors.
type FloorPlanStore interface {
	ActivePlan() (floorplan.FloorPlan, error)
	Layout(planID string) (floorplan.Layout, error)
	SetDoorState(doorwayID string, state floorplan.DoorState) error
}

// #endregion collaborators

// #region session

// Status is the lifecycle stage of a navigation session.
type Status string

const (
	StatusCreated   Status = "created"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Session is a snapshot of one navigation request.
type Session struct {
	ID              string                       `json:"navigation_id"`
	AssistantID     string                       `json:"assistant_id"`
	FloorPlanID     string                       `json:"floor_plan_id"`
	Target          geometry.Position            `json:"target"`
	TargetRoomID    string                       `json:"target_room_id"`
	Path            []pathfinding.Waypoint       `json:"path"`
	RoomTransitions []pathfinding.RoomTransition `json:"room_transitions"`
	CurrentIndex    int                          `json:"current_index"`
	Status          Status                       `json:"status"`
	UserInitiated   bool                         `json:"user_initiated"`
	StartedAt       time.Time                    `json:"started_at"`
	CancelReason    string                       `json:"cancel_reason,omitempty"`
}

// #endregion session

// #region request-response

// Request asks for the assistant to walk to Target. An empty TargetRoomID means
// the assistant's current room.
type Request struct {
	AssistantID   string            `json:"assistant_id"`
	Target        geometry.Position `json:"target"`
	TargetRoomID  string            `json:"target_room_id,omitempty"`
	UserInitiated bool              `json:"user_initiated"`
}

// Response is always returned, successful or not.
type Response struct {
	Success           bool                         `json:"success"`
	NavigationID      string                       `json:"navigation_id,omitempty"`
	Path              []pathfinding.Waypoint       `json:"path"`
	RoomTransitions   []pathfinding.RoomTransition `json:"room_transitions"`
	DoorsOpened       []string                     `json:"doors_opened"`
	EstimatedDuration float64                      `json:"estimated_duration"`
	TotalDistance     float64                      `json:"total_distance"`
	Target            geometry.Position            `json:"target"`
	TargetRoomID      string                       `json:"target_room_id,omitempty"`
	Error             string                       `json:"error,omitempty"`
}

func failure(err error) Response {
	return Response{
		Path:            []pathfinding.Waypoint{},
		RoomTransitions: []pathfinding.RoomTransition{},
		DoorsOpened:     []string{},
		Error:           err.Error(),
	}
}

// #endregion request-response

// #region options

// Options tunes navigation pacing and geometry.
type Options struct {
	StepInterval     time.Duration // pause between waypoints
	ClampPadding     float64       // distance kept from room edges when clamping targets
	DoorwayProximity float64       // how close a waypoint must be to a doorway to count as crossing it
}

// DefaultOptions returns the stock navigation tuning.
func DefaultOptions() Options {
	return Options{
		StepInterval:     50 * time.Millisecond,
		ClampPadding:     20,
		DoorwayProximity: 30,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StepInterval <= 0 {
		o.StepInterval = d.StepInterval
	}
	if o.ClampPadding <= 0 {
		o.ClampPadding = d.ClampPadding
	}
	if o.DoorwayProximity <= 0 {
		o.DoorwayProximity = d.DoorwayProximity
	}
	return o
}

// #endregion options
