package state

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

// ErrNotFound is returned when no assistant row matches the requested id.
var ErrNotFound = errors.New("assistant not found")

// #region action-constants

const (
	ActionIdle     = "idle"
	ActionMoving   = "moving"
	ActionResting  = "resting"
	ActionHolding  = "holding"
	ActionThinking = "thinking"
)

// #endregion action-constants

// #region assistant

// Assistant is the persisted state of one companion.
type Assistant struct {
	ID             string              `json:"id"`
	FloorPlanID    string              `json:"floor_plan_id,omitempty"`
	Position       geometry.Position   `json:"position"`
	CurrentRoomID  string              `json:"current_room_id,omitempty"`
	Facing         string              `json:"facing"`
	CurrentAction  string              `json:"current_action"`
	Mood           string              `json:"mood"`
	Expression     string              `json:"expression"`
	HeldObjectID   string              `json:"held_object_id,omitempty"`
	MovementTarget *geometry.Position  `json:"movement_target,omitempty"`
	MovementPath   []geometry.Position `json:"movement_path,omitempty"`
	Energy         float64             `json:"energy"` // 0..1
	UpdatedAt      time.Time           `json:"updated_at"`
}

// IsMoving reports whether a movement target is set.
func (a Assistant) IsMoving() bool {
	return a.MovementTarget != nil
}

// IsHolding reports whether the assistant holds an object.
func (a Assistant) IsHolding() bool {
	return a.HeldObjectID != ""
}

// NewAssistant returns an idle, content assistant with full energy.
func NewAssistant(id string, pos geometry.Position) Assistant {
	return Assistant{
		ID:            id,
		Position:      pos,
		Facing:        "down",
		CurrentAction: ActionIdle,
		Mood:          "content",
		Expression:    "neutral",
		Energy:        1.0,
	}
}

// #endregion assistant
