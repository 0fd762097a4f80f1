package logging

import "time"

// #region status

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusInfo    = "info"
)

// #endregion status

// #region action-entry

// ActionEntry is a single row in the action_log table: something the assistant did,
// or tried to do, and why.
type ActionEntry struct {
	ID          int64     `json:"id"`
	AssistantID string    `json:"assistant_id"`
	ActionType  string    `json:"action_type"` // "room_transition" | "door_opened" | "navigation_*" | council action types
	Target      string    `json:"target,omitempty"`
	Status      string    `json:"status"`
	DetailJSON  string    `json:"detail,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// #endregion action-entry
