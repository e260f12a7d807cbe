package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority of a corrective action, derived from the triggering risk level.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Action status values. Only open and in_progress count against the dedup
// window.
const (
	ActionOpen       = "open"
	ActionInProgress = "in_progress"
	ActionDone       = "done"
	ActionCancelled  = "cancelled"
)

// CorrectiveAction is the work item created in response to a qualifying
// assessment. AssessmentID is nil for manually created actions; when set it
// is unique, which makes creation idempotent against upstream redelivery.
type CorrectiveAction struct {
	ID           uuid.UUID  `json:"id"`
	AssetID      string     `json:"asset_id"`
	Priority     Priority   `json:"priority"`
	Status       string     `json:"status"`
	AssignedTo   int        `json:"assigned_to"`
	AssessmentID *uuid.UUID `json:"assessment_id,omitempty"`
	Description  string     `json:"description,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
