package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification categories used by preference resolution.
const (
	CategoryActionAssigned = "action_assigned"
	CategoryCriticalAlert  = "critical_alert"
)

// Message is the payload handed to the dispatcher. RequestID groups all
// delivery attempts spawned by one dispatch for audit queries.
type Message struct {
	RequestID uuid.UUID `json:"request_id"`
	Category  string    `json:"category"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Urgency   string    `json:"urgency,omitempty"`
	AssetID   string    `json:"asset_id,omitempty"`
}

// Target is one (recipient, category) pair of a dispatch call.
type Target struct {
	RecipientID int
	Category    string
}

// Preference is an explicit per-user, per-category, per-channel switch.
// Absence of a record means the channel is enabled.
type Preference struct {
	UserID   int    `json:"user_id"`
	Category string `json:"category"`
	Channel  string `json:"channel"`
	Enabled  bool   `json:"enabled"`
}

// Delivery attempt statuses. An attempt is terminal once sent, or once
// failed with its retries exhausted.
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// DeliveryAttempt tracks one send of one message over one channel to one
// recipient, updated in place through retries.
type DeliveryAttempt struct {
	ID          uuid.UUID `json:"id"`
	RequestID   uuid.UUID `json:"request_id"`
	RecipientID int       `json:"recipient_id"`
	Channel     string    `json:"channel"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeliveryReport aggregates per-channel outcomes of one dispatch. It is
// informational only; orchestration success never depends on it.
type DeliveryReport struct {
	RequestID uuid.UUID      `json:"request_id"`
	Sent      map[string]int `json:"sent"`
	Failed    map[string]int `json:"failed"`
	Pending   int            `json:"pending"`
}

// NewDeliveryReport returns an empty report for the given request.
func NewDeliveryReport(requestID uuid.UUID) DeliveryReport {
	return DeliveryReport{
		RequestID: requestID,
		Sent:      make(map[string]int),
		Failed:    make(map[string]int),
	}
}

// InAppNotification is the persisted record written by the in-app channel
// and read back through the notification feed API.
type InAppNotification struct {
	ID          uuid.UUID `json:"id"`
	RecipientID int       `json:"recipient_id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Urgency     string    `json:"urgency,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
