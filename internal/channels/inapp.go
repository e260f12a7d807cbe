package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"response-service/internal/models"
)

// InAppStore persists the notification records the in-app channel writes.
type InAppStore interface {
	CreateInAppNotification(ctx context.Context, n models.InAppNotification) error
}

// Pusher delivers live payloads to a user's open connections.
type Pusher interface {
	SendToUser(userID int, message []byte)
}

// InApp writes a persisted notification record the user reads later and
// pushes it live over any open WebSocket connections. The live push is
// best-effort; only the store write decides success.
type InApp struct {
	store  InAppStore
	pusher Pusher
	logger *logrus.Logger
}

func NewInApp(store InAppStore, pusher Pusher, logger *logrus.Logger) *InApp {
	return &InApp{store: store, pusher: pusher, logger: logger}
}

func (c *InApp) Name() string { return "inapp" }

func (c *InApp) Validate() error {
	if c.store == nil {
		return fmt.Errorf("inapp channel requires a notification store")
	}
	return nil
}

func (c *InApp) Send(ctx context.Context, recipientID int, msg models.Message) error {
	rec := models.InAppNotification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Subject:     msg.Subject,
		Body:        msg.Body,
		Urgency:     msg.Urgency,
		CreatedAt:   time.Now(),
	}
	if err := c.store.CreateInAppNotification(ctx, rec); err != nil {
		// Store hiccups are retryable.
		return Transient(err)
	}

	if c.pusher != nil {
		payload, err := json.Marshal(rec)
		if err == nil {
			c.pusher.SendToUser(recipientID, payload)
		} else {
			c.logger.WithField("recipient_id", recipientID).Warnf("in-app push marshal failed: %v", err)
		}
	}
	return nil
}
