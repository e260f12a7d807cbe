package db

import (
	"context"
	"fmt"

	"response-service/internal/models"
)

// CreateInAppNotification persists a notification record for the in-app
// channel; the end user reads it later through the feed API.
func (d *DB) CreateInAppNotification(ctx context.Context, n models.InAppNotification) error {
	query := `
	INSERT INTO inapp_notifications (
		id, recipient_id, subject, body, urgency, read, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := d.Pool.Exec(ctx, query,
		n.ID, n.RecipientID, n.Subject, n.Body, n.Urgency, n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create in-app notification: %w", err)
	}
	return nil
}

// GetInAppNotificationsByUser returns a user's notification feed, newest
// first.
func (d *DB) GetInAppNotificationsByUser(ctx context.Context, userID, limit, offset int) ([]models.InAppNotification, error) {
	query := `
	SELECT id, recipient_id, subject, body, urgency, read, created_at
	FROM inapp_notifications
	WHERE recipient_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	rows, err := d.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications for user %d: %w", userID, err)
	}
	defer rows.Close()

	var list []models.InAppNotification
	for rows.Next() {
		var n models.InAppNotification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Subject, &n.Body, &n.Urgency, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, nil
}
