package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"response-service/internal/models"
)

// CreateDeliveryAttempt inserts a pending attempt row before the first send.
func (d *DB) CreateDeliveryAttempt(ctx context.Context, a models.DeliveryAttempt) error {
	query := `
	INSERT INTO delivery_attempts (
		id, request_id, recipient_id, channel, status, attempts, last_error, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := d.Pool.Exec(ctx, query,
		a.ID, a.RequestID, a.RecipientID, a.Channel, a.Status, a.Attempts, a.LastError, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery attempt: %w", err)
	}
	return nil
}

// UpdateDeliveryAttempt records the outcome of one send try.
func (d *DB) UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, status string, attempts int, lastError string) error {
	query := `
	UPDATE delivery_attempts
	SET status = $2, attempts = $3, last_error = $4, updated_at = $5
	WHERE id = $1`

	tag, err := d.Pool.Exec(ctx, query, id, status, attempts, lastError, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update delivery attempt %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no delivery attempt updated for id %s", id)
	}
	return nil
}

// GetDeliveryAttemptsByRequest returns all attempt rows for one dispatch,
// queryable for audit.
func (d *DB) GetDeliveryAttemptsByRequest(ctx context.Context, requestID string) ([]models.DeliveryAttempt, error) {
	reqID, err := uuid.Parse(requestID)
	if err != nil {
		return nil, fmt.Errorf("invalid request ID: %w", err)
	}

	query := `
	SELECT id, request_id, recipient_id, channel, status, attempts, last_error, created_at, updated_at
	FROM delivery_attempts
	WHERE request_id = $1
	ORDER BY created_at`

	rows, err := d.Pool.Query(ctx, query, reqID)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery attempts for request %s: %w", requestID, err)
	}
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		var a models.DeliveryAttempt
		if err := rows.Scan(&a.ID, &a.RequestID, &a.RecipientID, &a.Channel, &a.Status, &a.Attempts, &a.LastError, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}
