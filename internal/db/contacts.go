package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNoContact is returned when a user has no address configured for a
// channel. Channels treat it as a permanent delivery error.
var ErrNoContact = fmt.Errorf("no contact configured")

// GetTelegramChatID returns the user's Telegram chat id.
func (d *DB) GetTelegramChatID(ctx context.Context, userID int) (int64, error) {
	var chatID *int64
	err := d.Pool.QueryRow(ctx,
		`SELECT telegram_chat_id FROM contacts WHERE user_id = $1`, userID,
	).Scan(&chatID)
	if err == pgx.ErrNoRows || (err == nil && chatID == nil) {
		return 0, fmt.Errorf("user %d telegram: %w", userID, ErrNoContact)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get telegram chat id for user %d: %w", userID, err)
	}
	return *chatID, nil
}

// GetEmailAddress returns the user's email address.
func (d *DB) GetEmailAddress(ctx context.Context, userID int) (string, error) {
	var email *string
	err := d.Pool.QueryRow(ctx,
		`SELECT email FROM contacts WHERE user_id = $1`, userID,
	).Scan(&email)
	if err == pgx.ErrNoRows || (err == nil && (email == nil || *email == "")) {
		return "", fmt.Errorf("user %d email: %w", userID, ErrNoContact)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get email for user %d: %w", userID, err)
	}
	return *email, nil
}
