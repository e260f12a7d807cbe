package db

import (
	"context"
	"fmt"

	"response-service/internal/models"
)

// GetPreferences returns the explicit preference records for one user and
// category. Channels without a record are considered enabled; that default
// is applied by the resolver, not here.
func (d *DB) GetPreferences(ctx context.Context, userID int, category string) ([]models.Preference, error) {
	query := `
	SELECT user_id, category, channel, enabled
	FROM notification_preferences
	WHERE user_id = $1 AND category = $2`

	rows, err := d.Pool.Query(ctx, query, userID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences for user %d: %w", userID, err)
	}
	defer rows.Close()

	var prefs []models.Preference
	for rows.Next() {
		var p models.Preference
		if err := rows.Scan(&p.UserID, &p.Category, &p.Channel, &p.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, nil
}

// GetPreferencesByUser returns all preference records for a user.
func (d *DB) GetPreferencesByUser(ctx context.Context, userID int) ([]models.Preference, error) {
	query := `
	SELECT user_id, category, channel, enabled
	FROM notification_preferences
	WHERE user_id = $1
	ORDER BY category, channel`

	rows, err := d.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences for user %d: %w", userID, err)
	}
	defer rows.Close()

	var prefs []models.Preference
	for rows.Next() {
		var p models.Preference
		if err := rows.Scan(&p.UserID, &p.Category, &p.Channel, &p.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, nil
}

// UpsertPreference creates or replaces one preference record.
func (d *DB) UpsertPreference(ctx context.Context, p models.Preference) error {
	query := `
	INSERT INTO notification_preferences (user_id, category, channel, enabled)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, category, channel)
	DO UPDATE SET enabled = EXCLUDED.enabled`

	if _, err := d.Pool.Exec(ctx, query, p.UserID, p.Category, p.Channel, p.Enabled); err != nil {
		return fmt.Errorf("failed to upsert preference for user %d: %w", p.UserID, err)
	}
	return nil
}
