package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"response-service/internal/models"
)

// FindOpenAction returns the most recent open or in-progress corrective
// action for the asset created at or after the window start, or nil when
// none exists.
func (d *DB) FindOpenAction(ctx context.Context, assetID string, since time.Time) (*models.CorrectiveAction, error) {
	query := `
	SELECT id, asset_id, priority, status, assigned_to, assessment_id, description, created_at
	FROM corrective_actions
	WHERE asset_id = $1
	  AND status IN ($2, $3)
	  AND created_at >= $4
	ORDER BY created_at DESC
	LIMIT 1`

	var a models.CorrectiveAction
	err := d.Pool.QueryRow(ctx, query, assetID, models.ActionOpen, models.ActionInProgress, since).Scan(
		&a.ID, &a.AssetID, &a.Priority, &a.Status, &a.AssignedTo, &a.AssessmentID, &a.Description, &a.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open action for asset %s: %w", assetID, err)
	}
	return &a, nil
}

// CreateAction inserts a corrective action. The unique index on
// assessment_id makes creation idempotent against upstream redelivery: when
// an action for the same assessment already exists, the existing row is
// returned and created is false.
func (d *DB) CreateAction(ctx context.Context, a models.CorrectiveAction) (models.CorrectiveAction, bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO corrective_actions (
		id, asset_id, priority, status, assigned_to, assessment_id, description, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (assessment_id) DO NOTHING
	RETURNING id`

	var id uuid.UUID
	err := d.Pool.QueryRow(ctx, query,
		a.ID, a.AssetID, a.Priority, a.Status, a.AssignedTo, a.AssessmentID, a.Description, a.CreatedAt,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		// Conflict: an action is already linked to this assessment.
		if a.AssessmentID == nil {
			return models.CorrectiveAction{}, false, fmt.Errorf("insert for asset %s returned no row", a.AssetID)
		}
		existing, ferr := d.getActionByAssessment(ctx, *a.AssessmentID)
		if ferr != nil {
			return models.CorrectiveAction{}, false, ferr
		}
		return existing, false, nil
	}
	if err != nil {
		return models.CorrectiveAction{}, false, fmt.Errorf("failed to create action for asset %s: %w", a.AssetID, err)
	}
	return a, true, nil
}

func (d *DB) getActionByAssessment(ctx context.Context, assessmentID uuid.UUID) (models.CorrectiveAction, error) {
	query := `
	SELECT id, asset_id, priority, status, assigned_to, assessment_id, description, created_at
	FROM corrective_actions
	WHERE assessment_id = $1`

	var a models.CorrectiveAction
	err := d.Pool.QueryRow(ctx, query, assessmentID).Scan(
		&a.ID, &a.AssetID, &a.Priority, &a.Status, &a.AssignedTo, &a.AssessmentID, &a.Description, &a.CreatedAt,
	)
	if err != nil {
		return models.CorrectiveAction{}, fmt.Errorf("failed to get action for assessment %s: %w", assessmentID, err)
	}
	return a, nil
}

// GetAction retrieves a corrective action by its UUID string.
func (d *DB) GetAction(ctx context.Context, idStr string) (models.CorrectiveAction, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return models.CorrectiveAction{}, fmt.Errorf("invalid action ID: %w", err)
	}

	query := `
	SELECT id, asset_id, priority, status, assigned_to, assessment_id, description, created_at
	FROM corrective_actions
	WHERE id = $1`

	var a models.CorrectiveAction
	err = d.Pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.AssetID, &a.Priority, &a.Status, &a.AssignedTo, &a.AssessmentID, &a.Description, &a.CreatedAt,
	)
	if err != nil {
		return models.CorrectiveAction{}, fmt.Errorf("failed to get action %s: %w", idStr, err)
	}
	return a, nil
}

// GetActionsByAsset returns all corrective actions for an asset, newest first.
func (d *DB) GetActionsByAsset(ctx context.Context, assetID string, limit, offset int) ([]models.CorrectiveAction, error) {
	query := `
	SELECT id, asset_id, priority, status, assigned_to, assessment_id, description, created_at
	FROM corrective_actions
	WHERE asset_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	rows, err := d.Pool.Query(ctx, query, assetID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get actions for asset %s: %w", assetID, err)
	}
	defer rows.Close()

	var actions []models.CorrectiveAction
	for rows.Next() {
		var a models.CorrectiveAction
		if err := rows.Scan(&a.ID, &a.AssetID, &a.Priority, &a.Status, &a.AssignedTo, &a.AssessmentID, &a.Description, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}
