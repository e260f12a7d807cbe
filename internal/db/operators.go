package db

import (
	"context"
	"fmt"
	"time"

	"response-service/internal/models"
)

// GetActiveOperators returns every active operator profile in stable id
// order; selection logic lives in the orchestrator.
func (d *DB) GetActiveOperators(ctx context.Context) ([]models.OperatorProfile, error) {
	query := `
	SELECT id, name, role, active, skills, open_actions, last_assigned_at
	FROM operators
	WHERE active = TRUE
	ORDER BY id`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active operators: %w", err)
	}
	defer rows.Close()

	var ops []models.OperatorProfile
	for rows.Next() {
		var o models.OperatorProfile
		if err := rows.Scan(&o.ID, &o.Name, &o.Role, &o.Active, &o.Skills, &o.OpenActions, &o.LastAssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operator: %w", err)
		}
		ops = append(ops, o)
	}
	return ops, nil
}

// GetActiveByRoles returns active operators holding any of the given roles,
// used for escalation group fan-out.
func (d *DB) GetActiveByRoles(ctx context.Context, roles []string) ([]models.OperatorProfile, error) {
	query := `
	SELECT id, name, role, active, skills, open_actions, last_assigned_at
	FROM operators
	WHERE active = TRUE AND role = ANY($1)
	ORDER BY id`

	rows, err := d.Pool.Query(ctx, query, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to get operators by roles %v: %w", roles, err)
	}
	defer rows.Close()

	var ops []models.OperatorProfile
	for rows.Next() {
		var o models.OperatorProfile
		if err := rows.Scan(&o.ID, &o.Name, &o.Role, &o.Active, &o.Skills, &o.OpenActions, &o.LastAssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operator: %w", err)
		}
		ops = append(ops, o)
	}
	return ops, nil
}

// MarkAssigned bumps the operator's open-action counter and last-assigned
// timestamp after a corrective action has been created for them. Callers
// hold the per-asset lock, so the counter never races with dedup decisions.
func (d *DB) MarkAssigned(ctx context.Context, operatorID int, at time.Time) error {
	query := `
	UPDATE operators
	SET open_actions = open_actions + 1, last_assigned_at = $2
	WHERE id = $1`

	tag, err := d.Pool.Exec(ctx, query, operatorID, at)
	if err != nil {
		return fmt.Errorf("failed to mark operator %d assigned: %w", operatorID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no operator updated for id %d", operatorID)
	}
	return nil
}
