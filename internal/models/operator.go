package models

import "time"

// Operator roles. Supervisors and admins are the fallback pool when no
// skill-matched operator is available, and form the escalation groups.
const (
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// OperatorProfile is read-only from the orchestrator's perspective; the
// open-action counter is maintained by the record-keeping layer.
type OperatorProfile struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	Skills         []string  `json:"skills"`
	OpenActions    int       `json:"open_actions"`
	LastAssignedAt time.Time `json:"last_assigned_at"`
}

// HasSkill reports whether any of the required skills is in the operator's
// skill tags. An empty requirement matches nobody by skill.
func (o OperatorProfile) HasSkill(required []string) bool {
	for _, r := range required {
		for _, s := range o.Skills {
			if s == r {
				return true
			}
		}
	}
	return false
}
