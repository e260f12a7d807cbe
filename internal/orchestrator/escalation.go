package orchestrator

import (
	"response-service/internal/config"
	"response-service/internal/models"
)

// EscalationRule names the recipient groups and urgency tag for one risk
// level.
type EscalationRule struct {
	Groups  []string
	Urgency string
}

// EscalationPolicy maps risk levels to extra recipient groups. It is built
// once from configuration and never mutated at runtime.
type EscalationPolicy struct {
	rules map[models.RiskLevel]EscalationRule
}

// NewEscalationPolicy builds the policy from the configured escalation
// levels and group list. The urgency tag follows the level's priority
// mapping.
func NewEscalationPolicy(cfg config.Config) EscalationPolicy {
	rules := make(map[models.RiskLevel]EscalationRule)
	for _, lvl := range cfg.Escalation.Levels {
		rules[lvl] = EscalationRule{
			Groups:  cfg.Escalation.Groups,
			Urgency: string(cfg.Orchestrator.PriorityMap[lvl]),
		}
	}
	return EscalationPolicy{rules: rules}
}

// Escalate returns the recipient group selectors and urgency tag for a risk
// level. It is total: levels without a rule get an empty group list and no
// urgency, never an error.
func (p EscalationPolicy) Escalate(level models.RiskLevel) ([]string, string) {
	rule, ok := p.rules[level]
	if !ok {
		return nil, ""
	}
	groups := make([]string, len(rule.Groups))
	copy(groups, rule.Groups)
	return groups, rule.Urgency
}
