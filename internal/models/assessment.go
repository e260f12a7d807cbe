package models

import (
	"fmt"
	"strings"
	"time"
)

// RiskLevel is the severity classification produced by the upstream scorer.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel normalizes and validates a wire-format risk level. Anything
// outside the four known values is a data contract violation from upstream.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow, nil
	case RiskMedium:
		return RiskMedium, nil
	case RiskHigh:
		return RiskHigh, nil
	case RiskCritical:
		return RiskCritical, nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}

// Rank orders levels for threshold comparison. Unknown levels rank 0.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// RiskAssessment is the immutable record emitted by the failure-prediction
// scorer. The orchestrator reads it once and never mutates it.
type RiskAssessment struct {
	ID                string                 `json:"assessment_id"`
	AssetID           string                 `json:"asset_id"`
	Timestamp         time.Time              `json:"timestamp"`
	Probability       float64                `json:"failure_probability"`
	RiskLevel         RiskLevel              `json:"risk_level"`
	Confidence        float64                `json:"confidence"`
	Features          map[string]interface{} `json:"features,omitempty"`
	RecommendedAction string                 `json:"recommended_action,omitempty"`
	DaysToFailure     *int                   `json:"estimated_days_to_failure,omitempty"`
	RequiredSkills    []string               `json:"required_skills,omitempty"`
}
