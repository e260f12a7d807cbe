// Package orchestrator turns qualifying risk assessments into at most one
// corrective action per asset and dedup window, assigns an operator, and
// hands the resulting notifications to the dispatcher. Business skips are
// first-class decisions, not errors; only store failures propagate to the
// caller so the assessment can be retried upstream.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"response-service/internal/config"
	"response-service/internal/models"
)

// ErrContractViolation marks an assessment that breaks the upstream data
// contract (unknown risk level, missing asset or assessment id). It is
// fatal for that single event only.
var ErrContractViolation = errors.New("assessment violates data contract")

// Decision outcomes.
const (
	OutcomeActed   = "acted"
	OutcomeSkipped = "skipped"
)

// Skip reasons.
const (
	ReasonBelowThreshold      = "below_threshold"
	ReasonDuplicateOpenAction = "duplicate_open_action"
	ReasonNoOperatorAvailable = "no_operator_available"
)

// Decision is the orchestrator's answer for one assessment. Action is set
// only for acted decisions.
type Decision struct {
	Outcome string                   `json:"outcome"`
	Reason  string                   `json:"reason,omitempty"`
	Action  *models.CorrectiveAction `json:"action,omitempty"`
}

// ActionStore is the transactional corrective-action store. CreateAction
// must be idempotent against the assessment link.
type ActionStore interface {
	FindOpenAction(ctx context.Context, assetID string, since time.Time) (*models.CorrectiveAction, error)
	CreateAction(ctx context.Context, a models.CorrectiveAction) (models.CorrectiveAction, bool, error)
}

// OperatorStore exposes the operator profiles the selection algorithm
// reads.
type OperatorStore interface {
	GetActiveOperators(ctx context.Context) ([]models.OperatorProfile, error)
	GetActiveByRoles(ctx context.Context, roles []string) ([]models.OperatorProfile, error)
	MarkAssigned(ctx context.Context, operatorID int, at time.Time) error
}

// Notifier is the dispatcher seam; it never returns an error.
type Notifier interface {
	Dispatch(ctx context.Context, msg models.Message, targets []models.Target) models.DeliveryReport
}

type Orchestrator struct {
	actions   ActionStore
	operators OperatorStore
	notifier  Notifier
	policy    EscalationPolicy
	cfg       config.Config
	logger    *logrus.Logger
	locks     *assetLocks
}

func New(actions ActionStore, operators OperatorStore, notifier Notifier, cfg config.Config, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		actions:   actions,
		operators: operators,
		notifier:  notifier,
		policy:    NewEscalationPolicy(cfg),
		cfg:       cfg,
		logger:    logger,
		locks:     newAssetLocks(),
	}
}

// OnAssessment decides what to do with one assessment. It returns a
// Decision for every contract-valid assessment; an error means either a
// contract violation or a store failure, in which case the event should be
// redelivered by the upstream trigger.
func (o *Orchestrator) OnAssessment(ctx context.Context, a models.RiskAssessment) (Decision, error) {
	assessmentID, level, err := o.validate(a)
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"asset_id":      a.AssetID,
			"assessment_id": a.ID,
			"risk_level":    a.RiskLevel,
		}).Errorf("Assessment rejected: %v", err)
		return Decision{}, err
	}
	// Wire payloads may carry any casing; everything after validation reads
	// the canonical level.
	a.RiskLevel = level

	fields := logrus.Fields{
		"asset_id":      a.AssetID,
		"assessment_id": a.ID,
		"risk_level":    a.RiskLevel,
	}

	if a.RiskLevel.Rank() < o.cfg.Orchestrator.MinRiskLevel.Rank() {
		o.logger.WithFields(fields).Infof("Skipped: %s", ReasonBelowThreshold)
		return Decision{Outcome: OutcomeSkipped, Reason: ReasonBelowThreshold}, nil
	}

	decision, operator, replay, err := o.decide(ctx, a, assessmentID)
	if err != nil {
		return Decision{}, err
	}
	if decision.Outcome == OutcomeSkipped {
		logLevel := logrus.InfoLevel
		if decision.Reason == ReasonNoOperatorAvailable {
			logLevel = logrus.WarnLevel
		}
		o.logger.WithFields(fields).Logf(logLevel, "Skipped: %s", decision.Reason)
		return decision, nil
	}
	if replay {
		// Redelivered assessment; the action and its notifications already
		// happened.
		o.logger.WithFields(fields).Infof("Replay of assessment, action %s already exists", decision.Action.ID)
		return decision, nil
	}

	o.logger.WithFields(fields).Infof("Action %s created with priority %s, assigned to operator %d",
		decision.Action.ID, decision.Action.Priority, operator.ID)
	o.notify(ctx, a, *decision.Action, operator)
	return decision, nil
}

func (o *Orchestrator) validate(a models.RiskAssessment) (uuid.UUID, models.RiskLevel, error) {
	if a.AssetID == "" {
		return uuid.Nil, "", fmt.Errorf("%w: missing asset id", ErrContractViolation)
	}
	level, err := models.ParseRiskLevel(string(a.RiskLevel))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	if math.IsNaN(a.Probability) || a.Probability < 0 || a.Probability > 1 {
		return uuid.Nil, "", fmt.Errorf("%w: failure probability %f out of range", ErrContractViolation, a.Probability)
	}
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: invalid assessment id %q", ErrContractViolation, a.ID)
	}
	return id, level, nil
}

// decide runs the dedup check, operator selection, and action creation
// under the asset's lock. Notifications happen after the lock is released.
func (o *Orchestrator) decide(ctx context.Context, a models.RiskAssessment, assessmentID uuid.UUID) (Decision, models.OperatorProfile, bool, error) {
	unlock := o.locks.Lock(a.AssetID)
	defer unlock()

	window := time.Duration(o.cfg.Orchestrator.DedupWindowDays) * 24 * time.Hour
	existing, err := o.actions.FindOpenAction(ctx, a.AssetID, time.Now().Add(-window))
	if err != nil {
		return Decision{}, models.OperatorProfile{}, false, fmt.Errorf("dedup lookup for asset %s: %w", a.AssetID, err)
	}
	if existing != nil {
		return Decision{Outcome: OutcomeSkipped, Reason: ReasonDuplicateOpenAction}, models.OperatorProfile{}, false, nil
	}

	operator, found, err := o.selectOperator(ctx, a.RequiredSkills)
	if err != nil {
		return Decision{}, models.OperatorProfile{}, false, err
	}
	if !found {
		return Decision{Outcome: OutcomeSkipped, Reason: ReasonNoOperatorAvailable}, models.OperatorProfile{}, false, nil
	}

	action := models.CorrectiveAction{
		AssetID:      a.AssetID,
		Priority:     o.cfg.Orchestrator.PriorityMap[a.RiskLevel],
		Status:       models.ActionOpen,
		AssignedTo:   operator.ID,
		AssessmentID: &assessmentID,
		Description:  a.RecommendedAction,
	}
	created, isNew, err := o.actions.CreateAction(ctx, action)
	if err != nil {
		return Decision{}, models.OperatorProfile{}, false, fmt.Errorf("create action for asset %s: %w", a.AssetID, err)
	}
	if !isNew {
		return Decision{Outcome: OutcomeActed, Action: &created}, operator, true, nil
	}

	if err := o.operators.MarkAssigned(ctx, operator.ID, created.CreatedAt); err != nil {
		// The action exists; a stale counter is recoverable and must not
		// fail the decision.
		o.logger.WithField("operator_id", operator.ID).Errorf("MarkAssigned failed: %v", err)
	}
	return Decision{Outcome: OutcomeActed, Action: &created}, operator, false, nil
}

// selectOperator applies the ordered fallback: skill-matched active
// operator with the fewest open actions, then any active supervisor or
// admin. Ties break on earliest last-assigned timestamp, then id.
func (o *Orchestrator) selectOperator(ctx context.Context, requiredSkills []string) (models.OperatorProfile, bool, error) {
	ops, err := o.operators.GetActiveOperators(ctx)
	if err != nil {
		return models.OperatorProfile{}, false, fmt.Errorf("load operators: %w", err)
	}

	var matched []models.OperatorProfile
	for _, op := range ops {
		if op.HasSkill(requiredSkills) {
			matched = append(matched, op)
		}
	}
	if len(matched) == 0 {
		for _, op := range ops {
			if op.Role == models.RoleSupervisor || op.Role == models.RoleAdmin {
				matched = append(matched, op)
			}
		}
	}
	if len(matched) == 0 {
		return models.OperatorProfile{}, false, nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].OpenActions != matched[j].OpenActions {
			return matched[i].OpenActions < matched[j].OpenActions
		}
		if !matched[i].LastAssignedAt.Equal(matched[j].LastAssignedAt) {
			return matched[i].LastAssignedAt.Before(matched[j].LastAssignedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return matched[0], true, nil
}

// notify sends the assignee notification and, when the escalation policy
// names groups for this level, the escalation fan-out. Delivery failures
// never undo the decision; reports are logged and the attempt rows carry
// the detail.
func (o *Orchestrator) notify(ctx context.Context, a models.RiskAssessment, action models.CorrectiveAction, operator models.OperatorProfile) {
	subject := fmt.Sprintf("Corrective action assigned: asset %s", a.AssetID)
	body := fmt.Sprintf(
		"Asset: %s\nRisk level: %s\nFailure probability: %.2f\nPriority: %s\nAction: %s",
		a.AssetID, a.RiskLevel, a.Probability, action.Priority, action.Description,
	)
	if a.DaysToFailure != nil {
		body += fmt.Sprintf("\nEstimated days to failure: %d", *a.DaysToFailure)
	}

	assignMsg := models.Message{
		RequestID: uuid.New(),
		Category:  models.CategoryActionAssigned,
		Subject:   subject,
		Body:      body,
		AssetID:   a.AssetID,
	}
	report := o.notifier.Dispatch(ctx, assignMsg, []models.Target{
		{RecipientID: operator.ID, Category: models.CategoryActionAssigned},
	})
	o.logReport(a, report)

	groups, urgency := o.policy.Escalate(a.RiskLevel)
	if len(groups) == 0 {
		return
	}
	recipients, err := o.operators.GetActiveByRoles(ctx, groups)
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"asset_id":      a.AssetID,
			"assessment_id": a.ID,
		}).Errorf("Escalation recipient lookup failed: %v", err)
		return
	}
	var targets []models.Target
	for _, r := range recipients {
		if r.ID == operator.ID {
			continue
		}
		targets = append(targets, models.Target{RecipientID: r.ID, Category: models.CategoryCriticalAlert})
	}
	if len(targets) == 0 {
		if len(recipients) == 0 {
			return
		}
		// The assignee is the only member of the escalation group. They
		// already got the assignment message, but the alert category has its
		// own preference routing, so it still goes out.
		targets = []models.Target{{RecipientID: operator.ID, Category: models.CategoryCriticalAlert}}
	}
	escMsg := models.Message{
		RequestID: uuid.New(),
		Category:  models.CategoryCriticalAlert,
		Subject:   fmt.Sprintf("%s risk on asset %s", a.RiskLevel, a.AssetID),
		Body:      body + fmt.Sprintf("\nAssigned to: %s (operator %d)", operator.Name, operator.ID),
		Urgency:   urgency,
		AssetID:   a.AssetID,
	}
	report = o.notifier.Dispatch(ctx, escMsg, targets)
	o.logReport(a, report)
}

func (o *Orchestrator) logReport(a models.RiskAssessment, report models.DeliveryReport) {
	o.logger.WithFields(logrus.Fields{
		"asset_id":      a.AssetID,
		"assessment_id": a.ID,
		"request_id":    report.RequestID,
		"sent":          report.Sent,
		"failed":        report.Failed,
		"pending":       report.Pending,
	}).Info("Dispatch report")
}
