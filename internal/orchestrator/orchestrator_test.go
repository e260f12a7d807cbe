package orchestrator

import (
	"context"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"response-service/internal/config"
	"response-service/internal/models"
)

type fakeActions struct {
	mu           sync.Mutex
	actions      []models.CorrectiveAction
	byAssessment map[uuid.UUID]models.CorrectiveAction
	findErr      error
	createErr    error
}

func newFakeActions() *fakeActions {
	return &fakeActions{byAssessment: make(map[uuid.UUID]models.CorrectiveAction)}
}

func (f *fakeActions) FindOpenAction(_ context.Context, assetID string, since time.Time) (*models.CorrectiveAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for i := len(f.actions) - 1; i >= 0; i-- {
		a := f.actions[i]
		if a.AssetID == assetID && (a.Status == models.ActionOpen || a.Status == models.ActionInProgress) && !a.CreatedAt.Before(since) {
			return &a, nil
		}
	}
	return nil, nil
}

func (f *fakeActions) CreateAction(_ context.Context, a models.CorrectiveAction) (models.CorrectiveAction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.CorrectiveAction{}, false, f.createErr
	}
	if a.AssessmentID != nil {
		if existing, ok := f.byAssessment[*a.AssessmentID]; ok {
			return existing, false, nil
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	f.actions = append(f.actions, a)
	if a.AssessmentID != nil {
		f.byAssessment[*a.AssessmentID] = a
	}
	return a, true, nil
}

func (f *fakeActions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

type fakeOperators struct {
	mu       sync.Mutex
	ops      []models.OperatorProfile
	loadErr  error
	assigned []int
}

func (f *fakeOperators) GetActiveOperators(context.Context) ([]models.OperatorProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []models.OperatorProfile
	for _, o := range f.ops {
		if o.Active {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOperators) GetActiveByRoles(_ context.Context, roles []string) ([]models.OperatorProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.OperatorProfile
	for _, o := range f.ops {
		if !o.Active {
			continue
		}
		for _, r := range roles {
			if o.Role == r {
				out = append(out, o)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeOperators) MarkAssigned(_ context.Context, operatorID int, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned = append(f.assigned, operatorID)
	for i := range f.ops {
		if f.ops[i].ID == operatorID {
			f.ops[i].OpenActions++
		}
	}
	return nil
}

type dispatchCall struct {
	msg     models.Message
	targets []models.Target
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (f *fakeNotifier) Dispatch(_ context.Context, msg models.Message, targets []models.Target) models.DeliveryReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{msg: msg, targets: targets})
	return models.NewDeliveryReport(msg.RequestID)
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Orchestrator.DedupWindowDays = 7
	cfg.Orchestrator.MinRiskLevel = models.RiskMedium
	cfg.Orchestrator.PriorityMap = map[models.RiskLevel]models.Priority{
		models.RiskLow:      models.PriorityNormal,
		models.RiskMedium:   models.PriorityNormal,
		models.RiskHigh:     models.PriorityHigh,
		models.RiskCritical: models.PriorityUrgent,
	}
	cfg.Escalation.Levels = []models.RiskLevel{models.RiskCritical}
	cfg.Escalation.Groups = []string{models.RoleSupervisor}
	return cfg
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func assessment(assetID string, level models.RiskLevel) models.RiskAssessment {
	return models.RiskAssessment{
		ID:             uuid.NewString(),
		AssetID:        assetID,
		Timestamp:      time.Now(),
		Probability:    0.9,
		RiskLevel:      level,
		Confidence:     0.8,
		RequiredSkills: []string{"hydraulics"},
	}
}

func defaultOperators() *fakeOperators {
	return &fakeOperators{ops: []models.OperatorProfile{
		{ID: 1, Name: "O1", Role: models.RoleOperator, Active: true, Skills: []string{"hydraulics"}},
		{ID: 2, Name: "S1", Role: models.RoleSupervisor, Active: true},
	}}
}

func newTestOrchestrator(actions *fakeActions, operators *fakeOperators, notifier *fakeNotifier) *Orchestrator {
	return New(actions, operators, notifier, testConfig(), testLogger())
}

func TestOnAssessmentBelowThreshold(t *testing.T) {
	actions := newFakeActions()
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(actions, defaultOperators(), notifier)

	d, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskLow))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, d.Outcome)
	require.Equal(t, ReasonBelowThreshold, d.Reason)
	require.Zero(t, actions.count())
	require.Zero(t, notifier.callCount())
}

func TestOnAssessmentContractViolations(t *testing.T) {
	o := newTestOrchestrator(newFakeActions(), defaultOperators(), &fakeNotifier{})

	cases := []struct {
		name string
		mut  func(*models.RiskAssessment)
	}{
		{"unknown level", func(a *models.RiskAssessment) { a.RiskLevel = "catastrophic" }},
		{"missing asset", func(a *models.RiskAssessment) { a.AssetID = "" }},
		{"bad probability", func(a *models.RiskAssessment) { a.Probability = 1.5 }},
		{"nan probability", func(a *models.RiskAssessment) { a.Probability = math.NaN() }},
		{"bad assessment id", func(a *models.RiskAssessment) { a.ID = "not-a-uuid" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := assessment("A1", models.RiskHigh)
			tc.mut(&a)
			_, err := o.OnAssessment(context.Background(), a)
			require.ErrorIs(t, err, ErrContractViolation)
		})
	}
}

func TestOnAssessmentTotality(t *testing.T) {
	for _, lvl := range []models.RiskLevel{models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical} {
		o := newTestOrchestrator(newFakeActions(), defaultOperators(), &fakeNotifier{})
		d, err := o.OnAssessment(context.Background(), assessment("A-"+string(lvl), lvl))
		require.NoError(t, err, "level %s", lvl)
		require.NotEmpty(t, d.Outcome, "level %s", lvl)
	}
}

func TestUppercaseRiskLevelIsNormalized(t *testing.T) {
	actions := newFakeActions()
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(actions, defaultOperators(), notifier)

	a := assessment("A1", models.RiskCritical)
	a.RiskLevel = "CRITICAL"
	d, err := o.OnAssessment(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, OutcomeActed, d.Outcome)
	require.NotNil(t, d.Action)
	require.Equal(t, models.PriorityUrgent, d.Action.Priority)
	require.Equal(t, 1, actions.count())
	// Assignment plus escalation; the raw casing must not suppress either.
	require.Equal(t, 2, notifier.callCount())
}

func TestDedupSequential(t *testing.T) {
	actions := newFakeActions()
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(actions, defaultOperators(), notifier)

	d1, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskHigh))
	require.NoError(t, err)
	require.Equal(t, OutcomeActed, d1.Outcome)
	require.NotNil(t, d1.Action)

	sent := notifier.callCount()
	d2, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskHigh))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, d2.Outcome)
	require.Equal(t, ReasonDuplicateOpenAction, d2.Reason)
	require.Nil(t, d2.Action)
	require.Equal(t, 1, actions.count())
	require.Equal(t, sent, notifier.callCount(), "duplicate must not notify")
}

func TestDedupConcurrent(t *testing.T) {
	actions := newFakeActions()
	o := newTestOrchestrator(actions, defaultOperators(), &fakeNotifier{})

	const n = 32
	var wg sync.WaitGroup
	acted := make(chan Decision, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskHigh))
			if err != nil {
				errs <- err
				return
			}
			if d.Outcome == OutcomeActed {
				acted <- d
			}
		}()
	}
	wg.Wait()
	close(acted)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, actions.count(), "exactly one action for one asset within the window")
	require.Len(t, acted, 1)
}

func TestDedupAcrossAssetsIsParallel(t *testing.T) {
	actions := newFakeActions()
	o := newTestOrchestrator(actions, defaultOperators(), &fakeNotifier{})

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for _, asset := range []string{"A1", "A2", "A3"} {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()
			if _, err := o.OnAssessment(context.Background(), assessment(asset, models.RiskHigh)); err != nil {
				errs <- err
			}
		}(asset)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 3, actions.count())
}

func TestOperatorSelectionPrefersSkillAndLoad(t *testing.T) {
	earlier := time.Now().Add(-2 * time.Hour)
	later := time.Now().Add(-1 * time.Hour)
	operators := &fakeOperators{ops: []models.OperatorProfile{
		{ID: 1, Role: models.RoleOperator, Active: true, Skills: []string{"hydraulics"}, OpenActions: 3},
		{ID: 2, Role: models.RoleOperator, Active: true, Skills: []string{"hydraulics"}, OpenActions: 1, LastAssignedAt: later},
		{ID: 3, Role: models.RoleOperator, Active: true, Skills: []string{"hydraulics"}, OpenActions: 1, LastAssignedAt: earlier},
		{ID: 4, Role: models.RoleSupervisor, Active: true, OpenActions: 0},
	}}
	o := newTestOrchestrator(newFakeActions(), operators, &fakeNotifier{})

	d, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskHigh))
	require.NoError(t, err)
	require.Equal(t, OutcomeActed, d.Outcome)
	// Fewest open actions wins; tie broken by earliest last-assigned.
	require.Equal(t, 3, d.Action.AssignedTo)
}

func TestOperatorSelectionFallsBackToSupervisor(t *testing.T) {
	operators := &fakeOperators{ops: []models.OperatorProfile{
		{ID: 1, Role: models.RoleOperator, Active: true, Skills: []string{"electrical"}},
		{ID: 2, Role: models.RoleSupervisor, Active: true},
	}}
	o := newTestOrchestrator(newFakeActions(), operators, &fakeNotifier{})

	d, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskHigh))
	require.NoError(t, err)
	require.Equal(t, OutcomeActed, d.Outcome)
	require.Equal(t, 2, d.Action.AssignedTo)
}

func TestNoOperatorAvailable(t *testing.T) {
	operators := &fakeOperators{ops: []models.OperatorProfile{
		{ID: 1, Role: models.RoleOperator, Active: false, Skills: []string{"hydraulics"}},
	}}
	actions := newFakeActions()
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(actions, operators, notifier)

	d, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskHigh))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, d.Outcome)
	require.Equal(t, ReasonNoOperatorAvailable, d.Reason)
	require.Zero(t, actions.count())
	require.Zero(t, notifier.callCount())
}

func TestPriorityMapping(t *testing.T) {
	cases := map[models.RiskLevel]models.Priority{
		models.RiskMedium:   models.PriorityNormal,
		models.RiskHigh:     models.PriorityHigh,
		models.RiskCritical: models.PriorityUrgent,
	}
	for level, want := range cases {
		o := newTestOrchestrator(newFakeActions(), defaultOperators(), &fakeNotifier{})
		d, err := o.OnAssessment(context.Background(), assessment("A1", level))
		require.NoError(t, err)
		require.Equal(t, OutcomeActed, d.Outcome)
		require.Equal(t, want, d.Action.Priority, "level %s", level)
	}
}

func TestCriticalEscalationFanOut(t *testing.T) {
	operators := &fakeOperators{ops: []models.OperatorProfile{
		{ID: 1, Role: models.RoleOperator, Active: true, Skills: []string{"hydraulics"}},
		{ID: 2, Role: models.RoleSupervisor, Active: true},
		{ID: 3, Role: models.RoleSupervisor, Active: true},
	}}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(newFakeActions(), operators, notifier)

	d, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskCritical))
	require.NoError(t, err)
	require.Equal(t, OutcomeActed, d.Outcome)

	require.Len(t, notifier.calls, 2)
	assign := notifier.calls[0]
	require.Equal(t, models.CategoryActionAssigned, assign.msg.Category)
	require.Equal(t, []models.Target{{RecipientID: 1, Category: models.CategoryActionAssigned}}, assign.targets)

	esc := notifier.calls[1]
	require.Equal(t, models.CategoryCriticalAlert, esc.msg.Category)
	require.Equal(t, string(models.PriorityUrgent), esc.msg.Urgency)
	require.ElementsMatch(t, []models.Target{
		{RecipientID: 2, Category: models.CategoryCriticalAlert},
		{RecipientID: 3, Category: models.CategoryCriticalAlert},
	}, esc.targets)
}

func TestEscalationReachesAssigneeWhoIsSoleSupervisor(t *testing.T) {
	operators := &fakeOperators{ops: []models.OperatorProfile{
		{ID: 2, Role: models.RoleSupervisor, Active: true},
	}}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(newFakeActions(), operators, notifier)

	d, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskCritical))
	require.NoError(t, err)
	require.Equal(t, OutcomeActed, d.Outcome)
	require.Equal(t, 2, d.Action.AssignedTo)

	require.Len(t, notifier.calls, 2)
	esc := notifier.calls[1]
	require.Equal(t, models.CategoryCriticalAlert, esc.msg.Category)
	require.Equal(t, []models.Target{{RecipientID: 2, Category: models.CategoryCriticalAlert}}, esc.targets)
}

func TestHighLevelDoesNotEscalateByDefault(t *testing.T) {
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(newFakeActions(), defaultOperators(), notifier)

	d, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskHigh))
	require.NoError(t, err)
	require.Equal(t, OutcomeActed, d.Outcome)
	require.Equal(t, 1, notifier.callCount(), "assignee notification only")
}

func TestReplayOfAssessmentDoesNotDuplicate(t *testing.T) {
	actions := newFakeActions()
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(actions, defaultOperators(), notifier)

	a := assessment("A1", models.RiskHigh)
	d1, err := o.OnAssessment(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, OutcomeActed, d1.Outcome)

	// Simulate the open action having been closed so the dedup check passes
	// and redelivery reaches the idempotent create.
	actions.mu.Lock()
	actions.actions[0].Status = models.ActionDone
	actions.mu.Unlock()

	calls := notifier.callCount()
	d2, err := o.OnAssessment(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, OutcomeActed, d2.Outcome)
	require.Equal(t, d1.Action.ID, d2.Action.ID, "replay returns the existing action")
	require.Equal(t, 1, actions.count())
	require.Equal(t, calls, notifier.callCount(), "replay must not re-notify")
}

func TestStoreFailureIsHardError(t *testing.T) {
	actions := newFakeActions()
	actions.createErr = context.DeadlineExceeded
	o := newTestOrchestrator(actions, defaultOperators(), &fakeNotifier{})

	_, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskHigh))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrContractViolation)
}

func TestMarkAssignedCalledForNewAction(t *testing.T) {
	operators := defaultOperators()
	o := newTestOrchestrator(newFakeActions(), operators, &fakeNotifier{})

	_, err := o.OnAssessment(context.Background(), assessment("A1", models.RiskHigh))
	require.NoError(t, err)
	require.Equal(t, []int{1}, operators.assigned)
}
