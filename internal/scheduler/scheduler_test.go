package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardsync/boardsync/internal/syncer"
	"github.com/boardsync/boardsync/pkg/models"
)

type fakeIntegrationLister struct {
	integrations []*models.Integration
}

func (f *fakeIntegrationLister) ListEnabled(ctx context.Context) ([]*models.Integration, error) {
	return f.integrations, nil
}

type fakeRuleLister struct {
	rules []*models.SyncRule
}

func (f *fakeRuleLister) ListScheduled(ctx context.Context) ([]*models.SyncRule, error) {
	return f.rules, nil
}

type fakeTrigger struct {
	fired []string
}

func (f *fakeTrigger) TriggerManually(ctx context.Context, ruleID string, record map[string]interface{}) (*models.RuleExecution, error) {
	f.fired = append(f.fired, ruleID)
	return &models.RuleExecution{RuleID: ruleID, Status: models.RuleExecSuccess}, nil
}

type fakeRunner struct {
	synced []string
}

func (f *fakeRunner) SyncAllBoards(ctx context.Context, integrationID string, opts syncer.Options) (*syncer.SyncAllResult, error) {
	f.synced = append(f.synced, integrationID)
	return &syncer.SyncAllResult{IntegrationID: integrationID}, nil
}

func int64Ptr(v int64) *int64 { return &v }

func autoSyncIntegration(id string, intervalSeconds int64) *models.Integration {
	return &models.Integration{
		IntegrationID:    id,
		Enabled:          true,
		AutoSyncInterval: int64Ptr(intervalSeconds),
	}
}

func TestRunDueSyncsDueIntegrations(t *testing.T) {
	integrations := &fakeIntegrationLister{integrations: []*models.Integration{
		autoSyncIntegration("int-1", 300),
		{IntegrationID: "int-manual", Enabled: true},
	}}
	runner := &fakeRunner{}
	s := New(integrations, &fakeRuleLister{}, &fakeTrigger{}, runner, nil, 0)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// First pass: an integration never seen in this process is due.
	syncs, _ := s.RunDue(context.Background())
	assert.Equal(t, 1, syncs)
	assert.Equal(t, []string{"int-1"}, runner.synced)

	// A second pass inside the interval does nothing.
	now = now.Add(2 * time.Minute)
	syncs, _ = s.RunDue(context.Background())
	assert.Zero(t, syncs)
	assert.Len(t, runner.synced, 1)

	// Past the interval the integration is due again.
	now = now.Add(4 * time.Minute)
	syncs, _ = s.RunDue(context.Background())
	assert.Equal(t, 1, syncs)
	assert.Equal(t, []string{"int-1", "int-1"}, runner.synced)
}

func TestRunDueFiresScheduledRules(t *testing.T) {
	past := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	rules := &fakeRuleLister{rules: []*models.SyncRule{
		{
			RuleID:      "r-due",
			IsEnabled:   true,
			TriggerType: models.TriggerOnSchedule,
			CooldownMs:  int64((10 * time.Minute).Milliseconds()),
			LastExecuted: func() *time.Time {
				t := past
				return &t
			}(),
		},
		{
			RuleID:      "r-never-ran",
			IsEnabled:   true,
			TriggerType: models.TriggerOnSchedule,
		},
		{
			RuleID:      "r-disabled",
			TriggerType: models.TriggerOnSchedule,
		},
	}}
	trigger := &fakeTrigger{}
	s := New(&fakeIntegrationLister{}, rules, trigger, &fakeRunner{}, nil, 0)
	s.now = func() time.Time { return past.Add(time.Hour) }

	_, fired := s.RunDue(context.Background())
	assert.Equal(t, 2, fired)
	assert.Equal(t, []string{"r-due", "r-never-ran"}, trigger.fired)
}

func TestRuleDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rule := &models.SyncRule{
		IsEnabled:   true,
		TriggerType: models.TriggerOnSchedule,
	}
	assert.True(t, RuleDue(rule, now), "a rule that never ran is due")

	recent := now.Add(-30 * time.Minute)
	rule.LastExecuted = &recent
	assert.False(t, RuleDue(rule, now), "default period is an hour")

	old := now.Add(-2 * time.Hour)
	rule.LastExecuted = &old
	assert.True(t, RuleDue(rule, now))

	// The cooldown doubles as the schedule period.
	rule.CooldownMs = int64((5 * time.Minute).Milliseconds())
	rule.LastExecuted = &recent
	assert.True(t, RuleDue(rule, now))

	rule.IsEnabled = false
	assert.False(t, RuleDue(rule, now))

	rule.IsEnabled = true
	rule.TriggerType = models.TriggerOnCreate
	assert.False(t, RuleDue(rule, now), "only schedule-triggered rules")
}

func TestStartStop(t *testing.T) {
	s := New(&fakeIntegrationLister{}, &fakeRuleLister{}, &fakeTrigger{}, &fakeRunner{}, nil, 10*time.Millisecond)

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	// Stop with no Start is a no-op.
	idle := New(&fakeIntegrationLister{}, &fakeRuleLister{}, &fakeTrigger{}, &fakeRunner{}, nil, 0)
	idle.Stop()
}

func TestIntegrationWithoutIntervalNeverDue(t *testing.T) {
	s := New(&fakeIntegrationLister{}, &fakeRuleLister{}, &fakeTrigger{}, &fakeRunner{}, nil, 0)
	now := time.Now()

	assert.False(t, s.integrationDue(&models.Integration{IntegrationID: "int-1"}, now))
	assert.False(t, s.integrationDue(autoSyncIntegration("int-2", 0), now))
	require.True(t, s.integrationDue(autoSyncIntegration("int-3", 60), now))
}
