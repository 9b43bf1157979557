// Package scheduler drives time-based work: integrations with an
// auto-sync interval and rules with a schedule trigger.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/boardsync/boardsync/internal/syncer"
	"github.com/boardsync/boardsync/pkg/logger"
	"github.com/boardsync/boardsync/pkg/models"
)

// DefaultTick is how often due work is re-evaluated.
const DefaultTick = 30 * time.Second

// DefaultRuleInterval applies to scheduled rules without a cooldown.
const DefaultRuleInterval = time.Hour

// IntegrationLister lists integrations eligible for auto sync.
type IntegrationLister interface {
	ListEnabled(ctx context.Context) ([]*models.Integration, error)
}

// ScheduledRuleLister lists rules with a schedule trigger.
type ScheduledRuleLister interface {
	ListScheduled(ctx context.Context) ([]*models.SyncRule, error)
}

// RuleTrigger fires one rule outside its organic trigger.
type RuleTrigger interface {
	TriggerManually(ctx context.Context, ruleID string, record map[string]interface{}) (*models.RuleExecution, error)
}

// IntegrationSyncer runs a full sync over one integration.
type IntegrationSyncer interface {
	SyncAllBoards(ctx context.Context, integrationID string, opts syncer.Options) (*syncer.SyncAllResult, error)
}

// Scheduler ticks and dispatches due syncs and due scheduled rules.
// All work runs inline on the tick goroutine; board locking in the
// syncer keeps overlapping runs out.
type Scheduler struct {
	integrations IntegrationLister
	rules        ScheduledRuleLister
	trigger      RuleTrigger
	runner       IntegrationSyncer
	logger       *logger.Logger
	tick         time.Duration
	now          func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler. A tick of zero uses DefaultTick.
func New(integrations IntegrationLister, rules ScheduledRuleLister, trigger RuleTrigger, runner IntegrationSyncer, log *logger.Logger, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		integrations: integrations,
		rules:        rules,
		trigger:      trigger,
		runner:       runner,
		logger:       log,
		tick:         tick,
		now:          time.Now,
		lastRun:      make(map[string]time.Time),
	}
}

// Start begins ticking until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop halts the tick loop and waits for the current pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue performs one scheduling pass and reports how many integration
// syncs ran and how many scheduled rules fired.
func (s *Scheduler) RunDue(ctx context.Context) (syncsRun, rulesFired int) {
	now := s.now()

	integrations, err := s.integrations.ListEnabled(ctx)
	if err != nil {
		s.logf("failed to list integrations: %v", err)
	}
	for _, in := range integrations {
		if !s.integrationDue(in, now) {
			continue
		}
		s.markRun(in.IntegrationID, now)
		res, err := s.runner.SyncAllBoards(ctx, in.IntegrationID, syncer.Options{IncludeSubitems: true})
		if err != nil {
			s.logf("scheduled sync of integration %s failed: %v", in.IntegrationID, err)
			continue
		}
		syncsRun++
		if res.Failures > 0 {
			s.logf("scheduled sync of integration %s finished with %d failed boards", in.IntegrationID, res.Failures)
		}
	}

	rules, err := s.rules.ListScheduled(ctx)
	if err != nil {
		s.logf("failed to list scheduled rules: %v", err)
	}
	for _, rule := range rules {
		if !RuleDue(rule, now) {
			continue
		}
		if _, err := s.trigger.TriggerManually(ctx, rule.RuleID, nil); err != nil {
			s.logf("scheduled rule %s failed: %v", rule.RuleID, err)
			continue
		}
		rulesFired++
	}
	return syncsRun, rulesFired
}

// integrationDue reports whether an integration's auto-sync interval
// has elapsed since its last scheduled run in this process.
func (s *Scheduler) integrationDue(in *models.Integration, now time.Time) bool {
	if in.AutoSyncInterval == nil || *in.AutoSyncInterval <= 0 {
		return false
	}
	interval := time.Duration(*in.AutoSyncInterval) * time.Second

	s.mu.Lock()
	last, ok := s.lastRun[in.IntegrationID]
	s.mu.Unlock()
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}

func (s *Scheduler) markRun(integrationID string, now time.Time) {
	s.mu.Lock()
	s.lastRun[integrationID] = now
	s.mu.Unlock()
}

// RuleDue reports whether a scheduled rule's period has elapsed. The
// cooldown doubles as the period; a rule without one runs hourly.
func RuleDue(rule *models.SyncRule, now time.Time) bool {
	if !rule.IsEnabled || rule.TriggerType != models.TriggerOnSchedule {
		return false
	}
	period := DefaultRuleInterval
	if rule.CooldownMs > 0 {
		period = time.Duration(rule.CooldownMs) * time.Millisecond
	}
	if rule.LastExecuted == nil {
		return true
	}
	return now.Sub(*rule.LastExecuted) >= period
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warnf(format, args...)
	}
}
