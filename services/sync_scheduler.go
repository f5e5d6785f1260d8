package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/ingestion"
	"github.com/stuKim0221/smart-lotto/pkg/models"
	"github.com/stuKim0221/smart-lotto/pkg/processing"
)

const (
	DefaultSyncSchedule       = "*/15 * * * *"
	DefaultMaxRoundsPerCycle  = 52
	DefaultSyncRetryAfter     = 30 * time.Minute
	DefaultPrizeRevisionLimit = 10
	DefaultPrizeRevisionDepth = 8
)

// Phase 同步调度器状态
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseApplying
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseFetching:
		return "fetching"
	case PhaseApplying:
		return "applying"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Trigger names what started a cycle.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerStartup   = "startup"
)

// RoundFetcher is the part of ingestion.Fetcher the scheduler drives.
type RoundFetcher interface {
	FetchRound(ctx context.Context, round int) (models.DrawRecord, error)
	FetchLatest(ctx context.Context) (models.DrawRecord, error)
	RevisePrizeTable(ctx context.Context, stored models.DrawRecord) (models.DrawRecord, error)
}

// SyncRunRecorder persists cycle reports.
type SyncRunRecorder interface {
	SaveSyncRun(ctx context.Context, report SyncReport) error
}

// RoundFailure is one round that could not be applied.
type RoundFailure struct {
	Round    int             `json:"round"`
	Stage    string          `json:"stage"`
	Category common.Category `json:"category"`
	Error    string          `json:"error"`
}

// SyncReport 同步周期报告
type SyncReport struct {
	CycleID     string         `json:"cycle_id"`
	Trigger     string         `json:"trigger"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Phase       Phase          `json:"phase"`
	Skipped     bool           `json:"skipped,omitempty"`
	LatestRound int            `json:"latest_round,omitempty"`
	Attempted   []int          `json:"attempted"`
	Applied     []int          `json:"applied"`
	Unchanged   []int          `json:"unchanged"`
	Revised     []int          `json:"revised"`
	Deferred    int            `json:"deferred,omitempty"`
	Failures    []RoundFailure `json:"failures"`
	Error       string         `json:"error,omitempty"`
}

// SyncStatus is a point-in-time view of the scheduler.
type SyncStatus struct {
	Phase      Phase       `json:"phase"`
	Running    bool        `json:"running"`
	Schedule   string      `json:"schedule"`
	NextRun    *time.Time  `json:"next_run,omitempty"`
	RetryAfter *time.Time  `json:"retry_after,omitempty"`
	LastReport *SyncReport `json:"last_report,omitempty"`
}

// SchedulerConfig 调度配置
type SchedulerConfig struct {
	Schedule           string
	Location           *time.Location
	MaxRoundsPerCycle  int
	RetryAfter         time.Duration
	PrizeRevisionLimit int
	// PrizeRevisionDepth bounds revisions to the latest N rounds.
	PrizeRevisionDepth int
	CycleTimeout       time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Schedule == "" {
		c.Schedule = DefaultSyncSchedule
	}
	if c.Location == nil {
		c.Location = ingestion.KST
	}
	if c.MaxRoundsPerCycle <= 0 {
		c.MaxRoundsPerCycle = DefaultMaxRoundsPerCycle
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = DefaultSyncRetryAfter
	}
	if c.PrizeRevisionLimit <= 0 {
		c.PrizeRevisionLimit = DefaultPrizeRevisionLimit
	}
	if c.PrizeRevisionDepth <= 0 {
		c.PrizeRevisionDepth = DefaultPrizeRevisionDepth
	}
	return c
}

// SyncScheduler 开奖同步调度器
type SyncScheduler struct {
	fetcher   RoundFetcher
	store     ingestion.DrawStore
	validator processing.DrawValidator
	publisher EventPublisher
	metrics   *Metrics
	recorder  SyncRunRecorder
	clock     ingestion.Clock
	config    SchedulerConfig
	logger    common.Logger

	token atomic.Bool

	mu         sync.RWMutex
	phase      Phase
	retryAfter time.Time
	last       *SyncReport
	missed     map[int]struct{} // rounds below the store max that failed to apply

	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// SchedulerOption configures a SyncScheduler.
type SchedulerOption func(*SyncScheduler)

func WithValidator(v processing.DrawValidator) SchedulerOption {
	return func(s *SyncScheduler) { s.validator = v }
}

func WithPublisher(p EventPublisher) SchedulerOption {
	return func(s *SyncScheduler) { s.publisher = p }
}

func WithMetrics(m *Metrics) SchedulerOption {
	return func(s *SyncScheduler) { s.metrics = m }
}

func WithRecorder(r SyncRunRecorder) SchedulerOption {
	return func(s *SyncScheduler) { s.recorder = r }
}

func WithClock(c ingestion.Clock) SchedulerOption {
	return func(s *SyncScheduler) { s.clock = c }
}

func WithSchedulerLogger(l common.Logger) SchedulerOption {
	return func(s *SyncScheduler) { s.logger = l }
}

// NewSyncScheduler 创建同步调度器
func NewSyncScheduler(fetcher RoundFetcher, store ingestion.DrawStore, cfg SchedulerConfig, opts ...SchedulerOption) *SyncScheduler {
	s := &SyncScheduler{
		fetcher: fetcher,
		store:   store,
		clock:   ingestion.RealClock(),
		config:  cfg.withDefaults(),
		logger:  common.NewLogger("SyncScheduler"),
		missed:  map[int]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the current phase.
func (s *SyncScheduler) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *SyncScheduler) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetPhase(p)
	}
}

// Status 获取调度器状态
func (s *SyncScheduler) Status() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SyncStatus{
		Phase:    s.phase,
		Running:  s.token.Load(),
		Schedule: s.config.Schedule,
	}
	if !s.retryAfter.IsZero() && s.phase == PhaseFailed {
		ra := s.retryAfter
		status.RetryAfter = &ra
	}
	if s.last != nil {
		last := *s.last
		status.LastReport = &last
	}
	if s.cron != nil {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// Start 启动定时同步
func (s *SyncScheduler) Start(ctx context.Context, runNow bool) error {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		s.logger.Info("Already running")
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(s.config.Location))
	id, err := c.AddFunc(s.config.Schedule, func() { s.tick(TriggerScheduled) })
	if err != nil {
		s.cancel()
		s.mu.Unlock()
		return fmt.Errorf("invalid sync schedule %q: %w", s.config.Schedule, err)
	}
	s.cron, s.entryID = c, id
	s.mu.Unlock()

	c.Start()
	s.logger.Info("🚀 Started with schedule %q (%s)", s.config.Schedule, s.config.Location)

	if runNow {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick(TriggerStartup)
		}()
	}
	return nil
}

// Stop 停止调度器, canceling an in-flight cycle and waiting for it to unwind.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	s.logger.Info("🛑 Stopping...")
	cancel()
	<-c.Stop().Done()
	s.wg.Wait()
	s.logger.Info("🛑 Stopped")
}

func (s *SyncScheduler) tick(trigger string) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	report, err := s.RunCycle(ctx, trigger)
	switch {
	case errors.Is(err, common.ErrSyncInProgress):
		s.logger.Debug("Previous cycle still running, tick skipped")
	case err != nil:
		s.logger.Error("❌ Sync cycle %s failed: %v", report.CycleID, err)
	}
}

// RunCycle runs one sync cycle. It returns ErrSyncInProgress when another
// cycle holds the run token. Scheduled cycles are skipped while a failed
// cycle's retry-after time has not passed; manual cycles are not.
func (s *SyncScheduler) RunCycle(ctx context.Context, trigger string) (SyncReport, error) {
	if !s.token.CompareAndSwap(false, true) {
		return SyncReport{}, common.ErrSyncInProgress
	}
	defer s.token.Store(false)

	now := s.clock.Now()
	report := SyncReport{
		CycleID:   uuid.NewString(),
		Trigger:   trigger,
		StartedAt: now,
		Attempted: []int{},
		Applied:   []int{},
		Unchanged: []int{},
		Revised:   []int{},
		Failures:  []RoundFailure{},
	}

	s.mu.RLock()
	phase, retryAfter := s.phase, s.retryAfter
	s.mu.RUnlock()
	if trigger == TriggerScheduled && phase == PhaseFailed && now.Before(retryAfter) {
		report.Skipped = true
		report.Phase = PhaseFailed
		report.FinishedAt = now
		s.logger.Debug("Retry not due until %s, tick skipped", retryAfter.Format(time.RFC3339))
		return report, nil
	}

	if s.config.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CycleTimeout)
		defer cancel()
	}

	s.logger.Info("🔄 Sync cycle %s started (%s)", report.CycleID, trigger)
	s.setPhase(PhaseFetching)
	err := s.runCycle(ctx, &report)
	s.finish(&report, err)
	return report, err
}

func (s *SyncScheduler) runCycle(ctx context.Context, report *SyncReport) error {
	latest, err := s.fetcher.FetchLatest(ctx)
	if err != nil {
		if errors.Is(err, common.ErrRoundNotDrawn) {
			s.logger.Info("No drawn round published yet")
			return nil
		}
		return fmt.Errorf("fetch latest round: %w", err)
	}
	report.LatestRound = latest.Round

	maxKnown, err := s.store.MaxRound(ctx)
	if err != nil {
		return fmt.Errorf("read max round: %w", err)
	}

	targets := s.backlog(ctx, report.Trigger, maxKnown)
	for round := maxKnown + 1; round <= latest.Round; round++ {
		targets = append(targets, round)
	}
	if len(targets) == 0 {
		// already caught up; re-apply latest so a revised prize table lands
		targets = []int{latest.Round}
	}
	if len(targets) > s.config.MaxRoundsPerCycle {
		report.Deferred = len(targets) - s.config.MaxRoundsPerCycle
		targets = targets[:s.config.MaxRoundsPerCycle]
		s.logger.Warn("⚠️ %d rounds behind; syncing %d..%d, %d deferred to the next cycle",
			len(targets)+report.Deferred, targets[0], targets[len(targets)-1], report.Deferred)
	}

	unavailable := 0
	for _, round := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Attempted = append(report.Attempted, round)

		var rec models.DrawRecord
		if round == latest.Round {
			rec = latest
		} else {
			s.setPhase(PhaseFetching)
			rec, err = s.fetcher.FetchRound(ctx, round)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				var unavail *common.FetchUnavailableError
				if errors.As(err, &unavail) {
					unavailable++
				}
				s.recordFailure(report, round, "fetch", err)
				s.markMissed(round, true)
				continue
			}
		}

		s.apply(ctx, report, rec)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if n := len(report.Attempted); n > 0 && unavailable == n {
		return &common.FetchUnavailableError{Round: report.Attempted[n-1], Attempts: n,
			Cause: errors.New("every attempted round was unavailable")}
	}

	s.revisePrizes(ctx, report, latest.Round)
	return ctx.Err()
}

// backlog returns rounds that failed in earlier cycles, ascending. Startup
// cycles also scan the store for holes, since failures are not persisted.
func (s *SyncScheduler) backlog(ctx context.Context, trigger string, maxKnown int) []int {
	if trigger == TriggerStartup && maxKnown > 0 {
		records, err := s.store.List(ctx, 1, maxKnown)
		if err != nil {
			s.logger.Warn("⚠️ Failed to scan for missing rounds: %v", err)
		} else {
			present := make(map[int]bool, len(records))
			for _, rec := range records {
				present[rec.Round] = true
			}
			s.mu.Lock()
			for round := 1; round <= maxKnown; round++ {
				if !present[round] {
					s.missed[round] = struct{}{}
				}
			}
			s.mu.Unlock()
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.missed))
	for round := range s.missed {
		if round <= maxKnown {
			out = append(out, round)
		}
	}
	sort.Ints(out)
	return out
}

func (s *SyncScheduler) markMissed(round int, missed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if missed {
		s.missed[round] = struct{}{}
	} else {
		delete(s.missed, round)
	}
}

func (s *SyncScheduler) apply(ctx context.Context, report *SyncReport, rec models.DrawRecord) {
	if s.validator != nil {
		if err := s.validator.Validate(ctx, &rec); err != nil {
			s.recordFailure(report, rec.Round, "validate", err)
			s.markMissed(rec.Round, true)
			return
		}
	}

	s.setPhase(PhaseApplying)
	outcome, err := s.store.Upsert(ctx, rec)
	s.setPhase(PhaseFetching)
	if err != nil {
		s.recordFailure(report, rec.Round, "apply", err)
		s.markMissed(rec.Round, true)
		return
	}
	s.markMissed(rec.Round, false)

	switch outcome {
	case models.UpsertUnchanged:
		report.Unchanged = append(report.Unchanged, rec.Round)
		s.observeRound("unchanged")
	default:
		report.Applied = append(report.Applied, rec.Round)
		s.observeRound("applied")
		s.logger.Info("✅ Round %d %s: %s + %d", rec.Round, outcome, rec.WinningNumbers, rec.BonusNumber)
		s.publish(SyncEvent{Type: EventDrawApplied, CycleID: report.CycleID, Round: rec.Round, Outcome: outcome.String()})
	}
	if s.metrics != nil {
		if maxKnown, err := s.store.MaxRound(ctx); err == nil {
			s.metrics.SetLatestRound(maxKnown)
		}
	}
}

// revisePrizes refreshes prize tables of recent rounds that are not final yet.
func (s *SyncScheduler) revisePrizes(ctx context.Context, report *SyncReport, latest int) {
	since := latest - s.config.PrizeRevisionDepth + 1
	pending, err := s.store.ListPendingPrizeRounds(ctx, since, s.config.PrizeRevisionLimit)
	if err != nil {
		s.logger.Warn("⚠️ Failed to list pending prize tables: %v", err)
		return
	}

	for _, round := range pending {
		if ctx.Err() != nil {
			return
		}
		stored, ok, err := s.store.Get(ctx, round)
		if err != nil || !ok {
			continue
		}

		s.setPhase(PhaseFetching)
		revised, err := s.fetcher.RevisePrizeTable(ctx, stored)
		if err != nil {
			if errors.Is(err, common.ErrRoundNotDrawn) {
				s.logger.Debug("Prize breakdown for round %d not published yet", round)
				continue
			}
			s.recordFailure(report, round, "revise", err)
			continue
		}

		s.setPhase(PhaseApplying)
		outcome, err := s.store.Upsert(ctx, revised)
		s.setPhase(PhaseFetching)
		if err != nil {
			s.recordFailure(report, round, "revise", err)
			continue
		}
		if outcome == models.UpsertUpdated {
			report.Revised = append(report.Revised, round)
			s.observeRound("revised")
			s.logger.Info("💰 Round %d prize table revised (final=%v)", round, revised.PrizeTable.Finalized())
			s.publish(SyncEvent{Type: EventPrizeRevised, CycleID: report.CycleID, Round: round, Outcome: outcome.String()})
		}
	}
}

func (s *SyncScheduler) recordFailure(report *SyncReport, round int, stage string, err error) {
	warning := &common.PartialSyncWarning{Round: round, Cause: err}
	report.Failures = append(report.Failures, RoundFailure{
		Round:    round,
		Stage:    stage,
		Category: common.CategoryOf(err),
		Error:    err.Error(),
	})
	s.observeRound("failed")
	s.logger.Warn("⚠️ %v (%s)", warning, stage)
	s.publish(SyncEvent{Type: EventRoundFailed, CycleID: report.CycleID, Round: round, Error: err.Error()})
}

func (s *SyncScheduler) finish(report *SyncReport, err error) {
	now := s.clock.Now()
	report.FinishedAt = now

	switch {
	case err == nil:
		report.Phase = PhaseIdle
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		report.Phase = PhaseIdle
		report.Error = err.Error()
		s.logger.Warn("Sync cycle %s interrupted: %v", report.CycleID, err)
	default:
		report.Phase = PhaseFailed
		report.Error = err.Error()
	}

	s.mu.Lock()
	s.phase = report.Phase
	if report.Phase == PhaseFailed {
		s.retryAfter = now.Add(s.config.RetryAfter)
	} else {
		s.retryAfter = time.Time{}
	}
	last := *report
	s.last = &last
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetPhase(report.Phase)
		s.metrics.ObserveCycle(*report)
	}

	if report.Phase == PhaseFailed {
		s.logger.Error("❌ Sync cycle %s failed, retry after %s: %v",
			report.CycleID, now.Add(s.config.RetryAfter).Format(time.RFC3339), err)
	} else {
		s.logger.Info("✅ Sync cycle %s done: latest=%d applied=%d unchanged=%d revised=%d failed=%d",
			report.CycleID, report.LatestRound, len(report.Applied), len(report.Unchanged),
			len(report.Revised), len(report.Failures))
	}

	s.publish(SyncEvent{Type: EventCycleFinished, CycleID: report.CycleID, Report: &last})

	if s.recorder != nil {
		// the cycle context may already be canceled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.recorder.SaveSyncRun(ctx, last); err != nil {
			s.logger.Warn("⚠️ Failed to record sync run: %v", err)
		}
	}
}

func (s *SyncScheduler) observeRound(result string) {
	if s.metrics != nil {
		s.metrics.ObserveRound(result)
	}
}

func (s *SyncScheduler) publish(event SyncEvent) {
	if s.publisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now().UTC()
	}
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Warn("⚠️ Failed to publish %s: %v", event.Type, err)
	}
}
