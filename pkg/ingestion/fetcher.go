package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// latestProbeDepth is how many rounds below the expected one FetchLatest tries.
const latestProbeDepth = 3

// Fetcher retrieves draw results from a remote source and normalizes them.
type Fetcher struct {
	source   ResultSource
	prizes   PrizeSource
	policy   RetryPolicy
	logger   common.Logger
	observer FetchObserver
	group    singleflight.Group
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPrizeSource sets where full prize breakdowns come from.
func WithPrizeSource(p PrizeSource) Option {
	return func(f *Fetcher) { f.prizes = p }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *Fetcher) { f.policy = p.withDefaults() }
}

func WithLogger(l common.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

func WithObserver(o FetchObserver) Option {
	return func(f *Fetcher) { f.observer = o }
}

// NewFetcher 创建结果获取器
func NewFetcher(source ResultSource, opts ...Option) *Fetcher {
	f := &Fetcher{
		source: source,
		policy: DefaultRetryPolicy(),
		logger: common.NewLogger("Fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Clock exposes the policy clock so callers share one notion of now.
func (f *Fetcher) Clock() Clock {
	return f.policy.Clock
}

// FetchRound fetches and normalizes one round. Concurrent calls for the same
// round share a single remote request.
func (f *Fetcher) FetchRound(ctx context.Context, round int) (models.DrawRecord, error) {
	if round < 1 {
		return models.DrawRecord{}, &common.InvalidRoundError{Round: round}
	}

	v, err, _ := f.group.Do(strconv.Itoa(round), func() (interface{}, error) {
		return f.fetchRound(ctx, round)
	})
	if err != nil {
		return models.DrawRecord{}, err
	}
	return v.(models.DrawRecord), nil
}

func (f *Fetcher) fetchRound(ctx context.Context, round int) (models.DrawRecord, error) {
	var body []byte
	attempts, err := f.policy.Do(ctx, func(ctx context.Context) error {
		b, err := f.source.GetRoundResult(ctx, round)
		if err != nil {
			return err
		}
		body = b
		return nil
	}, IsTransient)
	if err != nil {
		return models.DrawRecord{}, f.fail(ctx, round, attempts, err)
	}

	record, err := NormalizeRoundResult(round, body)
	if err != nil {
		if errors.Is(err, common.ErrRoundNotDrawn) {
			f.observe("not_drawn", attempts)
			return models.DrawRecord{}, err
		}
		f.observe("rejected", attempts)
		f.logger.Warn("❌ Round %d from %s rejected: %v", round, f.source.GetName(), err)
		return models.DrawRecord{}, err
	}

	f.observe("ok", attempts)
	f.logger.Debug("Round %d fetched in %d attempt(s)", round, attempts)
	return record, nil
}

func (f *Fetcher) fail(ctx context.Context, round, attempts int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		f.observe("canceled", attempts)
		return ctxErr
	}
	if IsTransient(err) {
		f.observe("unavailable", attempts)
		f.logger.Warn("⚠️ Round %d unavailable after %d attempts: %v", round, attempts, err)
		return &common.FetchUnavailableError{Round: round, Attempts: attempts, Cause: err}
	}
	f.observe("error", attempts)
	return fmt.Errorf("fetch round %d from %s: %w", round, f.source.GetName(), err)
}

// FetchLatest returns the most recent drawn round. It starts at the round the
// draw calendar expects and walks down past rounds that are not published yet.
func (f *Fetcher) FetchLatest(ctx context.Context) (models.DrawRecord, error) {
	expected := ExpectedRound(f.policy.Clock.Now())
	if expected < 1 {
		return models.DrawRecord{}, fmt.Errorf("no round scheduled yet: %w", common.ErrRoundNotDrawn)
	}

	lowest := expected - latestProbeDepth
	if lowest < 1 {
		lowest = 1
	}
	for round := expected; round >= lowest; round-- {
		record, err := f.FetchRound(ctx, round)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, common.ErrRoundNotDrawn) {
			return models.DrawRecord{}, err
		}
		f.logger.Debug("Round %d not drawn yet, probing lower", round)
	}
	return models.DrawRecord{}, fmt.Errorf("no drawn round between %d and %d: %w", lowest, expected, common.ErrRoundNotDrawn)
}

// RevisePrizeTable returns stored with its prize table replaced by the
// issuer's current breakdown. Drawn numbers are never altered.
func (f *Fetcher) RevisePrizeTable(ctx context.Context, stored models.DrawRecord) (models.DrawRecord, error) {
	if f.prizes == nil {
		fresh, err := f.FetchRound(ctx, stored.Round)
		if err != nil {
			return stored, err
		}
		merged, _, err := stored.Reconcile(fresh)
		return merged, err
	}

	var breakdown *PrizeBreakdown
	attempts, err := f.policy.Do(ctx, func(ctx context.Context) error {
		b, err := f.prizes.GetPrizeBreakdown(ctx, stored.Round)
		if err != nil {
			return err
		}
		breakdown = b
		return nil
	}, IsTransient)
	if err != nil {
		return stored, f.fail(ctx, stored.Round, attempts, err)
	}

	if breakdown.Round != 0 && breakdown.Round != stored.Round {
		return stored, malformed(stored.Round, fmt.Sprintf("prize breakdown is for round %d", breakdown.Round))
	}
	if len(breakdown.Numbers) > 0 {
		numbers, err := models.NewNumberSet(breakdown.Numbers)
		if err != nil {
			return stored, malformed(stored.Round, "prize breakdown numbers: "+err.Error())
		}
		if numbers != stored.WinningNumbers {
			return stored, &common.RecordMismatchError{
				Round: stored.Round, Field: "winning_numbers",
				Stored: stored.WinningNumbers.String(), Incoming: numbers.String(),
			}
		}
	}
	if breakdown.Bonus != 0 && breakdown.Bonus != stored.BonusNumber {
		return stored, &common.RecordMismatchError{
			Round: stored.Round, Field: "bonus_number",
			Stored: strconv.Itoa(stored.BonusNumber), Incoming: strconv.Itoa(breakdown.Bonus),
		}
	}
	if err := breakdown.Table.Validate(); err != nil {
		return stored, malformed(stored.Round, "prize breakdown: "+err.Error())
	}

	revised := stored
	revised.PrizeTable = stored.PrizeTable.Clone()
	if revised.PrizeTable == nil {
		revised.PrizeTable = models.PendingPrizeTable()
	}
	for tier, payout := range breakdown.Table {
		revised.PrizeTable[tier] = payout
	}
	return revised, nil
}

func (f *Fetcher) observe(outcome string, attempts int) {
	if f.observer != nil {
		f.observer.ObserveFetch(outcome, attempts)
	}
}
