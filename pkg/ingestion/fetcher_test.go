package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

func newTestFetcher(source ResultSource, clock Clock, opts ...Option) *Fetcher {
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(500*time.Millisecond, 8*time.Second),
		Clock:       clock,
	}
	opts = append([]Option{WithRetryPolicy(policy), WithLogger(common.NopLogger{})}, opts...)
	return NewFetcher(source, opts...)
}

var round1100 = response{body: issuerJSON(1100, "2023-12-30", [6]int{17, 24, 25, 32, 44, 45}, 33)}

func TestFetchRoundRejectsInvalidRound(t *testing.T) {
	source := newScriptedSource()
	f := newTestFetcher(source, newFakeClock(time.Now()))

	_, err := f.FetchRound(context.Background(), 0)
	var invalid *common.InvalidRoundError
	assert.True(t, errors.As(err, &invalid))
	assert.Equal(t, 0, source.callCount(0))
}

func TestFetchRoundRetriesTransientFailures(t *testing.T) {
	clock := newFakeClock(time.Now())
	source := newScriptedSource().on(1100, response{err: transientErr{}}, response{err: transientErr{}}, round1100)
	f := newTestFetcher(source, clock)

	record, err := f.FetchRound(context.Background(), 1100)
	require.NoError(t, err)
	assert.Equal(t, 1100, record.Round)
	assert.Equal(t, 3, source.callCount(1100))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, clock.sleeps)
}

func TestFetchRoundReportsUnavailable(t *testing.T) {
	source := newScriptedSource().on(1100, response{err: transientErr{}})
	f := newTestFetcher(source, newFakeClock(time.Now()))

	_, err := f.FetchRound(context.Background(), 1100)
	var unavailable *common.FetchUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, 3, unavailable.Attempts)
	assert.Equal(t, 3, source.callCount(1100))
}

func TestFetchRoundDoesNotRetryMalformed(t *testing.T) {
	source := newScriptedSource().on(7, response{body: `{"round":7,"numbers":[1,2,3,4,5],"bonus":9,"date":"2003-01-18"}`})
	f := newTestFetcher(source, newFakeClock(time.Now()))

	_, err := f.FetchRound(context.Background(), 7)
	var malformedErr *common.MalformedResultError
	assert.True(t, errors.As(err, &malformedErr))
	assert.Equal(t, 1, source.callCount(7))
}

func TestFetchRoundPermanentSourceError(t *testing.T) {
	source := newScriptedSource().on(7, response{err: permanentErr{}})
	f := newTestFetcher(source, newFakeClock(time.Now()))

	_, err := f.FetchRound(context.Background(), 7)
	assert.Error(t, err)
	assert.Equal(t, 1, source.callCount(7))
	var unavailable *common.FetchUnavailableError
	assert.False(t, errors.As(err, &unavailable))
}

func TestFetchRoundIsIdempotent(t *testing.T) {
	source := newScriptedSource().on(1100, round1100)
	f := newTestFetcher(source, newFakeClock(time.Now()))

	a, err := f.FetchRound(context.Background(), 1100)
	require.NoError(t, err)
	b, err := f.FetchRound(context.Background(), 1100)
	require.NoError(t, err)

	first, _ := json.Marshal(a)
	second, _ := json.Marshal(b)
	assert.Equal(t, first, second)
}

// blockingSource holds every request until released.
type blockingSource struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (s *blockingSource) GetName() string { return "blocking" }

func (s *blockingSource) GetRoundResult(ctx context.Context, round int) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-s.release
	return []byte(round1100.body), nil
}

func TestFetchRoundCollapsesConcurrentCalls(t *testing.T) {
	source := &blockingSource{release: make(chan struct{})}
	f := newTestFetcher(source, newFakeClock(time.Now()))

	var wg sync.WaitGroup
	results := make([]models.DrawRecord, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.FetchRound(context.Background(), 1100)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(source.release)
	wg.Wait()

	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Equal(t, 1, source.calls)
	for _, r := range results {
		assert.Equal(t, 1100, r.Round)
	}
}

func TestFetchLatestProbesDownward(t *testing.T) {
	// Saturday evening before the 1101 result is published
	clock := newFakeClock(time.Date(2024, 1, 6, 20, 50, 0, 0, KST))
	source := newScriptedSource().on(1100, round1100)
	f := newTestFetcher(source, clock)

	record, err := f.FetchLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1100, record.Round)
	assert.Equal(t, 1, source.callCount(1101))
	assert.Equal(t, 1, source.callCount(1100))
}

func TestFetchLatestSurfacesUnavailable(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 1, 6, 20, 50, 0, 0, KST))
	source := newScriptedSource().on(1101, response{err: transientErr{}})
	f := newTestFetcher(source, clock)

	_, err := f.FetchLatest(context.Background())
	var unavailable *common.FetchUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

type stubPrizes struct {
	breakdown *PrizeBreakdown
	err       error
}

func (s stubPrizes) GetPrizeBreakdown(context.Context, int) (*PrizeBreakdown, error) {
	return s.breakdown, s.err
}

func fullTable() models.PrizeTable {
	return models.PrizeTable{
		models.Tier1: models.FinalPayout(2147483000, 12),
		models.Tier2: models.FinalPayout(59458140, 73),
		models.Tier3: models.FinalPayout(1398115, 3104),
		models.Tier4: models.FinalPayout(50000, 152330),
		models.Tier5: models.FinalPayout(5000, 2578123),
	}
}

func TestRevisePrizeTable(t *testing.T) {
	stored, err := NormalizeRoundResult(1100, []byte(round1100.body))
	require.NoError(t, err)
	prizes := stubPrizes{breakdown: &PrizeBreakdown{
		Round: 1100, Numbers: []int{17, 24, 25, 32, 44, 45}, Bonus: 33, Table: fullTable(),
	}}
	f := newTestFetcher(newScriptedSource(), newFakeClock(time.Now()), WithPrizeSource(prizes))

	revised, err := f.RevisePrizeTable(context.Background(), stored)
	require.NoError(t, err)
	assert.True(t, revised.PrizeTable.Finalized())
	assert.Equal(t, stored.WinningNumbers, revised.WinningNumbers)
	assert.False(t, stored.PrizeTable.Finalized(), "input record must not be modified")
}

func TestRevisePrizeTableDetectsMismatch(t *testing.T) {
	stored, err := NormalizeRoundResult(1100, []byte(round1100.body))
	require.NoError(t, err)
	prizes := stubPrizes{breakdown: &PrizeBreakdown{
		Round: 1100, Numbers: []int{1, 24, 25, 32, 44, 45}, Bonus: 33, Table: fullTable(),
	}}
	f := newTestFetcher(newScriptedSource(), newFakeClock(time.Now()), WithPrizeSource(prizes))

	_, err = f.RevisePrizeTable(context.Background(), stored)
	var mismatch *common.RecordMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestRevisePrizeTableRetriesTransient(t *testing.T) {
	stored, err := NormalizeRoundResult(1100, []byte(round1100.body))
	require.NoError(t, err)
	f := newTestFetcher(newScriptedSource(), newFakeClock(time.Now()), WithPrizeSource(stubPrizes{err: transientErr{}}))

	_, err = f.RevisePrizeTable(context.Background(), stored)
	var unavailable *common.FetchUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}
