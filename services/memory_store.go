package services

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/stuKim0221/smart-lotto/pkg/ingestion"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// drawSnapshot is immutable once published.
type drawSnapshot struct {
	records map[int]models.DrawRecord
	rounds  []int // ascending
}

// MemoryDrawStore 内存开奖记录存储. Readers load the current snapshot without
// locking; writers copy it, apply one round and publish the copy.
type MemoryDrawStore struct {
	writeMu sync.Mutex
	current atomic.Pointer[drawSnapshot]
}

var _ ingestion.DrawStore = (*MemoryDrawStore)(nil)

// NewMemoryDrawStore 创建内存存储
func NewMemoryDrawStore() *MemoryDrawStore {
	s := &MemoryDrawStore{}
	s.current.Store(&drawSnapshot{records: map[int]models.DrawRecord{}})
	return s
}

func (s *MemoryDrawStore) snapshot() *drawSnapshot {
	return s.current.Load()
}

func (s *MemoryDrawStore) Get(ctx context.Context, round int) (models.DrawRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.DrawRecord{}, false, err
	}
	rec, ok := s.snapshot().records[round]
	if !ok {
		return models.DrawRecord{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

// Upsert 原子地插入或更新记录
func (s *MemoryDrawStore) Upsert(ctx context.Context, record models.DrawRecord) (models.UpsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return models.UpsertUnchanged, err
	}
	if err := record.Validate(); err != nil {
		return models.UpsertUnchanged, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.snapshot()
	next := record
	outcome := models.UpsertInserted
	if stored, ok := cur.records[record.Round]; ok {
		merged, o, err := stored.Reconcile(record)
		if err != nil {
			return models.UpsertUnchanged, err
		}
		if o == models.UpsertUnchanged {
			return o, nil
		}
		next, outcome = merged, o
	}

	records := make(map[int]models.DrawRecord, len(cur.records)+1)
	for r, rec := range cur.records {
		records[r] = rec
	}
	records[record.Round] = cloneRecord(next)

	rounds := cur.rounds
	if outcome == models.UpsertInserted {
		rounds = insertSorted(cur.rounds, record.Round)
	}
	s.current.Store(&drawSnapshot{records: records, rounds: rounds})
	return outcome, nil
}

func (s *MemoryDrawStore) MaxRound(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	snap := s.snapshot()
	if len(snap.rounds) == 0 {
		return 0, nil
	}
	return snap.rounds[len(snap.rounds)-1], nil
}

func (s *MemoryDrawStore) List(ctx context.Context, from, to int) ([]models.DrawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.snapshot()
	out := make([]models.DrawRecord, 0)
	for _, round := range snap.rounds {
		if round < from {
			continue
		}
		if to > 0 && round > to {
			break
		}
		out = append(out, cloneRecord(snap.records[round]))
	}
	return out, nil
}

func (s *MemoryDrawStore) ListExcludedCombinations(ctx context.Context, lookback int) ([]models.NumberSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lookback <= 0 {
		return nil, nil
	}
	snap := s.snapshot()
	rounds := snap.rounds
	if len(rounds) > lookback {
		rounds = rounds[len(rounds)-lookback:]
	}
	out := make([]models.NumberSet, 0, len(rounds))
	for i := len(rounds) - 1; i >= 0; i-- {
		out = append(out, snap.records[rounds[i]].WinningNumbers)
	}
	return out, nil
}

func (s *MemoryDrawStore) ListPendingPrizeRounds(ctx context.Context, since, limit int) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.snapshot()
	var out []int
	for _, round := range snap.rounds {
		if limit > 0 && len(out) >= limit {
			break
		}
		if round >= since && !snap.records[round].PrizeTable.Finalized() {
			out = append(out, round)
		}
	}
	return out, nil
}

func (s *MemoryDrawStore) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.current.Store(&drawSnapshot{records: map[int]models.DrawRecord{}})
	return nil
}

// Count 返回记录数
func (s *MemoryDrawStore) Count() int {
	return len(s.snapshot().rounds)
}

func insertSorted(rounds []int, round int) []int {
	i := sort.SearchInts(rounds, round)
	out := make([]int, 0, len(rounds)+1)
	out = append(out, rounds[:i]...)
	out = append(out, round)
	return append(out, rounds[i:]...)
}

func cloneRecord(rec models.DrawRecord) models.DrawRecord {
	rec.PrizeTable = rec.PrizeTable.Clone()
	return rec
}
