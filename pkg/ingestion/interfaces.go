package ingestion

import (
	"context"

	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// ResultSource 开奖结果数据源接口
type ResultSource interface {
	// GetRoundResult returns the raw JSON document describing one round.
	GetRoundResult(ctx context.Context, round int) ([]byte, error)

	// GetName 获取数据源名称
	GetName() string
}

// PrizeSource returns the full per-tier breakdown of a round.
type PrizeSource interface {
	GetPrizeBreakdown(ctx context.Context, round int) (*PrizeBreakdown, error)
}

// PrizeBreakdown is a prize table as published by the issuer. Numbers and
// Bonus are optional; when present they are cross-checked with the stored draw.
type PrizeBreakdown struct {
	Round   int
	Numbers []int
	Bonus   int
	Table   models.PrizeTable
}

// DrawReader is the read side of the draw record store.
type DrawReader interface {
	// Get returns the stored record and whether it exists.
	Get(ctx context.Context, round int) (models.DrawRecord, bool, error)

	// MaxRound returns the highest stored round, 0 when empty.
	MaxRound(ctx context.Context) (int, error)

	// List returns records with from <= round <= to in ascending order. to <= 0 means no upper bound.
	List(ctx context.Context, from, to int) ([]models.DrawRecord, error)

	// ListExcludedCombinations returns the winning sets of the most recent lookback rounds.
	ListExcludedCombinations(ctx context.Context, lookback int) ([]models.NumberSet, error)
}

// DrawStore 开奖记录存储接口
type DrawStore interface {
	DrawReader

	// Upsert stores the record atomically. It fails with a RecordMismatchError
	// when a stored record for the round disagrees on the drawn numbers.
	Upsert(ctx context.Context, record models.DrawRecord) (models.UpsertOutcome, error)

	// ListPendingPrizeRounds returns up to limit rounds >= since whose prize table is not final, oldest first.
	ListPendingPrizeRounds(ctx context.Context, since, limit int) ([]int, error)

	// Reset removes every record. Only used by explicit data resets.
	Reset(ctx context.Context) error
}

// FetchObserver receives fetch outcomes, e.g. for metrics.
type FetchObserver interface {
	ObserveFetch(outcome string, attempts int)
}
