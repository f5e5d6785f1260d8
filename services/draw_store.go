package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stuKim0221/smart-lotto/database"
	"github.com/stuKim0221/smart-lotto/pkg/ingestion"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

const drawColumns = `round, draw_date, n1, n2, n3, n4, n5, n6, bonus, prize_table, prize_finalized, created_at, updated_at`

// PostgresDrawStore 基于 PostgreSQL 的开奖记录存储
type PostgresDrawStore struct {
	db *sqlx.DB
}

var _ ingestion.DrawStore = (*PostgresDrawStore)(nil)

// NewPostgresDrawStore 创建存储
func NewPostgresDrawStore(db *sqlx.DB) *PostgresDrawStore {
	return &PostgresDrawStore{db: db}
}

func (s *PostgresDrawStore) Get(ctx context.Context, round int) (models.DrawRecord, bool, error) {
	var row database.DrawRow
	err := s.db.GetContext(ctx, &row, `SELECT `+drawColumns+` FROM draw_records WHERE round = $1`, round)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DrawRecord{}, false, nil
	}
	if err != nil {
		return models.DrawRecord{}, false, fmt.Errorf("failed to load round %d: %w", round, err)
	}
	rec, err := row.ToRecord()
	if err != nil {
		return models.DrawRecord{}, false, err
	}
	return rec, true, nil
}

// Upsert 在一个事务内锁定行、比对并写入，读者不会看到部分写入的记录
func (s *PostgresDrawStore) Upsert(ctx context.Context, record models.DrawRecord) (outcome models.UpsertOutcome, err error) {
	if err := record.Validate(); err != nil {
		return models.UpsertUnchanged, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.UpsertUnchanged, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stored, found, err := s.lockRound(ctx, tx, record.Round)
	if err != nil {
		return models.UpsertUnchanged, err
	}

	if !found {
		row := database.DrawRowFrom(record)
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO draw_records (round, draw_date, n1, n2, n3, n4, n5, n6, bonus, prize_table, prize_finalized)
			VALUES (:round, :draw_date, :n1, :n2, :n3, :n4, :n5, :n6, :bonus, :prize_table, :prize_finalized)
			ON CONFLICT (round) DO NOTHING
		`, row)
		if err != nil {
			return models.UpsertUnchanged, fmt.Errorf("failed to insert round %d: %w", record.Round, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			if err := tx.Commit(); err != nil {
				return models.UpsertUnchanged, fmt.Errorf("failed to commit round %d: %w", record.Round, err)
			}
			return models.UpsertInserted, nil
		}

		// 并发写入者先插入了同一期
		stored, found, err = s.lockRound(ctx, tx, record.Round)
		if err != nil {
			return models.UpsertUnchanged, err
		}
		if !found {
			return models.UpsertUnchanged, fmt.Errorf("round %d vanished during upsert", record.Round)
		}
	}

	merged, outcome, err := stored.Reconcile(record)
	if err != nil {
		return models.UpsertUnchanged, err
	}
	if outcome == models.UpsertUpdated {
		_, err = tx.ExecContext(ctx, `
			UPDATE draw_records
			SET prize_table = $2, prize_finalized = $3, updated_at = $4
			WHERE round = $1
		`, merged.Round, database.PrizeTableJSON(merged.PrizeTable), merged.PrizeTable.Finalized(), time.Now())
		if err != nil {
			return models.UpsertUnchanged, fmt.Errorf("failed to update round %d: %w", record.Round, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return models.UpsertUnchanged, fmt.Errorf("failed to commit round %d: %w", record.Round, err)
	}
	return outcome, nil
}

func (s *PostgresDrawStore) lockRound(ctx context.Context, tx *sqlx.Tx, round int) (models.DrawRecord, bool, error) {
	var row database.DrawRow
	err := tx.GetContext(ctx, &row, `SELECT `+drawColumns+` FROM draw_records WHERE round = $1 FOR UPDATE`, round)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DrawRecord{}, false, nil
	}
	if err != nil {
		return models.DrawRecord{}, false, fmt.Errorf("failed to lock round %d: %w", round, err)
	}
	rec, err := row.ToRecord()
	if err != nil {
		return models.DrawRecord{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresDrawStore) MaxRound(ctx context.Context) (int, error) {
	var maxRound sql.NullInt64
	if err := s.db.GetContext(ctx, &maxRound, `SELECT MAX(round) FROM draw_records`); err != nil {
		return 0, fmt.Errorf("failed to query max round: %w", err)
	}
	return int(maxRound.Int64), nil
}

func (s *PostgresDrawStore) List(ctx context.Context, from, to int) ([]models.DrawRecord, error) {
	var rows []database.DrawRow
	var err error
	if to > 0 {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+drawColumns+` FROM draw_records WHERE round >= $1 AND round <= $2 ORDER BY round ASC`, from, to)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+drawColumns+` FROM draw_records WHERE round >= $1 ORDER BY round ASC`, from)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list draws: %w", err)
	}
	return toRecords(rows)
}

func (s *PostgresDrawStore) ListExcludedCombinations(ctx context.Context, lookback int) ([]models.NumberSet, error) {
	if lookback <= 0 {
		return nil, nil
	}
	var rows []database.DrawRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+drawColumns+` FROM draw_records ORDER BY round DESC LIMIT $1`, lookback)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent draws: %w", err)
	}
	records, err := toRecords(rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.NumberSet, len(records))
	for i, rec := range records {
		out[i] = rec.WinningNumbers
	}
	return out, nil
}

func (s *PostgresDrawStore) ListPendingPrizeRounds(ctx context.Context, since, limit int) ([]int, error) {
	if limit <= 0 {
		limit = 100
	}
	var rounds []int
	err := s.db.SelectContext(ctx, &rounds,
		`SELECT round FROM draw_records WHERE NOT prize_finalized AND round >= $1 ORDER BY round ASC LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending prize rounds: %w", err)
	}
	return rounds, nil
}

// Reset 清空开奖记录
func (s *PostgresDrawStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE TABLE draw_records`); err != nil {
		return fmt.Errorf("failed to reset draw records: %w", err)
	}
	return nil
}

// SaveSyncRun 保存同步周期报告
func (s *PostgresDrawStore) SaveSyncRun(ctx context.Context, report SyncReport) error {
	failures, err := json.Marshal(report.Failures)
	if err != nil {
		return fmt.Errorf("failed to encode sync failures: %w", err)
	}
	run := database.SyncRun{
		ID:         report.CycleID,
		Trigger:    report.Trigger,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Phase:      report.Phase.String(),
		Applied:    toInt64Array(report.Applied),
		Revised:    toInt64Array(report.Revised),
		Failures:   failures,
	}
	if report.LatestRound > 0 {
		latest := report.LatestRound
		run.LatestRound = &latest
	}
	if report.Error != "" {
		msg := report.Error
		run.Error = &msg
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO sync_runs (id, trigger, started_at, finished_at, phase, latest_round, applied, revised, failures, error)
		VALUES (:id, :trigger, :started_at, :finished_at, :phase, :latest_round, :applied, :revised, :failures, :error)
	`, run)
	if err != nil {
		return fmt.Errorf("failed to save sync run %s: %w", report.CycleID, err)
	}
	return nil
}

func toRecords(rows []database.DrawRow) ([]models.DrawRecord, error) {
	out := make([]models.DrawRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.ToRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func toInt64Array(rounds []int) pq.Int64Array {
	out := make(pq.Int64Array, len(rounds))
	for i, r := range rounds {
		out[i] = int64(r)
	}
	return out
}
