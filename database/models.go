package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// PrizeTableJSON 以 JSONB 存储的奖金表
type PrizeTableJSON models.PrizeTable

// Value implements driver.Valuer.
func (p PrizeTableJSON) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(models.PrizeTable(p))
}

// Scan implements sql.Scanner.
func (p *PrizeTableJSON) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported prize_table type %T", src)
	}
	table := models.PrizeTable{}
	if err := json.Unmarshal(raw, &table); err != nil {
		return fmt.Errorf("failed to decode prize_table: %w", err)
	}
	if len(table) == 0 {
		table = models.PendingPrizeTable()
	}
	*p = PrizeTableJSON(table)
	return nil
}

// DrawRow 开奖记录行
type DrawRow struct {
	Round          int            `db:"round"`
	DrawDate       time.Time      `db:"draw_date"`
	N1             int            `db:"n1"`
	N2             int            `db:"n2"`
	N3             int            `db:"n3"`
	N4             int            `db:"n4"`
	N5             int            `db:"n5"`
	N6             int            `db:"n6"`
	Bonus          int            `db:"bonus"`
	PrizeTable     PrizeTableJSON `db:"prize_table"`
	PrizeFinalized bool           `db:"prize_finalized"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// DrawRowFrom flattens a record into its row form.
func DrawRowFrom(rec models.DrawRecord) DrawRow {
	w := rec.WinningNumbers
	return DrawRow{
		Round:          rec.Round,
		DrawDate:       rec.DrawDate,
		N1:             w[0],
		N2:             w[1],
		N3:             w[2],
		N4:             w[3],
		N5:             w[4],
		N6:             w[5],
		Bonus:          rec.BonusNumber,
		PrizeTable:     PrizeTableJSON(rec.PrizeTable),
		PrizeFinalized: rec.PrizeTable.Finalized(),
	}
}

// ToRecord rebuilds the domain record and checks it is still well formed.
func (r DrawRow) ToRecord() (models.DrawRecord, error) {
	rec, err := models.NewDrawRecord(
		r.Round,
		r.DrawDate,
		[]int{r.N1, r.N2, r.N3, r.N4, r.N5, r.N6},
		r.Bonus,
		models.PrizeTable(r.PrizeTable),
	)
	if err != nil {
		return models.DrawRecord{}, fmt.Errorf("%w: round %d: %v", ErrCorruptRow, r.Round, err)
	}
	return rec, nil
}

// SyncRun 同步周期记录
type SyncRun struct {
	ID          string          `db:"id"`
	Trigger     string          `db:"trigger"`
	StartedAt   time.Time       `db:"started_at"`
	FinishedAt  time.Time       `db:"finished_at"`
	Phase       string          `db:"phase"`
	LatestRound *int            `db:"latest_round"`
	Applied     pq.Int64Array   `db:"applied"`
	Revised     pq.Int64Array   `db:"revised"`
	Failures    json.RawMessage `db:"failures"`
	Error       *string         `db:"error"`
}

// ErrCorruptRow is returned when a stored row no longer decodes.
var ErrCorruptRow = errors.New("corrupt row")
