package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/ingestion"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

var drawCSVHeader = []string{"year", "drawNo", "date", "n1", "n2", "n3", "n4", "n5", "n6", "bonus"}

var evaluationCSVHeader = []string{
	"round", "selection", "mode", "numbers", "matched", "bonus_matched", "tier", "payout_state", "payout_amount",
}

// ImportReport 导入结果
type ImportReport struct {
	Rows      int   `json:"rows"`
	Inserted  int   `json:"inserted"`
	Updated   int   `json:"updated"`
	Unchanged int   `json:"unchanged"`
	Skipped   []int `json:"skipped_lines"`
}

// ImportDrawsCSV seeds store from a draw history file with the columns
// year,drawNo,date,n1..n6,bonus. Rows are applied through Upsert, so the
// import is idempotent. Unparseable lines are skipped and reported by line
// number; a stored round that disagrees aborts the import.
func ImportDrawsCSV(ctx context.Context, r io.Reader, store ingestion.DrawStore, logger common.Logger) (ImportReport, error) {
	var report ImportReport

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	line := 0
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return report, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if line == 1 && isDrawHeader(fields) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Rows++
		rec, err := parseDrawRow(fields)
		if err != nil {
			logger.Warn("Line %d skipped: %v", line, err)
			report.Skipped = append(report.Skipped, line)
			continue
		}

		outcome, err := store.Upsert(ctx, rec)
		if err != nil {
			return report, fmt.Errorf("line %d: %w", line, err)
		}
		switch outcome {
		case models.UpsertInserted:
			report.Inserted++
		case models.UpsertUpdated:
			report.Updated++
		default:
			report.Unchanged++
		}
	}

	logger.Info("📥 Imported %d rows: %d inserted, %d updated, %d unchanged, %d skipped",
		report.Rows, report.Inserted, report.Updated, report.Unchanged, len(report.Skipped))
	return report, nil
}

func isDrawHeader(fields []string) bool {
	return len(fields) > 1 && strings.EqualFold(strings.TrimSpace(fields[1]), "drawNo")
}

func parseDrawRow(fields []string) (models.DrawRecord, error) {
	if len(fields) < len(drawCSVHeader) {
		return models.DrawRecord{}, fmt.Errorf("expected %d fields, got %d", len(drawCSVHeader), len(fields))
	}

	round, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return models.DrawRecord{}, fmt.Errorf("drawNo %q: %w", fields[1], err)
	}
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(fields[2]))
	if err != nil {
		return models.DrawRecord{}, fmt.Errorf("date %q: %w", fields[2], err)
	}

	nums := make([]int, 7)
	for i := range nums {
		n, err := strconv.Atoi(strings.TrimSpace(fields[3+i]))
		if err != nil {
			return models.DrawRecord{}, fmt.Errorf("%s %q: %w", drawCSVHeader[3+i], fields[3+i], err)
		}
		nums[i] = n
	}
	return models.NewDrawRecord(round, date, nums[:6], nums[6], nil)
}

// WriteDrawsCSV writes records in the same layout ImportDrawsCSV reads.
func WriteDrawsCSV(w io.Writer, records []models.DrawRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(drawCSVHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := make([]string, 0, len(drawCSVHeader))
		row = append(row,
			strconv.Itoa(rec.DrawDate.Year()),
			strconv.Itoa(rec.Round),
			rec.DrawDate.Format(models.DateLayout),
		)
		for _, n := range rec.WinningNumbers {
			row = append(row, strconv.Itoa(n))
		}
		row = append(row, strconv.Itoa(rec.BonusNumber))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEvaluationsCSV writes one row per evaluated selection of ticket.
func WriteEvaluationsCSV(w io.Writer, ticket models.Ticket, results []models.EvaluationResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(evaluationCSVHeader); err != nil {
		return err
	}
	for _, res := range results {
		if res.SelectionIndex < 0 || res.SelectionIndex >= len(ticket.Selections) {
			return fmt.Errorf("%w: result for selection %d of %d", common.ErrInvalidInput, res.SelectionIndex, len(ticket.Selections))
		}
		sel := ticket.Selections[res.SelectionIndex]

		state, amount := "", ""
		if res.Payout != nil {
			state, amount = string(res.Payout.State), res.Payout.Amount.String()
		}
		row := []string{
			strconv.Itoa(ticket.IssuedRound),
			strconv.Itoa(res.SelectionIndex + 1),
			string(sel.Mode),
			strings.ReplaceAll(sel.Numbers.String(), ",", " "),
			strconv.Itoa(res.MatchedCount),
			strconv.FormatBool(res.MatchedBonus),
			res.Tier.String(),
			state,
			amount,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
