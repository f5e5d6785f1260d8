package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuKim0221/smart-lotto/pkg/business"
	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
	"github.com/stuKim0221/smart-lotto/pkg/ticket"
)

const drawHistoryCSV = `year,drawNo,date,n1,n2,n3,n4,n5,n6,bonus
2023,1100,2023-12-30,17,26,21,44,7,24,10
2023,1099,2023-12-23,3,20,28,38,40,43,4
2023,1098,2023-12-16,12,14,21,33,39,42,1
2023,bad,2023-12-09,1,2,3,4,5,6,7
2023,1097,2023-12-09,14,33,34,35,37,40,4
2023,1096,2023-12-02,1,12,16,19,23,43,34
2023,1095,2023-11-25,8,14,28,29,34,40,12
2023,1094,2023-11-18,6,7,15,22,26,40,41
2023,1093,2023-11-11,10,17,22,30,35,43,44
2023,1092,2023-11-04,7,18,19,26,33,45,37
2023,1091,2023-10-28,1,4,16,26,40,41,31
2023,1090,2023-10-21,16,26,31,38,39,41,23
2023,1089,2023-10-14,4,13,14,20,27,27,17
`

func TestImportDrawsCSV(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDrawStore()

	report, err := ImportDrawsCSV(ctx, strings.NewReader(drawHistoryCSV), store, common.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, 13, report.Rows)
	assert.Equal(t, 11, report.Inserted)
	// bad drawNo on line 5, duplicate 27 on line 14
	assert.Equal(t, []int{5, 14}, report.Skipped)

	rec, ok, err := store.Get(ctx, 1100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.MustNumberSet(7, 17, 21, 24, 26, 44), rec.WinningNumbers)
	assert.Equal(t, 10, rec.BonusNumber)
	assert.Equal(t, "2023-12-30", rec.DrawDate.Format(models.DateLayout))
	assert.False(t, rec.PrizeTable.Finalized())

	// importing again changes nothing
	report, err = ImportDrawsCSV(ctx, strings.NewReader(drawHistoryCSV), store, common.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 11, report.Unchanged)
}

func TestImportDrawsCSV_ConflictAborts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDrawStore()
	_, err := ImportDrawsCSV(ctx, strings.NewReader("2023,1100,2023-12-30,17,26,21,44,7,24,10\n"), store, common.NopLogger{})
	require.NoError(t, err)

	_, err = ImportDrawsCSV(ctx, strings.NewReader("2023,1100,2023-12-30,17,26,21,44,7,25,10\n"), store, common.NopLogger{})
	var mismatch *common.RecordMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestWriteDrawsCSV_RoundTrips(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDrawStore()
	_, err := ImportDrawsCSV(ctx, strings.NewReader(drawHistoryCSV), store, common.NopLogger{})
	require.NoError(t, err)
	records, err := store.List(ctx, 0, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteDrawsCSV(&buf, records))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "year,drawNo,date,n1,n2,n3,n4,n5,n6,bonus", lines[0])
	assert.Equal(t, "2023,1090,2023-10-21,16,26,31,38,39,41,23", lines[1])

	copyStore := NewMemoryDrawStore()
	report, err := ImportDrawsCSV(ctx, &buf, copyStore, common.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, len(records), report.Inserted)
	assert.Empty(t, report.Skipped)
}

func TestWriteEvaluationsCSV(t *testing.T) {
	draw := drawFor(t, 1100, []int{3, 11, 19, 24, 38, 42}, 7, finalTable())
	tk, err := ticket.FromManualEntry(1100, [][]int{
		{3, 11, 19, 24, 38, 1},
		{3, 11, 19, 24, 38, 7},
		{1, 2, 4, 5, 6, 8},
	})
	require.NoError(t, err)
	results, err := business.Evaluate(tk, draw)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteEvaluationsCSV(&buf, tk, results))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "round,selection,mode,numbers,matched,bonus_matched,tier,payout_state,payout_amount", lines[0])
	assert.Equal(t, "1100,1,manual,1 3 11 19 24 38,5,false,tier3,final,1500000", lines[1])
	assert.Equal(t, "1100,2,manual,3 7 11 19 24 38,5,true,tier2,final,50000000", lines[2])
	assert.Equal(t, "1100,3,manual,1 2 4 5 6 8,0,false,none,,", lines[3])
}

func TestWriteEvaluationsCSV_RejectsForeignResult(t *testing.T) {
	tk, err := ticket.FromManualEntry(5, [][]int{{1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)
	err = WriteEvaluationsCSV(&bytes.Buffer{}, tk, []models.EvaluationResult{{SelectionIndex: 3}})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
