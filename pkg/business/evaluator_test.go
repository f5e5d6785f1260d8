package business

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

func testDraw(t *testing.T, round int, winning []int, bonus int) models.DrawRecord {
	t.Helper()
	draw, err := models.NewDrawRecord(round, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), winning, bonus, nil)
	require.NoError(t, err)
	return draw
}

func ticketFor(round int, games ...models.NumberSet) models.Ticket {
	t := models.Ticket{IssuedRound: round}
	for _, g := range games {
		t.Selections = append(t.Selections, models.Selection{Numbers: g, Mode: models.ModeManual})
	}
	return t
}

func TestTierForIsTotal(t *testing.T) {
	expected := map[int][2]models.Tier{
		0: {models.TierNone, models.TierNone},
		1: {models.TierNone, models.TierNone},
		2: {models.TierNone, models.TierNone},
		3: {models.Tier5, models.Tier5},
		4: {models.Tier4, models.Tier4},
		5: {models.Tier3, models.Tier2},
		6: {models.Tier1, models.Tier1},
	}

	for matched := 0; matched <= 6; matched++ {
		assert.Equal(t, expected[matched][0], TierFor(matched, false), "matched=%d bonus=false", matched)
		assert.Equal(t, expected[matched][1], TierFor(matched, true), "matched=%d bonus=true", matched)
	}
}

func TestEvaluateExamples(t *testing.T) {
	draw := testDraw(t, 1100, []int{3, 11, 19, 27, 35, 43}, 7)

	tests := []struct {
		name    string
		set     models.NumberSet
		tier    models.Tier
		matched int
		bonus   bool
	}{
		{"five plus bonus", models.MustNumberSet(3, 11, 19, 27, 35, 7), models.Tier2, 5, true},
		{"jackpot", models.MustNumberSet(3, 11, 19, 27, 35, 43), models.Tier1, 6, false},
		{"five", models.MustNumberSet(3, 11, 19, 27, 35, 44), models.Tier3, 5, false},
		{"four", models.MustNumberSet(3, 11, 19, 27, 1, 2), models.Tier4, 4, false},
		{"three", models.MustNumberSet(3, 11, 19, 1, 2, 4), models.Tier5, 3, false},
		{"two plus bonus", models.MustNumberSet(3, 11, 7, 1, 2, 4), models.TierNone, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Evaluate(ticketFor(1100, tt.set), draw)
			require.NoError(t, err)
			require.Len(t, results, 1)

			assert.Equal(t, tt.tier, results[0].Tier)
			assert.Equal(t, tt.matched, results[0].MatchedCount)
			assert.Equal(t, tt.bonus, results[0].MatchedBonus)
			assert.Equal(t, tt.tier != models.TierNone, results[0].Payout != nil)
		})
	}
}

func TestEvaluatePreservesSelectionOrder(t *testing.T) {
	draw := testDraw(t, 1100, []int{1, 2, 3, 4, 5, 6}, 7)
	ticket := ticketFor(1100,
		models.MustNumberSet(10, 11, 12, 13, 14, 15),
		models.MustNumberSet(1, 2, 3, 4, 5, 6),
		models.MustNumberSet(1, 2, 3, 10, 11, 12),
	)

	results, err := Evaluate(ticket, draw)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i, r.SelectionIndex)
	}
	assert.Equal(t, models.TierNone, results[0].Tier)
	assert.Equal(t, models.Tier1, results[1].Tier)
	assert.Equal(t, models.Tier5, results[2].Tier)
}

func TestEvaluateAttachesPayout(t *testing.T) {
	draw := testDraw(t, 1100, []int{1, 2, 3, 4, 5, 6}, 7)
	draw.PrizeTable[models.Tier5] = models.FinalPayout(5000, 1000)

	results, err := Evaluate(ticketFor(1100, models.MustNumberSet(1, 2, 3, 10, 11, 12)), draw)
	require.NoError(t, err)
	require.NotNil(t, results[0].Payout)
	assert.Equal(t, "5000", results[0].Payout.Amount.String())
}

func TestEvaluateRoundMismatch(t *testing.T) {
	draw := testDraw(t, 1101, []int{1, 2, 3, 4, 5, 6}, 7)

	_, err := Evaluate(ticketFor(1100, models.MustNumberSet(1, 2, 3, 4, 5, 6)), draw)
	var mismatch *common.RoundMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 1100, mismatch.TicketRound)
	assert.Equal(t, 1101, mismatch.DrawRound)
}

func TestEvaluateSortsSelection(t *testing.T) {
	draw := testDraw(t, 1100, []int{3, 11, 19, 24, 38, 42}, 7)
	tk := models.Ticket{IssuedRound: 1100, Selections: []models.Selection{
		{Numbers: models.NumberSet{38, 3, 11, 19, 24, 7}, Mode: models.ModeManual},
	}}

	results, err := Evaluate(tk, draw)
	require.NoError(t, err)
	assert.Equal(t, 5, results[0].MatchedCount)
	assert.True(t, results[0].MatchedBonus)
	assert.Equal(t, models.Tier2, results[0].Tier)
}

func TestEvaluateRejectsInvalidSelection(t *testing.T) {
	draw := testDraw(t, 1100, []int{3, 11, 19, 24, 38, 42}, 7)

	for _, numbers := range []models.NumberSet{
		{1, 2, 3, 0, 0, 0},
		{1, 2, 3, 4, 5, 5},
		{1, 2, 3, 4, 5, 46},
	} {
		tk := models.Ticket{IssuedRound: 1100, Selections: []models.Selection{{Numbers: numbers, Mode: models.ModeManual}}}
		_, err := Evaluate(tk, draw)
		assert.ErrorIs(t, err, common.ErrInvalidInput, "numbers %v", numbers)
	}
}
