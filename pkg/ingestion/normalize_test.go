package ingestion

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

func TestNormalizeIssuerShape(t *testing.T) {
	body := issuerJSON(1100, "2023-12-30", [6]int{24, 17, 25, 32, 44, 45}, 33)

	record, err := NormalizeRoundResult(1100, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, 1100, record.Round)
	assert.Equal(t, models.MustNumberSet(17, 24, 25, 32, 44, 45), record.WinningNumbers)
	assert.Equal(t, 33, record.BonusNumber)
	assert.Equal(t, time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC), record.DrawDate)

	jackpot := record.PrizeTable.Payout(models.Tier1)
	assert.Equal(t, models.PayoutFinal, jackpot.State)
	assert.Equal(t, "2147483000", jackpot.Amount.String())
	assert.Equal(t, 12, jackpot.Winners)
	assert.Equal(t, models.PayoutPending, record.PrizeTable.Payout(models.Tier2).State)
}

func TestNormalizeGenericShape(t *testing.T) {
	body := `{"round":7,"numbers":[3,1,2,9,8,7],"bonus":4,"date":"2003-01-18",
		"payouts":{"1":{"amount":"1000000","winners":1},"5":5000,"2":{"state":"rollover","winners":0}}}`

	record, err := NormalizeRoundResult(7, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, models.MustNumberSet(1, 2, 3, 7, 8, 9), record.WinningNumbers)
	assert.Equal(t, "1000000", record.PrizeTable.Payout(models.Tier1).Amount.String())
	assert.Equal(t, models.PayoutFinal, record.PrizeTable.Payout(models.Tier5).State)
	assert.Equal(t, models.PayoutRollover, record.PrizeTable.Payout(models.Tier2).State)
	assert.Equal(t, models.PayoutPending, record.PrizeTable.Payout(models.Tier3).State)
}

func TestNormalizeNotDrawn(t *testing.T) {
	_, err := NormalizeRoundResult(5000, []byte(`{"returnValue":"fail"}`))
	assert.True(t, errors.Is(err, common.ErrRoundNotDrawn))
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>maintenance</html>`},
		{"five numbers", `{"round":7,"numbers":[1,2,3,4,5],"bonus":9,"date":"2003-01-18"}`},
		{"duplicate numbers", `{"round":7,"numbers":[1,2,3,4,5,5],"bonus":9,"date":"2003-01-18"}`},
		{"out of range", `{"round":7,"numbers":[1,2,3,4,5,46],"bonus":9,"date":"2003-01-18"}`},
		{"bonus collision", `{"round":7,"numbers":[1,2,3,4,5,6],"bonus":6,"date":"2003-01-18"}`},
		{"string number", `{"round":7,"numbers":[1,2,3,4,5,"6"],"bonus":9,"date":"2003-01-18"}`},
		{"fractional number", `{"round":7,"numbers":[1,2,3,4,5,6.5],"bonus":9,"date":"2003-01-18"}`},
		{"bad date", `{"round":7,"numbers":[1,2,3,4,5,6],"bonus":9,"date":"18/01/2003"}`},
		{"other round", `{"round":8,"numbers":[1,2,3,4,5,6],"bonus":9,"date":"2003-01-25"}`},
		{"missing bonus", `{"round":7,"numbers":[1,2,3,4,5,6],"date":"2003-01-18"}`},
		{"unknown tier", `{"round":7,"numbers":[1,2,3,4,5,6],"bonus":9,"date":"2003-01-18","payouts":{"6":100}}`},
		{"negative payout", `{"round":7,"numbers":[1,2,3,4,5,6],"bonus":9,"date":"2003-01-18","payouts":{"1":-100}}`},
		{"issuer missing number", `{"returnValue":"success","drwNo":7,"drwNoDate":"2003-01-18","drwtNo1":1,"bnusNo":9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeRoundResult(7, []byte(tt.body))
			var malformedErr *common.MalformedResultError
			assert.True(t, errors.As(err, &malformedErr), "got %v", err)
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	body := []byte(issuerJSON(1100, "2023-12-30", [6]int{45, 44, 32, 25, 24, 17}, 33))

	a, err := NormalizeRoundResult(1100, body)
	require.NoError(t, err)
	b, err := NormalizeRoundResult(1100, body)
	require.NoError(t, err)

	first, _ := json.Marshal(a)
	second, _ := json.Marshal(b)
	assert.Equal(t, string(first), string(second))
}
