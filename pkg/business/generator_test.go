package business

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

func TestGenerateProducesValidSets(t *testing.T) {
	sets, err := NewGenerator().Generate(models.CombinationRequest{Count: 50})
	require.NoError(t, err)
	require.Len(t, sets, 50)

	for _, s := range sets {
		assert.True(t, s.Valid(), "invalid set %v", s)
	}
}

func TestGenerateRespectsSumRange(t *testing.T) {
	req := models.CombinationRequest{
		Count:   5,
		Filters: models.FilterPolicy{Sum: &models.IntRange{Min: 100, Max: 150}},
	}

	sets, err := NewSeededGenerator(42).Generate(req)
	require.NoError(t, err)
	require.Len(t, sets, 5)
	for _, s := range sets {
		assert.GreaterOrEqual(t, s.Sum(), 100)
		assert.LessOrEqual(t, s.Sum(), 150)
	}
}

func TestGenerateRespectsOddAndRunFilters(t *testing.T) {
	req := models.CombinationRequest{
		Count: 20,
		Filters: models.FilterPolicy{
			Odd:               &models.IntRange{Min: 3, Max: 3},
			MaxConsecutiveRun: 1,
		},
	}

	sets, err := NewSeededGenerator(7).Generate(req)
	require.NoError(t, err)
	for _, s := range sets {
		a := Analyze(s)
		assert.Equal(t, 3, a.OddCount)
		assert.Equal(t, 1, a.LongestRun)
	}
}

func TestGenerateExhaustsOnImpossibleFilters(t *testing.T) {
	req := models.CombinationRequest{
		Count:       1,
		MaxAttempts: 500,
		Filters:     models.FilterPolicy{Sum: &models.IntRange{Min: 0, Max: 20}},
	}

	sets, err := NewGenerator().Generate(req)
	assert.Nil(t, sets)

	var exhausted *common.GenerationExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 500, exhausted.Attempts)
	assert.Equal(t, 0, exhausted.Produced)
}

func TestGenerateExcludesByValue(t *testing.T) {
	first, err := NewSeededGenerator(11).Generate(models.CombinationRequest{Count: 1})
	require.NoError(t, err)

	// same sequence, but the first draw is now excluded
	req := models.CombinationRequest{
		Count:   1,
		Filters: models.FilterPolicy{Exclude: []models.NumberSet{first[0]}},
	}
	second, err := NewSeededGenerator(11).Generate(req)
	require.NoError(t, err)
	assert.NotEqual(t, first[0], second[0])
}

func TestGenerateExcludesUnorderedJSONSet(t *testing.T) {
	first, err := NewSeededGenerator(11).Generate(models.CombinationRequest{Count: 1})
	require.NoError(t, err)
	n := first[0]

	body := fmt.Sprintf(`{"count":1,"filters":{"exclude":[[%d,%d,%d,%d,%d,%d]]}}`, n[5], n[4], n[3], n[2], n[1], n[0])
	var req models.CombinationRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.Equal(t, []models.NumberSet{n}, req.Filters.Exclude)

	second, err := NewSeededGenerator(11).Generate(req)
	require.NoError(t, err)
	assert.NotEqual(t, n, second[0])
}

func TestGenerateRejectsMalformedExclusion(t *testing.T) {
	req := models.CombinationRequest{
		Count:   1,
		Filters: models.FilterPolicy{Exclude: []models.NumberSet{{6, 5, 4, 3, 2, 1}}},
	}
	_, err := NewGenerator().Generate(req)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestGenerateDistinct(t *testing.T) {
	req := models.CombinationRequest{
		Count:   200,
		Filters: models.FilterPolicy{Odd: &models.IntRange{Min: 6, Max: 6}, Distinct: true},
	}

	sets, err := NewSeededGenerator(5).Generate(req)
	require.NoError(t, err)

	seen := make(map[models.NumberSet]bool)
	for _, s := range sets {
		assert.False(t, seen[s], "duplicate %v", s)
		seen[s] = true
	}
}

func TestGenerateMinQuality(t *testing.T) {
	sets, err := NewSeededGenerator(3).Generate(models.CombinationRequest{
		Count:   10,
		Filters: models.FilterPolicy{MinQuality: 80},
	})
	require.NoError(t, err)
	for _, s := range sets {
		assert.GreaterOrEqual(t, Analyze(s).QualityScore, 80)
	}
}

func TestSeededGeneratorIsDeterministic(t *testing.T) {
	req := models.CombinationRequest{Count: 5}

	a, err := NewSeededGenerator(99).Generate(req)
	require.NoError(t, err)
	b, err := NewSeededGenerator(99).Generate(req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	_, err := NewGenerator().Generate(models.CombinationRequest{Count: 0})
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestGeneratorIsSafeForConcurrentUse(t *testing.T) {
	g := NewGenerator()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sets, err := g.Generate(models.CombinationRequest{Count: 10})
			assert.NoError(t, err)
			assert.Len(t, sets, 10)
		}()
	}
	wg.Wait()
}

func TestAnalyze(t *testing.T) {
	a := Analyze(models.MustNumberSet(3, 12, 21, 29, 38, 44))
	assert.Equal(t, 3, a.OddCount)
	assert.Equal(t, 3, a.EvenCount)
	assert.Equal(t, [5]int{1, 1, 1, 1, 2}, a.RangeCounts)
	assert.Equal(t, 0, a.ConsecutivePairs)
	assert.Equal(t, 100, a.QualityScore)
	assert.Equal(t, "excellent", a.Grade)

	b := Analyze(models.MustNumberSet(1, 2, 3, 4, 5, 6))
	assert.Equal(t, 5, b.ConsecutivePairs)
	assert.Equal(t, 6, b.LongestRun)
	// odd/even 30, four empty ranges and six in one range 40-32-15<0 -> 0, pairs 0
	assert.Equal(t, 30, b.QualityScore)
	assert.Equal(t, "poor", b.Grade)
}

func TestStatistics(t *testing.T) {
	draws := []models.DrawRecord{
		{Round: 1, WinningNumbers: models.MustNumberSet(1, 2, 3, 4, 5, 6), BonusNumber: 7},
		{Round: 2, WinningNumbers: models.MustNumberSet(1, 2, 3, 4, 5, 8), BonusNumber: 9},
	}

	stats := Statistics(draws, false)
	assert.Equal(t, 2, stats.Draws)
	assert.Equal(t, 1, stats.FromRound)
	assert.Equal(t, 2, stats.ToRound)
	assert.Len(t, stats.Frequencies, 45)
	assert.Equal(t, 2, stats.Frequencies[0].Count)
	assert.Equal(t, 0, stats.Frequencies[6].Count)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, stats.Hot)
	assert.Len(t, stats.Cold, 6)

	withBonus := Statistics(draws, true)
	assert.Equal(t, 1, withBonus.Frequencies[6].Count)
}
