package business

import (
	"sort"

	"github.com/stuKim0221/smart-lotto/pkg/models"
)

const rangeBuckets = 5

// RangeLabels names the number buckets used by Analysis.RangeCounts.
var RangeLabels = [rangeBuckets]string{"1-9", "10-18", "19-27", "28-36", "37-45"}

// Analysis describes the shape of a number set.
type Analysis struct {
	Numbers          models.NumberSet   `json:"numbers"`
	OddCount         int                `json:"odd_count"`
	EvenCount        int                `json:"even_count"`
	Sum              int                `json:"sum"`
	RangeCounts      [rangeBuckets]int  `json:"range_counts"`
	ConsecutivePairs int                `json:"consecutive_pairs"`
	LongestRun       int                `json:"longest_run"`
	QualityScore     int                `json:"quality_score"`
	Grade            string             `json:"grade"`
}

// Analyze scores set out of 100: odd/even balance (30), spread over the five
// ranges (40) and few consecutive pairs (30).
func Analyze(set models.NumberSet) Analysis {
	a := Analysis{Numbers: set, Sum: set.Sum(), LongestRun: LongestRun(set)}

	for i, n := range set {
		if n%2 == 1 {
			a.OddCount++
		} else {
			a.EvenCount++
		}

		bucket := (n - 1) / 9
		if bucket >= rangeBuckets {
			bucket = rangeBuckets - 1
		}
		a.RangeCounts[bucket]++

		if i > 0 && n-set[i-1] == 1 {
			a.ConsecutivePairs++
		}
	}

	a.QualityScore = oddEvenScore(a.OddCount, a.EvenCount) + rangeScore(a.RangeCounts) + consecutiveScore(a.ConsecutivePairs)
	if a.QualityScore > 100 {
		a.QualityScore = 100
	}
	a.Grade = gradeFor(a.QualityScore)
	return a
}

// LongestRun returns the length of the longest run of consecutive integers in set.
func LongestRun(set models.NumberSet) int {
	longest, run := 1, 1
	for i := 1; i < len(set); i++ {
		if set[i]-set[i-1] == 1 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
	}
	return longest
}

func oddEvenScore(odd, even int) int {
	switch abs(odd - even) {
	case 0:
		return 30
	case 2:
		return 20
	case 4:
		return 10
	default:
		return 0
	}
}

func rangeScore(counts [rangeBuckets]int) int {
	score, maxInRange := 40, 0
	for _, c := range counts {
		if c == 0 {
			score -= 8
		}
		if c > maxInRange {
			maxInRange = c
		}
	}
	if maxInRange > 3 {
		score -= 15
	}
	if score < 0 {
		return 0
	}
	return score
}

func consecutiveScore(pairs int) int {
	score := 30 - pairs*10
	if score < 0 {
		return 0
	}
	return score
}

func gradeFor(score int) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	default:
		return "poor"
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// NumberFrequency counts how often a number was drawn.
type NumberFrequency struct {
	Number int `json:"number"`
	Count  int `json:"count"`
}

// NumberStats summarizes draw history.
type NumberStats struct {
	Draws       int               `json:"draws"`
	FromRound   int               `json:"from_round"`
	ToRound     int               `json:"to_round"`
	Frequencies []NumberFrequency `json:"frequencies"`
	Hot         []int             `json:"hot"`
	Cold        []int             `json:"cold"`
}

// Statistics counts number frequencies over draws. Bonus numbers are
// counted only when includeBonus is set.
func Statistics(draws []models.DrawRecord, includeBonus bool) NumberStats {
	stats := NumberStats{Draws: len(draws)}

	var counts [models.MaxNumber + 1]int
	for _, d := range draws {
		for _, n := range d.WinningNumbers {
			counts[n]++
		}
		if includeBonus {
			counts[d.BonusNumber]++
		}
		if stats.FromRound == 0 || d.Round < stats.FromRound {
			stats.FromRound = d.Round
		}
		if d.Round > stats.ToRound {
			stats.ToRound = d.Round
		}
	}

	stats.Frequencies = make([]NumberFrequency, 0, models.MaxNumber)
	for n := models.MinNumber; n <= models.MaxNumber; n++ {
		stats.Frequencies = append(stats.Frequencies, NumberFrequency{Number: n, Count: counts[n]})
	}

	ranked := make([]NumberFrequency, len(stats.Frequencies))
	copy(ranked, stats.Frequencies)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	for i := 0; i < models.PickSize; i++ {
		stats.Hot = append(stats.Hot, ranked[i].Number)
		stats.Cold = append(stats.Cold, ranked[len(ranked)-1-i].Number)
	}
	return stats
}
