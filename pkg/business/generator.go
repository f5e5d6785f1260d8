package business

import (
	"math/rand/v2"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// DefaultMaxAttempts bounds rejection sampling when a request sets no budget.
const DefaultMaxAttempts = 100000

// Generator draws filtered random combinations. It holds no mutable state;
// every call gets its own random source.
type Generator struct {
	newRand func() *rand.Rand
}

// NewGenerator 创建随机组合生成器
func NewGenerator() *Generator {
	return &Generator{newRand: func() *rand.Rand {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}}
}

// NewSeededGenerator returns a generator whose every call replays the same sequence.
func NewSeededGenerator(seed uint64) *Generator {
	return &Generator{newRand: func() *rand.Rand {
		return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}}
}

// Generate returns exactly req.Count combinations passing req.Filters, in the
// order they were drawn, or a GenerationExhaustedError when the attempt
// budget runs out first.
func (g *Generator) Generate(req models.CombinationRequest) ([]models.NumberSet, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	budget := req.MaxAttempts
	if budget == 0 {
		budget = DefaultMaxAttempts
	}

	excluded := make(map[models.NumberSet]struct{}, len(req.Filters.Exclude)+req.Count)
	for _, set := range req.Filters.Exclude {
		excluded[set] = struct{}{}
	}

	rng := g.newRand()
	var pool [models.MaxNumber]int
	for i := range pool {
		pool[i] = i + models.MinNumber
	}

	out := make([]models.NumberSet, 0, req.Count)
	attempts := 0
	for len(out) < req.Count && attempts < budget {
		attempts++
		candidate := drawSet(rng, &pool)
		if !accept(candidate, req.Filters, excluded) {
			continue
		}
		out = append(out, candidate)
		if req.Filters.Distinct {
			excluded[candidate] = struct{}{}
		}
	}

	if len(out) < req.Count {
		return nil, &common.GenerationExhaustedError{Requested: req.Count, Produced: len(out), Attempts: attempts}
	}
	return out, nil
}

// drawSet picks six numbers uniformly with a partial Fisher-Yates shuffle.
func drawSet(rng *rand.Rand, pool *[models.MaxNumber]int) models.NumberSet {
	for i := 0; i < models.PickSize; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	set, _ := models.NewNumberSet(pool[:models.PickSize])
	return set
}

func accept(set models.NumberSet, f models.FilterPolicy, excluded map[models.NumberSet]struct{}) bool {
	if f.Sum != nil && !f.Sum.Contains(set.Sum()) {
		return false
	}
	if f.Odd != nil {
		odd := 0
		for _, n := range set {
			odd += n % 2
		}
		if !f.Odd.Contains(odd) {
			return false
		}
	}
	if f.MaxConsecutiveRun > 0 && LongestRun(set) > f.MaxConsecutiveRun {
		return false
	}
	if _, ok := excluded[set]; ok {
		return false
	}
	if f.MinQuality > 0 && Analyze(set).QualityScore < f.MinQuality {
		return false
	}
	return true
}
