package business

import (
	"context"
	"fmt"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/ingestion"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// GenerationService generates combinations that avoid recent winning sets.
type GenerationService struct {
	draws     ingestion.DrawReader
	generator *Generator
	logger    common.Logger
}

// NewGenerationService 创建组合生成服务
func NewGenerationService(draws ingestion.DrawReader, generator *Generator, logger common.Logger) *GenerationService {
	return &GenerationService{draws: draws, generator: generator, logger: logger}
}

// Generate adds the winning sets of the last excludeRecent rounds to the
// request's exclusion list before generating.
func (s *GenerationService) Generate(ctx context.Context, req models.CombinationRequest, excludeRecent int) ([]models.NumberSet, error) {
	if excludeRecent > 0 {
		recent, err := s.draws.ListExcludedCombinations(ctx, excludeRecent)
		if err != nil {
			return nil, fmt.Errorf("load recent winning sets: %w", err)
		}
		exclude := make([]models.NumberSet, 0, len(req.Filters.Exclude)+len(recent))
		exclude = append(exclude, req.Filters.Exclude...)
		req.Filters.Exclude = append(exclude, recent...)
	}

	sets, err := s.generator.Generate(req)
	if err != nil {
		s.logger.Warn("Generation failed: %v", err)
		return nil, err
	}
	return sets, nil
}

// Analyze scores a set; exposed here so handlers need one dependency.
func (s *GenerationService) Analyze(set models.NumberSet) Analysis {
	return Analyze(set)
}

// Statistics computes frequencies over the most recent lookback rounds, all when lookback <= 0.
func (s *GenerationService) Statistics(ctx context.Context, lookback int, includeBonus bool) (NumberStats, error) {
	maxRound, err := s.draws.MaxRound(ctx)
	if err != nil {
		return NumberStats{}, err
	}
	from := 1
	if lookback > 0 && maxRound-lookback+1 > from {
		from = maxRound - lookback + 1
	}
	draws, err := s.draws.List(ctx, from, maxRound)
	if err != nil {
		return NumberStats{}, err
	}
	return Statistics(draws, includeBonus), nil
}
