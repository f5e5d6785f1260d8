package business

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/ingestion"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// DefaultEvaluationTTL is how long cached evaluations live.
const DefaultEvaluationTTL = 24 * time.Hour

// EvaluationService evaluates tickets against stored draws.
type EvaluationService struct {
	draws  ingestion.DrawReader
	cache  EvaluationCache
	ttl    time.Duration
	logger common.Logger
}

// NewEvaluationService 创建评估服务. cache may be nil.
func NewEvaluationService(draws ingestion.DrawReader, cache EvaluationCache, logger common.Logger) *EvaluationService {
	return &EvaluationService{
		draws:  draws,
		cache:  cache,
		ttl:    DefaultEvaluationTTL,
		logger: logger,
	}
}

// EvaluateTicket evaluates ticket against the stored draw of its round. It
// fails with ErrDrawNotAvailable until that round has been synced.
//
// Cache keys include the prize table fingerprint, so results cached while a
// prize table was pending are not served once it is finalized.
func (s *EvaluationService) EvaluateTicket(ctx context.Context, ticket models.Ticket) ([]models.EvaluationResult, error) {
	draw, ok, err := s.draws.Get(ctx, ticket.IssuedRound)
	if err != nil {
		return nil, fmt.Errorf("load round %d: %w", ticket.IssuedRound, err)
	}
	if !ok {
		return nil, fmt.Errorf("round %d: %w", ticket.IssuedRound, common.ErrDrawNotAvailable)
	}

	key := evaluationKey(ticket, draw)
	if s.cache != nil {
		if cached, hit := s.cache.Get(ctx, key); hit {
			var results []models.EvaluationResult
			if err := json.Unmarshal(cached, &results); err == nil {
				return results, nil
			}
			s.logger.Warn("Discarding unreadable cache entry %s", key)
		}
	}

	results, err := Evaluate(ticket, draw)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(results); err == nil {
			s.cache.Set(ctx, key, encoded, s.ttl)
		}
	}
	return results, nil
}

func evaluationKey(ticket models.Ticket, draw models.DrawRecord) string {
	h := sha256.New()
	for _, sel := range ticket.Selections {
		fmt.Fprintf(h, "%s;", sel.Numbers)
	}
	return fmt.Sprintf("eval:%d:%s:%x", draw.Round, draw.PrizeTable.Fingerprint(), h.Sum(nil)[:12])
}
