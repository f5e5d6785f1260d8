package business

import (
	"fmt"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// TierFor maps a match count and bonus hit to a prize tier. It is total over
// 0..6 matches; the bonus only matters with exactly five matches.
func TierFor(matched int, bonus bool) models.Tier {
	switch {
	case matched == 6:
		return models.Tier1
	case matched == 5 && bonus:
		return models.Tier2
	case matched == 5:
		return models.Tier3
	case matched == 4:
		return models.Tier4
	case matched == 3:
		return models.Tier5
	default:
		return models.TierNone
	}
}

// Evaluate scores every selection of ticket against draw, in ticket order.
// Selections are sorted before matching; one that is not six distinct
// numbers in 1..45 fails the whole ticket.
func Evaluate(ticket models.Ticket, draw models.DrawRecord) ([]models.EvaluationResult, error) {
	if ticket.IssuedRound != draw.Round {
		return nil, &common.RoundMismatchError{TicketRound: ticket.IssuedRound, DrawRound: draw.Round}
	}

	results := make([]models.EvaluationResult, len(ticket.Selections))
	for i, sel := range ticket.Selections {
		numbers, err := sel.Numbers.Canonical()
		if err != nil {
			return nil, fmt.Errorf("%w: selection %d: %v", common.ErrInvalidInput, i, err)
		}
		matched := numbers.Matches(draw.WinningNumbers)
		bonus := numbers.Contains(draw.BonusNumber)
		tier := TierFor(matched, bonus)

		results[i] = models.EvaluationResult{
			SelectionIndex: i,
			Tier:           tier,
			MatchedCount:   matched,
			MatchedBonus:   bonus,
		}
		if tier != models.TierNone {
			payout := draw.PrizeTable.Payout(tier)
			results[i].Payout = &payout
		}
	}
	return results, nil
}
