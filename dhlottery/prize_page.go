package dhlottery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/ingestion"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// Column positions in the per-rank table of the result page.
const (
	colWinners   = 2
	colPerWinner = 3
)

// GetPrizeBreakdown scrapes the per-rank result page of a round
func (c *Client) GetPrizeBreakdown(ctx context.Context, round int) (*ingestion.PrizeBreakdown, error) {
	params := url.Values{}
	params.Set("method", "byWin")
	params.Set("drwNo", strconv.Itoa(round))

	body, err := c.get(ctx, "/gameResult.do", params)
	if err != nil {
		return nil, err
	}
	return ParsePrizePage(round, body)
}

// ParsePrizePage reads the winning numbers and per-rank payouts from the
// result page. The page is EUC-KR; only digits are read so the encoding
// does not matter.
func ParsePrizePage(round int, page []byte) (*ingestion.PrizeBreakdown, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, &common.MalformedResultError{Round: round, Reason: "unreadable prize page: " + err.Error()}
	}

	breakdown := &ingestion.PrizeBreakdown{Round: round, Table: models.PrizeTable{}}

	if heading := doc.Find(".win_result h4 strong").First(); heading.Length() > 0 {
		if n, err := strconv.Atoi(digits(heading.Text())); err == nil {
			breakdown.Round = n
		}
	}

	doc.Find(".win_result .num.win span").Each(func(_ int, s *goquery.Selection) {
		if n, err := strconv.Atoi(digits(s.Text())); err == nil {
			breakdown.Numbers = append(breakdown.Numbers, n)
		}
	})
	if bonus := doc.Find(".win_result .num.bonus span").First(); bonus.Length() > 0 {
		breakdown.Bonus, _ = strconv.Atoi(digits(bonus.Text()))
	}

	var parseErr error
	doc.Find("table.tbl_data tbody tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i >= len(models.AllTiers) {
			return false
		}
		cells := row.Find("td")
		if cells.Length() <= colPerWinner {
			parseErr = fmt.Errorf("rank row %d has %d cells", i+1, cells.Length())
			return false
		}

		winners, err := strconv.Atoi(digits(cells.Eq(colWinners).Text()))
		if err != nil {
			parseErr = fmt.Errorf("rank %d winners %q", i+1, strings.TrimSpace(cells.Eq(colWinners).Text()))
			return false
		}
		amount, err := decimal.NewFromString(digits(cells.Eq(colPerWinner).Text()))
		if err != nil {
			parseErr = fmt.Errorf("rank %d amount %q", i+1, strings.TrimSpace(cells.Eq(colPerWinner).Text()))
			return false
		}

		payout := models.Payout{State: models.PayoutFinal, Amount: amount, Winners: winners}
		if winners == 0 {
			payout = models.Payout{State: models.PayoutRollover, Amount: decimal.Zero}
		}
		breakdown.Table[models.AllTiers[i]] = payout
		return true
	})
	if parseErr != nil {
		return nil, &common.MalformedResultError{Round: round, Reason: parseErr.Error()}
	}
	if len(breakdown.Table) == 0 {
		return nil, fmt.Errorf("round %d prize page has no ranks: %w", round, common.ErrRoundNotDrawn)
	}
	return breakdown, nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
