package ingestion

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// rawDraw is the strict intermediate form every remote shape is read into.
type rawDraw struct {
	round   int
	date    string
	numbers []int
	bonus   int
	payouts map[models.Tier]models.Payout
}

// NormalizeRoundResult turns a remote JSON document into a validated record for round.
//
// Two shapes are understood: the issuer's flat form
// ({"returnValue":"success","drwNo":..,"drwtNo1".."drwtNo6","bnusNo","drwNoDate",...})
// and a generic form ({"round":..,"numbers":[..],"bonus":..,"date":..,"payouts":{..}}).
func NormalizeRoundResult(round int, body []byte) (models.DrawRecord, error) {
	if !gjson.ValidBytes(body) {
		return models.DrawRecord{}, malformed(round, "response is not valid JSON")
	}
	doc := gjson.ParseBytes(body)

	var (
		raw *rawDraw
		err error
	)
	if doc.Get("returnValue").Exists() {
		raw, err = readIssuerShape(round, doc)
	} else {
		raw, err = readGenericShape(round, doc)
	}
	if err != nil {
		return models.DrawRecord{}, err
	}

	return raw.toRecord(round)
}

func readIssuerShape(round int, doc gjson.Result) (*rawDraw, error) {
	if doc.Get("returnValue").String() != "success" {
		return nil, fmt.Errorf("round %d: %w", round, common.ErrRoundNotDrawn)
	}

	raw := &rawDraw{payouts: make(map[models.Tier]models.Payout)}
	var err error

	if raw.round, err = intField(round, doc, "drwNo"); err != nil {
		return nil, err
	}
	for i := 1; i <= models.PickSize; i++ {
		n, err := intField(round, doc, "drwtNo"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		raw.numbers = append(raw.numbers, n)
	}
	if raw.bonus, err = intField(round, doc, "bnusNo"); err != nil {
		return nil, err
	}
	raw.date = doc.Get("drwNoDate").String()

	// the result endpoint only carries the jackpot; the rest arrives with the prize revision
	if amount := doc.Get("firstWinamnt"); amount.Exists() {
		winners, err := intField(round, doc, "firstPrzwnerCo")
		if err != nil {
			return nil, err
		}
		value, err := decimalValue(amount)
		if err != nil {
			return nil, malformed(round, "firstWinamnt: "+err.Error())
		}
		raw.payouts[models.Tier1] = settledPayout(value, winners)
	}
	return raw, nil
}

func readGenericShape(round int, doc gjson.Result) (*rawDraw, error) {
	raw := &rawDraw{payouts: make(map[models.Tier]models.Payout)}
	var err error

	roundKey := firstPresent(doc, "round", "drawNo")
	if roundKey == "" {
		return nil, malformed(round, "missing round")
	}
	if raw.round, err = intField(round, doc, roundKey); err != nil {
		return nil, err
	}

	numbers := doc.Get("numbers")
	if !numbers.IsArray() {
		return nil, malformed(round, "numbers is not an array")
	}
	for _, n := range numbers.Array() {
		v, ok := exactInt(n)
		if !ok {
			return nil, malformed(round, fmt.Sprintf("number %s is not an integer", n.Raw))
		}
		raw.numbers = append(raw.numbers, v)
	}

	if raw.bonus, err = intField(round, doc, "bonus"); err != nil {
		return nil, err
	}
	if key := firstPresent(doc, "date", "drawDate"); key != "" {
		raw.date = doc.Get(key).String()
	}

	payouts := doc.Get("payouts")
	if payouts.Exists() {
		if !payouts.IsObject() {
			return nil, malformed(round, "payouts is not an object")
		}
		var perr error
		payouts.ForEach(func(key, value gjson.Result) bool {
			tier, err := strconv.Atoi(key.String())
			if err != nil || tier < int(models.Tier1) || tier > int(models.Tier5) {
				perr = malformed(round, "unknown payout tier "+key.String())
				return false
			}
			payout, err := readPayout(value)
			if err != nil {
				perr = malformed(round, fmt.Sprintf("tier %d payout: %v", tier, err))
				return false
			}
			raw.payouts[models.Tier(tier)] = payout
			return true
		})
		if perr != nil {
			return nil, perr
		}
	}
	return raw, nil
}

func readPayout(v gjson.Result) (models.Payout, error) {
	if v.Type == gjson.Number {
		amount, err := decimalValue(v)
		if err != nil {
			return models.Payout{}, err
		}
		return models.Payout{State: models.PayoutFinal, Amount: amount}, nil
	}
	if !v.IsObject() {
		return models.Payout{}, fmt.Errorf("unexpected %s", v.Type)
	}

	payout := models.Payout{State: models.PayoutState(v.Get("state").String()), Amount: decimal.Zero}
	if payout.State == "" {
		payout.State = models.PayoutFinal
	}
	if amount := v.Get("amount"); amount.Exists() {
		value, err := decimalValue(amount)
		if err != nil {
			return models.Payout{}, err
		}
		payout.Amount = value
	}
	if winners := v.Get("winners"); winners.Exists() {
		n, ok := exactInt(winners)
		if !ok {
			return models.Payout{}, fmt.Errorf("winners %s is not an integer", winners.Raw)
		}
		payout.Winners = n
	}
	return payout, nil
}

func (raw *rawDraw) toRecord(round int) (models.DrawRecord, error) {
	if raw.round != round {
		return models.DrawRecord{}, malformed(round, fmt.Sprintf("response is for round %d", raw.round))
	}
	date, err := time.Parse(models.DateLayout, raw.date)
	if err != nil {
		return models.DrawRecord{}, malformed(round, fmt.Sprintf("unparseable draw date %q", raw.date))
	}

	table := models.PendingPrizeTable()
	for tier, payout := range raw.payouts {
		table[tier] = payout
	}

	record, err := models.NewDrawRecord(round, date, raw.numbers, raw.bonus, table)
	if err != nil {
		return models.DrawRecord{}, malformed(round, err.Error())
	}
	return record, nil
}

// settledPayout marks a tier with no winners as rolled over.
func settledPayout(amount decimal.Decimal, winners int) models.Payout {
	if winners == 0 {
		return models.Payout{State: models.PayoutRollover, Amount: decimal.Zero}
	}
	return models.Payout{State: models.PayoutFinal, Amount: amount, Winners: winners}
}

func intField(round int, doc gjson.Result, key string) (int, error) {
	v := doc.Get(key)
	if !v.Exists() {
		return 0, malformed(round, "missing "+key)
	}
	n, ok := exactInt(v)
	if !ok {
		return 0, malformed(round, fmt.Sprintf("%s=%s is not an integer", key, v.Raw))
	}
	return n, nil
}

func exactInt(v gjson.Result) (int, bool) {
	if v.Type != gjson.Number {
		return 0, false
	}
	f := v.Float()
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func decimalValue(v gjson.Result) (decimal.Decimal, error) {
	switch v.Type {
	case gjson.Number:
		return decimal.NewFromString(v.Raw)
	case gjson.String:
		return decimal.NewFromString(v.String())
	default:
		return decimal.Decimal{}, fmt.Errorf("amount %s is not numeric", v.Raw)
	}
}

func firstPresent(doc gjson.Result, keys ...string) string {
	for _, k := range keys {
		if doc.Get(k).Exists() {
			return k
		}
	}
	return ""
}

func malformed(round int, reason string) error {
	return &common.MalformedResultError{Round: round, Reason: reason}
}
