package models

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stuKim0221/smart-lotto/pkg/common"
)

const (
	MinNumber = 1
	MaxNumber = 45
	PickSize  = 6
)

var (
	ErrWrongCount      = errors.New("wrong number count")
	ErrOutOfRange      = errors.New("number out of range")
	ErrDuplicateNumber = errors.New("duplicate number")
	ErrInvalidDraw     = errors.New("invalid draw record")
)

// NumberSet is a sorted set of six distinct lotto numbers. Being an array it
// compares by value and can key a map.
type NumberSet [PickSize]int

// NewNumberSet validates and sorts nums.
func NewNumberSet(nums []int) (NumberSet, error) {
	var set NumberSet
	if len(nums) != PickSize {
		return set, fmt.Errorf("%w: got %d, want %d", ErrWrongCount, len(nums), PickSize)
	}

	seen := make(map[int]bool, PickSize)
	for i, n := range nums {
		if n < MinNumber || n > MaxNumber {
			return NumberSet{}, fmt.Errorf("%w: %d", ErrOutOfRange, n)
		}
		if seen[n] {
			return NumberSet{}, fmt.Errorf("%w: %d", ErrDuplicateNumber, n)
		}
		seen[n] = true
		set[i] = n
	}
	sort.Ints(set[:])
	return set, nil
}

// MustNumberSet panics on invalid input. Intended for literals and tests.
func MustNumberSet(nums ...int) NumberSet {
	set, err := NewNumberSet(nums)
	if err != nil {
		panic(err)
	}
	return set
}

// Valid reports whether s holds six distinct in-range numbers in ascending order.
func (s NumberSet) Valid() bool {
	for i, n := range s {
		if n < MinNumber || n > MaxNumber {
			return false
		}
		if i > 0 && s[i-1] >= n {
			return false
		}
	}
	return true
}

// Canonical returns s sorted, or an error when s does not hold six distinct
// in-range numbers.
func (s NumberSet) Canonical() (NumberSet, error) {
	if s.Valid() {
		return s, nil
	}
	return NewNumberSet(s[:])
}

// UnmarshalJSON accepts the numbers in any order and sorts them.
func (s *NumberSet) UnmarshalJSON(data []byte) error {
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return err
	}
	set, err := NewNumberSet(nums)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	*s = set
	return nil
}

// Contains reports whether n is in the set.
func (s NumberSet) Contains(n int) bool {
	i := sort.SearchInts(s[:], n)
	return i < PickSize && s[i] == n
}

// Matches counts the numbers s shares with other.
func (s NumberSet) Matches(other NumberSet) int {
	count, i, j := 0, 0, 0
	for i < PickSize && j < PickSize {
		switch {
		case s[i] == other[j]:
			count++
			i++
			j++
		case s[i] < other[j]:
			i++
		default:
			j++
		}
	}
	return count
}

// Sum adds the numbers.
func (s NumberSet) Sum() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

func (s NumberSet) Slice() []int {
	out := make([]int, PickSize)
	copy(out, s[:])
	return out
}

func (s NumberSet) String() string {
	parts := make([]string, PickSize)
	for i, n := range s {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// DrawRecord is the official result of one round.
type DrawRecord struct {
	Round          int        `json:"round"`
	DrawDate       time.Time  `json:"draw_date"`
	WinningNumbers NumberSet  `json:"winning_numbers"`
	BonusNumber    int        `json:"bonus_number"`
	PrizeTable     PrizeTable `json:"prize_table"`
}

// NewDrawRecord builds a validated record. The date is truncated to a UTC calendar date.
func NewDrawRecord(round int, drawDate time.Time, winning []int, bonus int, prizes PrizeTable) (DrawRecord, error) {
	set, err := NewNumberSet(winning)
	if err != nil {
		return DrawRecord{}, fmt.Errorf("%w: round %d: %v", ErrInvalidDraw, round, err)
	}
	if prizes == nil {
		prizes = PendingPrizeTable()
	}

	record := DrawRecord{
		Round:          round,
		DrawDate:       DateOnly(drawDate),
		WinningNumbers: set,
		BonusNumber:    bonus,
		PrizeTable:     prizes,
	}
	if err := record.Validate(); err != nil {
		return DrawRecord{}, err
	}
	return record, nil
}

// Validate checks the record invariants.
func (d DrawRecord) Validate() error {
	if d.Round < 1 {
		return fmt.Errorf("%w: round %d below 1", ErrInvalidDraw, d.Round)
	}
	if d.DrawDate.IsZero() {
		return fmt.Errorf("%w: round %d has no draw date", ErrInvalidDraw, d.Round)
	}
	if !d.WinningNumbers.Valid() {
		return fmt.Errorf("%w: round %d winning numbers %v", ErrInvalidDraw, d.Round, d.WinningNumbers)
	}
	if d.BonusNumber < MinNumber || d.BonusNumber > MaxNumber {
		return fmt.Errorf("%w: round %d bonus %d out of range", ErrInvalidDraw, d.Round, d.BonusNumber)
	}
	if d.WinningNumbers.Contains(d.BonusNumber) {
		return fmt.Errorf("%w: round %d bonus %d is also a winning number", ErrInvalidDraw, d.Round, d.BonusNumber)
	}
	if err := d.PrizeTable.Validate(); err != nil {
		return fmt.Errorf("%w: round %d: %v", ErrInvalidDraw, d.Round, err)
	}
	return nil
}

// UpsertOutcome describes what an upsert did.
type UpsertOutcome int

const (
	UpsertUnchanged UpsertOutcome = iota
	UpsertInserted
	UpsertUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Reconcile merges an incoming record for the same round into d. Drawn numbers
// and date never change; only the prize table may be revised, and a finalized
// table is never replaced by a non-final one.
func (d DrawRecord) Reconcile(incoming DrawRecord) (DrawRecord, UpsertOutcome, error) {
	if d.Round != incoming.Round {
		return d, UpsertUnchanged, fmt.Errorf("%w: reconcile round %d with round %d", common.ErrInvalidInput, d.Round, incoming.Round)
	}
	if d.WinningNumbers != incoming.WinningNumbers {
		return d, UpsertUnchanged, &common.RecordMismatchError{
			Round: d.Round, Field: "winning_numbers",
			Stored: d.WinningNumbers.String(), Incoming: incoming.WinningNumbers.String(),
		}
	}
	if d.BonusNumber != incoming.BonusNumber {
		return d, UpsertUnchanged, &common.RecordMismatchError{
			Round: d.Round, Field: "bonus_number",
			Stored: strconv.Itoa(d.BonusNumber), Incoming: strconv.Itoa(incoming.BonusNumber),
		}
	}
	if !DateOnly(d.DrawDate).Equal(DateOnly(incoming.DrawDate)) {
		return d, UpsertUnchanged, &common.RecordMismatchError{
			Round: d.Round, Field: "draw_date",
			Stored: d.DrawDate.Format(DateLayout), Incoming: incoming.DrawDate.Format(DateLayout),
		}
	}

	if d.PrizeTable.Equal(incoming.PrizeTable) {
		return d, UpsertUnchanged, nil
	}
	if d.PrizeTable.Finalized() && !incoming.PrizeTable.Finalized() {
		return d, UpsertUnchanged, nil
	}

	merged := d
	merged.PrizeTable = incoming.PrizeTable.Clone()
	return merged, UpsertUpdated, nil
}

// DateLayout is the calendar date format used on the wire and in CSV files.
const DateLayout = "2006-01-02"

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// Tier is a prize rank. Tier1 is the jackpot; TierNone means no prize.
type Tier int

const (
	TierNone Tier = iota
	Tier1
	Tier2
	Tier3
	Tier4
	Tier5
)

// AllTiers lists the prize-bearing tiers from highest to lowest.
var AllTiers = []Tier{Tier1, Tier2, Tier3, Tier4, Tier5}

func (t Tier) String() string {
	if t == TierNone {
		return "none"
	}
	return "tier" + strconv.Itoa(int(t))
}

// PayoutState tracks whether a tier's amount is known.
type PayoutState string

const (
	PayoutPending  PayoutState = "pending"
	PayoutFinal    PayoutState = "final"
	PayoutRollover PayoutState = "rollover"
)

// Payout is the per-winner amount for one tier.
type Payout struct {
	State   PayoutState     `json:"state"`
	Amount  decimal.Decimal `json:"amount"`
	Winners int             `json:"winners"`
}

// FinalPayout is a convenience constructor for a settled tier.
func FinalPayout(amount int64, winners int) Payout {
	return Payout{State: PayoutFinal, Amount: decimal.NewFromInt(amount), Winners: winners}
}

// PrizeTable maps each tier to its payout.
type PrizeTable map[Tier]Payout

// PendingPrizeTable returns a table with every tier pending.
func PendingPrizeTable() PrizeTable {
	pt := make(PrizeTable, len(AllTiers))
	for _, t := range AllTiers {
		pt[t] = Payout{State: PayoutPending, Amount: decimal.Zero}
	}
	return pt
}

// Payout returns the tier's payout; unknown tiers are pending.
func (pt PrizeTable) Payout(t Tier) Payout {
	if p, ok := pt[t]; ok {
		return p
	}
	return Payout{State: PayoutPending, Amount: decimal.Zero}
}

// Finalized reports whether every tier has a settled amount.
func (pt PrizeTable) Finalized() bool {
	for _, t := range AllTiers {
		p, ok := pt[t]
		if !ok || p.State == PayoutPending {
			return false
		}
	}
	return true
}

func (pt PrizeTable) Validate() error {
	for t, p := range pt {
		if t < Tier1 || t > Tier5 {
			return fmt.Errorf("unknown prize tier %d", int(t))
		}
		switch p.State {
		case PayoutPending, PayoutFinal, PayoutRollover:
		default:
			return fmt.Errorf("%s has unknown payout state %q", t, p.State)
		}
		if p.Amount.IsNegative() {
			return fmt.Errorf("%s has negative amount %s", t, p.Amount)
		}
		if p.Winners < 0 {
			return fmt.Errorf("%s has negative winner count %d", t, p.Winners)
		}
	}
	return nil
}

func (pt PrizeTable) Equal(other PrizeTable) bool {
	for _, t := range AllTiers {
		a, b := pt.Payout(t), other.Payout(t)
		if a.State != b.State || a.Winners != b.Winners || !a.Amount.Equal(b.Amount) {
			return false
		}
	}
	return true
}

func (pt PrizeTable) Clone() PrizeTable {
	out := make(PrizeTable, len(pt))
	for t, p := range pt {
		out[t] = p
	}
	return out
}

// Fingerprint identifies the table contents; it changes whenever a payout does.
func (pt PrizeTable) Fingerprint() string {
	var b strings.Builder
	for _, t := range AllTiers {
		p := pt.Payout(t)
		fmt.Fprintf(&b, "%d:%s:%s:%d;", int(t), p.State, p.Amount.String(), p.Winners)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum[:8])
}
