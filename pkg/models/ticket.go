package models

// MaxSelections is the most games a single ticket can carry.
const MaxSelections = 5

// Mode records how a selection was picked. It does not affect evaluation.
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeQuickPick Mode = "quick_pick"
	ModeSemiAuto  Mode = "semi_auto"
)

// Selection is one game on a ticket.
type Selection struct {
	Numbers NumberSet `json:"numbers"`
	Mode    Mode      `json:"mode"`
}

// Issuance carries what the issuer printed besides the games.
type Issuance struct {
	Serial string `json:"serial"`
	Host   string `json:"host,omitempty"`
}

// Ticket is a decoded purchase. Tickets are never modified after decoding.
type Ticket struct {
	IssuedRound int         `json:"issued_round"`
	Selections  []Selection `json:"selections"`
	RawPayload  string      `json:"raw_payload"`
	Checksum    int         `json:"checksum"`
	Issuance    Issuance    `json:"issuance"`
}

// EvaluationResult is the outcome of one selection against one draw.
type EvaluationResult struct {
	SelectionIndex int     `json:"selection_index"`
	Tier           Tier    `json:"tier"`
	MatchedCount   int     `json:"matched_count"`
	MatchedBonus   bool    `json:"matched_bonus"`
	Payout         *Payout `json:"payout,omitempty"`
}

// Won reports whether the selection earned any prize.
func (r EvaluationResult) Won() bool {
	return r.Tier != TierNone
}
