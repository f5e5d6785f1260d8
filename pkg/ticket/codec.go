package ticket

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// Payload layout, as printed in the ticket QR code (bare or as the "v"
// parameter of the issuer URL):
//
//	<round><mode><12 digits>[<mode><12 digits>]...<serial><check digit>
//
// Each game is six two-digit numbers. Mode letters are m (manual),
// q (quick pick) and s (semi-auto). The serial digits follow the last game
// directly; the check digit covers everything before it.
const (
	numberDigits = 2
	gameDigits   = models.PickSize * numberDigits
	maxRoundLen  = 6
	minRoundLen  = 4
)

var modeLetters = map[byte]models.Mode{
	'm': models.ModeManual,
	'q': models.ModeQuickPick,
	's': models.ModeSemiAuto,
}

func letterFor(mode models.Mode) byte {
	switch mode {
	case models.ModeQuickPick:
		return 'q'
	case models.ModeSemiAuto:
		return 's'
	default:
		return 'm'
	}
}

// Codec converts between tickets and QR payloads.
type Codec struct {
	Checksum ChecksumFunc
}

// DefaultCodec uses the Luhn check digit.
var DefaultCodec = Codec{Checksum: Luhn}

// Decode parses a payload with DefaultCodec.
func Decode(raw string) (models.Ticket, error) {
	return DefaultCodec.Decode(raw)
}

// Encode renders a ticket with DefaultCodec.
func Encode(t models.Ticket) string {
	return DefaultCodec.Encode(t)
}

// Decode parses and validates a scanned payload. It is deterministic and
// never consults stored draws.
func (c Codec) Decode(raw string) (models.Ticket, error) {
	raw = strings.TrimSpace(raw)
	payload, host, err := unwrapURL(raw)
	if err != nil {
		return models.Ticket{}, err
	}

	round, rest, err := splitRound(payload)
	if err != nil {
		return models.Ticket{}, err
	}

	var (
		selections []models.Selection
		signed     strings.Builder
		serial     string
	)
	signed.WriteString(payload[:len(payload)-len(rest)])

	for len(rest) > 0 {
		mode, ok := modeLetters[lower(rest[0])]
		if !ok {
			return models.Ticket{}, common.NewDecodeError(common.DecodeMalformed, "unexpected %q where a mode letter belongs", rest[0])
		}
		if len(selections) == models.MaxSelections {
			return models.Ticket{}, common.NewDecodeError(common.DecodeTooManySelections, "more than %d games", models.MaxSelections)
		}

		body := leadingDigits(rest[1:])
		rest = rest[1+len(body):]
		if len(body) < gameDigits {
			return models.Ticket{}, common.NewDecodeError(common.DecodeMalformed, "game %d has %d digits", len(selections)+1, len(body))
		}
		if len(rest) > 0 && len(body) != gameDigits {
			return models.Ticket{}, common.NewDecodeError(common.DecodeMalformed, "game %d has %d digits", len(selections)+1, len(body))
		}

		numbers, err := parseGame(body[:gameDigits])
		if err != nil {
			return models.Ticket{}, err
		}
		selections = append(selections, models.Selection{Numbers: numbers, Mode: mode})
		signed.WriteString(body[:gameDigits])

		if len(rest) == 0 {
			serial = body[gameDigits:]
		}
	}

	if len(selections) == 0 {
		return models.Ticket{}, common.NewDecodeError(common.DecodeMalformed, "no games in payload")
	}
	if serial == "" {
		return models.Ticket{}, common.NewDecodeError(common.DecodeMalformed, "missing serial and check digit")
	}

	check := int(serial[len(serial)-1] - '0')
	serial = serial[:len(serial)-1]
	signed.WriteString(serial)

	if want := c.Checksum(digitsOnly(signed.String())); want != check {
		return models.Ticket{}, common.NewDecodeError(common.DecodeChecksum, "check digit %d, computed %d", check, want)
	}

	return models.Ticket{
		IssuedRound: round,
		Selections:  selections,
		RawPayload:  raw,
		Checksum:    check,
		Issuance:    models.Issuance{Serial: serial, Host: host},
	}, nil
}

// Encode renders the bare payload for t, recomputing the check digit.
func (c Codec) Encode(t models.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%0*d", minRoundLen, t.IssuedRound)
	for _, sel := range t.Selections {
		b.WriteByte(letterFor(sel.Mode))
		for _, n := range sel.Numbers {
			fmt.Fprintf(&b, "%02d", n)
		}
	}
	b.WriteString(t.Issuance.Serial)

	b.WriteString(strconv.Itoa(c.Checksum(digitsOnly(b.String()))))
	return b.String()
}

// NewTicket builds a ticket from already validated selections. serial is the
// issuer serial without its check digit and may be empty.
func (c Codec) NewTicket(round int, selections []models.Selection, serial string) (models.Ticket, error) {
	if round < 1 {
		return models.Ticket{}, &common.InvalidRoundError{Round: round}
	}
	if len(strconv.Itoa(round)) > maxRoundLen {
		return models.Ticket{}, common.NewDecodeError(common.DecodeMalformed, "round %d has more than %d digits", round, maxRoundLen)
	}
	if len(selections) == 0 {
		return models.Ticket{}, common.NewDecodeError(common.DecodeMalformed, "no games")
	}
	if len(selections) > models.MaxSelections {
		return models.Ticket{}, common.NewDecodeError(common.DecodeTooManySelections, "%d games", len(selections))
	}
	if serial != leadingDigits(serial) {
		return models.Ticket{}, common.NewDecodeError(common.DecodeMalformed, "serial %q is not numeric", serial)
	}

	sels := make([]models.Selection, len(selections))
	for i, sel := range selections {
		if !sel.Numbers.Valid() {
			return models.Ticket{}, common.NewDecodeError(common.DecodeOutOfRange, "game %d numbers %v", i+1, sel.Numbers)
		}
		if sel.Mode == "" {
			sel.Mode = models.ModeManual
		}
		sels[i] = sel
	}

	t := models.Ticket{IssuedRound: round, Selections: sels, Issuance: models.Issuance{Serial: serial}}
	t.RawPayload = c.Encode(t)
	t.Checksum = int(t.RawPayload[len(t.RawPayload)-1] - '0')
	return t, nil
}

// FromManualEntry builds a ticket from numbers typed in by hand.
func FromManualEntry(round int, games [][]int) (models.Ticket, error) {
	selections := make([]models.Selection, 0, len(games))
	for i, game := range games {
		numbers, err := models.NewNumberSet(game)
		if err != nil {
			return models.Ticket{}, numberError(i+1, err)
		}
		selections = append(selections, models.Selection{Numbers: numbers, Mode: models.ModeManual})
	}
	return DefaultCodec.NewTicket(round, selections, "")
}

func unwrapURL(raw string) (payload, host string, err error) {
	if raw == "" {
		return "", "", common.NewDecodeError(common.DecodeMalformed, "empty payload")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return raw, "", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", common.NewDecodeError(common.DecodeMalformed, "unparseable URL")
	}
	payload = u.Query().Get("v")
	if payload == "" {
		return "", "", common.NewDecodeError(common.DecodeMalformed, "URL has no v parameter")
	}
	return payload, u.Host, nil
}

func splitRound(payload string) (int, string, error) {
	roundDigits := leadingDigits(payload)
	if len(roundDigits) == 0 || len(roundDigits) > maxRoundLen {
		return 0, "", common.NewDecodeError(common.DecodeMalformed, "round field has %d digits", len(roundDigits))
	}
	round, _ := strconv.Atoi(roundDigits)
	if round < 1 {
		return 0, "", common.NewDecodeError(common.DecodeOutOfRange, "round %d", round)
	}
	return round, payload[len(roundDigits):], nil
}

func parseGame(body string) (models.NumberSet, error) {
	nums := make([]int, 0, models.PickSize)
	for i := 0; i < gameDigits; i += numberDigits {
		n, _ := strconv.Atoi(body[i : i+numberDigits])
		nums = append(nums, n)
	}
	set, err := models.NewNumberSet(nums)
	if err != nil {
		return set, numberError(0, err)
	}
	return set, nil
}

func numberError(game int, err error) error {
	reason := common.DecodeMalformed
	switch {
	case errors.Is(err, models.ErrOutOfRange):
		reason = common.DecodeOutOfRange
	case errors.Is(err, models.ErrDuplicateNumber):
		reason = common.DecodeDuplicate
	}
	if game > 0 {
		return common.NewDecodeError(reason, "game %d: %v", game, err)
	}
	return common.NewDecodeError(reason, "%v", err)
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
