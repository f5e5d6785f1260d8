package common

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 未找到错误
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput 无效输入错误
	ErrInvalidInput = errors.New("invalid input")

	// ErrRoundNotDrawn is returned when the source has no result for a round yet.
	ErrRoundNotDrawn = errors.New("round not drawn yet")

	// ErrDrawNotAvailable is returned when a ticket's round has no stored draw.
	ErrDrawNotAvailable = errors.New("draw not available")

	// ErrSyncInProgress is returned when a sync cycle is requested while one is running.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// InvalidRoundError reports a round number below 1.
type InvalidRoundError struct {
	Round int
}

func (e *InvalidRoundError) Error() string {
	return fmt.Sprintf("invalid round %d: rounds start at 1", e.Round)
}

// FetchUnavailableError reports a fetch that kept failing transiently until the retry budget ran out.
type FetchUnavailableError struct {
	Round    int
	Attempts int
	Cause    error
}

func (e *FetchUnavailableError) Error() string {
	return fmt.Sprintf("round %d unavailable after %d attempts: %v", e.Round, e.Attempts, e.Cause)
}

func (e *FetchUnavailableError) Unwrap() error {
	return e.Cause
}

// MalformedResultError reports a remote result that failed structural validation.
type MalformedResultError struct {
	Round  int
	Reason string
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("malformed result for round %d: %s", e.Round, e.Reason)
}

// RecordMismatchError reports an upsert whose numbers disagree with the stored record.
type RecordMismatchError struct {
	Round    int
	Field    string
	Stored   string
	Incoming string
}

func (e *RecordMismatchError) Error() string {
	return fmt.Sprintf("round %d %s mismatch: stored %s, incoming %s", e.Round, e.Field, e.Stored, e.Incoming)
}

// DecodeReason classifies ticket payload failures.
type DecodeReason string

const (
	DecodeMalformed         DecodeReason = "malformed"
	DecodeOutOfRange        DecodeReason = "out_of_range"
	DecodeDuplicate         DecodeReason = "duplicate"
	DecodeChecksum          DecodeReason = "checksum"
	DecodeTooManySelections DecodeReason = "too_many_selections"
)

// DecodeError reports a ticket payload that could not be decoded.
type DecodeError struct {
	Reason DecodeReason
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return "ticket decode failed: " + string(e.Reason)
	}
	return fmt.Sprintf("ticket decode failed (%s): %s", e.Reason, e.Detail)
}

// NewDecodeError 创建解码错误
func NewDecodeError(reason DecodeReason, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// RoundMismatchError reports a ticket evaluated against a draw of another round.
type RoundMismatchError struct {
	TicketRound int
	DrawRound   int
}

func (e *RoundMismatchError) Error() string {
	return fmt.Sprintf("ticket is for round %d but draw is round %d", e.TicketRound, e.DrawRound)
}

// GenerationExhaustedError reports a generation request that hit its attempt budget.
type GenerationExhaustedError struct {
	Requested int
	Produced  int
	Attempts  int
}

func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("generated %d of %d combinations within %d attempts; filters too restrictive",
		e.Produced, e.Requested, e.Attempts)
}

// PartialSyncWarning records a round that could not be applied during a sync cycle.
// Later rounds are still attempted.
type PartialSyncWarning struct {
	Round int
	Cause error
}

func (w *PartialSyncWarning) Error() string {
	return fmt.Sprintf("round %d skipped during sync: %v", w.Round, w.Cause)
}

func (w *PartialSyncWarning) Unwrap() error {
	return w.Cause
}

// Category groups errors by what a caller can do about them.
type Category string

const (
	CategoryTransient Category = "transient" // try again later
	CategoryInvalid   Category = "invalid"   // fix the input
	CategoryIntegrity Category = "integrity" // needs an operator
	CategoryUnknown   Category = "unknown"
)

// CategoryOf classifies err into one of the user-visible classes.
func CategoryOf(err error) Category {
	var (
		fetchErr    *FetchUnavailableError
		roundErr    *InvalidRoundError
		decodeErr   *DecodeError
		mismatchErr *RoundMismatchError
		genErr      *GenerationExhaustedError
		malformed   *MalformedResultError
		recordErr   *RecordMismatchError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr), errors.Is(err, ErrRoundNotDrawn),
		errors.Is(err, ErrDrawNotAvailable), errors.Is(err, ErrSyncInProgress):
		return CategoryTransient
	case errors.As(err, &roundErr), errors.As(err, &decodeErr), errors.As(err, &mismatchErr),
		errors.As(err, &genErr), errors.Is(err, ErrInvalidInput):
		return CategoryInvalid
	case errors.As(err, &malformed), errors.As(err, &recordErr):
		return CategoryIntegrity
	default:
		return CategoryUnknown
	}
}
