package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"fetch unavailable", &FetchUnavailableError{Round: 3, Attempts: 3, Cause: errors.New("timeout")}, CategoryTransient},
		{"wrapped fetch unavailable", fmt.Errorf("sync: %w", &FetchUnavailableError{Round: 3}), CategoryTransient},
		{"not drawn", ErrRoundNotDrawn, CategoryTransient},
		{"sync busy", ErrSyncInProgress, CategoryTransient},
		{"decode", NewDecodeError(DecodeChecksum, "want %d", 4), CategoryInvalid},
		{"invalid round", &InvalidRoundError{Round: 0}, CategoryInvalid},
		{"round mismatch", &RoundMismatchError{TicketRound: 1, DrawRound: 2}, CategoryInvalid},
		{"exhausted", &GenerationExhaustedError{Requested: 5}, CategoryInvalid},
		{"malformed", &MalformedResultError{Round: 1, Reason: "bad"}, CategoryIntegrity},
		{"record mismatch", &RecordMismatchError{Round: 1}, CategoryIntegrity},
		{"warning keeps cause", &PartialSyncWarning{Round: 2, Cause: &MalformedResultError{Round: 2}}, CategoryIntegrity},
		{"other", errors.New("boom"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.err))
		})
	}
}

func TestFetchUnavailableUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := &FetchUnavailableError{Round: 10, Attempts: 3, Cause: cause}

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestDecodeErrorMessage(t *testing.T) {
	err := NewDecodeError(DecodeOutOfRange, "number %d", 46)
	assert.Equal(t, "ticket decode failed (out_of_range): number 46", err.Error())
	assert.Equal(t, "ticket decode failed: malformed", (&DecodeError{Reason: DecodeMalformed}).Error())
}
