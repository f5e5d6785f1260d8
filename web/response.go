package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stuKim0221/smart-lotto/logger"
	"github.com/stuKim0221/smart-lotto/pkg/common"
)

type errorBody struct {
	Error    string          `json:"error"`
	Category common.Category `json:"category"`
	Reason   string          `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("[Web] Failed to encode response: %v", err)
	}
}

// writeError maps err to a status by its category so clients can tell
// "try later" from "fix the payload" from "contact support".
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Category: common.CategoryOf(err)}

	var decodeErr *common.DecodeError
	if errors.As(err, &decodeErr) {
		body.Reason = string(decodeErr.Reason)
	}

	writeJSON(w, statusFor(err, body.Category), body)
}

func statusFor(err error, category common.Category) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, common.ErrDrawNotAvailable), errors.Is(err, common.ErrRoundNotDrawn):
		return http.StatusTooEarly
	}

	switch category {
	case common.CategoryInvalid:
		return http.StatusBadRequest
	case common.CategoryTransient:
		return http.StatusServiceUnavailable
	case common.CategoryIntegrity:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(common.ErrInvalidInput, err)
	}
	return nil
}
