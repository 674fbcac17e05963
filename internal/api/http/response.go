package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorStatus = []struct {
	kind   error
	status int
	code   string
}{
	{domain.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{domain.ErrDuplicateTransaction, http.StatusConflict, "DUPLICATE_TRANSACTION"},
	{domain.ErrDuplicateInstallment, http.StatusConflict, "DUPLICATE_INSTALLMENT"},
	{domain.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
	{domain.ErrInvalidAmount, http.StatusUnprocessableEntity, "INVALID_AMOUNT"},
	{domain.ErrInvalidTerms, http.StatusUnprocessableEntity, "INVALID_TERMS"},
	{domain.ErrStorageUnavailable, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError reports err with the invariant it names. Unknown errors are
// logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.kind) {
			msg := err.Error()
			var typed *domain.Error
			if errors.As(err, &typed) && typed.Message != "" {
				msg = typed.Message
			}
			writeJSON(w, m.status, errorBody{Error: m.code, Message: msg})
			return
		}
	}
	logger.ErrorContext(r.Context(), "Unhandled error", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "INTERNAL", Message: "internal error"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "BAD_REQUEST", Message: msg})
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// pathID parses a mux path variable. The route pattern already restricts it
// to digits.
func pathID(r *http.Request, name string) (int32, error) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func queryInt32(r *http.Request, name string, fallback int32) (int32, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}
