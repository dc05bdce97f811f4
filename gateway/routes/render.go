package routes

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"tradefin/core"
	"tradefin/crypto"
	"tradefin/native/claimtoken"
	"tradefin/native/common"
	"tradefin/native/directory"
	"tradefin/native/pool"
	"tradefin/native/receivable"
)

const requestBodyLimit = 1 << 20 // 1 MiB

func decodeRequest(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, requestBodyLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

// writeEngineError translates engine sentinels into HTTP statuses: authorization
// failures map to 403, missing records to 404, state conflicts to 409 and
// validation failures to 400.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrUnauthorized),
		errors.Is(err, receivable.ErrUnauthorized),
		errors.Is(err, pool.ErrUnauthorized):
		writeJSONError(w, http.StatusForbidden, err)
	case errors.Is(err, directory.ErrNotFound),
		errors.Is(err, receivable.ErrNotFound),
		errors.Is(err, pool.ErrNotFound),
		errors.Is(err, core.ErrFaucetDisabled):
		writeJSONError(w, http.StatusNotFound, err)
	case errors.Is(err, receivable.ErrAlreadyVerified),
		errors.Is(err, receivable.ErrDuplicate),
		errors.Is(err, pool.ErrDuplicatePool),
		errors.Is(err, pool.ErrWrongState),
		errors.Is(err, pool.ErrAlreadyDisbursed),
		errors.Is(err, pool.ErrCapacityExceeded):
		writeJSONError(w, http.StatusConflict, err)
	case errors.Is(err, common.ErrModulePaused):
		writeJSONError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, receivable.ErrInvalidAmount),
		errors.Is(err, receivable.ErrInvalidDueDate),
		errors.Is(err, receivable.ErrInvalidRiskScore),
		errors.Is(err, pool.ErrInvalidAmount),
		errors.Is(err, pool.ErrInvalidMaturity),
		errors.Is(err, pool.ErrBelowMinimum),
		errors.Is(err, pool.ErrInsufficientBalance),
		errors.Is(err, claimtoken.ErrInvalidAmount),
		errors.Is(err, claimtoken.ErrInsufficientBalance):
		writeJSONError(w, http.StatusBadRequest, err)
	default:
		writeJSONError(w, http.StatusInternalServerError, err)
	}
}

func parseAddressParam(s string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return [20]byte{}, err
	}
	return [20]byte(addr), nil
}

func parseHash32(s string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func parseAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return value, nil
}

func hashString(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

func addressString(a [20]byte) string {
	return crypto.Address(a).String()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
