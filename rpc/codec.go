package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"leverlend/crypto"
	"leverlend/exchange"
	nativecommon "leverlend/native/common"
	"leverlend/state"
)

const requestBodyLimit = 1 << 20 // 1 MiB

type eventPayload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func decodeRequest(r *http.Request, out interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, requestBodyLimit)
	defer body.Close()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorPayload{Error: err.Error()})
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, state.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, exchange.ErrUnknownToken):
		status = http.StatusNotFound
	case strings.Contains(err.Error(), "not found"):
		status = http.StatusNotFound
	case strings.Contains(err.Error(), "is not the"):
		status = http.StatusForbidden
	}
	writeJSON(w, status, errorPayload{Error: err.Error()})
}

func parseAddress(field, value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: amount required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid decimal amount %q", field, value)
	}
	return amount, nil
}

// parseOptionalAmount returns nil for an absent value so engine-side
// "no bound" semantics apply.
func parseOptionalAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return parseAmount(field, value)
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
