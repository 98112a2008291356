package events

import (
	"math/big"
	"strings"

	"leverlend/crypto"
)

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}
