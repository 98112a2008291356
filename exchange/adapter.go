package exchange

import (
	"errors"
	"math/big"

	"leverlend/crypto"
)

var (
	// ErrSlippage is returned when a swap cannot satisfy the caller's bound.
	ErrSlippage = errors.New("exchange: slippage bound violated")
	// ErrUnknownToken is returned when no price is available for a token.
	ErrUnknownToken = errors.New("exchange: no price for token")
	// ErrInsufficientInventory is returned when the venue cannot deliver the
	// output amount.
	ErrInsufficientInventory = errors.New("exchange: insufficient inventory")
)

// Adapter is the external price/swap capability consumed by strategies and
// the liquidation engine. Quote is pure; Swap and SwapForExact perform the
// value transfer atomically with the quoted conversion.
type Adapter interface {
	// Quote converts in both directions: obtained is the receive-token
	// output for swapping amount of the spend token, spent is the
	// spend-token input required to obtain amount of the receive token.
	Quote(spendToken, receiveToken string, amount *big.Int) (obtained, spent *big.Int, err error)
	// Swap sells exactly amountIn of the spend token for the receive token
	// on behalf of trader. It fails without effect when the output would be
	// below minOut.
	Swap(trader crypto.Address, spendToken, receiveToken string, amountIn, minOut *big.Int) (*big.Int, error)
	// SwapForExact buys exactly amountOut of the receive token, failing
	// without effect when more than maxIn of the spend token would be
	// required. It returns the input actually spent.
	SwapForExact(trader crypto.Address, spendToken, receiveToken string, amountOut, maxIn *big.Int) (*big.Int, error)
}
