package exchange

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"leverlend/crypto"
)

type mapLedger struct {
	balances map[string]map[string]*big.Int
}

func newMapLedger() *mapLedger {
	return &mapLedger{balances: make(map[string]map[string]*big.Int)}
}

func (l *mapLedger) BalanceOf(addr crypto.Address, token string) (*big.Int, error) {
	if tokens, ok := l.balances[addr.String()]; ok {
		if amount, ok := tokens[token]; ok {
			return new(big.Int).Set(amount), nil
		}
	}
	return big.NewInt(0), nil
}

func (l *mapLedger) Transfer(from, to crypto.Address, token string, amount *big.Int) error {
	have, _ := l.BalanceOf(from, token)
	if have.Cmp(amount) < 0 {
		return ErrInsufficientInventory
	}
	l.credit(from, token, new(big.Int).Neg(amount))
	l.credit(to, token, amount)
	return nil
}

func (l *mapLedger) credit(addr crypto.Address, token string, amount *big.Int) {
	tokens, ok := l.balances[addr.String()]
	if !ok {
		tokens = make(map[string]*big.Int)
		l.balances[addr.String()] = tokens
	}
	current, ok := tokens[token]
	if !ok {
		current = big.NewInt(0)
	}
	tokens[token] = new(big.Int).Add(current, amount)
}

func testAddr(fill byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	for i := range raw {
		raw[i] = fill
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func newTestDealer(t *testing.T) (*Dealer, *mapLedger, crypto.Address) {
	t.Helper()
	ledger := newMapLedger()
	dealer := NewDealer(testAddr(0x01))
	dealer.SetLedger(ledger)
	dealer.SetPrice("USDC", big.NewInt(1))
	dealer.SetPrice("WETH", big.NewInt(100))
	trader := testAddr(0x02)
	return dealer, ledger, trader
}

func TestQuoteRoundsAgainstTaker(t *testing.T) {
	dealer, _, _ := newTestDealer(t)

	obtained, spent, err := dealer.Quote("USDC", "WETH", big.NewInt(250))
	require.NoError(t, err)
	// 250 USDC buys 2.5 WETH, truncated to 2.
	require.Equal(t, int64(2), obtained.Int64())
	// Obtaining 250 WETH costs exactly 25000 USDC.
	require.Equal(t, int64(25_000), spent.Int64())

	obtained, spent, err = dealer.Quote("WETH", "USDC", big.NewInt(10_010))
	require.NoError(t, err)
	require.Equal(t, int64(1_001_000), obtained.Int64())
	// Covering 10010 USDC needs 100.1 WETH, rounded up to 101.
	require.Equal(t, int64(101), spent.Int64())
}

func TestQuoteUnknownToken(t *testing.T) {
	dealer, _, _ := newTestDealer(t)

	_, _, err := dealer.Quote("USDC", "DOGE", big.NewInt(100))
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestQuoteNormalizesTokenNames(t *testing.T) {
	dealer, _, _ := newTestDealer(t)

	obtained, _, err := dealer.Quote(" usdc ", "weth", big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, int64(5), obtained.Int64())
}

func TestSwapSettlesAgainstInventory(t *testing.T) {
	dealer, ledger, trader := newTestDealer(t)
	ledger.credit(trader, "USDC", big.NewInt(1_000))
	ledger.credit(dealer.Address(), "WETH", big.NewInt(50))

	obtained, err := dealer.Swap(trader, "USDC", "WETH", big.NewInt(1_000), big.NewInt(10))
	require.NoError(t, err)
	require.Equal(t, int64(10), obtained.Int64())

	traderWETH, _ := ledger.BalanceOf(trader, "WETH")
	require.Equal(t, int64(10), traderWETH.Int64())
	traderUSDC, _ := ledger.BalanceOf(trader, "USDC")
	require.Zero(t, traderUSDC.Int64())
	inventoryUSDC, _ := ledger.BalanceOf(dealer.Address(), "USDC")
	require.Equal(t, int64(1_000), inventoryUSDC.Int64())
}

func TestSwapEnforcesMinOut(t *testing.T) {
	dealer, ledger, trader := newTestDealer(t)
	ledger.credit(trader, "USDC", big.NewInt(1_000))
	ledger.credit(dealer.Address(), "WETH", big.NewInt(50))

	_, err := dealer.Swap(trader, "USDC", "WETH", big.NewInt(1_000), big.NewInt(11))
	require.ErrorIs(t, err, ErrSlippage)

	// A failed swap moves nothing.
	traderUSDC, _ := ledger.BalanceOf(trader, "USDC")
	require.Equal(t, int64(1_000), traderUSDC.Int64())
}

func TestSwapRequiresInventory(t *testing.T) {
	dealer, ledger, trader := newTestDealer(t)
	ledger.credit(trader, "USDC", big.NewInt(1_000))
	ledger.credit(dealer.Address(), "WETH", big.NewInt(5))

	_, err := dealer.Swap(trader, "USDC", "WETH", big.NewInt(1_000), nil)
	require.ErrorIs(t, err, ErrInsufficientInventory)
}

func TestSwapForExactSpendsCeil(t *testing.T) {
	dealer, ledger, trader := newTestDealer(t)
	ledger.credit(trader, "WETH", big.NewInt(110))
	ledger.credit(dealer.Address(), "USDC", big.NewInt(20_000))

	spent, err := dealer.SwapForExact(trader, "WETH", "USDC", big.NewInt(10_010), big.NewInt(110))
	require.NoError(t, err)
	require.Equal(t, int64(101), spent.Int64())

	traderUSDC, _ := ledger.BalanceOf(trader, "USDC")
	require.Equal(t, int64(10_010), traderUSDC.Int64())
	traderWETH, _ := ledger.BalanceOf(trader, "WETH")
	require.Equal(t, int64(9), traderWETH.Int64())
}

func TestSwapForExactEnforcesMaxIn(t *testing.T) {
	dealer, ledger, trader := newTestDealer(t)
	ledger.credit(trader, "WETH", big.NewInt(110))
	ledger.credit(dealer.Address(), "USDC", big.NewInt(20_000))

	_, err := dealer.SwapForExact(trader, "WETH", "USDC", big.NewInt(10_010), big.NewInt(100))
	require.ErrorIs(t, err, ErrSlippage)
}

func TestSetPriceIgnoresInvalidValues(t *testing.T) {
	dealer, _, _ := newTestDealer(t)

	dealer.SetPrice("WETH", big.NewInt(0))
	dealer.SetPrice("WETH", big.NewInt(-5))
	dealer.SetPrice("WETH", nil)

	obtained, _, err := dealer.Quote("WETH", "USDC", big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, int64(100), obtained.Int64())
}
