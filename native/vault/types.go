package vault

import "math/big"

// State captures the accounting record the vault keeps for one whitelisted
// token. Amounts are denominated in the token's smallest unit and expressed
// as big integers so the bps arithmetic never overflows.
type State struct {
	// Supported marks the token as admitted. Registration is one-time and
	// irreversible.
	Supported bool
	// Locked pauses staking and borrowing for the token without removing it.
	Locked bool
	// BaseFeeBps is the time-proportional borrowing fee, in basis points of
	// principal per day.
	BaseFeeBps uint64
	// FixedFeeBps is the flat fee charged on the spent amount at open time.
	FixedFeeBps uint64
	// InsuranceReserveRatioBps routes a slice of every positive fee delta
	// into the insurance reserve.
	InsuranceReserveRatioBps uint64
	// MinimumMargin is the smallest collateral a strategy may accept when
	// opening a position against this token.
	MinimumMargin *big.Int
	// Cap bounds TotalAssets for staking purposes. Zero means uncapped.
	Cap *big.Int
	// NetLoans is the sum of currently-borrowed principal, unpaid.
	NetLoans *big.Int
	// InsuranceReserveBalance holds fees set aside to absorb losses before
	// they touch locked profits or staker assets.
	InsuranceReserveBalance *big.Int
	// CurrentProfits is the realized profit snapshot taken at LatestRepay.
	// It releases linearly over UnlockTime.
	CurrentProfits *big.Int
	// BoostedAmount is liquidity injected without minting shares.
	BoostedAmount *big.Int
	// BookBalance is the token balance the vault expects to hold from its
	// own accounting. Rebalance sweeps any surplus of the actual balance
	// over this figure into the unlock schedule.
	BookBalance *big.Int
	// TotalShares is the outstanding share supply for the token.
	TotalShares *big.Int
	// OptimalRatioBps tracks the loan-weighted average risk factor of open
	// borrows. It rises as positions open and resets to zero when no loans
	// remain.
	OptimalRatioBps uint64
	// LatestRepay is the unix time of the last repay, anchoring the linear
	// profit release.
	LatestRepay uint64
	// UnlockTime is the length of the linear release window in seconds.
	UnlockTime uint64
	// CreatedAt is the unix time the token was whitelisted.
	CreatedAt uint64
}

// Clone returns a deep copy so callers cannot mutate shared records.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.MinimumMargin = cloneBig(s.MinimumMargin)
	clone.Cap = cloneBig(s.Cap)
	clone.NetLoans = cloneBig(s.NetLoans)
	clone.InsuranceReserveBalance = cloneBig(s.InsuranceReserveBalance)
	clone.CurrentProfits = cloneBig(s.CurrentProfits)
	clone.BoostedAmount = cloneBig(s.BoostedAmount)
	clone.BookBalance = cloneBig(s.BookBalance)
	clone.TotalShares = cloneBig(s.TotalShares)
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
