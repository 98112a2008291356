package vault

import "math/big"

var basisPoints = big.NewInt(10_000)

// bpsShare computes amount * bps / 10000 with truncating division. Rounding
// dust systematically stays with the vault.
func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, basisPoints)
}

// unlockedProfits returns the portion of profits released by the linear
// schedule at time now. The full amount is unlocked once the window elapses
// or when no window is configured.
func unlockedProfits(profits *big.Int, latestRepay, unlockTime, now uint64) *big.Int {
	if profits == nil || profits.Sign() <= 0 {
		return big.NewInt(0)
	}
	if unlockTime == 0 || now >= latestRepay+unlockTime {
		return new(big.Int).Set(profits)
	}
	if now <= latestRepay {
		return big.NewInt(0)
	}
	elapsed := new(big.Int).SetUint64(now - latestRepay)
	released := new(big.Int).Mul(profits, elapsed)
	return released.Quo(released, new(big.Int).SetUint64(unlockTime))
}

// sharesForDeposit converts a deposit into shares at the pre-deposit
// totalAssets/totalShares ratio, 1:1 at genesis.
func sharesForDeposit(amount, totalAssets, totalShares *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	if totalShares == nil || totalShares.Sign() == 0 || totalAssets == nil || totalAssets.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	minted := new(big.Int).Mul(amount, totalShares)
	return minted.Quo(minted, totalAssets)
}

// sharesForWithdrawal converts a requested asset amount into shares burned,
// rounding up so withdrawal dust stays with the vault and the share price
// never drops without a realized loss. Burning exactly the claimable balance
// is handled by the caller.
func sharesForWithdrawal(amount, totalAssets, totalShares *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || totalAssets == nil || totalAssets.Sign() == 0 {
		return big.NewInt(0)
	}
	burned := new(big.Int).Mul(amount, totalShares)
	burned.Add(burned, new(big.Int).Sub(totalAssets, big.NewInt(1)))
	return burned.Quo(burned, totalAssets)
}

// claimableAssets converts a share balance into the assets it can redeem at
// the current ratio, truncating.
func claimableAssets(shares, totalAssets, totalShares *big.Int) *big.Int {
	if shares == nil || shares.Sign() <= 0 || totalShares == nil || totalShares.Sign() == 0 {
		return big.NewInt(0)
	}
	if totalAssets == nil || totalAssets.Sign() <= 0 {
		return big.NewInt(0)
	}
	claim := new(big.Int).Mul(shares, totalAssets)
	return claim.Quo(claim, totalShares)
}

// weightedOptimalRatio folds a new borrow's risk factor into the loan-weighted
// average ratio.
func weightedOptimalRatio(currentBps uint64, netLoans *big.Int, riskBps uint64, amount *big.Int) uint64 {
	if amount == nil || amount.Sign() <= 0 {
		return currentBps
	}
	loans := big.NewInt(0)
	if netLoans != nil && netLoans.Sign() > 0 {
		loans = netLoans
	}
	numerator := new(big.Int).Mul(loans, new(big.Int).SetUint64(currentBps))
	numerator.Add(numerator, new(big.Int).Mul(amount, new(big.Int).SetUint64(riskBps)))
	denominator := new(big.Int).Add(loans, amount)
	if denominator.Sign() == 0 {
		return currentBps
	}
	return numerator.Quo(numerator, denominator).Uint64()
}
