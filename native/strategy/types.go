package strategy

import (
	"math/big"

	"leverlend/crypto"
)

// Position is a uniquely-owned leveraged exposure record. Principal doubles
// as the open flag: a position is closed exactly when Principal reaches zero.
type Position struct {
	ID    uint64
	Owner crypto.Address
	// OwedToken is the borrowed asset the vault must be repaid in.
	OwedToken string
	// HeldToken is the asset backing the position.
	HeldToken string
	// Collateral is the trader margin posted at open plus any top-ups.
	Collateral *big.Int
	// CollateralIsSpentToken records whether margin was posted in the
	// borrowed asset (long) or in the target asset (short).
	CollateralIsSpentToken bool
	// Principal is the outstanding vault debt.
	Principal *big.Int
	// Allowance is the held-token quantity currently backing the position.
	Allowance *big.Int
	// Fees is the fixed fee charged at open. Time-proportional fees accrue
	// on top of it and are recomputed on read, never stored.
	Fees      *big.Int
	CreatedAt uint64
}

// Open reports whether the position still owes principal.
func (p *Position) Open() bool {
	return p != nil && p.Principal != nil && p.Principal.Sign() > 0
}

// Clone returns a deep copy so callers cannot mutate the stored record.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Collateral = cloneBig(p.Collateral)
	clone.Principal = cloneBig(p.Principal)
	clone.Allowance = cloneBig(p.Allowance)
	clone.Fees = cloneBig(p.Fees)
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// Order describes a position a trader wants to open.
type Order struct {
	SpentToken    string
	ObtainedToken string
	// Collateral is the margin posted, denominated in the spent token when
	// CollateralIsSpentToken is set and in the obtained token otherwise.
	Collateral             *big.Int
	CollateralIsSpentToken bool
	// MinObtained bounds slippage on the opening swap.
	MinObtained *big.Int
	// MaxSpent is the total spent-token amount committed to the swap. The
	// vault lends the difference to the margin for spent-token collateral
	// and the full amount otherwise.
	MaxSpent *big.Int
	// Deadline is the unix time after which the order is stale.
	Deadline uint64
}
