package events

import (
	"math/big"
	"strconv"

	"leverlend/core/types"
	"leverlend/crypto"
)

const (
	// TypeVaultWhitelisted is emitted when an asset is registered with the vault.
	TypeVaultWhitelisted = "vault.whitelisted"
	// TypeVaultDeposited captures staker liquidity entering the pool.
	TypeVaultDeposited = "vault.deposited"
	// TypeVaultWithdrawn captures staker liquidity leaving the pool.
	TypeVaultWithdrawn = "vault.withdrawn"
	// TypeVaultLoanTaken is emitted when a strategy borrows pool liquidity.
	TypeVaultLoanTaken = "vault.loanTaken"
	// TypeVaultLoanRepaid is emitted when a strategy settles a loan.
	TypeVaultLoanRepaid = "vault.loanRepaid"
	// TypeVaultBoosted captures privileged liquidity injected without shares.
	TypeVaultBoosted = "vault.boosted"
	// TypeVaultUnboosted captures boosted liquidity being withdrawn.
	TypeVaultUnboosted = "vault.unboosted"
	// TypeVaultRebalanced is emitted when stray balance is swept into the
	// profit unlock schedule.
	TypeVaultRebalanced = "vault.rebalanced"
	// TypeVaultStrategyAdded is emitted when a strategy gains borrow rights.
	TypeVaultStrategyAdded = "vault.strategyAdded"
	// TypeVaultStrategyRemoved is emitted when borrow rights are revoked.
	TypeVaultStrategyRemoved = "vault.strategyRemoved"
)

// VaultWhitelisted records the admission of a new asset.
type VaultWhitelisted struct {
	Token         string
	BaseFeeBps    uint64
	FixedFeeBps   uint64
	MinimumMargin *big.Int
	Cap           *big.Int
}

// EventType satisfies the Event interface.
func (VaultWhitelisted) EventType() string { return TypeVaultWhitelisted }

// Event converts the structured payload into a broadcastable event.
func (e VaultWhitelisted) Event() *types.Event {
	attrs := map[string]string{
		"token":    normalizeAsset(e.Token),
		"baseFee":  strconv.FormatUint(e.BaseFeeBps, 10),
		"fixedFee": strconv.FormatUint(e.FixedFeeBps, 10),
	}
	if e.MinimumMargin != nil {
		attrs["minimumMargin"] = formatAmount(e.MinimumMargin)
	}
	if e.Cap != nil && e.Cap.Sign() > 0 {
		attrs["cap"] = formatAmount(e.Cap)
	}
	return &types.Event{Type: TypeVaultWhitelisted, Attributes: attrs}
}

// VaultDeposited captures a staker deposit and the shares minted for it.
type VaultDeposited struct {
	Token  string
	Staker crypto.Address
	Amount *big.Int
	Shares *big.Int
}

// EventType satisfies the Event interface.
func (VaultDeposited) EventType() string { return TypeVaultDeposited }

// Event converts the structured payload into a broadcastable event.
func (e VaultDeposited) Event() *types.Event {
	return &types.Event{Type: TypeVaultDeposited, Attributes: map[string]string{
		"token":  normalizeAsset(e.Token),
		"staker": formatAddress(e.Staker),
		"amount": formatAmount(e.Amount),
		"shares": formatAmount(e.Shares),
	}}
}

// VaultWithdrawn captures a staker withdrawal and the shares burned for it.
type VaultWithdrawn struct {
	Token  string
	Staker crypto.Address
	Amount *big.Int
	Shares *big.Int
}

// EventType satisfies the Event interface.
func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e VaultWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeVaultWithdrawn, Attributes: map[string]string{
		"token":  normalizeAsset(e.Token),
		"staker": formatAddress(e.Staker),
		"amount": formatAmount(e.Amount),
		"shares": formatAmount(e.Shares),
	}}
}

// VaultLoanTaken captures a strategy drawing principal from the pool.
type VaultLoanTaken struct {
	Token         string
	Strategy      crypto.Address
	Amount        *big.Int
	RiskFactorBps uint64
}

// EventType satisfies the Event interface.
func (VaultLoanTaken) EventType() string { return TypeVaultLoanTaken }

// Event converts the structured payload into a broadcastable event.
func (e VaultLoanTaken) Event() *types.Event {
	return &types.Event{Type: TypeVaultLoanTaken, Attributes: map[string]string{
		"token":      normalizeAsset(e.Token),
		"strategy":   formatAddress(e.Strategy),
		"amount":     formatAmount(e.Amount),
		"riskFactor": strconv.FormatUint(e.RiskFactorBps, 10),
	}}
}

// VaultLoanRepaid captures a loan settlement, including the realized fee or
// loss delta absorbed by the unlock schedule.
type VaultLoanRepaid struct {
	Token     string
	Strategy  crypto.Address
	Amount    *big.Int
	Principal *big.Int
	FeeDelta  *big.Int
}

// EventType satisfies the Event interface.
func (VaultLoanRepaid) EventType() string { return TypeVaultLoanRepaid }

// Event converts the structured payload into a broadcastable event.
func (e VaultLoanRepaid) Event() *types.Event {
	attrs := map[string]string{
		"token":     normalizeAsset(e.Token),
		"strategy":  formatAddress(e.Strategy),
		"amount":    formatAmount(e.Amount),
		"principal": formatAmount(e.Principal),
	}
	if e.FeeDelta != nil {
		attrs["feeDelta"] = e.FeeDelta.String()
	}
	return &types.Event{Type: TypeVaultLoanRepaid, Attributes: attrs}
}

// VaultBoosted captures boosted liquidity entering the pool.
type VaultBoosted struct {
	Token   string
	Booster crypto.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (VaultBoosted) EventType() string { return TypeVaultBoosted }

// Event converts the structured payload into a broadcastable event.
func (e VaultBoosted) Event() *types.Event {
	return &types.Event{Type: TypeVaultBoosted, Attributes: map[string]string{
		"token":   normalizeAsset(e.Token),
		"booster": formatAddress(e.Booster),
		"amount":  formatAmount(e.Amount),
	}}
}

// VaultUnboosted captures boosted liquidity leaving the pool. Amount reflects
// the clamped value actually returned.
type VaultUnboosted struct {
	Token   string
	Booster crypto.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (VaultUnboosted) EventType() string { return TypeVaultUnboosted }

// Event converts the structured payload into a broadcastable event.
func (e VaultUnboosted) Event() *types.Event {
	return &types.Event{Type: TypeVaultUnboosted, Attributes: map[string]string{
		"token":   normalizeAsset(e.Token),
		"booster": formatAddress(e.Booster),
		"amount":  formatAmount(e.Amount),
	}}
}

// VaultRebalanced captures surplus balance locked into the unlock schedule.
type VaultRebalanced struct {
	Token   string
	Caller  crypto.Address
	Surplus *big.Int
}

// EventType satisfies the Event interface.
func (VaultRebalanced) EventType() string { return TypeVaultRebalanced }

// Event converts the structured payload into a broadcastable event.
func (e VaultRebalanced) Event() *types.Event {
	return &types.Event{Type: TypeVaultRebalanced, Attributes: map[string]string{
		"token":   normalizeAsset(e.Token),
		"caller":  formatAddress(e.Caller),
		"surplus": formatAmount(e.Surplus),
	}}
}

// VaultStrategyAdded records a strategy gaining borrow rights.
type VaultStrategyAdded struct {
	Strategy crypto.Address
}

// EventType satisfies the Event interface.
func (VaultStrategyAdded) EventType() string { return TypeVaultStrategyAdded }

// Event converts the structured payload into a broadcastable event.
func (e VaultStrategyAdded) Event() *types.Event {
	return &types.Event{Type: TypeVaultStrategyAdded, Attributes: map[string]string{
		"strategy": formatAddress(e.Strategy),
	}}
}

// VaultStrategyRemoved records a strategy losing borrow rights.
type VaultStrategyRemoved struct {
	Strategy crypto.Address
}

// EventType satisfies the Event interface.
func (VaultStrategyRemoved) EventType() string { return TypeVaultStrategyRemoved }

// Event converts the structured payload into a broadcastable event.
func (e VaultStrategyRemoved) Event() *types.Event {
	return &types.Event{Type: TypeVaultStrategyRemoved, Attributes: map[string]string{
		"strategy": formatAddress(e.Strategy),
	}}
}
