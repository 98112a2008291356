package events

import (
	"math/big"
	"strconv"

	"leverlend/core/types"
	"leverlend/crypto"
)

const (
	// TypePositionOpened is emitted when a trader opens a leveraged position.
	TypePositionOpened = "position.opened"
	// TypePositionClosed is emitted when the owner closes a position.
	TypePositionClosed = "position.closed"
	// TypePositionEdited is emitted when the owner tops up collateral.
	TypePositionEdited = "position.edited"
	// TypeRiskFactorSet is emitted when the admin adjusts a token risk factor.
	TypeRiskFactorSet = "position.riskFactorSet"
	// TypePositionLiquidated captures a forced close by the liquidation engine.
	TypePositionLiquidated = "position.liquidated"
	// TypePositionMarginCalled captures an ownership transfer via margin call.
	TypePositionMarginCalled = "position.marginCalled"
	// TypePositionPurchased captures a third party buying out the position's
	// held assets.
	TypePositionPurchased = "position.assetsPurchased"
)

// PositionOpened captures the full shape of a freshly opened position.
type PositionOpened struct {
	Strategy  crypto.Address
	ID        uint64
	Owner     crypto.Address
	OwedToken string
	HeldToken string
	Collateral *big.Int
	Principal  *big.Int
	Allowance  *big.Int
	Fees       *big.Int
}

// EventType satisfies the Event interface.
func (PositionOpened) EventType() string { return TypePositionOpened }

// Event converts the structured payload into a broadcastable event.
func (e PositionOpened) Event() *types.Event {
	return &types.Event{Type: TypePositionOpened, Attributes: map[string]string{
		"strategy":   formatAddress(e.Strategy),
		"id":         strconv.FormatUint(e.ID, 10),
		"owner":      formatAddress(e.Owner),
		"owedToken":  normalizeAsset(e.OwedToken),
		"heldToken":  normalizeAsset(e.HeldToken),
		"collateral": formatAmount(e.Collateral),
		"principal":  formatAmount(e.Principal),
		"allowance":  formatAmount(e.Allowance),
		"fees":       formatAmount(e.Fees),
	}}
}

// PositionClosed captures a voluntary close and the payout returned to the
// owner.
type PositionClosed struct {
	Strategy crypto.Address
	ID       uint64
	Owner    crypto.Address
	Repaid   *big.Int
	Payout   *big.Int
	PayoutToken string
}

// EventType satisfies the Event interface.
func (PositionClosed) EventType() string { return TypePositionClosed }

// Event converts the structured payload into a broadcastable event.
func (e PositionClosed) Event() *types.Event {
	attrs := map[string]string{
		"strategy": formatAddress(e.Strategy),
		"id":       strconv.FormatUint(e.ID, 10),
		"owner":    formatAddress(e.Owner),
		"repaid":   formatAmount(e.Repaid),
		"payout":   formatAmount(e.Payout),
	}
	if asset := normalizeAsset(e.PayoutToken); asset != "" {
		attrs["payoutToken"] = asset
	}
	return &types.Event{Type: TypePositionClosed, Attributes: attrs}
}

// PositionEdited captures a collateral top-up on an open position.
type PositionEdited struct {
	Strategy crypto.Address
	ID       uint64
	Owner    crypto.Address
	TopUp    *big.Int
}

// EventType satisfies the Event interface.
func (PositionEdited) EventType() string { return TypePositionEdited }

// Event converts the structured payload into a broadcastable event.
func (e PositionEdited) Event() *types.Event {
	return &types.Event{Type: TypePositionEdited, Attributes: map[string]string{
		"strategy": formatAddress(e.Strategy),
		"id":       strconv.FormatUint(e.ID, 10),
		"owner":    formatAddress(e.Owner),
		"topUp":    formatAmount(e.TopUp),
	}}
}

// RiskFactorSet records an admin risk factor update for a token.
type RiskFactorSet struct {
	Strategy      crypto.Address
	Token         string
	RiskFactorBps uint64
}

// EventType satisfies the Event interface.
func (RiskFactorSet) EventType() string { return TypeRiskFactorSet }

// Event converts the structured payload into a broadcastable event.
func (e RiskFactorSet) Event() *types.Event {
	return &types.Event{Type: TypeRiskFactorSet, Attributes: map[string]string{
		"strategy":   formatAddress(e.Strategy),
		"token":      normalizeAsset(e.Token),
		"riskFactor": strconv.FormatUint(e.RiskFactorBps, 10),
	}}
}

// PositionLiquidated captures a forced close, including the amount recovered
// for the vault.
type PositionLiquidated struct {
	Strategy   crypto.Address
	ID         uint64
	Liquidator crypto.Address
	Recovered  *big.Int
	Score      *big.Int
}

// EventType satisfies the Event interface.
func (PositionLiquidated) EventType() string { return TypePositionLiquidated }

// Event converts the structured payload into a broadcastable event.
func (e PositionLiquidated) Event() *types.Event {
	attrs := map[string]string{
		"strategy":   formatAddress(e.Strategy),
		"id":         strconv.FormatUint(e.ID, 10),
		"liquidator": formatAddress(e.Liquidator),
		"recovered":  formatAmount(e.Recovered),
	}
	if e.Score != nil {
		attrs["score"] = e.Score.String()
	}
	return &types.Event{Type: TypePositionLiquidated, Attributes: attrs}
}

// PositionMarginCalled captures an enforcement ownership transfer.
type PositionMarginCalled struct {
	Strategy    crypto.Address
	ID          uint64
	PrevOwner   crypto.Address
	NewOwner    crypto.Address
	ExtraMargin *big.Int
}

// EventType satisfies the Event interface.
func (PositionMarginCalled) EventType() string { return TypePositionMarginCalled }

// Event converts the structured payload into a broadcastable event.
func (e PositionMarginCalled) Event() *types.Event {
	return &types.Event{Type: TypePositionMarginCalled, Attributes: map[string]string{
		"strategy":    formatAddress(e.Strategy),
		"id":          strconv.FormatUint(e.ID, 10),
		"prevOwner":   formatAddress(e.PrevOwner),
		"newOwner":    formatAddress(e.NewOwner),
		"extraMargin": formatAmount(e.ExtraMargin),
	}}
}

// PositionPurchased captures a third party buying the position's held assets.
type PositionPurchased struct {
	Strategy crypto.Address
	ID       uint64
	Buyer    crypto.Address
	Price    *big.Int
	Assets   *big.Int
}

// EventType satisfies the Event interface.
func (PositionPurchased) EventType() string { return TypePositionPurchased }

// Event converts the structured payload into a broadcastable event.
func (e PositionPurchased) Event() *types.Event {
	return &types.Event{Type: TypePositionPurchased, Attributes: map[string]string{
		"strategy": formatAddress(e.Strategy),
		"id":       strconv.FormatUint(e.ID, 10),
		"buyer":    formatAddress(e.Buyer),
		"price":    formatAmount(e.Price),
		"assets":   formatAmount(e.Assets),
	}}
}
