package liquidator

import (
	"errors"
	"math/big"

	"leverlend/core/events"
	"leverlend/crypto"
	nativecommon "leverlend/native/common"
	"leverlend/native/strategy"
)

var (
	errNilState        = errors.New("liquidator engine: not configured")
	errUnknownStrategy = errors.New("liquidator engine: strategy not registered")
	errNotLiquidatable = errors.New("liquidator engine: position is still solvent")
)

const moduleName = "liquidator"

var basisPoints = big.NewInt(10_000)

type strategyEngine interface {
	Address() crypto.Address
	Position(id uint64) (*strategy.Position, error)
	DueFees(position *strategy.Position) (*big.Int, error)
	PairRiskFactor(tokenA, tokenB string) (uint64, error)
	Quote(from, to string, amount *big.Int) (*big.Int, *big.Int, error)
	ForceClose(caller crypto.Address, id uint64) (*big.Int, error)
	TransferPosition(caller crypto.Address, id uint64, newOwner crypto.Address, extraMargin *big.Int) (crypto.Address, error)
	BuyOut(caller crypto.Address, id uint64, buyer crypto.Address, maxPrice *big.Int) (*big.Int, *big.Int, error)
}

// Engine evaluates position solvency and drives the three enforcement
// actions. It is a read-only scorer plus a thin dispatcher: every action
// recomputes the liquidation score inside its own critical section before it
// touches the position, so two racing attempts resolve to exactly one
// success.
type Engine struct {
	address    crypto.Address
	strategies map[string]strategyEngine
	emitter    events.Emitter
	pauses     nativecommon.PauseView
}

// NewEngine constructs a liquidation engine presenting the given enforcement
// account to the strategies it drives.
func NewEngine(addr crypto.Address) *Engine {
	return &Engine{
		address:    addr,
		strategies: make(map[string]strategyEngine),
		emitter:    events.NoopEmitter{},
	}
}

// Address returns the enforcement account strategies recognise.
func (e *Engine) Address() crypto.Address {
	if e == nil {
		return crypto.Address{}
	}
	return e.address
}

// SetEmitter wires the engine to an event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// RegisterStrategy makes a strategy's positions visible to the engine.
func (e *Engine) RegisterStrategy(st strategyEngine) {
	if e == nil || st == nil {
		return
	}
	e.strategies[string(st.Address().Bytes())] = st
}

// DeregisterStrategy removes a strategy from enforcement scope.
func (e *Engine) DeregisterStrategy(addr crypto.Address) {
	if e == nil {
		return
	}
	delete(e.strategies, string(addr.Bytes()))
}

func (e *Engine) strategyFor(addr crypto.Address) (strategyEngine, error) {
	if e == nil || e.strategies == nil {
		return nil, errNilState
	}
	st, ok := e.strategies[string(addr.Bytes())]
	if !ok {
		return nil, errUnknownStrategy
	}
	return st, nil
}

// Score computes the liquidation score for a position, fresh on every call.
// A non-negative score marks the position eligible for enforcement: losses
// have eaten through the risk-factor-scaled collateral buffer.
func (e *Engine) Score(strategyAddr crypto.Address, id uint64) (*big.Int, error) {
	st, err := e.strategyFor(strategyAddr)
	if err != nil {
		return nil, err
	}
	position, err := st.Position(id)
	if err != nil {
		return nil, err
	}
	return e.score(st, position)
}

func (e *Engine) score(st strategyEngine, position *strategy.Position) (*big.Int, error) {
	pairRisk, err := st.PairRiskFactor(position.HeldToken, position.OwedToken)
	if err != nil {
		return nil, err
	}
	dueFees, err := st.DueFees(position)
	if err != nil {
		return nil, err
	}

	// PnL is denominated in the margin asset: the owed token when margin
	// was posted in the borrowed asset, the held token otherwise. The two
	// directions are deliberately asymmetric: one values the allowance,
	// the other values the debt.
	var pnl *big.Int
	if position.CollateralIsSpentToken {
		value, _, err := st.Quote(position.HeldToken, position.OwedToken, position.Allowance)
		if err != nil {
			return nil, err
		}
		pnl = new(big.Int).Sub(value, position.Principal)
		pnl.Sub(pnl, dueFees)
	} else {
		debt := new(big.Int).Add(position.Principal, dueFees)
		_, needed, err := st.Quote(position.HeldToken, position.OwedToken, debt)
		if err != nil {
			return nil, err
		}
		pnl = new(big.Int).Sub(position.Allowance, needed)
	}

	score := new(big.Int).Mul(position.Collateral, new(big.Int).SetUint64(pairRisk))
	score.Sub(score, new(big.Int).Mul(pnl, basisPoints))
	return score, nil
}

// checkSolvency recomputes the score in the caller's critical section and
// rejects enforcement against a still-solvent position.
func (e *Engine) checkSolvency(st strategyEngine, id uint64) (*strategy.Position, *big.Int, error) {
	position, err := st.Position(id)
	if err != nil {
		return nil, nil, err
	}
	score, err := e.score(st, position)
	if err != nil {
		return nil, nil, err
	}
	if score.Sign() < 0 {
		return nil, nil, errNotLiquidatable
	}
	return position, score, nil
}

// LiquidateSingle force-closes an undercollateralized position at current
// market value. Every recovered unit belongs to the vault; a shortfall is
// absorbed through the vault's loss accounting. Callable by anyone.
func (e *Engine) LiquidateSingle(caller, strategyAddr crypto.Address, id uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	st, err := e.strategyFor(strategyAddr)
	if err != nil {
		return err
	}
	_, score, err := e.checkSolvency(st, id)
	if err != nil {
		return err
	}
	recovered, err := st.ForceClose(e.address, id)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.PositionLiquidated{
		Strategy:   strategyAddr,
		ID:         id,
		Liquidator: caller,
		Recovered:  recovered,
		Score:      score,
	})
	return nil
}

// MarginCall transfers ownership of an undercollateralized position to the
// caller, who posts extraMargin of the margin asset instead of closing it.
func (e *Engine) MarginCall(caller, strategyAddr crypto.Address, id uint64, extraMargin *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	st, err := e.strategyFor(strategyAddr)
	if err != nil {
		return err
	}
	if _, _, err := e.checkSolvency(st, id); err != nil {
		return err
	}
	prevOwner, err := st.TransferPosition(e.address, id, caller, extraMargin)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.PositionMarginCalled{
		Strategy:    strategyAddr,
		ID:          id,
		PrevOwner:   prevOwner,
		NewOwner:    caller,
		ExtraMargin: extraMargin,
	})
	return nil
}

// PurchaseAssets sells the position's held-token allowance to the caller at
// market value plus due fees, bounded by maxPrice, repaying the vault.
func (e *Engine) PurchaseAssets(caller, strategyAddr crypto.Address, id uint64, maxPrice *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	st, err := e.strategyFor(strategyAddr)
	if err != nil {
		return err
	}
	if _, _, err := e.checkSolvency(st, id); err != nil {
		return err
	}
	price, assets, err := st.BuyOut(e.address, id, caller, maxPrice)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.PositionPurchased{
		Strategy: strategyAddr,
		ID:       id,
		Buyer:    caller,
		Price:    price,
		Assets:   assets,
	})
	return nil
}
