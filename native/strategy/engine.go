package strategy

import (
	"errors"
	"math/big"

	"leverlend/core/events"
	"leverlend/crypto"
	"leverlend/exchange"
	nativecommon "leverlend/native/common"
	"leverlend/native/vault"
)

var (
	errNilState          = errors.New("strategy engine: state not configured")
	errNilLender         = errors.New("strategy engine: vault not configured")
	errNilAdapter        = errors.New("strategy engine: exchange adapter not configured")
	errNotAdmin          = errors.New("strategy engine: caller is not the admin")
	errNotOwner          = errors.New("strategy engine: caller does not own the position")
	errNotLiquidator     = errors.New("strategy engine: caller is not the liquidation engine")
	errOrderExpired      = errors.New("strategy engine: order deadline elapsed")
	errSameToken         = errors.New("strategy engine: spent and obtained tokens must differ")
	errZeroCollateral    = errors.New("strategy engine: collateral must be positive")
	errBelowMinMargin    = errors.New("strategy engine: collateral below minimum margin")
	errInvalidLeverage   = errors.New("strategy engine: max spent must exceed collateral")
	errInvalidAmount     = errors.New("strategy engine: amount must be positive")
	errInvalidRiskFactor = errors.New("strategy engine: risk factor exceeds 10000 basis points")
	errInsufficientFunds = errors.New("strategy engine: insufficient caller balance")
	errPositionNotFound  = errors.New("strategy engine: position does not exist")
	errPositionNotOpen   = errors.New("strategy engine: position is not open")
)

const moduleName = "strategy"

const secondsPerDay = 86_400

var basisPoints = big.NewInt(10_000)

type engineState interface {
	GetPosition(strategy crypto.Address, id uint64) (*Position, error)
	PutPosition(strategy crypto.Address, position *Position) error
	NextPositionID(strategy crypto.Address) (uint64, error)
	GetRiskFactor(strategy crypto.Address, token string) (uint64, error)
	PutRiskFactor(strategy crypto.Address, token string, bps uint64) error
	BalanceOf(addr crypto.Address, token string) (*big.Int, error)
	Transfer(from, to crypto.Address, token string, amount *big.Int) error
}

type lender interface {
	Borrow(strategy crypto.Address, token string, amount *big.Int, riskFactorBps uint64, recipient crypto.Address) error
	Repay(strategy crypto.Address, token string, amountPlusFees, principalRepaid *big.Int) error
	BaseFeeBps(token string) (uint64, error)
	FixedFeeBps(token string) (uint64, error)
	MinimumMargin(token string) (*big.Int, error)
}

// Engine owns the position ledger for one trading strategy. It borrows net
// leverage from the vault, swaps through the exchange adapter and records
// the resulting positions. Every mutation is compute-then-commit: all
// checks and quotes run before the first transfer.
type Engine struct {
	state      engineState
	lender     lender
	adapter    exchange.Adapter
	address    crypto.Address
	admin      crypto.Address
	liquidator crypto.Address
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	now        uint64
}

// NewEngine constructs a strategy engine bound to its treasury account and
// administrative account.
func NewEngine(strategyAddr, admin crypto.Address) *Engine {
	return &Engine{
		address: strategyAddr,
		admin:   admin,
		emitter: events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLender wires the engine to the vault it borrows from.
func (e *Engine) SetLender(l lender) { e.lender = l }

// SetAdapter wires the engine to the external price/swap venue.
func (e *Engine) SetAdapter(a exchange.Adapter) { e.adapter = a }

// SetLiquidator registers the account allowed to drive enforcement actions.
func (e *Engine) SetLiquidator(addr crypto.Address) {
	if e == nil {
		return
	}
	e.liquidator = addr
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

// SetTime records the deterministic timestamp applied to subsequent
// operations.
func (e *Engine) SetTime(now uint64) {
	if e == nil {
		return
	}
	e.now = now
}

// Address returns the strategy treasury account.
func (e *Engine) Address() crypto.Address {
	if e == nil {
		return crypto.Address{}
	}
	return e.address
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.lender == nil {
		return errNilLender
	}
	if e.adapter == nil {
		return errNilAdapter
	}
	return nil
}

// SetRiskFactor records an admin-set per-token risk factor. It only affects
// future liquidation-score computations.
func (e *Engine) SetRiskFactor(caller crypto.Address, token string, bps uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !caller.Equal(e.admin) {
		return errNotAdmin
	}
	if bps > 10_000 {
		return errInvalidRiskFactor
	}
	token = vault.NormalizeToken(token)
	if err := e.state.PutRiskFactor(e.address, token, bps); err != nil {
		return err
	}
	e.emitter.Emit(events.RiskFactorSet{Strategy: e.address, Token: token, RiskFactorBps: bps})
	return nil
}

// RiskFactor returns the configured risk factor for a token, zero by default.
func (e *Engine) RiskFactor(token string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.GetRiskFactor(e.address, vault.NormalizeToken(token))
}

// PairRiskFactor is the arithmetic mean of the two tokens' risk factors.
func (e *Engine) PairRiskFactor(tokenA, tokenB string) (uint64, error) {
	a, err := e.RiskFactor(tokenA)
	if err != nil {
		return 0, err
	}
	b, err := e.RiskFactor(tokenB)
	if err != nil {
		return 0, err
	}
	return (a + b) / 2, nil
}

// Quote passes a conversion through the exchange adapter without effect.
func (e *Engine) Quote(from, to string, amount *big.Int) (*big.Int, *big.Int, error) {
	if e == nil || e.adapter == nil {
		return nil, nil, errNilAdapter
	}
	return e.adapter.Quote(vault.NormalizeToken(from), vault.NormalizeToken(to), amount)
}

// Position returns a copy of the stored record.
func (e *Engine) Position(id uint64) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.state.GetPosition(e.address, id)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, errPositionNotFound
	}
	return position.Clone(), nil
}

// DueFees recomputes the total fees owed by a position at the engine's
// current time: the fixed fee recorded at open plus the time-proportional
// base fee on principal.
func (e *Engine) DueFees(position *Position) (*big.Int, error) {
	if position == nil {
		return nil, errPositionNotFound
	}
	baseFee, err := e.lender.BaseFeeBps(position.OwedToken)
	if err != nil {
		return nil, err
	}
	due := big.NewInt(0)
	if position.Fees != nil {
		due.Set(position.Fees)
	}
	if position.Principal == nil || position.Principal.Sign() <= 0 || e.now <= position.CreatedAt {
		return due, nil
	}
	elapsed := new(big.Int).SetUint64(e.now - position.CreatedAt)
	accrued := new(big.Int).Mul(position.Principal, new(big.Int).SetUint64(baseFee))
	accrued.Mul(accrued, elapsed)
	accrued.Quo(accrued, new(big.Int).Mul(basisPoints, big.NewInt(secondsPerDay)))
	return due.Add(due, accrued), nil
}

func (p *Position) marginToken() string {
	if p.CollateralIsSpentToken {
		return p.OwedToken
	}
	return p.HeldToken
}

// OpenPosition borrows net leverage from the vault, swaps the committed
// spent amount through the adapter and records the resulting position. The
// new position id is returned.
func (e *Engine) OpenPosition(trader crypto.Address, order Order) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}

	spent := vault.NormalizeToken(order.SpentToken)
	obtained := vault.NormalizeToken(order.ObtainedToken)
	if spent == obtained {
		return 0, errSameToken
	}
	if order.Deadline > 0 && e.now > order.Deadline {
		return 0, errOrderExpired
	}
	if order.Collateral == nil || order.Collateral.Sign() <= 0 {
		return 0, errZeroCollateral
	}
	if order.MaxSpent == nil || order.MaxSpent.Sign() <= 0 {
		return 0, errInvalidAmount
	}

	toBorrow := new(big.Int).Set(order.MaxSpent)
	if order.CollateralIsSpentToken {
		toBorrow.Sub(toBorrow, order.Collateral)
		if toBorrow.Sign() <= 0 {
			return 0, errInvalidLeverage
		}
	}

	marginToken := spent
	if !order.CollateralIsSpentToken {
		marginToken = obtained
	}
	if minMargin, err := e.lender.MinimumMargin(marginToken); err == nil {
		if minMargin != nil && order.Collateral.Cmp(minMargin) < 0 {
			return 0, errBelowMinMargin
		}
	} else if order.CollateralIsSpentToken {
		// The borrowed token must be whitelisted; an unknown margin token is
		// only tolerated on the held side.
		return 0, err
	}

	balance, err := e.state.BalanceOf(trader, marginToken)
	if err != nil {
		return 0, err
	}
	if balance.Cmp(order.Collateral) < 0 {
		return 0, errInsufficientFunds
	}

	quoted, _, err := e.adapter.Quote(spent, obtained, order.MaxSpent)
	if err != nil {
		return 0, err
	}
	if order.MinObtained != nil && quoted.Cmp(order.MinObtained) < 0 {
		return 0, exchange.ErrSlippage
	}

	fixedFee, err := e.lender.FixedFeeBps(spent)
	if err != nil {
		return 0, err
	}
	riskFactor, err := e.PairRiskFactor(spent, obtained)
	if err != nil {
		return 0, err
	}

	// Commit phase. The vault loan is the first mutation; everything after
	// it is covered by the checks above.
	if err := e.lender.Borrow(e.address, spent, toBorrow, riskFactor, e.address); err != nil {
		return 0, err
	}
	if err := e.state.Transfer(trader, e.address, marginToken, order.Collateral); err != nil {
		return 0, err
	}
	swapped, err := e.adapter.Swap(e.address, spent, obtained, order.MaxSpent, order.MinObtained)
	if err != nil {
		return 0, err
	}

	fees := new(big.Int).Mul(order.MaxSpent, new(big.Int).SetUint64(fixedFee))
	fees.Quo(fees, basisPoints)

	allowance := new(big.Int).Set(swapped)
	if !order.CollateralIsSpentToken {
		allowance.Add(allowance, order.Collateral)
	}

	id, err := e.state.NextPositionID(e.address)
	if err != nil {
		return 0, err
	}
	position := &Position{
		ID:                     id,
		Owner:                  trader,
		OwedToken:              spent,
		HeldToken:              obtained,
		Collateral:             new(big.Int).Set(order.Collateral),
		CollateralIsSpentToken: order.CollateralIsSpentToken,
		Principal:              toBorrow,
		Allowance:              allowance,
		Fees:                   fees,
		CreatedAt:              e.now,
	}
	if err := e.state.PutPosition(e.address, position); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.PositionOpened{
		Strategy:   e.address,
		ID:         id,
		Owner:      trader,
		OwedToken:  spent,
		HeldToken:  obtained,
		Collateral: position.Collateral,
		Principal:  position.Principal,
		Allowance:  position.Allowance,
		Fees:       position.Fees,
	})
	return id, nil
}

// ClosePosition unwinds an open position at market, repays the vault and
// returns the remainder to the owner. For spent-token margin the slippage
// bound is the minimum owed-token output of the closing swap; for held-token
// margin it bounds the held amount sold to cover the debt.
func (e *Engine) ClosePosition(owner crypto.Address, id uint64, slippage *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	position, err := e.state.GetPosition(e.address, id)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, errPositionNotFound
	}
	if !position.Open() {
		return nil, errPositionNotOpen
	}
	if !position.Owner.Equal(owner) {
		return nil, errNotOwner
	}

	dueFees, err := e.DueFees(position)
	if err != nil {
		return nil, err
	}
	debt := new(big.Int).Add(position.Principal, dueFees)

	var payout *big.Int
	var payoutToken string
	var repaid *big.Int
	if position.CollateralIsSpentToken {
		obtained, err := e.adapter.Swap(e.address, position.HeldToken, position.OwedToken, position.Allowance, slippage)
		if err != nil {
			return nil, err
		}
		repaid = minBig(obtained, debt)
		if err := e.lender.Repay(e.address, position.OwedToken, repaid, position.Principal); err != nil {
			return nil, err
		}
		payout = new(big.Int).Sub(obtained, repaid)
		payoutToken = position.OwedToken
		if payout.Sign() > 0 {
			if err := e.state.Transfer(e.address, owner, position.OwedToken, payout); err != nil {
				return nil, err
			}
		}
	} else {
		_, needed, err := e.adapter.Quote(position.HeldToken, position.OwedToken, debt)
		if err != nil {
			return nil, err
		}
		if needed.Cmp(position.Allowance) <= 0 {
			if slippage != nil && needed.Cmp(slippage) > 0 {
				return nil, exchange.ErrSlippage
			}
			spent, err := e.adapter.SwapForExact(e.address, position.HeldToken, position.OwedToken, debt, position.Allowance)
			if err != nil {
				return nil, err
			}
			repaid = debt
			if err := e.lender.Repay(e.address, position.OwedToken, debt, position.Principal); err != nil {
				return nil, err
			}
			payout = new(big.Int).Sub(position.Allowance, spent)
			payoutToken = position.HeldToken
			if payout.Sign() > 0 {
				if err := e.state.Transfer(e.address, owner, position.HeldToken, payout); err != nil {
					return nil, err
				}
			}
		} else {
			// The allowance cannot cover the debt: sell everything and let
			// the vault absorb the shortfall.
			obtained, err := e.adapter.Swap(e.address, position.HeldToken, position.OwedToken, position.Allowance, nil)
			if err != nil {
				return nil, err
			}
			repaid = minBig(obtained, debt)
			if err := e.lender.Repay(e.address, position.OwedToken, repaid, position.Principal); err != nil {
				return nil, err
			}
			payout = big.NewInt(0)
			payoutToken = position.HeldToken
		}
	}

	position.Principal = big.NewInt(0)
	position.Allowance = big.NewInt(0)
	if err := e.state.PutPosition(e.address, position); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PositionClosed{
		Strategy:    e.address,
		ID:          id,
		Owner:       owner,
		Repaid:      repaid,
		Payout:      payout,
		PayoutToken: payoutToken,
	})
	return payout, nil
}

// EditPosition tops up the collateral backing an open position.
func (e *Engine) EditPosition(owner crypto.Address, id uint64, topUp *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if topUp == nil || topUp.Sign() <= 0 {
		return errInvalidAmount
	}
	position, err := e.state.GetPosition(e.address, id)
	if err != nil {
		return err
	}
	if position == nil {
		return errPositionNotFound
	}
	if !position.Open() {
		return errPositionNotOpen
	}
	if !position.Owner.Equal(owner) {
		return errNotOwner
	}
	marginToken := position.marginToken()
	balance, err := e.state.BalanceOf(owner, marginToken)
	if err != nil {
		return err
	}
	if balance.Cmp(topUp) < 0 {
		return errInsufficientFunds
	}
	if err := e.state.Transfer(owner, e.address, marginToken, topUp); err != nil {
		return err
	}
	position.Collateral = new(big.Int).Add(position.Collateral, topUp)
	if !position.CollateralIsSpentToken {
		position.Allowance = new(big.Int).Add(position.Allowance, topUp)
	}
	if err := e.state.PutPosition(e.address, position); err != nil {
		return err
	}
	e.emitter.Emit(events.PositionEdited{Strategy: e.address, ID: id, Owner: owner, TopUp: topUp})
	return nil
}

func (e *Engine) requireLiquidator(caller crypto.Address) error {
	if e.liquidator.IsZero() || !caller.Equal(e.liquidator) {
		return errNotLiquidator
	}
	return nil
}

// ForceClose unwinds an open position at market value with every recovered
// unit routed to the vault. Only the liquidation engine may call it; the
// solvency check happens there, inside the same critical section.
func (e *Engine) ForceClose(caller crypto.Address, id uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.requireLiquidator(caller); err != nil {
		return nil, err
	}
	position, err := e.state.GetPosition(e.address, id)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, errPositionNotFound
	}
	if !position.Open() {
		return nil, errPositionNotOpen
	}

	obtained, err := e.adapter.Swap(e.address, position.HeldToken, position.OwedToken, position.Allowance, nil)
	if err != nil {
		return nil, err
	}
	if err := e.lender.Repay(e.address, position.OwedToken, obtained, position.Principal); err != nil {
		return nil, err
	}
	position.Principal = big.NewInt(0)
	position.Allowance = big.NewInt(0)
	if err := e.state.PutPosition(e.address, position); err != nil {
		return nil, err
	}
	return obtained, nil
}

// TransferPosition reassigns an open position to newOwner against an extra
// margin deposit. Token and amount fields other than the collateral top-up
// are untouched.
func (e *Engine) TransferPosition(caller crypto.Address, id uint64, newOwner crypto.Address, extraMargin *big.Int) (crypto.Address, error) {
	if e == nil || e.state == nil {
		return crypto.Address{}, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return crypto.Address{}, err
	}
	if err := e.requireLiquidator(caller); err != nil {
		return crypto.Address{}, err
	}
	if extraMargin == nil || extraMargin.Sign() <= 0 {
		return crypto.Address{}, errInvalidAmount
	}
	position, err := e.state.GetPosition(e.address, id)
	if err != nil {
		return crypto.Address{}, err
	}
	if position == nil {
		return crypto.Address{}, errPositionNotFound
	}
	if !position.Open() {
		return crypto.Address{}, errPositionNotOpen
	}
	marginToken := position.marginToken()
	balance, err := e.state.BalanceOf(newOwner, marginToken)
	if err != nil {
		return crypto.Address{}, err
	}
	if balance.Cmp(extraMargin) < 0 {
		return crypto.Address{}, errInsufficientFunds
	}
	if err := e.state.Transfer(newOwner, e.address, marginToken, extraMargin); err != nil {
		return crypto.Address{}, err
	}
	prevOwner := position.Owner
	position.Owner = newOwner
	position.Collateral = new(big.Int).Add(position.Collateral, extraMargin)
	if !position.CollateralIsSpentToken {
		position.Allowance = new(big.Int).Add(position.Allowance, extraMargin)
	}
	if err := e.state.PutPosition(e.address, position); err != nil {
		return crypto.Address{}, err
	}
	return prevOwner, nil
}

// BuyOut sells the position's full held-token allowance to buyer at its
// market value plus due fees, bounded by maxPrice. The payment repays the
// vault and no held asset remains in the strategy.
func (e *Engine) BuyOut(caller crypto.Address, id uint64, buyer crypto.Address, maxPrice *big.Int) (*big.Int, *big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if err := e.requireLiquidator(caller); err != nil {
		return nil, nil, err
	}
	position, err := e.state.GetPosition(e.address, id)
	if err != nil {
		return nil, nil, err
	}
	if position == nil {
		return nil, nil, errPositionNotFound
	}
	if !position.Open() {
		return nil, nil, errPositionNotOpen
	}
	dueFees, err := e.DueFees(position)
	if err != nil {
		return nil, nil, err
	}
	value, _, err := e.adapter.Quote(position.HeldToken, position.OwedToken, position.Allowance)
	if err != nil {
		return nil, nil, err
	}
	price := new(big.Int).Add(value, dueFees)
	if maxPrice != nil && price.Cmp(maxPrice) > 0 {
		return nil, nil, exchange.ErrSlippage
	}
	balance, err := e.state.BalanceOf(buyer, position.OwedToken)
	if err != nil {
		return nil, nil, err
	}
	if balance.Cmp(price) < 0 {
		return nil, nil, errInsufficientFunds
	}

	if err := e.state.Transfer(buyer, e.address, position.OwedToken, price); err != nil {
		return nil, nil, err
	}
	if err := e.lender.Repay(e.address, position.OwedToken, price, position.Principal); err != nil {
		return nil, nil, err
	}
	assets := new(big.Int).Set(position.Allowance)
	if err := e.state.Transfer(e.address, buyer, position.HeldToken, assets); err != nil {
		return nil, nil, err
	}
	position.Principal = big.NewInt(0)
	position.Allowance = big.NewInt(0)
	if err := e.state.PutPosition(e.address, position); err != nil {
		return nil, nil, err
	}
	return price, assets, nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
