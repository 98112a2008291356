package vault

import (
	"errors"
	"math/big"
	"strings"

	"leverlend/core/events"
	"leverlend/crypto"
	nativecommon "leverlend/native/common"
)

var (
	errNilState              = errors.New("vault engine: state not configured")
	errNotAdmin              = errors.New("vault engine: caller is not the admin")
	errNotStrategy           = errors.New("vault engine: caller is not a registered strategy")
	errInvalidToken          = errors.New("vault engine: token symbol must not be empty")
	errAlreadyWhitelisted    = errors.New("vault engine: token already whitelisted")
	errNotSupported          = errors.New("vault engine: token not whitelisted")
	errTokenLocked           = errors.New("vault engine: token locked")
	errInvalidAmount         = errors.New("vault engine: amount must be positive")
	errInvalidRatio          = errors.New("vault engine: ratio exceeds 10000 basis points")
	errInsufficientBalance   = errors.New("vault engine: insufficient balance")
	errInsufficientLiquidity = errors.New("vault engine: insufficient free liquidity")
	errUnstakeExceedsClaim   = errors.New("vault engine: unstake exceeds claimable balance")
	errDepositCapExceeded    = errors.New("vault engine: deposit cap exceeded")
	errDustDeposit           = errors.New("vault engine: deposit too small to mint shares")
)

const moduleName = "vault"

// defaultUnlockTime is the linear profit release window applied at whitelist
// time unless overridden, in seconds.
const defaultUnlockTime = 21_600

type engineState interface {
	GetVault(token string) (*State, error)
	PutVault(token string, state *State) error
	GetShares(token string, addr crypto.Address) (*big.Int, error)
	PutShares(token string, addr crypto.Address, amount *big.Int) error
	GetBoost(token string, addr crypto.Address) (*big.Int, error)
	PutBoost(token string, addr crypto.Address, amount *big.Int) error
	IsStrategy(addr crypto.Address) (bool, error)
	PutStrategy(addr crypto.Address, enabled bool) error
	BalanceOf(addr crypto.Address, token string) (*big.Int, error)
	Transfer(from, to crypto.Address, token string, amount *big.Int) error
}

// Engine orchestrates the share-based liquidity accounting for every
// whitelisted token. All mutations run compute-then-commit: records are only
// written after every check has passed.
type Engine struct {
	state        engineState
	vaultAddress crypto.Address
	admin        crypto.Address
	emitter      events.Emitter
	pauses       nativecommon.PauseView
	now          uint64
	unlockTime   uint64
}

// NewEngine constructs a vault engine bound to its treasury account and the
// administrative account allowed to call privileged entry points.
func NewEngine(vaultAddr, admin crypto.Address) *Engine {
	return &Engine{
		vaultAddress: vaultAddr,
		admin:        admin,
		emitter:      events.NoopEmitter{},
		unlockTime:   defaultUnlockTime,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

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

// SetDefaultUnlockTime overrides the release window applied to tokens
// whitelisted afterwards.
func (e *Engine) SetDefaultUnlockTime(seconds uint64) {
	if e == nil || seconds == 0 {
		return
	}
	e.unlockTime = seconds
}

// Address returns the vault treasury account.
func (e *Engine) Address() crypto.Address {
	if e == nil {
		return crypto.Address{}
	}
	return e.vaultAddress
}

// NormalizeToken canonicalizes a token symbol.
func NormalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func (e *Engine) requireAdmin(caller crypto.Address) error {
	if !caller.Equal(e.admin) {
		return errNotAdmin
	}
	return nil
}

func (e *Engine) requireStrategy(caller crypto.Address) error {
	ok, err := e.state.IsStrategy(caller)
	if err != nil {
		return err
	}
	if !ok {
		return errNotStrategy
	}
	return nil
}

func (e *Engine) loadVault(token string) (*State, error) {
	state, err := e.state.GetVault(token)
	if err != nil {
		return nil, err
	}
	if state == nil || !state.Supported {
		return nil, errNotSupported
	}
	ensureVaultDefaults(state)
	return state, nil
}

func ensureVaultDefaults(state *State) {
	if state.MinimumMargin == nil {
		state.MinimumMargin = big.NewInt(0)
	}
	if state.Cap == nil {
		state.Cap = big.NewInt(0)
	}
	if state.NetLoans == nil {
		state.NetLoans = big.NewInt(0)
	}
	if state.InsuranceReserveBalance == nil {
		state.InsuranceReserveBalance = big.NewInt(0)
	}
	if state.CurrentProfits == nil {
		state.CurrentProfits = big.NewInt(0)
	}
	if state.BoostedAmount == nil {
		state.BoostedAmount = big.NewInt(0)
	}
	if state.BookBalance == nil {
		state.BookBalance = big.NewInt(0)
	}
	if state.TotalShares == nil {
		state.TotalShares = big.NewInt(0)
	}
}

// WhitelistToken admits a token into the vault. Registration is one-time;
// re-whitelisting an admitted token fails.
func (e *Engine) WhitelistToken(caller crypto.Address, token string, baseFeeBps, fixedFeeBps uint64, minimumMargin, cap *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	token = NormalizeToken(token)
	if token == "" {
		return errInvalidToken
	}
	existing, err := e.state.GetVault(token)
	if err != nil {
		return err
	}
	if existing != nil && existing.Supported {
		return errAlreadyWhitelisted
	}
	if minimumMargin == nil {
		minimumMargin = big.NewInt(0)
	}
	if cap == nil {
		cap = big.NewInt(0)
	}
	state := &State{
		Supported:     true,
		BaseFeeBps:    baseFeeBps,
		FixedFeeBps:   fixedFeeBps,
		MinimumMargin: new(big.Int).Set(minimumMargin),
		Cap:           new(big.Int).Set(cap),
		UnlockTime:    e.unlockTime,
		LatestRepay:   e.now,
		CreatedAt:     e.now,
	}
	ensureVaultDefaults(state)
	if err := e.state.PutVault(token, state); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultWhitelisted{
		Token:         token,
		BaseFeeBps:    baseFeeBps,
		FixedFeeBps:   fixedFeeBps,
		MinimumMargin: minimumMargin,
		Cap:           cap,
	})
	return nil
}

// SetFees adjusts the borrowing fees for a token.
func (e *Engine) SetFees(caller crypto.Address, token string, baseFeeBps, fixedFeeBps uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if baseFeeBps > 10_000 || fixedFeeBps > 10_000 {
		return errInvalidRatio
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return err
	}
	state.BaseFeeBps = baseFeeBps
	state.FixedFeeBps = fixedFeeBps
	return e.state.PutVault(token, state)
}

// SetInsuranceReserveRatio adjusts the share of fees routed to the insurance
// reserve.
func (e *Engine) SetInsuranceReserveRatio(caller crypto.Address, token string, ratioBps uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if ratioBps > 10_000 {
		return errInvalidRatio
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return err
	}
	state.InsuranceReserveRatioBps = ratioBps
	return e.state.PutVault(token, state)
}

// SetUnlockTime adjusts the profit release window for a token.
func (e *Engine) SetUnlockTime(caller crypto.Address, token string, seconds uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if seconds == 0 {
		return errInvalidAmount
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return err
	}
	state.UnlockTime = seconds
	return e.state.PutVault(token, state)
}

// SetTokenLock toggles the pause flag for a token, halting staking and
// borrowing while leaving repayments open.
func (e *Engine) SetTokenLock(caller crypto.Address, token string, locked bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return err
	}
	state.Locked = locked
	return e.state.PutVault(token, state)
}

// AddStrategy grants a strategy account borrow and repay rights.
func (e *Engine) AddStrategy(caller, strategy crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.state.PutStrategy(strategy, true); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultStrategyAdded{Strategy: strategy})
	return nil
}

// RemoveStrategy revokes a strategy's borrow and repay rights.
func (e *Engine) RemoveStrategy(caller, strategy crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.state.PutStrategy(strategy, false); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultStrategyRemoved{Strategy: strategy})
	return nil
}

// Stake deposits liquidity and mints shares at the pre-deposit ratio. The
// minted share amount is returned.
func (e *Engine) Stake(staker crypto.Address, token string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return nil, err
	}
	if state.Locked {
		return nil, errTokenLocked
	}
	balance, err := e.state.BalanceOf(staker, token)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, errInsufficientBalance
	}

	totalAssets, err := e.totalAssets(token, state)
	if err != nil {
		return nil, err
	}
	if state.Cap.Sign() > 0 {
		projected := new(big.Int).Add(totalAssets, amount)
		if projected.Cmp(state.Cap) > 0 {
			return nil, errDepositCapExceeded
		}
	}
	minted := sharesForDeposit(amount, totalAssets, state.TotalShares)
	if minted.Sign() == 0 {
		return nil, errDustDeposit
	}
	shares, err := e.state.GetShares(token, staker)
	if err != nil {
		return nil, err
	}

	if err := e.state.Transfer(staker, e.vaultAddress, token, amount); err != nil {
		return nil, err
	}
	state.BookBalance = new(big.Int).Add(state.BookBalance, amount)
	state.TotalShares = new(big.Int).Add(state.TotalShares, minted)
	if err := e.state.PutShares(token, staker, new(big.Int).Add(shares, minted)); err != nil {
		return nil, err
	}
	if err := e.state.PutVault(token, state); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VaultDeposited{Token: token, Staker: staker, Amount: amount, Shares: minted})
	return minted, nil
}

// Unstake burns shares and returns the requested asset amount. Requests above
// the claimable balance fail rather than clamp; requesting exactly the
// claimable balance burns every share the staker holds.
func (e *Engine) Unstake(staker crypto.Address, token string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return nil, err
	}
	if state.Locked {
		return nil, errTokenLocked
	}
	shares, err := e.state.GetShares(token, staker)
	if err != nil {
		return nil, err
	}
	totalAssets, err := e.totalAssets(token, state)
	if err != nil {
		return nil, err
	}
	claimable := claimableAssets(shares, totalAssets, state.TotalShares)
	if amount.Cmp(claimable) > 0 {
		return nil, errUnstakeExceedsClaim
	}
	free, err := e.freeLiquidity(token, state)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(free) > 0 {
		return nil, errInsufficientLiquidity
	}

	var burned *big.Int
	if amount.Cmp(claimable) == 0 {
		burned = new(big.Int).Set(shares)
	} else {
		burned = sharesForWithdrawal(amount, totalAssets, state.TotalShares)
	}
	if burned.Sign() == 0 {
		return nil, errInvalidAmount
	}

	if err := e.state.Transfer(e.vaultAddress, staker, token, amount); err != nil {
		return nil, err
	}
	state.BookBalance = new(big.Int).Sub(state.BookBalance, amount)
	state.TotalShares = new(big.Int).Sub(state.TotalShares, burned)
	if err := e.state.PutShares(token, staker, new(big.Int).Sub(shares, burned)); err != nil {
		return nil, err
	}
	if err := e.state.PutVault(token, state); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VaultWithdrawn{Token: token, Staker: staker, Amount: amount, Shares: burned})
	return burned, nil
}

// Borrow lends pool liquidity to a registered strategy, raising the
// loan-weighted optimal ratio with the incoming risk factor.
func (e *Engine) Borrow(strategy crypto.Address, token string, amount *big.Int, riskFactorBps uint64, recipient crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireStrategy(strategy); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return err
	}
	if state.Locked {
		return errTokenLocked
	}
	if amount.Sign() == 0 {
		return nil
	}
	free, err := e.freeLiquidity(token, state)
	if err != nil {
		return err
	}
	if amount.Cmp(free) > 0 {
		return errInsufficientLiquidity
	}

	state.OptimalRatioBps = weightedOptimalRatio(state.OptimalRatioBps, state.NetLoans, riskFactorBps, amount)
	if err := e.state.Transfer(e.vaultAddress, recipient, token, amount); err != nil {
		return err
	}
	state.BookBalance = new(big.Int).Sub(state.BookBalance, amount)
	state.NetLoans = new(big.Int).Add(state.NetLoans, amount)
	if err := e.state.PutVault(token, state); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultLoanTaken{Token: token, Strategy: strategy, Amount: amount, RiskFactorBps: riskFactorBps})
	return nil
}

// Repay settles a loan. amountPlusFees is the value actually transferred back
// by the strategy; principalRepaid is the debt extinguished. A positive delta
// feeds the insurance reserve and the profit unlock schedule; a negative
// delta is a realized loss drained from the reserve, then from locked
// profits, and finally socialized across stakers.
func (e *Engine) Repay(strategy crypto.Address, token string, amountPlusFees, principalRepaid *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireStrategy(strategy); err != nil {
		return err
	}
	if amountPlusFees == nil || amountPlusFees.Sign() < 0 {
		return errInvalidAmount
	}
	if principalRepaid == nil || principalRepaid.Sign() < 0 {
		return errInvalidAmount
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return err
	}
	if amountPlusFees.Sign() > 0 {
		balance, err := e.state.BalanceOf(strategy, token)
		if err != nil {
			return err
		}
		if balance.Cmp(amountPlusFees) < 0 {
			return errInsufficientBalance
		}
		if err := e.state.Transfer(strategy, e.vaultAddress, token, amountPlusFees); err != nil {
			return err
		}
		state.BookBalance = new(big.Int).Add(state.BookBalance, amountPlusFees)
	}

	if state.NetLoans.Cmp(principalRepaid) > 0 {
		state.NetLoans = new(big.Int).Sub(state.NetLoans, principalRepaid)
	} else {
		state.NetLoans = big.NewInt(0)
	}
	if state.NetLoans.Sign() == 0 {
		state.OptimalRatioBps = 0
	}

	delta := new(big.Int).Sub(amountPlusFees, principalRepaid)
	locked := e.lockedProfits(state)
	if delta.Sign() >= 0 {
		insuranceShare := bpsShare(delta, state.InsuranceReserveRatioBps)
		state.InsuranceReserveBalance = new(big.Int).Add(state.InsuranceReserveBalance, insuranceShare)
		profit := new(big.Int).Sub(delta, insuranceShare)
		state.CurrentProfits = new(big.Int).Add(locked, profit)
	} else {
		loss := new(big.Int).Neg(delta)
		if state.InsuranceReserveBalance.Cmp(loss) >= 0 {
			state.InsuranceReserveBalance = new(big.Int).Sub(state.InsuranceReserveBalance, loss)
			state.CurrentProfits = locked
		} else {
			loss = new(big.Int).Sub(loss, state.InsuranceReserveBalance)
			state.InsuranceReserveBalance = big.NewInt(0)
			if locked.Cmp(loss) >= 0 {
				state.CurrentProfits = new(big.Int).Sub(locked, loss)
			} else {
				// The remainder is socialized: totalAssets simply shrinks.
				state.CurrentProfits = big.NewInt(0)
			}
		}
	}
	state.LatestRepay = e.now

	if err := e.state.PutVault(token, state); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultLoanRepaid{
		Token:     token,
		Strategy:  strategy,
		Amount:    amountPlusFees,
		Principal: principalRepaid,
		FeeDelta:  delta,
	})
	return nil
}

// Boost injects raw liquidity that earns no shares. Admin only.
func (e *Engine) Boost(caller crypto.Address, token string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return err
	}
	if state.Locked {
		return errTokenLocked
	}
	balance, err := e.state.BalanceOf(caller, token)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	boosted, err := e.state.GetBoost(token, caller)
	if err != nil {
		return err
	}
	if err := e.state.Transfer(caller, e.vaultAddress, token, amount); err != nil {
		return err
	}
	state.BookBalance = new(big.Int).Add(state.BookBalance, amount)
	state.BoostedAmount = new(big.Int).Add(state.BoostedAmount, amount)
	if err := e.state.PutBoost(token, caller, new(big.Int).Add(boosted, amount)); err != nil {
		return err
	}
	if err := e.state.PutVault(token, state); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultBoosted{Token: token, Booster: caller, Amount: amount})
	return nil
}

// Unboost withdraws boosted liquidity, clamped to the caller's boosted
// balance. The clamp is deliberate: unboost never pulls staker assets. The
// amount actually returned is reported to the caller.
func (e *Engine) Unboost(caller crypto.Address, token string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return nil, err
	}
	boosted, err := e.state.GetBoost(token, caller)
	if err != nil {
		return nil, err
	}
	take := new(big.Int).Set(amount)
	if take.Cmp(boosted) > 0 {
		take = new(big.Int).Set(boosted)
	}
	if take.Sign() == 0 {
		return big.NewInt(0), nil
	}
	balance, err := e.state.BalanceOf(e.vaultAddress, token)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(take) < 0 {
		return nil, errInsufficientLiquidity
	}
	if err := e.state.Transfer(e.vaultAddress, caller, token, take); err != nil {
		return nil, err
	}
	state.BookBalance = new(big.Int).Sub(state.BookBalance, take)
	state.BoostedAmount = new(big.Int).Sub(state.BoostedAmount, take)
	if err := e.state.PutBoost(token, caller, new(big.Int).Sub(boosted, take)); err != nil {
		return nil, err
	}
	if err := e.state.PutVault(token, state); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VaultUnboosted{Token: token, Booster: caller, Amount: take})
	return take, nil
}

// Rebalance sweeps any surplus of the actual vault balance over the booked
// balance into the profit unlock schedule. Callable by anyone; tokens sent
// straight to the vault address reach stakers gradually instead of spiking
// the share price.
func (e *Engine) Rebalance(caller crypto.Address, token string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return nil, err
	}
	balance, err := e.state.BalanceOf(e.vaultAddress, token)
	if err != nil {
		return nil, err
	}
	surplus := new(big.Int).Sub(balance, state.BookBalance)
	if surplus.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	locked := e.lockedProfits(state)
	state.CurrentProfits = new(big.Int).Add(locked, surplus)
	state.LatestRepay = e.now
	state.BookBalance = new(big.Int).Set(balance)
	if err := e.state.PutVault(token, state); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VaultRebalanced{Token: token, Caller: caller, Surplus: surplus})
	return surplus, nil
}

func (e *Engine) lockedProfits(state *State) *big.Int {
	unlocked := unlockedProfits(state.CurrentProfits, state.LatestRepay, state.UnlockTime, e.now)
	return new(big.Int).Sub(state.CurrentProfits, unlocked)
}

func (e *Engine) totalAssets(token string, state *State) (*big.Int, error) {
	balance, err := e.state.BalanceOf(e.vaultAddress, token)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Add(balance, state.NetLoans)
	total.Sub(total, e.lockedProfits(state))
	total.Sub(total, state.InsuranceReserveBalance)
	total.Sub(total, state.BoostedAmount)
	if total.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return total, nil
}

func (e *Engine) freeLiquidity(token string, state *State) (*big.Int, error) {
	balance, err := e.state.BalanceOf(e.vaultAddress, token)
	if err != nil {
		return nil, err
	}
	free := new(big.Int).Sub(balance, e.lockedProfits(state))
	free.Sub(free, state.InsuranceReserveBalance)
	free.Sub(free, state.BoostedAmount)
	if free.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return free, nil
}

// TotalAssets reports the staker-owned assets for a token: vault balance plus
// outstanding loans, minus locked profits, the insurance reserve and boosted
// liquidity.
func (e *Engine) TotalAssets(token string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	state, err := e.loadVault(NormalizeToken(token))
	if err != nil {
		return nil, err
	}
	return e.totalAssets(NormalizeToken(token), state)
}

// LockedProfits reports the still-locked portion of realized profits.
func (e *Engine) LockedProfits(token string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	state, err := e.loadVault(NormalizeToken(token))
	if err != nil {
		return nil, err
	}
	return e.lockedProfits(state), nil
}

// FreeLiquidity reports the balance available to borrows and unstakes.
func (e *Engine) FreeLiquidity(token string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return nil, err
	}
	return e.freeLiquidity(token, state)
}

// ClaimableBalance converts a staker's shares into the assets redeemable at
// the current ratio.
func (e *Engine) ClaimableBalance(token string, staker crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	token = NormalizeToken(token)
	state, err := e.loadVault(token)
	if err != nil {
		return nil, err
	}
	shares, err := e.state.GetShares(token, staker)
	if err != nil {
		return nil, err
	}
	totalAssets, err := e.totalAssets(token, state)
	if err != nil {
		return nil, err
	}
	return claimableAssets(shares, totalAssets, state.TotalShares), nil
}

// SharesOf returns a staker's share balance.
func (e *Engine) SharesOf(token string, staker crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.GetShares(NormalizeToken(token), staker)
}

// State returns a copy of the vault record for a token.
func (e *Engine) State(token string) (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	state, err := e.loadVault(NormalizeToken(token))
	if err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

// BaseFeeBps exposes the time-proportional fee rate to strategies.
func (e *Engine) BaseFeeBps(token string) (uint64, error) {
	state, err := e.State(token)
	if err != nil {
		return 0, err
	}
	return state.BaseFeeBps, nil
}

// FixedFeeBps exposes the flat open fee rate to strategies.
func (e *Engine) FixedFeeBps(token string) (uint64, error) {
	state, err := e.State(token)
	if err != nil {
		return 0, err
	}
	return state.FixedFeeBps, nil
}

// MinimumMargin exposes the smallest acceptable collateral to strategies.
func (e *Engine) MinimumMargin(token string) (*big.Int, error) {
	state, err := e.State(token)
	if err != nil {
		return nil, err
	}
	return state.MinimumMargin, nil
}
