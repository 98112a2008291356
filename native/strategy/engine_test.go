package strategy

import (
	"errors"
	"math/big"
	"testing"

	"leverlend/crypto"
	"leverlend/exchange"
	"leverlend/native/vault"
)

// mockState backs both the strategy engine and the vault engine it borrows
// from, so loans, margins and swap settlements move on one ledger.
type mockState struct {
	vaults      map[string]*vault.State
	shares      map[string]*big.Int
	boosts      map[string]*big.Int
	strategies  map[string]bool
	positions   map[uint64]*Position
	nextID      uint64
	riskFactors map[string]uint64
	balances    map[string]map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		vaults:      make(map[string]*vault.State),
		shares:      make(map[string]*big.Int),
		boosts:      make(map[string]*big.Int),
		strategies:  make(map[string]bool),
		positions:   make(map[uint64]*Position),
		riskFactors: make(map[string]uint64),
		balances:    make(map[string]map[string]*big.Int),
	}
}

func (m *mockState) GetVault(token string) (*vault.State, error) {
	state, ok := m.vaults[token]
	if !ok {
		return nil, nil
	}
	return state.Clone(), nil
}

func (m *mockState) PutVault(token string, state *vault.State) error {
	m.vaults[token] = state.Clone()
	return nil
}

func balanceKey(token string, addr crypto.Address) string {
	return token + "/" + addr.String()
}

func (m *mockState) GetShares(token string, addr crypto.Address) (*big.Int, error) {
	if amount, ok := m.shares[balanceKey(token, addr)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) PutShares(token string, addr crypto.Address, amount *big.Int) error {
	m.shares[balanceKey(token, addr)] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) GetBoost(token string, addr crypto.Address) (*big.Int, error) {
	if amount, ok := m.boosts[balanceKey(token, addr)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) PutBoost(token string, addr crypto.Address, amount *big.Int) error {
	m.boosts[balanceKey(token, addr)] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) IsStrategy(addr crypto.Address) (bool, error) {
	return m.strategies[addr.String()], nil
}

func (m *mockState) PutStrategy(addr crypto.Address, enabled bool) error {
	m.strategies[addr.String()] = enabled
	return nil
}

func (m *mockState) GetPosition(strategy crypto.Address, id uint64) (*Position, error) {
	position, ok := m.positions[id]
	if !ok {
		return nil, nil
	}
	return position.Clone(), nil
}

func (m *mockState) PutPosition(strategy crypto.Address, position *Position) error {
	m.positions[position.ID] = position.Clone()
	return nil
}

func (m *mockState) NextPositionID(strategy crypto.Address) (uint64, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *mockState) GetRiskFactor(strategy crypto.Address, token string) (uint64, error) {
	return m.riskFactors[token], nil
}

func (m *mockState) PutRiskFactor(strategy crypto.Address, token string, bps uint64) error {
	m.riskFactors[token] = bps
	return nil
}

func (m *mockState) BalanceOf(addr crypto.Address, token string) (*big.Int, error) {
	if tokens, ok := m.balances[addr.String()]; ok {
		if amount, ok := tokens[token]; ok {
			return new(big.Int).Set(amount), nil
		}
	}
	return big.NewInt(0), nil
}

func (m *mockState) Transfer(from, to crypto.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("mock: negative amount")
	}
	have, _ := m.BalanceOf(from, token)
	if have.Cmp(amount) < 0 {
		return errors.New("mock: insufficient balance")
	}
	m.credit(from, token, new(big.Int).Neg(amount))
	m.credit(to, token, amount)
	return nil
}

func (m *mockState) credit(addr crypto.Address, token string, amount *big.Int) {
	tokens, ok := m.balances[addr.String()]
	if !ok {
		tokens = make(map[string]*big.Int)
		m.balances[addr.String()] = tokens
	}
	current, ok := tokens[token]
	if !ok {
		current = big.NewInt(0)
	}
	tokens[token] = new(big.Int).Add(current, amount)
}

func addr(prefix crypto.AddressPrefix, fill byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	for i := range raw {
		raw[i] = fill
	}
	return crypto.NewAddress(prefix, raw)
}

type strategyHarness struct {
	engine     *Engine
	vault      *vault.Engine
	dealer     *exchange.Dealer
	state      *mockState
	admin      crypto.Address
	staker     crypto.Address
	trader     crypto.Address
	liquidator crypto.Address
}

func newStrategyHarness(t *testing.T) *strategyHarness {
	t.Helper()
	state := newMockState()
	admin := addr(crypto.AccountPrefix, 0x01)
	staker := addr(crypto.AccountPrefix, 0x02)
	trader := addr(crypto.AccountPrefix, 0x03)
	liquidatorAddr := addr(crypto.ModulePrefix, 0x04)
	vaultAddr := addr(crypto.ModulePrefix, 0x05)
	strategyAddr := addr(crypto.ModulePrefix, 0x06)
	dealerAddr := addr(crypto.ModulePrefix, 0x07)

	vaultEngine := vault.NewEngine(vaultAddr, admin)
	vaultEngine.SetState(state)
	vaultEngine.SetTime(1_000)

	dealer := exchange.NewDealer(dealerAddr)
	dealer.SetLedger(state)
	dealer.SetPrice("USDC", big.NewInt(1))
	dealer.SetPrice("WETH", big.NewInt(100))

	engine := NewEngine(strategyAddr, admin)
	engine.SetState(state)
	engine.SetLender(vaultEngine)
	engine.SetAdapter(dealer)
	engine.SetLiquidator(liquidatorAddr)
	engine.SetTime(1_000)

	if err := vaultEngine.WhitelistToken(admin, "USDC", 10, 10, big.NewInt(100), big.NewInt(0)); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if err := vaultEngine.AddStrategy(admin, strategyAddr); err != nil {
		t.Fatalf("add strategy: %v", err)
	}
	if err := engine.SetRiskFactor(admin, "USDC", 3_000); err != nil {
		t.Fatalf("risk factor USDC: %v", err)
	}
	if err := engine.SetRiskFactor(admin, "WETH", 4_000); err != nil {
		t.Fatalf("risk factor WETH: %v", err)
	}

	state.credit(staker, "USDC", big.NewInt(50_000))
	if _, err := vaultEngine.Stake(staker, "USDC", big.NewInt(40_000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	state.credit(trader, "USDC", big.NewInt(2_000))
	state.credit(trader, "WETH", big.NewInt(20))
	state.credit(dealerAddr, "WETH", big.NewInt(1_000))
	state.credit(dealerAddr, "USDC", big.NewInt(100_000))

	return &strategyHarness{
		engine:     engine,
		vault:      vaultEngine,
		dealer:     dealer,
		state:      state,
		admin:      admin,
		staker:     staker,
		trader:     trader,
		liquidator: liquidatorAddr,
	}
}

func longOrder() Order {
	return Order{
		SpentToken:             "USDC",
		ObtainedToken:          "WETH",
		Collateral:             big.NewInt(1_000),
		CollateralIsSpentToken: true,
		MinObtained:            big.NewInt(95),
		MaxSpent:               big.NewInt(10_000),
	}
}

func (h *strategyHarness) openLong(t *testing.T) uint64 {
	t.Helper()
	id, err := h.engine.OpenPosition(h.trader, longOrder())
	if err != nil {
		t.Fatalf("open long: %v", err)
	}
	return id
}

func TestOpenPositionValidations(t *testing.T) {
	h := newStrategyHarness(t)

	order := longOrder()
	order.ObtainedToken = "USDC"
	if _, err := h.engine.OpenPosition(h.trader, order); !errors.Is(err, errSameToken) {
		t.Fatalf("same token error = %v, want %v", err, errSameToken)
	}

	order = longOrder()
	order.Collateral = big.NewInt(0)
	if _, err := h.engine.OpenPosition(h.trader, order); !errors.Is(err, errZeroCollateral) {
		t.Fatalf("zero collateral error = %v, want %v", err, errZeroCollateral)
	}

	order = longOrder()
	order.Deadline = 999
	if _, err := h.engine.OpenPosition(h.trader, order); !errors.Is(err, errOrderExpired) {
		t.Fatalf("expired order error = %v, want %v", err, errOrderExpired)
	}

	order = longOrder()
	order.Collateral = big.NewInt(99)
	order.MaxSpent = big.NewInt(1_000)
	if _, err := h.engine.OpenPosition(h.trader, order); !errors.Is(err, errBelowMinMargin) {
		t.Fatalf("below margin error = %v, want %v", err, errBelowMinMargin)
	}

	order = longOrder()
	order.MaxSpent = big.NewInt(1_000)
	order.Collateral = big.NewInt(1_000)
	if _, err := h.engine.OpenPosition(h.trader, order); !errors.Is(err, errInvalidLeverage) {
		t.Fatalf("no leverage error = %v, want %v", err, errInvalidLeverage)
	}

	order = longOrder()
	order.Collateral = big.NewInt(3_000)
	if _, err := h.engine.OpenPosition(h.trader, order); !errors.Is(err, errInsufficientFunds) {
		t.Fatalf("insufficient funds error = %v, want %v", err, errInsufficientFunds)
	}

	order = longOrder()
	order.MinObtained = big.NewInt(101)
	if _, err := h.engine.OpenPosition(h.trader, order); !errors.Is(err, exchange.ErrSlippage) {
		t.Fatalf("slippage error = %v, want %v", err, exchange.ErrSlippage)
	}
}

func TestOpenLongPosition(t *testing.T) {
	h := newStrategyHarness(t)
	id := h.openLong(t)

	position, err := h.engine.Position(id)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.Principal.Cmp(big.NewInt(9_000)) != 0 {
		t.Fatalf("principal = %s, want 9000", position.Principal)
	}
	if position.Allowance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("allowance = %s, want 100", position.Allowance)
	}
	if position.Fees.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("fees = %s, want 10", position.Fees)
	}
	if !position.Owner.Equal(h.trader) {
		t.Fatalf("owner mismatch")
	}
	if !position.Open() {
		t.Fatalf("expected open position")
	}

	balance, _ := h.state.BalanceOf(h.trader, "USDC")
	if balance.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("trader balance = %s, want 1000", balance)
	}
	vaultState, err := h.vault.State("USDC")
	if err != nil {
		t.Fatalf("vault state: %v", err)
	}
	if vaultState.NetLoans.Cmp(big.NewInt(9_000)) != 0 {
		t.Fatalf("net loans = %s, want 9000", vaultState.NetLoans)
	}
	if vaultState.OptimalRatioBps != 3_500 {
		t.Fatalf("optimal ratio = %d, want pair average 3500", vaultState.OptimalRatioBps)
	}
}

func TestDueFeesAccrue(t *testing.T) {
	h := newStrategyHarness(t)
	id := h.openLong(t)
	position, err := h.engine.Position(id)
	if err != nil {
		t.Fatalf("position: %v", err)
	}

	due, err := h.engine.DueFees(position)
	if err != nil {
		t.Fatalf("due fees: %v", err)
	}
	if due.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("due fees at open = %s, want fixed 10", due)
	}

	// One full day at 10 bps on a 9000 principal adds 9.
	h.engine.SetTime(1_000 + secondsPerDay)
	due, err = h.engine.DueFees(position)
	if err != nil {
		t.Fatalf("due fees: %v", err)
	}
	if due.Cmp(big.NewInt(19)) != 0 {
		t.Fatalf("due fees after a day = %s, want 19", due)
	}
}

func TestCloseLongAtProfit(t *testing.T) {
	h := newStrategyHarness(t)
	id := h.openLong(t)

	h.engine.SetTime(1_000 + secondsPerDay)
	h.dealer.SetPrice("WETH", big.NewInt(110))

	payout, err := h.engine.ClosePosition(h.trader, id, nil)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// 100 WETH at 110 returns 11000; the debt is 9000 + 19 in fees.
	if payout.Cmp(big.NewInt(1_981)) != 0 {
		t.Fatalf("payout = %s, want 1981", payout)
	}
	balance, _ := h.state.BalanceOf(h.trader, "USDC")
	if balance.Cmp(big.NewInt(2_981)) != 0 {
		t.Fatalf("trader balance = %s, want 2981", balance)
	}

	position, err := h.engine.Position(id)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.Open() {
		t.Fatalf("position should be closed")
	}
	vaultState, err := h.vault.State("USDC")
	if err != nil {
		t.Fatalf("vault state: %v", err)
	}
	if vaultState.NetLoans.Sign() != 0 {
		t.Fatalf("net loans = %s, want 0", vaultState.NetLoans)
	}

	if _, err := h.engine.ClosePosition(h.trader, id, nil); !errors.Is(err, errPositionNotOpen) {
		t.Fatalf("double close error = %v, want %v", err, errPositionNotOpen)
	}
}

func TestCloseLongAtLossVaultAbsorbsShortfall(t *testing.T) {
	h := newStrategyHarness(t)
	id := h.openLong(t)

	totalBefore, err := h.vault.TotalAssets("USDC")
	if err != nil {
		t.Fatalf("total assets: %v", err)
	}

	h.dealer.SetPrice("WETH", big.NewInt(80))
	payout, err := h.engine.ClosePosition(h.trader, id, nil)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if payout.Sign() != 0 {
		t.Fatalf("payout = %s, want 0", payout)
	}

	// 100 WETH at 80 recovers 8000 against a 9000 principal; the missing
	// 1000 is socialized across the pool.
	totalAfter, err := h.vault.TotalAssets("USDC")
	if err != nil {
		t.Fatalf("total assets: %v", err)
	}
	shortfall := new(big.Int).Sub(totalBefore, totalAfter)
	if shortfall.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("socialized shortfall = %s, want 1000", shortfall)
	}
}

func TestShortPositionLifecycle(t *testing.T) {
	h := newStrategyHarness(t)

	order := Order{
		SpentToken:             "USDC",
		ObtainedToken:          "WETH",
		Collateral:             big.NewInt(10),
		CollateralIsSpentToken: false,
		MinObtained:            big.NewInt(95),
		MaxSpent:               big.NewInt(10_000),
	}
	id, err := h.engine.OpenPosition(h.trader, order)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	position, err := h.engine.Position(id)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	// The full 10000 is borrowed; held-token margin joins the allowance.
	if position.Principal.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("principal = %s, want 10000", position.Principal)
	}
	if position.Allowance.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("allowance = %s, want 110", position.Allowance)
	}

	payout, err := h.engine.ClosePosition(h.trader, id, nil)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// The debt is 10010; covering it costs 101 WETH, returning the other 9.
	if payout.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("payout = %s, want 9", payout)
	}
	balance, _ := h.state.BalanceOf(h.trader, "WETH")
	if balance.Cmp(big.NewInt(19)) != 0 {
		t.Fatalf("trader WETH = %s, want 19", balance)
	}
}

func TestEditPositionTopsUpCollateral(t *testing.T) {
	h := newStrategyHarness(t)
	id := h.openLong(t)

	if err := h.engine.EditPosition(h.trader, id, big.NewInt(500)); err != nil {
		t.Fatalf("edit: %v", err)
	}
	position, err := h.engine.Position(id)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.Collateral.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("collateral = %s, want 1500", position.Collateral)
	}
	// Spent-token margin does not change the held allowance.
	if position.Allowance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("allowance = %s, want 100", position.Allowance)
	}

	outsider := addr(crypto.AccountPrefix, 0x30)
	h.state.credit(outsider, "USDC", big.NewInt(1_000))
	if err := h.engine.EditPosition(outsider, id, big.NewInt(100)); !errors.Is(err, errNotOwner) {
		t.Fatalf("outsider edit error = %v, want %v", err, errNotOwner)
	}
}

func TestForceCloseRestrictedToLiquidator(t *testing.T) {
	h := newStrategyHarness(t)
	id := h.openLong(t)

	if _, err := h.engine.ForceClose(h.trader, id); !errors.Is(err, errNotLiquidator) {
		t.Fatalf("owner force close error = %v, want %v", err, errNotLiquidator)
	}

	recovered, err := h.engine.ForceClose(h.liquidator, id)
	if err != nil {
		t.Fatalf("force close: %v", err)
	}
	if recovered.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("recovered = %s, want 10000", recovered)
	}
	position, err := h.engine.Position(id)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.Open() {
		t.Fatalf("position should be closed")
	}
	// Everything recovered goes to the vault, nothing to the old owner.
	balance, _ := h.state.BalanceOf(h.trader, "USDC")
	if balance.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("trader balance = %s, want 1000", balance)
	}
}

func TestTransferPositionReassignsOwnership(t *testing.T) {
	h := newStrategyHarness(t)
	id := h.openLong(t)

	rescuer := addr(crypto.AccountPrefix, 0x31)
	h.state.credit(rescuer, "USDC", big.NewInt(5_000))

	prev, err := h.engine.TransferPosition(h.liquidator, id, rescuer, big.NewInt(800))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !prev.Equal(h.trader) {
		t.Fatalf("previous owner mismatch")
	}
	position, err := h.engine.Position(id)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if !position.Owner.Equal(rescuer) {
		t.Fatalf("new owner mismatch")
	}
	if position.Collateral.Cmp(big.NewInt(1_800)) != 0 {
		t.Fatalf("collateral = %s, want 1800", position.Collateral)
	}
	if _, err := h.engine.TransferPosition(h.liquidator, id, rescuer, big.NewInt(0)); !errors.Is(err, errInvalidAmount) {
		t.Fatalf("zero margin transfer error = %v, want %v", err, errInvalidAmount)
	}
}

func TestBuyOutSettlesDebtAndHandsOverAssets(t *testing.T) {
	h := newStrategyHarness(t)
	id := h.openLong(t)

	buyer := addr(crypto.AccountPrefix, 0x32)
	h.state.credit(buyer, "USDC", big.NewInt(20_000))

	// Price of the 100 WETH allowance plus the 10 in fees.
	price, assets, err := h.engine.BuyOut(h.liquidator, id, buyer, big.NewInt(10_010))
	if err != nil {
		t.Fatalf("buy out: %v", err)
	}
	if price.Cmp(big.NewInt(10_010)) != 0 {
		t.Fatalf("price = %s, want 10010", price)
	}
	if assets.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("assets = %s, want 100", assets)
	}
	wethBalance, _ := h.state.BalanceOf(buyer, "WETH")
	if wethBalance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("buyer WETH = %s, want 100", wethBalance)
	}

	if _, _, err := h.engine.BuyOut(h.liquidator, id, buyer, big.NewInt(10_010)); !errors.Is(err, errPositionNotOpen) {
		t.Fatalf("double buy out error = %v, want %v", err, errPositionNotOpen)
	}
}

func TestBuyOutRespectsMaxPrice(t *testing.T) {
	h := newStrategyHarness(t)
	id := h.openLong(t)

	buyer := addr(crypto.AccountPrefix, 0x33)
	h.state.credit(buyer, "USDC", big.NewInt(20_000))

	if _, _, err := h.engine.BuyOut(h.liquidator, id, buyer, big.NewInt(10_009)); !errors.Is(err, exchange.ErrSlippage) {
		t.Fatalf("bounded buy out error = %v, want %v", err, exchange.ErrSlippage)
	}
}
