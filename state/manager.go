package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"leverlend/core/types"
	"leverlend/crypto"
	"leverlend/native/strategy"
	"leverlend/native/vault"
	"leverlend/storage"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("state: amount must not be negative")
)

var (
	accountPrefix     = []byte("account/")
	vaultStatePrefix  = []byte("vault/state/")
	vaultSharesPrefix = []byte("vault/shares/")
	vaultBoostPrefix  = []byte("vault/boost/")
	vaultStrategyKey  = []byte("vault/strategy/")
	positionPrefix    = []byte("strategy/pos/")
	positionNextIDKey = []byte("strategy/nextid/")
	riskFactorPrefix  = []byte("strategy/risk/")
)

// Manager is the authoritative protocol store. It persists accounts, vault
// records, share and boost balances, the strategy registry, positions and
// risk factors in a key-value backend, and doubles as the token ledger the
// engines move balances through.
type Manager struct {
	db storage.Database
}

// NewManager wraps a key-value backend into a state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) put(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

func accountKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), accountPrefix...), addr.Bytes()...)
}

func tokenKey(prefix []byte, token string) []byte {
	return append(append([]byte(nil), prefix...), token...)
}

func tokenAddrKey(prefix []byte, token string, addr crypto.Address) []byte {
	key := append(append([]byte(nil), prefix...), token...)
	key = append(key, '/')
	return append(key, addr.Bytes()...)
}

func addrKey(prefix []byte, addr crypto.Address) []byte {
	return append(append([]byte(nil), prefix...), addr.Bytes()...)
}

func positionKey(strategyAddr crypto.Address, id uint64) []byte {
	key := append(append([]byte(nil), positionPrefix...), strategyAddr.Bytes()...)
	key = append(key, '/')
	var encoded [8]byte
	binary.BigEndian.PutUint64(encoded[:], id)
	return append(key, encoded[:]...)
}

// --- Token ledger ---

type storedBalance struct {
	Token  string
	Amount *big.Int
}

type storedAccount struct {
	Nonce    uint64
	Balances []storedBalance
}

func (m *Manager) loadBalances(addr crypto.Address) (uint64, map[string]*big.Int, error) {
	var stored storedAccount
	ok, err := m.get(accountKey(addr), &stored)
	if err != nil {
		return 0, nil, err
	}
	balances := make(map[string]*big.Int)
	if !ok {
		return 0, balances, nil
	}
	for _, entry := range stored.Balances {
		amount := entry.Amount
		if amount == nil {
			amount = big.NewInt(0)
		}
		balances[entry.Token] = new(big.Int).Set(amount)
	}
	return stored.Nonce, balances, nil
}

func (m *Manager) storeBalances(addr crypto.Address, nonce uint64, balances map[string]*big.Int) error {
	stored := storedAccount{Nonce: nonce}
	tokens := make([]string, 0, len(balances))
	for token, amount := range balances {
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		stored.Balances = append(stored.Balances, storedBalance{Token: token, Amount: balances[token]})
	}
	return m.put(accountKey(addr), stored)
}

// Account returns the full account view for an address. Unknown addresses
// yield an empty account rather than an error.
func (m *Manager) Account(addr crypto.Address) (*types.Account, error) {
	nonce, balances, err := m.loadBalances(addr)
	if err != nil {
		return nil, err
	}
	account := types.NewAccount()
	account.Nonce = nonce
	for token, amount := range balances {
		account.SetBalance(token, amount)
	}
	return account, nil
}

// BalanceOf returns an account's balance for a token, zero when absent.
func (m *Manager) BalanceOf(addr crypto.Address, token string) (*big.Int, error) {
	_, balances, err := m.loadBalances(addr)
	if err != nil {
		return nil, err
	}
	if amount, ok := balances[token]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

// Transfer moves amount of a token between accounts. It is the only balance
// mutation primitive the engines use.
func (m *Manager) Transfer(from, to crypto.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from.Equal(to) {
		return nil
	}
	fromNonce, fromBalances, err := m.loadBalances(from)
	if err != nil {
		return err
	}
	have := fromBalances[token]
	if have == nil || have.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toNonce, toBalances, err := m.loadBalances(to)
	if err != nil {
		return err
	}
	fromBalances[token] = new(big.Int).Sub(have, amount)
	existing := toBalances[token]
	if existing == nil {
		existing = big.NewInt(0)
	}
	toBalances[token] = new(big.Int).Add(existing, amount)
	if err := m.storeBalances(from, fromNonce, fromBalances); err != nil {
		return err
	}
	return m.storeBalances(to, toNonce, toBalances)
}

// Credit mints tokens into an account. It backs genesis allocations and the
// local faucet; the protocol engines never create balance out of thin air.
func (m *Manager) Credit(addr crypto.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	nonce, balances, err := m.loadBalances(addr)
	if err != nil {
		return err
	}
	existing := balances[token]
	if existing == nil {
		existing = big.NewInt(0)
	}
	balances[token] = new(big.Int).Add(existing, amount)
	return m.storeBalances(addr, nonce, balances)
}

// --- Vault records ---

type storedVaultState struct {
	Supported                bool
	Locked                   bool
	BaseFeeBps               uint64
	FixedFeeBps              uint64
	InsuranceReserveRatioBps uint64
	MinimumMargin            *big.Int
	Cap                      *big.Int
	NetLoans                 *big.Int
	InsuranceReserveBalance  *big.Int
	CurrentProfits           *big.Int
	BoostedAmount            *big.Int
	BookBalance              *big.Int
	TotalShares              *big.Int
	OptimalRatioBps          uint64
	LatestRepay              uint64
	UnlockTime               uint64
	CreatedAt                uint64
}

// GetVault loads the vault record for a token, nil when absent.
func (m *Manager) GetVault(token string) (*vault.State, error) {
	var stored storedVaultState
	ok, err := m.get(tokenKey(vaultStatePrefix, token), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &vault.State{
		Supported:                stored.Supported,
		Locked:                   stored.Locked,
		BaseFeeBps:               stored.BaseFeeBps,
		FixedFeeBps:              stored.FixedFeeBps,
		InsuranceReserveRatioBps: stored.InsuranceReserveRatioBps,
		MinimumMargin:            stored.MinimumMargin,
		Cap:                      stored.Cap,
		NetLoans:                 stored.NetLoans,
		InsuranceReserveBalance:  stored.InsuranceReserveBalance,
		CurrentProfits:           stored.CurrentProfits,
		BoostedAmount:            stored.BoostedAmount,
		BookBalance:              stored.BookBalance,
		TotalShares:              stored.TotalShares,
		OptimalRatioBps:          stored.OptimalRatioBps,
		LatestRepay:              stored.LatestRepay,
		UnlockTime:               stored.UnlockTime,
		CreatedAt:                stored.CreatedAt,
	}, nil
}

// PutVault persists the vault record for a token.
func (m *Manager) PutVault(token string, state *vault.State) error {
	if state == nil {
		return m.db.Delete(tokenKey(vaultStatePrefix, token))
	}
	stored := storedVaultState{
		Supported:                state.Supported,
		Locked:                   state.Locked,
		BaseFeeBps:               state.BaseFeeBps,
		FixedFeeBps:              state.FixedFeeBps,
		InsuranceReserveRatioBps: state.InsuranceReserveRatioBps,
		MinimumMargin:            orZero(state.MinimumMargin),
		Cap:                      orZero(state.Cap),
		NetLoans:                 orZero(state.NetLoans),
		InsuranceReserveBalance:  orZero(state.InsuranceReserveBalance),
		CurrentProfits:           orZero(state.CurrentProfits),
		BoostedAmount:            orZero(state.BoostedAmount),
		BookBalance:              orZero(state.BookBalance),
		TotalShares:              orZero(state.TotalShares),
		OptimalRatioBps:          state.OptimalRatioBps,
		LatestRepay:              state.LatestRepay,
		UnlockTime:               state.UnlockTime,
		CreatedAt:                state.CreatedAt,
	}
	return m.put(tokenKey(vaultStatePrefix, token), stored)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func (m *Manager) getAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.get(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// GetShares returns a staker's share balance for a token.
func (m *Manager) GetShares(token string, addr crypto.Address) (*big.Int, error) {
	return m.getAmount(tokenAddrKey(vaultSharesPrefix, token, addr))
}

// PutShares stores a staker's share balance for a token.
func (m *Manager) PutShares(token string, addr crypto.Address, amount *big.Int) error {
	return m.put(tokenAddrKey(vaultSharesPrefix, token, addr), orZero(amount))
}

// GetBoost returns a booster's outstanding boosted balance for a token.
func (m *Manager) GetBoost(token string, addr crypto.Address) (*big.Int, error) {
	return m.getAmount(tokenAddrKey(vaultBoostPrefix, token, addr))
}

// PutBoost stores a booster's outstanding boosted balance for a token.
func (m *Manager) PutBoost(token string, addr crypto.Address, amount *big.Int) error {
	return m.put(tokenAddrKey(vaultBoostPrefix, token, addr), orZero(amount))
}

// IsStrategy reports whether an account holds borrow rights.
func (m *Manager) IsStrategy(addr crypto.Address) (bool, error) {
	var enabled bool
	ok, err := m.get(addrKey(vaultStrategyKey, addr), &enabled)
	if err != nil {
		return false, err
	}
	return ok && enabled, nil
}

// PutStrategy grants or revokes borrow rights for an account.
func (m *Manager) PutStrategy(addr crypto.Address, enabled bool) error {
	return m.put(addrKey(vaultStrategyKey, addr), enabled)
}

// --- Position arena ---

type storedPosition struct {
	ID                     uint64
	Owner                  string
	OwedToken              string
	HeldToken              string
	Collateral             *big.Int
	CollateralIsSpentToken bool
	Principal              *big.Int
	Allowance              *big.Int
	Fees                   *big.Int
	CreatedAt              uint64
}

// GetPosition loads a position from a strategy's arena, nil when absent.
func (m *Manager) GetPosition(strategyAddr crypto.Address, id uint64) (*strategy.Position, error) {
	var stored storedPosition
	ok, err := m.get(positionKey(strategyAddr, id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	owner, err := crypto.DecodeAddress(stored.Owner)
	if err != nil {
		return nil, fmt.Errorf("state: position %d owner: %w", id, err)
	}
	return &strategy.Position{
		ID:                     stored.ID,
		Owner:                  owner,
		OwedToken:              stored.OwedToken,
		HeldToken:              stored.HeldToken,
		Collateral:             stored.Collateral,
		CollateralIsSpentToken: stored.CollateralIsSpentToken,
		Principal:              stored.Principal,
		Allowance:              stored.Allowance,
		Fees:                   stored.Fees,
		CreatedAt:              stored.CreatedAt,
	}, nil
}

// PutPosition persists a position in a strategy's arena.
func (m *Manager) PutPosition(strategyAddr crypto.Address, position *strategy.Position) error {
	if position == nil {
		return nil
	}
	stored := storedPosition{
		ID:                     position.ID,
		Owner:                  position.Owner.String(),
		OwedToken:              position.OwedToken,
		HeldToken:              position.HeldToken,
		Collateral:             orZero(position.Collateral),
		CollateralIsSpentToken: position.CollateralIsSpentToken,
		Principal:              orZero(position.Principal),
		Allowance:              orZero(position.Allowance),
		Fees:                   orZero(position.Fees),
		CreatedAt:              position.CreatedAt,
	}
	return m.put(positionKey(strategyAddr, position.ID), stored)
}

// NextPositionID allocates the next position id for a strategy, starting
// at 1.
func (m *Manager) NextPositionID(strategyAddr crypto.Address) (uint64, error) {
	key := addrKey(positionNextIDKey, strategyAddr)
	var next uint64
	ok, err := m.get(key, &next)
	if err != nil {
		return 0, err
	}
	if !ok {
		next = 1
	}
	if err := m.put(key, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// GetRiskFactor returns the risk factor for a token under a strategy, zero
// by default.
func (m *Manager) GetRiskFactor(strategyAddr crypto.Address, token string) (uint64, error) {
	key := tokenAddrKey(riskFactorPrefix, token, strategyAddr)
	var bps uint64
	ok, err := m.get(key, &bps)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return bps, nil
}

// PutRiskFactor stores the risk factor for a token under a strategy.
func (m *Manager) PutRiskFactor(strategyAddr crypto.Address, token string, bps uint64) error {
	return m.put(tokenAddrKey(riskFactorPrefix, token, strategyAddr), bps)
}
