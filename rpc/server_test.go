package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"leverlend/core/events"
	"leverlend/crypto"
	"leverlend/exchange"
	"leverlend/native/liquidator"
	"leverlend/native/strategy"
	"leverlend/native/vault"
	"leverlend/state"
	"leverlend/storage"
)

func moduleAddr(fill byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	for i := range raw {
		raw[i] = fill
	}
	return crypto.NewAddress(crypto.ModulePrefix, raw)
}

func accountAddr(fill byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	for i := range raw {
		raw[i] = fill
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

type testHarness struct {
	server *httptest.Server
	admin  crypto.Address
	staker crypto.Address
	trader crypto.Address
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	manager := state.NewManager(storage.NewMemDB())
	recorder := events.NewRecorder()

	admin := accountAddr(0xA0)
	staker := accountAddr(0xA1)
	trader := accountAddr(0xA2)
	vaultAddr := moduleAddr(0x01)
	strategyAddr := moduleAddr(0x02)
	liquidatorAddr := moduleAddr(0x03)
	dealerAddr := moduleAddr(0x04)

	vaultEngine := vault.NewEngine(vaultAddr, admin)
	vaultEngine.SetState(manager)
	vaultEngine.SetEmitter(recorder)
	vaultEngine.SetTime(1_000_000)

	dealer := exchange.NewDealer(dealerAddr)
	dealer.SetLedger(manager)
	dealer.SetPrice("USDC", big.NewInt(1))
	dealer.SetPrice("WETH", big.NewInt(100))

	strategyEngine := strategy.NewEngine(strategyAddr, admin)
	strategyEngine.SetState(manager)
	strategyEngine.SetLender(vaultEngine)
	strategyEngine.SetAdapter(dealer)
	strategyEngine.SetLiquidator(liquidatorAddr)
	strategyEngine.SetEmitter(recorder)
	strategyEngine.SetTime(1_000_000)

	liqEngine := liquidator.NewEngine(liquidatorAddr)
	liqEngine.SetEmitter(recorder)
	liqEngine.RegisterStrategy(strategyEngine)

	if err := vaultEngine.AddStrategy(admin, strategyAddr); err != nil {
		t.Fatalf("register strategy: %v", err)
	}

	if err := manager.Credit(staker, "USDC", big.NewInt(50_000)); err != nil {
		t.Fatalf("fund staker: %v", err)
	}
	if err := manager.Credit(trader, "USDC", big.NewInt(2_000)); err != nil {
		t.Fatalf("fund trader: %v", err)
	}
	if err := manager.Credit(dealerAddr, "WETH", big.NewInt(1_000)); err != nil {
		t.Fatalf("fund dealer: %v", err)
	}

	srv := NewServer(vaultEngine, strategyEngine, liqEngine, manager, dealer, recorder, slog.Default())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testHarness{server: ts, admin: admin, staker: staker, trader: trader}
}

func (h *testHarness) post(t *testing.T, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, decoded
}

func (h *testHarness) get(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, decoded
}

func (h *testHarness) mustPost(t *testing.T, path string, body interface{}) map[string]interface{} {
	t.Helper()
	status, decoded := h.post(t, path, body)
	if status != http.StatusOK {
		t.Fatalf("post %s status = %d, body %v", path, status, decoded)
	}
	return decoded
}

func TestHealthz(t *testing.T) {
	h := newTestHarness(t)
	resp, err := http.Get(h.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestVaultLifecycleOverHTTP(t *testing.T) {
	h := newTestHarness(t)

	h.mustPost(t, "/v1/vault/whitelist", map[string]interface{}{
		"caller":        h.admin.String(),
		"token":         "usdc",
		"baseFeeBps":    10,
		"fixedFeeBps":   10,
		"minimumMargin": "100",
		"cap":           "0",
	})

	result := h.mustPost(t, "/v1/vault/stake", map[string]interface{}{
		"staker": h.staker.String(),
		"token":  "USDC",
		"amount": "40000",
	})
	if result["shares"] != "40000" {
		t.Fatalf("first stake shares = %v, want 40000", result["shares"])
	}

	status, view := h.get(t, "/v1/vault/USDC")
	if status != http.StatusOK {
		t.Fatalf("vault view status = %d", status)
	}
	if view["totalAssets"] != "40000" {
		t.Fatalf("totalAssets = %v, want 40000", view["totalAssets"])
	}

	status, claim := h.get(t, "/v1/vault/USDC/claimable/"+h.staker.String())
	if status != http.StatusOK {
		t.Fatalf("claimable status = %d", status)
	}
	if claim["claimable"] != "40000" {
		t.Fatalf("claimable = %v, want 40000", claim["claimable"])
	}

	result = h.mustPost(t, "/v1/vault/unstake", map[string]interface{}{
		"staker": h.staker.String(),
		"token":  "USDC",
		"amount": "10000",
	})
	if result["sharesBurned"] != "10000" {
		t.Fatalf("sharesBurned = %v, want 10000", result["sharesBurned"])
	}
}

func TestPositionLifecycleOverHTTP(t *testing.T) {
	h := newTestHarness(t)

	h.mustPost(t, "/v1/vault/whitelist", map[string]interface{}{
		"caller":        h.admin.String(),
		"token":         "USDC",
		"baseFeeBps":    10,
		"fixedFeeBps":   10,
		"minimumMargin": "100",
		"cap":           "0",
	})
	h.mustPost(t, "/v1/vault/stake", map[string]interface{}{
		"staker": h.staker.String(),
		"token":  "USDC",
		"amount": "40000",
	})
	h.mustPost(t, "/v1/positions/risk-factor", map[string]interface{}{
		"caller": h.admin.String(),
		"token":  "USDC",
		"bps":    3000,
	})
	h.mustPost(t, "/v1/positions/risk-factor", map[string]interface{}{
		"caller": h.admin.String(),
		"token":  "WETH",
		"bps":    4000,
	})

	result := h.mustPost(t, "/v1/positions/open", map[string]interface{}{
		"trader":                 h.trader.String(),
		"spentToken":             "USDC",
		"obtainedToken":          "WETH",
		"collateral":             "1000",
		"collateralIsSpentToken": true,
		"minObtained":            "95",
		"maxSpent":               "10000",
	})
	id := uint64(result["id"].(float64))
	if id != 1 {
		t.Fatalf("position id = %d, want 1", id)
	}

	status, view := h.get(t, fmt.Sprintf("/v1/positions/%d", id))
	if status != http.StatusOK {
		t.Fatalf("position view status = %d", status)
	}
	if view["principal"] != "9000" {
		t.Fatalf("principal = %v, want 9000", view["principal"])
	}
	if view["allowance"] != "100" {
		t.Fatalf("allowance = %v, want 100", view["allowance"])
	}
	if view["open"] != true {
		t.Fatalf("expected open position")
	}

	status, score := h.get(t, fmt.Sprintf("/v1/liquidations/score/%d", id))
	if status != http.StatusOK {
		t.Fatalf("score status = %d", status)
	}
	if score["liquidatable"] != false {
		t.Fatalf("fresh position reported liquidatable: %v", score)
	}

	result = h.mustPost(t, "/v1/positions/close", map[string]interface{}{
		"owner": h.trader.String(),
		"id":    id,
	})
	if result["payout"] == "" {
		t.Fatalf("expected payout in close response")
	}

	status, _ = h.post(t, "/v1/positions/close", map[string]interface{}{
		"owner": h.trader.String(),
		"id":    id,
	})
	if status == http.StatusOK {
		t.Fatalf("closing twice should fail")
	}
}

func TestBadAddressRejected(t *testing.T) {
	h := newTestHarness(t)
	status, _ := h.post(t, "/v1/vault/stake", map[string]interface{}{
		"staker": "not-an-address",
		"token":  "USDC",
		"amount": "1",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestUnknownVaultReturnsConflict(t *testing.T) {
	h := newTestHarness(t)
	status, _ := h.post(t, "/v1/vault/stake", map[string]interface{}{
		"staker": h.staker.String(),
		"token":  "DOGE",
		"amount": "1",
	})
	if status == http.StatusOK {
		t.Fatalf("staking into an unknown vault should fail")
	}
}
