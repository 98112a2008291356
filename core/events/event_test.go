package events

import (
	"math/big"
	"testing"

	"leverlend/crypto"
)

func testAddr(fill byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	for i := range raw {
		raw[i] = fill
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func TestRecorderCollectsInOrder(t *testing.T) {
	rec := NewRecorder()
	staker := testAddr(0x01)

	rec.Emit(VaultDeposited{Token: "usdc", Staker: staker, Amount: big.NewInt(500), Shares: big.NewInt(500)})
	rec.Emit(VaultWithdrawn{Token: "usdc", Staker: staker, Amount: big.NewInt(200), Shares: big.NewInt(200)})

	recorded := rec.Events()
	if len(recorded) != 2 {
		t.Fatalf("recorded %d events, want 2", len(recorded))
	}
	if recorded[0].Type != TypeVaultDeposited {
		t.Fatalf("first type = %q, want %q", recorded[0].Type, TypeVaultDeposited)
	}
	if recorded[1].Type != TypeVaultWithdrawn {
		t.Fatalf("second type = %q, want %q", recorded[1].Type, TypeVaultWithdrawn)
	}
	if got := recorded[0].Attributes["token"]; got != "USDC" {
		t.Fatalf("token attribute = %q, want uppercased symbol", got)
	}
	if got := recorded[0].Attributes["staker"]; got != staker.String() {
		t.Fatalf("staker attribute = %q, want %q", got, staker.String())
	}

	rec.Reset()
	if len(rec.Events()) != 0 {
		t.Fatalf("expected no events after reset")
	}
}

func TestVaultWhitelistedOmitsEmptyBounds(t *testing.T) {
	evt := VaultWhitelisted{Token: "USDC", BaseFeeBps: 10, FixedFeeBps: 10}.Event()
	if _, ok := evt.Attributes["minimumMargin"]; ok {
		t.Fatalf("minimumMargin should be absent when unset")
	}
	if _, ok := evt.Attributes["cap"]; ok {
		t.Fatalf("cap should be absent when unset")
	}

	bounded := VaultWhitelisted{
		Token:         "USDC",
		MinimumMargin: big.NewInt(100),
		Cap:           big.NewInt(5000),
	}.Event()
	if got := bounded.Attributes["minimumMargin"]; got != "100" {
		t.Fatalf("minimumMargin = %q, want 100", got)
	}
	if got := bounded.Attributes["cap"]; got != "5000" {
		t.Fatalf("cap = %q, want 5000", got)
	}
}

func TestVaultLoanRepaidFeeDeltaSign(t *testing.T) {
	profit := VaultLoanRepaid{
		Token:     "USDC",
		Strategy:  testAddr(0x02),
		Amount:    big.NewInt(4_400),
		Principal: big.NewInt(4_000),
		FeeDelta:  big.NewInt(400),
	}.Event()
	if got := profit.Attributes["feeDelta"]; got != "400" {
		t.Fatalf("feeDelta = %q, want 400", got)
	}

	loss := VaultLoanRepaid{
		Token:     "USDC",
		Strategy:  testAddr(0x02),
		Amount:    big.NewInt(3_500),
		Principal: big.NewInt(4_000),
		FeeDelta:  big.NewInt(-500),
	}.Event()
	if got := loss.Attributes["feeDelta"]; got != "-500" {
		t.Fatalf("feeDelta = %q, want -500", got)
	}
}

func TestRecorderFallsBackToBareType(t *testing.T) {
	rec := NewRecorder()
	rec.Emit(bareEvent{})
	recorded := rec.Events()
	if len(recorded) != 1 || recorded[0].Type != "test.bare" {
		t.Fatalf("recorded = %+v, want one bare event", recorded)
	}
	if len(recorded[0].Attributes) != 0 {
		t.Fatalf("bare event should carry no attributes")
	}
}

type bareEvent struct{}

func (bareEvent) EventType() string { return "test.bare" }
