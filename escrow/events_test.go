package escrow

import (
	"math/big"
	"testing"
)

func TestCreatedEventSchema(t *testing.T) {
	esc := &Escrow{
		ID:          42,
		Depositor:   testAddress(0x11),
		Recipient:   testAddress(0x22),
		Token:       "USDX",
		TotalAmount: big.NewInt(10000),
		Deadline:    1_900_000_000,
	}
	evt := NewCreatedEvent(esc)
	if evt.Type != EventTypeEscrowCreated {
		t.Fatalf("type = %q", evt.Type)
	}
	want := map[string]string{
		"id":          "42",
		"depositor":   "1111111111111111111111111111111111111111",
		"recipient":   "2222222222222222222222222222222222222222",
		"token":       "USDX",
		"totalAmount": "10000",
		"deadline":    "1900000000",
	}
	for key, expected := range want {
		if evt.Attributes[key] != expected {
			t.Fatalf("attribute %q = %q, want %q", key, evt.Attributes[key], expected)
		}
	}
}

func TestMilestoneReleasedEventCarriesPayoutAndFee(t *testing.T) {
	esc := &Escrow{ID: 7, TotalAmount: big.NewInt(100)}
	evt := NewMilestoneReleasedEvent(esc, 2, "95", "5")
	if evt.Attributes["index"] != "2" || evt.Attributes["payout"] != "95" || evt.Attributes["fee"] != "5" {
		t.Fatalf("unexpected payload: %+v", evt.Attributes)
	}
}

func TestDisputeResolvedEventIncludesResolution(t *testing.T) {
	esc := &Escrow{ID: 9, TotalAmount: big.NewInt(1), Resolution: ResolutionDepositor}
	evt := NewDisputeResolvedEvent(esc, testAddress(0x11))
	if evt.Attributes["resolution"] != "depositor" {
		t.Fatalf("resolution attr = %q", evt.Attributes["resolution"])
	}
}

func TestConfigEvents(t *testing.T) {
	role := NewRoleUpdatedEvent("treasury", testAddress(0x33))
	if role.Attributes["role"] != "treasury" {
		t.Fatalf("role attr = %q", role.Attributes["role"])
	}
	fee := NewFeeUpdatedEvent(50, 75)
	if fee.Attributes["oldBps"] != "50" || fee.Attributes["newBps"] != "75" {
		t.Fatalf("unexpected fee payload: %+v", fee.Attributes)
	}
	pause := NewPauseChangedEvent(true, testAddress(0x33))
	if pause.Attributes["paused"] != "true" {
		t.Fatalf("unexpected pause payload: %+v", pause.Attributes)
	}
}
