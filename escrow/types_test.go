package escrow

import (
	"errors"
	"math/big"
	"testing"
)

func validRecord() *Escrow {
	return &Escrow{
		ID:            7,
		Depositor:     [20]byte{0x01},
		Recipient:     [20]byte{0x02},
		Token:         "usdx",
		TotalAmount:   big.NewInt(1000),
		TotalReleased: big.NewInt(0),
		Milestones:    milestoneList(600, 400),
		Status:        StatusCreated,
		Deadline:      1_900_000_000,
		Resolution:    ResolutionNone,
	}
}

func TestSanitizeEscrowNormalizesToken(t *testing.T) {
	sanitized, err := SanitizeEscrow(validRecord())
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.Token != "USDX" {
		t.Fatalf("token not canonicalised: %q", sanitized.Token)
	}
}

func TestSanitizeEscrowRejectsBadRecords(t *testing.T) {
	same := validRecord()
	same.Recipient = same.Depositor
	if _, err := SanitizeEscrow(same); !errors.Is(err, ErrSelfDealing) {
		t.Fatalf("expected ErrSelfDealing, got %v", err)
	}

	over := validRecord()
	over.TotalReleased = big.NewInt(2000)
	if _, err := SanitizeEscrow(over); err == nil {
		t.Fatal("expected rejection when released exceeds total")
	}

	empty := validRecord()
	empty.Milestones = nil
	if _, err := SanitizeEscrow(empty); err == nil {
		t.Fatal("expected rejection of empty milestone list")
	}

	badStatus := validRecord()
	badStatus.Status = EscrowStatus(99)
	if _, err := SanitizeEscrow(badStatus); !errors.Is(err, ErrInvalidEscrowStatus) {
		t.Fatalf("expected ErrInvalidEscrowStatus, got %v", err)
	}
}

func TestSanitizeEscrowDoesNotMutateOriginal(t *testing.T) {
	original := validRecord()
	if _, err := SanitizeEscrow(original); err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if original.Token != "usdx" {
		t.Fatalf("original mutated: %q", original.Token)
	}
}

func TestEscrowCloneIsDeep(t *testing.T) {
	original := validRecord()
	clone := original.Clone()
	clone.Milestones[0].Amount.SetInt64(1)
	clone.TotalAmount.SetInt64(1)
	if original.Milestones[0].Amount.Cmp(big.NewInt(600)) != 0 {
		t.Fatal("milestone amount aliased between clone and original")
	}
	if original.TotalAmount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatal("total amount aliased between clone and original")
	}
}

func TestAllReleased(t *testing.T) {
	esc := validRecord()
	if esc.AllReleased() {
		t.Fatal("pending milestones must not count as released")
	}
	for _, m := range esc.Milestones {
		m.Status = MilestoneReleased
	}
	if !esc.AllReleased() {
		t.Fatal("expected all released")
	}
	var none *Escrow
	if none.AllReleased() {
		t.Fatal("nil escrow must not report released")
	}
}

func TestStatusStrings(t *testing.T) {
	if StatusActive.String() != "active" || StatusResolved.String() != "resolved" {
		t.Fatal("unexpected status labels")
	}
	if MilestoneDisputed.String() != "disputed" {
		t.Fatal("unexpected milestone label")
	}
	if ResolutionRecipient.String() != "recipient" {
		t.Fatal("unexpected resolution label")
	}
	if EscrowStatus(42).Valid() || MilestoneStatus(42).Valid() || Resolution(42).Valid() {
		t.Fatal("out-of-range values must be invalid")
	}
}
