package escrow

import (
	"fmt"
	"math/big"
	"strings"

	"escrowd/token"
)

// MilestoneStatus tracks the lifecycle of a single tranche.
type MilestoneStatus uint8

const (
	// MilestonePending marks tranches awaiting release.
	MilestonePending MilestoneStatus = iota
	// MilestoneReleased marks tranches already paid out to the recipient.
	MilestoneReleased
	// MilestoneDisputed marks tranches frozen by an open or settled dispute.
	MilestoneDisputed
)

// Valid reports whether the status value is within the supported range.
func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePending, MilestoneReleased, MilestoneDisputed:
		return true
	default:
		return false
	}
}

func (s MilestoneStatus) String() string {
	switch s {
	case MilestonePending:
		return "pending"
	case MilestoneReleased:
		return "released"
	case MilestoneDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Milestone is one tranche of an escrow's total amount, released
// independently of its siblings. Milestones are owned exclusively by their
// parent escrow and are never referenced on their own.
type Milestone struct {
	Amount      *big.Int
	Status      MilestoneStatus
	Description string
}

// Clone returns a deep copy of the milestone.
func (m *Milestone) Clone() *Milestone {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Amount != nil {
		clone.Amount = new(big.Int).Set(m.Amount)
	}
	return &clone
}

// EscrowStatus enumerates the lifecycle states of an escrow record.
type EscrowStatus uint8

const (
	// StatusCreated: record exists, funds not yet deposited.
	StatusCreated EscrowStatus = iota
	// StatusActive: funds deposited and held in custody.
	StatusActive
	// StatusCompleted: every milestone released; terminal.
	StatusCompleted
	// StatusCancelled: cancelled before any release, funds refunded; terminal.
	StatusCancelled
	// StatusDisputed: a party raised a dispute; awaits arbitration.
	StatusDisputed
	// StatusResolved: dispute arbitrated and outstanding funds paid; terminal.
	StatusResolved
)

// Valid reports whether the status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusActive, StatusCompleted, StatusCancelled, StatusDisputed, StatusResolved:
		return true
	default:
		return false
	}
}

func (s EscrowStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Resolution records which party a dispute was settled in favour of.
type Resolution uint8

const (
	ResolutionNone Resolution = iota
	ResolutionDepositor
	ResolutionRecipient
)

// Valid reports whether the resolution value is within the supported range.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionNone, ResolutionDepositor, ResolutionRecipient:
		return true
	default:
		return false
	}
}

func (r Resolution) String() string {
	switch r {
	case ResolutionNone:
		return "none"
	case ResolutionDepositor:
		return "depositor"
	case ResolutionRecipient:
		return "recipient"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// MaxMilestones bounds the number of tranches a single escrow may carry.
const MaxMilestones = 20

// Escrow is the persisted record for one milestone-based agreement. The
// caller-supplied identifier is unique for the lifetime of the system;
// records reach terminal states but are never deleted.
type Escrow struct {
	ID            uint64
	Depositor     [20]byte
	Recipient     [20]byte
	Token         string
	TotalAmount   *big.Int
	TotalReleased *big.Int
	Milestones    []*Milestone
	Status        EscrowStatus
	Deadline      uint64
	Resolution    Resolution
}

// Clone returns a deep copy so callers can mutate freely without touching the
// stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.TotalAmount != nil {
		clone.TotalAmount = new(big.Int).Set(e.TotalAmount)
	} else {
		clone.TotalAmount = big.NewInt(0)
	}
	if e.TotalReleased != nil {
		clone.TotalReleased = new(big.Int).Set(e.TotalReleased)
	} else {
		clone.TotalReleased = big.NewInt(0)
	}
	if len(e.Milestones) > 0 {
		clone.Milestones = make([]*Milestone, len(e.Milestones))
		for i, m := range e.Milestones {
			clone.Milestones[i] = m.Clone()
		}
	}
	return &clone
}

// AllReleased reports whether every milestone has been paid out.
func (e *Escrow) AllReleased() bool {
	if e == nil || len(e.Milestones) == 0 {
		return false
	}
	for _, m := range e.Milestones {
		if m == nil || m.Status != MilestoneReleased {
			return false
		}
	}
	return true
}

// SanitizeEscrow validates and normalises the supplied record, returning a
// cloned instance with canonical token casing and non-nil amount fields. The
// original value is not mutated.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("escrow: nil escrow")
	}
	clone := e.Clone()
	normalized, err := token.NormalizeToken(clone.Token)
	if err != nil {
		return nil, err
	}
	clone.Token = normalized
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidEscrowStatus, clone.Status)
	}
	if !clone.Resolution.Valid() {
		return nil, fmt.Errorf("escrow: invalid resolution: %d", clone.Resolution)
	}
	if clone.Depositor == clone.Recipient {
		return nil, ErrSelfDealing
	}
	if clone.TotalAmount.Sign() < 0 || clone.TotalReleased.Sign() < 0 {
		return nil, fmt.Errorf("escrow: negative amount state")
	}
	if clone.TotalReleased.Cmp(clone.TotalAmount) > 0 {
		return nil, fmt.Errorf("escrow: released exceeds total")
	}
	if len(clone.Milestones) == 0 || len(clone.Milestones) > MaxMilestones {
		return nil, fmt.Errorf("escrow: milestone count out of range: %d", len(clone.Milestones))
	}
	for i, m := range clone.Milestones {
		if m == nil || m.Amount == nil || m.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: milestone %d", ErrZeroAmount, i)
		}
		if !m.Status.Valid() {
			return nil, fmt.Errorf("escrow: invalid milestone status: %d", m.Status)
		}
		m.Description = strings.TrimSpace(m.Description)
	}
	return clone, nil
}
