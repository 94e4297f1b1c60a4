package escrow

import (
	"encoding/hex"
	"strconv"

	"escrowd/events"
)

const (
	EventTypeEscrowCreated     = "escrow.created"
	EventTypeEscrowFunded      = "escrow.funded"
	EventTypeMilestoneReleased = "escrow.milestone_released"
	EventTypeDisputeRaised     = "escrow.dispute_raised"
	EventTypeDisputeResolved   = "escrow.dispute_resolved"
	EventTypeEscrowCancelled   = "escrow.cancelled"
	EventTypeEscrowCompleted   = "escrow.completed"
	EventTypeRoleUpdated       = "escrow.role_updated"
	EventTypeFeeUpdated        = "escrow.fee_updated"
	EventTypePauseChanged      = "escrow.pause_changed"
)

func addrHex(addr [20]byte) string { return hex.EncodeToString(addr[:]) }

func idString(id uint64) string { return strconv.FormatUint(id, 10) }

// NewCreatedEvent returns the canonical payload emitted after create.
func NewCreatedEvent(e *Escrow) *events.Event {
	return &events.Event{
		Type: EventTypeEscrowCreated,
		Attributes: map[string]string{
			"id":          idString(e.ID),
			"depositor":   addrHex(e.Depositor),
			"recipient":   addrHex(e.Recipient),
			"token":       e.Token,
			"totalAmount": e.TotalAmount.String(),
			"deadline":    strconv.FormatUint(e.Deadline, 10),
		},
	}
}

// NewFundedEvent returns the payload emitted once the deposit lands in
// custody.
func NewFundedEvent(e *Escrow) *events.Event {
	return &events.Event{
		Type: EventTypeEscrowFunded,
		Attributes: map[string]string{
			"id":     idString(e.ID),
			"amount": e.TotalAmount.String(),
		},
	}
}

// NewMilestoneReleasedEvent covers both release paths; the fee-free
// confirmation path emits fee "0".
func NewMilestoneReleasedEvent(e *Escrow, index int, payout, fee string) *events.Event {
	return &events.Event{
		Type: EventTypeMilestoneReleased,
		Attributes: map[string]string{
			"id":     idString(e.ID),
			"index":  strconv.Itoa(index),
			"payout": payout,
			"fee":    fee,
		},
	}
}

// NewDisputeRaisedEvent returns the payload emitted when a party disputes.
func NewDisputeRaisedEvent(e *Escrow, raisedBy [20]byte) *events.Event {
	return &events.Event{
		Type: EventTypeDisputeRaised,
		Attributes: map[string]string{
			"id":       idString(e.ID),
			"raisedBy": addrHex(raisedBy),
		},
	}
}

// NewDisputeResolvedEvent returns the payload emitted after arbitration.
func NewDisputeResolvedEvent(e *Escrow, winner [20]byte) *events.Event {
	return &events.Event{
		Type: EventTypeDisputeResolved,
		Attributes: map[string]string{
			"id":         idString(e.ID),
			"winner":     addrHex(winner),
			"resolution": e.Resolution.String(),
		},
	}
}

// NewCancelledEvent returns the payload emitted after cancellation.
func NewCancelledEvent(e *Escrow) *events.Event {
	return &events.Event{
		Type: EventTypeEscrowCancelled,
		Attributes: map[string]string{
			"id":          idString(e.ID),
			"cancelledBy": addrHex(e.Depositor),
		},
	}
}

// NewCompletedEvent returns the payload emitted once every milestone is
// released and the escrow closes.
func NewCompletedEvent(e *Escrow) *events.Event {
	return &events.Event{
		Type: EventTypeEscrowCompleted,
		Attributes: map[string]string{
			"id": idString(e.ID),
		},
	}
}

// NewRoleUpdatedEvent records treasury or admin registration.
func NewRoleUpdatedEvent(role string, addr [20]byte) *events.Event {
	return &events.Event{
		Type: EventTypeRoleUpdated,
		Attributes: map[string]string{
			"role":    role,
			"address": addrHex(addr),
		},
	}
}

// NewFeeUpdatedEvent records a platform fee change.
func NewFeeUpdatedEvent(oldBps, newBps int64) *events.Event {
	return &events.Event{
		Type: EventTypeFeeUpdated,
		Attributes: map[string]string{
			"oldBps": strconv.FormatInt(oldBps, 10),
			"newBps": strconv.FormatInt(newBps, 10),
		},
	}
}

// NewPauseChangedEvent records a pause flag flip.
func NewPauseChangedEvent(paused bool, changedBy [20]byte) *events.Event {
	return &events.Event{
		Type: EventTypePauseChanged,
		Attributes: map[string]string{
			"paused":    strconv.FormatBool(paused),
			"changedBy": addrHex(changedBy),
		},
	}
}
