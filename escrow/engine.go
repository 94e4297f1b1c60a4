package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"escrowd/events"
	"escrowd/token"
)

var (
	errNilState  = errors.New("escrow engine: state not configured")
	errNilLedger = errors.New("escrow engine: token ledger not configured")
	errNilAuth   = errors.New("escrow engine: authorizer not configured")
)

// engineState is the storage surface the engine drives. Implemented by
// state.Manager; tests supply their own.
type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id uint64) (*Escrow, bool)
	EscrowHas(id uint64) (bool, error)
	ConfigGet() (*Config, bool, error)
	ConfigPut(*Config) error
	AdminGet() ([20]byte, bool, error)
	AdminPut([20]byte) error
	VaultAddress(token string) ([20]byte, error)
}

// Engine validates and executes every escrow state transition, invoking token
// transfers and event emission as side effects. A single mutex serializes
// mutating operations so at most one mutation is in flight per record; reads
// go straight to committed state.
//
// Effects follow a two-phase discipline: validate and compute on a clone
// first, then perform token transfers, then persist. A failed transfer leaves
// the stored record untouched and surfaces the failure verbatim.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	ledger  token.Ledger
	auth    Authorizer
	emitter events.Emitter
}

// NewEngine creates an engine with a no-op emitter. State, ledger and
// authorizer must be configured before use.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the storage backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the token ledger funds move through.
func (e *Engine) SetLedger(ledger token.Ledger) { e.ledger = ledger }

// SetAuthorizer configures the authorization check applied before every
// mutating operation.
func (e *Engine) SetAuthorizer(auth Authorizer) { e.auth = auth }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.ledger == nil:
		return errNilLedger
	case e.auth == nil:
		return errNilAuth
	}
	return nil
}

func (e *Engine) requireAuth(principal [20]byte) error {
	if err := e.auth.RequireAuth(principal); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

func (e *Engine) ensureNotPaused() error {
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return err
	}
	if ok && cfg.Paused {
		return ErrPaused
	}
	return nil
}

func (e *Engine) loadEscrow(id uint64) (*Escrow, error) {
	esc, ok := e.state.EscrowGet(id)
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return esc, nil
}

func (e *Engine) configOrErr() (*Config, error) {
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTreasuryNotInitialized
	}
	return cfg, nil
}

// Create registers a new escrow under a caller-supplied identifier. The
// milestone list fixes the total amount for the record's lifetime; statuses
// are reset to pending regardless of what the caller passed in.
func (e *Engine) Create(id uint64, depositor, recipient [20]byte, tok string, milestones []*Milestone, deadline uint64) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAuth(depositor); err != nil {
		return nil, err
	}
	if err := e.ensureNotPaused(); err != nil {
		return nil, err
	}
	if depositor == recipient {
		return nil, ErrSelfDealing
	}
	normalized, err := token.NormalizeToken(tok)
	if err != nil {
		return nil, err
	}
	exists, err := e.state.EscrowHas(id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEscrowAlreadyExists
	}
	total, err := ValidateMilestones(milestones)
	if err != nil {
		return nil, err
	}
	initialized := make([]*Milestone, len(milestones))
	for i, m := range milestones {
		clone := m.Clone()
		clone.Status = MilestonePending
		initialized[i] = clone
	}
	esc := &Escrow{
		ID:            id,
		Depositor:     depositor,
		Recipient:     recipient,
		Token:         normalized,
		TotalAmount:   total,
		TotalReleased: big.NewInt(0),
		Milestones:    initialized,
		Status:        StatusCreated,
		Deadline:      deadline,
		Resolution:    ResolutionNone,
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(esc))
	return esc.Clone(), nil
}

// Deposit pulls the full escrow amount from the depositor into the custody
// vault and activates the record. The depositor must have approved the vault
// to spend on their behalf.
func (e *Engine) Deposit(id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureNotPaused(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if err := e.requireAuth(esc.Depositor); err != nil {
		return err
	}
	if esc.Status != StatusCreated {
		return ErrEscrowAlreadyFunded
	}
	vault, err := e.state.VaultAddress(esc.Token)
	if err != nil {
		return err
	}
	if err := e.ledger.TransferFrom(esc.Token, vault, esc.Depositor, vault, esc.TotalAmount); err != nil {
		return err
	}
	esc.Status = StatusActive
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewFundedEvent(esc))
	return nil
}

// ReleaseMilestone pays one tranche to the recipient, deducting the platform
// fee in force at release time and routing it to the treasury.
func (e *Engine) ReleaseMilestone(id uint64, index int) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureNotPaused(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if err := e.requireAuth(esc.Depositor); err != nil {
		return err
	}
	if esc.Status != StatusActive {
		return ErrEscrowNotActive
	}
	milestone, err := milestoneAt(esc, index)
	if err != nil {
		return err
	}
	cfg, err := e.configOrErr()
	if err != nil {
		return err
	}
	fee, err := CalculateFee(milestone.Amount, cfg.FeeBps)
	if err != nil {
		return err
	}
	payout := new(big.Int).Sub(milestone.Amount, fee)
	released := new(big.Int).Add(esc.TotalReleased, milestone.Amount)
	if !fitsAmount(released) {
		return ErrAmountOverflow
	}
	vault, err := e.state.VaultAddress(esc.Token)
	if err != nil {
		return err
	}
	if payout.Sign() > 0 {
		if err := e.ledger.Transfer(esc.Token, vault, esc.Recipient, payout); err != nil {
			return err
		}
	}
	if fee.Sign() > 0 {
		if err := e.ledger.Transfer(esc.Token, vault, cfg.Treasury, fee); err != nil {
			return err
		}
	}
	milestone.Status = MilestoneReleased
	esc.TotalReleased = released
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewMilestoneReleasedEvent(esc, index, payout.String(), fee.String()))
	return nil
}

// ConfirmDelivery releases one tranche through the buyer-approval path: the
// caller must prove they are the depositor and the full milestone amount goes
// to the recipient with no fee taken.
func (e *Engine) ConfirmDelivery(id uint64, index int, buyer [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureNotPaused(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if err := e.requireAuth(buyer); err != nil {
		return err
	}
	if esc.Depositor != buyer {
		return ErrUnauthorized
	}
	if esc.Status != StatusActive {
		return ErrEscrowNotActive
	}
	milestone, err := milestoneAt(esc, index)
	if err != nil {
		return err
	}
	released := new(big.Int).Add(esc.TotalReleased, milestone.Amount)
	if !fitsAmount(released) {
		return ErrAmountOverflow
	}
	vault, err := e.state.VaultAddress(esc.Token)
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(esc.Token, vault, esc.Recipient, milestone.Amount); err != nil {
		return err
	}
	milestone.Status = MilestoneReleased
	esc.TotalReleased = released
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewMilestoneReleasedEvent(esc, index, milestone.Amount.String(), "0"))
	return nil
}

// RaiseDispute freezes every pending milestone and moves the escrow into the
// disputed state. Only the depositor or the recipient may raise one.
func (e *Engine) RaiseDispute(id uint64, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureNotPaused(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Depositor && caller != esc.Recipient {
		return ErrUnauthorized
	}
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	if esc.Status == StatusDisputed {
		return ErrAlreadyInDispute
	}
	if esc.Status != StatusActive && esc.Status != StatusCreated {
		return ErrInvalidEscrowStatus
	}
	for _, m := range esc.Milestones {
		if m.Status == MilestonePending {
			m.Status = MilestoneDisputed
		}
	}
	esc.Status = StatusDisputed
	esc.Resolution = ResolutionNone
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewDisputeRaisedEvent(esc, caller))
	return nil
}

// ResolveDispute settles a disputed escrow under the admin's authority. A win
// for the recipient releases everything outstanding to them; a win for the
// depositor refunds the outstanding balance while already-released tranches
// stay released. Resolution works even while the platform is paused.
func (e *Engine) ResolveDispute(id uint64, winner [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	admin, ok, err := e.state.AdminGet()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAdminNotInitialized
	}
	if err := e.requireAuth(admin); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status != StatusDisputed {
		return ErrInvalidEscrowStatus
	}
	if winner != esc.Depositor && winner != esc.Recipient {
		return ErrInvalidWinner
	}
	outstanding := new(big.Int).Sub(esc.TotalAmount, esc.TotalReleased)
	if outstanding.Sign() < 0 {
		return ErrAmountOverflow
	}
	vault, err := e.state.VaultAddress(esc.Token)
	if err != nil {
		return err
	}
	if winner == esc.Recipient {
		if outstanding.Sign() > 0 {
			if err := e.ledger.Transfer(esc.Token, vault, esc.Recipient, outstanding); err != nil {
				return err
			}
		}
		for _, m := range esc.Milestones {
			m.Status = MilestoneReleased
		}
		esc.TotalReleased = new(big.Int).Set(esc.TotalAmount)
		esc.Resolution = ResolutionRecipient
	} else {
		if outstanding.Sign() > 0 {
			if err := e.ledger.Transfer(esc.Token, vault, esc.Depositor, outstanding); err != nil {
				return err
			}
		}
		for _, m := range esc.Milestones {
			if m.Status == MilestonePending || m.Status == MilestoneDisputed {
				m.Status = MilestoneDisputed
			}
		}
		esc.Resolution = ResolutionDepositor
	}
	esc.Status = StatusResolved
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewDisputeResolvedEvent(esc, winner))
	return nil
}

// Cancel voids an escrow before any tranche has been released, refunding the
// full custody balance to the depositor when funds were already deposited.
func (e *Engine) Cancel(id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureNotPaused(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if err := e.requireAuth(esc.Depositor); err != nil {
		return err
	}
	if esc.Status != StatusActive && esc.Status != StatusCreated {
		return ErrInvalidEscrowStatus
	}
	if esc.TotalReleased.Sign() > 0 {
		return ErrMilestoneAlreadyReleased
	}
	if esc.Status == StatusActive {
		vault, err := e.state.VaultAddress(esc.Token)
		if err != nil {
			return err
		}
		if err := e.ledger.Transfer(esc.Token, vault, esc.Depositor, esc.TotalAmount); err != nil {
			return err
		}
	}
	esc.Status = StatusCancelled
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(esc))
	return nil
}

// Complete closes an active escrow once every milestone has been released. No
// funds move; the transition only seals the record.
func (e *Engine) Complete(id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureNotPaused(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if err := e.requireAuth(esc.Depositor); err != nil {
		return err
	}
	if esc.Status != StatusActive {
		return ErrInvalidEscrowStatus
	}
	if !esc.AllReleased() {
		return ErrEscrowNotActive
	}
	esc.Status = StatusCompleted
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(esc))
	return nil
}

// GetEscrow returns a copy of the stored record.
func (e *Engine) GetEscrow(id uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok := e.state.EscrowGet(id)
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return esc, nil
}

// GetState returns only the lifecycle status of the record.
func (e *Engine) GetState(id uint64) (EscrowStatus, error) {
	esc, err := e.GetEscrow(id)
	if err != nil {
		return 0, err
	}
	return esc.Status, nil
}

// Initialize registers the treasury and platform fee. The call is repeatable
// on purpose: each invocation is re-authenticated against the new treasury
// and overwrites the previous configuration, leaving the pause flag as-is.
func (e *Engine) Initialize(treasury [20]byte, feeBps *int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAuth(treasury); err != nil {
		return err
	}
	fee := DefaultFeeBps
	if feeBps != nil {
		fee = *feeBps
	}
	if fee < 0 || fee > BpsDenominator {
		return ErrInvalidFeeConfig
	}
	var oldFee int64
	paused := false
	if existing, ok, err := e.state.ConfigGet(); err != nil {
		return err
	} else if ok {
		oldFee = existing.FeeBps
		paused = existing.Paused
	}
	cfg := &Config{Treasury: treasury, FeeBps: fee, Paused: paused}
	if err := e.state.ConfigPut(cfg); err != nil {
		return err
	}
	e.emit(NewRoleUpdatedEvent("treasury", treasury))
	e.emit(NewFeeUpdatedEvent(oldFee, fee))
	return nil
}

// UpdateFee changes the platform fee under the current treasury's authority.
func (e *Engine) UpdateFee(newFeeBps int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.configOrErr()
	if err != nil {
		return err
	}
	if err := e.requireAuth(cfg.Treasury); err != nil {
		return err
	}
	if newFeeBps < 0 || newFeeBps > BpsDenominator {
		return ErrInvalidFeeConfig
	}
	oldFee := cfg.FeeBps
	cfg.FeeBps = newFeeBps
	if err := e.state.ConfigPut(cfg); err != nil {
		return err
	}
	e.emit(NewFeeUpdatedEvent(oldFee, newFeeBps))
	return nil
}

// SetPaused toggles the global pause flag consulted by every fund-moving
// operation.
func (e *Engine) SetPaused(paused bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.configOrErr()
	if err != nil {
		return err
	}
	if err := e.requireAuth(cfg.Treasury); err != nil {
		return err
	}
	cfg.Paused = paused
	if err := e.state.ConfigPut(cfg); err != nil {
		return err
	}
	e.emit(NewPauseChangedEvent(paused, cfg.Treasury))
	return nil
}

// InitAdmin registers the dispute arbitrator. Strictly one-time; retries fail
// with ErrAlreadyInitialized.
func (e *Engine) InitAdmin(admin [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok, err := e.state.AdminGet(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if err := e.requireAuth(admin); err != nil {
		return err
	}
	if err := e.state.AdminPut(admin); err != nil {
		return err
	}
	e.emit(NewRoleUpdatedEvent("admin", admin))
	return nil
}

// GetConfig returns the committed platform configuration.
func (e *Engine) GetConfig() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTreasuryNotInitialized
	}
	return cfg.Clone(), nil
}

func milestoneAt(esc *Escrow, index int) (*Milestone, error) {
	if index < 0 || index >= len(esc.Milestones) {
		return nil, ErrMilestoneNotFound
	}
	milestone := esc.Milestones[index]
	if milestone == nil {
		return nil, ErrMilestoneNotFound
	}
	if milestone.Status == MilestoneReleased {
		return nil, ErrMilestoneAlreadyReleased
	}
	return milestone, nil
}
