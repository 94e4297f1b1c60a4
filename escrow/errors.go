package escrow

import "errors"

// Business rejections surfaced by the escrow engine. All of them are typed,
// non-retryable-by-default, and returned before any storage write or token
// transfer once validation fails.
var (
	ErrEscrowNotFound           = errors.New("escrow: escrow not found")
	ErrEscrowAlreadyExists      = errors.New("escrow: escrow already exists")
	ErrMilestoneNotFound        = errors.New("escrow: milestone not found")
	ErrMilestoneAlreadyReleased = errors.New("escrow: milestone already released")
	ErrUnauthorized             = errors.New("escrow: unauthorized access")
	ErrAmountOverflow           = errors.New("escrow: amount overflows 128-bit range")
	ErrEscrowNotActive          = errors.New("escrow: escrow not active")
	ErrTooManyMilestones        = errors.New("escrow: too many milestones")
	ErrZeroAmount               = errors.New("escrow: milestone amount must be positive")
	ErrSelfDealing              = errors.New("escrow: depositor and recipient must differ")
	ErrEscrowAlreadyFunded      = errors.New("escrow: escrow already funded")
	ErrTreasuryNotInitialized   = errors.New("escrow: treasury not initialized")
	ErrInvalidFeeConfig         = errors.New("escrow: fee bps out of range")
	ErrAdminNotInitialized      = errors.New("escrow: admin not initialized")
	ErrAlreadyInitialized       = errors.New("escrow: already initialized")
	ErrInvalidEscrowStatus      = errors.New("escrow: invalid escrow status")
	ErrAlreadyInDispute         = errors.New("escrow: escrow already in dispute")
	ErrInvalidWinner            = errors.New("escrow: winner must be depositor or recipient")
	ErrPaused                   = errors.New("escrow: contract paused")
)
