package escrow

import "math/big"

// BpsDenominator converts basis points into a fraction; 10000 bps = 100%.
const BpsDenominator = 10_000

// DefaultFeeBps is applied when Initialize is called without an explicit rate.
const DefaultFeeBps int64 = 50

var (
	maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minAmount = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// fitsAmount reports whether v lies within the signed 128-bit range the
// ledger operates in.
func fitsAmount(v *big.Int) bool {
	if v == nil {
		return false
	}
	return v.Cmp(minAmount) >= 0 && v.Cmp(maxAmount) <= 0
}

// ValidateMilestones checks a milestone list at creation time and returns the
// escrow total. Lists longer than MaxMilestones are rejected, every amount
// must be strictly positive, and the sum is overflow-checked.
func ValidateMilestones(milestones []*Milestone) (*big.Int, error) {
	if len(milestones) > MaxMilestones {
		return nil, ErrTooManyMilestones
	}
	total := big.NewInt(0)
	for _, m := range milestones {
		if m == nil || m.Amount == nil || m.Amount.Sign() <= 0 {
			return nil, ErrZeroAmount
		}
		if !fitsAmount(m.Amount) {
			return nil, ErrAmountOverflow
		}
		total.Add(total, m.Amount)
		if !fitsAmount(total) {
			return nil, ErrAmountOverflow
		}
	}
	return total, nil
}

// CalculateFee computes floor(amount * feeBps / 10000) with overflow-checked
// multiplication. Rounding truncates toward zero, so small amounts may carry
// a zero fee; that is accepted business behaviour.
func CalculateFee(amount *big.Int, feeBps int64) (*big.Int, error) {
	if !fitsAmount(amount) {
		return nil, ErrAmountOverflow
	}
	numerator := new(big.Int).Mul(amount, big.NewInt(feeBps))
	if !fitsAmount(numerator) {
		return nil, ErrAmountOverflow
	}
	return numerator.Quo(numerator, big.NewInt(BpsDenominator)), nil
}
