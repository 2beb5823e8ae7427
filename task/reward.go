// Grounded on contracts/reward/reward.go's multi-formula distribution
// model: this codebase computes validator staking rewards via a choice of
// named formulas over a score; here the same shape computes an agent's
// task reward multiplier over its verification weighted score instead of a
// staking ratio.
package task

import "github.com/a2afabric/core/internal/errs"

// RewardFormula selects how the verification weighted score maps to a
// reward multiplier (design §4.5).
type RewardFormula string

const (
	Linear      RewardFormula = "linear"
	Exponential RewardFormula = "exponential"
	Tiered      RewardFormula = "tiered"
)

// multiplier computes a [0,1]-ish multiplier from a weighted score in
// [0,100]; each formula is monotonic in score and saturates at 1.0 for a
// perfect score, matching the Verify threshold bands above.
func multiplier(formula RewardFormula, score float64) (float64, error) {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	frac := score / 100

	switch formula {
	case Linear, "":
		return frac, nil
	case Exponential:
		return frac * frac, nil
	case Tiered:
		switch {
		case score >= 90:
			return 1.0, nil
		case score >= 75:
			return 0.85, nil
		case score >= 60:
			return 0.6, nil
		default:
			return 0.0, nil
		}
	default:
		return 0, errs.New(errs.InvalidArgument, "unknown reward formula %q", formula)
	}
}

// RewardScore computes the final reward for base tokens given a
// verification weighted score, per design §4.5: final = base * multiplier
// + bonus, where bonus is 20% of base at score>=95 and 10% at score>=90.
func RewardScore(formula RewardFormula, base uint64, weightedScore float64) (uint64, error) {
	m, err := multiplier(formula, weightedScore)
	if err != nil {
		return 0, err
	}
	final := float64(base) * m

	switch {
	case weightedScore >= 95:
		final += float64(base) * 0.20
	case weightedScore >= 90:
		final += float64(base) * 0.10
	}

	if final < 0 {
		final = 0
	}
	return uint64(final), nil
}
