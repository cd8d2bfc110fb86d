package pricegraph

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// feeNumerator/feeDenominator encode φ = 999/1000 (§4.2) as an exact
// integer ratio so effectivePrice can compute num*feeNumerator without ever
// materializing φ as a lossy float until the final division.
const (
	feeNumerator   = 999
	feeDenominator = 1000
)

// DefaultDustThreshold is the remaining-sell amount below which an order is
// considered exhausted (§4.2). Configurable by callers via Orderbook
// construction options.
var DefaultDustThreshold = NewAmount(1)

// effectivePrice converts an order's (numerator, denominator) limit price
// into p_eff = (num/den) * φ as a float64, via an integer-exact
// multiplication before division so the fee is folded in without an
// intermediate float rounding step. Falls back to a float-space division on
// uint256 overflow (losing precision beyond 2^53, which §6.2 documents as
// accepted) and returns false if the result is not a usable positive finite
// rate — the edge must then be dropped per §4.2 ("p_eff <= 0 is dropped").
func effectivePrice(numerator, denominator *Amount) (float64, bool) {
	if denominator.IsZero() {
		return 0, false
	}

	num, overflow := new(uint256.Int).MulOverflow(numerator, uint256.NewInt(feeNumerator))
	den, denOverflow := new(uint256.Int).MulOverflow(denominator, uint256.NewInt(feeDenominator))
	var p float64
	if overflow || denOverflow {
		p = ratioToFloatBig(numerator.ToBig(), denominator.ToBig()) * (float64(feeNumerator) / float64(feeDenominator))
	} else {
		p = ratioToFloatBig(num.ToBig(), den.ToBig())
	}

	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return 0, false
	}
	return p, true
}

// bigOne is the shared big.Int constant 1, used wherever an Amount needs to
// be treated as a plain integer numerator over big.Int division.
var bigOne = big.NewInt(1)

// bigFloatFromFloat64 wraps a float64 in a big.Float, the common conversion
// point the fill loop uses when turning a rate-space float back into exact
// integer atoms.
func bigFloatFromFloat64(f float64) *big.Float {
	return new(big.Float).SetFloat64(f)
}

// ratioToFloatBig divides two non-negative big.Ints as a float64, rounded
// to nearest, via big.Float — exact up to float64's own precision, and
// immune to the uint256 overflow that a direct float64() conversion of a
// 256-bit numerator could otherwise hit.
func ratioToFloatBig(num, den *big.Int) float64 {
	if den.Sign() == 0 {
		if num.Sign() == 0 {
			return math.NaN()
		}
		return math.Inf(1)
	}
	ratio := new(big.Float).Quo(
		new(big.Float).SetInt(num),
		new(big.Float).SetInt(den),
	)
	f, _ := ratio.Float64()
	return f
}

// edgeWeight computes w = -ln(p_eff), the quantity path search minimizes.
// Callers must have already confirmed p_eff is a usable positive rate via
// effectivePrice.
func edgeWeight(pEff float64) float64 {
	return -math.Log(pEff)
}

// weightToPrice is the inverse of edgeWeight: exp(-w), used only at the
// query boundary per §4.2 ("conversion to product space is done only at
// the query boundary").
func weightToPrice(w float64) float64 {
	return math.Exp(-w)
}

// minAmount returns the smaller of two Amounts without mutating either.
func minAmount(a, b *Amount) *Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// mulFloorDiv computes floor(a * num / den) in exact big.Int precision,
// used for capacity back-projection along a path (§4.6: "capacity_i *
// product_{j<i} p_eff_j"). Saturates to the uint256 maximum on overflow of
// the final result — this should never happen for any well-formed
// capacity, but the fill loop must never wrap per §4.9's "saturating /
// checked" requirement.
func mulFloorDiv(a, num, den *Amount) *Amount {
	if den.IsZero() {
		return new(uint256.Int).SetAllOne()
	}
	result := new(big.Int).Mul(a.ToBig(), num.ToBig())
	result.Quo(result, den.ToBig())
	return AmountFromBig(result)
}
