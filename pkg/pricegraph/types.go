// Package pricegraph models an on-chain batch-auction orderbook as a
// weighted directed multigraph and answers questions about transitive
// exchange rates, fillable volume along best-priced paths, and aggregated
// bid/ask ladders between any pair of tokens.
//
// The package is the common vocabulary and algorithmic core of the system:
// it has no dependency on any service-layer package (config, HTTP, feeds)
// so it can be embedded in any caller's concurrency model. See §5 of the
// specification this package implements: the core is single-threaded,
// synchronous, and pure with respect to its inputs.
package pricegraph

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is an opaque 16-bit identifier. Token 0 is the distinguished fee
// token: fees are paid in it and it participates in every transitive path
// that crosses users.
type Token uint16

// FeeToken is the distinguished token fees are paid in (§3).
const FeeToken Token = 0

// OrderID is a per-owner ordinal used for deterministic tie-breaking (§3).
type OrderID uint16

// User is a 20-byte on-chain identity. One user may post many orders; the
// user's sell balance in a token is shared by every order selling that
// token — it is the binding constraint for all such edges simultaneously.
type User = common.Address

// Amount is a 128-bit-and-up atom quantity (sell volume, balance, numerator,
// denominator). uint256.Int gives exact, checked arithmetic — the spec
// requires numerator/denominator/remaining-sell to be 128-bit integers;
// uint256 covers that with headroom and overflow-checked operations, which
// §4.9 requires for the fill loop's internal bookkeeping.
type Amount = uint256.Int

// NewAmount constructs an Amount from a uint64, for tests and small literals.
func NewAmount(v uint64) *Amount {
	return new(uint256.Int).SetUint64(v)
}

// AmountFromBig converts a big.Int to an Amount, saturating at the uint256
// maximum on overflow rather than wrapping or panicking — the "saturating
// conversion" the numeric model requires (§4.2) applied to raw decode input.
func AmountFromBig(v *big.Int) *Amount {
	a, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return a
}

// Order is a resting limit sell order (§3).
type Order struct {
	ID        OrderID
	Owner     User
	BuyToken  Token
	SellToken Token

	// Numerator/Denominator define the limit price p = Numerator/Denominator
	// in (buy-atom per sell-atom) units, before fee.
	Numerator   *Amount
	Denominator *Amount

	// RemainingSell is the residual sell volume that could still be filled.
	RemainingSell *Amount

	// ValidFrom/ValidUntil bound the batch-id window during which the order
	// is active (inclusive on both ends).
	ValidFrom  uint32
	ValidUntil uint32
}

// IsActive reports whether the order is active at the given batch id (§3).
func (o *Order) IsActive(batchID uint32) bool {
	return o.ValidFrom <= batchID && batchID <= o.ValidUntil
}

// BalanceKey identifies a single (user, token) sell-balance slot (§3).
type BalanceKey struct {
	User  User
	Token Token
}

// Fill records one application of a fill to an order, for callers that need
// an audit trail of what the fill loop did (used by tests and §8's
// no-over-fill property).
type Fill struct {
	OrderID   OrderID
	SellToken Token
	BuyToken  Token
	SellAmt   *Amount
	BuyAmt    *Amount
}

// Level is one rung of a bid or ask ladder: the price and the base-token
// volume that fills at (or better than) that price (§4.5, §6.2).
type Level struct {
	Price  float64
	Volume float64
}

// Ladder is the result of TransitiveOrderbook: aggregated bid/ask levels
// between a base and quote token (§4.5 item 1).
type Ladder struct {
	Bids []Level
	Asks []Level
}
