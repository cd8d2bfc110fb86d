package pricegraph

// globalID is an internal, process-local identifier for one order within a
// single Orderbook. The wire format's OrderID is only unique per owner
// (§3); globalID is unique within this Orderbook and is what edges and
// fills reference internally. Callers never see it — they see Order.ID and
// Order.Owner.
type globalID int

// orderState is the orderbook's mutable view of one order: the immutable
// order fields plus the residual sell amount, which ApplyFill decrements.
type orderState struct {
	order         *Order
	remainingSell *Amount
}

// Orderbook is the canonical collection of active orders and per-(user,
// token) sell balances (§4.3/C3). It is not safe for concurrent mutation;
// callers that need concurrent queries should Clone() and mutate the
// clone, per §5.
type Orderbook struct {
	states   []*orderState          // indexed by globalID
	balances map[BalanceKey]*Amount // shared across every order on that (user, token)

	dustThreshold *Amount
}

// Option configures Orderbook construction.
type Option func(*Orderbook)

// WithDustThreshold overrides DefaultDustThreshold (§4.2).
func WithDustThreshold(threshold *Amount) Option {
	return func(ob *Orderbook) { ob.dustThreshold = threshold }
}

// New constructs an Orderbook retaining only orders whose validity window
// contains batchID. Orders with zero remaining-sell or zero owner balance
// in their sell-token are dropped, per §4.3.
func New(decoded *Decoded, batchID uint32, opts ...Option) *Orderbook {
	ob := &Orderbook{
		balances:      make(map[BalanceKey]*Amount, len(decoded.Balances)),
		dustThreshold: DefaultDustThreshold,
	}
	for _, opt := range opts {
		opt(ob)
	}
	for k, v := range decoded.Balances {
		ob.balances[k] = v.Clone()
	}

	for _, o := range decoded.Orders {
		if !o.IsActive(batchID) {
			continue
		}
		if o.RemainingSell.Cmp(ob.dustThreshold) < 0 {
			continue
		}
		bal := ob.balances[BalanceKey{User: o.Owner, Token: o.SellToken}]
		if bal == nil || bal.IsZero() {
			continue
		}
		ob.states = append(ob.states, &orderState{
			order:         o,
			remainingSell: o.RemainingSell.Clone(),
		})
	}
	return ob
}

// Filter produces a new Orderbook retaining only orders matching predicate
// (§4.3), e.g. to blacklist tokens or users. Balances are carried over
// unchanged since they may still be relevant to surviving orders.
func (ob *Orderbook) Filter(predicate func(*Order) bool) *Orderbook {
	out := &Orderbook{
		balances:      make(map[BalanceKey]*Amount, len(ob.balances)),
		dustThreshold: ob.dustThreshold,
	}
	for k, v := range ob.balances {
		out.balances[k] = v.Clone()
	}
	for _, st := range ob.states {
		if predicate(st.order) {
			out.states = append(out.states, &orderState{
				order:         st.order,
				remainingSell: st.remainingSell.Clone(),
			})
		}
	}
	return out
}

// Clone deep-copies the Orderbook in O(V+E) — orders and balances — so a
// caller can mutate the copy via the fill loop without affecting the
// canonical instance (§5).
func (ob *Orderbook) Clone() *Orderbook {
	out := &Orderbook{
		balances:      make(map[BalanceKey]*Amount, len(ob.balances)),
		dustThreshold: ob.dustThreshold,
		states:        make([]*orderState, len(ob.states)),
	}
	for k, v := range ob.balances {
		out.balances[k] = v.Clone()
	}
	for i, st := range ob.states {
		out.states[i] = &orderState{
			order:         st.order,
			remainingSell: st.remainingSell.Clone(),
		}
	}
	return out
}

// capacity returns min(remaining-sell, owner balance in sell-token) for the
// order at the given globalID, the edge capacity definition in §3.
func (ob *Orderbook) capacity(id globalID) *Amount {
	st := ob.states[id]
	bal := ob.balances[BalanceKey{User: st.order.Owner, Token: st.order.SellToken}]
	if bal == nil {
		return new(Amount)
	}
	return minAmount(st.remainingSell, bal)
}

// ApplyFill decrements the order's remaining-sell and the owner's balance
// in that sell-token by sellAmount (§4.3). It returns the list of other
// orders that share the touched (owner, sell-token) balance — callers (C4)
// must recompute those edges' capacities, since the balance is joint state
// (§9). Fails with InsufficientCapacity if either quantity would go
// negative.
func (ob *Orderbook) ApplyFill(id globalID, sellAmount *Amount) ([]globalID, error) {
	st := ob.states[id]
	if sellAmount.Cmp(st.remainingSell) > 0 {
		return nil, newErr(KindInsufficientCapacity, -1, int(st.order.ID),
			"fill exceeds order's remaining-sell")
	}
	key := BalanceKey{User: st.order.Owner, Token: st.order.SellToken}
	bal := ob.balances[key]
	if bal == nil || sellAmount.Cmp(bal) > 0 {
		return nil, newErr(KindInsufficientCapacity, -1, int(st.order.ID),
			"fill exceeds owner's sell-token balance")
	}

	st.remainingSell = new(Amount).Sub(st.remainingSell, sellAmount)
	ob.balances[key] = new(Amount).Sub(bal, sellAmount)

	var touched []globalID
	for i, other := range ob.states {
		if globalID(i) == id {
			continue
		}
		if other.order.Owner == st.order.Owner && other.order.SellToken == st.order.SellToken {
			touched = append(touched, globalID(i))
		}
	}
	return touched, nil
}

// Balance returns the current sell-balance for (user, token), or zero if
// untracked.
func (ob *Orderbook) Balance(user User, token Token) *Amount {
	bal := ob.balances[BalanceKey{User: user, Token: token}]
	if bal == nil {
		return new(Amount)
	}
	return bal.Clone()
}

// Len returns the number of active orders currently held.
func (ob *Orderbook) Len() int { return len(ob.states) }
