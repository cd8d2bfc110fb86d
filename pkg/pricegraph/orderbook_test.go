package pricegraph

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testDecoded(t *testing.T) (*Decoded, common.Address, common.Address) {
	t.Helper()
	u := common.HexToAddress("0x01")
	v := common.HexToAddress("0x02")
	return &Decoded{
		Orders: []*Order{
			{ID: 1, Owner: u, SellToken: 0, BuyToken: 1, Numerator: NewAmount(2), Denominator: NewAmount(1), RemainingSell: NewAmount(100), ValidFrom: 0, ValidUntil: 10},
			{ID: 1, Owner: v, SellToken: 1, BuyToken: 0, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(100), ValidFrom: 0, ValidUntil: 10},
		},
		Balances: map[BalanceKey]*Amount{
			{User: u, Token: 0}: NewAmount(100),
			{User: v, Token: 1}: NewAmount(100),
		},
	}, u, v
}

func TestNewFiltersInactiveOrders(t *testing.T) {
	t.Parallel()
	decoded, u, _ := testDecoded(t)
	decoded.Orders[0].ValidFrom = 20 // not yet active at batch 5

	ob := New(decoded, 5)
	if ob.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (inactive order excluded)", ob.Len())
	}
	if ob.states[0].order.Owner != u {
		t.Fatalf("wrong order survived filtering")
	}
}

func TestNewDropsZeroBalanceOrders(t *testing.T) {
	t.Parallel()
	decoded, _, v := testDecoded(t)
	delete(decoded.Balances, BalanceKey{User: v, Token: 1})

	ob := New(decoded, 5)
	if ob.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (zero-balance order excluded)", ob.Len())
	}
}

func TestCapacityIsMinOfRemainingAndBalance(t *testing.T) {
	t.Parallel()
	decoded, u, _ := testDecoded(t)
	decoded.Balances[BalanceKey{User: u, Token: 0}] = NewAmount(30)

	ob := New(decoded, 5)
	cap := ob.capacity(0)
	if cap.Cmp(NewAmount(30)) != 0 {
		t.Fatalf("capacity = %v, want 30 (balance binds, not remaining-sell)", cap)
	}
}

func TestApplyFillDecrementsSharedBalanceAndReportsTouched(t *testing.T) {
	t.Parallel()
	u := common.HexToAddress("0x01")
	decoded := &Decoded{
		Orders: []*Order{
			{ID: 1, Owner: u, SellToken: 0, BuyToken: 1, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(50), ValidFrom: 0, ValidUntil: 10},
			{ID: 2, Owner: u, SellToken: 0, BuyToken: 2, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(50), ValidFrom: 0, ValidUntil: 10},
		},
		Balances: map[BalanceKey]*Amount{
			{User: u, Token: 0}: NewAmount(60),
		},
	}
	ob := New(decoded, 5)

	touched, err := ob.ApplyFill(0, NewAmount(20))
	if err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	if len(touched) != 1 || touched[0] != 1 {
		t.Fatalf("touched = %v, want [1]", touched)
	}

	if got := ob.capacity(1); got.Cmp(NewAmount(40)) != 0 {
		t.Fatalf("sibling order's capacity = %v, want 40 after shared-balance fill", got)
	}
}

func TestApplyFillRejectsOverfill(t *testing.T) {
	t.Parallel()
	decoded, _, _ := testDecoded(t)
	ob := New(decoded, 5)

	_, err := ob.ApplyFill(0, NewAmount(1000))
	if !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("err = %v, want InsufficientCapacity", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	decoded, _, _ := testDecoded(t)
	ob := New(decoded, 5)
	clone := ob.Clone()

	if _, err := clone.ApplyFill(0, NewAmount(10)); err != nil {
		t.Fatalf("ApplyFill on clone: %v", err)
	}
	if ob.capacity(0).Cmp(NewAmount(100)) != 0 {
		t.Fatalf("canonical Orderbook mutated by a fill on its clone")
	}
}
