package pricegraph

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// recordSize is the fixed width of one encoded order record (§4.1).
const recordSize = 114

// Decoded is the output of Decode: the order set plus the aggregated
// per-(user, token) balance table the decoder read off the wire.
type Decoded struct {
	Orders   []*Order
	Balances map[BalanceKey]*Amount
}

// Decode parses a byte sequence whose length is a multiple of 114 bytes
// (§4.1) into validated orders and user balances. It fails with
// MalformedEncoding if the length isn't a multiple of 114, with
// InvalidOrder if buy-token == sell-token, the denominator is zero, or
// valid_until < valid_from, and with InconsistentBalance if two records
// for the same (user, token) disagree on the balance field.
func Decode(data []byte) (*Decoded, error) {
	if len(data)%recordSize != 0 {
		return nil, newErr(KindMalformedEncoding, len(data), -1,
			"byte length is not a multiple of 114")
	}

	n := len(data) / recordSize
	out := &Decoded{
		Orders:   make([]*Order, 0, n),
		Balances: make(map[BalanceKey]*Amount, n),
	}

	for i := 0; i < n; i++ {
		rec := data[i*recordSize : (i+1)*recordSize]
		order, key, balance, err := decodeRecord(rec, i)
		if err != nil {
			return nil, err
		}

		if existing, ok := out.Balances[key]; ok {
			if existing.Cmp(balance) != 0 {
				return nil, newErr(KindInconsistentBalance, i*recordSize, i,
					"repeated (user, token) balance disagrees with an earlier record")
			}
		} else {
			out.Balances[key] = balance
		}

		out.Orders = append(out.Orders, order)
	}

	return out, nil
}

// decodeRecord parses one 114-byte record per the §4.1 layout:
//
//	owner(20) sellTokenBalance(32,BE) buyToken(2,LE) sellToken(2,LE)
//	validFrom(4,LE) validUntil(4,LE) numerator(16,LE) denominator(16,LE)
//	remainingSell(16,LE) orderID(2,LE)
func decodeRecord(rec []byte, index int) (*Order, BalanceKey, *Amount, error) {
	owner := common.BytesToAddress(rec[0:20])
	balance := new(big.Int).SetBytes(rec[20:52]) // big-endian per §4.1
	buyToken := Token(binary.LittleEndian.Uint16(rec[52:54]))
	sellToken := Token(binary.LittleEndian.Uint16(rec[54:56]))
	validFrom := binary.LittleEndian.Uint32(rec[56:60])
	validUntil := binary.LittleEndian.Uint32(rec[60:64])
	numerator := leUint(rec[64:80])
	denominator := leUint(rec[80:96])
	remainingSell := leUint(rec[96:112])
	orderID := OrderID(binary.LittleEndian.Uint16(rec[112:114]))

	if buyToken == sellToken {
		return nil, BalanceKey{}, nil, newErr(KindInvalidOrder, index*recordSize, index,
			"buy-token equals sell-token")
	}
	if denominator.IsZero() {
		return nil, BalanceKey{}, nil, newErr(KindInvalidOrder, index*recordSize, index,
			"zero denominator")
	}
	if validUntil < validFrom {
		return nil, BalanceKey{}, nil, newErr(KindInvalidOrder, index*recordSize, index,
			"valid_until before valid_from")
	}

	order := &Order{
		ID:            orderID,
		Owner:         owner,
		BuyToken:      buyToken,
		SellToken:     sellToken,
		Numerator:     numerator,
		Denominator:   denominator,
		RemainingSell: remainingSell,
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
	}
	key := BalanceKey{User: owner, Token: sellToken}
	return order, key, AmountFromBig(balance), nil
}

// leUint reads a little-endian unsigned integer of arbitrary byte width
// (the spec's 16-byte numerator/denominator/remaining-sell fields) into an
// Amount, saturating on overflow per the numeric model's conversion rule.
func leUint(b []byte) *Amount {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return AmountFromBig(new(big.Int).SetBytes(be))
}

// Encode is the inverse of Decode, used by the round-trip property in §8.
// It re-serializes orders and their owners' sell-token balances back into
// the §4.1 wire layout. Orders are written in the order given; any
// (user, token) pair not present in balances encodes as a zero balance.
func Encode(orders []*Order, balances map[BalanceKey]*Amount) []byte {
	out := make([]byte, len(orders)*recordSize)
	for i, o := range orders {
		rec := out[i*recordSize : (i+1)*recordSize]
		copy(rec[0:20], o.Owner.Bytes())

		bal, ok := balances[BalanceKey{User: o.Owner, Token: o.SellToken}]
		if !ok {
			bal = new(Amount)
		}
		putBE32(rec[20:52], bal)

		binary.LittleEndian.PutUint16(rec[52:54], uint16(o.BuyToken))
		binary.LittleEndian.PutUint16(rec[54:56], uint16(o.SellToken))
		binary.LittleEndian.PutUint32(rec[56:60], o.ValidFrom)
		binary.LittleEndian.PutUint32(rec[60:64], o.ValidUntil)
		putLE16(rec[64:80], o.Numerator)
		putLE16(rec[80:96], o.Denominator)
		putLE16(rec[96:112], o.RemainingSell)
		binary.LittleEndian.PutUint16(rec[112:114], uint16(o.ID))
	}
	return out
}

func putBE32(dst []byte, v *Amount) {
	b := v.Bytes32()
	copy(dst, b[:])
}

func putLE16(dst []byte, v *Amount) {
	b := v.Bytes32()
	// Bytes32 is big-endian with the value right-aligned in 32 bytes; the
	// wire format wants the low 16 bytes, little-endian.
	for i := 0; i < 16; i++ {
		dst[i] = b[31-i]
	}
}
