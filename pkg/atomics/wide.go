package atomics

import (
	"fmt"
	"math/big"
)

// WideValue is a 64-bit cell value split into 32-bit halves. It is the form
// 64-bit operands and results travel in; Pack and Unpack convert to a native
// uint64.
type WideValue struct {
	Low  uint32
	High uint32
}

// Unpack splits v into halves.
func Unpack(v uint64) WideValue {
	return WideValue{Low: uint32(v), High: uint32(v >> 32)}
}

// Pack joins the halves.
func (w WideValue) Pack() uint64 {
	return uint64(w.High)<<32 | uint64(w.Low)
}

func WideFromInt64(v int64) WideValue { return Unpack(uint64(v)) }

var mask64 = new(big.Int).SetUint64(^uint64(0))

// WideFromBigInt reduces b modulo 2^64, two's complement for negative values.
func WideFromBigInt(b *big.Int) WideValue {
	return Unpack(new(big.Int).And(b, mask64).Uint64())
}

func (w WideValue) Uint64() uint64 { return w.Pack() }

func (w WideValue) Int64() int64 { return int64(w.Pack()) }

// BigInt interprets the value as signed or unsigned.
func (w WideValue) BigInt(signed bool) *big.Int {
	if signed {
		return big.NewInt(w.Int64())
	}
	return new(big.Int).SetUint64(w.Uint64())
}

func (w WideValue) String() string {
	return fmt.Sprintf("{low:0x%08x high:0x%08x}", w.Low, w.High)
}
