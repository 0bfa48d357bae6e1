package atomics

import (
	"math/big"
	"strconv"

	"golang.org/x/exp/constraints"

	"github.com/srediag/shm-atomics/pkg/shm"
)

// Result is the value an operation hands back: a compact integer for views of
// up to 32 bits, or a wide integer for Int64 and Uint64 views.
type Result struct {
	kind shm.ElementKind
	wide bool
	bits uint64
	// exact is the unreduced value of a stored operand outside int64.
	exact *big.Int
}

// compactResult materializes a raw 32-bit word for a narrow kind, sign- or
// zero-extending it.
func compactResult(kind shm.ElementKind, word uint32) Result {
	return Result{kind: kind, bits: uint64(entryOf(kind).extend(word))}
}

// wideResult materializes the two halves of a 64-bit cell.
func wideResult(kind shm.ElementKind, w WideValue) Result {
	return Result{kind: kind, wide: true, bits: w.Pack()}
}

// integerResult carries a coerced operand that was not truncated to the cell.
func integerResult(kind shm.ElementKind, v IntegerValue) Result {
	return Result{kind: kind, bits: uint64(v.Bits), exact: v.Exact}
}

func extend[T constraints.Integer](word uint32) int64 { return int64(T(word)) }

// Kind is the element kind of the view the result was read from.
func (r Result) Kind() shm.ElementKind { return r.kind }

// IsWide reports whether r came from a 64-bit cell.
func (r Result) IsWide() bool { return r.wide }

// Int64 returns the value; wide Uint64 values above MaxInt64 and stored
// operands outside int64 wrap modulo 2^64.
func (r Result) Int64() int64 { return int64(r.bits) }

// Uint64 returns the two's complement bits of the value.
func (r Result) Uint64() uint64 { return r.bits }

func (r Result) Wide() WideValue { return Unpack(r.bits) }

// BigInt returns the exact value, unsigned for wide Uint64 results.
func (r Result) BigInt() *big.Int {
	if r.exact != nil {
		return new(big.Int).Set(r.exact)
	}
	if r.wide && !r.kind.Signed() {
		return new(big.Int).SetUint64(r.bits)
	}
	return big.NewInt(int64(r.bits))
}

func (r Result) String() string {
	if r.exact != nil {
		return r.exact.String()
	}
	if r.wide && !r.kind.Signed() {
		return strconv.FormatUint(r.bits, 10)
	}
	return strconv.FormatInt(int64(r.bits), 10)
}
