package atomics

import (
	"unsafe"

	internalshm "github.com/srediag/shm-atomics/internal/shm"
	"github.com/srediag/shm-atomics/pkg/shm"
)

// kindEntry is the per-kind dispatch data. Signed and unsigned kinds of one
// width share the cell; they differ in extend and in the wide interpretation.
type kindEntry struct {
	cell   int
	mask   uint64
	extend func(word uint32) int64
}

var kindTable = [...]kindEntry{
	shm.KindInt8:   {cell: 0, mask: 0xFF, extend: extend[int8]},
	shm.KindUint8:  {cell: 0, mask: 0xFF, extend: extend[uint8]},
	shm.KindInt16:  {cell: 1, mask: 0xFFFF, extend: extend[int16]},
	shm.KindUint16: {cell: 1, mask: 0xFFFF, extend: extend[uint16]},
	shm.KindInt32:  {cell: 2, mask: 0xFFFFFFFF, extend: extend[int32]},
	shm.KindUint32: {cell: 2, mask: 0xFFFFFFFF, extend: extend[uint32]},
	shm.KindInt64:  {cell: 3, mask: ^uint64(0)},
	shm.KindUint64: {cell: 3, mask: ^uint64(0)},
}

func entryOf(kind shm.ElementKind) *kindEntry {
	if !kind.IsInteger() {
		// Validation admits integer kinds only.
		panic("atomics: unreachable element kind " + kind.String())
	}
	return &kindTable[kind]
}

// opTable runs one operation on a cell; a and b are the operands already
// truncated to the cell width.
var opTable = [opCount]func(c *internalshm.Cell, p unsafe.Pointer, a, b uint64) uint64{
	OpLoad: func(c *internalshm.Cell, p unsafe.Pointer, _, _ uint64) uint64 { return c.Load(p) },
	OpStore: func(c *internalshm.Cell, p unsafe.Pointer, a, _ uint64) uint64 {
		c.Store(p, a)
		return a
	},
	OpExchange:        func(c *internalshm.Cell, p unsafe.Pointer, a, _ uint64) uint64 { return c.Exchange(p, a) },
	OpCompareExchange: func(c *internalshm.Cell, p unsafe.Pointer, a, b uint64) uint64 { return c.CompareExchange(p, a, b) },
	OpAdd:             func(c *internalshm.Cell, p unsafe.Pointer, a, _ uint64) uint64 { return c.FetchAdd(p, a) },
	OpSub:             func(c *internalshm.Cell, p unsafe.Pointer, a, _ uint64) uint64 { return c.FetchSub(p, a) },
	OpAnd:             func(c *internalshm.Cell, p unsafe.Pointer, a, _ uint64) uint64 { return c.FetchAnd(p, a) },
	OpOr:              func(c *internalshm.Cell, p unsafe.Pointer, a, _ uint64) uint64 { return c.FetchOr(p, a) },
	OpXor:             func(c *internalshm.Cell, p unsafe.Pointer, a, _ uint64) uint64 { return c.FetchXor(p, a) },
}

// operands are the converted value operands of one call. stored is what Store
// hands back: the converted operand before truncation to the cell.
type operands struct {
	bits   [2]uint64
	stored Result
}

// coerceOperands converts raw in order, expected before replacement.
func coerceOperands(c Coercer, op Op, kind shm.ElementKind, raw []any) (operands, error) {
	var out operands
	e := entryOf(kind)
	for i, v := range raw {
		if kind.IsWide() {
			w, err := c.ToWideInteger(v)
			if err != nil {
				return out, err
			}
			out.bits[i] = w.Pack()
			if op == OpStore {
				out.stored = wideResult(kind, w)
			}
			continue
		}
		n, err := c.ToIntegerValue(v)
		if err != nil {
			return out, err
		}
		out.bits[i] = uint64(uint32(n.Bits)) & e.mask
		if op == OpStore {
			out.stored = integerResult(kind, n)
		}
	}
	return out, nil
}

// perform converts the operands of op, runs it with cells on element index of
// the view starting at base, and materializes the result. The inline path and
// the general runtime both end up here with their own cell table.
func perform(cells *[4]internalshm.Cell, model ObjectModel, c Coercer, op Op, candidate any,
	kind shm.ElementKind, base unsafe.Pointer, index uint64, raw []any) (Result, error) {
	ops, err := coerceOperands(c, op, kind, raw)
	if err != nil {
		return Result{}, err
	}
	assertAtomicIndex(model, candidate, index)

	e := entryOf(kind)
	addr := unsafe.Add(base, uintptr(index)<<kind.Shift())
	bits := opTable[op](&cells[e.cell], addr, ops.bits[0], ops.bits[1])
	if op == OpStore {
		return ops.stored, nil
	}
	return materialize(kind, bits), nil
}

// materialize turns the raw bits of a cell into a Result: a 32-bit word for
// narrow kinds, two halves for wide ones.
func materialize(kind shm.ElementKind, bits uint64) Result {
	if kind.IsWide() {
		return wideResult(kind, Unpack(bits))
	}
	return compactResult(kind, uint32(bits))
}
