package atomics

import (
	"fmt"
	"strings"
)

// Op is an atomic operation.
type Op uint8

const (
	OpLoad Op = iota
	OpStore
	OpExchange
	OpCompareExchange
	OpAdd
	OpSub
	OpAnd
	OpOr
	OpXor

	opCount
)

var opNames = [opCount]string{
	OpLoad:            "load",
	OpStore:           "store",
	OpExchange:        "exchange",
	OpCompareExchange: "compareExchange",
	OpAdd:             "add",
	OpSub:             "sub",
	OpAnd:             "and",
	OpOr:              "or",
	OpXor:             "xor",
}

// Ops lists every operation.
var Ops = []Op{OpLoad, OpStore, OpExchange, OpCompareExchange, OpAdd, OpSub, OpAnd, OpOr, OpXor}

func (o Op) Valid() bool { return o < opCount }

func (o Op) String() string {
	if !o.Valid() {
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
	return opNames[o]
}

// Operands is the number of value operands o takes.
func (o Op) Operands() int {
	switch o {
	case OpLoad:
		return 0
	case OpCompareExchange:
		return 2
	default:
		return 1
	}
}

// ParseOp accepts the names printed by Op.String, case-insensitively.
func ParseOp(s string) (Op, error) {
	for o := Op(0); o < opCount; o++ {
		if strings.EqualFold(opNames[o], s) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown atomic operation %q", s)
}

// OpSet is a set of operations.
type OpSet uint16

const AllOps OpSet = 1<<opCount - 1

// NewOpSet returns the set holding ops.
func NewOpSet(ops ...Op) OpSet {
	var s OpSet
	for _, o := range ops {
		s |= 1 << o
	}
	return s
}

func (s OpSet) Has(o Op) bool { return o.Valid() && s&(1<<o) != 0 }

func (s OpSet) String() string {
	if s == AllOps {
		return "all"
	}
	names := make([]string, 0, opCount)
	for o := Op(0); o < opCount; o++ {
		if s.Has(o) {
			names = append(names, o.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}
