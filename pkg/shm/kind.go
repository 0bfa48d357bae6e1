package shm

import (
	"fmt"
	"strings"
)

// ElementKind is the element type of a View.
type ElementKind uint8

const (
	KindInt8 ElementKind = iota
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	// The kinds below can back a View but never an atomic access.
	KindUint8Clamped
	KindFloat32
	KindFloat64

	kindCount
)

type kindInfo struct {
	name    string
	shift   uint
	signed  bool
	integer bool
}

var kinds = [kindCount]kindInfo{
	KindInt8:         {"int8", 0, true, true},
	KindUint8:        {"uint8", 0, false, true},
	KindInt16:        {"int16", 1, true, true},
	KindUint16:       {"uint16", 1, false, true},
	KindInt32:        {"int32", 2, true, true},
	KindUint32:       {"uint32", 2, false, true},
	KindInt64:        {"int64", 3, true, true},
	KindUint64:       {"uint64", 3, false, true},
	KindUint8Clamped: {"uint8clamped", 0, false, false},
	KindFloat32:      {"float32", 2, true, false},
	KindFloat64:      {"float64", 3, true, false},
}

// IntegerKinds lists the kinds atomic operations are defined for.
var IntegerKinds = []ElementKind{
	KindInt8, KindUint8, KindInt16, KindUint16,
	KindInt32, KindUint32, KindInt64, KindUint64,
}

func (k ElementKind) Valid() bool { return k < kindCount }

// Shift is log2 of the element size.
func (k ElementKind) Shift() uint { return kinds[k].shift }

func (k ElementKind) Size() uintptr { return 1 << kinds[k].shift }

func (k ElementKind) Signed() bool { return kinds[k].signed }

// IsInteger reports whether k is one of the eight atomic-capable kinds.
func (k ElementKind) IsInteger() bool { return k.Valid() && kinds[k].integer }

// IsWide reports whether k is a 64-bit integer kind.
func (k ElementKind) IsWide() bool { return k == KindInt64 || k == KindUint64 }

func (k ElementKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("ElementKind(%d)", uint8(k))
	}
	return kinds[k].name
}

// ParseElementKind is the inverse of ElementKind.String.
func ParseElementKind(s string) (ElementKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k := ElementKind(0); k < kindCount; k++ {
		if kinds[k].name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown element kind %q", s)
}
