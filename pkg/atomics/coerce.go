package atomics

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// MaxSafeInteger is the largest index an index conversion accepts.
const MaxSafeInteger = 1<<53 - 1

// Coercer converts caller supplied values. Conversions may call back into user
// code (NumberValuer, BigIntValuer) which may in turn use the Engine.
type Coercer interface {
	ToIndexInteger(v any) (uint64, error)
	ToIntegerValue(v any) (IntegerValue, error)
	ToWideInteger(v any) (WideValue, error)
}

// NumberValuer is implemented by host values that convert to a number.
type NumberValuer interface {
	NumberValue() (float64, error)
}

// BigIntValuer is implemented by host values that convert to an arbitrary
// precision integer.
type BigIntValuer interface {
	BigIntValue() (*big.Int, error)
}

// IntegerValue is a value converted for a narrow view. Bits holds it reduced
// modulo 2^64; Exact is set only when that reduction changed it.
type IntegerValue struct {
	Bits  int64
	Exact *big.Int
}

// BigInt returns the value before reduction.
func (v IntegerValue) BigInt() *big.Int {
	if v.Exact != nil {
		return new(big.Int).Set(v.Exact)
	}
	return big.NewInt(v.Bits)
}

var (
	errNegativeIndex    = errors.New("index is negative")
	errNonIntegralIndex = errors.New("index is not an integer")
	errIndexTooLarge    = errors.New("index exceeds 2^53-1")
	errNumberToWide     = errors.New("a number cannot be converted to a wide integer")
	errMissingWide      = errors.New("nil cannot be converted to a wide integer")
)

// DefaultCoercer accepts nil, bools, Go integers and floats (named types
// included), numeric strings, *big.Int, WideValue, Result and host valuers.
//
// Indexes must be integral and within [0, 2^53-1]; nil is index 0. Integer
// values are truncated toward zero and reduced modulo 2^64 with the exact value
// kept alongside; NaN and infinities become 0. Wide values reject floats and reduce big integers modulo 2^64.
type DefaultCoercer struct{}

var _ Coercer = DefaultCoercer{}

func (DefaultCoercer) ToIndexInteger(v any) (uint64, error) {
	n, err := primitive(v)
	if err != nil {
		return 0, err
	}
	switch n.kind {
	case numInt:
		if n.i < 0 {
			return 0, errNegativeIndex
		}
		return checkIndex(uint64(n.i))
	case numUint:
		return checkIndex(n.u)
	case numBig:
		if n.b.Sign() < 0 {
			return 0, errNegativeIndex
		}
		if !n.b.IsUint64() {
			return 0, errIndexTooLarge
		}
		return checkIndex(n.b.Uint64())
	}
	f := n.f
	switch {
	case math.IsNaN(f) || math.Trunc(f) != f:
		return 0, errNonIntegralIndex
	case f < 0:
		return 0, errNegativeIndex
	case f > MaxSafeInteger:
		return 0, errIndexTooLarge
	}
	return uint64(f), nil
}

func checkIndex(u uint64) (uint64, error) {
	if u > MaxSafeInteger {
		return 0, errIndexTooLarge
	}
	return u, nil
}

func (DefaultCoercer) ToIntegerValue(v any) (IntegerValue, error) {
	n, err := primitive(v)
	if err != nil {
		return IntegerValue{}, err
	}
	switch n.kind {
	case numInt:
		return IntegerValue{Bits: n.i}, nil
	case numUint:
		if n.u > math.MaxInt64 {
			return IntegerValue{Bits: int64(n.u), Exact: new(big.Int).SetUint64(n.u)}, nil
		}
		return IntegerValue{Bits: int64(n.u)}, nil
	case numBig:
		if n.b.IsInt64() {
			return IntegerValue{Bits: n.b.Int64()}, nil
		}
		return IntegerValue{Bits: WideFromBigInt(n.b).Int64(), Exact: new(big.Int).Set(n.b)}, nil
	}
	return floatToInteger(n.f), nil
}

func (DefaultCoercer) ToWideInteger(v any) (WideValue, error) {
	if v == nil {
		return WideValue{}, typeError(ErrUnsupportedValue, errMissingWide)
	}
	if bv, ok := v.(BigIntValuer); ok {
		b, err := bv.BigIntValue()
		if err != nil {
			return WideValue{}, err
		}
		v = b
	}
	n, err := primitive(v)
	if err != nil {
		return WideValue{}, err
	}
	switch n.kind {
	case numInt:
		return WideFromInt64(n.i), nil
	case numUint:
		return Unpack(n.u), nil
	case numBig:
		return WideFromBigInt(n.b), nil
	}
	return WideValue{}, typeError(ErrUnsupportedValue, fmt.Errorf("%v: %w", n.f, errNumberToWide))
}

// floatToInteger truncates toward zero; NaN and infinities become 0.
func floatToInteger(f float64) IntegerValue {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return IntegerValue{}
	}
	f = math.Trunc(f)
	if f >= -(1<<63) && f < 1<<63 {
		return IntegerValue{Bits: int64(f)}
	}
	exact, _ := big.NewFloat(f).Int(nil)
	return IntegerValue{Bits: WideFromBigInt(exact).Int64(), Exact: exact}
}

type numberKind uint8

const (
	numInt numberKind = iota
	numUint
	numFloat
	numBig
)

// number is a value after host conversion; the field matching kind is set.
type number struct {
	kind numberKind
	i    int64
	u    uint64
	f    float64
	b    *big.Int
}

func primitive(v any) (number, error) {
	switch x := v.(type) {
	case nil:
		return number{kind: numInt}, nil
	case int:
		return number{kind: numInt, i: int64(x)}, nil
	case int64:
		return number{kind: numInt, i: x}, nil
	case uint64:
		return number{kind: numUint, u: x}, nil
	case float64:
		return number{kind: numFloat, f: x}, nil
	case bool:
		if x {
			return number{kind: numInt, i: 1}, nil
		}
		return number{kind: numInt}, nil
	case string:
		return parseNumber(x), nil
	case *big.Int:
		if x == nil {
			return number{}, typeError(ErrUnsupportedValue, errors.New("nil *big.Int"))
		}
		return number{kind: numBig, b: x}, nil
	case WideValue:
		return number{kind: numUint, u: x.Uint64()}, nil
	case Result:
		if x.IsWide() && !x.Kind().Signed() {
			return number{kind: numUint, u: x.Uint64()}, nil
		}
		return number{kind: numInt, i: x.Int64()}, nil
	case NumberValuer:
		f, err := x.NumberValue()
		if err != nil {
			return number{}, err
		}
		return number{kind: numFloat, f: f}, nil
	case BigIntValuer:
		b, err := x.BigIntValue()
		if err != nil {
			return number{}, err
		}
		return primitive(b)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: numInt, i: rv.Int()}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{kind: numUint, u: rv.Uint()}, nil
	case reflect.Float32, reflect.Float64:
		return number{kind: numFloat, f: rv.Float()}, nil
	}
	return number{}, typeError(ErrUnsupportedValue, fmt.Errorf("unsupported type %T", v))
}

// parseNumber reads integers exactly, unsigned 0x, 0o and 0b literals
// included, and anything else as a decimal float. The empty string is 0;
// garbage, digit separators and signed prefixed literals are NaN.
func parseNumber(s string) number {
	nan := number{kind: numFloat, f: math.NaN()}
	s = strings.TrimSpace(s)
	if s == "" {
		return number{kind: numInt}
	}
	if strings.ContainsRune(s, '_') {
		return nan
	}
	if len(s) > 2 && s[0] == '0' && strings.ContainsRune("xXoObB", rune(s[1])) {
		if b, ok := new(big.Int).SetString(s, 0); ok {
			return number{kind: numBig, b: b}
		}
		return nan
	}
	if b, ok := new(big.Int).SetString(s, 10); ok {
		return number{kind: numBig, b: b}
	}
	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 {
		return nan
	}
	if body != "Infinity" && strings.IndexFunc(body, isNonExponentLetter) >= 0 {
		return nan
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return nan
	}
	return number{kind: numFloat, f: f}
}

func isNonExponentLetter(r rune) bool {
	return r != 'e' && r != 'E' && unicode.IsLetter(r)
}
