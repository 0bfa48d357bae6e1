package atomics

import (
	"context"
	"errors"
	"math"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shm-atomics/pkg/shm"
)

func newView(t require.TestingT, kind shm.ElementKind, length uint64) *shm.View {
	r, err := shm.NewSharedRegion(int(length<<kind.Shift()) + 8)
	require.NoError(t, err)
	v, err := shm.NewView(r, kind, 0, length)
	require.NoError(t, err)
	return v
}

// truncate is what a cell of kind holds after storing v.
func truncate(kind shm.ElementKind, v int64) int64 {
	switch kind {
	case shm.KindInt8:
		return int64(int8(v))
	case shm.KindUint8:
		return int64(uint8(v))
	case shm.KindInt16:
		return int64(int16(v))
	case shm.KindUint16:
		return int64(uint16(v))
	case shm.KindInt32:
		return int64(int32(v))
	case shm.KindUint32:
		return int64(uint32(v))
	}
	return v
}

func apply(op Op, x, v int64) int64 {
	switch op {
	case OpAdd:
		return x + v
	case OpSub:
		return x - v
	case OpAnd:
		return x & v
	case OpOr:
		return x | v
	case OpXor:
		return x ^ v
	}
	panic(op.String())
}

var sampleValues = []int64{
	0, 1, -1, 0x7F, 0x80, 0xFF, 0x100, 300, -129, 0x7FFF, 0xFFFF,
	math.MaxInt32, math.MinInt32, 1<<32 + 5, 0x0123_4567_89AB_CDEF, math.MaxInt64, math.MinInt64,
}

type EngineTestSuite struct {
	suite.Suite
	strategy Strategy
	engine   *Engine
}

func (s *EngineTestSuite) SetupTest() {
	config := DefaultConfig()
	config.Strategy = s.strategy
	e, err := New(config)
	s.Require().NoError(err)
	s.engine = e
}

func TestEngineInline(t *testing.T) {
	suite.Run(t, &EngineTestSuite{strategy: StrategyInline})
}

func TestEngineCallOut(t *testing.T) {
	suite.Run(t, &EngineTestSuite{strategy: StrategyCallOut})
}

func TestEngineAuto(t *testing.T) {
	suite.Run(t, &EngineTestSuite{strategy: StrategyAuto})
}

func (s *EngineTestSuite) TestLoadStoreLoad() {
	for _, kind := range shm.IntegerKinds {
		for _, v := range sampleValues {
			view := newView(s.T(), kind, 4)
			before, err := s.engine.Load(view, 2)
			s.Require().NoError(err)
			s.Zero(before.Int64())

			stored, err := s.engine.Store(view, 2, v)
			s.Require().NoError(err)
			s.Equal(kind.IsWide(), stored.IsWide())
			s.Equal(v, stored.Int64(), "%s store returns the converted operand", kind)

			got, err := s.engine.Load(view, 2)
			s.Require().NoError(err)
			s.Equal(truncate(kind, v), got.Int64(), "%s %d", kind, v)
			s.Equal(kind, got.Kind())

			for _, i := range []int{1, 3} {
				n, err := s.engine.Load(view, i)
				s.Require().NoError(err)
				s.Zero(n.Int64(), "neighbour %d of %s", i, kind)
			}
		}
	}
}

func (s *EngineTestSuite) TestExchange() {
	for _, kind := range shm.IntegerKinds {
		view := newView(s.T(), kind, 2)
		prev := int64(0)
		for _, v := range sampleValues {
			old, err := s.engine.Exchange(view, 1, v)
			s.Require().NoError(err)
			s.Equal(prev, old.Int64(), kind.String())
			now, err := s.engine.Load(view, 1)
			s.Require().NoError(err)
			s.Equal(truncate(kind, v), now.Int64())
			prev = truncate(kind, v)
		}
	}
}

func (s *EngineTestSuite) TestCompareExchange() {
	for _, kind := range shm.IntegerKinds {
		view := newView(s.T(), kind, 1)
		_, err := s.engine.Store(view, 0, -2)
		s.Require().NoError(err)
		held := truncate(kind, -2)

		old, err := s.engine.CompareExchange(view, 0, 5, 9)
		s.Require().NoError(err)
		s.Equal(held, old.Int64(), "miss returns the current value")
		now, _ := s.engine.Load(view, 0)
		s.Equal(held, now.Int64(), "miss leaves memory unchanged")

		old, err = s.engine.CompareExchange(view, 0, -2, 9)
		s.Require().NoError(err)
		s.Equal(held, old.Int64())
		now, _ = s.engine.Load(view, 0)
		s.Equal(int64(9), now.Int64())
	}
}

func (s *EngineTestSuite) TestFetchLaws() {
	xs := []int64{0, 1, -1, 0x7F, 0x1234, math.MinInt32, 0x0123_4567_89AB_CDEF}
	for _, kind := range shm.IntegerKinds {
		view := newView(s.T(), kind, 1)
		for _, op := range []Op{OpAdd, OpSub, OpAnd, OpOr, OpXor} {
			for _, x := range xs {
				for _, v := range xs {
					_, err := s.engine.Store(view, 0, x)
					s.Require().NoError(err)
					prev, err := s.engine.Execute(op, view, 0, v)
					s.Require().NoError(err)
					s.Equal(truncate(kind, x), prev.Int64(), "%s %s prev", kind, op)
					now, err := s.engine.Load(view, 0)
					s.Require().NoError(err)
					s.Equal(truncate(kind, apply(op, x, v)), now.Int64(), "%s %d %s %d", kind, x, op, v)
				}
			}
		}
	}
}

func (s *EngineTestSuite) TestIndexValidation() {
	view := newView(s.T(), shm.KindInt32, 8)
	for _, idx := range []any{-1, 1.5, 8, uint64(8), math.NaN(), math.Inf(1), "x", "0_1", "+0x1", "-0b0", big.NewInt(-3), float64(MaxSafeInteger + 1)} {
		_, err := s.engine.Load(view, idx)
		s.Require().Error(err, "%v", idx)
		s.True(errors.Is(err, ErrRangeKind), "%v: %v", idx, err)
		s.True(errors.Is(err, ErrInvalidAtomicAccessIndex))
		s.False(errors.Is(err, ErrTypeKind))
	}
	for _, idx := range []any{0, 7, nil, 7.0, "3", int8(2), -0.0} {
		_, err := s.engine.Store(view, idx, 1)
		s.NoError(err, "%v", idx)
	}
}

func (s *EngineTestSuite) TestTypeValidation() {
	plain, err := shm.NewRegion(64)
	s.Require().NoError(err)
	nonShared, err := shm.NewView(plain, shm.KindInt32, 0, 4)
	s.Require().NoError(err)

	shared, err := shm.NewSharedRegion(64)
	s.Require().NoError(err)
	var bad []any
	for _, k := range []shm.ElementKind{shm.KindFloat32, shm.KindFloat64, shm.KindUint8Clamped} {
		v, err := shm.NewView(shared, k, 0, 4)
		s.Require().NoError(err)
		bad = append(bad, v)
	}
	bad = append(bad, nil, 42, "view", (*shm.View)(nil), nonShared)

	for _, candidate := range bad {
		for _, op := range Ops {
			operands := make([]any, op.Operands())
			for i := range operands {
				operands[i] = 1
			}
			_, err := s.engine.Execute(op, candidate, 0, operands...)
			s.Require().Error(err, "%v", candidate)
			s.True(errors.Is(err, ErrTypeKind), "%v: %v", candidate, err)
			s.True(errors.Is(err, ErrNotIntegerSharedView))
		}
	}

	for _, k := range shm.IntegerKinds {
		v, err := shm.NewView(shared, k, 8, 4)
		s.Require().NoError(err)
		_, err = s.engine.Add(v, 3, 1)
		s.NoError(err, k.String())
	}
}

func (s *EngineTestSuite) TestClosedRegionIsRejected() {
	view := newView(s.T(), shm.KindUint32, 2)
	s.Require().NoError(view.Region().Close(context.Background()))
	_, err := s.engine.Load(view, 0)
	s.True(errors.Is(err, ErrTypeKind), "%v", err)
}

func (s *EngineTestSuite) TestWideRoundTrip() {
	values := []any{
		int64(0x1234_5678_9ABC_DEF0),
		int64(-0x0123_4567_89AB_CDEF),
		uint64(math.MaxUint64),
		WideValue{Low: 0xDEAD_BEEF, High: 0x0BAD_F00D},
		new(big.Int).Lsh(big.NewInt(1), 63),
		"0xFFFF0000FFFF0000",
	}
	for _, kind := range []shm.ElementKind{shm.KindInt64, shm.KindUint64} {
		view := newView(s.T(), kind, 3)
		for _, v := range values {
			stored, err := s.engine.Store(view, 1, v)
			s.Require().NoError(err)
			s.True(stored.IsWide())
			got, err := s.engine.Load(view, 1)
			s.Require().NoError(err)
			s.Equal(stored.Wide(), got.Wide(), "%s %v", kind, v)
			s.Equal(stored.BigInt(), got.BigInt())
			s.NotZero(got.Wide().High)
		}
	}

	view := newView(s.T(), shm.KindUint64, 1)
	_, err := s.engine.Store(view, 0, uint64(math.MaxUint64))
	s.Require().NoError(err)
	got, _ := s.engine.Load(view, 0)
	s.Equal("18446744073709551615", got.String())
	s.Equal(-1, got.BigInt().Cmp(new(big.Int).Lsh(big.NewInt(1), 64)))

	signed := newView(s.T(), shm.KindInt64, 1)
	_, err = s.engine.Store(signed, 0, uint64(math.MaxUint64))
	s.Require().NoError(err)
	got, _ = s.engine.Load(signed, 0)
	s.Equal("-1", got.String())
}

func (s *EngineTestSuite) TestStoreReturnsExactValue() {
	view := newView(s.T(), shm.KindInt32, 1)
	cases := []struct {
		in   any
		want string
		cell int64
	}{
		{uint64(math.MaxUint64), "18446744073709551615", -1},
		{1e30, "1000000000000000019884624838656", 0},
		{"-99999999999999999999", "-99999999999999999999", -1661992959},
		{int32(-7), "-7", -7},
	}
	for _, tc := range cases {
		stored, err := s.engine.Store(view, 0, tc.in)
		s.Require().NoError(err)
		s.Equal(tc.want, stored.String(), "%v", tc.in)
		s.Equal(tc.want, stored.BigInt().String(), "%v", tc.in)
		got, err := s.engine.Load(view, 0)
		s.Require().NoError(err)
		s.Equal(tc.cell, got.Int64(), "%v", tc.in)
	}
}

func (s *EngineTestSuite) TestWideRejectsNumbers() {
	view := newView(s.T(), shm.KindInt64, 1)
	_, err := s.engine.Add(view, 0, 1.5)
	s.True(errors.Is(err, ErrTypeKind), "%v", err)
	_, err = s.engine.Store(view, 0, nil)
	s.True(errors.Is(err, ErrTypeKind))
	got, _ := s.engine.Load(view, 0)
	s.Zero(got.Int64())
}

func (s *EngineTestSuite) TestSequentialFetchAdd() {
	const n = 1000
	view := newView(s.T(), shm.KindUint32, 1)
	for i := 0; i < n; i++ {
		_, err := s.engine.Add(view, 0, 1)
		s.Require().NoError(err)
	}
	got, _ := s.engine.Load(view, 0)
	s.Equal(int64(n), got.Int64())
}

func (s *EngineTestSuite) TestConcurrentFetchAdd() {
	const workers, iterations = 8, 1000
	for _, kind := range []shm.ElementKind{shm.KindInt8, shm.KindUint16, shm.KindInt32, shm.KindUint64} {
		view := newView(s.T(), kind, 4)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < iterations; i++ {
					// Neighbouring cells share a word for sub-word kinds.
					_, _ = s.engine.Add(view, 1, 1)
					_, _ = s.engine.Sub(view, 2, 1)
				}
			}()
		}
		wg.Wait()
		got, _ := s.engine.Load(view, 1)
		s.Equal(truncate(kind, workers*iterations), got.Int64(), kind.String())
		got, _ = s.engine.Load(view, 2)
		s.Equal(truncate(kind, -workers*iterations), got.Int64(), kind.String())
	}
}

type reentrantValue struct {
	engine *Engine
	view   *shm.View
}

func (r reentrantValue) NumberValue() (float64, error) {
	_, err := r.engine.Add(r.view, 0, 10)
	return 5, err
}

func (r reentrantValue) BigIntValue() (*big.Int, error) {
	_, err := r.engine.Add(r.view, 0, 10)
	return big.NewInt(5), err
}

func (s *EngineTestSuite) TestReentrantConversion() {
	for _, kind := range []shm.ElementKind{shm.KindInt16, shm.KindUint64} {
		view := newView(s.T(), kind, 1)
		prev, err := s.engine.Add(view, 0, reentrantValue{s.engine, view})
		s.Require().NoError(err)
		s.Equal(int64(10), prev.Int64(), "operand conversion runs before the primitive")
		got, _ := s.engine.Load(view, 0)
		s.Equal(int64(15), got.Int64())
	}
}

type failingValue struct{ err error }

func (f failingValue) NumberValue() (float64, error) { return 0, f.err }

func (s *EngineTestSuite) TestConversionErrorPropagates() {
	boom := errors.New("boom")
	view := newView(s.T(), shm.KindInt32, 1)
	_, err := s.engine.Store(view, 0, 7)
	s.Require().NoError(err)
	_, err = s.engine.Exchange(view, 0, failingValue{boom})
	s.ErrorIs(err, boom)
	got, _ := s.engine.Load(view, 0)
	s.Equal(int64(7), got.Int64())

	_, err = s.engine.Load(view, failingValue{boom})
	s.ErrorIs(err, boom)
	s.True(errors.Is(err, ErrRangeKind))
}

func (s *EngineTestSuite) TestOperandCount() {
	view := newView(s.T(), shm.KindInt32, 1)
	_, err := s.engine.Execute(OpCompareExchange, view, 0, 1)
	s.ErrorIs(err, ErrOperandCount)
	_, err = s.engine.Execute(OpLoad, view, 0, 1)
	s.ErrorIs(err, ErrOperandCount)
	_, err = s.engine.Execute(Op(42), view, 0)
	s.ErrorIs(err, ErrOperandCount)
}
