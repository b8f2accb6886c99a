package tuplestore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexdb/tuplestore/codec"
)

// TestEndToEndScenario mirrors the spec's literal worked example: two idens
// each carrying a "foo" property at distinct values and timestamps.
func TestEndToEndScenario(t *testing.T) {
	st, _ := openTestStore(t)

	idenAA := strings.Repeat("aa", 16)
	idenBB := strings.Repeat("bb", 16)

	mustAppend(t, st,
		RowInput{Iden: idenAA, Prop: []byte("foo"), Value: *ival(1), Time: 10},
		RowInput{Iden: idenAA, Prop: []byte("foo"), Value: *ival(-5), Time: 20},
		RowInput{Iden: idenBB, Prop: []byte("foo"), Value: *ival(1), Time: 30},
	)

	size, err := st.SizeByProp(context.Background(), []byte("foo"), nil, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 3, size)

	byValue, err := st.GetByProp(context.Background(), []byte("foo"), ival(1), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, byValue, 2)

	n, err := st.DeleteByIdenProp(context.Background(), idenAA, []byte("foo"), ival(1))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	size, err = st.SizeByProp(context.Background(), []byte("foo"), nil, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, size)
}

// TestLargeStringHashCollisionExactness exercises a ≥128-byte string value,
// which lands in the hashed pvt region; GetByProp must still only return
// rows whose full value matches, not every row with a matching hash.
func TestLargeStringHashCollisionExactness(t *testing.T) {
	st, _ := openTestStore(t)

	big1 := strings.Repeat("x", 200)
	big2 := strings.Repeat("y", 200)

	mustAppend(t, st,
		RowInput{Iden: idenN(1), Prop: []byte("blob"), Value: *sval(big1), Time: 1},
		RowInput{Iden: idenN(2), Prop: []byte("blob"), Value: *sval(big2), Time: 2},
	)

	vkey1 := codec.EncodeValueKey(*sval(big1))
	require.True(t, codec.IsHashedKey(vkey1))

	rows, err := st.GetByProp(context.Background(), []byte("blob"), sval(big1), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Value.Equal(*sval(big1)))

	size, err := st.SizeByProp(context.Background(), []byte("blob"), sval(big1), nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, size)
}

// TestGetByRangeSpanningZeroHasNoBoundaryDuplicate exercises the split-range
// algorithm across the negative/non-negative seam.
func TestGetByRangeSpanningZeroHasNoBoundaryDuplicate(t *testing.T) {
	st, _ := openTestStore(t)

	for i := int64(-3); i <= 3; i++ {
		mustAppend(t, st, RowInput{Iden: idenN(uint64(i + 10)), Prop: []byte("n"), Value: *ival(i), Time: i})
	}

	rows, err := st.GetByRange(context.Background(), []byte("n"), -3, 3, nil)
	require.NoError(t, err)
	require.Len(t, rows, 7)

	seen := map[int64]int{}
	for _, r := range rows {
		seen[r.Value.Int]++
	}
	for i := int64(-3); i <= 3; i++ {
		require.Equal(t, 1, seen[i], "value %d must appear exactly once", i)
	}
}

func TestGetByRangeOrdersAscending(t *testing.T) {
	st, _ := openTestStore(t)

	for i := int64(-2); i <= 2; i++ {
		mustAppend(t, st, RowInput{Iden: idenN(uint64(i + 10)), Prop: []byte("n"), Value: *ival(i), Time: 0})
	}

	rows, err := st.GetByRange(context.Background(), []byte("n"), -2, 2, nil)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, r := range rows {
		require.Equal(t, int64(i)-2, r.Value.Int)
	}
}

func TestGetByGeAndLe(t *testing.T) {
	st, _ := openTestStore(t)

	for i := int64(-2); i <= 2; i++ {
		mustAppend(t, st, RowInput{Iden: idenN(uint64(i + 10)), Prop: []byte("n"), Value: *ival(i), Time: 0})
	}

	ge, err := st.GetByGe(context.Background(), []byte("n"), 0, nil)
	require.NoError(t, err)
	require.Len(t, ge, 3)

	le, err := st.GetByLe(context.Background(), []byte("n"), 0, nil)
	require.NoError(t, err)
	require.Len(t, le, 3)

	lt, err := st.GetByLt(context.Background(), []byte("n"), 0, nil)
	require.NoError(t, err)
	require.Len(t, lt, 2)
}

func TestGetByIdenPropValueFilter(t *testing.T) {
	st, _ := openTestStore(t)
	iden := idenN(1)
	mustAppend(t, st,
		RowInput{Iden: iden, Prop: []byte("foo"), Value: *ival(1), Time: 10},
		RowInput{Iden: iden, Prop: []byte("foo"), Value: *ival(2), Time: 20},
	)

	rows, err := st.GetByIdenProp(context.Background(), iden, []byte("foo"), ival(2))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(20), rows[0].Time)
}

func TestLimitTruncatesResults(t *testing.T) {
	st, _ := openTestStore(t)
	for i := int64(0); i < 5; i++ {
		mustAppend(t, st, RowInput{Iden: idenN(uint64(i + 1)), Prop: []byte("foo"), Value: *ival(1), Time: i})
	}

	limit := 2
	rows, err := st.GetByProp(context.Background(), []byte("foo"), nil, &limit, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
