package tuplestore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexdb/tuplestore/codec"
)

func TestAppendAssignsMonotonicPKs(t *testing.T) {
	st, _ := openTestStore(t)

	mustAppend(t, st,
		RowInput{Iden: idenN(1), Prop: []byte("foo"), Value: *ival(1), Time: 10},
		RowInput{Iden: idenN(1), Prop: []byte("bar"), Value: *ival(2), Time: 11},
		RowInput{Iden: idenN(2), Prop: []byte("foo"), Value: *ival(3), Time: 12},
	)

	require.Equal(t, uint64(4), st.nextPK)
}

func TestAppendIsAtomicAcrossBatch(t *testing.T) {
	st, _ := openTestStore(t)

	err := st.Append(context.Background(), []RowInput{
		{Iden: idenN(1), Prop: []byte("foo"), Value: *ival(1), Time: 10},
		{Iden: "not-a-valid-iden", Prop: []byte("foo"), Value: *ival(1), Time: 10},
	})
	require.Error(t, err)

	rows, err := st.GetByIden(context.Background(), idenN(1))
	require.NoError(t, err)
	require.Empty(t, rows, "a rejected batch must not partially land")
}

func TestAppendRejectsOverlongProp(t *testing.T) {
	st, _ := openTestStore(t)

	longProp := bytes.Repeat([]byte("p"), codec.MaxPropLen+1)
	err := st.Append(context.Background(), []RowInput{
		{Iden: idenN(1), Prop: longProp, Value: *ival(1), Time: 10},
	})
	require.Error(t, err)
}

func TestAppendAcceptsMaxIntValue(t *testing.T) {
	st, _ := openTestStore(t)

	err := st.Append(context.Background(), []RowInput{
		{Iden: idenN(1), Prop: []byte("foo"), Value: codec.Value{Kind: codec.KindInt, Int: codec.MaxIntVal}, Time: 10},
	})
	require.NoError(t, err, "MaxIntVal itself is representable")

	rows, err := st.GetByIden(context.Background(), idenN(1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestAppendPopulatesAllIndices(t *testing.T) {
	st, _ := openTestStore(t)

	mustAppend(t, st, RowInput{Iden: idenN(1), Prop: []byte("foo"), Value: *ival(42), Time: 100})

	byIden, err := st.GetByIden(context.Background(), idenN(1))
	require.NoError(t, err)
	require.Len(t, byIden, 1)

	byIdenProp, err := st.GetByIdenProp(context.Background(), idenN(1), []byte("foo"), nil)
	require.NoError(t, err)
	require.Len(t, byIdenProp, 1)

	byProp, err := st.GetByProp(context.Background(), []byte("foo"), nil, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, byProp, 1)

	byRange, err := st.GetByRange(context.Background(), []byte("foo"), 0, 100, nil)
	require.NoError(t, err)
	require.Len(t, byRange, 1)
}

func TestAppendEmptyBatchIsNoop(t *testing.T) {
	st, _ := openTestStore(t)
	require.NoError(t, st.Append(context.Background(), nil))
	require.Equal(t, uint64(1), st.nextPK)
}
