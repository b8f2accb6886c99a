package tuplestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesEmptyStore(t *testing.T) {
	st, _ := openTestStore(t)
	require.Equal(t, uint64(1), st.nextPK)
}

func TestOpenWithMaxReadersOneForcesLockOff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.mdbx")
	st, err := Open(path, WithMapSize(64<<20), WithMaxReaders(1))
	require.NoError(t, err)
	defer st.Close()

	mustAppend(t, st, RowInput{Iden: idenN(1), Prop: []byte("foo"), Value: *ival(1), Time: 10})
	rows, err := st.GetByIden(context.Background(), idenN(1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDurabilityAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.mdbx")

	st, err := Open(path, WithMapSize(64<<20))
	require.NoError(t, err)
	mustAppend(t, st,
		RowInput{Iden: idenN(1), Prop: []byte("foo"), Value: *ival(1), Time: 10},
		RowInput{Iden: idenN(2), Prop: []byte("foo"), Value: *ival(2), Time: 20},
	)
	require.NoError(t, st.Flush())
	require.NoError(t, st.Close())

	reopened, err := Open(path, WithMapSize(64<<20))
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(3), reopened.nextPK)

	rows, err := reopened.GetByIden(context.Background(), idenN(1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Value.Equal(*ival(1)))
}
