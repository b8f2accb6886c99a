package tuplestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexdb/tuplestore/codec"
)

func openTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.mdbx")
	all := append([]Option{WithMapSize(64 << 20)}, opts...)
	st, err := Open(path, all...)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, path
}

// idenN renders n as a 32-character lowercase hex iden, so tests can build
// distinct idens without hand-writing hex strings.
func idenN(n uint64) string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = '0'
	}
	i := len(buf) - 1
	for n > 0 && i >= 0 {
		buf[i] = hexdigits[n%16]
		n /= 16
		i--
	}
	return string(buf)
}

func ival(i int64) *codec.Value {
	v := codec.IntValue(i)
	return &v
}

func sval(s string) *codec.Value {
	v := codec.StringValue([]byte(s))
	return &v
}

func mustAppend(t *testing.T, st *Store, rows ...RowInput) {
	t.Helper()
	require.NoError(t, st.Append(context.Background(), rows))
}
