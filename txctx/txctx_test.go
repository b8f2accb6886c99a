package txctx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T) *mdbx.Env {
	t.Helper()
	env, err := mdbx.NewEnv()
	require.NoError(t, err)
	require.NoError(t, env.SetMapSize(64<<20))
	require.NoError(t, env.SetMaxDBs(1))
	path := filepath.Join(t.TempDir(), "txctx.mdbx")
	require.NoError(t, env.Open(path, mdbx.Create|mdbx.NoSubdir|mdbx.WriteMap, 0644))
	t.Cleanup(func() { env.Close() })
	return env
}

func TestDoOpensAndCommitsFreshTransaction(t *testing.T) {
	env := newTestEnv(t)

	var sawWrite bool
	err := Do(context.Background(), env, true, func(ctx context.Context) error {
		_, write, ok := Current(ctx)
		require.True(t, ok)
		sawWrite = write
		return nil
	})
	require.NoError(t, err)
	require.True(t, sawWrite)
}

func TestDoAbortsOnError(t *testing.T) {
	env := newTestEnv(t)
	boom := context.Canceled

	err := Do(context.Background(), env, true, func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestDoReusesOuterWriteTransaction(t *testing.T) {
	env := newTestEnv(t)

	outerCalls := 0
	err := Do(context.Background(), env, true, func(ctx context.Context) error {
		outerTxn, _, _ := Current(ctx)
		outerCalls++

		return Do(ctx, env, true, func(inner context.Context) error {
			innerTxn, write, ok := Current(inner)
			require.True(t, ok)
			require.True(t, write)
			require.Same(t, outerTxn, innerTxn)
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, 1, outerCalls)
}

func TestDoReadNestsInsideWrite(t *testing.T) {
	env := newTestEnv(t)

	err := Do(context.Background(), env, true, func(ctx context.Context) error {
		outerTxn, _, _ := Current(ctx)
		return Do(ctx, env, false, func(inner context.Context) error {
			innerTxn, _, _ := Current(inner)
			require.Same(t, outerTxn, innerTxn)
			return nil
		})
	})
	require.NoError(t, err)
}
