// Package txctx provides the store's "current transaction" scoping: a
// context-carried substitute for the reference cortex's thread-local
// transaction map. Go has no supported thread-local storage, and the
// language idiom for "ambient state bound to a call chain" is a value
// carried on a context.Context, so that is what this package uses instead
// of a goroutine-id-keyed map.
package txctx

import (
	"context"

	"github.com/erigontech/mdbx-go/mdbx"
)

type txnKey struct{}

// bound is the transaction value carried on a context.
type bound struct {
	txn   *mdbx.Txn
	write bool
}

// WithTxn returns a context carrying txn as the current transaction.
func WithTxn(ctx context.Context, txn *mdbx.Txn, write bool) context.Context {
	return context.WithValue(ctx, txnKey{}, &bound{txn: txn, write: write})
}

// Current returns the transaction bound to ctx, if any, and whether it is a
// write transaction.
func Current(ctx context.Context) (txn *mdbx.Txn, write bool, ok bool) {
	b, ok := ctx.Value(txnKey{}).(*bound)
	if !ok {
		return nil, false, false
	}
	return b.txn, b.write, true
}

// Do runs fn with a transaction bound to the context it is passed.
//
// If ctx already carries a write transaction, it is reused verbatim and fn's
// returned error is simply propagated: the outermost scope that opened the
// transaction owns its commit/abort, exactly as the reference cortex yields
// the outer handle and lets only the top-level scope close it. A read-only
// request nested inside an existing write scope also reuses the write
// transaction (it can read through it), matching that reuse rule.
//
// Otherwise Do opens a fresh transaction (write if requested), runs fn, and
// commits on a nil return or aborts otherwise.
func Do(ctx context.Context, env *mdbx.Env, write bool, fn func(ctx context.Context) error) error {
	if existing, existingWrite, ok := Current(ctx); ok && existingWrite {
		return fn(WithTxn(ctx, existing, existingWrite))
	}

	flags := uint(0)
	if !write {
		flags = mdbx.Readonly
	}
	txn, err := env.BeginTxn(nil, flags)
	if err != nil {
		return err
	}

	scoped := WithTxn(ctx, txn, write)
	if err := fn(scoped); err != nil {
		txn.Abort()
		return err
	}
	if _, err := txn.Commit(); err != nil {
		return err
	}
	return nil
}
