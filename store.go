// Package tuplestore is a transactional, multi-index tuple store. It
// persists quadruples of the form (iden, prop, value, timestamp) atop an
// embedded ordered key/value engine (mdbx, a libmdbx binding in the LMDB
// family) providing ACID semantics via read/write transactions over
// memory-mapped B+-tree tables.
//
// A Store keeps three secondary indices (by iden+prop, by prop+value+time,
// by prop+time) in lockstep with a primary table so that point lookups,
// equality-by-property, and range-by-property queries can all be served
// without a table scan.
package tuplestore

import (
	"context"
	"math"
	"sync"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cortexdb/tuplestore/codec"
	"github.com/cortexdb/tuplestore/internal/safemath"
	"github.com/cortexdb/tuplestore/txctx"
)

// MaxPK is the largest primary key value the store will assign.
const MaxPK = uint64(math.MaxInt64)

// Store owns the mdbx environment, its four DBIs, and the in-memory
// next-primary-key counter.
type Store struct {
	env *mdbx.Env
	log *zap.Logger

	rows mdbx.DBI
	ip   mdbx.DBI
	pvt  mdbx.DBI
	pt   mdbx.DBI

	pkMu   sync.Mutex
	nextPK uint64
}

// Open creates or opens a Store at path, applying opts over the defaults
// documented on each With* option.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxReaders == 1 {
		cfg.lock = false
	}

	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "tuplestore: create environment")
	}
	if err := env.SetMapSize(cfg.mapSize); err != nil {
		return nil, errors.Wrap(err, "tuplestore: set map size")
	}
	// rows, ip, pvt, pt.
	if err := env.SetMaxDBs(4); err != nil {
		return nil, errors.Wrap(err, "tuplestore: set max dbs")
	}
	if err := env.SetMaxReaders(uint(cfg.maxReaders)); err != nil {
		return nil, errors.Wrap(err, "tuplestore: set max readers")
	}

	flags := uint(mdbx.Create | mdbx.NoSubdir | mdbx.WriteMap)
	if !cfg.durableMetadata {
		flags |= mdbx.NoMetaSync
	}
	if !cfg.durableData {
		flags |= mdbx.SafeNoSync
	}
	if !cfg.lock {
		flags |= mdbx.NoLock
	}

	if err := env.Open(path, flags, 0644); err != nil {
		return nil, errors.Wrap(err, "tuplestore: open environment")
	}

	s := &Store{env: env, log: cfg.logger}
	if err := s.initTables(); err != nil {
		env.Close()
		return nil, err
	}
	if err := s.writeSentinels(); err != nil {
		env.Close()
		return nil, err
	}

	largest, err := s.largestPK()
	if err != nil {
		env.Close()
		return nil, err
	}
	if largest == MaxPK {
		env.Close()
		return nil, s.limitf("primary key space exhausted")
	}
	s.nextPK = largest + 1

	return s, nil
}

func (s *Store) initTables() error {
	return s.env.Update(func(txn *mdbx.Txn) error {
		var err error
		if s.rows, err = txn.OpenDBI(tableRows, mdbx.Create|mdbx.IntegerKey); err != nil {
			return errors.Wrap(err, "tuplestore: open rows table")
		}
		if s.ip, err = txn.OpenDBI(tableIP, mdbx.Create|mdbx.DupSort); err != nil {
			return errors.Wrap(err, "tuplestore: open ip table")
		}
		if s.pvt, err = txn.OpenDBI(tablePVT, mdbx.Create|mdbx.DupSort); err != nil {
			return errors.Wrap(err, "tuplestore: open pvt table")
		}
		if s.pt, err = txn.OpenDBI(tablePT, mdbx.Create|mdbx.DupSort); err != nil {
			return errors.Wrap(err, "tuplestore: open pt table")
		}
		return nil
	})
}

// writeSentinels idempotently ensures every index table carries its
// terminal (and, for pvt, leading) sentinel entry.
func (s *Store) writeSentinels() error {
	return s.env.Update(func(txn *mdbx.Txn) error {
		for _, dbi := range []mdbx.DBI{s.ip, s.pvt, s.pt} {
			if err := txn.Put(dbi, codec.MaxIndexKey, []byte{}, 0); err != nil {
				return errors.Wrap(err, "tuplestore: write trailing sentinel")
			}
		}
		if err := txn.Put(s.pvt, codec.MinIndexKey, []byte{}, 0); err != nil {
			return errors.Wrap(err, "tuplestore: write pvt leading sentinel")
		}
		return nil
	})
}

func (s *Store) largestPK() (uint64, error) {
	var largest uint64
	err := s.env.View(func(txn *mdbx.Txn) error {
		cur, err := txn.OpenCursor(s.rows)
		if err != nil {
			return errors.Wrap(err, "tuplestore: open rows cursor")
		}
		defer cur.Close()

		key, _, err := cur.Get(nil, nil, mdbx.Last)
		if mdbx.IsNotFound(err) {
			largest = 0
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "tuplestore: seek last row")
		}
		pk, err := codec.DecodePKKey(key)
		if err != nil {
			return s.corruptf("decode last row key: %v", err)
		}
		largest = pk
		return nil
	})
	return largest, err
}

// Flush syncs the environment to disk.
func (s *Store) Flush() error {
	return s.env.Sync(true, false)
}

// Close releases the store's resources. The Store must not be used
// afterwards.
func (s *Store) Close() error {
	s.env.Close()
	return nil
}

// begin is a convenience wrapper around txctx.Do bound to this store's
// environment.
func (s *Store) begin(ctx context.Context, write bool, fn func(ctx context.Context, txn *mdbx.Txn) error) error {
	return txctx.Do(ctx, s.env, write, func(ctx context.Context) error {
		txn, _, ok := txctx.Current(ctx)
		if !ok {
			return s.corruptf("no transaction bound after txctx.Do")
		}
		return fn(ctx, txn)
	})
}

// allocatePKs reserves n consecutive primary keys, returning the first one.
// Must be called with a write transaction active; the store's own mutex
// serializes the in-memory counter update underneath mdbx's single-writer
// lock.
func (s *Store) allocatePKs(n int) (uint64, error) {
	s.pkMu.Lock()
	defer s.pkMu.Unlock()

	first := s.nextPK
	last, overflow := safemath.SafeAdd(first, uint64(n)-1)
	if overflow || last > MaxPK {
		return 0, s.limitf("primary key space exhausted")
	}
	next, overflow := safemath.SafeAdd(last, 1)
	if overflow {
		return 0, s.limitf("primary key space exhausted")
	}
	s.nextPK = next
	return first, nil
}
