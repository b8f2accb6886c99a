package tuplestore

import (
	"context"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"

	"github.com/cortexdb/tuplestore/codec"
)

// RowInput is a caller-supplied row awaiting a primary key.
type RowInput struct {
	Iden  string // 32 lowercase hex characters
	Prop  []byte
	Value codec.Value
	Time  int64
}

// Row is a fully materialized, stored row.
type Row struct {
	Iden  string
	Prop  []byte
	Value codec.Value
	Time  int64
}

// encodedRow carries every encoding Append needs for one row, computed once
// up front.
type encodedRow struct {
	iden     [codec.IdenSize]byte
	propEnc  []byte
	valueEnc []byte
	vkeyEnc  []byte
	timeEnc  []byte
}

func (s *Store) encodeRowInput(r RowInput) (encodedRow, error) {
	var enc encodedRow

	iden, err := codec.EncodeIden(r.Iden)
	if err != nil {
		return enc, errors.Wrapf(ErrBadInput, "row iden %q: %v", r.Iden, err)
	}
	if r.Value.Kind == codec.KindInt && (r.Value.Int < codec.MinIntVal || r.Value.Int > codec.MaxIntVal) {
		return enc, s.limitf("value %d outside representable integer range", r.Value.Int)
	}
	propEnc, err := codec.EncodeProp(r.Prop)
	if err != nil {
		return enc, s.limitf("property %q: %v", r.Prop, err)
	}

	enc.iden = iden
	enc.propEnc = propEnc
	enc.valueEnc = codec.EncodeValueValue(r.Value)
	enc.vkeyEnc = codec.EncodeValueKey(r.Value)
	enc.timeEnc = codec.EncodeTimestamp(r.Time)
	return enc, nil
}

// Append inserts rows atomically: every row in the batch is assigned a
// strictly-increasing primary key and the primary row plus its three index
// entries are written in a single write transaction. Either the whole batch
// lands or none of it does.
func (s *Store) Append(ctx context.Context, rows []RowInput) error {
	if len(rows) == 0 {
		return nil
	}

	encs := make([]encodedRow, len(rows))
	for i, r := range rows {
		enc, err := s.encodeRowInput(r)
		if err != nil {
			return err
		}
		encs[i] = enc
	}

	return s.begin(ctx, true, func(ctx context.Context, txn *mdbx.Txn) error {
		// Reserved inside the write transaction, not before it: mdbx allows
		// only one writer at a time, so reserving here keeps allocation
		// order identical to commit order even when multiple goroutines
		// call Append concurrently.
		firstPK, err := s.allocatePKs(len(rows))
		if err != nil {
			return err
		}

		rowsCur, err := txn.OpenCursor(s.rows)
		if err != nil {
			return errors.Wrap(err, "tuplestore: open rows cursor")
		}
		defer rowsCur.Close()

		ipCur, err := txn.OpenCursor(s.ip)
		if err != nil {
			return errors.Wrap(err, "tuplestore: open ip cursor")
		}
		defer ipCur.Close()

		pvtCur, err := txn.OpenCursor(s.pvt)
		if err != nil {
			return errors.Wrap(err, "tuplestore: open pvt cursor")
		}
		defer pvtCur.Close()

		ptCur, err := txn.OpenCursor(s.pt)
		if err != nil {
			return errors.Wrap(err, "tuplestore: open pt cursor")
		}
		defer ptCur.Close()

		for i, enc := range encs {
			pk := firstPK + uint64(i)
			pkKeyEnc := codec.EncodePKKey(pk)
			pkValEnc := codec.EncodePKValue(pk)

			payload := codec.EncodeRow(enc.iden, enc.propEnc, enc.valueEnc, enc.timeEnc)
			if err := rowsCur.Put(pkKeyEnc, payload, mdbx.Append); err != nil {
				if mdbx.IsKeyExists(err) {
					return s.corruptf("pk %d already present in rows table", pk)
				}
				return errors.Wrap(err, "tuplestore: insert row")
			}

			ipKey := append(append([]byte{}, enc.iden[:]...), enc.propEnc...)
			if err := ipCur.Put(ipKey, pkValEnc, 0); err != nil {
				return errors.Wrap(err, "tuplestore: insert ip index entry")
			}

			pvtKey := append(append(append([]byte{}, enc.propEnc...), enc.vkeyEnc...), enc.timeEnc...)
			if err := pvtCur.Put(pvtKey, pkValEnc, 0); err != nil {
				return errors.Wrap(err, "tuplestore: insert pvt index entry")
			}

			ptKey := append(append([]byte{}, enc.propEnc...), enc.timeEnc...)
			if err := ptCur.Put(ptKey, pkValEnc, 0); err != nil {
				return errors.Wrap(err, "tuplestore: insert pt index entry")
			}
		}
		return nil
	})
}
