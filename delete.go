package tuplestore

import (
	"bytes"
	"context"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"

	"github.com/cortexdb/tuplestore/codec"
)

// deleteRowAndIndices removes the row identified by pkValEnc (an
// EncodePKValue-encoded primary key) from the primary table, and removes
// the index entries pointed at by idenHint/propHint (when deleteIP is set)
// and by the row's own value/timestamp (when deletePVT/deletePT are set).
//
// If onlyIfValue is non-nil and does not match the row's stored value, the
// row is left untouched and deleteRowAndIndices returns false: the value
// check happens before any mutation, so a failed filter never partially
// deletes a row. Callers scanning a cursor over the row's own index must
// explicitly advance the cursor in that case, since nothing was deleted at
// the cursor's current position either.
func (s *Store) deleteRowAndIndices(
	txn *mdbx.Txn,
	pkValEnc []byte,
	idenHint *[codec.IdenSize]byte,
	propHint []byte,
	onlyIfValue *codec.Value,
	deleteIP, deletePVT, deletePT bool,
) (bool, error) {
	pk, err := codec.DecodePKValue(pkValEnc)
	if err != nil {
		return false, s.corruptf("decode pk value: %v", err)
	}
	pkKeyEnc := codec.EncodePKKey(pk)

	raw, err := txn.Get(s.rows, pkKeyEnc)
	if mdbx.IsNotFound(err) {
		return false, s.corruptf("index entry for pk %d has no corresponding row", pk)
	}
	if err != nil {
		return false, errors.Wrap(err, "tuplestore: fetch row for delete")
	}
	row, err := codec.DecodeRow(raw)
	if err != nil {
		return false, s.corruptf("decode row for pk %d: %v", pk, err)
	}

	if onlyIfValue != nil && !row.Value.Equal(*onlyIfValue) {
		return false, nil
	}

	if err := txn.Del(s.rows, pkKeyEnc, nil); err != nil {
		return false, errors.Wrap(err, "tuplestore: delete row")
	}

	iden := row.Iden
	if idenHint != nil {
		iden = *idenHint
	}
	propEnc := propHint
	if propEnc == nil {
		propEnc, err = codec.EncodeProp(row.Prop)
		if err != nil {
			return false, s.corruptf("re-encode prop for pk %d: %v", pk, err)
		}
	}

	if deleteIP {
		ipKey := concatBytes(iden[:], propEnc)
		if err := txn.Del(s.ip, ipKey, pkValEnc); err != nil {
			if mdbx.IsNotFound(err) {
				return false, s.corruptf("missing ip index entry for pk %d", pk)
			}
			return false, errors.Wrap(err, "tuplestore: delete ip index entry")
		}
	}

	timeEnc := codec.EncodeTimestamp(row.Time)

	if deletePVT {
		vkeyEnc := codec.EncodeValueKey(row.Value)
		pvtKey := concatBytes(propEnc, vkeyEnc, timeEnc)
		if err := txn.Del(s.pvt, pvtKey, pkValEnc); err != nil {
			if mdbx.IsNotFound(err) {
				return false, s.corruptf("missing pvt index entry for pk %d", pk)
			}
			return false, errors.Wrap(err, "tuplestore: delete pvt index entry")
		}
	}

	if deletePT {
		ptKey := concatBytes(propEnc, timeEnc)
		if err := txn.Del(s.pt, ptKey, pkValEnc); err != nil {
			if mdbx.IsNotFound(err) {
				return false, s.corruptf("missing pt index entry for pk %d", pk)
			}
			return false, errors.Wrap(err, "tuplestore: delete pt index entry")
		}
	}

	return true, nil
}

func concatBytes(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// DeleteByIden removes every row with the given iden, and all of their
// index entries.
func (s *Store) DeleteByIden(ctx context.Context, iden string) error {
	idenEnc, err := codec.EncodeIden(iden)
	if err != nil {
		return errors.Wrapf(ErrBadInput, "iden %q: %v", iden, err)
	}

	return s.begin(ctx, true, func(ctx context.Context, txn *mdbx.Txn) error {
		cur, err := txn.OpenCursor(s.ip)
		if err != nil {
			return errors.Wrap(err, "tuplestore: open ip cursor")
		}
		defer cur.Close()

		prefix := idenEnc[:]
		key, val, err := cur.Get(prefix, nil, mdbx.SetRange)
		if mdbx.IsNotFound(err) {
			return s.corruptf("missing ip sentinel")
		}
		if err != nil {
			return errors.Wrap(err, "tuplestore: seek ip index")
		}

		for {
			if !bytes.HasPrefix(key, prefix) {
				return nil
			}
			propEnc := append([]byte{}, key[len(prefix):]...)
			pkValEnc := append([]byte{}, val...)

			if err := cur.Del(0); err != nil {
				return errors.Wrap(err, "tuplestore: delete ip index entry")
			}
			if _, err := s.deleteRowAndIndices(txn, pkValEnc, &idenEnc, propEnc, nil, false, true, true); err != nil {
				return err
			}

			key, val, err = cur.Get(nil, nil, mdbx.GetCurrent)
			if mdbx.IsNotFound(err) {
				return s.corruptf("missing ip sentinel")
			}
			if err != nil {
				return errors.Wrap(err, "tuplestore: advance ip cursor")
			}
		}
	})
}

// DeleteByIdenProp removes rows matching (iden, prop) and, if value is
// non-nil, additionally matching that value. It returns the number of rows
// removed.
func (s *Store) DeleteByIdenProp(ctx context.Context, iden string, prop []byte, value *codec.Value) (int, error) {
	idenEnc, err := codec.EncodeIden(iden)
	if err != nil {
		return 0, errors.Wrapf(ErrBadInput, "iden %q: %v", iden, err)
	}
	propEnc, err := codec.EncodeProp(prop)
	if err != nil {
		return 0, s.limitf("property %q: %v", prop, err)
	}
	firstKey := concatBytes(idenEnc[:], propEnc)

	removed := 0
	err = s.begin(ctx, true, func(ctx context.Context, txn *mdbx.Txn) error {
		cur, err := txn.OpenCursor(s.ip)
		if err != nil {
			return errors.Wrap(err, "tuplestore: open ip cursor")
		}
		defer cur.Close()

		key, val, err := cur.Get(firstKey, nil, mdbx.SetRange)
		if mdbx.IsNotFound(err) {
			return s.corruptf("missing ip sentinel")
		}
		if err != nil {
			return errors.Wrap(err, "tuplestore: seek ip index")
		}

		for {
			if !bytes.HasPrefix(key, firstKey) {
				return nil
			}
			pkValEnc := append([]byte{}, val...)

			ok, err := s.deleteRowAndIndices(txn, pkValEnc, &idenEnc, propEnc, value, false, true, true)
			if err != nil {
				return err
			}
			if ok {
				if err := cur.Del(0); err != nil {
					return errors.Wrap(err, "tuplestore: delete ip index entry")
				}
				removed++
				key, val, err = cur.Get(nil, nil, mdbx.GetCurrent)
			} else {
				key, val, err = cur.Get(nil, nil, mdbx.Next)
			}
			if mdbx.IsNotFound(err) {
				return s.corruptf("missing ip sentinel")
			}
			if err != nil {
				return errors.Wrap(err, "tuplestore: advance ip cursor")
			}
		}
	})
	return removed, err
}

// DeleteByProp removes rows with the given prop (optionally filtered by
// value and a [minTime, maxTime) window) and returns the number removed.
// It shares its scan with GetByProp/SizeByProp; see scanByProp.
func (s *Store) DeleteByProp(ctx context.Context, prop []byte, value *codec.Value, minTime, maxTime *int64) (int, error) {
	_, count, err := s.scanByProp(ctx, prop, value, nil, minTime, maxTime, scanDelete)
	return count, err
}
