package tuplestore

import (
	"bytes"
	"context"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"

	"github.com/cortexdb/tuplestore/codec"
)

func (s *Store) toPublicRow(r codec.Row) (Row, error) {
	idenHex, err := codec.DecodeIden(r.Iden[:])
	if err != nil {
		return Row{}, s.corruptf("decode stored iden: %v", err)
	}
	return Row{
		Iden:  idenHex,
		Prop:  append([]byte{}, r.Prop...),
		Value: r.Value,
		Time:  r.Time,
	}, nil
}

// fetchRowByPKEnc reads and decodes the primary row an index entry points
// at. A missing row is corruption: every live index entry must reference an
// existing row.
func (s *Store) fetchRowByPKEnc(txn *mdbx.Txn, pkValEnc []byte) (Row, error) {
	pk, err := codec.DecodePKValue(pkValEnc)
	if err != nil {
		return Row{}, s.corruptf("decode pk value: %v", err)
	}
	raw, err := txn.Get(s.rows, codec.EncodePKKey(pk))
	if mdbx.IsNotFound(err) {
		return Row{}, s.corruptf("index entry for pk %d has no corresponding row", pk)
	}
	if err != nil {
		return Row{}, errors.Wrap(err, "tuplestore: fetch row")
	}
	crow, err := codec.DecodeRow(raw)
	if err != nil {
		return Row{}, s.corruptf("decode row for pk %d: %v", pk, err)
	}
	return s.toPublicRow(crow)
}

// GetByIden returns every row with the given iden, in ip index order: by
// encoded prop (length first, then bytes), then by primary key.
func (s *Store) GetByIden(ctx context.Context, iden string) ([]Row, error) {
	idenEnc, err := codec.EncodeIden(iden)
	if err != nil {
		return nil, errors.Wrapf(ErrBadInput, "iden %q: %v", iden, err)
	}

	var rows []Row
	err = s.begin(ctx, false, func(ctx context.Context, txn *mdbx.Txn) error {
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
			row, err := s.fetchRowByPKEnc(txn, val)
			if err != nil {
				return err
			}
			rows = append(rows, row)

			key, val, err = cur.Get(nil, nil, mdbx.Next)
			if mdbx.IsNotFound(err) {
				return s.corruptf("missing ip sentinel")
			}
			if err != nil {
				return errors.Wrap(err, "tuplestore: advance ip cursor")
			}
		}
	})
	return rows, err
}

// GetByIdenProp returns rows matching (iden, prop), optionally filtered to
// a single value.
func (s *Store) GetByIdenProp(ctx context.Context, iden string, prop []byte, value *codec.Value) ([]Row, error) {
	idenEnc, err := codec.EncodeIden(iden)
	if err != nil {
		return nil, errors.Wrapf(ErrBadInput, "iden %q: %v", iden, err)
	}
	propEnc, err := codec.EncodeProp(prop)
	if err != nil {
		return nil, s.limitf("property %q: %v", prop, err)
	}
	firstKey := concatBytes(idenEnc[:], propEnc)

	var rows []Row
	err = s.begin(ctx, false, func(ctx context.Context, txn *mdbx.Txn) error {
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
			if !bytes.Equal(key, firstKey) {
				return nil
			}
			row, err := s.fetchRowByPKEnc(txn, val)
			if err != nil {
				return err
			}
			if value == nil || row.Value.Equal(*value) {
				rows = append(rows, row)
			}

			key, val, err = cur.Get(nil, nil, mdbx.Next)
			if mdbx.IsNotFound(err) {
				return s.corruptf("missing ip sentinel")
			}
			if err != nil {
				return errors.Wrap(err, "tuplestore: advance ip cursor")
			}
		}
	})
	return rows, err
}

// scanMode selects what scanByProp/subrangeRows do with each matched entry.
type scanMode int

const (
	scanCollect scanMode = iota
	scanCount
	scanDelete
)

// scanByProp implements GetByProp, SizeByProp, and DeleteByProp: it scans
// pt (value == nil) or pvt (value != nil) over the half-open timestamp
// window [minTime, maxTime), applying limit, and collecting/counting/
// deleting as mode dictates. A hashed value-key match is re-verified
// against the primary row, since the index alone cannot distinguish two
// values that hash alike.
func (s *Store) scanByProp(ctx context.Context, prop []byte, value *codec.Value, limit *int, minTime, maxTime *int64, mode scanMode) ([]Row, int, error) {
	propEnc, err := codec.EncodeProp(prop)
	if err != nil {
		return nil, 0, s.limitf("property %q: %v", prop, err)
	}

	idx := s.pt
	var vkeyEnc []byte
	hashed := false
	if value != nil {
		idx = s.pvt
		vkeyEnc = codec.EncodeValueKey(*value)
		hashed = codec.IsHashedKey(vkeyEnc)
	}

	var minEnc []byte
	if minTime != nil {
		minEnc = codec.EncodeTimestamp(*minTime)
	}
	maxEnc := codec.EncodeTimestamp(codec.MaxIntVal)
	if maxTime != nil {
		maxEnc = codec.EncodeTimestamp(*maxTime)
	}

	firstKey := concatBytes(propEnc, vkeyEnc, minEnc)
	lastKey := concatBytes(propEnc, vkeyEnc, maxEnc)

	var rows []Row
	count := 0

	err = s.begin(ctx, mode == scanDelete, func(ctx context.Context, txn *mdbx.Txn) error {
		cur, err := txn.OpenCursor(idx)
		if err != nil {
			return errors.Wrap(err, "tuplestore: open index cursor")
		}
		defer cur.Close()

		key, val, err := cur.Get(firstKey, nil, mdbx.SetRange)
		if mdbx.IsNotFound(err) {
			return s.corruptf("missing index sentinel")
		}
		if err != nil {
			return errors.Wrap(err, "tuplestore: seek index")
		}

		for bytes.Compare(key, lastKey) < 0 {
			if mode == scanDelete {
				pkValEnc := append([]byte{}, val...)
				ok, err := s.deleteRowAndIndices(txn, pkValEnc, nil, propEnc, value, true, value == nil, value != nil)
				if err != nil {
					return err
				}
				if ok {
					if err := cur.Del(0); err != nil {
						return errors.Wrap(err, "tuplestore: delete index entry")
					}
					count++
					key, val, err = cur.Get(nil, nil, mdbx.GetCurrent)
				} else {
					key, val, err = cur.Get(nil, nil, mdbx.Next)
				}
				if mdbx.IsNotFound(err) {
					return s.corruptf("missing index sentinel")
				}
				if err != nil {
					return errors.Wrap(err, "tuplestore: advance index cursor")
				}
				if limit != nil && count >= *limit {
					return nil
				}
				continue
			}

			needRow := mode == scanCollect || hashed
			if needRow {
				row, err := s.fetchRowByPKEnc(txn, val)
				if err != nil {
					return err
				}
				if hashed && (value == nil || !row.Value.Equal(*value)) {
					// Hash collision: this index entry's hash matched but
					// the full value didn't. Skip without counting.
					key, val, err = cur.Get(nil, nil, mdbx.Next)
					if mdbx.IsNotFound(err) {
						return s.corruptf("missing index sentinel")
					}
					if err != nil {
						return errors.Wrap(err, "tuplestore: advance index cursor")
					}
					continue
				}
				if mode == scanCollect {
					rows = append(rows, row)
				}
			}

			count++
			if limit != nil && count >= *limit {
				return nil
			}

			key, val, err = cur.Get(nil, nil, mdbx.Next)
			if mdbx.IsNotFound(err) {
				return s.corruptf("missing index sentinel")
			}
			if err != nil {
				return errors.Wrap(err, "tuplestore: advance index cursor")
			}
		}
		return nil
	})
	return rows, count, err
}

// GetByProp returns rows with the given prop, optionally filtered by value
// and a [minTime, maxTime) window (maxTime itself excluded), up to limit
// rows.
func (s *Store) GetByProp(ctx context.Context, prop []byte, value *codec.Value, limit *int, minTime, maxTime *int64) ([]Row, error) {
	rows, _, err := s.scanByProp(ctx, prop, value, limit, minTime, maxTime, scanCollect)
	return rows, err
}

// SizeByProp counts rows matching the same criteria as GetByProp.
func (s *Store) SizeByProp(ctx context.Context, prop []byte, value *codec.Value, limit *int, minTime, maxTime *int64) (int, error) {
	_, count, err := s.scanByProp(ctx, prop, value, limit, minTime, maxTime, scanCount)
	return count, err
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// subrangeRows scans the pvt index over [first, last] for the single
// encoded prop, forward if first >= 0 or backward if first < 0 (negative
// encodings occupy a region that sorts in reverse-magnitude order, so a
// backward scan there yields ascending numeric order). rightClosed governs
// whether last itself is included.
func (s *Store) subrangeRows(ctx context.Context, propEnc []byte, first, last int64, limit *int, rightClosed bool, mode scanMode) ([]Row, int, error) {
	firstKey := concatBytes(propEnc, codec.EncodeValueKey(codec.IntValue(first)))
	lastKey := concatBytes(propEnc, codec.EncodeValueKey(codec.IntValue(last)))
	backward := first < 0
	seekKey := firstKey
	if backward {
		// Seek past every entry whose (prop, value) prefix is firstKey, so
		// the step back below lands on the last of them, not the first.
		seekKey = concatBytes(firstKey, codec.MaxIndexKey)
	}

	var rows []Row
	count := 0

	err := s.begin(ctx, false, func(ctx context.Context, txn *mdbx.Txn) error {
		cur, err := txn.OpenCursor(s.pvt)
		if err != nil {
			return errors.Wrap(err, "tuplestore: open pvt cursor")
		}
		defer cur.Close()

		key, val, err := cur.Get(seekKey, nil, mdbx.SetRange)
		if mdbx.IsNotFound(err) {
			return s.corruptf("missing pvt sentinel")
		}
		if err != nil {
			return errors.Wrap(err, "tuplestore: seek pvt index")
		}

		if backward {
			n := len(firstKey)
			prefix := key
			if len(key) > n {
				prefix = key[:n]
			}
			if bytes.Compare(prefix, firstKey) > 0 {
				key, val, err = cur.Get(nil, nil, mdbx.Prev)
				if mdbx.IsNotFound(err) {
					return s.corruptf("missing pvt sentinel")
				}
				if err != nil {
					return errors.Wrap(err, "tuplestore: step back pvt cursor")
				}
			}
		}

		shouldStop := func(prefix []byte) bool {
			c := bytes.Compare(prefix, lastKey)
			if backward {
				if rightClosed {
					return c < 0
				}
				return c <= 0
			}
			if rightClosed {
				return c > 0
			}
			return c >= 0
		}

		for {
			n := len(lastKey)
			prefix := key
			if len(key) >= n {
				prefix = key[:n]
			}
			if shouldStop(prefix) {
				return nil
			}

			count++
			if mode != scanCount {
				row, err := s.fetchRowByPKEnc(txn, val)
				if err != nil {
					return err
				}
				rows = append(rows, row)
			}
			if limit != nil && count >= *limit {
				return nil
			}

			if backward {
				key, val, err = cur.Get(nil, nil, mdbx.Prev)
			} else {
				key, val, err = cur.Get(nil, nil, mdbx.Next)
			}
			if mdbx.IsNotFound(err) {
				return s.corruptf("missing pvt sentinel")
			}
			if err != nil {
				return errors.Wrap(err, "tuplestore: advance pvt cursor")
			}
		}
	})
	return rows, count, err
}

// rowsByMinMax implements the split-range algorithm: negative and
// non-negative integer encodings inhabit disjoint, oppositely-ordered
// regions of the pvt key space, so a range spanning zero is split into a
// negative subrange and a non-negative subrange, with -1 included exactly
// once at the boundary between them.
func (s *Store) rowsByMinMax(ctx context.Context, prop []byte, lo, hi int64, limit *int, rightClosed bool, mode scanMode) ([]Row, int, error) {
	if lo > hi {
		return nil, 0, nil
	}
	propEnc, err := codec.EncodeProp(prop)
	if err != nil {
		return nil, 0, s.limitf("property %q: %v", prop, err)
	}

	doNeg := lo < 0
	doPos := hi >= 0

	var rows []Row
	count := 0

	remaining := cloneLimit(limit)

	if doNeg {
		thisRightClosed := doPos || rightClosed
		r, c, err := s.subrangeRows(ctx, propEnc, lo, minInt64(-1, hi), remaining, thisRightClosed, mode)
		if err != nil {
			return nil, 0, err
		}
		rows = append(rows, r...)
		count += c
		if remaining != nil {
			*remaining -= c
			if *remaining <= 0 {
				return rows, count, nil
			}
		}
	}

	if doPos {
		r, c, err := s.subrangeRows(ctx, propEnc, maxInt64(0, lo), hi, remaining, rightClosed, mode)
		if err != nil {
			return nil, 0, err
		}
		rows = append(rows, r...)
		count += c
	}

	return rows, count, nil
}

func cloneLimit(limit *int) *int {
	if limit == nil {
		return nil
	}
	l := *limit
	return &l
}

// GetByRange returns rows with property prop whose integer value lies in
// [lo, hi], up to limit rows.
func (s *Store) GetByRange(ctx context.Context, prop []byte, lo, hi int64, limit *int) ([]Row, error) {
	rows, _, err := s.rowsByMinMax(ctx, prop, lo, hi, limit, true, scanCollect)
	return rows, err
}

// SizeByRange counts rows matching the same criteria as GetByRange.
func (s *Store) SizeByRange(ctx context.Context, prop []byte, lo, hi int64, limit *int) (int, error) {
	_, count, err := s.rowsByMinMax(ctx, prop, lo, hi, limit, true, scanCount)
	return count, err
}

// GetByGe returns rows with property prop whose integer value is >= lo.
func (s *Store) GetByGe(ctx context.Context, prop []byte, lo int64, limit *int) ([]Row, error) {
	rows, _, err := s.rowsByMinMax(ctx, prop, lo, codec.MaxIntVal, limit, true, scanCollect)
	return rows, err
}

// SizeByGe counts rows matching the same criteria as GetByGe.
func (s *Store) SizeByGe(ctx context.Context, prop []byte, lo int64, limit *int) (int, error) {
	_, count, err := s.rowsByMinMax(ctx, prop, lo, codec.MaxIntVal, limit, true, scanCount)
	return count, err
}

// GetByLe returns rows with property prop whose integer value is <= hi.
func (s *Store) GetByLe(ctx context.Context, prop []byte, hi int64, limit *int) ([]Row, error) {
	rows, _, err := s.rowsByMinMax(ctx, prop, codec.MinIntVal, hi, limit, true, scanCollect)
	return rows, err
}

// SizeByLe counts rows matching the same criteria as GetByLe.
func (s *Store) SizeByLe(ctx context.Context, prop []byte, hi int64, limit *int) (int, error) {
	_, count, err := s.rowsByMinMax(ctx, prop, codec.MinIntVal, hi, limit, true, scanCount)
	return count, err
}

// GetByLt returns rows with property prop whose integer value is < hi.
func (s *Store) GetByLt(ctx context.Context, prop []byte, hi int64, limit *int) ([]Row, error) {
	rows, _, err := s.rowsByMinMax(ctx, prop, codec.MinIntVal, hi, limit, false, scanCollect)
	return rows, err
}

// SizeByLt counts rows matching the same criteria as GetByLt.
func (s *Store) SizeByLt(ctx context.Context, prop []byte, hi int64, limit *int) (int, error) {
	_, count, err := s.rowsByMinMax(ctx, prop, codec.MinIntVal, hi, limit, false, scanCount)
	return count, err
}
