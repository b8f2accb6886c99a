// Package codec implements the byte encodings used by the tuple store to
// turn (iden, prop, value, timestamp, pk) tuples into ordered keys and
// self-delimiting payloads.
//
// File conventions (mirrors the reference cortex this package reimplements):
// i, p, v, t mean iden, prop, value, timestamp. "key" encodings are used as
// mdbx keys and must compare correctly with bytes.Compare; "value" encodings
// are used as mdbx values and only need to round-trip.
package codec

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// IdenSize is the width in bytes of a raw iden.
const IdenSize = 16

// MaxPropLen is the largest allowed encoded property name.
const MaxPropLen = 350

// LargeStringSize is the length at which a string value is hashed rather
// than stored inline in index keys.
const LargeStringSize = 128

// MaxIntVal and MinIntVal bound the signed integer value range, matching
// sqlite3's INTEGER range.
const (
	MaxIntVal = int64(1)<<63 - 1
	MinIntVal = -(int64(1) << 63)
)

// Markers for the three non-"bare non-negative integer" value-key regions.
// They must all compare greater than any bare non-negative integer encoding
// (whose leading byte never exceeds 0x7f) and must be ordered
// markNeg < markHash < markStr so the index key space reads, in ascending
// order: non-negative integers, negative integers, hashed strings, inline
// strings.
const (
	markNeg  byte = 0x81
	markHash byte = 0x82
	markStr  byte = 0x83
)

// MaxIndexKey is the sentinel key written at the tail of every index table
// so a forward-scanning cursor never falls off the edge.
var MaxIndexKey = bytesRepeat(0xff, 20)

// MinIndexKey is the extra leading sentinel carried by the PVT index so a
// backward-scanning cursor always has a valid predecessor.
var MinIndexKey = []byte{0x00}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

var (
	// ErrPropTooLong is returned by EncodeProp when name exceeds MaxPropLen.
	ErrPropTooLong = errors.New("codec: property name exceeds maximum length")
	// ErrBadIden is returned by DecodeIden/EncodeIden on malformed hex.
	ErrBadIden = errors.New("codec: iden is not 32 lowercase hex characters")
	// ErrShortRow is returned by DecodeRow when the payload is truncated.
	ErrShortRow = errors.New("codec: row payload is truncated")
)

// Kind discriminates the two value shapes a row may hold.
type Kind uint8

const (
	KindInt Kind = iota
	KindString
)

// Value is the tagged union of the two value shapes the store persists.
type Value struct {
	Kind Kind
	Int  int64
	Str  []byte
}

// IntValue builds a signed-integer Value.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// StringValue builds a byte-string Value.
func StringValue(s []byte) Value { return Value{Kind: KindString, Str: s} }

// Equal reports whether two values carry the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.Kind == KindInt {
		return v.Int == o.Int
	}
	return string(v.Str) == string(o.Str)
}

// EncodeIden decodes a 32-character lowercase hex iden into its raw 16 bytes.
func EncodeIden(iden string) ([IdenSize]byte, error) {
	var out [IdenSize]byte
	if len(iden) != IdenSize*2 {
		return out, ErrBadIden
	}
	raw, err := hex.DecodeString(iden)
	if err != nil {
		return out, errors.Wrap(ErrBadIden, err.Error())
	}
	copy(out[:], raw)
	return out, nil
}

// DecodeIden renders a raw 16-byte iden as lowercase hex.
func DecodeIden(raw []byte) (string, error) {
	if len(raw) != IdenSize {
		return "", ErrBadIden
	}
	return hex.EncodeToString(raw), nil
}

// EncodeProp produces the canonical length-prefixed, self-delimiting
// encoding of a property name: a 2-byte big-endian length followed by the
// raw bytes.
func EncodeProp(name []byte) ([]byte, error) {
	if len(name) > MaxPropLen {
		return nil, ErrPropTooLong
	}
	out := make([]byte, 2+len(name))
	binary.BigEndian.PutUint16(out, uint16(len(name)))
	copy(out[2:], name)
	return out, nil
}

// DecodeProp reads a length-prefixed property name from the front of raw,
// returning the name and the number of bytes consumed.
func DecodeProp(raw []byte) ([]byte, int, error) {
	if len(raw) < 2 {
		return nil, 0, ErrShortRow
	}
	n := int(binary.BigEndian.Uint16(raw))
	if len(raw) < 2+n {
		return nil, 0, ErrShortRow
	}
	return raw[2 : 2+n], 2 + n, nil
}

// EncodeTimestamp encodes a signed 64-bit timestamp into 8 bytes whose
// big-endian byte order matches the timestamp's natural order: the sign bit
// is flipped so two's-complement negatives sort below non-negatives.
func EncodeTimestamp(t int64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(t)^signBit)
	return out
}

// DecodeTimestamp inverts EncodeTimestamp.
func DecodeTimestamp(raw []byte) (int64, error) {
	if len(raw) < 8 {
		return 0, ErrShortRow
	}
	return int64(binary.BigEndian.Uint64(raw) ^ signBit), nil
}

const signBit = uint64(1) << 63

// EncodePKKey encodes a primary key for use as a Rows-table key under
// mdbx's IntegerKey DBI option, which compares keys as native machine
// words rather than as big-endian byte strings.
func EncodePKKey(pk uint64) []byte {
	out := make([]byte, 8)
	binary.NativeEndian.PutUint64(out, pk)
	return out
}

// DecodePKKey inverts EncodePKKey.
func DecodePKKey(raw []byte) (uint64, error) {
	if len(raw) < 8 {
		return 0, ErrShortRow
	}
	return binary.NativeEndian.Uint64(raw), nil
}

// EncodePKValue encodes a primary key for use as an index value: a plain
// big-endian uint64, compact and with no ordering requirements since it is
// never used as a key.
func EncodePKValue(pk uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, pk)
	return out
}

// DecodePKValue inverts EncodePKValue.
func DecodePKValue(raw []byte) (uint64, error) {
	if len(raw) < 8 {
		return 0, ErrShortRow
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Hash64 hashes a byte-string value for the hashed-string value-key region.
func Hash64(s []byte) uint64 {
	return xxhash.Sum64(s)
}

// EncodeValueKey is the order-preserving encoding used in index keys. The
// regions it produces compare, in ascending order: non-negative integers,
// negative integers, hashed strings, inline strings. Negative integers sort
// within their region by magnitude (ascending encoded key == ascending
// magnitude == descending numeric value), so the range query engine scans
// that region backwards to return them in ascending numeric order.
func EncodeValueKey(v Value) []byte {
	if v.Kind == KindInt {
		if v.Int >= 0 {
			out := make([]byte, 8)
			binary.BigEndian.PutUint64(out, uint64(v.Int))
			return out
		}
		mag := negate(v.Int)
		out := make([]byte, 9)
		out[0] = markNeg
		binary.BigEndian.PutUint64(out[1:], mag)
		return out
	}
	if len(v.Str) < LargeStringSize {
		out := make([]byte, 0, 1+len(v.Str)+2)
		out = append(out, markStr)
		out = append(out, escapeAndTerminate(v.Str)...)
		return out
	}
	out := make([]byte, 9)
	out[0] = markHash
	binary.BigEndian.PutUint64(out[1:], Hash64(v.Str))
	return out
}

// escapeAndTerminate renders s into a prefix-free, order-preserving byte
// sequence: each embedded 0x00 is escaped as 0x00 0xFF, and the whole thing
// ends with a 0x00 0x01 terminator. Without this, inline string value-keys
// would not be self-delimiting — "a" would encode as a byte-prefix of "ab",
// so a PVT scan bounded by "a"'s key would also match "ab"'s. The terminator
// sorts below any escape continuation (0x01 < 0xFF), so a string that is a
// prefix of another still compares less than it, exactly as bytes.Compare
// would order the raw strings.
func escapeAndTerminate(s []byte) []byte {
	out := make([]byte, 0, len(s)+2)
	for _, b := range s {
		if b == 0x00 {
			out = append(out, 0x00, 0xff)
		} else {
			out = append(out, b)
		}
	}
	return append(out, 0x00, 0x01)
}

// IsHashedKey reports whether a value-key encoding used the lossy hashed
// region, meaning a caller performing equality lookups must re-verify
// against the full value stored in the primary table.
func IsHashedKey(vkey []byte) bool {
	return len(vkey) > 0 && vkey[0] == markHash
}

// negate returns the unsigned magnitude of a negative int64, including
// MinIntVal (whose magnitude, 2**63, does not fit in an int64).
func negate(v int64) uint64 {
	return -uint64(v)
}

// EncodeValueValue is the full-fidelity encoding stored in the Primary
// Table payload, from which the original value can always be recovered.
func EncodeValueValue(v Value) []byte {
	if v.Kind == KindInt {
		out := make([]byte, 9)
		out[0] = byte(KindInt)
		binary.BigEndian.PutUint64(out[1:], uint64(v.Int))
		return out
	}
	out := make([]byte, 5+len(v.Str))
	out[0] = byte(KindString)
	binary.BigEndian.PutUint32(out[1:5], uint32(len(v.Str)))
	copy(out[5:], v.Str)
	return out
}

// decodeValueValue reads a value-value encoding from the front of raw,
// returning the value and the number of bytes consumed.
func decodeValueValue(raw []byte) (Value, int, error) {
	if len(raw) < 1 {
		return Value{}, 0, ErrShortRow
	}
	switch Kind(raw[0]) {
	case KindInt:
		if len(raw) < 9 {
			return Value{}, 0, ErrShortRow
		}
		return IntValue(int64(binary.BigEndian.Uint64(raw[1:9]))), 9, nil
	case KindString:
		if len(raw) < 5 {
			return Value{}, 0, ErrShortRow
		}
		n := int(binary.BigEndian.Uint32(raw[1:5]))
		if len(raw) < 5+n {
			return Value{}, 0, ErrShortRow
		}
		return StringValue(raw[5 : 5+n]), 5 + n, nil
	default:
		return Value{}, 0, errors.Errorf("codec: unknown value tag %d", raw[0])
	}
}

// Row is a fully decoded (iden, prop, value, timestamp) tuple.
type Row struct {
	Iden  [IdenSize]byte
	Prop  []byte
	Value Value
	Time  int64
}

// EncodeRow builds the Primary Table payload: iden || prop || value || timestamp.
func EncodeRow(iden [IdenSize]byte, propEnc, valueEnc, timeEnc []byte) []byte {
	out := make([]byte, 0, IdenSize+len(propEnc)+len(valueEnc)+len(timeEnc))
	out = append(out, iden[:]...)
	out = append(out, propEnc...)
	out = append(out, valueEnc...)
	out = append(out, timeEnc...)
	return out
}

// DecodeRow inverts EncodeRow.
func DecodeRow(raw []byte) (Row, error) {
	var row Row
	if len(raw) < IdenSize {
		return row, ErrShortRow
	}
	copy(row.Iden[:], raw[:IdenSize])
	rest := raw[IdenSize:]

	prop, n, err := DecodeProp(rest)
	if err != nil {
		return row, err
	}
	row.Prop = prop
	rest = rest[n:]

	value, n, err := decodeValueValue(rest)
	if err != nil {
		return row, err
	}
	row.Value = value
	rest = rest[n:]

	t, err := DecodeTimestamp(rest)
	if err != nil {
		return row, err
	}
	row.Time = t
	return row, nil
}
