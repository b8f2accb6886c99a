package tuplestore

import "github.com/pkg/errors"

// ErrLimitReached is returned when a structural limit of the store is hit:
// primary-key exhaustion, an over-length property name, a value outside the
// signed 64-bit integer range, or a full mdbx map.
var ErrLimitReached = errors.New("tuplestore: limit reached")

// ErrCorruption is returned when an invariant the store relies on has been
// violated: a missing index entry under deletion, a missing sentinel during
// a scan, a primary-key collision on append, or a decoded row absent for a
// live index entry. Encountering it means the on-disk state is no longer
// trustworthy; the transaction that observed it is aborted.
var ErrCorruption = errors.New("tuplestore: index/row invariant violated")

// ErrBadInput is returned when caller-supplied data fails a domain
// constraint, such as a malformed iden hex string.
var ErrBadInput = errors.New("tuplestore: invalid input")

// corruptf logs and wraps a corruption-class error. Logged at Error level
// since ErrCorruption means the on-disk state is no longer trustworthy.
func (s *Store) corruptf(format string, args ...interface{}) error {
	err := errors.Wrapf(ErrCorruption, format, args...)
	s.log.Error(err.Error())
	return err
}

// limitf logs and wraps a limit-class error.
func (s *Store) limitf(format string, args ...interface{}) error {
	err := errors.Wrapf(ErrLimitReached, format, args...)
	s.log.Error(err.Error())
	return err
}
