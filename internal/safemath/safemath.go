// Package safemath carries the overflow-checked integer arithmetic the
// store needs when reserving primary keys.
package safemath

import "math/bits"

// SafeAdd returns x+y and reports whether the addition overflowed.
func SafeAdd(x, y uint64) (uint64, bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}
