// Package bucket defines the fixed price ladder used to stratify trades by value.
package bucket

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Unbounded is the sentinel upper edge of the last bucket.
const Unbounded = 1e20

var (
	// ErrBucketOutOfRange is returned for an index outside the ladder.
	ErrBucketOutOfRange = errors.New("bucket index out of range")

	// ErrInvalidLadder is returned when boundaries are not strictly increasing.
	ErrInvalidLadder = errors.New("ladder boundaries must be strictly increasing")
)

// Ladder is an ordered list of bucket boundaries. Bucket i is [l[i], l[i+1]),
// except the last bucket which is [l[len-2], +inf).
type Ladder []float64

// Default is the price ladder [0, 10, 100, 1K, 10K, 100K, +inf).
var Default = Ladder{0, 10, 100, 1000, 10000, 100000, Unbounded}

// New validates and returns a ladder.
func New(bounds ...float64) (Ladder, error) {
	if len(bounds) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 boundaries, got %d", ErrInvalidLadder, len(bounds))
	}
	for i := 1; i < len(bounds); i++ {
		if !(bounds[i] > bounds[i-1]) {
			return nil, fmt.Errorf("%w: %v <= %v at %d", ErrInvalidLadder, bounds[i], bounds[i-1], i)
		}
	}
	l := make(Ladder, len(bounds))
	copy(l, bounds)
	return l, nil
}

// Len returns the number of buckets.
func (l Ladder) Len() int {
	if len(l) < 2 {
		return 0
	}
	return len(l) - 1
}

// Valid reports whether i is a bucket index of the ladder.
func (l Ladder) Valid(i int) bool {
	return i >= 0 && i < l.Len()
}

// IsOpen reports whether bucket i has no upper limit.
func (l Ladder) IsOpen(i int) bool {
	return i == l.Len()-1
}

// BucketOf returns the bucket containing v. Values below the first boundary
// and NaN belong to no bucket.
func (l Ladder) BucketOf(v float64) (int, bool) {
	n := l.Len()
	if n == 0 || math.IsNaN(v) || v < l[0] {
		return 0, false
	}
	for i := 0; i < n-1; i++ {
		if v < l[i+1] {
			return i, true
		}
	}
	return n - 1, true
}

// BoundsOf returns the bounds of bucket i. high is nil for the open-ended last bucket.
func (l Ladder) BoundsOf(i int) (low float64, high *float64, err error) {
	if !l.Valid(i) {
		return 0, nil, fmt.Errorf("%w: %d not in [0, %d]", ErrBucketOutOfRange, i, l.Len()-1)
	}
	if l.IsOpen(i) {
		return l[i], nil, nil
	}
	h := l[i+1]
	return l[i], &h, nil
}

// Label returns a short human label for bucket i, e.g. "100-1K" or "100K+".
func (l Ladder) Label(i int) string {
	if !l.Valid(i) {
		return ""
	}
	if l.IsOpen(i) {
		return formatBound(l[i]) + "+"
	}
	return formatBound(l[i]) + "-" + formatBound(l[i+1])
}

func formatBound(v float64) string {
	switch {
	case v >= 1e9:
		return strconv.FormatFloat(v/1e9, 'f', -1, 64) + "B"
	case v >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', -1, 64) + "M"
	case v >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', -1, 64) + "K"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
