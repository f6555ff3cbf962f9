// Package ordernum produces the order identifiers assigned at finalize time.
package ordernum

import "math/rand/v2"

const (
	Min int64 = 10000
	Max int64 = 999999
)

// Allocator supplies a candidate order number. Numbers are not unique by
// construction; the engine retries allocation when a candidate is already
// taken, inside the same transaction that assigns it.
type Allocator interface {
	Next() int64
}

// Rand draws uniformly from [Min, Max).
type Rand struct{}

func (Rand) Next() int64 {
	return Min + rand.Int64N(Max-Min)
}
