// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package idpool implements a slot allocator that hands out small,
// dense integer identifiers backed by a growable bitmap, and stores
// one value of a caller-chosen type per live identifier.
//
// It generalizes the teacher engine package's dataMap/dataID/dataEntry
// trio (engine/id.go) and the free-list convention used throughout
// engine/storage.go (bitm.Bitm.Search, grow-on-exhaustion, Unset on
// free) into a single reusable generic type.
package idpool

import "github.com/gviegas/framegraph/internal/bitm"

// growBit is the number of slots added to the pool each time it runs
// out of free slots, matching the teacher's convention of growing in
// bitm-word-sized chunks (see engine/storage.go's primMapNBit/spanMapNBit).
const growBit = 32

// Pool allocates integer identifiers in [0, Len) and stores a T per
// live identifier. The zero value is an empty, usable Pool.
type Pool[T any] struct {
	used bitm.Bitm[uint32]
	data []T
}

// Alloc reserves an identifier and returns it. The associated value is
// the zero value of T until the caller stores into it via Get.
func (p *Pool[T]) Alloc() int {
	i, ok := p.used.Search()
	if !ok {
		i = p.used.Grow(growBit / 32)
	}
	p.used.Set(i)
	if n := p.used.Len(); n > len(p.data) {
		grown := make([]T, n)
		copy(grown, p.data)
		p.data = grown
	}
	return i
}

// Free releases an identifier, resetting its value to the zero value
// of T. It must not be called with an identifier that is not
// currently allocated.
func (p *Pool[T]) Free(id int) {
	var zero T
	p.data[id] = zero
	p.used.Unset(id)
}

// Get returns a pointer to the value associated with id. The pointer
// is invalidated by any subsequent call to Alloc that grows the pool.
func (p *Pool[T]) Get(id int) *T { return &p.data[id] }

// Live reports whether id is currently allocated.
func (p *Pool[T]) Live(id int) bool { return p.used.IsSet(id) }

// Len returns the number of identifier slots the pool currently spans
// (a multiple of growBit); every identifier handed out so far is below
// it, but slots below it need not be allocated (see Live).
func (p *Pool[T]) Len() int { return len(p.data) }

// Reset discards every allocation, returning the pool to its initial
// empty state.
func (p *Pool[T]) Reset() {
	p.used = bitm.Bitm[uint32]{}
	p.data = nil
}
