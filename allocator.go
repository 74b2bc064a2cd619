// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package oamap

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Allocator specifies an interface for allocating and releasing memory used
// by a Map. The default allocator utilizes Go's builtin make() and allows the
// GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots and
// controls be freed then Map.Close must be called in order to ensure
// FreeSlots and FreeControls are called.
//
// An allocation error aborts the operation that needed the memory and
// leaves the Map unchanged.
type Allocator[K any, V any] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[K,V], n).
	AllocSlots(n int) ([]Slot[K, V], error)

	// AllocControls should return a slice equivalent to make([]uint8, n).
	AllocControls(n int) ([]uint8, error)

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot[K, V])

	// FreeControls can optional release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocControls.
	FreeControls(v []uint8)
}

type defaultAllocator[K any, V any] struct{}

func (defaultAllocator[K, V]) AllocSlots(n int) ([]Slot[K, V], error) {
	return make([]Slot[K, V], n), nil
}

func (defaultAllocator[K, V]) AllocControls(n int) ([]uint8, error) {
	return make([]uint8, n), nil
}

func (defaultAllocator[K, V]) FreeSlots(v []Slot[K, V]) {
}

func (defaultAllocator[K, V]) FreeControls(v []uint8) {
}

// LimitAllocator is an Allocator that refuses to hold more than a fixed
// number of bytes of slots and controls at once. Allocations beyond the
// budget fail with ErrAllocationLimit.
type LimitAllocator[K any, V any] struct {
	limit int
	inUse int
}

var _ Allocator[int, int] = (*LimitAllocator[int, int])(nil)

// NewLimitAllocator returns a LimitAllocator with a budget of maxBytes.
func NewLimitAllocator[K any, V any](maxBytes int) *LimitAllocator[K, V] {
	return &LimitAllocator[K, V]{limit: maxBytes}
}

// InUse returns the number of bytes currently allocated.
func (a *LimitAllocator[K, V]) InUse() int {
	return a.inUse
}

// SetLimit changes the budget. Memory already handed out is unaffected.
func (a *LimitAllocator[K, V]) SetLimit(maxBytes int) {
	a.limit = maxBytes
}

func (a *LimitAllocator[K, V]) reserve(n int) error {
	if a.inUse+n > a.limit {
		return errors.Wrapf(ErrAllocationLimit, "need %d bytes, %d of %d in use",
			n, a.inUse, a.limit)
	}
	a.inUse += n
	return nil
}

func (a *LimitAllocator[K, V]) AllocSlots(n int) ([]Slot[K, V], error) {
	if err := a.reserve(n * int(unsafe.Sizeof(Slot[K, V]{}))); err != nil {
		return nil, err
	}
	return make([]Slot[K, V], n), nil
}

func (a *LimitAllocator[K, V]) AllocControls(n int) ([]uint8, error) {
	if err := a.reserve(n); err != nil {
		return nil, err
	}
	return make([]uint8, n), nil
}

func (a *LimitAllocator[K, V]) FreeSlots(v []Slot[K, V]) {
	a.inUse -= len(v) * int(unsafe.Sizeof(Slot[K, V]{}))
}

func (a *LimitAllocator[K, V]) FreeControls(v []uint8) {
	a.inUse -= len(v)
}
