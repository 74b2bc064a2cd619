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

// Package oamap is an open-addressing hash table with pluggable hash and
// equality policies, modelled on Swiss Tables as described in
// https://abseil.io/about/design/swisstables.
//
// # Layout
//
// A Map stores C slots, where C is a power of two >= 8, and C+groupSize-1
// control bytes. Each control byte records whether its slot is empty,
// deleted (a tombstone) or full, and for full slots carries a 7-bit
// fingerprint (h2) of the key's hash. The trailing groupSize-1 control bytes
// mirror the first groupSize-1 so that a group of groupSize control bytes
// can be loaded with a single unaligned 8-byte read at any offset. Matching
// a fingerprint or an empty slot across a group is done with SWAR bit
// tricks (SIMD Within A Register).
//
// Probing starts at hash&(C-1) and walks groups using triangular
// (quadratic) steps, see probeSeq. Lookups stop at the first group that
// contains an empty slot; tombstones never stop a lookup. Every probe loop
// is bounded by C/groupSize groups, which is enough to examine every slot.
//
// # Growth
//
// A Map never holds more than floor(C*maxLoadFactor) entries plus
// tombstones. When an insert finds no room left, the table is rebuilt:
// at the same capacity if dropping tombstones recovers at least a third of
// that limit, otherwise at twice the capacity. Every rebuild
// allocates fresh arrays, reinserts all live entries and only then swaps the
// arrays in, so an allocation failure or a panicking policy leaves the Map
// as it was. Rebuilds are atomic; there is no incremental migration state.
//
// # Hashing
//
// Keys are hashed and compared by a Policy. The hashing sub-package provides
// byte-span hash functions (CRC32C with a hardware path and a bit-identical
// software fallback, Time31, Passthrough and XXH64) and the strview
// sub-package provides borrowed string keys.
package oamap

import (
	"fmt"
	"math/bits"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	debug = false

	groupSize   = 8
	minCapacity = 8

	defaultMaxLoadFactor = 0.875
	minMaxLoadFactor     = 0.125
	maxMaxLoadFactor     = 0.9375
)

// Slot holds a key and value.
type Slot[K any, V any] struct {
	key   K
	value V
}

// Stats counts the rebuilds a Map has performed.
type Stats struct {
	// Grows is the number of rebuilds into a larger capacity.
	Grows int
	// Compactions is the number of rebuilds at the same capacity.
	Compactions int
	// Shrinks is the number of rebuilds into a smaller capacity.
	Shrinks int
	// Rehashes is the total number of rebuilds.
	Rehashes int
}

// bucketArray is the storage of a Map: the slots plus their control bytes.
type bucketArray[K any, V any] struct {
	// ctrls is capacity+groupSize-1 in length. A copy of the first
	// groupSize-1 elements of ctrls is mirrored into the remaining slots
	// which is done so that a probe sequence which picks a value near the end
	// of ctrls will have valid control bytes to look at.
	ctrls unsafeSlice[ctrl]
	// slots is capacity in length.
	slots unsafeSlice[Slot[K, V]]
	// The total number slots (always 2^N). capacity-1 is used as a mask to
	// quickly compute i%N using a bitwise & operation.
	capacity uintptr
}

func (b *bucketArray[K, V]) mask() uintptr {
	return b.capacity - 1
}

// setCtrl sets the control byte at index i, taking care to mirror the byte to
// the end of the control bytes slice if i<groupSize-1.
func (b *bucketArray[K, V]) setCtrl(i uintptr, v ctrl) {
	*b.ctrls.At(i) = v
	// Mirror the first groupSize-1 control bytes to the end of the ctrls
	// slice. We do this unconditionally which is faster than performing a
	// comparison to do it only for the first slots. Note that the index will
	// be the identity for slots in the range [groupSize-1,capacity).
	*b.ctrls.At(((i - (groupSize - 1)) & b.mask()) + (groupSize - 1)) = v
}

// uncheckedPut claims a slot for a key with hash h that is known not to be
// in the table and returns its index along with the control byte the slot
// held before. The caller stores the key and value.
func (b *bucketArray[K, V]) uncheckedPut(h uint64) (uintptr, ctrl) {
	// Given key and its hash hash(key), to insert it, we construct a
	// probeSeq, and use it to find the first group with an unoccupied (empty
	// or deleted) slot. We place the key/value into the first such slot in
	// the group and mark it as full with key's H2.
	seq := makeProbeSeq(h, b.mask())
	for p := seq.probes(); p > 0; p, seq = p-1, seq.next() {
		match := b.ctrls.At(seq.offset).matchEmptyOrDeleted()
		if debug {
			fmt.Printf("put(probing): offset=%d match-empty-or-deleted=%s\n", seq.offset, match)
		}
		if match != 0 {
			i := seq.offsetAt(match.next())
			prev := *b.ctrls.At(i)
			b.setCtrl(i, ctrl(h2(h)))
			return i, prev
		}
	}
	panic(errors.AssertionFailedf("no empty or deleted slot in table of capacity %d", b.capacity))
}

// Map is an unordered map from keys to values with Insert, Find, Erase, and
// All operations. Keys are hashed and compared by a Policy.
//
// A Map is NOT goroutine-safe. Concurrent readers are only safe while no
// goroutine mutates the Map.
type Map[K any, V any] struct {
	bucketArray[K, V]
	policy    Policy[K]
	allocator Allocator[K, V]
	logger    *zap.Logger

	maxLoadFactor   float64
	compactFraction float64

	// The number of filled slots (i.e. the number of elements in the map).
	used int
	// The number of deleted slots.
	tombstones int
	// The number of slots we can still fill without needing to rehash.
	//
	// This is stored separately due to tombstones: we do not include
	// tombstones in the growth capacity because we'd like to rehash when the
	// table is filled with tombstones as otherwise probe sequences might get
	// unacceptably long without triggering a rehash.
	growthLeft int
	stats      Stats
}

// New constructs a new Map for comparable keys with at least the specified
// initial capacity, using ComparablePolicy. The capacity is rounded up to a
// power of two and is never less than 8.
func New[K comparable, V any](initialCapacity int, options ...Option[K, V]) (*Map[K, V], error) {
	return NewWithPolicy[K, V](initialCapacity, ComparablePolicy[K](), options...)
}

// NewWithPolicy constructs a new Map whose keys are hashed and compared by
// policy. The capacity is rounded up to a power of two and is never less
// than 8.
func NewWithPolicy[K any, V any](
	initialCapacity int, policy Policy[K], options ...Option[K, V],
) (*Map[K, V], error) {
	if policy == nil {
		return nil, errors.New("oamap: nil policy")
	}
	m := &Map[K, V]{
		policy:        policy,
		allocator:     defaultAllocator[K, V]{},
		logger:        zap.NewNop(),
		maxLoadFactor: defaultMaxLoadFactor,
	}
	for _, op := range options {
		if err := op.apply(m); err != nil {
			return nil, err
		}
	}

	b, err := m.allocBuckets(roundCapacity(initialCapacity))
	if err != nil {
		return nil, errors.Wrap(err, "oamap: allocating initial table")
	}
	m.bucketArray = b
	m.growthLeft = m.growthLimit(m.capacity)
	m.checkInvariants()
	return m, nil
}

// Close closes the map, releasing any memory back to its configured
// allocator. It is unnecessary to close a map using the default allocator. It
// is invalid to use a Map after it has been closed, though Close itself is
// idempotent.
func (m *Map[K, V]) Close() {
	if m.capacity > 0 {
		m.freeBuckets(m.bucketArray)
	}
	m.bucketArray = bucketArray[K, V]{}
	m.used = 0
	m.tombstones = 0
	m.growthLeft = 0
}

// Emplace finds or creates the entry for key and returns a pointer to its
// value. For a new entry the value is the zero value and inserted is true.
// The pointer is valid until the next mutation of the Map.
//
// If the table has no room left it is rebuilt before the new entry is
// placed. A failed rebuild returns the error and leaves the Map unchanged.
func (m *Map[K, V]) Emplace(key K) (value *V, inserted bool, err error) {
	// Emplace is find composed with uncheckedPut. We perform find to see if
	// the key is already present. If it is, we're done. If the key isn't
	// present we perform an uncheckedPut which claims a slot for a key known
	// not to be in the table.
	h := m.policy.Hash(key)
	if i, ok := m.find(h, key); ok {
		return &m.slots.At(i).value, false, nil
	}

	// Before performing the insertion we may decide the table is getting
	// overcrowded (i.e. the load factor would exceed maxLoadFactor).
	if m.growthLeft == 0 {
		if err := m.rehash(); err != nil {
			return nil, false, err
		}
	}

	i, prev := m.uncheckedPut(h)
	if prev == ctrlDeleted {
		m.tombstones--
	} else {
		m.growthLeft--
	}
	s := m.slots.At(i)
	s.key = key
	m.used++
	if debug {
		fmt.Printf("put(inserting): index=%d used=%d growth-left=%d\n", i, m.used, m.growthLeft)
	}
	m.checkInvariants()
	return &s.value, true, nil
}

// Insert inserts an entry into the map, overwriting the existing value if an
// entry with the same key already exists. It reports whether a new entry was
// created.
func (m *Map[K, V]) Insert(key K, value V) (inserted bool, err error) {
	v, inserted, err := m.Emplace(key)
	if err != nil {
		return false, err
	}
	*v = value
	return inserted, nil
}

// Put is Insert for callers that treat allocation failure as fatal. It
// panics if the Map cannot grow.
func (m *Map[K, V]) Put(key K, value V) {
	if _, err := m.Insert(key, value); err != nil {
		panic(err)
	}
}

// Get retrieves the value from the map for the specified key, return ok=false
// if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if i, ok := m.find(m.policy.Hash(key), key); ok {
		return m.slots.At(i).value, true
	}
	return value, false
}

// Find returns a pointer to the value stored for key, or nil if the key is
// not present. The pointer is valid until the next mutation of the Map.
func (m *Map[K, V]) Find(key K) *V {
	if i, ok := m.find(m.policy.Hash(key), key); ok {
		return &m.slots.At(i).value
	}
	return nil
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.find(m.policy.Hash(key), key)
	return ok
}

// find returns the index of the slot holding key.
//
// To find the location of a key in the table, we compute hash(key). From
// the hash and the capacity, we construct a probeSeq that visits every
// group of slots in some interesting order.
//
// We walk through these indices. At each index, we select the entire group
// starting with that index and extract potential candidates: occupied slots
// with a control byte equal to h2(hash(key)). The key at each candidate slot
// is compared using the policy's Equal. If the group has an empty slot, we
// stop: an insert of key would have claimed that slot or an earlier one.
// Tombstones (ctrlDeleted) behave like full slots that never match the
// fingerprint we're looking for.
func (m *Map[K, V]) find(h uint64, key K) (uintptr, bool) {
	fp := h2(h)
	seq := makeProbeSeq(h, m.mask())
	if debug {
		fmt.Printf("find(%v): %s\n", key, seq)
	}
	for p := seq.probes(); p > 0; p, seq = p-1, seq.next() {
		g := m.ctrls.At(seq.offset)
		match := g.matchH2(fp)
		for match != 0 {
			bit := match.next()
			i := seq.offsetAt(bit)
			if m.policy.Equal(key, m.slots.At(i).key) {
				return i, true
			}
			match = match.clear(bit)
		}
		if g.matchEmpty() != 0 {
			return 0, false
		}
	}
	return 0, false
}

// Erase removes the entry for key and returns the number of entries
// removed (0 or 1). The slot becomes a tombstone so that lookups of other
// keys whose probe sequence passes through it continue past it.
func (m *Map[K, V]) Erase(key K) int {
	i, ok := m.find(m.policy.Hash(key), key)
	if !ok {
		return 0
	}

	if m.compactFraction > 0 &&
		float64(m.tombstones+1) > m.compactFraction*float64(m.capacity) {
		// The entry is dropped by the rebuild, so a rebuild that fails or
		// panics leaves it in place.
		err := m.rebuild(m.capacity, "tombstones", i)
		if err == nil {
			return 1
		}
		m.logger.Warn("oamap: tombstone compaction failed",
			zap.Int("capacity", int(m.capacity)),
			zap.Int("tombstones", m.tombstones),
			zap.Error(err))
	}

	*m.slots.At(i) = Slot[K, V]{}
	m.setCtrl(i, ctrlDeleted)
	m.used--
	m.tombstones++
	if debug {
		fmt.Printf("erase: index=%d used=%d tombstones=%d\n", i, m.used, m.tombstones)
	}
	m.checkInvariants()
	return 1
}

// Clear deletes all entries from the map. The capacity is retained.
func (m *Map[K, V]) Clear() {
	ctrls := m.ctrls.Slice(0, m.capacity+groupSize-1)
	for i := range ctrls {
		ctrls[i] = ctrlEmpty
	}
	clear(m.slots.Slice(0, m.capacity))
	m.used = 0
	m.tombstones = 0
	m.growthLeft = m.growthLimit(m.capacity)
	m.checkInvariants()
}

// All calls yield sequentially for each key and value present in the map. If
// yield returns false, iteration stops. The order is the bucket order and
// is unspecified. Mutating the map during iteration is not supported; the
// iteration keeps reading the arrays it started with.
//
//	for k, v := range m.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	// Snapshot the capacity, controls, and slots.
	capacity := m.capacity
	ctrls := m.ctrls
	slots := m.slots

	for i := uintptr(0); i < capacity; i += groupSize {
		match := ctrls.At(i).matchFull()
		for match != 0 {
			j := match.next()
			s := slots.At(i + j)
			if !yield(s.key, s.value) {
				return
			}
			match = match.clear(j)
		}
	}
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// Empty reports whether the map has no entries.
func (m *Map[K, V]) Empty() bool {
	return m.used == 0
}

// BucketCount returns the number of slots in the table.
func (m *Map[K, V]) BucketCount() int {
	return int(m.capacity)
}

// LoadFactor returns Len()/BucketCount().
func (m *Map[K, V]) LoadFactor() float64 {
	if m.capacity == 0 {
		return 0
	}
	return float64(m.used) / float64(m.capacity)
}

// Tombstones returns the number of deleted slots awaiting reclamation.
func (m *Map[K, V]) Tombstones() int {
	return m.tombstones
}

// Stats returns the rebuild counters.
func (m *Map[K, V]) Stats() Stats {
	return m.stats
}

// Rehash rebuilds the table with capacity n rounded up to the smallest power
// of two that is at least 8 and can hold the current entries. It is a no-op
// if that equals the current capacity.
func (m *Map[K, V]) Rehash(n int) error {
	target := max(roundCapacity(n), m.capacityFor(m.used))
	if target == m.capacity {
		return nil
	}
	return m.resize(target, "rehash")
}

// Reserve grows the table so that n entries fit without further growth. It
// never shrinks the table.
func (m *Map[K, V]) Reserve(n int) error {
	target := m.capacityFor(n)
	if target <= m.capacity {
		return nil
	}
	return m.resize(target, "reserve")
}

// ShrinkToFit rebuilds the table with the smallest capacity that is at
// least n, at least 8 and can hold the current entries. It never grows the
// table.
func (m *Map[K, V]) ShrinkToFit(n int) error {
	target := max(roundCapacity(n), m.capacityFor(m.used))
	if target >= m.capacity {
		return nil
	}
	return m.resize(target, "shrink")
}

// Compact rebuilds the table at its current capacity, dropping all
// tombstones.
func (m *Map[K, V]) Compact() error {
	if m.tombstones == 0 {
		return nil
	}
	return m.resize(m.capacity, "compact")
}

// growthLimit returns the number of entries plus tombstones a table of the
// given capacity may hold.
func (m *Map[K, V]) growthLimit(capacity uintptr) int {
	return int(float64(capacity) * m.maxLoadFactor)
}

// capacityFor returns the smallest capacity whose growth limit is at least
// n. Past maxCapacity it gives up and returns twice maxCapacity, which
// allocBuckets rejects.
func (m *Map[K, V]) capacityFor(n int) uintptr {
	maxCap := m.maxCapacity()
	c := uintptr(minCapacity)
	for m.growthLimit(c) < n && c <= maxCap {
		c <<= 1
	}
	return c
}

// maxCapacity returns the largest power of two capacity whose slots fit in
// a quarter of the address space.
func (m *Map[K, V]) maxCapacity() uintptr {
	limit := (uintptr(1) << (bits.UintSize - 2)) / max(unsafe.Sizeof(Slot[K, V]{}), 1)
	return uintptr(1) << (bits.Len(uint(limit)) - 1)
}

// roundCapacity returns n rounded up to a power of two, and at least
// minCapacity.
func roundCapacity(n int) uintptr {
	if n <= minCapacity {
		return minCapacity
	}
	return uintptr(1) << bits.Len(uint(n-1))
}

func (m *Map[K, V]) rehash() error {
	// Rebuild at the same capacity if dropping tombstones recovers >= 1/3 of
	// the growth limit. We're only called when growthLeft == 0, so the
	// number of tombstones is growthLimit - used. At low max load factors
	// the limit is below C/3, so the threshold is relative to the limit.
	limit := m.growthLimit(m.capacity)
	if recoverable := limit - m.used; recoverable > 0 && recoverable >= limit/3 {
		return m.resize(m.capacity, "insert")
	}
	return m.resize(2*m.capacity, "insert")
}

func (m *Map[K, V]) allocBuckets(capacity uintptr) (bucketArray[K, V], error) {
	if maxCap := m.maxCapacity(); capacity > maxCap {
		return bucketArray[K, V]{}, errors.Wrapf(ErrAllocationLimit,
			"capacity %d exceeds the maximum of %d", capacity, maxCap)
	}
	slots, err := m.allocator.AllocSlots(int(capacity))
	if err != nil {
		return bucketArray[K, V]{}, err
	}
	ctrlBytes, err := m.allocator.AllocControls(int(capacity + groupSize - 1))
	if err != nil {
		m.allocator.FreeSlots(slots)
		return bucketArray[K, V]{}, err
	}
	if uintptr(len(slots)) < capacity || uintptr(len(ctrlBytes)) < capacity+groupSize-1 {
		m.allocator.FreeSlots(slots)
		m.allocator.FreeControls(ctrlBytes)
		return bucketArray[K, V]{}, errors.AssertionFailedf(
			"allocator returned %d slots and %d controls for capacity %d",
			len(slots), len(ctrlBytes), capacity)
	}
	ctrls := unsafeConvertSlice[ctrl](ctrlBytes)
	for i := range ctrls {
		ctrls[i] = ctrlEmpty
	}
	return bucketArray[K, V]{
		ctrls:    makeUnsafeSlice(ctrls),
		slots:    makeUnsafeSlice(slots),
		capacity: capacity,
	}, nil
}

func (m *Map[K, V]) freeBuckets(b bucketArray[K, V]) {
	m.allocator.FreeSlots(b.slots.Slice(0, b.capacity))
	m.allocator.FreeControls(unsafeConvertSlice[uint8](b.ctrls.Slice(0, b.capacity+groupSize-1)))
}

// noSlot is passed to rebuild when no entry is being dropped.
const noSlot = ^uintptr(0)

// resize rebuilds the table at newCapacity by allocating new arrays and
// uncheckedPutting each live element into them (we know that no insertion
// here will Put an already-present value). The old arrays are only released
// once every element has been placed, so a failure at any point leaves the
// Map untouched.
func (m *Map[K, V]) resize(newCapacity uintptr, reason string) error {
	return m.rebuild(newCapacity, reason, noSlot)
}

// rebuild is resize that also drops the live entry at index drop, unless
// drop is noSlot.
func (m *Map[K, V]) rebuild(newCapacity uintptr, reason string, drop uintptr) error {
	b, err := m.allocBuckets(newCapacity)
	if err != nil {
		return errors.Wrapf(err, "oamap: rebuilding %d entries from capacity %d to %d",
			m.used, m.capacity, newCapacity)
	}
	committed := false
	defer func() {
		if !committed {
			m.freeBuckets(b)
		}
	}()

	for i := uintptr(0); i < m.capacity; i++ {
		if i == drop || !m.ctrls.At(i).isFull() {
			continue
		}
		s := m.slots.At(i)
		j, _ := b.uncheckedPut(m.policy.Hash(s.key))
		*b.slots.At(j) = *s
	}
	committed = true

	oldCapacity, tombstones := m.capacity, m.tombstones
	m.freeBuckets(m.bucketArray)
	m.bucketArray = b
	if drop != noSlot {
		m.used--
	}
	m.tombstones = 0
	m.growthLeft = m.growthLimit(newCapacity) - m.used

	m.stats.Rehashes++
	switch {
	case newCapacity > oldCapacity:
		m.stats.Grows++
	case newCapacity < oldCapacity:
		m.stats.Shrinks++
	default:
		m.stats.Compactions++
	}
	if ce := m.logger.Check(zap.DebugLevel, "oamap: rebuilt table"); ce != nil {
		ce.Write(
			zap.String("reason", reason),
			zap.Int("from", int(oldCapacity)),
			zap.Int("to", int(newCapacity)),
			zap.Int("used", m.used),
			zap.Int("tombstones", tombstones),
		)
	}
	if debug {
		fmt.Printf("resize: capacity=%d->%d  growth-left=%d\n",
			oldCapacity, newCapacity, m.growthLeft)
	}

	m.checkInvariants()
	return nil
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		if m.capacity < minCapacity || m.capacity&(m.capacity-1) != 0 {
			panic(errors.AssertionFailedf("invariant failed: capacity %d is not a power of two >= %d",
				m.capacity, minCapacity))
		}
		// Verify the cloned control bytes are good.
		for i, n := uintptr(0), uintptr(groupSize-1); i < n; i++ {
			j := m.capacity + i
			ci := *m.ctrls.At(i)
			cj := *m.ctrls.At(j)
			if ci != cj {
				panic(errors.AssertionFailedf("invariant failed: ctrl(%d)=%02x != ctrl(%d)=%02x\n%s",
					i, ci, j, cj, m.debugString()))
			}
		}

		// For every non-empty slot, verify we can retrieve the key using
		// find. Count the number of used and deleted slots.
		var used, deleted int
		for i := uintptr(0); i < m.capacity; i++ {
			switch c := *m.ctrls.At(i); {
			case c == ctrlDeleted:
				deleted++
			case c == ctrlEmpty:
			case c.isFull():
				s := m.slots.At(i)
				h := m.policy.Hash(s.key)
				if j, ok := m.find(h, s.key); !ok || j != i {
					panic(errors.AssertionFailedf("invariant failed: slot(%d): %v not found [h2=%02x]\n%s",
						i, s.key, h2(h), m.debugString()))
				}
				used++
			default:
				panic(errors.AssertionFailedf("invariant failed: ctrl(%d): unexpected %02x", i, c))
			}
		}

		if used != m.used {
			panic(errors.AssertionFailedf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
		if deleted != m.tombstones {
			panic(errors.AssertionFailedf("invariant failed: found %d deleted slots, but tombstone count is %d\n%s",
				deleted, m.tombstones, m.debugString()))
		}

		growthLeft := m.growthLimit(m.capacity) - m.used - m.tombstones
		if growthLeft != m.growthLeft {
			panic(errors.AssertionFailedf("invariant failed: found %d growthLeft, but expected %d\n%s",
				m.growthLeft, growthLeft, m.debugString()))
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  tombstones=%d  growth-left=%d\n",
		m.capacity, m.used, m.tombstones, m.growthLeft)
	for i := uintptr(0); i < m.capacity+groupSize-1; i++ {
		switch c := *m.ctrls.At(i); c {
		case ctrlEmpty:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case ctrlDeleted:
			fmt.Fprintf(&buf, "  %4d: deleted\n", i)
		default:
			if i < m.capacity {
				s := m.slots.At(i)
				fmt.Fprintf(&buf, "  %4d: %v [ctrl=%02x h2=%02x]\n", i, s.key, c, h2(m.policy.Hash(s.key)))
			} else {
				fmt.Fprintf(&buf, "  %4d: [ctrl=%02x]\n", i, c)
			}
		}
	}
	return buf.String()
}
