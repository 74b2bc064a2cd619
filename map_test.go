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
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/oamap/hashing"
	"github.com/cockroachdb/oamap/internal/corpus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// toBuiltinMap returns the elements as a map[K]V. Useful for testing.
func toBuiltinMap[K comparable, V any](m *Map[K, V]) map[K]V {
	r := make(map[K]V)
	m.All(func(k K, v V) bool {
		r[k] = v
		return true
	})
	return r
}

// randElement returns the first element in bucket order after a random
// starting slot.
func (m *Map[K, V]) randElement(rng *rand.Rand) (key K, value V, ok bool) {
	if m.used == 0 {
		return key, value, false
	}
	start := uintptr(rng.Intn(int(m.capacity)))
	for i := uintptr(0); i < m.capacity; i++ {
		j := (start + i) & m.mask()
		if m.ctrls.At(j).isFull() {
			s := m.slots.At(j)
			return s.key, s.value, true
		}
	}
	return key, value, false
}

func newMap[K comparable, V any](t *testing.T, initialCapacity int, options ...Option[K, V]) *Map[K, V] {
	m, err := New[K, V](initialCapacity, options...)
	require.NoError(t, err)
	return m
}

func TestLittleEndian(t *testing.T) {
	// The implementation of group h2 matching and group empty and deleted
	// masking assumes a little endian CPU architecture. Assert that we are
	// running on one.
	b := []uint8{0x1, 0x2, 0x3, 0x4}
	v := *(*uint32)(unsafe.Pointer(&b[0]))
	require.EqualValues(t, 0x04030201, v)
}

func TestProbeSeq(t *testing.T) {
	genSeq := func(n int, hash uint64, mask uintptr) []uintptr {
		seq := makeProbeSeq(hash, mask)
		vals := make([]uintptr, n)
		for i := 0; i < n; i++ {
			vals[i] = seq.offset
			seq = seq.next()
		}
		return vals
	}
	groups := func(expected []uintptr, start uintptr) []uintptr {
		r := make([]uintptr, len(expected))
		for i := range expected {
			r[i] = start + groupSize*expected[i]
		}
		return r
	}

	// The Abseil probeSeq test cases, scaled to group granularity: a table of
	// 128 slots has 16 groups.
	expected := []uintptr{0, 1, 3, 6, 10, 15, 5, 12, 4, 13, 7, 2, 14, 11, 9, 8}
	require.Equal(t, groups(expected, 0), genSeq(16, 0, 127))
	require.Equal(t, groups(expected, 0), genSeq(16, 128, 127))

	// Verify that we touch every slot no matter what our start offset within
	// the group is.
	for _, mask := range []uintptr{7, 15, 127, 1023} {
		for h := uint64(0); h < 64; h++ {
			seq := makeProbeSeq(h, mask)
			seen := make(map[uintptr]struct{})
			for p := seq.probes(); p > 0; p, seq = p-1, seq.next() {
				for i := uintptr(0); i < groupSize; i++ {
					seen[seq.offsetAt(i)] = struct{}{}
				}
			}
			require.Len(t, seen, int(mask+1), "mask=%d h=%d", mask, h)
		}
	}

	// The group starts are a permutation of the groups.
	vals := genSeq(16, 3, 127)
	sort.Slice(vals, func(i, j int) bool {
		return vals[i] < vals[j]
	})
	require.Equal(t, groups([]uintptr{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, 3), vals)
}

func TestMatchH2(t *testing.T) {
	ctrls := []ctrl{0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8}
	for i := uintptr(1); i <= 8; i++ {
		match := (&ctrls[0]).matchH2(i)
		bit := match.next()
		require.EqualValues(t, i-1, bit)
	}
}

// matchGroup returns the indexes within the group starting at ctrls[0]
// that fn matches.
func matchGroup(ctrls []ctrl, fn func(c *ctrl) bitset) []uintptr {
	match := fn(&ctrls[0])
	var results []uintptr
	for match != 0 {
		idx := match.next()
		results = append(results, idx)
		match = match.clear(idx)
	}
	return results
}

func TestMatchEmpty(t *testing.T) {
	testCases := []struct {
		ctrls    []ctrl
		expected []uintptr
	}{
		{[]ctrl{0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8}, nil},
		{[]ctrl{0x1, 0x2, 0x3, ctrlEmpty, 0x5, ctrlDeleted, 0x7, 0x7f}, []uintptr{3}},
		{[]ctrl{0x1, 0x2, 0x3, ctrlEmpty, 0x5, 0x6, ctrlEmpty, 0x8}, []uintptr{3, 6}},
	}
	for _, c := range testCases {
		t.Run("", func(t *testing.T) {
			require.Equal(t, c.expected, matchGroup(c.ctrls, (*ctrl).matchEmpty))
		})
	}
}

func TestMatchEmptyOrDeleted(t *testing.T) {
	testCases := []struct {
		ctrls    []ctrl
		expected []uintptr
	}{
		{[]ctrl{0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8}, nil},
		{[]ctrl{0x1, 0x2, ctrlEmpty, ctrlDeleted, 0x5, 0x6, 0x7, 0x0}, []uintptr{2, 3}},
	}
	for _, c := range testCases {
		t.Run("", func(t *testing.T) {
			require.Equal(t, c.expected, matchGroup(c.ctrls, (*ctrl).matchEmptyOrDeleted))
		})
	}
}

func TestMatchFull(t *testing.T) {
	ctrls := []ctrl{ctrlEmpty, 0x0, ctrlDeleted, 0x7f, ctrlEmpty, ctrlEmpty, 0x12, ctrlDeleted}
	require.Equal(t, []uintptr{1, 3, 6}, matchGroup(ctrls, (*ctrl).matchFull))
}

func TestH2(t *testing.T) {
	// Fingerprints are 7 bits and depend on the high and low bits of the
	// hash alike.
	seen := make(map[uintptr]struct{})
	for h := uint64(0); h < 1024; h++ {
		fp := h2(h)
		require.Less(t, fp, uintptr(0x80))
		seen[fp] = struct{}{}
	}
	require.Greater(t, len(seen), 100)
	require.NotEqual(t, h2(1), h2(1<<32|1))
}

func TestInitialCapacity(t *testing.T) {
	testCases := []struct {
		initialCapacity  int
		expectedCapacity int
	}{
		{-1, 8},
		{0, 8},
		{1, 8},
		{8, 8},
		{9, 16},
		{100, 128},
		{1024, 1024},
		{1025, 2048},
	}
	for _, c := range testCases {
		t.Run("", func(t *testing.T) {
			m := newMap[int, int](t, c.initialCapacity)
			require.EqualValues(t, c.expectedCapacity, m.BucketCount())
			require.EqualValues(t, 0, m.Len())
			require.True(t, m.Empty())
			require.EqualValues(t, m.growthLimit(m.capacity), m.growthLeft)
		})
	}
}

func TestBasic(t *testing.T) {
	test := func(t *testing.T, m *Map[int, int]) {
		const count = 100

		e := make(map[int]int)
		require.EqualValues(t, 0, m.Len())

		// Non-existent.
		for i := 0; i < count; i++ {
			_, ok := m.Get(i)
			require.False(t, ok)
			require.Nil(t, m.Find(i))
			require.False(t, m.Contains(i))
		}

		// Insert.
		for i := 0; i < count; i++ {
			inserted, err := m.Insert(i, i+count)
			require.NoError(t, err)
			require.True(t, inserted)
			e[i] = i + count
			v, ok := m.Get(i)
			require.True(t, ok)
			require.EqualValues(t, i+count, v)
			require.EqualValues(t, i+1, m.Len())
			require.Equal(t, e, toBuiltinMap(m))
		}

		// Update.
		for i := 0; i < count; i++ {
			inserted, err := m.Insert(i, i+2*count)
			require.NoError(t, err)
			require.False(t, inserted)
			e[i] = i + 2*count
			v := m.Find(i)
			require.NotNil(t, v)
			require.EqualValues(t, i+2*count, *v)
			require.EqualValues(t, count, m.Len())
			require.Equal(t, e, toBuiltinMap(m))
		}

		// Delete.
		for i := 0; i < count; i++ {
			require.EqualValues(t, 1, m.Erase(i))
			require.EqualValues(t, 0, m.Erase(i))
			delete(e, i)
			require.EqualValues(t, count-i-1, m.Len())
			_, ok := m.Get(i)
			require.False(t, ok)
			require.Equal(t, e, toBuiltinMap(m))
		}
		require.True(t, m.Empty())
	}

	t.Run("normal", func(t *testing.T) {
		test(t, newMap[int, int](t, 0))
	})

	t.Run("integer", func(t *testing.T) {
		m, err := NewWithPolicy[int, int](0, IntegerPolicy[int]())
		require.NoError(t, err)
		test(t, m)
	})

	t.Run("degenerate", func(t *testing.T) {
		testDegenerate := func(t *testing.T, h uint64) {
			m := newMap[int, int](t, 0, WithHash[int, int](func(key int) uint64 {
				return h
			}))
			test(t, m)
		}

		for _, v := range []uint64{0, ^uint64(0)} {
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
		for i := 0; i < 10; i++ {
			v := rand.Uint64()
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
	})
}

func TestRandom(t *testing.T) {
	test := func(t *testing.T, m *Map[int, int], ops int) {
		rng := rand.New(rand.NewSource(rand.Int63()))
		e := make(map[int]int)
		for i := 0; i < ops; i++ {
			switch r := rng.Float64(); {
			case r < 0.5: // 50% inserts
				k, v := rng.Int(), rng.Int()
				m.Put(k, v)
				e[k] = v
			case r < 0.65: // 15% updates
				if k, _, ok := m.randElement(rng); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					v := rng.Int()
					m.Put(k, v)
					e[k] = v
				}
			case r < 0.80: // 15% deletes
				if k, _, ok := m.randElement(rng); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					require.EqualValues(t, 1, m.Erase(k))
					delete(e, k)
				}
			case r < 0.95: // 15% lookups
				if k, v, ok := m.randElement(rng); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					require.EqualValues(t, e[k], v)
				}
			default: // 5% rehash and iterate
				require.NoError(t, m.Rehash(rng.Intn(2*m.BucketCount())))
				require.Equal(t, e, toBuiltinMap(m))
			}
			require.EqualValues(t, len(e), m.Len())
			require.LessOrEqual(t, m.Len()+m.Tombstones(), m.growthLimit(m.capacity))
		}
		require.Equal(t, e, toBuiltinMap(m))
	}

	t.Run("normal", func(t *testing.T) {
		test(t, newMap[int, int](t, 0), 10000)
	})

	t.Run("compaction", func(t *testing.T) {
		test(t, newMap[int, int](t, 0, WithTombstoneCompaction[int, int](0.1)), 10000)
	})

	t.Run("degenerate", func(t *testing.T) {
		testDegenerate := func(t *testing.T, h uint64) {
			m := newMap[int, int](t, 0, WithHash[int, int](func(key int) uint64 {
				return h ^ uint64(key&1)
			}))
			test(t, m, 1000)
		}

		for _, v := range []uint64{0, ^uint64(0)} {
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
	})
}

func TestEmplace(t *testing.T) {
	m := newMap[string, []string](t, 0)
	v, inserted, err := m.Emplace("Accept")
	require.NoError(t, err)
	require.True(t, inserted)
	require.Nil(t, *v)
	*v = append(*v, "text/html")

	v, inserted, err = m.Emplace("Accept")
	require.NoError(t, err)
	require.False(t, inserted)
	*v = append(*v, "application/json")

	got, ok := m.Get("Accept")
	require.True(t, ok)
	require.Equal(t, []string{"text/html", "application/json"}, got)
	require.EqualValues(t, 1, m.Len())
}

func TestHeaderScenario(t *testing.T) {
	m, err := NewWithPolicy[string, string](8, StringPolicy(hashing.CRC32C64))
	require.NoError(t, err)
	require.EqualValues(t, 8, m.BucketCount())

	keys := corpus.HeaderNames()[:8]
	for i, k := range keys[:7] {
		m.Put(k, strconv.Itoa(i))
		require.EqualValues(t, 8, m.BucketCount())
	}
	require.EqualValues(t, 7, m.Len())
	require.EqualValues(t, 0, m.growthLeft)

	m.Put(keys[7], "7")
	require.EqualValues(t, 16, m.BucketCount())
	require.EqualValues(t, 8, m.Len())
	require.EqualValues(t, 1, m.Stats().Grows)

	for i, k := range keys {
		v, ok := m.Get(k)
		require.True(t, ok, k)
		require.Equal(t, strconv.Itoa(i), v)
	}
}

func TestTombstones(t *testing.T) {
	// Every key collides so each lookup walks past the erased slot.
	m := newMap[int, int](t, 0, WithHash[int, int](func(key int) uint64 {
		return 5
	}))
	for i := 1; i <= 5; i++ {
		m.Put(i, i)
	}
	require.EqualValues(t, 1, m.Erase(2))
	require.EqualValues(t, 1, m.Tombstones())
	require.False(t, m.Contains(2))
	for _, k := range []int{1, 3, 4, 5} {
		v, ok := m.Get(k)
		require.True(t, ok)
		require.EqualValues(t, k, v)
	}

	// Re-inserting reuses the tombstone.
	m.Put(2, 20)
	require.EqualValues(t, 0, m.Tombstones())
	require.EqualValues(t, 5, m.Len())
}

func TestFullyTombstoned(t *testing.T) {
	m := newMap[int, int](t, 8)
	for i := uintptr(0); i < m.capacity; i++ {
		m.setCtrl(i, ctrlDeleted)
	}
	// Lookups are bounded by the number of groups even though no group
	// contains an empty slot.
	for i := 0; i < 100; i++ {
		_, ok := m.find(uint64(i), i)
		require.False(t, ok)
	}
}

func TestTombstoneRecovery(t *testing.T) {
	m := newMap[int, int](t, 8)
	for i := 0; i < 7; i++ {
		m.Put(i, i)
	}
	for i := 0; i < 3; i++ {
		require.EqualValues(t, 1, m.Erase(i))
	}
	require.EqualValues(t, 3, m.Tombstones())
	require.EqualValues(t, 0, m.growthLeft)

	// The tombstones are at least a third of the growth limit, so the insert
	// compacts rather than growing.
	m.Put(100, 100)
	require.EqualValues(t, 8, m.BucketCount())
	require.EqualValues(t, 0, m.Tombstones())
	require.Equal(t, Stats{Compactions: 1, Rehashes: 1}, m.Stats())
	require.Equal(t, map[int]int{3: 3, 4: 4, 5: 5, 6: 6, 100: 100}, toBuiltinMap(m))
}

func TestTombstoneCompaction(t *testing.T) {
	_, err := New[int, int](0, WithTombstoneCompaction[int, int](1.5))
	require.Error(t, err)

	m := newMap[int, int](t, 8, WithTombstoneCompaction[int, int](0.25))
	for i := 0; i < 7; i++ {
		m.Put(i, i)
	}
	m.Erase(0)
	m.Erase(1)
	require.EqualValues(t, 2, m.Tombstones())
	m.Erase(2)
	require.EqualValues(t, 0, m.Tombstones())
	require.EqualValues(t, 1, m.Stats().Compactions)
	require.Equal(t, map[int]int{3: 3, 4: 4, 5: 5, 6: 6}, toBuiltinMap(m))
}

func TestLoadFactor(t *testing.T) {
	for _, f := range []float64{minMaxLoadFactor, 0.5, defaultMaxLoadFactor, maxMaxLoadFactor} {
		t.Run(fmt.Sprint(f), func(t *testing.T) {
			m := newMap[int, int](t, 0, WithMaxLoadFactor[int, int](f))
			for i := 0; i < 1000; i++ {
				m.Put(i, i)
				require.LessOrEqual(t, m.LoadFactor(), f)
				require.Less(t, m.Len(), m.BucketCount())
			}
			require.Equal(t, 1000, len(toBuiltinMap(m)))
		})
	}

	// Insert/erase churn over a small live set compacts in place instead of
	// growing without bound.
	for _, f := range []float64{minMaxLoadFactor, 0.25, 0.3, 0.5, defaultMaxLoadFactor, maxMaxLoadFactor} {
		for _, live := range []int{0, 1, 3, 50} {
			t.Run(fmt.Sprintf("churn/%v/%d", f, live), func(t *testing.T) {
				m := newMap[int, int](t, 0, WithMaxLoadFactor[int, int](f))
				bound := 2 * m.capacityFor(live+1)
				for i := 0; i < 20000; i++ {
					m.Put(i, i)
					if i >= live {
						require.EqualValues(t, 1, m.Erase(i-live))
					}
					require.LessOrEqual(t, uintptr(m.BucketCount()), bound)
					require.LessOrEqual(t, m.LoadFactor(), f)
				}
				require.Equal(t, live, m.Len())
				require.Greater(t, m.Stats().Compactions, 0)
				for i := 20000 - live; i < 20000; i++ {
					require.True(t, m.Contains(i))
				}
			})
		}
	}

	for _, f := range []float64{0, 0.1, 0.95, 1, 2} {
		_, err := New[int, int](0, WithMaxLoadFactor[int, int](f))
		require.True(t, errors.Is(err, ErrInvalidLoadFactor), "%v", f)
	}
}

func TestCapacityLimit(t *testing.T) {
	m := newMap[int, int](t, 0)
	for i := 0; i < 5; i++ {
		m.Put(i, i)
	}
	e := toBuiltinMap(m)

	for _, n := range []int{math.MaxInt, math.MaxInt / 2, 1 << (strconv.IntSize - 2)} {
		err := m.Reserve(n)
		require.True(t, errors.Is(err, ErrAllocationLimit), "%d: %v", n, err)
		err = m.Rehash(n)
		require.True(t, errors.Is(err, ErrAllocationLimit), "%d: %v", n, err)
		require.NoError(t, m.ShrinkToFit(n))
	}
	require.EqualValues(t, 8, m.BucketCount())
	require.Equal(t, e, toBuiltinMap(m))
	require.Equal(t, Stats{}, m.Stats())

	_, err := New[int, int](math.MaxInt)
	require.True(t, errors.Is(err, ErrAllocationLimit), "%v", err)

	// The largest capacity still addresses every slot.
	maxCap := m.maxCapacity()
	require.EqualValues(t, 0, maxCap&(maxCap-1))
	require.LessOrEqual(t, uint64(maxCap)*uint64(unsafe.Sizeof(Slot[int, int]{})), uint64(1)<<(strconv.IntSize-2))
	require.Greater(t, m.capacityFor(math.MaxInt), maxCap)
}

func TestGrowth(t *testing.T) {
	m := newMap[int, int](t, 0)
	for i := 0; i < 100; i++ {
		m.Put(i, -i)
	}
	// 8 -> 16 -> 32 -> 64 -> 128
	require.EqualValues(t, 128, m.BucketCount())
	require.GreaterOrEqual(t, m.Stats().Grows, 3)
	require.Equal(t, Stats{Grows: 4, Rehashes: 4}, m.Stats())
	for i := 0; i < 100; i++ {
		v, ok := m.Get(i)
		require.True(t, ok)
		require.EqualValues(t, -i, v)
	}
}

func TestRehash(t *testing.T) {
	m := newMap[int, int](t, 0)
	for i := 0; i < 20; i++ {
		m.Put(i, i)
	}
	e := toBuiltinMap(m)
	stats := m.Stats()

	// Rehashing to the current bucket count is a no-op.
	require.NoError(t, m.Rehash(m.BucketCount()))
	require.Equal(t, stats, m.Stats())
	require.Equal(t, e, toBuiltinMap(m))

	require.NoError(t, m.Rehash(1000))
	require.EqualValues(t, 1024, m.BucketCount())
	require.Equal(t, e, toBuiltinMap(m))

	// The target never drops below what the entries need.
	require.NoError(t, m.Rehash(0))
	require.EqualValues(t, 32, m.BucketCount())
	require.Equal(t, e, toBuiltinMap(m))
	require.Equal(t, stats.Grows+1, m.Stats().Grows)
	require.Equal(t, stats.Shrinks+1, m.Stats().Shrinks)
}

func TestReserve(t *testing.T) {
	m := newMap[int, int](t, 0)
	require.NoError(t, m.Reserve(100))
	require.EqualValues(t, 128, m.BucketCount())
	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}
	require.EqualValues(t, 128, m.BucketCount())
	require.EqualValues(t, 1, m.Stats().Grows)

	require.NoError(t, m.Reserve(10))
	require.EqualValues(t, 128, m.BucketCount())
}

func TestShrinkToFit(t *testing.T) {
	m := newMap[int, int](t, 0)
	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}
	for i := 5; i < 100; i++ {
		m.Erase(i)
	}
	require.NoError(t, m.ShrinkToFit(1000))
	require.EqualValues(t, 128, m.BucketCount())

	require.NoError(t, m.ShrinkToFit(0))
	require.EqualValues(t, 8, m.BucketCount())
	require.EqualValues(t, 0, m.Tombstones())
	require.EqualValues(t, 1, m.Stats().Shrinks)
	require.Equal(t, map[int]int{0: 0, 1: 1, 2: 2, 3: 3, 4: 4}, toBuiltinMap(m))
}

func TestCompact(t *testing.T) {
	m := newMap[int, int](t, 0)
	for i := 0; i < 50; i++ {
		m.Put(i, i)
	}
	require.NoError(t, m.Compact())
	require.EqualValues(t, 0, m.Stats().Compactions)

	for i := 0; i < 25; i++ {
		m.Erase(i)
	}
	capacity := m.BucketCount()
	require.NoError(t, m.Compact())
	require.EqualValues(t, capacity, m.BucketCount())
	require.EqualValues(t, 0, m.Tombstones())
	require.EqualValues(t, 1, m.Stats().Compactions)
	require.EqualValues(t, m.growthLimit(m.capacity)-25, m.growthLeft)
}

func TestIterateMutate(t *testing.T) {
	m := newMap[int, int](t, 0)
	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}
	e := toBuiltinMap(m)
	require.EqualValues(t, 100, m.Len())
	require.EqualValues(t, 100, len(e))

	// Iterate over the map, resizing it periodically. We should see all of
	// the elements that were originally in the map because All takes a
	// snapshot of the ctrls and slots before iterating.
	vals := make(map[int]int)
	m.All(func(k, v int) bool {
		if (k % 10) == 0 {
			require.NoError(t, m.Rehash(2*m.BucketCount()))
		}
		vals[k] = v
		return true
	})
	require.EqualValues(t, e, vals)
}

func TestAllStop(t *testing.T) {
	m := newMap[int, int](t, 0)
	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}
	n := 0
	for range m.All {
		n++
		if n == 10 {
			break
		}
	}
	require.Equal(t, 10, n)
}

func TestClear(t *testing.T) {
	m := newMap[int, int](t, 0)
	for i := 0; i < 1000; i++ {
		m.Put(i, i)
	}
	for i := 0; i < 100; i++ {
		m.Erase(i)
	}

	capacity := m.BucketCount()
	m.Clear()
	require.EqualValues(t, 0, m.Len())
	require.EqualValues(t, 0, m.Tombstones())
	require.EqualValues(t, capacity, m.BucketCount())
	require.False(t, m.Contains(500))

	m.All(func(k, v int) bool {
		require.Fail(t, "should not iterate")
		return true
	})

	m.Put(1, 1)
	require.EqualValues(t, 1, m.Len())
}

type countingAllocator[K any, V any] struct {
	alloc int
	free  int
}

func (a *countingAllocator[K, V]) AllocSlots(n int) ([]Slot[K, V], error) {
	a.alloc++
	return make([]Slot[K, V], n), nil
}

func (a *countingAllocator[K, V]) AllocControls(n int) ([]uint8, error) {
	return make([]uint8, n), nil
}

func (a *countingAllocator[K, V]) FreeSlots(_ []Slot[K, V]) {
	a.free++
}

func (a *countingAllocator[K, V]) FreeControls(_ []uint8) {
}

// shortAllocator hands out one slot fewer than requested.
type shortAllocator struct {
	countingAllocator[int, int]
	controlsFreed int
}

func (a *shortAllocator) AllocSlots(n int) ([]Slot[int, int], error) {
	a.alloc++
	return make([]Slot[int, int], n-1), nil
}

func (a *shortAllocator) FreeControls(_ []uint8) {
	a.controlsFreed++
}

func TestAllocator(t *testing.T) {
	a := &countingAllocator[int, int]{}
	m := newMap[int, int](t, 0, WithAllocator[int, int](a))

	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}

	// 8 -> 16 -> 32 -> 64 -> 128
	const expected = 5
	require.EqualValues(t, expected, a.alloc)
	require.EqualValues(t, expected-1, a.free)

	m.Close()
	require.EqualValues(t, expected, a.free)

	m.Close()
	require.EqualValues(t, expected, a.free)
}

func TestAllocationFailure(t *testing.T) {
	slotSize := int(unsafe.Sizeof(Slot[int, int]{}))
	tableBytes := func(capacity int) int {
		return capacity*slotSize + capacity + groupSize - 1
	}

	testCases := []struct {
		name  string
		limit int
	}{
		// The slots of the grown table do not fit.
		{"slots", tableBytes(8) + 16*slotSize - 1},
		// The slots fit but the controls do not.
		{"controls", tableBytes(8) + 16*slotSize + 1},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			a := NewLimitAllocator[int, int](c.limit)
			m := newMap[int, int](t, 0, WithAllocator[int, int](a))
			require.EqualValues(t, tableBytes(8), a.InUse())
			for i := 0; i < 7; i++ {
				m.Put(i, i)
			}
			e := toBuiltinMap(m)

			inserted, err := m.Insert(7, 7)
			require.False(t, inserted)
			require.True(t, errors.Is(err, ErrAllocationLimit), "%v", err)
			require.Panics(t, func() { m.Put(7, 7) })

			// The failed insert left the map untouched.
			require.EqualValues(t, tableBytes(8), a.InUse())
			require.EqualValues(t, 8, m.BucketCount())
			require.EqualValues(t, 7, m.Len())
			require.False(t, m.Contains(7))
			require.Equal(t, e, toBuiltinMap(m))
			require.Equal(t, Stats{}, m.Stats())
			require.Error(t, m.Reserve(100))

			// Updates of existing keys need no memory.
			m.Put(3, 30)
			v, _ := m.Get(3)
			require.EqualValues(t, 30, v)

			a.SetLimit(1 << 20)
			m.Put(7, 7)
			require.EqualValues(t, 16, m.BucketCount())
			require.EqualValues(t, tableBytes(16), a.InUse())

			m.Close()
			require.EqualValues(t, 0, a.InUse())
		})
	}

	t.Run("short", func(t *testing.T) {
		a := &shortAllocator{}
		_, err := New[int, int](0, WithAllocator[int, int](a))
		require.Error(t, err)
		require.EqualValues(t, 1, a.alloc)
		require.EqualValues(t, 1, a.free)
		require.EqualValues(t, 1, a.controlsFreed)
	})

	t.Run("initial", func(t *testing.T) {
		a := NewLimitAllocator[int, int](100)
		_, err := New[int, int](64, WithAllocator[int, int](a))
		require.True(t, errors.Is(err, ErrAllocationLimit))
		require.EqualValues(t, 0, a.InUse())
	})
}

// panickingPolicy hashes ints with the identity and panics after a fixed
// number of Hash calls once armed.
type panickingPolicy struct {
	armed bool
	calls int
	limit int
}

func (p *panickingPolicy) Hash(key int) uint64 {
	if p.armed {
		p.calls++
		if p.calls > p.limit {
			panic("hash failure")
		}
	}
	return uint64(key) * 0x9e3779b97f4a7c15
}

func (p *panickingPolicy) Equal(a, b int) bool {
	return a == b
}

func TestPolicyPanic(t *testing.T) {
	p := &panickingPolicy{}
	a := NewLimitAllocator[int, int](1 << 20)
	m, err := NewWithPolicy[int, int](0, p, WithAllocator[int, int](a))
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		m.Put(i, i)
	}
	e := toBuiltinMap(m)
	inUse := a.InUse()

	// The first call hashes the new key; the panic hits while migrating
	// into the grown table.
	p.armed, p.limit = true, 3
	require.PanicsWithValue(t, "hash failure", func() { m.Put(7, 7) })
	p.armed = false

	require.EqualValues(t, inUse, a.InUse())
	require.EqualValues(t, 8, m.BucketCount())
	require.EqualValues(t, 7, m.Len())
	require.Equal(t, e, toBuiltinMap(m))
	for k, v := range e {
		got, ok := m.Get(k)
		require.True(t, ok)
		require.Equal(t, v, got)
	}

	m.Put(7, 7)
	require.EqualValues(t, 16, m.BucketCount())
	require.EqualValues(t, 8, m.Len())
}

func TestPolicyPanicDuringEraseCompaction(t *testing.T) {
	p := &panickingPolicy{}
	m, err := NewWithPolicy[int, int](0, p, WithTombstoneCompaction[int, int](0.25))
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		m.Put(i, i)
	}
	m.Erase(0)
	m.Erase(1)
	require.EqualValues(t, 2, m.Tombstones())
	e := toBuiltinMap(m)

	// The third erase compacts. Its own lookup hashes once, the rebuild
	// panics on the next key.
	p.armed, p.limit = true, 1
	require.PanicsWithValue(t, "hash failure", func() { m.Erase(2) })
	p.armed = false

	require.EqualValues(t, 5, m.Len())
	require.EqualValues(t, 2, m.Tombstones())
	require.True(t, m.Contains(2))
	require.Equal(t, e, toBuiltinMap(m))
	require.Equal(t, Stats{}, m.Stats())

	require.EqualValues(t, 1, m.Erase(2))
	require.EqualValues(t, 0, m.Tombstones())
	require.Equal(t, Stats{Compactions: 1, Rehashes: 1}, m.Stats())
	require.Equal(t, map[int]int{3: 3, 4: 4, 5: 5, 6: 6}, toBuiltinMap(m))
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := newMap[int, int](t, 0, WithLogger[int, int](zap.New(core)))
	for i := 0; i < 8; i++ {
		m.Put(i, i)
	}
	entries := logs.FilterMessage("oamap: rebuilt table").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "insert", fields["reason"])
	require.EqualValues(t, 8, fields["from"])
	require.EqualValues(t, 16, fields["to"])
	require.EqualValues(t, 7, fields["used"])

	require.NoError(t, m.Compact())
	require.NoError(t, m.Rehash(64))
	require.Equal(t, 2, logs.FilterField(zap.String("reason", "rehash")).Len()+
		logs.FilterField(zap.String("reason", "insert")).Len())
}

func TestOptionErrors(t *testing.T) {
	_, err := NewWithPolicy[int, int](0, nil)
	require.Error(t, err)
	_, err = New[int, int](0, WithPolicy[int, int](nil))
	require.Error(t, err)
	_, err = New[int, int](0, WithAllocator[int, int](nil))
	require.Error(t, err)
	_, err = New[int, int](0, WithHash[int, int](nil))
	require.Error(t, err)

	m := newMap[int, int](t, 0, WithLogger[int, int](nil))
	m.Put(1, 1)
	require.True(t, m.Contains(1))
}

func TestInvariants(t *testing.T) {
	m := newMap[int, int](t, 0)
	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}
	for i := 0; i < 50; i += 2 {
		m.Erase(i)
	}
	require.NotPanics(t, func() {
		m.checkInvariants()
	})
	require.Contains(t, m.debugString(), "deleted")

	if invariants {
		m.used++
		require.Panics(t, func() {
			m.checkInvariants()
		})
		m.used--
	}
}
