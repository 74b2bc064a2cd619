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
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Option configures a Map while it is being created.
type Option[K any, V any] interface {
	apply(m *Map[K, V]) error
}

type optionFunc[K any, V any] func(m *Map[K, V]) error

func (f optionFunc[K, V]) apply(m *Map[K, V]) error {
	return f(m)
}

// WithPolicy specifies the hash and equality policy used for keys. It
// replaces the policy passed to NewWithPolicy (or the comparable policy used
// by New).
func WithPolicy[K any, V any](policy Policy[K]) Option[K, V] {
	return optionFunc[K, V](func(m *Map[K, V]) error {
		if policy == nil {
			return errors.New("oamap: nil policy")
		}
		m.policy = policy
		return nil
	})
}

// WithHash replaces the hash function of the configured policy while
// keeping its equality. Options are applied in order, so WithHash must come
// after any WithPolicy it is meant to modify.
func WithHash[K any, V any](hash func(key K) uint64) Option[K, V] {
	return optionFunc[K, V](func(m *Map[K, V]) error {
		if hash == nil {
			return errors.New("oamap: nil hash function")
		}
		m.policy = PolicyFuncs(hash, m.policy.Equal)
		return nil
	})
}

// WithAllocator is an option to specify the Allocator to use for a Map[K,V].
func WithAllocator[K any, V any](allocator Allocator[K, V]) Option[K, V] {
	return optionFunc[K, V](func(m *Map[K, V]) error {
		if allocator == nil {
			return errors.New("oamap: nil allocator")
		}
		m.allocator = allocator
		return nil
	})
}

// WithLogger is an option to specify the logger receiving rebuild events.
// The default logger discards everything.
func WithLogger[K any, V any](logger *zap.Logger) Option[K, V] {
	return optionFunc[K, V](func(m *Map[K, V]) error {
		if logger == nil {
			logger = zap.NewNop()
		}
		m.logger = logger
		return nil
	})
}

// WithMaxLoadFactor sets the ratio of live entries to capacity above which
// the table grows. It must lie in [0.125, 0.9375]; the default is 0.875.
func WithMaxLoadFactor[K any, V any](f float64) Option[K, V] {
	return optionFunc[K, V](func(m *Map[K, V]) error {
		if !(f >= minMaxLoadFactor && f <= maxMaxLoadFactor) {
			return errors.Wrapf(ErrInvalidLoadFactor, "%v not in [%v, %v]",
				f, minMaxLoadFactor, maxMaxLoadFactor)
		}
		m.maxLoadFactor = f
		return nil
	})
}

// WithTombstoneCompaction makes Erase rebuild the table in place whenever
// the number of tombstones exceeds fraction*capacity. Without it tombstones
// are only reclaimed when an insert runs out of room.
func WithTombstoneCompaction[K any, V any](fraction float64) Option[K, V] {
	return optionFunc[K, V](func(m *Map[K, V]) error {
		if !(fraction > 0 && fraction < 1) {
			return errors.Newf("oamap: tombstone fraction %v not in (0, 1)", fraction)
		}
		m.compactFraction = fraction
		return nil
	})
}
