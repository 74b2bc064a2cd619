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
	"bytes"
	"hash/maphash"

	"github.com/cockroachdb/oamap/hashing"
	"github.com/cockroachdb/oamap/strview"
)

// Policy supplies the hash function and the equality comparator for keys of
// type K. Hash must be deterministic for the lifetime of a Map and must
// return equal values for keys that Equal reports as equal. The Map never
// treats equal hashes as equal keys.
//
// A panicking Hash or Equal propagates to the caller of the Map operation
// and no mutation is committed for that call.
type Policy[K any] interface {
	Hash(key K) uint64
	Equal(a, b K) bool
}

type funcPolicy[K any] struct {
	hash  func(K) uint64
	equal func(a, b K) bool
}

func (p funcPolicy[K]) Hash(key K) uint64 { return p.hash(key) }

func (p funcPolicy[K]) Equal(a, b K) bool { return p.equal(a, b) }

// PolicyFuncs adapts a pair of functions to a Policy.
func PolicyFuncs[K any](hash func(key K) uint64, equal func(a, b K) bool) Policy[K] {
	return funcPolicy[K]{hash: hash, equal: equal}
}

type comparablePolicy[K comparable] struct {
	seed maphash.Seed
}

func (p comparablePolicy[K]) Hash(key K) uint64 { return maphash.Comparable(p.seed, key) }

func (comparablePolicy[K]) Equal(a, b K) bool { return a == b }

// ComparablePolicy hashes any comparable key with hash/maphash using a
// random seed and compares keys with ==. It is the policy used by New.
func ComparablePolicy[K comparable]() Policy[K] {
	return comparablePolicy[K]{seed: maphash.MakeSeed()}
}

type stringPolicy struct {
	fn hashing.Func
}

func (p stringPolicy) Hash(key string) uint64 { return p.fn(bytesOfString(key)) }

func (stringPolicy) Equal(a, b string) bool { return a == b }

// StringPolicy hashes the bytes of string keys with fn.
func StringPolicy(fn hashing.Func) Policy[string] {
	return stringPolicy{fn: fn}
}

type bytesPolicy struct {
	fn hashing.Func
}

func (p bytesPolicy) Hash(key []byte) uint64 { return p.fn(key) }

func (bytesPolicy) Equal(a, b []byte) bool { return bytes.Equal(a, b) }

// BytesPolicy hashes byte slice keys with fn and compares them byte-wise. A
// Map does not copy []byte keys; they must not be modified while stored.
func BytesPolicy(fn hashing.Func) Policy[[]byte] {
	return bytesPolicy{fn: fn}
}

type viewPolicy struct {
	fn hashing.Func
}

func (p viewPolicy) Hash(key strview.View) uint64 { return p.fn(key.Bytes()) }

func (viewPolicy) Equal(a, b strview.View) bool { return a.Equal(b) }

// ViewPolicy hashes and compares the bytes referenced by borrowed string
// views. The referenced bytes must outlive every entry using them.
func ViewPolicy(fn hashing.Func) Policy[strview.View] {
	return viewPolicy{fn: fn}
}

// Integer is the set of key types supported by IntegerPolicy.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

type integerPolicy[K Integer] struct{}

func (integerPolicy[K]) Hash(key K) uint64 { return uint64(key) }

func (integerPolicy[K]) Equal(a, b K) bool { return a == b }

// IntegerPolicy passes integer keys through as their own hash. It agrees
// with hashing.Passthrough applied to the 8-byte little-endian encoding of
// uint64(key).
func IntegerPolicy[K Integer]() Policy[K] {
	return integerPolicy[K]{}
}
