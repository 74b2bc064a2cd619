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

package hashing

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Func hashes a byte span. A Func must be deterministic and must not retain
// or modify b.
type Func func(b []byte) uint64

// Time31 returns h = h*31 + c over the bytes of b, starting from 0.
func Time31(b []byte) uint64 {
	var h uint64
	for _, c := range b {
		h = h*31 + uint64(c)
	}
	return h
}

// Passthrough returns the first eight bytes of b as a little-endian
// integer. Shorter inputs are zero padded.
func Passthrough(b []byte) uint64 {
	if len(b) >= 8 {
		return binary.LittleEndian.Uint64(b)
	}
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// XXH64 returns the xxHash64 of b with a zero seed.
func XXH64(b []byte) uint64 {
	return xxhash.Sum64(b)
}
