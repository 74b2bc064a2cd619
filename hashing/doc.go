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

// Package hashing provides hash functions over byte spans for use as the
// hash half of an oamap.Policy.
//
// CRC32C is computed with the CPU's CRC32 instructions when the processor
// advertises them (SSE4.2 on amd64, the CRC32 extension on arm64) and with a
// slicing-by-8 table implementation otherwise. Both produce identical
// results for every input. The choice is made once at init and can be
// forced by setting OAMAP_CRC32C to "software" or "hardware"; a hardware
// override on a CPU without support is ignored.
//
// Time31 is the classic h = h*31 + b string hash. Passthrough returns the
// first eight bytes of its input as a little-endian integer, which makes it
// the identity for fixed-width integer keys. XXH64 is xxHash64.
package hashing
