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
	"hash/crc32"
	"os"
	"strings"
)

// castagnoliPoly is the reversed Castagnoli polynomial.
const castagnoliPoly = 0x82f63b78

// castagnoliTable is used by hash/crc32, which switches to the SSE4.2 or
// ARMv8 CRC32 instructions when it is given this table on a capable CPU.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// slicing8Table holds the eight lookup tables of the software path.
// slicing8Table[0] is the classic byte-at-a-time table.
var slicing8Table = makeSlicing8Table(castagnoliPoly)

// overrideEnv names the environment variable that forces a CRC32C path.
const overrideEnv = "OAMAP_CRC32C"

var (
	// hasCRC32 is set by the platform specific init when the CPU has CRC32
	// instructions.
	hasCRC32 bool

	// accelerated is true when CRC32C runs on the hardware path.
	accelerated bool

	// hasOverride is true if OAMAP_CRC32C was set to a recognized value.
	hasOverride bool

	crc32cImpl = crc32cSoftware
)

// selectCRC32C is called from the platform specific init after CPU features
// are detected.
func selectCRC32C() {
	accelerated = hasCRC32
	hasOverride = false
	switch strings.ToLower(strings.TrimSpace(os.Getenv(overrideEnv))) {
	case "software":
		hasOverride = true
		accelerated = false
	case "hardware":
		hasOverride = true
	}
	if accelerated {
		crc32cImpl = crc32cHardware
	} else {
		crc32cImpl = crc32cSoftware
	}
}

// Accelerated reports whether CRC32C is computed with CPU instructions.
func Accelerated() bool {
	return accelerated
}

// IsOverridden reports whether OAMAP_CRC32C selected the CRC32C path.
func IsOverridden() bool {
	return hasOverride
}

// CRC32C returns the CRC-32 checksum of b using the Castagnoli polynomial,
// with the standard initial value and final inversion. CRC32C("123456789")
// is 0xe3069283.
func CRC32C(b []byte) uint32 {
	return crc32cImpl(b)
}

// CRC32C64 is CRC32C widened to a Func.
func CRC32C64(b []byte) uint64 {
	return uint64(crc32cImpl(b))
}

func crc32cHardware(b []byte) uint32 {
	return crc32.Checksum(b, castagnoliTable)
}

func makeSlicing8Table(poly uint32) *[8][256]uint32 {
	t := new([8][256]uint32)
	for i := 0; i < 256; i++ {
		crc := uint32(i)
		for j := 0; j < 8; j++ {
			if crc&1 == 1 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		t[0][i] = crc
	}
	for i := 0; i < 256; i++ {
		crc := t[0][i]
		for j := 1; j < 8; j++ {
			crc = t[0][crc&0xff] ^ (crc >> 8)
			t[j][i] = crc
		}
	}
	return t
}

func crc32cSoftware(b []byte) uint32 {
	return ^updateSlicing8(^uint32(0), slicing8Table, b)
}

// updateSlicing8 folds b into crc eight bytes at a time, finishing the tail
// one byte at a time. crc is the raw register, without inversion.
func updateSlicing8(crc uint32, t *[8][256]uint32, b []byte) uint32 {
	for len(b) >= 8 {
		crc ^= binary.LittleEndian.Uint32(b)
		hi := binary.LittleEndian.Uint32(b[4:])
		crc = t[0][hi>>24] ^ t[1][(hi>>16)&0xff] ^
			t[2][(hi>>8)&0xff] ^ t[3][hi&0xff] ^
			t[4][crc>>24] ^ t[5][(crc>>16)&0xff] ^
			t[6][(crc>>8)&0xff] ^ t[7][crc&0xff]
		b = b[8:]
	}
	for _, v := range b {
		crc = t[0][byte(crc)^v] ^ (crc >> 8)
	}
	return crc
}
