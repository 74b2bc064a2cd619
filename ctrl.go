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
	"math/bits"
	"strings"
	"unsafe"
)

const (
	ctrlEmpty   ctrl = 0b10000000
	ctrlDeleted ctrl = 0b11111110

	bitsetLSB = 0x0101010101010101
	bitsetMSB = 0x8080808080808080

	// fingerprintMul spreads every bit of a hash into the top 7 bits used
	// for h2. Policies that only produce 32 bits (CRC32C) or that pass
	// integer keys through unchanged would otherwise yield constant
	// fingerprints.
	fingerprintMul = 0x9e3779b97f4a7c15
)

// Each slot in the table has a control byte which can have one of three
// states: empty, deleted and full. They have the following bit patterns:
//
//	  empty: 1 0 0 0 0 0 0 0
//	deleted: 1 1 1 1 1 1 1 0
//	   full: 0 h h h h h h h  // h represents the H2 fingerprint bits
type ctrl uint8

func (c ctrl) isFull() bool {
	return c&ctrlEmpty == 0
}

func (c ctrl) String() string {
	switch c {
	case ctrlEmpty:
		return "empty"
	case ctrlDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("full(%02x)", uint8(c))
	}
}

type bitset uint64

func (b bitset) next() uintptr {
	return uintptr(bits.TrailingZeros64(uint64(b))) >> 3
}

func (b bitset) clear(i uintptr) bitset {
	return b &^ (bitset(0x80) << (i << 3))
}

func (b bitset) String() string {
	var buf strings.Builder
	buf.Grow(groupSize)
	for i := 0; i < groupSize; i++ {
		if (b & (bitset(0x80) << (i << 3))) != 0 {
			buf.WriteString("1")
		} else {
			buf.WriteString("0")
		}
	}
	return buf.String()
}

// matchH2 returns a bitset where each byte is 0x80 if the control byte at
// that position of the group starting at c holds the fingerprint h.
func (c *ctrl) matchH2(h uintptr) bitset {
	// NB: This generic matching routine produces false positive matches when
	// h is 2^N and the control bytes have a seq of 2^N followed by 2^N+1. For
	// example: if ctrls==0x0302 and h=02, we'll compute v as 0x0100. When we
	// subtract off 0x0101 the first 2 bytes we'll become 0xffff and both be
	// considered matches of h. The false positive matches are not a problem,
	// just a rare inefficiency. Note that they only occur if there is a real
	// match and never occur on ctrlEmpty or ctrlDeleted. The subsequent key
	// comparisons ensure that there is no correctness issue.
	v := *(*uint64)((unsafe.Pointer)(c)) ^ (bitsetLSB * uint64(h))
	return bitset(((v - bitsetLSB) &^ v) & bitsetMSB)
}

// matchEmpty returns a bitset where each byte is 0x80 if that control byte
// indicates an empty slot (and 0x00 otherwise).
func (c *ctrl) matchEmpty() bitset {
	v := *(*uint64)((unsafe.Pointer)(c))
	// An empty slot is   1000 0000
	// A deleted slot is  1111 1110
	// A slot is empty iff bit 7 is set and bit 1 is not.
	return bitset((v &^ (v << 6)) & bitsetMSB)
}

// matchEmptyOrDeleted returns a bitset where each byte is 0x80 if that
// control byte indicates an empty or deleted slot (and 0x00 otherwise).
func (c *ctrl) matchEmptyOrDeleted() bitset {
	// Full slots are the only ones with bit 7 clear.
	v := *(*uint64)((unsafe.Pointer)(c))
	return bitset(v & bitsetMSB)
}

// matchFull returns a bitset where each byte is 0x80 if that control byte
// indicates a full slot.
func (c *ctrl) matchFull() bitset {
	v := *(*uint64)((unsafe.Pointer)(c))
	return bitset(^v & bitsetMSB)
}

// Extracts the H2 portion of a hash: 7 bits used as an occupied control
// byte.
func h2(h uint64) uintptr {
	return uintptr((h * fingerprintMul) >> 57)
}
