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

import "fmt"

// probeSeq maintains the state for a probe sequence. The sequence is a
// triangular progression of the form
//
//	p(i) := groupSize * (i^2 + i)/2 + hash (mod mask+1)
//
// The use of groupSize ensures that each probe step does not overlap groups;
// the sequence effectively outputs the addresses of *groups* (although not
// necessarily aligned to any boundary). The group machinery allows us to
// check an entire group with minimal branching.
//
// Wrapping around at mask+1 is important, but not for the obvious reason.
// The first groupSize-1 control bytes are mirrored at the end of the ctrls
// array so a group starting near the end can be loaded with a single read.
// When the candidates of such a group are inspected there are no
// corresponding slots for the mirrored bytes, so offsetAt wraps them back to
// the front of the table.
//
// Because the capacity is a power of two >= groupSize, (i^2+i)/2 is a
// bijection in Z/(capacity/groupSize). The first capacity/groupSize probes
// therefore start groupSize apart and together cover every slot exactly
// once, which is what bounds every probe loop.
type probeSeq struct {
	mask   uintptr
	offset uintptr
	index  uintptr
}

func makeProbeSeq(hash uint64, mask uintptr) probeSeq {
	return probeSeq{
		mask:   mask,
		offset: uintptr(hash) & mask,
		index:  0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index += groupSize
	s.offset = (s.offset + s.index) & s.mask
	return s
}

func (s probeSeq) offsetAt(i uintptr) uintptr {
	return (s.offset + i) & s.mask
}

// probes returns the number of group probes needed to visit every slot of a
// table with the sequence's mask.
func (s probeSeq) probes() uintptr {
	return (s.mask + 1) / groupSize
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d offset=%d index=%d", s.mask, s.offset, s.index)
}
