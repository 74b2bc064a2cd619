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

package strview

const defaultChunkSize = 64 << 10

// Arena is an append-only byte store that returns Views of the bytes added
// to it. Chunks are never reallocated, so every View it returns stays valid
// until Reset.
//
// An Arena is not goroutine-safe.
type Arena struct {
	chunkSize int
	chunks    [][]byte
	cur       []byte
	views     int
	size      int
}

// NewArena returns an Arena that allocates chunkSize bytes at a time. A
// non-positive chunkSize selects 64 KiB. Inputs larger than chunkSize get a
// chunk of their own.
func NewArena(chunkSize int) *Arena {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Arena{chunkSize: chunkSize}
}

// Add copies b into the arena and returns a View of the copy.
func (a *Arena) Add(b []byte) View {
	if len(b) == 0 {
		a.views++
		return View{}
	}
	if cap(a.cur)-len(a.cur) < len(b) {
		n := max(a.chunkSize, len(b))
		a.cur = make([]byte, 0, n)
		a.chunks = append(a.chunks, a.cur)
	}
	start := len(a.cur)
	a.cur = append(a.cur, b...)
	a.views++
	a.size += len(b)
	return FromBytes(a.cur[start:len(a.cur):len(a.cur)])
}

// AddString copies s into the arena and returns a View of the copy.
func (a *Arena) AddString(s string) View {
	return a.Add(FromString(s).Bytes())
}

// Len returns the number of Views handed out since the last Reset.
func (a *Arena) Len() int {
	return a.views
}

// Size returns the number of bytes stored since the last Reset.
func (a *Arena) Size() int {
	return a.size
}

// Reset drops every chunk. Views returned before Reset must no longer be
// used.
func (a *Arena) Reset() {
	clear(a.chunks)
	a.chunks = a.chunks[:0]
	a.cur = nil
	a.views = 0
	a.size = 0
}
