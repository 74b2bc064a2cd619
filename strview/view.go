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

// Package strview provides View, a borrowed reference to a run of bytes
// that can be used as a map key without copying, and Arena, a store that
// hands out Views whose bytes stay put.
package strview

import (
	"bytes"
	"unsafe"
)

// View is a non-owning (pointer, length) reference to bytes held elsewhere.
// Two Views are equal when the bytes they reference are equal. The
// referenced bytes must not be modified or freed while the View is in use;
// a dangling View is a caller bug.
//
// The zero View is empty.
type View struct {
	ptr *byte
	n   int
}

// FromBytes returns a View of b. The View aliases b.
func FromBytes(b []byte) View {
	return View{ptr: unsafe.SliceData(b), n: len(b)}
}

// FromString returns a View of the bytes of s.
func FromString(s string) View {
	return View{ptr: unsafe.StringData(s), n: len(s)}
}

// Len returns the number of bytes referenced.
func (v View) Len() int {
	return v.n
}

// IsZero reports whether v references no bytes.
func (v View) IsZero() bool {
	return v.n == 0
}

// Bytes returns the referenced bytes. The result aliases the underlying
// storage and must not be modified.
func (v View) Bytes() []byte {
	if v.n == 0 {
		return nil
	}
	return unsafe.Slice(v.ptr, v.n)
}

// String returns the referenced bytes as a string without copying. The
// result is only valid as long as the View is.
func (v View) String() string {
	if v.n == 0 {
		return ""
	}
	return unsafe.String(v.ptr, v.n)
}

// Clone returns an owned copy of the referenced bytes.
func (v View) Clone() string {
	return string(v.Bytes())
}

// Equal reports whether v and o reference equal bytes.
func (v View) Equal(o View) bool {
	if v.n != o.n {
		return false
	}
	if v.ptr == o.ptr {
		return true
	}
	return bytes.Equal(v.Bytes(), o.Bytes())
}
