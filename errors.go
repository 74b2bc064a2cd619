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

import "github.com/cockroachdb/errors"

var (
	// ErrAllocationLimit is returned by LimitAllocator when an allocation
	// would exceed its budget, and by a Map asked for a capacity larger
	// than it can address.
	ErrAllocationLimit = errors.New("oamap: allocation limit exceeded")

	// ErrInvalidLoadFactor is returned by New when WithMaxLoadFactor is given
	// an out of range value.
	ErrInvalidLoadFactor = errors.New("oamap: invalid max load factor")
)
