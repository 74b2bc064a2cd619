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
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnknownHash is returned by Lookup for names it does not know.
var ErrUnknownHash = errors.New("hashing: unknown hash function")

var registry = map[string]Func{
	"crc32c":      CRC32C64,
	"time31":      Time31,
	"passthrough": Passthrough,
	"xxhash":      XXH64,
}

// Lookup returns the hash function registered under name. Names are case
// insensitive.
func Lookup(name string) (Func, error) {
	if fn, ok := registry[strings.ToLower(strings.TrimSpace(name))]; ok {
		return fn, nil
	}
	return nil, errors.Wrapf(ErrUnknownHash, "%q (known: %s)",
		name, strings.Join(Names(), ", "))
}

// Names returns the registered hash function names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
