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

// Package corpus generates deterministic key sets for tests and benchmarks.
// Every generator returns a fresh slice; nothing is cached at package level.
package corpus

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Kind names a key generator.
type Kind string

const (
	// Headers is HTTP request and response header names. Beyond the
	// built-in list, names are repeated with a numeric suffix.
	Headers Kind = "headers"
	// Sequential is "key-0", "key-1", ...
	Sequential Kind = "sequential"
	// Random is random alphanumeric strings of 4 to 32 bytes.
	Random Kind = "random"
)

// ErrUnknownKind is returned by Keys for unknown generator names.
var ErrUnknownKind = errors.New("corpus: unknown key kind")

var headerNames = [...]string{
	"Accept", "Accept-Charset", "Accept-Encoding", "Accept-Language",
	"Accept-Ranges", "Authorization", "Cache-Control", "Connection",
	"Content-Disposition", "Content-Encoding", "Content-Language",
	"Content-Length", "Content-Location", "Content-Range", "Content-Type",
	"Cookie", "Date", "ETag", "Expect", "Expires", "From", "Host",
	"If-Match", "If-Modified-Since", "If-None-Match", "If-Range",
	"If-Unmodified-Since", "Keep-Alive", "Last-Modified", "Link",
	"Location", "Max-Forwards", "Origin", "Pragma", "Proxy-Authenticate",
	"Proxy-Authorization", "Range", "Referer", "Retry-After", "Server",
	"Set-Cookie", "TE", "Trailer", "Transfer-Encoding", "Upgrade",
	"User-Agent", "Vary", "Via", "WWW-Authenticate", "Warning",
	"X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto",
	"X-Request-Id", "X-Requested-With",
}

// HeaderNames returns the built-in list of header names, starting with
// "Accept", "Accept-Charset", ..., "Connection".
func HeaderNames() []string {
	return append([]string(nil), headerNames[:]...)
}

// Keys returns n distinct keys of the given kind. seed is only used by
// Random.
func Keys(kind Kind, n int, seed int64) ([]string, error) {
	if n < 0 {
		return nil, errors.Newf("corpus: negative key count %d", n)
	}
	switch kind {
	case Headers:
		return headerKeys(n), nil
	case Sequential:
		return sequentialKeys(n), nil
	case Random:
		return randomKeys(n, seed), nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
}

// Missing returns n keys of the same shape as kind that Keys never
// produces, for measuring lookups that miss.
func Missing(kind Kind, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		// '~' is outside the alphabet of every generator.
		keys[i] = fmt.Sprintf("~%s-%d", kind, i)
	}
	return keys
}

func headerKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		name := headerNames[i%len(headerNames)]
		if round := i / len(headerNames); round > 0 {
			name += "-" + strconv.Itoa(round)
		}
		keys[i] = name
	}
	return keys
}

func sequentialKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = "key-" + strconv.Itoa(i)
	}
	return keys
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomKeys(n int, seed int64) []string {
	rng := rand.New(rand.NewSource(seed))
	seen := make(map[string]struct{}, n)
	keys := make([]string, 0, n)
	buf := make([]byte, 32)
	for len(keys) < n {
		b := buf[:4+rng.Intn(29)]
		for i := range b {
			b[i] = alphabet[rng.Intn(len(alphabet))]
		}
		s := string(b)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		keys = append(keys, s)
	}
	return keys
}
