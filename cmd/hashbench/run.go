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

package main

import (
	"fmt"
	"io"
	"maps"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/oamap"
	"github.com/cockroachdb/oamap/hashing"
	"github.com/cockroachdb/oamap/internal/corpus"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
)

const (
	implOAMap   = "oamap"
	implRuntime = "runtime"
)

var phases = []string{"insert", "find-hit", "find-miss", "rehash", "erase"}

// result is the timing of one phase of one workload against one map
// implementation, accumulated over every repetition.
type result struct {
	workload string
	impl     string
	phase    string
	ops      int
	elapsed  time.Duration
}

func (r result) nsPerOp() float64 {
	if r.ops == 0 {
		return 0
	}
	return float64(r.elapsed.Nanoseconds()) / float64(r.ops)
}

// timer accumulates per-phase timings for one implementation.
type timer struct {
	results map[string]*result
}

func newTimer(workload, impl string) *timer {
	t := &timer{results: make(map[string]*result, len(phases))}
	for _, p := range phases {
		t.results[p] = &result{workload: workload, impl: impl, phase: p}
	}
	return t
}

func (t *timer) time(phase string, ops int, fn func() error) error {
	start := time.Now()
	err := fn()
	r := t.results[phase]
	r.elapsed += time.Since(start)
	r.ops += ops
	return err
}

func (t *timer) list() []result {
	out := make([]result, 0, len(phases))
	for _, p := range phases {
		out = append(out, *t.results[p])
	}
	return out
}

// runWorkload builds the key corpus for w and runs w.Repeat cycles of
// insert, lookup, erase and rehash against an oamap.Map and the builtin
// map, checking that both agree.
func runWorkload(w Workload, logger *zap.Logger) ([]result, error) {
	keys, err := corpus.Keys(corpus.Kind(w.Keys), w.Count, w.Seed)
	if err != nil {
		return nil, err
	}
	miss := corpus.Missing(corpus.Kind(w.Keys), w.Count)
	values := make([]string, len(keys))
	for i := range values {
		values[i] = strconv.Itoa(i)
	}
	fn, err := hashing.Lookup(w.Hash)
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("workload", w.Name))
	logger.Info("running workload",
		zap.String("keys", w.Keys),
		zap.Int("count", w.Count),
		zap.String("hash", w.Hash),
		zap.Int("repeat", w.Repeat),
		zap.Bool("crc32c-accelerated", hashing.Accelerated()))

	om := newTimer(w.Name, implOAMap)
	rt := newTimer(w.Name, implRuntime)
	for i := 0; i < w.Repeat; i++ {
		if err := runOAMap(w, fn, keys, values, miss, om, logger); err != nil {
			return nil, errors.Wrapf(err, "workload %q: oamap", w.Name)
		}
		if err := runRuntime(w, keys, values, miss, rt); err != nil {
			return nil, errors.Wrapf(err, "workload %q: runtime map", w.Name)
		}
	}
	return append(om.list(), rt.list()...), nil
}

func runOAMap(
	w Workload, fn hashing.Func, keys, values, miss []string, t *timer, logger *zap.Logger,
) error {
	options := []oamap.Option[string, string]{oamap.WithLogger[string, string](logger)}
	if w.MaxLoadFactor != 0 {
		options = append(options, oamap.WithMaxLoadFactor[string, string](w.MaxLoadFactor))
	}
	m, err := oamap.NewWithPolicy[string, string](w.InitialCapacity, oamap.StringPolicy(fn), options...)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := t.time("insert", len(keys), func() error {
		for i, k := range keys {
			if _, err := m.Insert(k, values[i]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if m.Len() != len(keys) {
		return errors.Newf("inserted %d keys, map holds %d", len(keys), m.Len())
	}

	var found int
	_ = t.time("find-hit", len(keys), func() error {
		for i, k := range keys {
			if v, ok := m.Get(k); ok && v == values[i] {
				found++
			}
		}
		return nil
	})
	if found != len(keys) {
		return errors.Newf("found %d of %d inserted keys", found, len(keys))
	}

	var missed int
	_ = t.time("find-miss", len(miss), func() error {
		for _, k := range miss {
			if !m.Contains(k) {
				missed++
			}
		}
		return nil
	})
	if missed != len(miss) {
		return errors.Newf("%d absent keys were found", len(miss)-missed)
	}

	// Rehash twice: out to double the capacity and back down.
	if err := t.time("rehash", 2*m.Len(), func() error {
		if err := m.Rehash(2 * m.BucketCount()); err != nil {
			return err
		}
		return m.ShrinkToFit(0)
	}); err != nil {
		return err
	}

	var erased int
	_ = t.time("erase", len(keys), func() error {
		for _, k := range keys {
			erased += m.Erase(k)
		}
		return nil
	})
	if erased != len(keys) || !m.Empty() {
		return errors.Newf("erased %d of %d keys, %d remain", erased, len(keys), m.Len())
	}

	stats := m.Stats()
	logger.Debug("oamap cycle complete",
		zap.Int("bucket-count", m.BucketCount()),
		zap.Int("grows", stats.Grows),
		zap.Int("compactions", stats.Compactions),
		zap.Int("shrinks", stats.Shrinks))
	return nil
}

func runRuntime(w Workload, keys, values, miss []string, t *timer) error {
	m := make(map[string]string, w.InitialCapacity)
	_ = t.time("insert", len(keys), func() error {
		for i, k := range keys {
			m[k] = values[i]
		}
		return nil
	})
	if len(m) != len(keys) {
		return errors.Newf("inserted %d keys, map holds %d", len(keys), len(m))
	}

	var found int
	_ = t.time("find-hit", len(keys), func() error {
		for i, k := range keys {
			if v, ok := m[k]; ok && v == values[i] {
				found++
			}
		}
		return nil
	})
	if found != len(keys) {
		return errors.Newf("found %d of %d inserted keys", found, len(keys))
	}

	var missed int
	_ = t.time("find-miss", len(miss), func() error {
		for _, k := range miss {
			if _, ok := m[k]; !ok {
				missed++
			}
		}
		return nil
	})
	if missed != len(miss) {
		return errors.Newf("%d absent keys were found", len(miss)-missed)
	}

	// The builtin map cannot be rehashed explicitly; cloning it twice is the
	// closest equivalent.
	_ = t.time("rehash", 2*len(m), func() error {
		m = maps.Clone(maps.Clone(m))
		return nil
	})

	_ = t.time("erase", len(keys), func() error {
		for _, k := range keys {
			delete(m, k)
		}
		return nil
	})
	if len(m) != 0 {
		return errors.Newf("%d keys remain after erase", len(m))
	}
	return nil
}

// printResults writes one row per workload and phase comparing the two
// implementations.
func printResults(w io.Writer, results []result) {
	type key struct{ workload, phase string }
	byKey := make(map[key]map[string]result)
	var order []key
	for _, r := range results {
		k := key{r.workload, r.phase}
		if _, ok := byKey[k]; !ok {
			byKey[k] = make(map[string]result)
			order = append(order, k)
		}
		byKey[k][r.impl] = r
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"workload", "phase", "ops", "oamap ns/op", "runtime ns/op", "ratio"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, k := range order {
		o, r := byKey[k][implOAMap], byKey[k][implRuntime]
		ratio := "-"
		if r.nsPerOp() > 0 {
			ratio = fmt.Sprintf("%.2fx", o.nsPerOp()/r.nsPerOp())
		}
		table.Append([]string{
			k.workload,
			k.phase,
			humanize.Comma(int64(o.ops)),
			fmt.Sprintf("%.1f", o.nsPerOp()),
			fmt.Sprintf("%.1f", r.nsPerOp()),
			ratio,
		})
	}
	table.Render()
}
