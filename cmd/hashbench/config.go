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
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/oamap/hashing"
	"github.com/cockroachdb/oamap/internal/corpus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the hashbench configuration file.
type Config struct {
	Log       LogConfig  `toml:"log"`
	Workloads []Workload `toml:"workload"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// Format is console or json.
	Format      string `toml:"format"`
	Development bool   `toml:"development"`
}

// Workload describes one benchmark run.
type Workload struct {
	Name string `toml:"name"`
	// Keys selects the key corpus: headers, sequential or random.
	Keys  string `toml:"keys"`
	Count int    `toml:"count"`
	// Hash names the hash function used by the oamap policy.
	Hash            string  `toml:"hash"`
	Repeat          int     `toml:"repeat"`
	InitialCapacity int     `toml:"initial-capacity"`
	MaxLoadFactor   float64 `toml:"max-load-factor"`
	Seed            int64   `toml:"seed"`
}

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Workloads: []Workload{
			{Name: "headers-crc32c", Keys: string(corpus.Headers), Count: 55, Hash: "crc32c"},
			{Name: "headers-time31", Keys: string(corpus.Headers), Count: 55, Hash: "time31"},
			{Name: "sequential-crc32c", Keys: string(corpus.Sequential), Count: 100000, Hash: "crc32c"},
			{Name: "random-xxhash", Keys: string(corpus.Random), Count: 100000, Hash: "xxhash", Seed: 1},
		},
	}
}

// parseConfigFromFile decodes path over the defaults. Workloads in the file
// replace the default workloads.
func parseConfigFromFile(path string) (*Config, error) {
	cfg := defaultConfig()
	cfg.Workloads = nil
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Newf("%s: unknown configuration keys: %s", path, strings.Join(keys, ", "))
	}
	if len(cfg.Workloads) == 0 {
		cfg.Workloads = defaultConfig().Workloads
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

// validate fills in defaults and checks every workload.
func (c *Config) validate() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log level")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Newf("log format %q must be console or json", c.Log.Format)
	}

	seen := make(map[string]struct{})
	for i := range c.Workloads {
		w := &c.Workloads[i]
		if w.Name == "" {
			w.Name = w.Keys + "-" + w.Hash
		}
		if _, ok := seen[w.Name]; ok {
			return errors.Newf("duplicate workload %q", w.Name)
		}
		seen[w.Name] = struct{}{}
		if w.Repeat <= 0 {
			w.Repeat = 1
		}
		if w.Count <= 0 {
			return errors.Newf("workload %q: count must be positive", w.Name)
		}
		if w.InitialCapacity < 0 {
			return errors.Newf("workload %q: negative initial-capacity", w.Name)
		}
		if _, err := hashing.Lookup(w.Hash); err != nil {
			return errors.Wrapf(err, "workload %q", w.Name)
		}
		switch corpus.Kind(w.Keys) {
		case corpus.Headers, corpus.Sequential, corpus.Random:
		default:
			return errors.Wrapf(corpus.ErrUnknownKind, "workload %q: %q", w.Name, w.Keys)
		}
	}
	return nil
}

func buildLogger(c LogConfig) (*zap.Logger, error) {
	var cfg zap.Config
	if c.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	cfg.Level = level
	cfg.Encoding = c.Format
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
