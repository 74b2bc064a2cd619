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

// hashbench times insert, lookup, erase and rehash cycles of oamap.Map
// against Go's builtin map for the workloads described by a TOML file.
//
//	hashbench -cfg bench.toml [-workload name]
//
// Without -cfg a built-in set of workloads is run.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("cfg", "", "toml configuration describing the workloads")
	workload   = flag.String("workload", "", "run only the named workload")
)

func main() {
	flag.Parse()
	if err := run(*configFile, *workload, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "hashbench: %+v\n", err)
		os.Exit(1)
	}
}

func run(configFile, only string, out io.Writer) error {
	cfg := defaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = parseConfigFromFile(configFile); err != nil {
			return err
		}
	} else if err := cfg.validate(); err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var results []result
	ran := 0
	for _, w := range cfg.Workloads {
		if only != "" && w.Name != only {
			continue
		}
		r, err := runWorkload(w, logger)
		if err != nil {
			logger.Error("workload failed", zap.String("workload", w.Name), zap.Error(err))
			return err
		}
		results = append(results, r...)
		ran++
	}
	if ran == 0 {
		return errors.Newf("no workload named %q", only)
	}
	printResults(out, results)
	return nil
}
