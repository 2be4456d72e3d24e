// Copyright 2025 go-mmagen Authors
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
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/go-mmagen/internal/logger"
	"github.com/ajroetker/go-mmagen/pipeline"
)

func compileCmd(out io.Writer) *cli.Command {
	var (
		configPath    string
		emit          string
		outDir        string
		workers       int
		maxIterations int
		jobs          int
	)
	return &cli.Command{
		Name:      "compile",
		Usage:     "Compile problem files and print or write the resulting IR",
		ArgsUsage: "problem.json...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "pipeline configuration (YAML); defaults to every stage in canonical order",
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "emit",
				Usage:       "output format (text, json)",
				Value:       pipeline.FormatText,
				Destination: &emit,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write one output file per input into this directory instead of stdout",
				Destination: &outDir,
			},
			&cli.IntFlag{
				Name:        "workers",
				Usage:       "functions compiled concurrently per file (overrides the config)",
				Destination: &workers,
			},
			&cli.IntFlag{
				Name:        "max-iterations",
				Usage:       "greedy sweep cap per stage (overrides the config)",
				Destination: &maxIterations,
			},
			&cli.IntFlag{
				Name:        "jobs",
				Aliases:     []string{"j"},
				Usage:       "problem files compiled concurrently",
				Value:       4,
				Destination: &jobs,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				return errors.New("compile: at least one problem file is required")
			}
			cfg := pipeline.DefaultConfig()
			if configPath != "" {
				loaded, err := pipeline.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.IsSet("workers") {
				cfg.Workers = workers
			}
			if cmd.IsSet("max-iterations") {
				cfg.MaxIterations = maxIterations
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			outputs, err := compileFiles(ctx, cfg, files, emit, jobs)
			if err != nil {
				return err
			}
			if outDir == "" {
				for _, o := range outputs {
					if _, err := out.Write(o); err != nil {
						return err
					}
				}
				return nil
			}
			return writeOutputs(outDir, files, outputs, emit)
		},
	}
}

// compileFiles compiles every file into its own module, at most jobs files
// at a time, and returns the emitted outputs in argument order.
func compileFiles(ctx context.Context, cfg pipeline.Config, files []string, emit string, jobs int) ([][]byte, error) {
	log := logger.FromContext(ctx)
	outputs := make([][]byte, len(files))
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, path := range files {
		g.Go(func() error {
			problems, err := pipeline.LoadProblems(path)
			if err != nil {
				return err
			}
			m, report, err := pipeline.Compile(ctx, cfg, moduleName(path), problems)
			if err != nil {
				return errors.Wrapf(err, "compiling %s", path)
			}
			log.Info("compiled", "file", path, "run_id", report.RunID, "functions", len(report.Functions))
			outputs[i], err = pipeline.Emit(m, emit)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func moduleName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func writeOutputs(dir string, files []string, outputs [][]byte, emit string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating output directory %s", dir)
	}
	ext := ".mlir"
	if emit == pipeline.FormatJSON {
		ext = ".json"
	}
	for i, path := range files {
		dest := filepath.Join(dir, moduleName(path)+ext)
		if err := os.WriteFile(dest, outputs[i], 0o644); err != nil {
			return errors.Wrapf(err, "writing %s", dest)
		}
	}
	return nil
}
