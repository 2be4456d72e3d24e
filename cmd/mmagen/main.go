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

// Command mmagen compiles gpu.multi_mma problem descriptions down to MMA
// intrinsics.
//
// Usage:
//
//	mmagen compile --config pipeline.yaml --emit text problems.json
//	mmagen compile --out build/ a.json b.json       # one output file per input
//	mmagen serve --addr 127.0.0.1:8080
//	mmagen kinds
//	mmagen devices
//
// Set MMAGEN_DEBUG=1 (or pass --log-level debug) to trace every pattern
// application.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ajroetker/go-mmagen/internal/logger"
)

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newApp builds the command tree writing results to out and logs to errOut.
func newApp(out, errOut io.Writer) *cli.Command {
	var (
		logLevel  string
		logFormat string
	)
	return &cli.Command{
		Name:  "mmagen",
		Usage: "MMA code generation for gpu.multi_mma contractions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Value:       "warn",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (text, json)",
				Value:       "text",
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := logger.ParseLevel(logLevel)
			if v := os.Getenv(logger.DebugEnv); v != "" && v != "0" {
				level = logger.ParseLevel("debug")
			}
			var log logger.Logger
			switch logFormat {
			case "json":
				log = logger.JSON(errOut, level)
			default:
				log = logger.Text(errOut, level)
			}
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			compileCmd(out),
			serveCmd(),
			kindsCmd(out),
			devicesCmd(out),
		},
	}
}
