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
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/ajroetker/go-mmagen/gpu"
	"github.com/ajroetker/go-mmagen/hal"
	"github.com/ajroetker/go-mmagen/internal/api"
)

func kindsCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "kinds",
		Usage: "List the MMA intrinsic kinds",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tMxNxK\tA\tB\tC")
			for _, k := range gpu.MmaKinds() {
				info := api.DescribeKind(k)
				fmt.Fprintf(tw, "%s\t%dx%dx%d\t%s\t%s\t%s\n",
					info.Name, info.MNK[0], info.MNK[1], info.MNK[2], info.A, info.B, info.C)
			}
			return tw.Flush()
		},
	}
}

func devicesCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List hal drivers and their devices",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			drivers, err := api.ListDevices(hal.DefaultRegistry())
			if err != nil {
				return err
			}
			for _, d := range drivers {
				fmt.Fprintf(out, "%s (%s): %s\n", d.Driver.Name, d.Driver.ID, d.Driver.FullName)
				for _, dev := range d.Devices {
					features := strings.Join(dev.Features, ",")
					if features == "" {
						features = "-"
					}
					fmt.Fprintf(out, "  %s\t%s\t%d cores\t%s\n", dev.Name, dev.Arch, dev.Cores, features)
				}
			}
			return nil
		},
	}
}
