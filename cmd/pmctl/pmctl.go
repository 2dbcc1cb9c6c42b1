// Copyright 2024 The lamina Authors. All Rights Reserved.
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

// pmctl is the operator CLI for the lamina daemon.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/eigenform/lamina/client"
	"github.com/eigenform/lamina/pmc"
	"github.com/eigenform/lamina/version"

	"github.com/spf13/cobra"
)

var (
	socketPath string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:     "pmctl",
	Short:   "Program the core performance counters owned by laminad",
	Version: fmt.Sprintf("%s (%s)", version.Info["version"], version.Info["revision"]),
}

var writeCmd = &cobra.Command{
	Use:   "write [slot=ctl ...]",
	Short: "Write a full set of six PERF_CTL values",
	Long: `Write a full set of six PERF_CTL values.

Slots are given as slot=value pairs (values in any base strconv
accepts), or loaded from a JSON measurement config with --config.
Unspecified slots are written as zero, disabling them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnvelope(args)
		if err != nil {
			return err
		}
		return withClient(func(c *client.Client) error {
			return c.WriteControl(env)
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Disable and zero all six counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			return c.Clear()
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the known counter events",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, ev := range pmc.Events {
			fmt.Printf("%-24s PMCx%03x  %s\n", ev.Name, ev.Code, ev.Desc)
		}
	},
}

func buildEnvelope(args []string) (pmc.Envelope, error) {
	var env pmc.Envelope
	if configPath != "" {
		if len(args) > 0 {
			return env, fmt.Errorf("--config and slot=ctl arguments are mutually exclusive")
		}
		file, err := os.Open(configPath)
		if err != nil {
			return env, err
		}
		defer file.Close()
		config, err := pmc.ParseConfig(file)
		if err != nil {
			return env, err
		}
		return config.Envelope()
	}

	if len(args) == 0 {
		return env, fmt.Errorf("nothing to write: give slot=ctl pairs or --config")
	}
	for _, arg := range args {
		fields := strings.SplitN(arg, "=", 2)
		if len(fields) != 2 {
			return env, fmt.Errorf("malformed argument %q, want slot=ctl", arg)
		}
		slot, err := strconv.Atoi(fields[0])
		if err != nil || slot < 0 || slot >= pmc.NumSlots {
			return env, fmt.Errorf("bad slot %q: slots are 0..%d", fields[0], pmc.NumSlots-1)
		}
		val, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			return env, fmt.Errorf("bad control value %q: %v", fields[1], err)
		}
		env[slot] = val
	}
	return env, nil
}

func withClient(fn func(*client.Client) error) error {
	c, err := client.New(socketPath)
	if err != nil {
		return err
	}
	// No Close here: Close clears the counters, which would undo the
	// state the operator just asked for. The connection dies with the
	// process.
	return fn(c)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", client.DefaultSocketPath, "path of the laminad control socket")
	writeCmd.Flags().StringVar(&configPath, "config", "", "JSON measurement config mapping slots to events")
	rootCmd.AddCommand(writeCmd, clearCmd, eventsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
