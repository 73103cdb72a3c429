// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/cockroachdb/prefixtree"
	"github.com/cockroachdb/prefixtree/tool"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "ptree [command] (flags)",
	Short: "prefix-tree block encoding/introspection tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "log corrupted blocks and pool exhaustion")

	opts := &prefixtree.Options{}
	t := tool.New(opts)
	rootCmd.AddCommand(t.Commands...)
	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		if verbose {
			t.SetLogger(prefixtree.DefaultLogger)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
