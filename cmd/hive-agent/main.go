// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command hive-agent runs the Lightning fleet-coordination overlay
// described in spec §1-§9: one process per host node, gossiping peer
// state, proposing and committing Intents, and routing every executable
// action through Governance to the Bridge. It also exposes the spec
// §6.5 management surface, both as the long-running "serve" daemon and
// as thin client subcommands that call that surface over loopback.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "hive-agent",
		Short: "Lightning fleet-coordination overlay agent",
	}

	f := &clientFlags{}
	bindClientFlags(root, f)
	root.AddCommand(serveCmd())
	root.AddCommand(managementCommands(f)...)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
