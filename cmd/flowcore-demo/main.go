// Command flowcore-demo drives a single-process run of a small topology
// (two input groups, a partitioned join, a sink) through
// internal/actor.Runtime, standing in for the orchestrating controller
// spec.md §1 places out of scope. It exists to exercise the full
// actor/recovery machinery end to end the way spec.md §8's concrete
// scenarios describe, without a real cluster.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

func main() {
	parser := flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	if _, err := parser.AddCommand("run", "Run the demo join topology", `
Runs two input groups of CSV mappers through a partitioned join into a
sink, optionally killing and restarting actors partway through to
exercise the recovery protocol.
`, &cmdRun{}); err != nil {
		log.WithError(err).Fatal("failed to register run command")
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
