// Command fund-admin runs operator actions against the fund ledger without
// going through the HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	register(commander, loadEnv)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func register(commander *subcommands.Commander, load loader) {
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&closeCmd{load: load}, "funds")
	commander.Register(&revalueCmd{load: load}, "funds")
	commander.Register(&summaryCmd{load: load}, "reports")
}
