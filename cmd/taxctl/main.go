// Command taxctl runs tax calculations from the command line against a
// local SQLite database.
//
//	taxctl calc -address austin -amount 100 -category local_voice
//	taxctl list -status calculated
//	taxctl verify taxcalc_01h...
//
// Every command seeds the database with the sample telecom reference data
// unless -reference names another document.
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
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands(os.Stdout) {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
