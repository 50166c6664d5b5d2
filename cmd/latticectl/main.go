// Command latticectl is a manual-testing CLI over the lattice Go
// package: it opens a local Instance backed by sqlitestore, lets an
// operator create databases, write/read store values, inspect tips and
// sync peers, by hand while exercising the library the way an
// application would.
//
// Grounded in the shape of
// _examples/untoldecay-BeadsLog/cmd/bd: a cobra root command with
// subcommands registered from their own files via init(), a persistent
// --json flag, and errors reported with fmt.Fprintln(os.Stderr, ...)
// followed by os.Exit(1).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
