// Command syncache runs the demo record server, drives caches against it and
// runs cache scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/syncache/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
