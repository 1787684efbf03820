// Command resinker runs configuration-driven event-stream simulations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/resinker/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
