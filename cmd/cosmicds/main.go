// Command cosmicds runs and inspects story sessions and serves the
// reference remote store.
package main

import (
	"fmt"
	"os"

	"github.com/cosmicds/cosmicds/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
