// Command gridsync reconciles CSV sheets with a versioned record store and
// serves the reference store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/gridsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
