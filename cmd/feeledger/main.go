// Command feeledger runs the fee-splitting payment program against a local
// ledger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/feeledger/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
