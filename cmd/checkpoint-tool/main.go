// Command checkpoint-tool reads a Delta Lake checkpoint file and
// prints or summarizes its log entries.
package main

import (
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"
)

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(logger log.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "checkpoint-tool",
		Short: "Inspect Delta Lake checkpoint files",
	}
	root.AddCommand(newReadCmd(logger))
	root.AddCommand(newStatCmd(logger))
	return root
}
