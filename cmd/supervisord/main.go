// Command supervisord runs the Agentium local coding-agent supervisor.
package main

import (
	"fmt"
	"os"

	"github.com/andywolf/agentium-supervisor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
