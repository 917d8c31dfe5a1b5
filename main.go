// cvere is the command-line interface to a fetch-decode-execute emulator for a 16-bit fantasy CPU.
package main

import (
	"context"
	"os"

	"github.com/cassitly/cvere-core/internal/cli"
	"github.com/cassitly/cvere-core/internal/cli/cmd"
)

var commands = []cli.Command{
	cmd.Run(),
	cmd.Trace(),
	cmd.Test(),
	cmd.REPL(),
}

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
