package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cassitly/cvere-core/internal/cli"
	"github.com/cassitly/cvere-core/internal/encoding"
	"github.com/cassitly/cvere-core/internal/log"
	"github.com/cassitly/cvere-core/internal/machine"
)

// Trace loads a hex listing and executes it, printing a disassembled line for every instruction
// in addition to the final state printed by run.
func Trace() cli.Command {
	return &tracer{}
}

type tracer struct{}

func (tracer) Description() string { return "load and run a program, tracing each instruction" }

func (tracer) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `trace file.hex

Load a hex listing and run it to completion, printing a disassembly line per
instruction executed, followed by final register state.`)

	return err
}

func (*tracer) FlagSet() *cli.FlagSet {
	return flag.NewFlagSet("trace", flag.ExitOnError)
}

func (*tracer) Run(_ context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 1 {
		fmt.Fprintln(out, "trace: expected exactly one file argument")
		return 1
	}

	bs, err := os.ReadFile(args[0])
	if err != nil {
		logger.Error("read failed", "err", err)
		return 1
	}

	listing := encoding.HexListing{}
	if err := listing.UnmarshalText(bs); err != nil {
		logger.Error("decode failed", "err", err)
		return 1
	}

	m := machine.New(machine.WithTrace(out))

	if err := m.Load(listing.Words, 0); err != nil {
		logger.Error("load failed", "err", err)
		return 1
	}

	cycles, err := m.Run(maxCycles)
	if err != nil {
		logger.Error("run failed", "err", err, "cycles", cycles)
		return 1
	}

	fmt.Fprintf(out, "%s\n", m.Registers)
	fmt.Fprintf(out, "cycles: %d  halted: %t\n", cycles, m.Halted())

	return 0
}
