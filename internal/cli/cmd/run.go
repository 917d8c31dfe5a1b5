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

// maxCycles bounds every run/trace invocation, per the program image's execution contract.
const maxCycles = 100_000

// Run loads a hex listing and executes it to completion or the cycle budget, printing final
// machine state.
func Run() cli.Command {
	return &runner{}
}

type runner struct {
	debug bool
}

func (runner) Description() string { return "load and run a program" }

func (runner) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `run file.hex

Load a hex listing and run it to completion, printing final register state.`)

	return err
}

func (r *runner) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.BoolVar(&r.debug, "debug", false, "enable debug logging")

	return fs
}

func (r *runner) Run(_ context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if r.debug {
		log.LogLevel.Set(log.Debug)
	}

	if len(args) != 1 {
		fmt.Fprintln(out, "run: expected exactly one file argument")
		return 1
	}

	m, err := loadMachine(args[0])
	if err != nil {
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

// loadMachine reads a hex listing from path, loads it at address 0, and returns a ready machine.
func loadMachine(path string) (*machine.Machine, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	listing := encoding.HexListing{}
	if err := listing.UnmarshalText(bs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	m := machine.New()
	if err := m.Load(listing.Words, 0); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return m, nil
}
