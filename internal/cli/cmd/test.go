package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/cassitly/cvere-core/internal/cli"
	"github.com/cassitly/cvere-core/internal/log"
	"github.com/cassitly/cvere-core/internal/machine"
)

// Test runs the interpreter's built-in self-test programs and reports pass/fail for each.
func Test() cli.Command {
	return &selftest{}
}

type selftest struct{}

func (selftest) Description() string { return "run built-in self-tests" }

func (selftest) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `test

Run the interpreter's built-in self-test programs and report pass/fail.`)

	return err
}

func (*selftest) FlagSet() *cli.FlagSet {
	return flag.NewFlagSet("test", flag.ExitOnError)
}

// selfTestCase is one golden program with its expected final register values.
type selfTestCase struct {
	name   string
	words  []machine.Word
	want   map[machine.GPR]machine.Register
	halted bool
	maxCyc uint64
}

var selfTestCases = []selfTestCase{
	{
		name:   "arithmetic",
		words:  []machine.Word{0xc105, 0xc203, 0x1312, 0x3421, 0xffff},
		want:   map[machine.GPR]machine.Register{1: 0x0005, 2: 0x0003, 3: 0x0008, 4: 0xfffe},
		halted: true,
		maxCyc: 100,
	},
	{
		name:   "loop counter",
		words:  []machine.Word{0xc100, 0xc20a, 0x2101, 0x3321, 0xf3fd, 0xffff},
		want:   map[machine.GPR]machine.Register{1: 0x000a, 2: 0x000a},
		halted: true,
		maxCyc: 100,
	},
	{
		name:   "memory round-trip",
		words:  []machine.Word{0xc142, 0xc210, 0xb120, 0xa320, 0xffff},
		want:   map[machine.GPR]machine.Register{3: 0x0042},
		halted: true,
		maxCyc: 100,
	},
	{
		name:   "r0 hardwire",
		words:  []machine.Word{0xc0ff, 0xffff},
		want:   map[machine.GPR]machine.Register{0: 0x0000},
		halted: true,
		maxCyc: 100,
	},
	{
		name:  "bitwise",
		words: []machine.Word{0xc10f, 0xc233, 0x4312, 0x5412, 0x6512, 0x7611, 0xffff},
		want: map[machine.GPR]machine.Register{
			3: 0x0003, 4: 0x003f, 5: 0x003c, 6: 0xfff0,
		},
		halted: true,
		maxCyc: 100,
	},
	{
		name:   "conditional skips",
		words:  []machine.Word{0xc100, 0xe101, 0xc2ff, 0xc301, 0xf301, 0xc4ff, 0xffff},
		want:   map[machine.GPR]machine.Register{2: 0x0000, 4: 0x0000},
		halted: true,
		maxCyc: 100,
	},
}

func (*selftest) Run(_ context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	failed := 0

	for _, tc := range selfTestCases {
		if err := runSelfTest(tc); err != nil {
			fmt.Fprintf(out, "FAIL  %-20s %v\n", tc.name, err)
			failed++

			continue
		}

		fmt.Fprintf(out, "PASS  %-20s\n", tc.name)
	}

	fmt.Fprintf(out, "\n%d passed, %d failed\n", len(selfTestCases)-failed, failed)

	if failed > 0 {
		logger.Error("self-tests failed", "failed", failed)
		return 1
	}

	return 0
}

func runSelfTest(tc selfTestCase) error {
	m := machine.New()

	if err := m.Load(tc.words, 0); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	if _, err := m.Run(tc.maxCyc); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if tc.halted && !m.Halted() {
		return fmt.Errorf("expected halted")
	}

	for reg, want := range tc.want {
		got := m.Registers.ReadGP(reg)
		if got != want {
			return fmt.Errorf("R%d: want %s, got %s", reg, want, got)
		}
	}

	return nil
}
