package cmd

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/cassitly/cvere-core/internal/cli"
	"github.com/cassitly/cvere-core/internal/encoding"
	"github.com/cassitly/cvere-core/internal/log"
	"github.com/cassitly/cvere-core/internal/machine"
)

// REPL is the interactive shell: load, step, run, reset, dump and mem inspection commands over a
// single persistent machine.
func REPL() cli.Command {
	return &repl{}
}

type repl struct{}

func (repl) Description() string { return "interactive read-eval-print loop" }

func (repl) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `repl

Interactive shell. Commands:

        load <file>       load a hex listing at address 0
        step               execute one instruction
        run [n]            execute up to n instructions (default 100000)
        reset              reinitialize registers and clear memory
        dump               print register state
        mem <addr> [len]   print len words of memory starting at addr
        trace [on|off]     turn per-instruction disassembly on or off (default on)
        quit               exit`)

	return err
}

func (*repl) FlagSet() *cli.FlagSet {
	return flag.NewFlagSet("repl", flag.ExitOnError)
}

// lineReader is the narrow interface the REPL loop needs from its input source, so it can swap
// between a raw-mode terminal line editor and a plain scanner without the loop itself caring
// which one is in play.
type lineReader interface {
	ReadLine() (string, error)
}

// scanLineReader adapts a bufio.Scanner to lineReader, used when standard input is not a
// terminal (piped scripts, tests): no escape-sequence handling is possible or needed there.
type scanLineReader struct {
	scanner *bufio.Scanner
	prompt  string
	out     io.Writer
}

func (s *scanLineReader) ReadLine() (string, error) {
	fmt.Fprint(s.out, s.prompt)

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return s.scanner.Text(), nil
}

// termLineReader wraps golang.org/x/term's line editor (history, arrow-key and ^W/^U editing)
// over a raw-mode terminal, reading whole shell commands rather than keystrokes destined for a
// guest keyboard device.
type termLineReader struct {
	term  *term.Terminal
	fd    int
	saved *term.State
}

// newTermLineReader puts fd into raw mode and wraps rw in a *term.Terminal configured with
// prompt. Callers must call restore when the REPL exits to return the terminal to cooked mode.
func newTermLineReader(fd int, rw io.ReadWriter, prompt string) (*termLineReader, error) {
	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("repl: enter raw mode: %w", err)
	}

	t := term.NewTerminal(rw, prompt)

	return &termLineReader{term: t, fd: fd, saved: saved}, nil
}

func (r *termLineReader) ReadLine() (string, error) {
	return r.term.ReadLine()
}

func (r *termLineReader) restore() {
	_ = term.Restore(r.fd, r.saved)
}

// stdioReadWriter pairs stdin's Reader with an arbitrary Writer so term.NewTerminal, which wants
// a single io.ReadWriter, can read keystrokes from the real terminal while writing prompts and
// echo to whatever out the command was given (normally the same terminal, but tests may redirect
// it).
type stdioReadWriter struct {
	io.Reader
	io.Writer
}

func (*repl) Run(_ context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	m := machine.New()

	reader, cleanup := newREPLReader(out)
	defer cleanup()

	for {
		line, err := reader.ReadLine()
		if err != nil {
			return 0
		}

		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}

		if dispatchREPLCommand(m, fields, out, logger) {
			return 0
		}
	}
}

// newREPLReader picks a raw-mode term.Terminal reader when stdin is an interactive terminal, and
// falls back to a plain line scanner otherwise (piped input, redirected files, tests). cleanup
// restores terminal state on exit; it is a no-op for the scanner fallback.
func newREPLReader(out io.Writer) (lineReader, func()) {
	fd := int(os.Stdin.Fd())

	if term.IsTerminal(fd) {
		t, err := newTermLineReader(fd, stdioReadWriter{Reader: os.Stdin, Writer: out}, "> ")
		if err == nil {
			return t, t.restore
		}
	}

	s := &scanLineReader{scanner: bufio.NewScanner(os.Stdin), prompt: "> ", out: out}

	return s, func() {}
}

// dispatchREPLCommand runs one parsed command line, returning true when the REPL should exit.
func dispatchREPLCommand(m *machine.Machine, fields []string, out io.Writer, logger *log.Logger) bool {
	switch fields[0] {
	case "load":
		replLoad(m, fields[1:], out, logger)
	case "step":
		replStep(m, out)
	case "run":
		replRun(m, fields[1:], out)
	case "reset":
		m.Reset()
		fmt.Fprintln(out, "reset")
	case "dump":
		fmt.Fprintf(out, "%s\n", m.Registers)
	case "mem":
		replMem(m, fields[1:], out)
	case "trace":
		replTrace(m, fields[1:], out)
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(out, "unknown command: %s\n", fields[0])
	}

	return false
}

func replLoad(m *machine.Machine, args []string, out io.Writer, logger *log.Logger) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: load <file>")
		return
	}

	bs, err := os.ReadFile(args[0])
	if err != nil {
		logger.Error("read failed", "err", err)
		return
	}

	listing := encoding.HexListing{}
	if err := listing.UnmarshalText(bs); err != nil {
		logger.Error("decode failed", "err", err)
		return
	}

	if err := m.Load(listing.Words, 0); err != nil {
		logger.Error("load failed", "err", err)
		return
	}

	fmt.Fprintf(out, "loaded %d words\n", len(listing.Words))
}

func replStep(m *machine.Machine, out io.Writer) {
	if err := m.Step(); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}

	fmt.Fprintf(out, "%s\n", m.Registers)
}

func replRun(m *machine.Machine, args []string, out io.Writer) {
	n := uint64(maxCycles)

	if len(args) == 1 {
		v, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(out, "usage: run [n]\n")
			return
		}

		n = v
	}

	cycles, err := m.Run(n)
	if err != nil {
		fmt.Fprintf(out, "error after %d cycles: %v\n", cycles, err)
		return
	}

	fmt.Fprintf(out, "ran %d cycles, halted: %t\n", cycles, m.Halted())
}

func replMem(m *machine.Machine, args []string, out io.Writer) {
	if len(args) < 1 {
		fmt.Fprintln(out, "usage: mem <addr> [len]")
		return
	}

	addr, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 16)
	if err != nil {
		fmt.Fprintln(out, "usage: mem <addr> [len]")
		return
	}

	length := uint64(1)

	if len(args) == 2 {
		length, err = strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			fmt.Fprintln(out, "usage: mem <addr> [len]")
			return
		}
	}

	view := m.Memory.View()

	for i := uint64(0); i < length; i++ {
		a := machine.Word(addr) + machine.Word(i*2)
		word := machine.Word(view[a]) | machine.Word(view[a+1])<<8
		fmt.Fprintf(out, "%04X: %04X\n", uint16(a), uint16(word))
	}
}

func replTrace(m *machine.Machine, args []string, out io.Writer) {
	switch {
	case len(args) == 0:
		m.SetTrace(true, out)
	case args[0] == "off":
		m.SetTrace(false, out)
	case args[0] == "on":
		m.SetTrace(true, out)
	default:
		fmt.Fprintln(out, "usage: trace [on|off]")

		return
	}

	fmt.Fprintln(out, "ok")
}
