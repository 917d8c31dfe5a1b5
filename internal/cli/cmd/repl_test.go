package cmd_test

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/cassitly/cvere-core/internal/cli/cmd"
	"github.com/cassitly/cvere-core/internal/log"
)

// withStdin temporarily replaces os.Stdin with a pipe fed by script, restoring the original on
// return. A pipe is never a terminal, so the REPL falls back to its plain-scanner line reader --
// the path exercised here; the raw-mode term.Terminal path needs a real pty and isn't driven by
// this test.
func withStdin(t *testing.T, script string) {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	original := os.Stdin
	os.Stdin = r

	t.Cleanup(func() {
		os.Stdin = original
	})

	go func() {
		defer w.Close()
		_, _ = w.WriteString(script)
	}()
}

func TestREPL_LoadStepRunDumpQuit(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/program.hex"

	program := "C105\nC203\n1312\nFFFF\n"
	if err := os.WriteFile(path, []byte(program), 0o644); err != nil {
		t.Fatalf("write program: %v", err)
	}

	script := "load " + path + "\n" +
		"step\n" +
		"run\n" +
		"dump\n" +
		"mem 0x0000 2\n" +
		"trace on\n" +
		"reset\n" +
		"quit\n"

	withStdin(t, script)

	var out bytes.Buffer

	logger := log.NewFormattedLogger(&out)
	code := cmd.REPL().Run(context.Background(), nil, &out, logger)

	if code != 0 {
		t.Fatalf("repl exited %d, output:\n%s", code, out.String())
	}

	got := out.String()

	for _, want := range []string{"loaded 4 words", "ran ", "reset", "ok"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q, got:\n%s", want, got)
		}
	}
}

func TestREPL_UnknownCommand(t *testing.T) {
	withStdin(t, "bogus\nquit\n")

	var out bytes.Buffer

	logger := log.NewFormattedLogger(&out)
	code := cmd.REPL().Run(context.Background(), nil, &out, logger)

	if code != 0 {
		t.Fatalf("repl exited %d", code)
	}

	if !strings.Contains(out.String(), "unknown command: bogus") {
		t.Errorf("expected unknown-command message, got:\n%s", out.String())
	}
}
