package main_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cassitly/cvere-core/internal/cli/cmd"
	"github.com/cassitly/cvere-core/internal/log"
)

type testHarness struct {
	*testing.T
}

func TestSelfTests(tt *testing.T) {
	t := testHarness{tt}

	log.LogLevel.Set(log.Error)

	var out bytes.Buffer

	logger := log.NewFormattedLogger(&out)
	code := cmd.Test().Run(context.Background(), nil, &out, logger)

	if code != 0 {
		t.Errorf("self-tests failed: exit %d\n%s", code, out.String())
	}
}

func TestRunArithmeticProgram(tt *testing.T) {
	t := testHarness{tt}

	dir := t.TempDir()
	path := filepath.Join(dir, "program.hex")

	program := "; arithmetic scenario\nC105\nC203\n1312\n3421\nFFFF\n"
	if err := os.WriteFile(path, []byte(program), 0o644); err != nil {
		t.Fatalf("write program: %v", err)
	}

	var out bytes.Buffer

	logger := log.NewFormattedLogger(&out)
	code := cmd.Run().Run(context.Background(), []string{path}, &out, logger)

	if code != 0 {
		t.Fatalf("run failed: exit %d\n%s", code, out.String())
	}

	if !bytes.Contains(out.Bytes(), []byte("halted: true")) {
		t.Errorf("expected halted output, got:\n%s", out.String())
	}
}
