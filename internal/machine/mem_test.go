package machine

import (
	"errors"
	"testing"
)

func TestMemory_WordRoundTrip(t *testing.T) {
	t.Parallel()

	addrs := []Word{0x0000, 0x0001, 0x0010, 0x2000, 0x7ffe, 0xfffd}

	for _, addr := range addrs {
		addr := addr
		t.Run(addr.String(), func(t *testing.T) {
			t.Parallel()

			m := NewMemory(nil)

			if err := m.WriteWord(addr, 0xbeef); err != nil {
				t.Fatalf("write: %v", err)
			}

			got, err := m.ReadWord(addr)
			if err != nil {
				t.Fatalf("read: %v", err)
			}

			if got != 0xbeef {
				t.Errorf("want 0xbeef, got %s", got)
			}
		})
	}
}

func TestMemory_ReadWordOutOfRange(t *testing.T) {
	t.Parallel()

	m := NewMemory(nil)

	if _, err := m.ReadWord(AddrSpace - 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("want ErrOutOfRange, got %v", err)
	}
}

func TestMemory_WriteWordOutOfRange(t *testing.T) {
	t.Parallel()

	m := NewMemory(nil)

	if err := m.WriteWord(AddrSpace-1, 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("want ErrOutOfRange, got %v", err)
	}
}

func TestMemory_LoadProgram(t *testing.T) {
	t.Parallel()

	m := NewMemory(nil)
	words := []Word{0xc105, 0xc203, 0xffff}

	if err := m.LoadProgram(words, 0); err != nil {
		t.Fatalf("load: %v", err)
	}

	for i, want := range words {
		got, err := m.ReadWord(Word(i * 2))
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}

		if got != want {
			t.Errorf("word %d: want %s, got %s", i, want, got)
		}
	}
}

func TestMemory_LoadProgramOutOfRange(t *testing.T) {
	t.Parallel()

	m := NewMemory(nil)
	words := make([]Word, 10)

	if err := m.LoadProgram(words, AddrSpace-4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("want ErrOutOfRange, got %v", err)
	}
}

func TestMemory_Clear(t *testing.T) {
	t.Parallel()

	m := NewMemory(nil)
	_ = m.WriteWord(0x10, 0xdead)
	m.Clear()

	got, _ := m.ReadWord(0x10)
	if got != 0 {
		t.Errorf("want 0 after clear, got %s", got)
	}
}
