package machine

// mem.go contains the memory unit: 65,536 bytes of linear storage with byte and little-endian
// word accessors. It has no privilege logic of its own -- that's the register file's job -- and it
// reports only range violations.

import (
	"fmt"

	"github.com/cassitly/cvere-core/internal/log"
)

// AddrSpace is the size of the machine's flat address space, in bytes.
const AddrSpace = 1 << 16

// Memory is the machine's linear byte-addressed store.
type Memory struct {
	cell [AddrSpace]byte
	log  *log.Logger
}

// NewMemory creates a zeroed memory unit.
func NewMemory(logger *log.Logger) *Memory {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	return &Memory{log: logger}
}

// ReadByte returns the byte at addr.
func (m *Memory) ReadByte(addr Word) (byte, error) {
	return m.cell[addr], nil
}

// WriteByte stores v at addr.
func (m *Memory) WriteByte(addr Word, v byte) error {
	m.cell[addr] = v
	return nil
}

// ReadWord returns the little-endian word at addr: low byte at addr, high byte at addr+1. It
// fails if addr+1 would fall outside the address space.
func (m *Memory) ReadWord(addr Word) (Word, error) {
	if addr == AddrSpace-1 {
		err := &AddrError{Addr: addr, Op: "read word"}
		m.log.Debug("MEM", "addr", addr, "err", err)

		return 0, err
	}

	lo := m.cell[addr]
	hi := m.cell[addr+1]

	return Word(hi)<<8 | Word(lo), nil
}

// WriteWord stores v little-endian at addr: low byte at addr, high byte at addr+1. It fails if
// addr+1 would fall outside the address space.
func (m *Memory) WriteWord(addr Word, v Word) error {
	if addr == AddrSpace-1 {
		err := &AddrError{Addr: addr, Op: "write word"}
		m.log.Debug("MEM", "addr", addr, "err", err)

		return err
	}

	m.cell[addr] = byte(v & 0x00ff)
	m.cell[addr+1] = byte(v >> 8)

	return nil
}

// LoadProgram writes words little-endian into memory starting at start, start+2, start+4, ...
// It fails on the first write that would fall outside the address space, leaving prior writes in
// place.
func (m *Memory) LoadProgram(words []Word, start Word) error {
	m.log.Debug("LOAD", "start", start, "words", len(words))

	addr := uint32(start)

	for i, w := range words {
		if addr+1 >= AddrSpace {
			err := fmt.Errorf("load program: word %d: %w", i, &AddrError{Addr: Word(addr), Op: "load program"})
			m.log.Error("LOAD", "err", err)

			return err
		}

		if err := m.WriteWord(Word(addr), w); err != nil {
			err = fmt.Errorf("load program: word %d: %w", i, err)
			m.log.Error("LOAD", "err", err)

			return err
		}

		addr += 2
	}

	return nil
}

// Clear zeroes every byte of memory. It is a reset-only operation; normal execution never
// implicitly clears memory.
func (m *Memory) Clear() {
	m.log.Debug("CLEAR")

	for i := range m.cell {
		m.cell[i] = 0
	}
}

// View returns a copy of memory for inspection by the REPL's mem command. It is a debugging
// convenience and is not used on any hot path.
func (m *Memory) View() [AddrSpace]byte {
	return m.cell
}
