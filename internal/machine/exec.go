package machine

// exec.go is the interpreter: it composes the register file, memory unit and decoder, and drives
// the fetch -> decode -> eval-address -> fetch-operands -> execute -> writeback pipeline one
// instruction at a time. Faults raised anywhere in that pipeline are converted to trap entries
// rather than returned to the caller; only driver-level misuse (stepping a halted machine) and a
// failure of the syscall Host come back as a plain error.

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cassitly/cvere-core/internal/log"
)

// Machine ties the register file, memory and decoder together into a runnable CPU.
type Machine struct {
	Registers *RegisterFile
	Memory    *Memory
	Host      Host

	Interrupts InterruptController

	halted   bool
	cycle    uint64
	trace    bool
	traceDst io.Writer

	log *log.Logger
}

// traceOut returns the writer trace lines are printed to, defaulting to stdout.
func (m *Machine) traceOut() io.Writer {
	if m.traceDst == nil {
		return os.Stdout
	}

	return m.traceDst
}

// Option configures a Machine at construction time.
type Option func(*Machine)

// WithLogger installs logger in place of the package default.
func WithLogger(logger *log.Logger) Option {
	return func(m *Machine) { m.log = logger }
}

// WithHost installs host as the syscall service. Without this option the Machine uses NullHost,
// which fails every syscall.
func WithHost(host Host) Option {
	return func(m *Machine) { m.Host = host }
}

// WithTrace enables per-instruction trace logging, writing disassembly lines to w.
func WithTrace(w io.Writer) Option {
	return func(m *Machine) {
		m.trace = true
		m.traceDst = w
	}
}

// New builds a Machine at boot defaults.
func New(opts ...Option) *Machine {
	logger := log.DefaultLogger()

	m := &Machine{
		log:  logger,
		Host: NullHost{},
	}

	for _, opt := range opts {
		opt(m)
	}

	m.Registers = NewRegisterFile(m.log)
	m.Memory = NewMemory(m.log)

	return m
}

// Halted reports whether the machine has executed HALT.
func (m *Machine) Halted() bool { return m.halted }

// SetTrace toggles per-instruction trace output at runtime, used by the REPL's "trace" command.
func (m *Machine) SetTrace(on bool, w io.Writer) {
	m.trace = on

	if w != nil {
		m.traceDst = w
	}
}

// Cycles returns the number of instructions successfully committed since the last reset.
func (m *Machine) Cycles() uint64 { return m.cycle }

// Reset reinitializes the register file to boot defaults, clears memory, and clears the halted
// flag and cycle counter. Idempotent.
func (m *Machine) Reset() {
	m.Registers.Reset()
	m.Memory.Clear()
	m.halted = false
	m.cycle = 0
}

// Load writes words into memory starting at start and resets PC to start.
func (m *Machine) Load(words []Word, start Word) error {
	if err := m.Memory.LoadProgram(words, start); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	m.Registers.PC = ProgramCounter(start)

	return nil
}

// Step executes exactly one instruction. It returns an error only for driver-level misuse
// (stepping a halted machine) or a *HostError from the syscall Host; every guest-visible fault is
// instead delivered as a trap and Step returns nil so the caller can keep running.
func (m *Machine) Step() error {
	if m.halted {
		return ErrHalted
	}

	if err := m.step(); err != nil {
		var trap *Trap

		if errors.As(err, &trap) {
			m.log.Warn("TRAP", "code", trap.Code, "vector", trap.Vector, "cause", trap.Cause)
			trap.Handle(m)

			return nil
		}

		m.log.Error("EXEC", "err", err)

		return err
	}

	m.cycle++
	m.pollInterrupts()

	return nil
}

// step runs the fetch/decode/dispatch/commit pipeline for one instruction, returning any fault as
// a *Trap (never a bare core error) so Step can deliver it uniformly. The one non-trap error it
// returns is a *HostError from SYSCALL.
func (m *Machine) step() error {
	pc := Word(m.Registers.PC)

	if err := m.Registers.CanExecute(pc); err != nil {
		return m.exceptionTrap(codeFor(err), err)
	}

	word, err := m.Memory.ReadWord(pc)
	if err != nil {
		return m.exceptionTrap(codeFor(err), err)
	}

	m.log.Debug("FETCH", "pc", pc, "word", word)

	m.Registers.PC = ProgramCounter(pc + 2)

	d := Decode(word)

	m.log.Debug("DECODE", "op", d.String(), "format", d.Format)

	if m.trace {
		fmt.Fprintln(m.traceOut(), Disassemble(pc, word))
	}

	if d.Mnemonic == Unknown {
		return m.exceptionTrap(CodeInvalidOpcode, &OpcodeError{Word: word})
	}

	var st execState
	st.firstWordPC = Word(m.Registers.PC)

	if d.Extended {
		second, err := m.Memory.ReadWord(Word(m.Registers.PC))
		if err != nil {
			return m.exceptionTrap(codeFor(err), err)
		}

		m.Registers.PC += 2
		st.operand = second
	}

	op, ok := opTable[d.Mnemonic]
	if !ok {
		return m.exceptionTrap(CodeInvalidOpcode, &OpcodeError{Word: word})
	}

	if a, ok := op.(addressable); ok {
		if err := a.EvalAddress(m, d, &st); err != nil {
			return m.exceptionTrap(codeFor(err), err)
		}
	}

	if f, ok := op.(fetchable); ok {
		if err := f.FetchOperands(m, d, &st); err != nil {
			return m.exceptionTrap(codeFor(err), err)
		}
	}

	if d.Mnemonic == SYSCALL {
		if err := m.checkSyscallPrivilege(st.operand); err != nil {
			return m.exceptionTrap(codeFor(err), err)
		}
	}

	if e, ok := op.(executable); ok {
		if err := e.Execute(m, d, &st); err != nil {
			// A HostError is a failure of the external syscall service, not a guest-visible
			// fault: it propagates out of step (and Step, and Run) to the caller instead of
			// being delivered through the exception vector, per the Host.Syscall contract.
			var hostErr *HostError
			if errors.As(err, &hostErr) {
				return err
			}

			return m.exceptionTrap(codeFor(err), err)
		}
	}

	if w, ok := op.(storable); ok {
		if err := w.Writeback(m, d, &st); err != nil {
			return m.exceptionTrap(codeFor(err), err)
		}
	}

	m.log.Debug("EXEC", "op", d.String(), "pc", m.Registers.PC, "sr", m.Registers.SR)

	return nil
}

// pollInterrupts delivers at most one pending, enabled, unmasked interrupt between completed
// instructions. It is never consulted mid-instruction.
func (m *Machine) pollInterrupts() {
	irq, ok := m.Interrupts.Poll(m.Registers.InterruptsEnabled, m.Registers.InterruptMask)
	if !ok {
		return
	}

	m.log.Debug("IRQ", "irq", irq)

	trap := &Trap{Code: IRQCode(irq), Vector: m.Registers.InterruptVector, Cause: fmt.Errorf("irq %d", irq)}
	trap.Handle(m)
}

// checkSyscallPrivilege consults the host's required-privilege table for the syscall number held
// in the ABI's call-number register, the same register doSyscall reads. The second Extended word
// passed in is not consulted.
func (m *Machine) checkSyscallPrivilege(_ Word) error {
	number := Word(m.Registers.ReadGP(syscallNumberReg))

	if m.Registers.Privilege > m.Host.RequiredPrivilege(number) {
		return &PrivError{From: m.Registers.Privilege, To: m.Host.RequiredPrivilege(number), Reason: "syscall requires higher privilege"}
	}

	return nil
}

// Syscall ABI register assignment: R0 is hardwired to zero, so the call number travels in R1,
// arguments in R2-R5, and the return value is written back into R1.
const (
	syscallNumberReg = GPR(1)
	syscallArg0Reg   = GPR(2)
	syscallReturnReg = GPR(1)
)

// doSyscall forwards the pending call to the configured Host and writes its result back into the
// ABI return register.
func (m *Machine) doSyscall() error {
	number := Word(m.Registers.ReadGP(syscallNumberReg))

	var args [4]Word
	for i := range args {
		args[i] = Word(m.Registers.ReadGP(GPR(int(syscallArg0Reg) + i)))
	}

	result, err := m.Host.Syscall(m, number, args)
	if err != nil {
		hostErr := &HostError{Number: number, Err: err}
		m.log.Error("HOST", "number", number, "err", err)

		return hostErr
	}

	m.Registers.WriteGP(syscallReturnReg, Register(result))

	return nil
}

// Run executes up to maxCycles instructions, stopping early if the machine halts. It returns the
// number of cycles actually executed.
func (m *Machine) Run(maxCycles uint64) (uint64, error) {
	m.log.Info("RUN", "max_cycles", maxCycles, "pc", m.Registers.PC)

	start := m.cycle

	for m.cycle-start < maxCycles && !m.halted {
		if err := m.Step(); err != nil {
			m.log.Error("HALT", "cycles", m.cycle-start, "err", err)
			return m.cycle - start, err
		}
	}

	m.log.Info("HALT", "cycles", m.cycle-start, "halted", m.halted)

	return m.cycle - start, nil
}
