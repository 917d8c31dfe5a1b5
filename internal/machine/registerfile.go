package machine

// registerfile.go owns the sixteen general-purpose registers, the special-purpose registers, and
// the ring-banked privilege state machine described in the architecture.

import (
	"fmt"
	"strings"

	"github.com/cassitly/cvere-core/internal/log"
)

// Segment is a [Base, Limit) half-open range gating execution or data access.
type Segment struct {
	Base, Limit Word
}

// Contains reports whether addr lies within the segment.
func (s Segment) Contains(addr Word) bool {
	return addr >= s.Base && addr < s.Limit
}

// Fixed address ranges that gate access for non-kernel rings, per the memory access policy.
const (
	kernelRegionBase = Word(0x0000)
	kernelRegionEnd  = Word(0x1000) // exclusive; 0x0000..0x0FFF
	ioRegionBase     = Word(0xF000)
	ioRegionEnd      = Word(0x0000) // wraps; treated specially below (0xF000..0xFFFF inclusive)
	worldBase        = Word(0x2000)
	worldEnd         = Word(0x8000) // 0x2000..0x7FFF
	userHeapBase     = Word(0x8000)
	userHeapEnd      = Word(0xE000) // 0x8000..0xDFFF
)

// RegisterFile holds the machine's sixteen general-purpose registers and all special-purpose
// registers, including the ring-banked stack pointers and the saved trap state.
type RegisterFile struct {
	GP [NumGPR]Register

	PC ProgramCounter
	SP Register // live stack pointer: mirrors exactly one bank, selected by Privilege.
	LR Register
	SR StatusRegister

	spKernel, spSupervisor, spUser Register

	Privilege Privilege

	SavedPC        ProgramCounter
	SavedSR        StatusRegister
	SavedPrivilege Privilege

	ExceptionVector Word
	InterruptVector Word

	Code, Data, Stack Segment

	InterruptsEnabled bool
	InterruptMask     Word

	log *log.Logger
}

// Reset boot addresses and defaults, per spec.
const (
	resetSPKernel     = Word(0xfffe)
	resetSPSupervisor = Word(0xeffe)
	resetSPUser       = Word(0xdffe)
	resetException    = Word(0x0010)
	resetInterrupt    = Word(0x0020)
)

// NewRegisterFile creates a register file initialized to the machine's boot defaults.
func NewRegisterFile(logger *log.Logger) *RegisterFile {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	rf := &RegisterFile{log: logger}
	rf.Reset()

	return rf
}

// Reset reinitializes the register file to boot defaults. Idempotent: Reset(); Reset() is
// equivalent to a single Reset().
func (rf *RegisterFile) Reset() {
	rf.GP = [NumGPR]Register{}
	rf.PC = 0
	rf.LR = 0
	rf.SR = 0

	rf.spKernel = Register(resetSPKernel)
	rf.spSupervisor = Register(resetSPSupervisor)
	rf.spUser = Register(resetSPUser)

	rf.Privilege = Kernel
	rf.SP = rf.spKernel

	rf.SavedPC = 0
	rf.SavedSR = 0
	rf.SavedPrivilege = Kernel

	rf.ExceptionVector = resetException
	rf.InterruptVector = resetInterrupt

	rf.Code = Segment{Base: 0x0000, Limit: 0xffff}
	rf.Data = Segment{Base: 0x0000, Limit: 0xffff}
	rf.Stack = Segment{Base: 0xd000, Limit: 0xffff}

	rf.InterruptsEnabled = true
	rf.InterruptMask = 0xffff
}

func (rf RegisterFile) String() string {
	return fmt.Sprintf(
		"PC: %s LR: %s SP: %s SR: %s PL: %s\n%s",
		rf.PC, rf.LR, rf.SP, rf.SR, rf.Privilege, gpFile(rf.GP).String())
}

// gpFile is the array type backing general-purpose registers; it exists only so we can hang a
// String method off it for dumps.
type gpFile [NumGPR]Register

// ReadGP returns the value of general-purpose register r. R0 always reads zero; registers beyond
// the file's bounds also read zero -- both are well-defined, non-faulting reads.
func (rf RegisterFile) ReadGP(r GPR) Register {
	if r == R0 || int(r) >= NumGPR {
		return 0
	}

	return rf.GP[r]
}

// WriteGP stores v in general-purpose register r. Writes to R0 and to out-of-bounds registers are
// silently ignored.
func (rf *RegisterFile) WriteGP(r GPR, v Register) {
	if r == R0 || int(r) >= NumGPR {
		return
	}

	rf.GP[r] = v
}

// GetFlags returns the condition flags currently held in SR.
func (rf RegisterFile) GetFlags() StatusRegister {
	return rf.SR.Flags()
}

// SetFlags overwrites the condition flags in SR, preserving the exception/IRQ code in the high
// byte.
func (rf *RegisterFile) SetFlags(flags StatusRegister) {
	rf.SR.SetFlags(flags)
}

// bankOut saves the live SP into the bank for ring p.
func (rf *RegisterFile) bankOut(p Privilege) {
	switch p {
	case Kernel:
		rf.spKernel = rf.SP
	case Supervisor:
		rf.spSupervisor = rf.SP
	case User:
		rf.spUser = rf.SP
	}
}

// bankIn loads the live SP from the bank for ring p.
func (rf *RegisterFile) bankIn(p Privilege) {
	switch p {
	case Kernel:
		rf.SP = rf.spKernel
	case Supervisor:
		rf.SP = rf.spSupervisor
	case User:
		rf.SP = rf.spUser
	}
}

// DropPrivilege voluntarily moves the CPU to an equal-or-lower-authority ring (numerically equal
// or greater). Escalation -- moving to a numerically lower ring -- is always denied; only a
// trap (EnterTrap) may raise privilege. A no-op transition (target == current) banks nothing.
func (rf *RegisterFile) DropPrivilege(target Privilege) error {
	if target < rf.Privilege {
		err := &PrivError{From: rf.Privilege, To: target, Reason: "voluntary escalation denied"}
		rf.log.Warn("PRIV", "from", rf.Privilege, "to", target, "err", err)

		return err
	}

	if target == rf.Privilege {
		return nil
	}

	rf.log.Debug("PRIV", "from", rf.Privilege, "to", target)

	rf.bankOut(rf.Privilege)
	rf.Privilege = target
	rf.bankIn(target)

	return nil
}

// EnterTrap is the forced any-ring-to-kernel transition used for both synchronous exceptions and
// asynchronous interrupts. It atomically saves pc/sr/privilege, stamps the trap code into the
// high byte of SR, banks the outgoing stack pointer, switches to kernel with the kernel stack, and
// redirects PC to vector.
func (rf *RegisterFile) EnterTrap(vector Word, code uint8) {
	rf.log.Warn("TRAP", "code", code, "vector", vector, "pc", rf.PC, "privilege", rf.Privilege)

	rf.SavedPC = rf.PC
	rf.SavedSR = rf.SR
	rf.SavedPrivilege = rf.Privilege

	rf.SR.SetCode(code)

	rf.bankOut(rf.Privilege)
	rf.Privilege = Kernel
	rf.bankIn(Kernel)

	rf.PC = ProgramCounter(vector)
}

// ReturnFromTrap undoes EnterTrap: it is allowed only when the CPU is currently in kernel mode.
// It restores pc/sr and the privilege level active before the trap, banking the kernel stack
// pointer out and the saved ring's stack pointer back in.
func (rf *RegisterFile) ReturnFromTrap() error {
	if rf.Privilege != Kernel {
		err := &PrivError{From: rf.Privilege, To: Kernel, Reason: "return-from-trap outside kernel"}
		rf.log.Warn("RFT", "err", err)

		return err
	}

	rf.log.Debug("RFT", "to", rf.SavedPrivilege, "pc", rf.SavedPC)

	rf.PC = rf.SavedPC
	rf.SR = rf.SavedSR

	rf.bankOut(Kernel)
	rf.Privilege = rf.SavedPrivilege
	rf.bankIn(rf.SavedPrivilege)

	return nil
}

// CanAccess reports whether the current ring may read (or, if write is true, write) addr. It is
// consulted by the interpreter before every data load/store; the memory unit itself is unaware of
// privilege.
func (rf RegisterFile) CanAccess(addr Word, write bool) error {
	if rf.Privilege == Kernel {
		return nil
	}

	if addr >= kernelRegionBase && addr < kernelRegionEnd {
		if write {
			return &AccessError{Addr: addr, Write: true, Privilege: rf.Privilege}
		}

		return nil
	}

	if addr >= ioRegionBase {
		return &AccessError{Addr: addr, Write: write, Privilege: rf.Privilege}
	}

	switch rf.Privilege {
	case Supervisor:
		if addr >= worldBase && addr < worldEnd {
			return nil
		}
	case User:
		if addr >= userHeapBase && addr < userHeapEnd {
			return nil
		}
	}

	return &AccessError{Addr: addr, Write: write, Privilege: rf.Privilege}
}

// CanExecute reports whether pc lies within the code segment.
func (rf RegisterFile) CanExecute(pc Word) error {
	if pc < rf.Code.Base || pc >= rf.Code.Limit {
		return &ExecError{PC: pc}
	}

	return nil
}

func (rf gpFile) String() string {
	b := strings.Builder{}

	for i := 0; i < len(rf)/2; i++ {
		fmt.Fprintf(&b, "R%-2d: %s  R%-2d: %s\n", i, rf[i], i+len(rf)/2, rf[i+len(rf)/2])
	}

	return b.String()
}
