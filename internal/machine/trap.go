package machine

// trap.go implements trap delivery: the mechanism by which both synchronous exceptions (raised
// mid-instruction) and asynchronous interrupts (polled between instructions) funnel through the
// register file's any-ring-to-kernel transition. A trap is represented as a typed error so that
// the step loop can treat "this instruction faulted" and "this instruction succeeded" uniformly
// and convert the former into a vector redirect rather than surfacing it to the caller.

import "fmt"

// Exception and interrupt codes written into the high byte of SR on trap entry.
const (
	CodeAccessViolation    uint8 = 0x01
	CodeExecutionViolation uint8 = 0x02
	CodePrivilegeViolation uint8 = 0x03
	CodeInvalidOpcode      uint8 = 0x04
	CodeOutOfRange         uint8 = 0x05

	// IRQ codes occupy the top half of the code space so a state dump can tell a synchronous
	// fault from a delivered interrupt at a glance.
	codeIRQBase uint8 = 0x80
)

// IRQCode returns the trap code written into SR for interrupt line irq.
func IRQCode(irq uint8) uint8 { return codeIRQBase + irq }

// Trap is delivered by EnterTrap; it carries the code to stamp into SR, the vector to redirect PC
// to, and the underlying cause for logging. Faults during guest execution always resolve to a
// Trap; they are never returned to the Run/Step caller.
type Trap struct {
	Code   uint8
	Vector Word
	Cause  error
}

func (t *Trap) Error() string {
	return fmt.Sprintf("trap %#02x at vector %s: %v", t.Code, t.Vector, t.Cause)
}

func (t *Trap) Unwrap() error { return t.Cause }

// Handle delivers the trap into m's register file: save state, stamp the code, switch to kernel,
// and redirect PC to the vector.
func (t *Trap) Handle(m *Machine) {
	m.Registers.EnterTrap(t.Vector, t.Code)
}

// exceptionTrap builds the Trap for a synchronous fault raised during Step, targeting the
// register file's exception vector.
func (m *Machine) exceptionTrap(code uint8, cause error) *Trap {
	return &Trap{Code: code, Vector: m.Registers.ExceptionVector, Cause: cause}
}

// codeFor maps a core fault to the trap code that should be stamped into SR.
func codeFor(err error) uint8 {
	switch err.(type) {
	case *AccessError:
		return CodeAccessViolation
	case *ExecError:
		return CodeExecutionViolation
	case *PrivError:
		return CodePrivilegeViolation
	case *OpcodeError:
		return CodeInvalidOpcode
	case *AddrError:
		return CodeOutOfRange
	default:
		return CodeOutOfRange
	}
}

// InterruptController tracks pending IRQ lines between steps. Delivery is polled, never
// mid-instruction: Step calls Poll once after committing an instruction and before the next
// fetch.
type InterruptController struct {
	pending uint16
}

// Raise marks IRQ line irq pending. It is safe to call at any time; delivery happens at the next
// poll point.
func (ic *InterruptController) Raise(irq uint8) {
	ic.pending |= 1 << irq
}

// Poll returns the lowest-numbered pending IRQ that is both enabled globally and unmasked, and
// clears it, or ok=false if none is deliverable. A pending-but-masked-or-disabled IRQ is dropped,
// not queued, matching the no-queueing rule: the line must be raised again by its source to be
// retried.
func (ic *InterruptController) Poll(enabled bool, mask Word) (irq uint8, ok bool) {
	if !enabled || ic.pending == 0 {
		ic.pending = 0
		return 0, false
	}

	deliverable := ic.pending & uint16(mask)
	ic.pending = 0

	if deliverable == 0 {
		return 0, false
	}

	for i := 0; i < 16; i++ {
		if deliverable&(1<<i) != 0 {
			ic.pending = deliverable &^ (1 << i)
			return uint8(i), true
		}
	}

	return 0, false
}
