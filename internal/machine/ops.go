package machine

// ops.go implements every mnemonic as a small stateless operation satisfying some subset of the
// four pipeline stage interfaces. Not every operation needs every stage: LOADI has no address to
// evaluate, NOT has nothing to fetch from memory, HALT writes nothing back. exec.go drives the
// pipeline by type-asserting each stage against the operation looked up for the decoded mnemonic,
// skipping any stage the operation doesn't implement.

// execState carries the per-instruction scratch values threaded between pipeline stages: the
// effective address (for LOAD/STORE), the fetched operand (for LOAD), and the computed result
// (written back by the storable stage).
type execState struct {
	addr    Word
	operand Word
	result  Word

	// firstWordPC is the program counter value immediately after the first word of a two-word
	// Extended instruction was fetched, before the second word is fetched. CALL uses this, not
	// the current PC, as its return address -- see callOp below.
	firstWordPC Word
}

// addressable operations compute an effective address from the current register file.
type addressable interface {
	EvalAddress(m *Machine, d Decoded, st *execState) error
}

// fetchable operations read an operand, typically from memory at the address evaluated in the
// previous stage.
type fetchable interface {
	FetchOperands(m *Machine, d Decoded, st *execState) error
}

// executable operations perform the semantic effect of the instruction, other than committing a
// register or memory write, and set st.result when there is a value to commit.
type executable interface {
	Execute(m *Machine, d Decoded, st *execState) error
}

// storable operations commit st.result (or some other side effect) to the register file or
// memory. This is always the last stage to run for an instruction.
type storable interface {
	Writeback(m *Machine, d Decoded, st *execState) error
}

// operation is the union any concrete op type may implement all or some of; it exists so the
// dispatch table in exec.go has a single value type to hold regardless of which stages a
// particular mnemonic needs.
type operation interface{}

// opTable maps every mnemonic this decoder can produce to its operation. Built once at package
// init; operations are stateless so a single shared instance per mnemonic is safe.
var opTable = map[Mnemonic]operation{
	NOP:     nopOp{},
	HALT:    haltOp{},
	ADD:     arithOp{fn: addResult, fullFlags: true},
	SUB:     arithOp{fn: subResult, fullFlags: false},
	ADDI:    addiOp{},
	LOADI:   loadiOp{},
	AND:     logicOp{fn: func(rs, rt Word) Word { return rs & rt }},
	OR:      logicOp{fn: func(rs, rt Word) Word { return rs | rt }},
	XOR:     logicOp{fn: func(rs, rt Word) Word { return rs ^ rt }},
	NOT:     logicOp{fn: func(rs, _ Word) Word { return ^rs }},
	SHL:     logicOp{fn: func(rs, rt Word) Word { return rs << (rt & 0xf) }},
	SHR:     logicOp{fn: func(rs, rt Word) Word { return rs >> (rt & 0xf) }},
	LOAD:    loadOp{},
	STORE:   storeOp{},
	JMP:     jmpOp{},
	BEQ:     branchOp{taken: func(rc Word) bool { return rc == 0 }},
	BNE:     branchOp{taken: func(rc Word) bool { return rc != 0 }},
	CALL:    callOp{},
	RET:     retOp{},
	PUSH:    pushOp{},
	POP:     popOp{},
	SYSCALL: syscallOp{},
}

// --- NOP / HALT -------------------------------------------------------------------------------

type nopOp struct{}

func (nopOp) Execute(*Machine, Decoded, *execState) error { return nil }

type haltOp struct{}

func (haltOp) Execute(m *Machine, _ Decoded, _ *execState) error {
	m.log.Info("HALT", "pc", m.Registers.PC, "cycle", m.cycle)
	m.halted = true

	return nil
}

// --- arithmetic (R format: ADD, SUB) ----------------------------------------------------------

type arithOp struct {
	fn func(rs, rt Word) (Word, StatusRegister)
	// fullFlags is true for ADD/ADDI-style ops that define C and V; false for SUB, which this
	// port defines as updating only Z and N, leaving C and V at their prior values (see the
	// design notes on the open carry/overflow question for SUB).
	fullFlags bool
}

func (op arithOp) Execute(m *Machine, d Decoded, st *execState) error {
	rs := Word(m.Registers.ReadGP(d.Rs))
	rt := Word(m.Registers.ReadGP(d.Rt))

	result, flags := op.fn(rs, rt)
	st.result = result

	if op.fullFlags {
		m.Registers.SetFlags(flags)
	} else {
		merged := m.Registers.GetFlags()
		merged = (merged &^ (FlagZero | FlagNegative)) | (flags & (FlagZero | FlagNegative))
		m.Registers.SetFlags(merged)
	}

	return nil
}

func (arithOp) Writeback(m *Machine, d Decoded, st *execState) error {
	m.Registers.WriteGP(d.Rd, Register(st.result))
	return nil
}

func addResult(rs, rt Word) (Word, StatusRegister) {
	result := rs + rt
	return result, ArithFlags(rs, rt, result)
}

func subResult(rs, rt Word) (Word, StatusRegister) {
	result := rs - rt
	return result, LogicFlags(result)
}

// --- logic (AND/OR/XOR/NOT/SHL/SHR) ------------------------------------------------------------

type logicOp struct {
	fn func(rs, rt Word) Word
}

func (op logicOp) Execute(m *Machine, d Decoded, st *execState) error {
	rs := Word(m.Registers.ReadGP(d.Rs))
	rt := Word(m.Registers.ReadGP(d.Rt))

	st.result = op.fn(rs, rt)

	merged := m.Registers.GetFlags()
	merged = (merged &^ (FlagZero | FlagNegative)) | LogicFlags(st.result)
	m.Registers.SetFlags(merged)

	return nil
}

func (logicOp) Writeback(m *Machine, d Decoded, st *execState) error {
	m.Registers.WriteGP(d.Rd, Register(st.result))
	return nil
}

// --- immediates (ADDI, LOADI) -----------------------------------------------------------------

type addiOp struct{}

func (addiOp) Execute(m *Machine, d Decoded, st *execState) error {
	rd := Word(m.Registers.ReadGP(d.Rd))
	imm := Word(d.Imm8)
	imm.Zext(8)

	result := rd + imm
	st.result = result
	m.Registers.SetFlags(ArithFlags(rd, imm, result))

	return nil
}

func (addiOp) Writeback(m *Machine, d Decoded, st *execState) error {
	m.Registers.WriteGP(d.Rd, Register(st.result))
	return nil
}

type loadiOp struct{}

func (loadiOp) Execute(_ *Machine, d Decoded, st *execState) error {
	imm := Word(d.Imm8)
	imm.Sext(8)
	st.result = imm

	return nil
}

func (loadiOp) Writeback(m *Machine, d Decoded, st *execState) error {
	m.Registers.WriteGP(d.Rd, Register(st.result))
	return nil
}

// --- memory (LOAD, STORE) ----------------------------------------------------------------------

func effectiveAddress(m *Machine, d Decoded) Word {
	rs := Word(m.Registers.ReadGP(d.Rs))
	return rs + Word(d.Offset4)*2
}

type loadOp struct{}

func (loadOp) EvalAddress(m *Machine, d Decoded, st *execState) error {
	st.addr = effectiveAddress(m, d)
	return m.Registers.CanAccess(st.addr, false)
}

func (loadOp) FetchOperands(m *Machine, _ Decoded, st *execState) error {
	v, err := m.Memory.ReadWord(st.addr)
	if err != nil {
		return err
	}

	st.operand = v

	return nil
}

func (loadOp) Execute(_ *Machine, _ Decoded, st *execState) error {
	st.result = st.operand
	return nil
}

func (loadOp) Writeback(m *Machine, d Decoded, st *execState) error {
	m.Registers.WriteGP(d.Rd, Register(st.result))
	return nil
}

type storeOp struct{}

func (storeOp) EvalAddress(m *Machine, d Decoded, st *execState) error {
	st.addr = effectiveAddress(m, d)
	return m.Registers.CanAccess(st.addr, true)
}

func (storeOp) Execute(m *Machine, d Decoded, st *execState) error {
	st.result = Word(m.Registers.ReadGP(d.Rd))
	return nil
}

func (storeOp) Writeback(m *Machine, _ Decoded, st *execState) error {
	return m.Memory.WriteWord(st.addr, st.result)
}

// --- control flow (JMP, BEQ, BNE) ---------------------------------------------------------------

type jmpOp struct{}

func (jmpOp) Execute(m *Machine, d Decoded, _ *execState) error {
	m.Registers.PC = ProgramCounter(d.Addr12)
	return nil
}

type branchOp struct {
	taken func(rc Word) bool
}

func (op branchOp) Execute(m *Machine, d Decoded, _ *execState) error {
	rc := Word(m.Registers.ReadGP(d.Rd))
	if !op.taken(rc) {
		return nil
	}

	offset := Word(d.Imm8)
	offset.Sext(8)

	// The displacement is word-scaled and relative to PC as it stands after this instruction's
	// single word was fetched (already advanced by the fetch stage).
	m.Registers.PC = ProgramCounter(Word(m.Registers.PC) + offset*2)

	return nil
}

// --- subroutines (CALL, RET, PUSH, POP) ---------------------------------------------------------

type callOp struct{}

func (callOp) Execute(m *Machine, _ Decoded, st *execState) error {
	// lr is set from pc as it stood right after the first word was fetched, before the
	// interpreter advanced past the second (target) word -- this is the literal reading of the
	// reference semantics, not a bug: RET returns to the CALL's target-operand word, not past it.
	m.Registers.LR = Register(st.firstWordPC)
	m.Registers.PC = ProgramCounter(st.operand)

	return nil
}

type retOp struct{}

func (retOp) Execute(m *Machine, _ Decoded, _ *execState) error {
	m.Registers.PC = ProgramCounter(m.Registers.LR)
	return nil
}

type pushOp struct{}

func (pushOp) Execute(m *Machine, _ Decoded, st *execState) error {
	reg := GPR((st.operand >> 12) & 0xf)
	sp := Word(m.Registers.SP) - 2

	if err := m.Registers.CanAccess(sp, true); err != nil {
		return err
	}

	if err := m.Memory.WriteWord(sp, Word(m.Registers.ReadGP(reg))); err != nil {
		return err
	}

	m.Registers.SP = Register(sp)

	return nil
}

type popOp struct{}

func (popOp) Execute(m *Machine, _ Decoded, st *execState) error {
	reg := GPR((st.operand >> 12) & 0xf)
	sp := Word(m.Registers.SP)

	if err := m.Registers.CanAccess(sp, false); err != nil {
		return err
	}

	v, err := m.Memory.ReadWord(sp)
	if err != nil {
		return err
	}

	m.Registers.WriteGP(reg, Register(v))
	m.Registers.SP = Register(sp + 2)

	return nil
}

// --- syscall -------------------------------------------------------------------------------------

type syscallOp struct{}

func (syscallOp) Execute(m *Machine, _ Decoded, _ *execState) error {
	return m.doSyscall()
}
