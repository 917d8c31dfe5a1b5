package machine

// disasm.go renders one decoded instruction as a single line of disassembly, used by the trace
// command.

import "fmt"

// Disassemble formats a single instruction for trace output: address, raw word, and decoded
// mnemonic with operands, e.g. "0000:  C105  LOADI R1, 0x5".
func Disassemble(pc Word, word Word) string {
	d := Decode(word)
	return fmt.Sprintf("%04X:  %04X  %s", uint16(pc), uint16(word), d.String())
}
