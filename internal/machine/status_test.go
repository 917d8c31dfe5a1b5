package machine

import "testing"

func TestStatusRegister_SetFlagsPreservesCode(t *testing.T) {
	t.Parallel()

	var sr StatusRegister
	sr.SetCode(0x42)
	sr.SetFlags(FlagZero | FlagCarry)

	if sr.Code() != 0x42 {
		t.Errorf("want code preserved, got %#02x", sr.Code())
	}

	if !sr.Zero() || !sr.Carry() || sr.Negative() || sr.Overflow() {
		t.Errorf("unexpected flags: %s", sr)
	}
}

func TestStatusRegister_SetCodePreservesFlags(t *testing.T) {
	t.Parallel()

	var sr StatusRegister
	sr.SetFlags(FlagNegative)
	sr.SetCode(0x7f)

	if !sr.Negative() {
		t.Errorf("want negative flag preserved")
	}

	if sr.Code() != 0x7f {
		t.Errorf("want code 0x7f, got %#02x", sr.Code())
	}
}

func TestArithFlags(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name           string
		a, b, result   Word
		zero, negative bool
		carry, signedV bool
	}{
		{"zero result", 1, 0xffff, 0, true, false, true, false},
		{"negative result", 0, 0x8000, 0x8000, false, true, false, false},
		{"unsigned carry", 0xffff, 0x0002, 0x0001, false, false, true, false},
		{"signed overflow", 0x7fff, 0x0001, 0x8000, false, true, false, true},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			flags := ArithFlags(tc.a, tc.b, tc.result)

			if flags.Zero() != tc.zero {
				t.Errorf("zero: want %t, got %t", tc.zero, flags.Zero())
			}

			if flags.Negative() != tc.negative {
				t.Errorf("negative: want %t, got %t", tc.negative, flags.Negative())
			}

			if flags.Carry() != tc.carry {
				t.Errorf("carry: want %t, got %t", tc.carry, flags.Carry())
			}

			if flags.Overflow() != tc.signedV {
				t.Errorf("overflow: want %t, got %t", tc.signedV, flags.Overflow())
			}
		})
	}
}

func TestLogicFlags(t *testing.T) {
	t.Parallel()

	if !LogicFlags(0).Zero() {
		t.Errorf("want zero flag for 0 result")
	}

	if LogicFlags(0x8000).Negative() != true {
		t.Errorf("want negative flag for 0x8000 result")
	}

	if LogicFlags(0x0001).Carry() || LogicFlags(0x8001).Overflow() {
		t.Errorf("logic ops must never set C or V")
	}
}
