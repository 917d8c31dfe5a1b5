package machine

import (
	"errors"
	"testing"
)

func TestRegisterFile_R0Hardwired(t *testing.T) {
	t.Parallel()

	rf := NewRegisterFile(nil)
	rf.WriteGP(R0, 0xdead)

	if got := rf.ReadGP(R0); got != 0 {
		t.Errorf("want R0 == 0, got %s", got)
	}
}

func TestRegisterFile_OutOfRangeGPIgnored(t *testing.T) {
	t.Parallel()

	rf := NewRegisterFile(nil)
	rf.WriteGP(GPR(20), 0x1234)

	if got := rf.ReadGP(GPR(20)); got != 0 {
		t.Errorf("want 0 for out-of-range register, got %s", got)
	}
}

func TestRegisterFile_DropPrivilege(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name       string
		from, to   Privilege
		wantErr    bool
	}{
		{"K to K", Kernel, Kernel, false},
		{"K to S", Kernel, Supervisor, false},
		{"K to U", Kernel, User, false},
		{"S to U", Supervisor, User, false},
		{"S to K escalation denied", Supervisor, Kernel, true},
		{"U to K escalation denied", User, Kernel, true},
		{"U to S escalation denied", User, Supervisor, true},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rf := NewRegisterFile(nil)
			rf.Privilege = tc.from

			err := rf.DropPrivilege(tc.to)

			if tc.wantErr {
				var privErr *PrivError
				if !errors.As(err, &privErr) {
					t.Fatalf("want PrivError, got %v", err)
				}

				if rf.Privilege != tc.from {
					t.Errorf("privilege changed on denied transition: want %s, got %s", tc.from, rf.Privilege)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if rf.Privilege != tc.to {
				t.Errorf("want privilege %s, got %s", tc.to, rf.Privilege)
			}
		})
	}
}

func TestRegisterFile_DropPrivilegeBanksStackPointer(t *testing.T) {
	t.Parallel()

	rf := NewRegisterFile(nil)
	rf.SP = 0x1234 // kernel's live SP before the drop.

	if err := rf.DropPrivilege(User); err != nil {
		t.Fatalf("drop: %v", err)
	}

	if rf.spKernel != 0x1234 {
		t.Errorf("outgoing kernel SP not banked: got %s", Register(rf.spKernel))
	}

	if rf.SP != rf.spUser {
		t.Errorf("live SP does not mirror user bank: sp=%s, spUser=%s", rf.SP, rf.spUser)
	}
}

func TestRegisterFile_EnterAndReturnFromTrap(t *testing.T) {
	t.Parallel()

	rf := NewRegisterFile(nil)
	rf.Privilege = User
	rf.PC = 0x3000
	rf.SR = 0x0005
	rf.SP = 0xd000

	rf.EnterTrap(0x0010, CodeAccessViolation)

	if rf.Privilege != Kernel {
		t.Fatalf("want Kernel after trap entry, got %s", rf.Privilege)
	}

	if rf.PC != ProgramCounter(0x0010) {
		t.Errorf("want pc at vector, got %s", rf.PC)
	}

	if rf.SR.Code() != CodeAccessViolation {
		t.Errorf("want trap code in SR, got %#02x", rf.SR.Code())
	}

	if rf.SavedPC != 0x3000 || rf.SavedPrivilege != User {
		t.Errorf("saved state incorrect: pc=%s privilege=%s", rf.SavedPC, rf.SavedPrivilege)
	}

	if err := rf.ReturnFromTrap(); err != nil {
		t.Fatalf("return: %v", err)
	}

	if rf.Privilege != User {
		t.Errorf("want restored privilege User, got %s", rf.Privilege)
	}

	if rf.PC != ProgramCounter(0x3000) {
		t.Errorf("want restored pc, got %s", rf.PC)
	}
}

func TestRegisterFile_ReturnFromTrapOutsideKernelFails(t *testing.T) {
	t.Parallel()

	rf := NewRegisterFile(nil)
	rf.Privilege = Supervisor

	if err := rf.ReturnFromTrap(); !errors.As(err, new(*PrivError)) {
		t.Errorf("want PrivError, got %v", err)
	}
}

func TestRegisterFile_CanAccess(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name      string
		privilege Privilege
		addr      Word
		write     bool
		wantErr   bool
	}{
		{"kernel reads anywhere", Kernel, 0xf000, false, false},
		{"kernel writes anywhere", Kernel, 0xf000, true, false},
		{"user reads kernel region", User, 0x0010, false, false},
		{"user writes kernel region denied", User, 0x0010, true, true},
		{"non-kernel io region denied", Supervisor, 0xf010, false, true},
		{"supervisor world memory allowed", Supervisor, 0x3000, true, false},
		{"supervisor user heap denied", Supervisor, 0x9000, true, true},
		{"user heap allowed", User, 0x9000, true, false},
		{"user world memory denied", User, 0x3000, true, true},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rf := NewRegisterFile(nil)
			rf.Privilege = tc.privilege

			err := rf.CanAccess(tc.addr, tc.write)

			if tc.wantErr && err == nil {
				t.Errorf("want error, got nil")
			}

			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRegisterFile_CanExecute(t *testing.T) {
	t.Parallel()

	rf := NewRegisterFile(nil)
	rf.Code = Segment{Base: 0x3000, Limit: 0x4000}

	if err := rf.CanExecute(0x3500); err != nil {
		t.Errorf("expected in-segment pc to be executable: %v", err)
	}

	if err := rf.CanExecute(0x4000); err == nil {
		t.Errorf("expected out-of-segment pc to fail")
	}
}

func TestRegisterFile_ResetIdempotent(t *testing.T) {
	t.Parallel()

	rf := NewRegisterFile(nil)
	rf.WriteGP(1, 0xbeef)
	rf.Reset()

	snapshot := *rf
	rf.Reset()

	if rf.PC != snapshot.PC || rf.SP != snapshot.SP || rf.Privilege != snapshot.Privilege {
		t.Errorf("reset is not idempotent")
	}
}
