package main

import "testing"

// TestKeyInputReflectsSetKeys covers invariant 1 (reading a register has
// no side effect) together with the KEYINPUT active-low convention:
// repeated reads return the same value, and that value tracks SetKeys.
func TestKeyInputReflectsSetKeys(t *testing.T) {
	m := newTestMachine(t)

	requireU32Equal(t, "KEYINPUT at power-on", m.ioRead(0, 0x04000130, 4), 0x3FF)
	requireU32Equal(t, "KEYINPUT re-read", m.ioRead(0, 0x04000130, 4), 0x3FF)

	m.SetKeys(0x0001) // A pressed
	want := uint32(^uint16(0x0001) & 0x3FF)
	requireU32Equal(t, "KEYINPUT with A held", m.ioRead(0, 0x04000130, 4), want)
	requireU32Equal(t, "KEYINPUT re-read while held", m.ioRead(0, 0x04000130, 4), want)
}

// TestIERegisterWriteReadRoundTrips covers invariant 1 for a writable
// register: writing IE and reading it back returns exactly what was
// written, independently per CPU.
func TestIERegisterWriteReadRoundTrips(t *testing.T) {
	m := newTestMachine(t)

	m.ioWrite(0, 0x04000210, 0x000F0001, 4)
	m.ioWrite(1, 0x04000210, 0x00000020, 4)

	requireU32Equal(t, "cpu9 IE", m.ioRead(0, 0x04000210, 4), 0x000F0001)
	requireU32Equal(t, "cpu7 IE", m.ioRead(1, 0x04000210, 4), 0x00000020)
}

// TestIFRegisterWriteIsWriteOneToClear exercises the IF acknowledge
// convention: writing a bit pattern clears only the matching set bits.
func TestIFRegisterWriteIsWriteOneToClear(t *testing.T) {
	m := newTestMachine(t)

	m.cpu[0].ifl = 0x0000000F
	m.ioWrite(0, 0x04000214, 0x00000005, 4)
	requireU32Equal(t, "IF after ack", m.ioRead(0, 0x04000214, 4), 0x0000000A)
}

// TestHaltCntModeSelectsHaltOrStop covers HALTCNT's two real halt
// modes: mode 2 sets only haltHalt, mode 3 sets only haltStop, and a
// reserved mode value leaves the core untouched.
func TestHaltCntModeSelectsHaltOrStop(t *testing.T) {
	m := newTestMachine(t)

	m.ioWrite(0, 0x04000301, 0x80, 1) // mode 2 (bits 6-7): HALT
	if m.cpu[0].halted&haltHalt == 0 {
		t.Fatalf("HALTCNT mode 2 did not set haltHalt")
	}
	if m.cpu[0].halted&haltStop != 0 {
		t.Fatalf("HALTCNT mode 2 unexpectedly set haltStop")
	}

	m.ioWrite(1, 0x04000301, 0xC0, 1) // mode 3 (bits 6-7): STOP
	if m.cpu[1].halted&haltStop == 0 {
		t.Fatalf("HALTCNT mode 3 did not set haltStop")
	}
}

// TestShutdownLatchesOnPowCnt1ZeroWithBothCoresStopped covers the real
// SHUTDOWN condition: it only latches once POWCNT1 is 0 AND both cores
// are STOP-halted, and it stays latched even if POWCNT1 is written
// again afterward.
func TestShutdownLatchesOnPowCnt1ZeroWithBothCoresStopped(t *testing.T) {
	m := newTestMachine(t)

	m.ioWrite(0, 0x04000304, 1, 2) // POWCNT1 != 0 yet
	m.ioWrite(0, 0x04000301, 0xC0, 1)
	if m.ShutdownRequested() {
		t.Fatalf("ShutdownRequested() true with only one core stopped and POWCNT1 != 0")
	}

	m.ioWrite(1, 0x04000301, 0xC0, 1)
	if m.ShutdownRequested() {
		t.Fatalf("ShutdownRequested() true before POWCNT1 was written to 0")
	}

	m.ioWrite(0, 0x04000304, 0, 2) // POWCNT1 = 0 with both cores already stopped
	if !m.ShutdownRequested() {
		t.Fatalf("ShutdownRequested() false with POWCNT1 == 0 and both cores STOP-halted")
	}

	m.ioWrite(0, 0x04000304, 1, 2)
	if !m.ShutdownRequested() {
		t.Fatalf("ShutdownRequested() must stay latched once true")
	}
}
