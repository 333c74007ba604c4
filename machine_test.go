package main

import "testing"

// TestDirectBootPlacesBothCores covers scenario A: a direct-booted ROM
// leaves both cores at their header-specified entry points with the
// first loaded word of each segment visible in RAM.
func TestDirectBootPlacesBothCores(t *testing.T) {
	m := newTestMachine(t)

	requireU32Equal(t, "cpu9 r15", m.cpu[0].r[15], testArm9Entry)
	requireU32Equal(t, "cpu7 r15", m.cpu[1].r[15], testArm7RamAddr)
	requireU8Equal(t, "wramCnt", m.wramCnt, 0x03)
	requireU8Equal(t, "cpu9 postflg", m.cpu[0].postflg, 0x01)
	requireU8Equal(t, "cpu7 postflg", m.cpu[1].postflg, 0x01)
	requireU8Equal(t, "mainRAM[0]", m.mainRAM[0], testArm9Marker)

	arm7Off := testArm7RamAddr & (mainRAMSize - 1)
	requireU8Equal(t, "mainRAM at arm7 load addr", m.mainRAM[arm7Off], testArm7Marker)
}

// TestTimerCascadeIncrementsOnOverflow covers scenario C: a cascaded
// timer channel advances by exactly one count per source-channel
// overflow, driven purely by the scheduler rather than per-cycle
// stepping.
func TestTimerCascadeIncrementsOnOverflow(t *testing.T) {
	m := newTestMachine(t)
	tc := m.timers[1]

	tc.writeReload(1, 0)
	tc.writeCtrl(1, 0x0084) // cascade (bit2) + enable (bit7)

	tc.writeReload(0, 0xFFFF)
	tc.writeCtrl(0, 0x0080) // prescaler /1, enable

	m.cpu[1].clock++
	m.runCPUEvents(1)

	requireU16Equal(t, "timer0 counter after overflow", tc.readCounter(0), 0)
	got := uint16(tc.channels[1].counter >> 10)
	requireU16Equal(t, "cascaded timer1 counter", got, 1)
}

// TestIPCFIFOLoopback covers scenario D: four words sent by one core's
// FIFO arrive at the other core in order, and the FIFO reports empty
// once fully drained.
func TestIPCFIFOLoopback(t *testing.T) {
	m := newTestMachine(t)

	m.ipc.writeCnt(0, 1<<15) // enable cpu9's send FIFO
	values := [4]uint32{0x11111111, 0x22222222, 0x33333333, 0x44444444}
	for _, v := range values {
		m.ipc.send(0, v)
	}

	for i, want := range values {
		got := m.ipc.recv(1)
		requireU32Equal(t, "ipc word", got, want)
		_ = i
	}

	cnt := m.ipc.readCnt(1)
	if cnt&(1<<8) == 0 {
		t.Fatalf("readCnt(1) = 0x%04X, want bit8 (other FIFO empty) set", cnt)
	}
}

// TestDMAImmediateTransferByteCount covers invariant 5: an immediate-
// mode DMA moves exactly word_count*unit_size bytes, and source/
// destination addresses progress by unit_size per word.
func TestDMAImmediateTransferByteCount(t *testing.T) {
	m := newTestMachine(t)

	const sad = 0x02100000
	const dad = 0x02200000
	const wordCount = 4

	pattern := [wordCount]uint32{0xCAFEBABE, 0xDEADBEEF, 0x01234567, 0x89ABCDEF}
	for i, v := range pattern {
		m.busWrite32(1, sad+uint32(i)*4, v)
	}

	d := m.dma[1]
	d.writeSAD(0, sad)
	d.writeDAD(0, dad)
	d.writeCNTL(0, wordCount)
	d.writeCNTH(0, 0x8400) // word32, increment/increment, immediate mode, enable

	for i, want := range pattern {
		got := m.busRead32(1, dad+uint32(i)*4)
		requireU32Equal(t, "transferred word", got, want)
	}

	if d.channels[0].count != wordCount {
		t.Fatalf("channel count = %d, want %d", d.channels[0].count, wordCount)
	}
	if d.channels[0].enabled {
		t.Fatalf("channel still enabled after a non-repeating immediate transfer completed")
	}
}

// TestBackupEEPROMWriteTracksDirtyInterval covers scenario E (backup
// write-through) and invariant 9 (the dirty interval is consumed
// exactly once per TakeDirtyInterval call).
func TestBackupEEPROMWriteTracksDirtyInterval(t *testing.T) {
	m := newTestMachine(t)
	b := m.cart.backup

	b.beginTransfer()
	b.transferByte(cmdWREN)
	b.transferByte(0x00) // WREN's action latches on the clock following the opcode byte
	b.endTransfer()
	if b.statReg&0x02 == 0 {
		t.Fatalf("status register WEL bit not set after WREN")
	}

	b.beginTransfer()
	b.transferByte(cmdWriteLow)
	b.transferByte(0x12)
	b.transferByte(0x34)
	b.transferByte('X')
	b.transferByte('Y')
	b.endTransfer()

	requireU8Equal(t, "backup[0x1234]", b.data[0x1234], 'X')
	requireU8Equal(t, "backup[0x1235]", b.data[0x1235], 'Y')

	start, end, ok := b.TakeDirtyInterval()
	if !ok || start != 0x1234 || end != 0x1236 {
		t.Fatalf("TakeDirtyInterval() = (%d, %d, %v), want (0x1234, 0x1236, true)", start, end, ok)
	}

	if _, _, ok := b.TakeDirtyInterval(); ok {
		t.Fatalf("TakeDirtyInterval() returned ok=true on an already-drained interval")
	}
}

func requireU8Equal(t testingT, name string, got, want uint8) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = 0x%02X, want 0x%02X", name, got, want)
	}
}

func requireU16Equal(t testingT, name string, got, want uint16) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = 0x%04X, want 0x%04X", name, got, want)
	}
}

func requireU32Equal(t testingT, name string, got, want uint32) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = 0x%08X, want 0x%08X", name, got, want)
	}
}
