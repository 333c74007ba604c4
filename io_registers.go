// io_registers.go - I/O register address decode

/*
io_registers.go - the 0x04000000-0x040FFFFF I/O page

Grounded on the register tables scattered across
_examples/original_source/src/nds/{arm/interrupt.h,mem/io.cc,gpu2d,
gpu3d,spi,cart} ("twice"): every I/O register both CPUs can see shares
one flat switch on exact address, since the NDS I/O map has no regular
structure to exploit the way the page-table regions above it do.
Registers that are genuinely per-CPU (IME/IE/IF, POSTFLG, HALTCNT) read
cpuID out of the Machine rather than out of the address, since both
CPUs map them at the same offset; engine B's register block is engine
A's block plus a fixed 0x1000 offset, per the real memory map.
*/

package main

func (m *Machine) ioRead(cpuID int, addr uint32, size int) uint32 {
	if eng, base, ok := m.engineFor(addr); ok {
		if v, ok := eng.readRegister(addr - base); ok {
			return v
		}
	}
	switch addr {
	case 0x04000004:
		return uint32(m.dispstat[cpuID]) | uint32(m.vcount)<<16
	case 0x04000006:
		return uint32(m.vcount)
	case 0x04000060:
		return m.gxfifo.readGXSTAT()
	case 0x040000B0, 0x040000B4, 0x040000B8:
		return m.dma[cpuID].readChannel(0, addr-0x040000B0)
	case 0x040000BC, 0x040000C0, 0x040000C4:
		return m.dma[cpuID].readChannel(1, addr-0x040000BC)
	case 0x040000C8, 0x040000CC, 0x040000D0:
		return m.dma[cpuID].readChannel(2, addr-0x040000C8)
	case 0x040000D4, 0x040000D8, 0x040000DC:
		return m.dma[cpuID].readChannel(3, addr-0x040000D4)
	case 0x04000100, 0x04000104, 0x04000108, 0x0400010C:
		idx := int((addr - 0x04000100) / 4)
		return uint32(m.timers[cpuID].readCounter(idx))
	case 0x04000102, 0x04000106, 0x0400010A, 0x0400010E:
		idx := int((addr - 0x04000102) / 4)
		return uint32(m.timers[cpuID].channels[idx].ctrl)
	case 0x04000130:
		return uint32(m.keyInput)
	case 0x04000138:
		return uint32(m.rtc.readControl())
	case 0x04000180:
		return uint32(m.ipc.readSync(cpuID))
	case 0x04000184:
		return uint32(m.ipc.readCnt(cpuID))
	case 0x040001A0:
		return uint32(m.cart.backup.readAUXSPICNT())
	case 0x040001A4:
		return m.cart.romctrl
	case 0x040001C0:
		return uint32(m.spiCnt)
	case 0x040001C2:
		return uint32(m.spiDataLast)
	case 0x04000204:
		return uint32(m.exMemCnt)
	case 0x04000208:
		return m.cpu[cpuID].ime
	case 0x04000210:
		return m.cpu[cpuID].ie
	case 0x04000214:
		return m.cpu[cpuID].ifl
	case 0x04000247:
		return uint32(m.wramCnt)
	case 0x04000280:
		return uint32(m.math.divCnt)
	case 0x04000290, 0x04000294:
		return uint32(m.math.divNumer >> ((addr - 0x04000290) * 8))
	case 0x04000298, 0x0400029C:
		return uint32(m.math.divDenom >> ((addr - 0x04000298) * 8))
	case 0x040002A0, 0x040002A4:
		return uint32(m.math.divResult >> ((addr - 0x040002A0) * 8))
	case 0x040002A8, 0x040002AC:
		return uint32(m.math.divRem >> ((addr - 0x040002A8) * 8))
	case 0x040002B0:
		return uint32(m.math.sqrtCnt)
	case 0x040002B4:
		return m.math.sqrtResult
	case 0x040002B8, 0x040002BC:
		return uint32(m.math.sqrtParam >> ((addr - 0x040002B8) * 8))
	case 0x04000300:
		return uint32(m.cpu[cpuID].postflg)
	case 0x04000304:
		return uint32(m.powCnt1)
	case 0x04100000:
		return m.ipc.recv(cpuID)
	case 0x04100010:
		return m.cart.readData32()
	default:
		return 0
	}
}

func (m *Machine) ioWrite(cpuID int, addr uint32, val uint32, size int) {
	if eng, base, ok := m.engineFor(addr); ok {
		if eng.writeRegister(addr-base, val) {
			return
		}
	}
	switch addr {
	case 0x04000004:
		m.dispstat[cpuID] = (m.dispstat[cpuID] & 0x7) | (uint16(val) &^ 0x7)
	case 0x040000B0, 0x040000B4, 0x040000B8:
		m.dma[cpuID].writeChannel(0, addr-0x040000B0, val, size)
	case 0x040000BC, 0x040000C0, 0x040000C4:
		m.dma[cpuID].writeChannel(1, addr-0x040000BC, val, size)
	case 0x040000C8, 0x040000CC, 0x040000D0:
		m.dma[cpuID].writeChannel(2, addr-0x040000C8, val, size)
	case 0x040000D4, 0x040000D8, 0x040000DC:
		m.dma[cpuID].writeChannel(3, addr-0x040000D4, val, size)
	case 0x04000100, 0x04000104, 0x04000108, 0x0400010C:
		idx := int((addr - 0x04000100) / 4)
		m.timers[cpuID].writeReload(idx, uint16(val))
	case 0x04000102, 0x04000106, 0x0400010A, 0x0400010E:
		idx := int((addr - 0x04000102) / 4)
		m.timers[cpuID].writeCtrl(idx, uint16(val))
	case 0x04000138:
		m.rtc.writeControl(uint8(val))
	case 0x04000180:
		m.ipc.writeSync(cpuID, uint16(val))
	case 0x04000184:
		m.ipc.writeCnt(cpuID, uint16(val))
	case 0x04000188:
		m.ipc.send(cpuID, val)
	case 0x040001A0:
		m.cart.backup.writeAUXSPICNT(uint16(val))
	case 0x040001A2:
		m.writeAUXSPIData(uint8(val))
	case 0x040001A4:
		m.cart.writeROMCTRL(val)
	case 0x040001A8, 0x040001A9, 0x040001AA, 0x040001AB, 0x040001AC, 0x040001AD, 0x040001AE, 0x040001AF:
		m.cart.writeCommand(int(addr-0x040001A8), uint8(val))
	case 0x040001C0:
		m.spiCnt = uint16(val)
	case 0x040001C2:
		m.writeFirmwareSPIData(uint8(val))
	case 0x04000204:
		m.exMemCnt = uint16(val)
	case 0x04000208:
		m.cpu[cpuID].ime = val & 1
	case 0x04000210:
		m.cpu[cpuID].ie = val
	case 0x04000214:
		m.cpu[cpuID].ifl &^= val
	case 0x04000240, 0x04000241, 0x04000242, 0x04000243, 0x04000244, 0x04000245, 0x04000246:
		m.vram.writeVRAMCNT(int(addr-0x04000240), uint8(val))
	case 0x04000247:
		m.wramCnt = uint8(val)
	case 0x04000248:
		m.vram.writeVRAMCNT(7, uint8(val))
	case 0x04000249:
		m.vram.writeVRAMCNT(8, uint8(val))
	case 0x04000280:
		m.math.writeDivCnt(uint16(val))
	case 0x04000290:
		m.math.writeDivNumerLo(val)
	case 0x04000294:
		m.math.writeDivNumerHi(val)
	case 0x04000298:
		m.math.writeDivDenomLo(val)
	case 0x0400029C:
		m.math.writeDivDenomHi(val)
	case 0x040002B0:
		m.math.writeSqrtCnt(uint16(val))
	case 0x040002B8:
		m.math.writeSqrtParamLo(val)
	case 0x040002BC:
		m.math.writeSqrtParamHi(val)
	case 0x04000300:
		m.cpu[cpuID].postflg = uint8(val)
	case 0x04000301:
		m.writeHaltCnt(cpuID, uint8(val))
	case 0x04000304:
		m.powCnt1 = uint16(val)
		m.updateShutdownLatch()
	case 0x04100000:
		m.ipc.send(cpuID, val)
	default:
		m.writeGXCommand(addr, val)
	}
}

// writeHaltCnt decodes HALTCNT's mode field (bits 6-7): mode 2 halts
// this core until its next unmasked IRQ, mode 3 stops it (no automatic
// IRQ wake, per real hardware) until an external reset. Other encodings
// are left unhandled, matching the reference's own ignore-and-log
// behavior for reserved/GBA-mode values.
func (m *Machine) writeHaltCnt(cpuID int, val uint8) {
	switch (val >> 6) & 0x3 {
	case 2:
		m.cpu[cpuID].halted |= haltHalt
	case 3:
		m.cpu[cpuID].halted |= haltStop
	}
	m.updateShutdownLatch()
}

// writeAUXSPIData/writeFirmwareSPIData perform the AUXSPI/firmware-SPI
// byte exchange and latch the returned byte for the matching data
// register's next read, mirroring real full-duplex SPI semantics.
func (m *Machine) writeAUXSPIData(out uint8) {
	m.cart.backup.transferByte(out)
}

func (m *Machine) writeFirmwareSPIData(out uint8) {
	m.spiDataLast = m.firmware.transferByte(out)
}

// engineFor resolves which Video2DEngine (and its register block's base
// address) a given address belongs to: engine B's block starts exactly
// 0x1000 above engine A's, matching the DISPCNT_B/DISPCNT_A relationship.
func (m *Machine) engineFor(addr uint32) (*Video2DEngine, uint32, bool) {
	switch {
	case addr >= 0x04000000 && addr < 0x04000070:
		return m.engineA, 0x04000000, true
	case addr >= 0x04001000 && addr < 0x04001070:
		return m.engineB, 0x04001000, true
	default:
		return nil, 0, false
	}
}

// gxCommandForOffset maps the named GXFIFO command registers
// (0x04000440-0x040005C8) to the command byte the geometry engine
// expects, per the fixed layout of the NDS 3D command set.
var gxCommandForOffset = map[uint32]uint8{
	0x440: 0x10, 0x444: 0x11, 0x448: 0x12, 0x44C: 0x13,
	0x450: 0x14, 0x454: 0x15, 0x458: 0x16, 0x45C: 0x17,
	0x460: 0x18, 0x464: 0x19, 0x468: 0x1A, 0x46C: 0x1B,
	0x470: 0x1C, 0x480: 0x20, 0x484: 0x21, 0x488: 0x22,
	0x48C: 0x23, 0x490: 0x24, 0x494: 0x25, 0x498: 0x26,
	0x49C: 0x27, 0x4A0: 0x28, 0x4A4: 0x29, 0x4A8: 0x2A,
	0x4AC: 0x2B, 0x4C0: 0x30, 0x4C4: 0x31, 0x4C8: 0x32,
	0x4CC: 0x33, 0x4D0: 0x34, 0x500: 0x40, 0x504: 0x41,
	0x540: 0x50, 0x580: 0x70, 0x5C0: 0x70, 0x5C4: 0x71,
	0x5C8: 0x72,
}

func (m *Machine) writeGXCommand(addr uint32, val uint32) {
	if addr == 0x04000400 {
		m.gxfifo.writePackedCommand(val)
		return
	}
	if addr < 0x04000440 || addr >= 0x040005CC {
		return
	}
	if cmd, ok := gxCommandForOffset[addr-0x04000000]; ok {
		m.gxfifo.writeDirectCommand(cmd)
		m.gxfifo.writeParam(val)
	}
}
