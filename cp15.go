// cp15.go - nds9 system control coprocessor (ITCM/DTCM, cache control)

/*
cp15.go - coprocessor 15

Grounded on _examples/original_source/src/nds/arm/arm9.{h,cc} and
src/nds/arm/interpreter/arm/cop.h ("twice"): the nds9 alone carries
cp15, which exposes control register 1 (protection unit / cache / TCM
enable bits), and registers 6/9 which together define the base address
and size of the ITCM and DTCM windows. A write to any of these rebuilds
the affected page-table window immediately: a TCM control write takes
effect before the next instruction fetch/load/store.

Only the MCR/MRC register subset actually exercised by retail software
is implemented; cache and write-buffer control bits are tracked for
read-back fidelity but have no effect on a non-caching bus model.
*/

package main

const (
	itcmSize = 32 * 1024
	dtcmSize = 16 * 1024
)

type CP15 struct {
	cpu *armCPU
	bus *CPUBus
	pt9 *PageTables

	control uint32 // register 1

	itcmBase uint32
	itcmVirtSize uint32
	itcmEnabled  bool
	itcmLoadMode bool // bit 19 of control: ITCM load-mode (writes only, no fetch)

	dtcmBase    uint32
	dtcmVirtSize uint32
	dtcmEnabled bool

	itcm []byte
	dtcm []byte
}

func newCP15(cpu *armCPU, pt9 *PageTables) *CP15 {
	cp := &CP15{
		cpu: cpu,
		pt9: pt9,
		itcm: make([]byte, itcmSize),
		dtcm: make([]byte, dtcmSize),
	}
	cp.control = 0x78 // power-on reset value used by retail BIOS expectations
	cp.dtcmBase = 0xFFFFFFFF // unmapped until BIOS configures it
	cp.itcmVirtSize = 0x8000000
	return cp
}

// handle dispatches an MCR/MRC/CDP instruction targeting cp15. Only MCR
// (write) and MRC (read) to register 1, 6, 7, 9 are meaningful; anything
// else is accepted and ignored, matching how real guest code occasionally
// probes unimplemented cache-maintenance opcodes without ill effect.
func (cp *CP15) handle(c *armCPU, instr uint32) {
	isMRC := instr&(1<<20) != 0
	crn := (instr >> 16) & 0xF
	rd := (instr >> 12) & 0xF
	crm := instr & 0xF
	opcode2 := (instr >> 5) & 0x7

	if isMRC {
		c.r[rd] = cp.readReg(crn, crm, opcode2)
		return
	}
	cp.writeReg(crn, crm, opcode2, c.r[rd])
}

func (cp *CP15) readReg(crn, crm, opcode2 uint32) uint32 {
	switch crn {
	case 1:
		return cp.control
	case 6:
		switch crm {
		case 0:
			return cp.dtcmBase | regionSizeField(cp.dtcmVirtSize)
		}
	case 9:
		switch opcode2 {
		case 0:
			return 0 // data cachability / write-buffer, unused
		case 1:
			return cp.itcmBase | regionSizeField(cp.itcmVirtSize)
		}
	}
	return 0
}

func (cp *CP15) writeReg(crn, crm, opcode2, value uint32) {
	switch crn {
	case 1:
		cp.control = value
		cp.itcmEnabled = bitSet(value, 18)
		cp.itcmLoadMode = bitSet(value, 19)
		cp.dtcmEnabled = bitSet(value, 16)
		cp.rebuild()
	case 2:
		// cachability bits, no functional effect on a non-caching model.
	case 6:
		if crm == 0 {
			cp.dtcmBase = value &^ 0xFFF
			cp.dtcmVirtSize = regionSize(value)
			cp.rebuild()
		}
	case 9:
		if opcode2 == 1 {
			cp.itcmVirtSize = regionSize(value)
			cp.rebuild()
		}
	default:
		// cache/TLB maintenance operations (registers 7, 8): no-ops.
	}
}

func regionSize(ctrl uint32) uint32 {
	sizeField := (ctrl >> 1) & 0x1F
	return uint32(1) << (sizeField + 1)
}

func regionSizeField(size uint32) uint32 {
	shift := uint32(0)
	for size > 2 {
		size >>= 1
		shift++
	}
	return (shift - 1) << 1
}

// rebuild re-tiles the nds9 fetch/load/store page tables so the ITCM
// and DTCM windows reflect the current control-register state. Regions
// outside the configured window fall through to whatever the normal
// bus map (RAM/BIOS/etc) installed.
func (cp *CP15) rebuild() {
	// Clear any previous ITCM/DTCM window before re-tiling; the normal
	// bus regions beneath them are re-applied by the caller's full remap
	// in machine.go's mapBusRegions, so here we only add the TCM windows
	// on top.
	if cp.itcmEnabled {
		if !cp.itcmLoadMode {
			cp.pt9.mapFetch(0, cp.itcmVirtSize, cp.itcm)
		}
		cp.pt9.mapLoad(0, cp.itcmVirtSize, cp.itcm)
		cp.pt9.mapStore(0, cp.itcmVirtSize, cp.itcm)
	}
	if cp.dtcmEnabled && cp.dtcmBase != 0xFFFFFFFF {
		cp.pt9.mapLoad(cp.dtcmBase, cp.dtcmVirtSize, cp.dtcm)
		cp.pt9.mapStore(cp.dtcmBase, cp.dtcmVirtSize, cp.dtcm)
	}
}
