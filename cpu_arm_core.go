// cpu_arm_core.go - Shared ARM CPU state (registers, modes, IRQ entry)

/*
cpu_arm_core.go - ARM7TDMI/ARM946E-S shared state

Grounded on _examples/original_source/src/nds/arm/arm.h, arm7.h, and
arm9.h ("twice") for the register-bank layout, and on the teacher's
cpu_z80.go dispatch-table idiom (kept as the structural model for
cpu_arm_decode.go/cpu_arm_thumb.go) for how a CPU "Step" loop should be
shaped in this codebase.

Both cores share this struct; cpuID 0 is the ARMv5TE nds9 (with cp15
and TCMs, see cp15.go), cpuID 1 is the ARMv4T nds7. Banked registers are
stored as small per-mode arrays indexed by a "bank index" rather than by
raw CPSR mode value, since the five exception modes plus the shared
usr/sys bank pack into six slots with no gaps.
*/

package main

// CPSR mode field values (low 5 bits), as defined by the architecture.
const (
	modeUSR = 0x10
	modeFIQ = 0x11
	modeIRQ = 0x12
	modeSVC = 0x13
	modeABT = 0x17
	modeUND = 0x1B
	modeSYS = 0x1F
)

// CPSR flag bits.
const (
	cpsrN = 31
	cpsrZ = 30
	cpsrC = 29
	cpsrV = 28
	cpsrQ = 27
	cpsrI = 7
	cpsrF = 6
	cpsrT = 5
)

// Halt bitmask bits (§4.2.4): multiple independent reasons a core can be
// stopped, cleared independently by IRQ/halt-control/GXFIFO-drain events.
const (
	haltNone    = 0
	haltHalt    = bit(0)
	haltStop    = bit(1)
	haltGXFIFO  = bit(2)
)

// modeBank maps a CPSR mode field to an index into the 6-entry banked
// register arrays: usr/sys share bank 0 (they are architecturally the
// same register file), each exception mode gets its own bank.
func modeBank(mode uint32) int {
	switch mode {
	case modeFIQ:
		return 1
	case modeIRQ:
		return 2
	case modeSVC:
		return 3
	case modeABT:
		return 4
	case modeUND:
		return 5
	default: // USR, SYS
		return 0
	}
}

// armCPU is the shared register file and control state for one core.
// id 0 = nds9 (ARMv5TE), id 1 = nds7 (ARMv4T).
type armCPU struct {
	id int

	r [16]uint32 // r0-r15 as currently banked in; r15 tracks the second pipeline slot's fetch address

	bankedR13 [6]uint32 // banked by modeBank(); index 0 is the usr/sys r13
	bankedR14 [6]uint32
	fiqR8_12  [5]uint32 // r8-r12 while in FIQ mode
	usrR8_12  [5]uint32 // r8-r12 in every other mode

	cpsr uint32
	spsr [6]uint32 // banked by modeBank(); bank 0 (usr/sys) is never read, mode has no SPSR

	pipeline     [2]uint32 // decoded-ahead fetch stage; [0] is the instruction about to execute
	pipelineFull bool

	halted uint32 // bitmask of haltHalt/haltStop/haltGXFIFO

	ime uint32
	ie  uint32
	ifl uint32

	exceptionBase uint32 // 0x00000000 or 0xFFFF0000, nds9 cp15-controlled; fixed 0 on nds7

	clock       timestamp // this CPU's own cycle counter, in its native units (nds9: doubled)
	targetClock timestamp // the scheduler's requested stopping point for this CPU's run loop

	bus *CPUBus

	// cp15 is non-nil only on the nds9 core; coprocessor dispatch checks
	// this before routing MCR/MRC/CDP instructions (cp15.go).
	cp15 *CP15

	armTable   [4096]armHandler
	thumbTable [1024]thumbHandler

	// postflg mirrors the POSTFLG byte software sets after its first boot
	// pass, read back by boot-time self-tests; not otherwise consulted by
	// this core.
	postflg uint8
}

type armHandler func(c *armCPU, instr uint32)
type thumbHandler func(c *armCPU, instr uint16)

func newArmCPU(id int, bus *CPUBus) *armCPU {
	c := &armCPU{id: id, bus: bus}
	c.Reset()
	buildArmTable(&c.armTable)
	buildThumbTable(&c.thumbTable)
	return c
}

// Reset restores power-on register state: all banks zeroed, supervisor
// mode, IRQ/FIQ masked, pipeline empty. The real boot path (machine.go)
// overwrites r13_svc/r13_irq/pc/cpsr immediately after this with the
// values appropriate for direct-boot or BIOS-boot.
func (c *armCPU) Reset() {
	for i := range c.r {
		c.r[i] = 0
	}
	for i := range c.bankedR13 {
		c.bankedR13[i] = 0
	}
	for i := range c.bankedR14 {
		c.bankedR14[i] = 0
	}
	for i := range c.fiqR8_12 {
		c.fiqR8_12[i] = 0
	}
	for i := range c.usrR8_12 {
		c.usrR8_12[i] = 0
	}
	c.cpsr = modeSVC | bit(cpsrI) | bit(cpsrF)
	for i := range c.spsr {
		c.spsr[i] = 0
	}
	c.pipeline = [2]uint32{}
	c.pipelineFull = false
	c.halted = haltNone
	c.ime, c.ie, c.ifl = 0, 0, 0
	c.exceptionBase = 0
	c.clock = 0
	c.targetClock = 0
}

func (c *armCPU) mode() uint32 { return c.cpsr & 0x1F }
func (c *armCPU) thumb() bool  { return bitSet(c.cpsr, cpsrT) }
func (c *armCPU) flagN() bool  { return bitSet(c.cpsr, cpsrN) }
func (c *armCPU) flagZ() bool  { return bitSet(c.cpsr, cpsrZ) }
func (c *armCPU) flagC() bool  { return bitSet(c.cpsr, cpsrC) }
func (c *armCPU) flagV() bool  { return bitSet(c.cpsr, cpsrV) }

func (c *armCPU) setFlag(bitNum uint, v bool) {
	if v {
		c.cpsr |= bit(bitNum)
	} else {
		c.cpsr &^= bit(bitNum)
	}
}

// switchMode reassigns r8-r12 (FIQ only), r13, r14, and the active SPSR
// bank when the CPSR mode field changes, per the ARM register-bank
// architecture. The caller is responsible for writing the new mode bits
// into cpsr before calling this (oldMode is passed explicitly since the
// banks must be saved under the OLD mode and restored under the new one).
func (c *armCPU) switchMode(oldMode, newMode uint32) {
	if oldMode == newMode {
		return
	}
	oldBank := modeBank(oldMode)
	newBank := modeBank(newMode)

	if oldMode == modeFIQ {
		copy(c.fiqR8_12[:], c.r[8:13])
	} else {
		copy(c.usrR8_12[:], c.r[8:13])
	}

	c.bankedR13[oldBank] = c.r[13]
	c.bankedR14[oldBank] = c.r[14]

	if newMode == modeFIQ {
		copy(c.r[8:13], c.fiqR8_12[:])
	} else {
		copy(c.r[8:13], c.usrR8_12[:])
	}
	c.r[13] = c.bankedR13[newBank]
	c.r[14] = c.bankedR14[newBank]
	_ = c.spsr[newBank]
}

// spsrBank returns a pointer to the SPSR register for the current mode,
// or nil in usr/sys mode where no SPSR exists.
func (c *armCPU) currentSPSR() *uint32 {
	bank := modeBank(c.mode())
	if bank == 0 {
		return nil
	}
	return &c.spsr[bank]
}

// lrAdjust values for the non-IRQ exceptions, expressed as the uint32
// two's-complement wraparound of the signed byte delta (enterException
// adds lrAdjust to r15, which is unsigned): SWI/UND return to the
// instruction following the one that trapped, which is 4 bytes (ARM) or
// 2 bytes (Thumb) behind where r15's pipeline offset already points.
const (
	lrBackWordARM   = 0xFFFFFFFC // -4
	lrBackWordThumb = 0xFFFFFFFE // -2
)

// enterException switches to newMode, saves the return address and old
// CPSR into the new mode's lr/spsr, masks IRQ (and FIQ for reset/FIQ
// entry), and sets PC to exceptionBase+vectorOffset. Mirrors the
// reference interpreter's exception-entry sequence used for IRQ, SWI,
// undefined instruction, and abort.
func (c *armCPU) enterException(newMode uint32, vectorOffset uint32, lrAdjust uint32, maskFIQ bool) {
	oldMode := c.mode()
	oldCPSR := c.cpsr
	returnPC := c.r[15] + lrAdjust

	c.cpsr = (c.cpsr &^ 0x1F) | newMode
	c.switchMode(oldMode, newMode)
	*c.currentSPSR() = oldCPSR

	c.r[14] = returnPC
	c.setFlag(cpsrT, false)
	c.setFlag(cpsrI, true)
	if maskFIQ {
		c.setFlag(cpsrF, true)
	}
	c.r[15] = c.exceptionBase + vectorOffset
	c.pipelineFull = false
}

// checkIRQ enters the IRQ exception if IME/IE/IF indicate a pending,
// unmasked interrupt and the core's CPSR does not itself mask IRQ.
// Returns true if an exception was entered (the caller's Step loop must
// not execute the instruction it had queued).
func (c *armCPU) checkIRQ() bool {
	if c.halted&haltHalt != 0 {
		if c.ime != 0 && c.ie&c.ifl != 0 {
			c.halted &^= haltHalt
		} else {
			return false
		}
	}
	if c.ime == 0 || c.ie&c.ifl == 0 {
		return false
	}
	if bitSet(c.cpsr, cpsrI) {
		return false
	}
	// LR_irq must point at the instruction that was about to execute when
	// the IRQ was taken: r15 already reads as that instruction's address
	// plus one pipeline stage (8 in ARM state, 4 in Thumb state), so ARM
	// needs no further adjustment while Thumb needs +2 to land on the
	// halfword boundary of the preempted instruction.
	const vectorIRQ = 0x18
	lrAdjust := uint32(0)
	if c.thumb() {
		lrAdjust = 2
	}
	c.enterException(modeIRQ, vectorIRQ, lrAdjust, false)
	return true
}

// requestIRQ ORs a bit into IF (the CPU-local interrupt flag latch); the
// owning component (timers, DMA, VBlank, IPC, ...) calls this instead of
// writing cpu.ifl directly so the halt-wake check stays co-located.
func (c *armCPU) requestIRQ(bitNum uint) {
	c.ifl |= bit(bitNum)
}
