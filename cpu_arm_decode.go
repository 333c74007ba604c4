// cpu_arm_decode.go - ARM-mode instruction classification and execution

/*
cpu_arm_decode.go - 4096-entry ARM dispatch table

Grounded on the teacher's cpu_z80.go dispatch-table idiom (a full-size
array of function pointers populated once at construction) generalized
from Z80's flat 256-opcode space to ARM's 4096-way classification key
(bits 27:20 and 7:4 of the instruction, the two fields that distinguish
every ARM instruction class per the architecture reference used by
_examples/original_source/src/nds/arm/interpreter/arm/*.h).

Rather than writing 4096 distinct bodies, the table is populated by
classifying each of the 4096 keys into one of a small number of generic,
field-parameterized handlers — data processing, multiply, single/halfword
transfer, block transfer, branch, branch-exchange, PSR transfer, software
interrupt, coprocessor (nds9 only), and undefined — matching how the
reference interpreter itself groups opcodes before switching on the
decoded fields.
*/

package main

func armKey(instr uint32) int {
	return int((instr>>16)&0xFF0 | (instr>>4)&0xF)
}

func buildArmTable(table *[4096]armHandler) {
	for key := 0; key < 4096; key++ {
		instrTemplate := uint32(key&0xFF0) << 16
		instrTemplate |= uint32(key&0xF) << 4
		table[key] = classifyArm(instrTemplate, uint32(key))
	}
}

// classifyArm inspects the bit pattern a given dispatch key represents
// and returns the generic handler responsible for that class. The
// handler re-decodes the full instruction word at execution time; only
// the classification itself is precomputed.
func classifyArm(_ uint32, key uint32) armHandler {
	bits27_20 := (key >> 4) & 0xFF
	bits7_4 := key & 0xF

	switch {
	case bits27_20&0xFC == 0x00 && bits7_4 == 0x9:
		return execMultiply
	case bits27_20&0xF8 == 0x08 && bits7_4 == 0x9:
		return execMultiplyLong
	case bits27_20&0xFB == 0x10 && bits7_4 == 0x9:
		return execSwap
	case bits7_4 == 0x9 && bits27_20&0xE0 == 0:
		return execMultiply
	case bits27_20&0xE0 == 0 && (bits7_4 == 0xB || bits7_4 == 0xD || bits7_4 == 0xF):
		return execHalfwordTransfer
	case bits27_20&0xE0 == 0:
		return execDataProcessing
	case bits27_20&0xD9 == 0x10 && bits7_4 == 0x0:
		return execPSRTransfer
	case bits27_20 == 0x12 && bits7_4 == 0x1:
		return execBranchExchange
	case bits27_20&0xC0 == 0x40:
		return execSingleTransfer
	case bits27_20&0xE0 == 0x60 && bits7_4&0x1 == 1:
		return execUndefined
	case bits27_20&0xE0 == 0x80:
		return execBlockTransfer
	case bits27_20&0xE0 == 0xA0:
		return execBranch
	case bits27_20&0xE0 == 0xC0:
		return execCoprocessorTransfer
	case bits27_20&0xF0 == 0xE0 && bits7_4&0x1 == 0:
		return execCoprocessorDataOp
	case bits27_20&0xF0 == 0xE0 && bits7_4&0x1 == 1:
		return execCoprocessorRegTransfer
	case bits27_20&0xF0 == 0xF0:
		return execSoftwareInterrupt
	default:
		return execUndefined
	}
}

func condPasses(c *armCPU, cond uint32) bool {
	switch cond {
	case 0x0:
		return c.flagZ()
	case 0x1:
		return !c.flagZ()
	case 0x2:
		return c.flagC()
	case 0x3:
		return !c.flagC()
	case 0x4:
		return c.flagN()
	case 0x5:
		return !c.flagN()
	case 0x6:
		return c.flagV()
	case 0x7:
		return !c.flagV()
	case 0x8:
		return c.flagC() && !c.flagZ()
	case 0x9:
		return !c.flagC() || c.flagZ()
	case 0xA:
		return c.flagN() == c.flagV()
	case 0xB:
		return c.flagN() != c.flagV()
	case 0xC:
		return !c.flagZ() && c.flagN() == c.flagV()
	case 0xD:
		return c.flagZ() || c.flagN() != c.flagV()
	case 0xE:
		return true
	default: // 0xF: reserved on ARMv4, used for BLX-style extensions on v5
		return false
	}
}

func shiftOperand(c *armCPU, instr uint32, carryOut *bool) uint32 {
	if instr&(1<<25) != 0 {
		imm := instr & 0xFF
		rot := (instr >> 8) & 0xF * 2
		val := imm>>rot | imm<<(32-rot)&0xFFFFFFFF
		if rot == 0 {
			*carryOut = c.flagC()
		} else {
			*carryOut = val&0x80000000 != 0
		}
		return val
	}
	rm := c.r[instr&0xF]
	shiftType := (instr >> 5) & 0x3
	var amount uint32
	if instr&(1<<4) != 0 {
		amount = c.r[(instr>>8)&0xF] & 0xFF
	} else {
		amount = (instr >> 7) & 0x1F
	}
	return applyShift(c, rm, shiftType, amount, instr&(1<<4) != 0, carryOut)
}

func applyShift(c *armCPU, value uint32, shiftType uint32, amount uint32, fromReg bool, carryOut *bool) uint32 {
	*carryOut = c.flagC()
	if amount == 0 && !fromReg {
		switch shiftType {
		case 0: // LSL #0
			return value
		case 1: // LSR #32
			*carryOut = value&0x80000000 != 0
			return 0
		case 2: // ASR #32
			if value&0x80000000 != 0 {
				*carryOut = true
				return 0xFFFFFFFF
			}
			*carryOut = false
			return 0
		case 3: // RRX
			c2 := *carryOut
			*carryOut = value&1 != 0
			res := value >> 1
			if c2 {
				res |= 0x80000000
			}
			return res
		}
	}
	if fromReg && amount == 0 {
		return value
	}
	switch shiftType {
	case 0:
		if amount >= 32 {
			*carryOut = amount == 32 && value&1 != 0
			return 0
		}
		*carryOut = value&(1<<(32-amount)) != 0
		return value << amount
	case 1:
		if amount >= 32 {
			*carryOut = amount == 32 && value&0x80000000 != 0
			return 0
		}
		*carryOut = value&(1<<(amount-1)) != 0
		return value >> amount
	case 2:
		if amount >= 32 {
			if value&0x80000000 != 0 {
				*carryOut = true
				return 0xFFFFFFFF
			}
			*carryOut = false
			return 0
		}
		*carryOut = value&(1<<(amount-1)) != 0
		return uint32(int32(value) >> amount)
	case 3:
		amount %= 32
		if amount == 0 {
			*carryOut = value&0x80000000 != 0
			return value
		}
		*carryOut = value&(1<<(amount-1)) != 0
		return value>>amount | value<<(32-amount)
	}
	return value
}

func execDataProcessing(c *armCPU, instr uint32) {
	cond := instr >> 28
	if !condPasses(c, cond) {
		return
	}
	opcode := (instr >> 21) & 0xF
	setFlags := instr&(1<<20) != 0
	rn := (instr >> 16) & 0xF
	rd := (instr >> 12) & 0xF

	var carryOut bool
	op2 := shiftOperand(c, instr, &carryOut)
	op1 := c.r[rn]

	var result uint32
	writesResult := true
	var overflow bool

	switch opcode {
	case 0x0: // AND
		result = op1 & op2
	case 0x1: // EOR
		result = op1 ^ op2
	case 0x2: // SUB
		result = op1 - op2
		overflow = subOverflow(op1, op2, result)
		carryOut = op1 >= op2
	case 0x3: // RSB
		result = op2 - op1
		overflow = subOverflow(op2, op1, result)
		carryOut = op2 >= op1
	case 0x4: // ADD
		result = op1 + op2
		overflow = addOverflow(op1, op2, result)
		carryOut = result < op1
	case 0x5: // ADC
		c0 := uint32(0)
		if c.flagC() {
			c0 = 1
		}
		result = op1 + op2 + c0
		overflow = addOverflow(op1, op2+c0, result)
		carryOut = uint64(op1)+uint64(op2)+uint64(c0) > 0xFFFFFFFF
	case 0x6: // SBC
		c0 := uint32(0)
		if c.flagC() {
			c0 = 1
		}
		result = op1 - op2 + c0 - 1
		carryOut = uint64(op1) >= uint64(op2)+uint64(1-c0)
		overflow = subOverflow(op1, op2, result)
	case 0x7: // RSC
		c0 := uint32(0)
		if c.flagC() {
			c0 = 1
		}
		result = op2 - op1 + c0 - 1
		carryOut = uint64(op2) >= uint64(op1)+uint64(1-c0)
		overflow = subOverflow(op2, op1, result)
	case 0x8: // TST
		result = op1 & op2
		writesResult = false
	case 0x9: // TEQ
		result = op1 ^ op2
		writesResult = false
	case 0xA: // CMP
		result = op1 - op2
		overflow = subOverflow(op1, op2, result)
		carryOut = op1 >= op2
		writesResult = false
	case 0xB: // CMN
		result = op1 + op2
		overflow = addOverflow(op1, op2, result)
		carryOut = result < op1
		writesResult = false
	case 0xC: // ORR
		result = op1 | op2
	case 0xD: // MOV
		result = op2
	case 0xE: // BIC
		result = op1 &^ op2
	case 0xF: // MVN
		result = ^op2
	}

	if writesResult {
		c.r[rd] = result
		if rd == 15 {
			c.pipelineFull = false
			if setFlags {
				if sp := c.currentSPSR(); sp != nil {
					old := c.mode()
					c.cpsr = *sp
					c.switchMode(old, c.mode())
				}
			}
			return
		}
	}
	if setFlags {
		c.setFlag(cpsrN, result&0x80000000 != 0)
		c.setFlag(cpsrZ, result == 0)
		c.setFlag(cpsrC, carryOut)
		if opcode >= 0x2 && opcode != 0x8 && opcode != 0x9 && opcode != 0xC && opcode != 0xD && opcode != 0xE && opcode != 0xF {
			c.setFlag(cpsrV, overflow)
		}
	}
}

func addOverflow(a, b, result uint32) bool {
	return (a^result)&(b^result)&0x80000000 != 0
}

func subOverflow(a, b, result uint32) bool {
	return (a^b)&(a^result)&0x80000000 != 0
}

func execMultiply(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	rd := (instr >> 16) & 0xF
	rn := (instr >> 12) & 0xF
	rs := (instr >> 8) & 0xF
	rm := instr & 0xF
	accumulate := instr&(1<<21) != 0
	setFlags := instr&(1<<20) != 0

	result := c.r[rm] * c.r[rs]
	if accumulate {
		result += c.r[rn]
	}
	c.r[rd] = result
	if setFlags {
		c.setFlag(cpsrN, result&0x80000000 != 0)
		c.setFlag(cpsrZ, result == 0)
	}
}

func execMultiplyLong(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	rdHi := (instr >> 16) & 0xF
	rdLo := (instr >> 12) & 0xF
	rs := (instr >> 8) & 0xF
	rm := instr & 0xF
	signed := instr&(1<<22) != 0
	accumulate := instr&(1<<21) != 0
	setFlags := instr&(1<<20) != 0

	var result uint64
	if signed {
		result = uint64(int64(int32(c.r[rm])) * int64(int32(c.r[rs])))
	} else {
		result = uint64(c.r[rm]) * uint64(c.r[rs])
	}
	if accumulate {
		result += uint64(c.r[rdHi])<<32 | uint64(c.r[rdLo])
	}
	c.r[rdLo] = uint32(result)
	c.r[rdHi] = uint32(result >> 32)
	if setFlags {
		c.setFlag(cpsrN, result&0x8000000000000000 != 0)
		c.setFlag(cpsrZ, result == 0)
	}
}

func execSwap(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	rn := (instr >> 16) & 0xF
	rd := (instr >> 12) & 0xF
	rm := instr & 0xF
	addr := c.r[rn]
	byteSwap := instr&(1<<22) != 0
	if byteSwap {
		old := c.bus.Read8(addr)
		c.bus.Write8(addr, uint8(c.r[rm]))
		c.r[rd] = uint32(old)
	} else {
		old := c.bus.Read32(addr)
		c.bus.Write32(addr, c.r[rm])
		c.r[rd] = old
	}
}

func execHalfwordTransfer(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	rn := (instr >> 16) & 0xF
	rd := (instr >> 12) & 0xF
	load := instr&(1<<20) != 0
	pre := instr&(1<<24) != 0
	up := instr&(1<<23) != 0
	writeback := instr&(1<<21) != 0
	immediate := instr&(1<<22) != 0
	sh := (instr >> 5) & 0x3

	var offset uint32
	if immediate {
		offset = (instr>>4)&0xF0 | instr&0xF
	} else {
		offset = c.r[instr&0xF]
	}
	addr := c.r[rn]
	if pre {
		if up {
			addr += offset
		} else {
			addr -= offset
		}
	}

	if load {
		switch sh {
		case 1: // unsigned halfword
			c.r[rd] = uint32(c.bus.Read16(addr))
		case 2: // signed byte
			c.r[rd] = uint32(signExtend32(uint32(c.bus.Read8(addr)), 8))
		case 3: // signed halfword
			c.r[rd] = uint32(signExtend32(uint32(c.bus.Read16(addr)), 16))
		}
	} else {
		c.bus.Write16(addr, uint16(c.r[rd]))
	}

	if !pre {
		if up {
			addr = c.r[rn] + offset
		} else {
			addr = c.r[rn] - offset
		}
		c.r[rn] = addr
	} else if writeback {
		c.r[rn] = addr
	}
}

func execSingleTransfer(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	rn := (instr >> 16) & 0xF
	rd := (instr >> 12) & 0xF
	load := instr&(1<<20) != 0
	byteAccess := instr&(1<<22) != 0
	pre := instr&(1<<24) != 0
	up := instr&(1<<23) != 0
	writeback := instr&(1<<21) != 0
	immediateOffset := instr&(1<<25) == 0

	var offset uint32
	if immediateOffset {
		offset = instr & 0xFFF
	} else {
		var carryOut bool
		offset = shiftOperand(c, instr&^uint32(1<<25), &carryOut)
	}

	addr := c.r[rn]
	if pre {
		if up {
			addr += offset
		} else {
			addr -= offset
		}
	}

	if load {
		if byteAccess {
			c.r[rd] = uint32(c.bus.Read8(addr))
		} else {
			c.r[rd] = rotateUnaligned(c.bus.Read32(addr), addr)
		}
	} else {
		if byteAccess {
			c.bus.Write8(addr, uint8(c.r[rd]))
		} else {
			c.bus.Write32(addr, c.r[rd])
		}
	}

	if !pre {
		if up {
			addr = c.r[rn] + offset
		} else {
			addr = c.r[rn] - offset
		}
		c.r[rn] = addr
	} else if writeback {
		c.r[rn] = addr
	}
	if load && rd == 15 {
		c.pipelineFull = false
	}
}

// rotateUnaligned replicates the ARM LDR "rotated read" behavior for
// unaligned word addresses (the bus itself always services aligned
// accesses; the rotation happens here at the ISA level).
func rotateUnaligned(value uint32, addr uint32) uint32 {
	rot := (addr & 3) * 8
	if rot == 0 {
		return value
	}
	return value>>rot | value<<(32-rot)
}

func execBlockTransfer(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	rn := (instr >> 16) & 0xF
	load := instr&(1<<20) != 0
	writeback := instr&(1<<21) != 0
	userBank := instr&(1<<22) != 0
	up := instr&(1<<23) != 0
	pre := instr&(1<<24) != 0
	list := instr & 0xFFFF

	count := 0
	for i := 0; i < 16; i++ {
		if list&(1<<i) != 0 {
			count++
		}
	}
	if count == 0 {
		count = 16 // empty-list edge case transfers r15 and offsets by 0x40
	}

	base := c.r[rn]
	var start uint32
	if up {
		start = base
	} else {
		start = base - uint32(count)*4
	}
	addr := start

	savedMode := c.mode()
	if userBank && savedMode != modeUSR && savedMode != modeSYS {
		c.switchMode(savedMode, modeUSR)
	}

	for i := 0; i < 16; i++ {
		if list&(1<<i) == 0 {
			continue
		}
		if pre {
			addr += 4
		}
		if load {
			c.r[i] = c.bus.Read32(addr)
			if i == 15 {
				c.pipelineFull = false
			}
		} else {
			c.bus.Write32(addr, c.r[i])
		}
		if !pre {
			addr += 4
		}
	}

	if userBank && savedMode != modeUSR && savedMode != modeSYS {
		c.switchMode(modeUSR, savedMode)
	}

	if writeback {
		if up {
			c.r[rn] = base + uint32(count)*4
		} else {
			c.r[rn] = base - uint32(count)*4
		}
	}
}

func execBranch(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	link := instr&(1<<24) != 0
	offset := signExtend32(instr&0xFFFFFF, 24) << 2
	if link {
		c.r[14] = c.r[15] - 4
	}
	c.r[15] = uint32(int32(c.r[15]) + offset)
	c.pipelineFull = false
}

func execBranchExchange(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	rm := instr & 0xF
	target := c.r[rm]
	if instr&(1<<5) != 0 { // BLX (ARMv5 only; reached only on nds9)
		c.r[14] = c.r[15] - 4
	}
	c.setFlag(cpsrT, target&1 != 0)
	c.r[15] = target &^ 1
	c.pipelineFull = false
}

func execPSRTransfer(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	toSPSR := instr&(1<<22) != 0
	if instr&(1<<21) != 0 { // MSR
		var value uint32
		if instr&(1<<25) != 0 {
			imm := instr & 0xFF
			rot := (instr >> 8) & 0xF * 2
			value = imm>>rot | imm<<(32-rot)&0xFFFFFFFF
		} else {
			value = c.r[instr&0xF]
		}
		fieldMask := (instr >> 16) & 0xF
		mask := uint32(0)
		if fieldMask&1 != 0 {
			mask |= 0x000000FF
		}
		if fieldMask&2 != 0 {
			mask |= 0x0000FF00
		}
		if fieldMask&4 != 0 {
			mask |= 0x00FF0000
		}
		if fieldMask&8 != 0 {
			mask |= 0xFF000000
		}
		if toSPSR {
			if sp := c.currentSPSR(); sp != nil {
				*sp = (*sp &^ mask) | (value & mask)
			}
		} else {
			old := c.mode()
			newCPSR := (c.cpsr &^ mask) | (value & mask)
			if mask&0xFF != 0 {
				c.cpsr = newCPSR
				c.switchMode(old, c.mode())
			} else {
				c.cpsr = newCPSR
			}
		}
	} else { // MRS
		rd := (instr >> 12) & 0xF
		if toSPSR {
			if sp := c.currentSPSR(); sp != nil {
				c.r[rd] = *sp
			}
		} else {
			c.r[rd] = c.cpsr
		}
	}
}

func execSoftwareInterrupt(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	const vectorSWI = 0x08
	// LR_svc must point at the instruction after the SWI, not the one
	// after that: r15 already reads four bytes past it in ARM state.
	c.enterException(modeSVC, vectorSWI, lrBackWordARM, false)
}

func execUndefined(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	const vectorUND = 0x04
	c.enterException(modeUND, vectorUND, lrBackWordARM, false)
}

// Coprocessor instructions are meaningful only for cp15 on the nds9
// (cp15.go); on the nds7, and for any coprocessor number other than 15,
// they are treated as undefined per spec section 4.2.3.
func execCoprocessorTransfer(c *armCPU, instr uint32) {
	dispatchCoprocessor(c, instr)
}

func execCoprocessorDataOp(c *armCPU, instr uint32) {
	dispatchCoprocessor(c, instr)
}

func execCoprocessorRegTransfer(c *armCPU, instr uint32) {
	dispatchCoprocessor(c, instr)
}

func dispatchCoprocessor(c *armCPU, instr uint32) {
	if !condPasses(c, instr>>28) {
		return
	}
	cpNum := (instr >> 8) & 0xF
	if c.id == 0 && cpNum == 15 && c.cp15 != nil {
		c.cp15.handle(c, instr)
		return
	}
	execUndefined(c, instr)
}
