// cpu_arm_thumb.go - Thumb-mode instruction classification and execution

/*
cpu_arm_thumb.go - 1024-entry Thumb dispatch table

Same dispatch-table idiom as cpu_arm_decode.go, keyed by the top 10 bits
of a 16-bit Thumb instruction (bits 15:6), which is enough to distinguish
every Thumb format per the classification used in
_examples/original_source/src/nds/arm/interpreter/thumb/*.h. The nds7 runs almost
entirely in Thumb mode for guest code, so this table sees heavy traffic
relative to the ARM one.
*/

package main

func thumbKey(instr uint16) int {
	return int(instr >> 6)
}

func buildThumbTable(table *[1024]thumbHandler) {
	for key := 0; key < 1024; key++ {
		table[key] = classifyThumb(uint16(key) << 6)
	}
}

func classifyThumb(instr uint16) thumbHandler {
	switch {
	case instr&0xF800 == 0x1800:
		return thumbAddSub
	case instr&0xE000 == 0x0000:
		return thumbShift
	case instr&0xE000 == 0x2000:
		return thumbImmediate
	case instr&0xFC00 == 0x4000:
		return thumbALU
	case instr&0xFC00 == 0x4400:
		return thumbHiRegBX
	case instr&0xF800 == 0x4800:
		return thumbLoadPCRel
	case instr&0xF200 == 0x5000:
		return thumbLoadStoreReg
	case instr&0xF200 == 0x5200:
		return thumbLoadStoreSignExt
	case instr&0xE000 == 0x6000:
		return thumbLoadStoreImm
	case instr&0xF000 == 0x8000:
		return thumbLoadStoreHalf
	case instr&0xF000 == 0x9000:
		return thumbLoadStoreSP
	case instr&0xF000 == 0xA000:
		return thumbLoadAddress
	case instr&0xFF00 == 0xB000:
		return thumbAddSP
	case instr&0xF600 == 0xB400:
		return thumbPushPop
	case instr&0xF000 == 0xC000:
		return thumbLoadStoreMultiple
	case instr&0xFF00 == 0xDF00:
		return thumbSWI
	case instr&0xF000 == 0xD000:
		return thumbCondBranch
	case instr&0xF800 == 0xE000:
		return thumbBranch
	case instr&0xF000 == 0xF000:
		return thumbLongBranchLink
	default:
		return thumbUndefined
	}
}

func thumbUndefined(c *armCPU, instr uint16) {
	const vectorUND = 0x04
	c.enterException(modeUND, vectorUND, lrBackWordThumb, false)
}

func thumbShift(c *armCPU, instr uint16) {
	op := (instr >> 11) & 0x3
	amount := uint32((instr >> 6) & 0x1F)
	rs := (instr >> 3) & 0x7
	rd := instr & 0x7
	var carryOut bool
	result := applyShift(c, c.r[rs], uint32(op), amount, false, &carryOut)
	c.r[rd] = result
	c.setFlag(cpsrN, result&0x80000000 != 0)
	c.setFlag(cpsrZ, result == 0)
	c.setFlag(cpsrC, carryOut)
}

func thumbAddSub(c *armCPU, instr uint16) {
	immediate := instr&(1<<10) != 0
	sub := instr&(1<<9) != 0
	rs := (instr >> 3) & 0x7
	rd := instr & 0x7
	var operand uint32
	if immediate {
		operand = uint32((instr >> 6) & 0x7)
	} else {
		operand = c.r[(instr>>6)&0x7]
	}
	op1 := c.r[rs]
	var result uint32
	if sub {
		result = op1 - operand
		c.setFlag(cpsrC, op1 >= operand)
		c.setFlag(cpsrV, subOverflow(op1, operand, result))
	} else {
		result = op1 + operand
		c.setFlag(cpsrC, result < op1)
		c.setFlag(cpsrV, addOverflow(op1, operand, result))
	}
	c.r[rd] = result
	c.setFlag(cpsrN, result&0x80000000 != 0)
	c.setFlag(cpsrZ, result == 0)
}

func thumbImmediate(c *armCPU, instr uint16) {
	op := (instr >> 11) & 0x3
	rd := (instr >> 8) & 0x7
	imm := uint32(instr & 0xFF)
	op1 := c.r[rd]
	var result uint32
	switch op {
	case 0: // MOV
		result = imm
		c.r[rd] = result
	case 1: // CMP
		result = op1 - imm
		c.setFlag(cpsrC, op1 >= imm)
		c.setFlag(cpsrV, subOverflow(op1, imm, result))
	case 2: // ADD
		result = op1 + imm
		c.setFlag(cpsrC, result < op1)
		c.setFlag(cpsrV, addOverflow(op1, imm, result))
		c.r[rd] = result
	case 3: // SUB
		result = op1 - imm
		c.setFlag(cpsrC, op1 >= imm)
		c.setFlag(cpsrV, subOverflow(op1, imm, result))
		c.r[rd] = result
	}
	c.setFlag(cpsrN, result&0x80000000 != 0)
	c.setFlag(cpsrZ, result == 0)
}

func thumbALU(c *armCPU, instr uint16) {
	op := (instr >> 6) & 0xF
	rs := (instr >> 3) & 0x7
	rd := instr & 0x7
	op1 := c.r[rd]
	op2 := c.r[rs]
	var result uint32
	writes := true
	var carryOut, overflow bool
	carryOut = c.flagC()
	switch op {
	case 0x0:
		result = op1 & op2
	case 0x1:
		result = op1 ^ op2
	case 0x2:
		result = applyShift(c, op1, 0, op2&0xFF, true, &carryOut)
	case 0x3:
		result = applyShift(c, op1, 1, op2&0xFF, true, &carryOut)
	case 0x4:
		result = applyShift(c, op1, 2, op2&0xFF, true, &carryOut)
	case 0x5:
		c0 := uint32(0)
		if c.flagC() {
			c0 = 1
		}
		result = op1 + op2 + c0
		carryOut = uint64(op1)+uint64(op2)+uint64(c0) > 0xFFFFFFFF
		overflow = addOverflow(op1, op2, result)
	case 0x6:
		c0 := uint32(0)
		if c.flagC() {
			c0 = 1
		}
		result = op1 - op2 + c0 - 1
		carryOut = uint64(op1) >= uint64(op2)+uint64(1-c0)
		overflow = subOverflow(op1, op2, result)
	case 0x7:
		result = applyShift(c, op1, 3, op2&0xFF, true, &carryOut)
	case 0x8:
		result = op1 & op2
		writes = false
	case 0x9:
		result = 0 - op2
		carryOut = op2 == 0
		overflow = subOverflow(0, op2, result)
		c.r[rd] = result
	case 0xA:
		result = op1 - op2
		carryOut = op1 >= op2
		overflow = subOverflow(op1, op2, result)
		writes = false
	case 0xB:
		result = op1 + op2
		carryOut = result < op1
		overflow = addOverflow(op1, op2, result)
		writes = false
	case 0xC:
		result = op1 | op2
	case 0xD:
		result = op1 * op2
	case 0xE:
		result = op1 &^ op2
	case 0xF:
		result = ^op2
	}
	if writes && op != 0x9 {
		c.r[rd] = result
	}
	c.setFlag(cpsrN, result&0x80000000 != 0)
	c.setFlag(cpsrZ, result == 0)
	if op == 0x2 || op == 0x3 || op == 0x4 || op == 0x7 {
		c.setFlag(cpsrC, carryOut)
	}
	if op == 0x5 || op == 0x6 || op == 0x9 || op == 0xA || op == 0xB {
		c.setFlag(cpsrC, carryOut)
		c.setFlag(cpsrV, overflow)
	}
}

func thumbHiRegBX(c *armCPU, instr uint16) {
	op := (instr >> 8) & 0x3
	h1 := instr&(1<<7) != 0
	h2 := instr&(1<<6) != 0
	rs := (instr >> 3) & 0x7
	rd := instr & 0x7
	if h2 {
		rs += 8
	}
	if h1 {
		rd += 8
	}
	switch op {
	case 0: // ADD
		c.r[rd] += c.r[rs]
		if rd == 15 {
			c.pipelineFull = false
		}
	case 1: // CMP
		op1 := c.r[rd]
		op2 := c.r[rs]
		result := op1 - op2
		c.setFlag(cpsrN, result&0x80000000 != 0)
		c.setFlag(cpsrZ, result == 0)
		c.setFlag(cpsrC, op1 >= op2)
		c.setFlag(cpsrV, subOverflow(op1, op2, result))
	case 2: // MOV
		c.r[rd] = c.r[rs]
		if rd == 15 {
			c.pipelineFull = false
		}
	case 3: // BX/BLX
		target := c.r[rs]
		if instr&(1<<7) != 0 {
			c.r[14] = c.r[15] - 1
		}
		c.setFlag(cpsrT, target&1 != 0)
		c.r[15] = target &^ 1
		c.pipelineFull = false
	}
}

func thumbLoadPCRel(c *armCPU, instr uint16) {
	rd := (instr >> 8) & 0x7
	imm := uint32(instr&0xFF) << 2
	base := (c.r[15] &^ 3) + imm
	c.r[rd] = c.bus.Read32(base)
}

func thumbLoadStoreReg(c *armCPU, instr uint16) {
	load := instr&(1<<11) != 0
	byteAccess := instr&(1<<10) != 0
	ro := (instr >> 6) & 0x7
	rb := (instr >> 3) & 0x7
	rd := instr & 0x7
	addr := c.r[rb] + c.r[ro]
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
}

func thumbLoadStoreSignExt(c *armCPU, instr uint16) {
	hFlag := instr&(1<<11) != 0
	sFlag := instr&(1<<10) != 0
	ro := (instr >> 6) & 0x7
	rb := (instr >> 3) & 0x7
	rd := instr & 0x7
	addr := c.r[rb] + c.r[ro]
	switch {
	case !sFlag && !hFlag: // STRH
		c.bus.Write16(addr, uint16(c.r[rd]))
	case !sFlag && hFlag: // LDRH
		c.r[rd] = uint32(c.bus.Read16(addr))
	case sFlag && !hFlag: // LDSB
		c.r[rd] = uint32(signExtend32(uint32(c.bus.Read8(addr)), 8))
	case sFlag && hFlag: // LDSH
		c.r[rd] = uint32(signExtend32(uint32(c.bus.Read16(addr)), 16))
	}
}

func thumbLoadStoreImm(c *armCPU, instr uint16) {
	byteAccess := instr&(1<<12) != 0
	load := instr&(1<<11) != 0
	offset := uint32((instr >> 6) & 0x1F)
	rb := (instr >> 3) & 0x7
	rd := instr & 0x7
	if !byteAccess {
		offset <<= 2
	}
	addr := c.r[rb] + offset
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
}

func thumbLoadStoreHalf(c *armCPU, instr uint16) {
	load := instr&(1<<11) != 0
	offset := uint32((instr>>6)&0x1F) << 1
	rb := (instr >> 3) & 0x7
	rd := instr & 0x7
	addr := c.r[rb] + offset
	if load {
		c.r[rd] = uint32(c.bus.Read16(addr))
	} else {
		c.bus.Write16(addr, uint16(c.r[rd]))
	}
}

func thumbLoadStoreSP(c *armCPU, instr uint16) {
	load := instr&(1<<11) != 0
	rd := (instr >> 8) & 0x7
	offset := uint32(instr&0xFF) << 2
	addr := c.r[13] + offset
	if load {
		c.r[rd] = rotateUnaligned(c.bus.Read32(addr), addr)
	} else {
		c.bus.Write32(addr, c.r[rd])
	}
}

func thumbLoadAddress(c *armCPU, instr uint16) {
	sp := instr&(1<<11) != 0
	rd := (instr >> 8) & 0x7
	offset := uint32(instr&0xFF) << 2
	if sp {
		c.r[rd] = c.r[13] + offset
	} else {
		c.r[rd] = (c.r[15] &^ 3) + offset
	}
}

func thumbAddSP(c *armCPU, instr uint16) {
	negative := instr&(1<<7) != 0
	offset := uint32(instr&0x7F) << 2
	if negative {
		c.r[13] -= offset
	} else {
		c.r[13] += offset
	}
}

func thumbPushPop(c *armCPU, instr uint16) {
	load := instr&(1<<11) != 0
	pcLR := instr&(1<<8) != 0
	list := instr & 0xFF

	if load { // POP
		addr := c.r[13]
		for i := 0; i < 8; i++ {
			if list&(1<<i) != 0 {
				c.r[i] = c.bus.Read32(addr)
				addr += 4
			}
		}
		if pcLR {
			c.r[15] = c.bus.Read32(addr) &^ 1
			addr += 4
			c.pipelineFull = false
		}
		c.r[13] = addr
	} else { // PUSH
		count := 0
		for i := 0; i < 8; i++ {
			if list&(1<<i) != 0 {
				count++
			}
		}
		if pcLR {
			count++
		}
		addr := c.r[13] - uint32(count)*4
		c.r[13] = addr
		for i := 0; i < 8; i++ {
			if list&(1<<i) != 0 {
				c.bus.Write32(addr, c.r[i])
				addr += 4
			}
		}
		if pcLR {
			c.bus.Write32(addr, c.r[14])
		}
	}
}

func thumbLoadStoreMultiple(c *armCPU, instr uint16) {
	load := instr&(1<<11) != 0
	rb := (instr >> 8) & 0x7
	list := instr & 0xFF
	addr := c.r[rb]
	for i := 0; i < 8; i++ {
		if list&(1<<i) != 0 {
			if load {
				c.r[i] = c.bus.Read32(addr)
			} else {
				c.bus.Write32(addr, c.r[i])
			}
			addr += 4
		}
	}
	c.r[rb] = addr
}

func thumbSWI(c *armCPU, instr uint16) {
	const vectorSWI = 0x08
	c.enterException(modeSVC, vectorSWI, lrBackWordThumb, false)
}

func thumbCondBranch(c *armCPU, instr uint16) {
	cond := uint32((instr >> 8) & 0xF)
	if !condPasses(c, cond) {
		return
	}
	offset := signExtend32(uint32(instr&0xFF), 8) << 1
	c.r[15] = uint32(int32(c.r[15]) + offset)
	c.pipelineFull = false
}

func thumbBranch(c *armCPU, instr uint16) {
	offset := signExtend32(uint32(instr&0x7FF), 11) << 1
	c.r[15] = uint32(int32(c.r[15]) + offset)
	c.pipelineFull = false
}

func thumbLongBranchLink(c *armCPU, instr uint16) {
	low := instr&(1<<11) != 0
	offset := uint32(instr & 0x7FF)
	if !low {
		signExt := signExtend32(offset, 11)
		c.r[14] = uint32(int32(c.r[15]) + (signExt << 12))
		return
	}
	next := c.r[14] + (offset << 1)
	c.r[14] = (c.r[15] - 2) | 1
	c.r[15] = next
	c.pipelineFull = false
}
