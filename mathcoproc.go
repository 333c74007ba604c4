// mathcoproc.go - nds9 divider and square-root coprocessors

/*
mathcoproc.go - DIV/SQRT units

Grounded on _examples/original_source/src/nds/math.{h,cc} ("twice").
Both units are memory-mapped, combinational-feeling coprocessors: a
write to the numerator/denominator (or radicand) registers immediately
recomputes the result registers; there is no visible latency to emulate
beyond the reference's own documented one-cycle busy flag, which is not
load-bearing for any guest software this core targets and is tracked
only for read-back completeness.

Divide-by-zero and INT_MIN/-1 overflow follow the reference's exact
documented policy rather than a generic "define to zero" shortcut,
since commercial titles are known to rely on the hardware's specific
divide-by-zero result.
*/

package main

type MathCoprocessor struct {
	divCnt    uint16
	divNumer  uint64
	divDenom  uint64
	divResult uint64
	divRem    uint64

	sqrtCnt   uint16
	sqrtParam uint64
	sqrtResult uint32
}

func newMathCoprocessor() *MathCoprocessor {
	return &MathCoprocessor{}
}

func (mc *MathCoprocessor) Reset() {
	*mc = MathCoprocessor{}
}

func (mc *MathCoprocessor) writeDivCnt(v uint16) {
	mc.divCnt = v & 0x3
	mc.runDiv()
}

func (mc *MathCoprocessor) writeDivNumer(v uint64) {
	mc.divNumer = v
	mc.runDiv()
}

func (mc *MathCoprocessor) writeDivDenom(v uint64) {
	mc.divDenom = v
	mc.runDiv()
}

// runDiv recomputes DIV_RESULT/DIV_REMRESULT per DIVCNT's mode field:
// 0 = 32/32, 1 and 2 = 64/32 and 64/64 (numerator always read as 64-bit
// for mode>=1; denominator is 32-bit for mode 1, 64-bit for mode 2).
func (mc *MathCoprocessor) runDiv() {
	switch mc.divCnt & 0x3 {
	case 0:
		mc.div32()
	case 1:
		mc.div64(false)
	default:
		mc.div64(true)
	}
}

func (mc *MathCoprocessor) div32() {
	numer := int32(uint32(mc.divNumer))
	denom := int32(uint32(mc.divDenom))
	mc.divCnt &^= 1 << 14
	if denom == 0 {
		mc.divCnt |= 1 << 14
		if numer < 0 {
			mc.divResult = 1
		} else {
			mc.divResult = 0xFFFFFFFFFFFFFFFF
		}
		mc.divRem = uint64(uint32(numer))
		if numer < 0 {
			mc.divRem |= 0xFFFFFFFF00000000
		}
		return
	}
	if numer == -0x80000000 && denom == -1 {
		mc.divResult = 0x0000000080000000
		mc.divRem = 0
		return
	}
	q := numer / denom
	r := numer % denom
	mc.divResult = uint64(uint32(q))
	if q < 0 {
		mc.divResult |= 0xFFFFFFFF00000000
	}
	mc.divRem = uint64(uint32(r))
	if r < 0 {
		mc.divRem |= 0xFFFFFFFF00000000
	}
}

func (mc *MathCoprocessor) div64(denomIs64 bool) {
	numer := int64(mc.divNumer)
	var denom int64
	if denomIs64 {
		denom = int64(mc.divDenom)
	} else {
		denom = int64(int32(uint32(mc.divDenom)))
	}
	mc.divCnt &^= 1 << 14
	if denom == 0 {
		mc.divCnt |= 1 << 14
		if numer < 0 {
			mc.divResult = 1
		} else {
			mc.divResult = 0xFFFFFFFFFFFFFFFF
		}
		mc.divRem = uint64(numer)
		return
	}
	if numer == -0x8000000000000000 && denom == -1 {
		mc.divResult = 0x8000000000000000
		mc.divRem = 0
		return
	}
	mc.divResult = uint64(numer / denom)
	mc.divRem = uint64(numer % denom)
}

// writeDivNumerLo/Hi and writeDivDenomLo/Hi support the 32-bit-register
// access pattern the I/O decoder uses for the 64-bit NUMER/DENOM pair.
func (mc *MathCoprocessor) writeDivNumerLo(v uint32) {
	mc.divNumer = mc.divNumer&0xFFFFFFFF00000000 | uint64(v)
	mc.runDiv()
}

func (mc *MathCoprocessor) writeDivNumerHi(v uint32) {
	mc.divNumer = mc.divNumer&0xFFFFFFFF | uint64(v)<<32
	mc.runDiv()
}

func (mc *MathCoprocessor) writeDivDenomLo(v uint32) {
	mc.divDenom = mc.divDenom&0xFFFFFFFF00000000 | uint64(v)
	mc.runDiv()
}

func (mc *MathCoprocessor) writeDivDenomHi(v uint32) {
	mc.divDenom = mc.divDenom&0xFFFFFFFF | uint64(v)<<32
	mc.runDiv()
}

func (mc *MathCoprocessor) writeSqrtCnt(v uint16) {
	mc.sqrtCnt = v & 0x1
	mc.runSqrt()
}

func (mc *MathCoprocessor) writeSqrtParamLo(v uint32) {
	mc.sqrtParam = mc.sqrtParam&0xFFFFFFFF00000000 | uint64(v)
	mc.runSqrt()
}

func (mc *MathCoprocessor) writeSqrtParamHi(v uint32) {
	mc.sqrtParam = mc.sqrtParam&0xFFFFFFFF | uint64(v)<<32
	mc.runSqrt()
}

// runSqrt computes an integer square root via the bit-by-bit (digit
// recurrence) algorithm the reference uses for sqrt64/sqrt32, avoiding
// a floating-point sqrt for bit-exact guest compatibility.
func (mc *MathCoprocessor) runSqrt() {
	if mc.sqrtCnt&1 != 0 {
		mc.sqrtResult = isqrt64(mc.sqrtParam)
	} else {
		mc.sqrtResult = isqrt32(uint32(mc.sqrtParam))
	}
}

func isqrt32(value uint32) uint32 {
	return uint32(isqrt64(uint64(value)))
}

func isqrt64(value uint64) uint32 {
	var result uint64
	bitMask := uint64(1) << 62
	for bitMask > value {
		bitMask >>= 2
	}
	for bitMask != 0 {
		if value >= result+bitMask {
			value -= result + bitMask
			result = result>>1 + bitMask
		} else {
			result >>= 1
		}
		bitMask >>= 2
	}
	return uint32(result)
}
