// cpu_nds9.go - nds9 core construction (ARMv5TE, cp15, ITCM/DTCM)

package main

// newNDS9 builds the nds9 core: a 12-bit-shift page table trio (4 KiB
// pages, fine enough for the ITCM/DTCM windows) plus its cp15.
func newNDS9(m *Machine) *armCPU {
	pt := newPageTables(12)
	bus := &CPUBus{cpuID: 0, m: m, pt: pt}
	cpu := newArmCPU(0, bus)
	cpu.cp15 = newCP15(cpu, pt)
	m.pageTables9 = pt
	return cpu
}
