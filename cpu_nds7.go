// cpu_nds7.go - nds7 core construction (ARMv4T, no TCMs, no cp15)

package main

// newNDS7 builds the nds7 core: a single 14-bit-shift page table (16 KiB
// pages, matching the ARM7 shared-WRAM granularity) used for fetch,
// load, and store alike since the nds7 has no TCM interposition.
func newNDS7(m *Machine) *armCPU {
	pt := newPageTables(14)
	bus := &CPUBus{cpuID: 1, m: m, pt: pt}
	cpu := newArmCPU(1, bus)
	m.pageTables7 = pt
	return cpu
}
