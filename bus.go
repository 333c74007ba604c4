// bus.go - Per-CPU page tables, timing tables, and the bus fabric

/*
bus.go - address translation and access costing

Grounded on _examples/original_source/src/libtwice/bus.h and
src/nds/mem/bus.h ("twice"): each CPU owns arrays of page pointers
indexed by the high address bits. A non-nil entry means "read/write
this page directly at the low-bit offset"; a nil entry routes to the
slow path, which dispatches on the top byte of the address (mmio.go).

Three parallel tables exist for the nds9 (fetch/load/store) so that
TCM interposition (cp15.go) can diverge code and data mapping from
the plain bus view, per spec section 4.1/4.2.3. The nds7 has no TCMs
and uses a single shared table for all three access kinds.

Following the teacher's MachineBus shape: a contiguous backing array
plus an auxiliary dispatch structure for memory-mapped I/O, but here
the dispatch key is the page table itself rather than a registered-
region map, since every region's size and position is fixed by the
NDS memory map instead of being caller registered.
*/

package main

// pageEntry is a slice view into the backing memory for one page; a nil
// entry forces the slow path.
type pageEntry []byte

// PageTables is the per-CPU bus fabric: one array of page pointers per
// access kind, sized by pageShift, plus a coarse N/S timing table
// indexed by the top 8 bits of the address (spec 4.1).
type PageTables struct {
	shift     uint
	pageSize  uint32
	pageMask  uint32
	numPages  uint32

	fetch []pageEntry
	load  []pageEntry
	store []pageEntry

	// timing[region][0]=N-cycle, timing[region][1]=S-cycle, for code and
	// data accesses respectively; indexed by addr>>24.
	codeTimingN [256]uint8
	codeTimingS [256]uint8
	dataTimingN [256]uint8
	dataTimingS [256]uint8
}

func newPageTables(shift uint) *PageTables {
	pageSize := uint32(1) << shift
	numPages := uint32(1) << (32 - shift)
	return &PageTables{
		shift:    shift,
		pageSize: pageSize,
		pageMask: pageSize - 1,
		numPages: numPages,
		fetch:    make([]pageEntry, numPages),
		load:     make([]pageEntry, numPages),
		store:    make([]pageEntry, numPages),
	}
}

// mapRegion installs backing for [addrStart, addrStart+len) across all
// three tables (nds7, or nds9 when TCMs are not interposed). data must be
// at least as long as the region and is assumed contiguous; the region is
// tiled with repeats of data if data is shorter than the region (used for
// mirrored regions like ITCM-mod-32K).
func (pt *PageTables) mapRegion(addrStart, length uint32, data []byte, writable bool) {
	pt.mapFetch(addrStart, length, data)
	pt.mapLoad(addrStart, length, data)
	if writable {
		pt.mapStore(addrStart, length, data)
	} else {
		pt.unmapStore(addrStart, length)
	}
}

func (pt *PageTables) mapFetch(addrStart, length uint32, data []byte) {
	pt.tile(pt.fetch, addrStart, length, data)
}

func (pt *PageTables) mapLoad(addrStart, length uint32, data []byte) {
	pt.tile(pt.load, addrStart, length, data)
}

func (pt *PageTables) mapStore(addrStart, length uint32, data []byte) {
	pt.tile(pt.store, addrStart, length, data)
}

func (pt *PageTables) unmapRegion(addrStart, length uint32) {
	pt.unmapFetch(addrStart, length)
	pt.unmapLoad(addrStart, length)
	pt.unmapStore(addrStart, length)
}

func (pt *PageTables) unmapFetch(addrStart, length uint32) { pt.clear(pt.fetch, addrStart, length) }
func (pt *PageTables) unmapLoad(addrStart, length uint32)  { pt.clear(pt.load, addrStart, length) }
func (pt *PageTables) unmapStore(addrStart, length uint32) { pt.clear(pt.store, addrStart, length) }

func (pt *PageTables) tile(table []pageEntry, addrStart, length uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	mirrorLen := uint32(len(data))
	firstPage := addrStart >> pt.shift
	numPages := length >> pt.shift
	for i := uint32(0); i < numPages; i++ {
		page := firstPage + i
		if int(page) >= len(table) {
			return
		}
		pageAddr := i << pt.shift
		off := pageAddr % mirrorLen
		end := off + pt.pageSize
		if end > mirrorLen {
			// Page straddles a mirror wrap; the slow path must handle the
			// wraparound case exactly as a nil entry would.
			table[page] = nil
			continue
		}
		table[page] = pageEntry(data[off:end])
	}
}

func (pt *PageTables) clear(table []pageEntry, addrStart, length uint32) {
	firstPage := addrStart >> pt.shift
	numPages := length >> pt.shift
	for i := uint32(0); i < numPages; i++ {
		page := firstPage + i
		if int(page) >= len(table) {
			return
		}
		table[page] = nil
	}
}

func (pt *PageTables) setTiming(regionStart, regionEnd uint32, codeN, codeS, dataN, dataS uint8) {
	for r := regionStart >> 24; r <= regionEnd>>24 && r < 256; r++ {
		pt.codeTimingN[r] = codeN
		pt.codeTimingS[r] = codeS
		pt.dataTimingN[r] = dataN
		pt.dataTimingS[r] = dataS
	}
}

// CPUBus is the capability each ARM interpreter is handed: a narrow view
// over the Machine that lets it fetch/load/store and charge cycles,
// without a wide dependency back on the whole Machine (spec section 9).
type CPUBus struct {
	cpuID int
	m     *Machine
	pt    *PageTables
}

func read8(pt []pageEntry, shift uint, pageMask uint32, addr uint32, slow func(uint32) uint8) uint8 {
	page := addr >> shift
	if int(page) < len(pt) {
		if e := pt[page]; e != nil {
			return e[addr&pageMask]
		}
	}
	return slow(addr)
}

func write8(pt []pageEntry, shift uint, pageMask uint32, addr uint32, value uint8, slow func(uint32, uint8)) {
	page := addr >> shift
	if int(page) < len(pt) {
		if e := pt[page]; e != nil {
			e[addr&pageMask] = value
			return
		}
	}
	slow(addr, value)
}

// Read8/16/32 and Write8/16/32 implement the sized bus contract of
// spec 4.1: a non-nil page pointer services the access directly, a nil
// pointer falls through to the MMIO/VRAM/palette/OAM/open-bus slow path.
func (b *CPUBus) Read8(addr uint32) uint8 {
	return read8(b.pt.load, b.pt.shift, b.pt.pageMask, addr, func(a uint32) uint8 { return b.m.slowRead8(b.cpuID, a) })
}

func (b *CPUBus) Write8(addr uint32, v uint8) {
	write8(b.pt.store, b.pt.shift, b.pt.pageMask, addr, v, func(a uint32, v uint8) { b.m.slowWrite8(b.cpuID, a, v) })
}

func (b *CPUBus) Read16(addr uint32) uint16 {
	addr &^= 1
	page := addr >> b.pt.shift
	if int(page) < len(b.pt.load) {
		if e := b.pt.load[page]; e != nil {
			off := addr & b.pt.pageMask
			return readLE16(e, int(off))
		}
	}
	return b.m.slowRead16(b.cpuID, addr)
}

func (b *CPUBus) Write16(addr uint32, v uint16) {
	addr &^= 1
	page := addr >> b.pt.shift
	if int(page) < len(b.pt.store) {
		if e := b.pt.store[page]; e != nil {
			off := addr & b.pt.pageMask
			writeLE16(e, int(off), v)
			return
		}
	}
	b.m.slowWrite16(b.cpuID, addr, v)
}

func (b *CPUBus) Read32(addr uint32) uint32 {
	addr &^= 3
	page := addr >> b.pt.shift
	if int(page) < len(b.pt.load) {
		if e := b.pt.load[page]; e != nil {
			off := addr & b.pt.pageMask
			return readLE32(e, int(off))
		}
	}
	return b.m.slowRead32(b.cpuID, addr)
}

func (b *CPUBus) Write32(addr uint32, v uint32) {
	addr &^= 3
	page := addr >> b.pt.shift
	if int(page) < len(b.pt.store) {
		if e := b.pt.store[page]; e != nil {
			off := addr & b.pt.pageMask
			writeLE32(e, int(off), v)
			return
		}
	}
	b.m.slowWrite32(b.cpuID, addr, v)
}

func (b *CPUBus) FetchARM(addr uint32) uint32 {
	addr &^= 3
	page := addr >> b.pt.shift
	if int(page) < len(b.pt.fetch) {
		if e := b.pt.fetch[page]; e != nil {
			off := addr & b.pt.pageMask
			return readLE32(e, int(off))
		}
	}
	return b.m.slowRead32(b.cpuID, addr)
}

func (b *CPUBus) FetchThumb(addr uint32) uint16 {
	addr &^= 1
	page := addr >> b.pt.shift
	if int(page) < len(b.pt.fetch) {
		if e := b.pt.fetch[page]; e != nil {
			off := addr & b.pt.pageMask
			return readLE16(e, int(off))
		}
	}
	return b.m.slowRead16(b.cpuID, addr)
}

func (b *CPUBus) codeCycles(addr uint32, seq bool) int {
	region := addr >> 24
	if seq {
		return int(b.pt.codeTimingS[region])
	}
	return int(b.pt.codeTimingN[region])
}

func (b *CPUBus) dataCycles(addr uint32, seq bool) int {
	region := addr >> 24
	if seq {
		return int(b.pt.dataTimingS[region])
	}
	return int(b.pt.dataTimingN[region])
}
