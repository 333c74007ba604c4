// machine.go - Console assembly, boot, and the per-VBlank run loop

/*
machine.go - the Machine arena

Grounded on _examples/original_source/src/nds/nds.cc ("twice") for the
overall construction order, direct-boot register setup, and the
double-clocked interleaved run loop; on the teacher's top-level Machine
type for the "one arena struct owns every component, components hold
only the narrow capability they need" shape described in spec section 9.

NewMachine performs every allocation and wiring step once, up front;
nothing after construction allocates. bootDirect reproduces the direct
(no-BIOS) boot path real multi-boot and most emulators use: it skips
BIOS execution entirely and places both cores at their cartridge-
supplied entry points with the register state the reference's
nds_direct_boot establishes, rather than interpreting the console's
actual boot ROM.
*/

package main

import "fmt"

// IRQ bit numbers, per the fixed NDS interrupt controller layout.
const (
	irqVBlank   = 0
	irqHBlank   = 1
	irqVCount   = 2
	irqTimer0   = 3
	irqTimer1   = 4
	irqTimer2   = 5
	irqTimer3   = 6
	irqDMA0     = 8
	irqDMA1     = 9
	irqDMA2     = 10
	irqDMA3     = 11
	irqIPCSync  = 16
	irqIPCSendEmpty    = 17
	irqIPCRecvNotEmpty = 18
	irqCartTransfer    = 19
	irqGXFIFO          = 21
)

// Config is every host-supplied input NewMachine needs: the four
// system-file blobs, the save image and its declared type, and the
// optional audio/tracing/initial-clock knobs spec section 6 describes
// as the embedding application's responsibility.
type Config struct {
	Arm9BIOS []byte
	Arm7BIOS []byte
	Firmware []byte
	ROM      []byte

	SaveType int
	SaveData []byte

	Use16BitAudio    bool
	InterpolateAudio bool

	Year, Month, Day, Weekday int
	Hour, Minute, Second      int

	Trace bool
}

func saveSizeFor(saveType int) int {
	switch saveType {
	case saveEEPROM512B:
		return 512
	case saveEEPROM8K:
		return 8192
	case saveEEPROM64K:
		return 65536
	case saveEEPROM128K:
		return 131072
	case saveFlash256K:
		return 262144
	case saveFlash512K:
		return 524288
	case saveFlash1M:
		return 1048576
	case saveFlash8M:
		return 8388608
	default:
		return 0
	}
}

// validate checks every system-file and cartridge size constraint from
// spec section 6 before a single byte is allocated, so construction
// either fully succeeds or returns a ConfigError with nothing half-built.
func (cfg *Config) validate() error {
	if len(cfg.Arm9BIOS) != 4096 {
		return newConfigError("arm9 bios", "must be exactly 4096 bytes")
	}
	if len(cfg.Arm7BIOS) != 16384 {
		return newConfigError("arm7 bios", "must be exactly 16384 bytes")
	}
	if len(cfg.Firmware) != 262144 {
		return newConfigError("firmware", "must be exactly 262144 bytes")
	}
	if len(cfg.ROM) < 0x160 || len(cfg.ROM) > 512*1024*1024 {
		return newConfigError("rom", "must be between 0x160 bytes and 512 MiB")
	}
	want := saveSizeFor(cfg.SaveType)
	if want != 0 && len(cfg.SaveData) != want {
		return newConfigError("save data", fmt.Sprintf("save type requires exactly %d bytes", want))
	}
	return nil
}

// Machine is the console: every component plus the handful of registers
// (DISPSTAT, VCOUNT, POWCNT1, ...) too small or too cross-cutting to own
// a file of their own. Nothing outside this package ever reaches into a
// component's internals directly; everything flows through ioRead/
// ioWrite or the methods below.
type Machine struct {
	cfg Config

	mainRAM    []byte
	sharedWRAM []byte
	arm7WRAM   []byte
	wramCnt    uint8

	arm9BIOS []byte
	arm7BIOS []byte

	oamA, oamB, palette []byte

	vram *VRAM

	pageTables9, pageTables7 *PageTables

	cpu [2]*armCPU

	scheduler *Scheduler

	dma    [2]*DMAController
	timers [2]*TimerController
	ipc    *IPCController
	math   *MathCoprocessor
	rtc    *rtcState

	firmware *firmwareSPI
	cart     *Cartridge

	cartDataOut uint32

	engineA, engineB *Video2DEngine
	geometry         *Geometry3D
	gxfifo           *GXFIFO
	raster           *raster3DFrame

	dispstat [2]uint16
	vcount   int

	spiCnt      uint16
	spiDataLast uint8
	exMemCnt    uint16
	powCnt1     uint16
	keyInput    uint16

	// vblankReached is RunUntilVBlank's own per-call loop sentinel, reset
	// at the top of every call; it carries no state across calls.
	vblankReached bool

	// poweredDown latches true once POWCNT1 has been written to 0 while
	// both cores sit in STOP halt, mirroring the real SHUTDOWN signal: it
	// never clears itself, since on real hardware nothing short of a
	// physical reset restarts a console in this state.
	poweredDown bool

	frameTop    [screenWidth * screenHeight]bgr555
	frameBottom [screenWidth * screenHeight]bgr555
}

// NewMachine allocates and wires every component, maps the fast page
// tables, and performs a direct boot straight into the cartridge's
// ARM9/ARM7 entry points. The returned Machine is ready for
// RunUntilVBlank to be called in a loop.
func NewMachine(cfg Config) (*Machine, error) {
	traceEnabled = cfg.Trace

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	header, err := parseCartHeader(cfg.ROM)
	if err != nil {
		return nil, err
	}

	// The whole 2 KiB palette RAM is one backing array (mmio.go's slow
	// path indexes it with a flat addr&0x7FF), split into four fixed
	// 512-byte quadrants per the real memory map: BG then OBJ for each
	// engine.
	palette := make([]byte, 2048)

	m := &Machine{
		cfg:        cfg,
		mainRAM:    make([]byte, mainRAMSize),
		sharedWRAM: make([]byte, 0x8000),
		arm7WRAM:   make([]byte, 0x10000),
		arm9BIOS:   cfg.Arm9BIOS,
		arm7BIOS:   cfg.Arm7BIOS,
		oamA:       make([]byte, 0x400),
		oamB:       make([]byte, 0x400),
		palette:    palette,
	}

	m.vram = newVRAM()

	cpu9 := newNDS9(m)
	cpu7 := newNDS7(m)
	m.cpu[0] = cpu9
	m.cpu[1] = cpu7

	m.scheduler = newScheduler()
	m.dma[0] = newDMAController(0, m)
	m.dma[1] = newDMAController(1, m)
	m.timers[0] = newTimerController(0, m)
	m.timers[1] = newTimerController(1, m)
	m.ipc = newIPCController(m)
	m.math = newMathCoprocessor()

	m.rtc = newRTC()
	m.rtc.setDateTime(cfg.Year, cfg.Month, cfg.Day, cfg.Weekday, cfg.Hour, cfg.Minute, cfg.Second)

	m.firmware = newFirmwareSPI(cfg.Firmware)

	if len(cfg.Arm7BIOS) < 0x30+0x1048 {
		return nil, newConfigError("arm7 bios", "too short to carry the key-1 table")
	}
	key1 := newKey1Cipher(cfg.Arm7BIOS[0x30 : 0x30+0x1048])

	backup := newBackup(cfg.SaveType, cfg.SaveData)
	m.cart = newCartridge(m, cfg.ROM, header, key1, backup)

	m.engineA = newVideo2DEngine(true, m.vram, m.oamA, palette[0x000:0x200], palette[0x200:0x400])
	m.engineB = newVideo2DEngine(false, m.vram, m.oamB, palette[0x400:0x600], palette[0x600:0x800])

	m.geometry = newGeometry3D(m)
	m.gxfifo = newGXFIFO(m.geometry, cpu9, m)
	m.raster = newRaster3DFrame()

	m.mapBusRegions()
	m.bootDirect(header)

	m.powCnt1 = 0x8003
	m.keyInput = 0x3FF

	m.scheduler.scheduleNDSEvent(evHBlankStart, 1536, (*Machine).onHBlankStart)
	m.scheduler.scheduleNDSEvent(evHBlankEnd, 2130, (*Machine).onHBlankEnd)

	return m, nil
}

// mapBusRegions installs the fast page-table entries both cores need
// for their hot paths: main RAM (mirrored over its 16 MiB window) and
// each core's own BIOS. Shared WRAM, VRAM/OAM/palette, and cartridge
// ROM are intentionally left unmapped here: WRAM banking can change at
// runtime (mmio.go's wramMap already handles every case on the slow
// path), VRAM/palette/OAM require the bank OR-merge mmio.go performs,
// and slot-1 cartridge access on real hardware is never a memory
// window at all, only the ROMCTRL/CARD_COMMAND protocol cartridge.go
// implements. cp15.rebuild is called last so TCM windows layer on top
// of the regions installed here, per cp15.go's own contract.
func (m *Machine) mapBusRegions() {
	pt9, pt7 := m.pageTables9, m.pageTables7

	pt9.mapRegion(0x02000000, 0x01000000, m.mainRAM, true)
	pt9.setTiming(0x02000000, 0x02FFFFFF, 8, 1, 8, 1)

	pt7.mapRegion(0x02000000, 0x01000000, m.mainRAM, true)
	pt7.setTiming(0x02000000, 0x02FFFFFF, 8, 1, 8, 1)

	pt9.mapFetch(0xFFFF0000, 0x00010000, m.arm9BIOS)
	pt9.mapLoad(0xFFFF0000, 0x00010000, m.arm9BIOS)
	pt9.setTiming(0xFFFF0000, 0xFFFFFFFF, 1, 1, 1, 1)

	pt7.mapFetch(0x00000000, 0x00004000, m.arm7BIOS)
	pt7.mapLoad(0x00000000, 0x00004000, m.arm7BIOS)
	pt7.setTiming(0x00000000, 0x00FFFFFF, 1, 1, 1, 1)

	if m.cpu[0].cp15 != nil {
		m.cpu[0].cp15.rebuild()
	}
}

// bootDirect places both cores at the cartridge's entry points with the
// register state real direct-boot loaders (devkitPro's default
// crt0, and every flashcart's loader) establish, bypassing BIOS
// execution entirely. Values not set here (soundbias, per-device SPI
// state) keep their zero/reset values, matching the reference's own
// documented TODO for direct boot's incompleteness.
func (m *Machine) bootDirect(header *CartHeader) {
	m.wramCnt = 0x03
	m.cpu[0].postflg = 0x01
	m.cpu[1].postflg = 0x01

	chipID := m.directBootChipID()
	writeLE32(m.mainRAM, 0x3FF800, chipID)
	writeLE32(m.mainRAM, 0x3FF804, chipID)
	writeLE16(m.mainRAM, 0x3FF850, 0x5835)
	writeLE32(m.mainRAM, 0x3FF880, 0x00000007)
	writeLE32(m.mainRAM, 0x3FF884, 0x00000006)
	writeLE32(m.mainRAM, 0x3FFC00, chipID)
	writeLE32(m.mainRAM, 0x3FFC04, chipID)
	writeLE16(m.mainRAM, 0x3FFC10, 0x5835)
	writeLE16(m.mainRAM, 0x3FFC40, 0x0001)

	if len(m.cfg.Firmware) >= 0x3FF80+0x70 {
		// The user-settings block lives near the end of the firmware
		// image; devkitPro's crt0 and most retail titles read it back out
		// of main RAM at this fixed offset rather than re-querying SPI.
		copy(m.mainRAM[0x3FFC80:0x3FFC80+0x70], m.cfg.Firmware[len(m.cfg.Firmware)-0x70:])
	}

	headerCopyLen := minInt(0x170, len(m.cart.rom))
	copy(m.mainRAM[0x3FFE00:0x3FFE00+headerCopyLen], m.cart.rom[:headerCopyLen])

	m.copyLoadSegment(header.Arm9RomOffset, header.Arm9RamAddr, header.Arm9Size)
	m.copyLoadSegment(header.Arm7RomOffset, header.Arm7RamAddr, header.Arm7Size)

	if cp15 := m.cpu[0].cp15; cp15 != nil {
		cp15.writeReg(1, 0, 0, 0x00012078)
		cp15.writeReg(6, 0, 0, 0x0300000A)
		cp15.writeReg(9, 0, 1, 0x00000020)
	}

	entry9 := header.Arm9EntryAddr &^ 3
	entry7 := header.Arm7EntryAddr &^ 3

	// Direct boot hands control to the game in System mode (the usr/sys
	// register bank) with IRQ masked until the game's own init code
	// enables it, exactly as devkitPro's crt0 leaves the core; the
	// IRQ/SVC banks are pre-seeded so the first exception of either kind
	// has a valid stack before the game ever sets one up itself.
	cpu9 := m.cpu[0]
	cpu9.cpsr = modeSYS | bit(cpsrI)
	cpu9.bankedR13[modeBank(modeIRQ)] = 0x03003F80
	cpu9.bankedR13[modeBank(modeSVC)] = 0x03003FC0
	cpu9.r[12] = entry9
	cpu9.r[13] = 0x03002F7C
	cpu9.r[14] = entry9
	cpu9.r[15] = entry9
	cpu9.pipelineFull = false

	cpu7 := m.cpu[1]
	cpu7.cpsr = modeSYS | bit(cpsrI)
	cpu7.bankedR13[modeBank(modeIRQ)] = 0x0380FF80
	cpu7.bankedR13[modeBank(modeSVC)] = 0x0380FFC0
	cpu7.r[12] = entry7
	cpu7.r[13] = 0x0380FD80
	cpu7.r[14] = entry7
	cpu7.r[15] = entry7
	cpu7.pipelineFull = false
}

// copyLoadSegment performs the raw ROM-to-RAM copy a direct-boot loader
// does for one core's executable segment. Real direct-boot never runs
// the cartridge protocol or KEY1 decryption for this copy: both are
// BIOS-only concerns, and homebrew/most retail images keep these
// segments in plain form outside the secure area.
func (m *Machine) copyLoadSegment(romOffset, ramAddr, size uint32) {
	rom := m.cart.rom
	if uint64(romOffset)+uint64(size) > uint64(len(rom)) {
		size = uint32(len(rom)) - romOffset
	}
	for i := uint32(0); i < size; i++ {
		m.busWrite8(0, ramAddr+i, rom[romOffset+i])
	}
}

func (m *Machine) busWrite8(cpuID int, addr uint32, v byte) {
	m.slowWrite8(cpuID, addr, v)
}

// directBootChipID reproduces make_chip_id's cartridge-size-derived
// fake SPI chip ID real direct-boot loaders stash in main RAM, since
// some titles sanity-check it even when booted without a real BIOS
// handshake.
func (m *Machine) directBootChipID() uint32 {
	size := len(m.cart.rom)
	var byte1 byte
	if size>>20 <= 0x80 {
		byte1 = byte(size >> 20)
		if byte1 != 0 {
			byte1--
		}
	} else {
		byte1 = byte(0x100 - (size >> 28))
	}
	return uint32(0xC2) | uint32(byte1)<<8
}

func (m *Machine) onHBlankStart() {
	m.dispstat[0] |= 1 << 1
	m.dispstat[1] |= 1 << 1
	if bitSet(uint32(m.dispstat[0]), 4) {
		m.requestIRQFor(0, irqHBlank)
	}
	if bitSet(uint32(m.dispstat[1]), 4) {
		m.requestIRQFor(1, irqHBlank)
	}
	m.dma[0].onHBlank()
	m.dma[1].onHBlank()
	m.scheduler.rescheduleNDSEventAfter(evHBlankEnd, 594, (*Machine).onHBlankEnd)
}

func (m *Machine) onHBlankEnd() {
	m.dispstat[0] &^= 1 << 1
	m.dispstat[1] &^= 1 << 1

	m.vcount++
	if m.vcount >= 263 {
		m.vcount = 0
		m.dispstat[0] &^= 1
		m.dispstat[1] &^= 1
	}

	m.checkVCount()
	m.renderOrEnterVBlank()

	m.scheduler.rescheduleNDSEventAfter(evHBlankStart, 1536, (*Machine).onHBlankStart)
}

func (m *Machine) checkVCount() {
	for cpuID := 0; cpuID < 2; cpuID++ {
		target := (uint32(m.dispstat[cpuID])>>8)&0xFF | (uint32(m.dispstat[cpuID])>>7&1)<<8
		matched := uint32(m.vcount) == target
		if matched {
			m.dispstat[cpuID] |= 1 << 2
			if bitSet(uint32(m.dispstat[cpuID]), 5) {
				m.requestIRQFor(cpuID, irqVCount)
			}
		} else {
			m.dispstat[cpuID] &^= 1 << 2
		}
	}
}

// renderOrEnterVBlank renders the just-finished scanline when still in
// the visible area, or performs end-of-frame work (3D rasterization,
// VBlank DMA/IRQ, shutdown latch) on line 192.
func (m *Machine) renderOrEnterVBlank() {
	line := m.vcount
	if line < screenHeight {
		m.dma[0].onScanlineStart()
		m.renderScanlineToFrame(line)
		return
	}
	if line != screenHeight {
		return
	}

	m.geometry.RasterizeFrame(m.raster, m.vram, nil)

	for cpuID := 0; cpuID < 2; cpuID++ {
		m.dispstat[cpuID] |= 1
		if bitSet(uint32(m.dispstat[cpuID]), 3) {
			m.requestIRQFor(cpuID, irqVBlank)
		}
	}
	m.dma[0].onVBlank()
	m.dma[1].onVBlank()
	m.vblankReached = true
}

// updateShutdownLatch checks the real SHUTDOWN condition (POWCNT1
// written to 0 while both cores are in STOP halt) and latches
// poweredDown permanently once it fires; called after every POWCNT1 or
// HALTCNT write, since either one can complete the condition.
func (m *Machine) updateShutdownLatch() {
	if m.poweredDown {
		return
	}
	bothStopped := m.cpu[0].halted&haltStop != 0 && m.cpu[1].halted&haltStop != 0
	if m.powCnt1 == 0 && bothStopped {
		m.poweredDown = true
	}
}

// renderScanlineToFrame draws one visible line from each 2D engine into
// the combined top/bottom output buffers, compositing engine A's 3D
// layer in afterward. POWCNT1 bit 15 swaps which physical screen each
// engine drives; this core always presents engine A's output first in
// frameTop/frameBottom, matching the common no-swap convention, and
// honors the swap bit by exchanging the two destination slices.
func (m *Machine) renderScanlineToFrame(line int) {
	lineA := m.engineA.RenderScanline(line)
	lineB := m.engineB.RenderScanline(line)
	m.compositeGeometry(line, &lineA)

	top, bottom := &m.frameTop, &m.frameBottom
	if bitSet(uint32(m.powCnt1), 15) {
		top, bottom = bottom, top
	}
	base := line * screenWidth
	for x := 0; x < screenWidth; x++ {
		top[base+x] = lineA[x]
		bottom[base+x] = lineB[x]
	}
}

// compositeGeometry overlays the rasterized 3D scene onto engine A's
// BG0 slot for one scanline. Real hardware interleaves the 3D layer
// into BG0's priority slot pixel-for-pixel; RenderScanline already
// returns a fully composited 2D result with no per-pixel layer tag to
// splice against, so this approximates the common case (3D drawn as
// the base scene, 2D sprites/BG layered over empty backdrop pixels) by
// only painting a 3D pixel where the 2D composite left the backdrop
// color untouched. Titles that rely on a 2D BG element acting as a
// hole punched through an opaque 3D backdrop will render slightly
// differently; recorded as an open decision in DESIGN.md.
func (m *Machine) compositeGeometry(line int, lineA *[screenWidth]bgr555) {
	if !m.engineA.bgEnabled(0) {
		return
	}
	backdrop := m.engineA.backdropColor()
	base := line * screenWidth
	for x := 0; x < screenWidth; x++ {
		if lineA[x] != backdrop {
			continue
		}
		if m.raster.opaque[base+x] {
			lineA[x] = m.raster.color[base+x]
		}
	}
}

// requestDMAIRQ, requestTimerIRQ, requestIPCIRQ, requestIPCSyncIRQ, and
// requestCartIRQIfEnabled are the five IRQ-raising entry points every
// other component calls into; each resolves which CPU(s) the bit
// belongs to and defers to requestIRQFor so IME/IE/IF bookkeeping lives
// in exactly one place.
func (m *Machine) requestDMAIRQ(cpuID, ch int) {
	m.requestIRQFor(cpuID, uint(irqDMA0+ch))
}

func (m *Machine) requestTimerIRQ(cpuID, ch int) {
	m.requestIRQFor(cpuID, uint(irqTimer0+ch))
}

// requestIPCSendEmptyIRQ, requestIPCRecvIRQ, and requestIPCSyncIRQ are
// only ever called by ipc.go after it has already checked the relevant
// enable bit (IPCFIFOCNT's send-empty/recv-not-empty bits, IPCSYNC's
// remote-enable bit), so each simply raises its flag for the target CPU.
func (m *Machine) requestIPCSendEmptyIRQ(cpuID int) {
	m.requestIRQFor(cpuID, irqIPCSendEmpty)
}

func (m *Machine) requestIPCRecvIRQ(cpuID int) {
	m.requestIRQFor(cpuID, irqIPCRecvNotEmpty)
}

func (m *Machine) requestIPCSyncIRQ(cpuID int) {
	m.requestIRQFor(cpuID, irqIPCSync)
}

// requestCartIRQIfEnabled is called unconditionally by cartridge.go at
// the end of every transfer; ROMCTRL bit 14 ("IRQ on transfer complete")
// is the gate, mirroring the real register's documented behavior.
func (m *Machine) requestCartIRQIfEnabled() {
	if bitSet(m.cart.romctrl, 14) {
		m.requestIRQFor(0, irqCartTransfer)
		m.requestIRQFor(1, irqCartTransfer)
	}
}

func (m *Machine) requestIRQFor(cpuID int, bitNum uint) {
	m.cpu[cpuID].requestIRQ(bitNum)
}

// RunUntilVBlank drives both cores and the scheduler forward until the
// start of the next VBlank, or until a guest-initiated shutdown
// latches (see updateShutdownLatch) and there is nothing left to run,
// following the reference's doubled-clock interleave: the nds9 always
// runs to the next scheduled event time, and the nds7 is kept running
// in a tight sub-loop until its own (halved) clock catches up, matching
// spec section 5's "nds7 never gets ahead of nds9_clock/2" invariant.
func (m *Machine) RunUntilVBlank() {
	m.vblankReached = false
	for !m.vblankReached && !m.poweredDown {
		m.scheduler.now = m.cpu[0].clock
		m.cpu[0].targetClock = m.scheduler.nextEventTime()
		m.cpu[0].Run()
		m.runCPUEvents(0)

		target7 := m.cpu[0].clock >> 1
		for m.cpu[1].clock < target7 {
			m.cpu[1].targetClock = target7
			m.cpu[1].Run()
			m.runCPUEvents(1)
		}

		m.scheduler.now = m.cpu[0].clock
		m.runNDSEvents()
	}
}

// SaveDirtyInterval reports the [start,end) byte range of save data
// written since the last call, for the host to persist; it returns
// ok=false when nothing changed, per spec section 6's flush contract.
func (m *Machine) SaveDirtyInterval() (start, end int, ok bool) {
	return m.cart.backup.TakeDirtyInterval()
}

// FlushSave copies the live save-memory contents the host can persist
// verbatim; it does not clear the dirty interval, since a host may call
// this for a full snapshot independent of SaveDirtyInterval's polling.
func (m *Machine) FlushSave() []byte {
	return m.cart.backup.data
}

// SetKeys latches the 12-button input state (A/B/Select/Start/Right/
// Left/Up/Down/R/L/X/Y) the KEYINPUT register reports, per spec
// section 6's execution-entry input descriptor. Bits follow KEYINPUT's
// own active-low convention: a set bit in pressed means "released".
func (m *Machine) SetKeys(pressed uint16) {
	m.keyInput = ^pressed & 0x3FF
}

// FrameBuffers returns the top and bottom screen's BGR555 scanout
// buffers for the frame RunUntilVBlank just completed.
func (m *Machine) FrameBuffers() (top, bottom []bgr555) {
	return m.frameTop[:], m.frameBottom[:]
}

// ShutdownRequested reports the real SHUTDOWN output signal: true once
// the guest has written POWCNT1 to 0 with both cores parked in STOP
// halt. The host should stop calling RunUntilVBlank and persist the
// save data once this goes true; it never reports false again for the
// lifetime of this Machine.
func (m *Machine) ShutdownRequested() bool {
	return m.poweredDown
}
