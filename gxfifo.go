// gxfifo.go - 3D command FIFO (GXFIFO) and command decoding

/*
gxfifo.go - geometry command queue

Grounded on _examples/original_source/src/nds/gpu/3d/gpu3d.{h,cc}
("twice"): GXFIFO is a 260-entry queue of (command, parameter) pairs.
Software pushes one command word (or a packed set of four commands via
GXFIFO's "packed command" register) followed by each command's
parameter words; the queue drains one command per geometry-engine cycle
budget into the matrix/vertex pipeline (video3d_geometry.go).

When the queue depth falls to or below 128 entries the nds9 CPU (if
halted waiting on GXFIFO) is unhalted, and a DMA channel configured for
the GXFIFO trigger is kicked, per spec's DMA mode 7. When it reaches
capacity further writes must stall the CPU until space frees up; that
stall is modeled via the haltGXFIFO bit on the nds9 core.
*/

package main

const (
	gxFIFOCapacity = 260
	gxFIFODrainLow = 128
)

type gxCommand struct {
	cmd   uint8
	param uint32
}

type GXFIFO struct {
	buf   [gxFIFOCapacity]gxCommand
	head  int
	tail  int
	size  int

	packedCmds [4]uint8
	packedCount int
	pendingParams int

	geometry *Geometry3D
	cpu9     *armCPU
	m        *Machine

	directCommand uint8
}

func newGXFIFO(geometry *Geometry3D, cpu9 *armCPU, m *Machine) *GXFIFO {
	g := &GXFIFO{geometry: geometry, cpu9: cpu9, m: m}
	g.packedCount = 4 // not mid-packed-command until writePackedCommand runs
	return g
}

func (g *GXFIFO) Reset() {
	geometry, cpu9, m := g.geometry, g.cpu9, g.m
	*g = GXFIFO{geometry: geometry, cpu9: cpu9, m: m}
	g.packedCount = 4
}

func (g *GXFIFO) push(cmd uint8, param uint32) {
	if g.size >= gxFIFOCapacity {
		g.cpu9.halted |= haltGXFIFO
		return
	}
	g.buf[g.tail] = gxCommand{cmd, param}
	g.tail = (g.tail + 1) % gxFIFOCapacity
	g.size++
	g.drainSome()
}

// writePackedCommand latches GXFIFO's "packed command" register: four
// command bytes that will each consume their documented parameter
// count from subsequent writes to this same register.
func (g *GXFIFO) writePackedCommand(v uint32) {
	g.packedCmds[0] = uint8(v)
	g.packedCmds[1] = uint8(v >> 8)
	g.packedCmds[2] = uint8(v >> 16)
	g.packedCmds[3] = uint8(v >> 24)
	g.packedCount = 0
	g.pendingParams = paramCountFor(g.packedCmds[0])
	if g.pendingParams == 0 {
		g.push(g.packedCmds[0], 0)
		g.advancePacked()
	}
}

func (g *GXFIFO) writeParam(v uint32) {
	if g.packedCount < 4 {
		g.push(g.packedCmds[g.packedCount], v)
		g.pendingParams--
		if g.pendingParams <= 0 {
			g.advancePacked()
		}
		return
	}
	// direct single-command write path (GXSTAT command register variant)
	g.push(g.directCommand, v)
}

func (g *GXFIFO) advancePacked() {
	g.packedCount++
	for g.packedCount < 4 {
		cnt := paramCountFor(g.packedCmds[g.packedCount])
		if cnt == 0 {
			g.push(g.packedCmds[g.packedCount], 0)
			g.packedCount++
			continue
		}
		g.pendingParams = cnt
		return
	}
}

// writeDirectCommand supports the legacy one-command-per-register write
// style some titles use instead of the packed FIFO register.
func (g *GXFIFO) writeDirectCommand(cmd uint8) {
	g.directCommand = cmd
}

func paramCountFor(cmd uint8) int {
	switch cmd {
	case 0x10, 0x11, 0x15, 0x1B, 0x1C, 0x1D, 0x70:
		return 1
	case 0x18, 0x19, 0x1A:
		return 16
	case 0x1E, 0x1F:
		return 4
	case 0x23:
		return 2
	case 0x24, 0x25:
		return 1
	case 0x29, 0x2A, 0x2B:
		return 1
	case 0x30, 0x31, 0x32, 0x33:
		return 1
	case 0x40, 0x41:
		return 0
	case 0x50:
		return 1
	case 0x60:
		return 0
	case 0x72:
		return 1
	default:
		return 0
	}
}

func (g *GXFIFO) drainSome() {
	budget := 16
	for g.size > 0 && budget > 0 {
		cmd := g.buf[g.head]
		g.head = (g.head + 1) % gxFIFOCapacity
		g.size--
		budget--
		g.geometry.execute(cmd.cmd, cmd.param)
	}
	if g.size <= gxFIFODrainLow {
		g.cpu9.halted &^= haltGXFIFO
		g.m.dma[0].onGXFIFOLow()
	}
}

func (g *GXFIFO) readGXSTAT() uint32 {
	var v uint32
	v |= uint32(minInt(g.size, 0x1FF))
	if g.size == 0 {
		v |= 1 << 26
	}
	if g.size < gxFIFODrainLow {
		v |= 1 << 25
	}
	if g.size >= gxFIFOCapacity {
		v |= 1 << 24
	}
	return v
}
