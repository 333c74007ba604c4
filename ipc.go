// ipc.go - Inter-processor FIFO (one 16-word queue per direction)

/*
ipc.go - IPC FIFO and IPCSYNC

Grounded on _examples/original_source/src/nds/ipc.{h,cc} ("twice"): each
CPU owns a 16-word send FIFO that the other CPU reads from; IPCFIFOCNT
holds the error/enable/send-empty-IRQ/recv-not-empty-IRQ bits, and
IPCSYNC carries the 4-bit handshake value each side writes for the other
to read, plus an optional remote-IRQ-on-write trigger.
*/

package main

const ipcFIFOCapacity = 16

type ipcFIFO struct {
	data  [ipcFIFOCapacity]uint32
	read  int
	write int
	size  int
	err   bool // set when a recv-from-empty or send-to-full is attempted
	sendIRQOnEmpty bool
	recvIRQOnNotEmpty bool
	enabled bool
}

type IPCController struct {
	fifo [2]ipcFIFO // indexed by the sending CPU
	sync [2]uint32  // IPCSYNC value as seen from cpuID's perspective
	m    *Machine
}

func newIPCController(m *Machine) *IPCController {
	return &IPCController{m: m}
}

func (ic *IPCController) Reset() {
	*ic = IPCController{m: ic.m}
}

// send pushes a word onto cpuID's own outgoing FIFO.
func (ic *IPCController) send(cpuID int, value uint32) {
	f := &ic.fifo[cpuID]
	if !f.enabled {
		return
	}
	if f.size >= ipcFIFOCapacity {
		f.err = true
		return
	}
	wasEmpty := f.size == 0
	f.data[f.write] = value
	f.write = (f.write + 1) % ipcFIFOCapacity
	f.size++
	if wasEmpty {
		other := 1 - cpuID
		if f.recvIRQOnNotEmpty {
			ic.m.requestIPCRecvIRQ(other)
		}
	}
}

// recv pops a word from the OTHER CPU's outgoing FIFO (a CPU's "recv"
// reads what the other side sent).
func (ic *IPCController) recv(cpuID int) uint32 {
	f := &ic.fifo[1-cpuID]
	if f.size == 0 {
		f.err = true
		if f.write == 0 {
			return 0
		}
		return f.data[(f.write-1+ipcFIFOCapacity)%ipcFIFOCapacity]
	}
	value := f.data[f.read]
	f.read = (f.read + 1) % ipcFIFOCapacity
	f.size--
	if f.size == 0 && f.sendIRQOnEmpty {
		ic.m.requestIPCSendEmptyIRQ(1 - cpuID)
	}
	return value
}

func (ic *IPCController) writeCnt(cpuID int, value uint16) {
	f := &ic.fifo[cpuID]
	f.sendIRQOnEmpty = bitSet(uint32(value), 2)
	other := &ic.fifo[1-cpuID]
	other.recvIRQOnNotEmpty = bitSet(uint32(value), 10)
	if bitSet(uint32(value), 14) {
		f.err = false
	}
	wasEnabled := f.enabled
	f.enabled = bitSet(uint32(value), 15)
	if f.enabled && !wasEnabled {
		// enabling does not clear the queue; only an explicit FIFO-clear
		// bit (3) does, per the reference.
	}
	if bitSet(uint32(value), 3) {
		f.read, f.write, f.size = 0, 0, 0
	}
}

func (ic *IPCController) readCnt(cpuID int) uint16 {
	f := &ic.fifo[cpuID]
	other := &ic.fifo[1-cpuID]
	var v uint16
	if f.size == 0 {
		v |= 1 << 0
	}
	if f.size == ipcFIFOCapacity {
		v |= 1 << 1
	}
	if f.sendIRQOnEmpty {
		v |= 1 << 2
	}
	if other.size == 0 {
		v |= 1 << 8
	}
	if other.size == ipcFIFOCapacity {
		v |= 1 << 9
	}
	if other.recvIRQOnNotEmpty {
		v |= 1 << 10
	}
	if f.err {
		v |= 1 << 14
	}
	if f.enabled {
		v |= 1 << 15
	}
	return v
}

// writeSync writes the 4-bit handshake value into cpuID's own IPCSYNC
// register (visible to the other CPU as its "input" field) and
// optionally raises the remote's IPC_REMOTE IRQ.
func (ic *IPCController) writeSync(cpuID int, value uint16) {
	ic.sync[cpuID] = uint32(value) & 0x4F00
	if bitSet(uint32(value), 13) && bitSet(ic.sync[1-cpuID], 14) {
		ic.m.requestIPCSyncIRQ(1 - cpuID)
	}
}

func (ic *IPCController) readSync(cpuID int) uint16 {
	// The low nibble mirrors the OTHER cpu's output nibble (bits 8-11 of
	// their own write); bits 8-14 are this cpu's own enable/output bits.
	otherOutput := (ic.sync[1-cpuID] >> 8) & 0xF
	return uint16(otherOutput | (ic.sync[cpuID] & 0x4F00))
}
