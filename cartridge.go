// cartridge.go - Cartridge command engine (ROMCTRL/CARD_COMMAND)

/*
cartridge.go - cart bus protocol

Grounded on _examples/original_source/src/nds/cart/cart.{h,cc} ("twice"):
the cartridge slot is driven by writing an 8-byte big-endian command
into CARD_COMMAND and a block-size/start bit into ROMCTRL; the engine
then streams back 0x100-byte-block response data four bytes at a time,
raising a transfer-complete scheduler event after a fixed delay per
word, and an IRQ (if enabled) once the whole block has been read.

Two protocol phases exist: an initial plain-mode phase (KEY1 not yet
engaged) used only for the dummy/chip-id/header commands issued very
early in boot, and the KEY1-encrypted phase used for everything else,
switched into by the standard 0x3C "enter KEY1 mode" command sequence.
*/

package main

const (
	cartCmdDummy       = 0x9F
	cartCmdReadHeader  = 0x00
	cartCmdReadChipID1 = 0x90
	cartCmdReadChipID2 = 0xB8
	cartCmdEnterKey1   = 0x3C
	cartCmdEnterKey2   = 0x4
	cartCmdReadSecure  = 0x1
	cartCmdReadData    = 0xB7
)

const (
	cartChipID = 0x00001FC2
)

type Cartridge struct {
	rom    []byte
	header *CartHeader
	key1   *key1Cipher
	backup *Backup

	mode int // 0 = plain (KEY1 not engaged), 1 = KEY1

	command [8]byte

	blockBuf   []byte
	blockPos   int
	blockWords int

	romctrl uint32
	transferActive bool

	m *Machine
}

const (
	cartModePlain = iota
	cartModeKey1
)

func newCartridge(m *Machine, rom []byte, header *CartHeader, key1 *key1Cipher, backup *Backup) *Cartridge {
	return &Cartridge{m: m, rom: rom, header: header, key1: key1, backup: backup, mode: cartModePlain}
}

func (c *Cartridge) Reset() {
	c.mode = cartModePlain
	c.blockBuf = nil
	c.blockPos = 0
	c.blockWords = 0
	c.romctrl = 0
	c.transferActive = false
}

func (c *Cartridge) writeCommand(idx int, value uint8) {
	c.command[idx] = value
}

// writeROMCTRL starts a transfer when the start bit (bit 31) is newly
// set: it decodes the 8-byte big-endian command latched via
// writeCommand, builds the response block, and arms the scheduler to
// drain it word by word.
func (c *Cartridge) writeROMCTRL(value uint32) {
	wasActive := c.romctrl&(1<<31) != 0
	c.romctrl = value
	if value&(1<<31) == 0 || wasActive {
		return
	}

	blockSizeField := (value >> 24) & 0x7
	c.blockWords = blockWordsFor(blockSizeField)
	c.blockBuf = c.buildResponse()
	c.blockPos = 0
	c.transferActive = true

	c.m.scheduler.rescheduleNDSEventAfter(evCartAdvanceTransfer, 8, cartAdvanceTransfer)
}

func blockWordsFor(field uint32) int {
	switch field {
	case 0:
		return 0
	case 7:
		return 1 // 4 bytes
	default:
		return (0x100 << (field - 1)) / 4
	}
}

// buildResponse decodes command[0] (the first command byte, which
// selects the whole 8-byte command's meaning) and produces the full
// response buffer for this transfer.
func (c *Cartridge) buildResponse() []byte {
	cmd0 := c.command[0]
	switch {
	case cmd0 == cartCmdDummy:
		buf := make([]byte, c.blockWords*4)
		for i := range buf {
			buf[i] = 0xFF
		}
		return buf
	case cmd0 == cartCmdReadHeader:
		buf := make([]byte, c.blockWords*4)
		n := copy(buf, c.rom[:minInt(len(c.rom), len(buf))])
		for ; n < len(buf); n++ {
			buf[n] = 0
		}
		return buf
	case cmd0 == cartCmdReadChipID1 || cmd0 == cartCmdReadChipID2:
		buf := make([]byte, 4)
		writeLE32(buf, 0, cartChipID)
		return buf
	case cmd0 == cartCmdEnterKey1:
		c.mode = cartModeKey1
		return nil
	case (c.command[0]>>4) == 0xA: // 0xA0-0xAF: enter KEY2 mode (streaming data scramble, not modeled further)
		return nil
	case cmd0 == 0x2 && c.mode == cartModeKey1:
		return c.readSecureBlock()
	case cmd0 == cartCmdReadData:
		addr := readBE24(c.command[1:4])
		buf := make([]byte, c.blockWords*4)
		n := copy(buf, c.rom[addrOrZero(addr, len(c.rom)):])
		_ = n
		return buf
	default:
		buf := make([]byte, c.blockWords*4)
		return buf
	}
}

func addrOrZero(addr uint32, max int) int {
	if int(addr) >= max {
		return max
	}
	return int(addr)
}

func (c *Cartridge) readSecureBlock() []byte {
	addr := readBE24(c.command[1:4]) * 0x1000
	buf := make([]byte, c.blockWords*4)
	if int(addr)+len(buf) <= len(c.rom) {
		copy(buf, c.rom[addr:int(addr)+len(buf)])
		for off := 0; off+8 <= len(buf); off += 8 {
			c.key1.decryptBlock(buf, off)
		}
	}
	return buf
}

func readBE24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// cartAdvanceTransfer drains up to one 4-byte word of the active
// transfer per call and re-arms itself, then fires the completion IRQ
// and clears ROMCTRL's busy bit once the block is exhausted. Also
// triggers any DMA channel configured for the cartridge-slot trigger.
func cartAdvanceTransfer(m *Machine) {
	cart := m.cart
	if !cart.transferActive {
		return
	}
	if cart.blockPos+4 <= len(cart.blockBuf) {
		word := readLE32(cart.blockBuf, cart.blockPos)
		cart.blockPos += 4
		m.cartDataOut = word
		m.requestCartIRQIfEnabled()
		m.dma[0].onCartridgeRead()
		m.dma[1].onCartridgeRead()
	}
	if cart.blockPos >= len(cart.blockBuf) {
		cart.transferActive = false
		cart.romctrl &^= 1 << 31
		cart.romctrl &^= 1 << 23 // data-word-ready flag cleared on completion
		return
	}
	m.scheduler.rescheduleNDSEventAfter(evCartAdvanceTransfer, 8, cartAdvanceTransfer)
}

// readData32 returns the most recently latched response word, for the
// CARD_DATA register's read side.
func (c *Cartridge) readData32() uint32 {
	return c.m.cartDataOut
}
