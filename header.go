// header.go - Cartridge ROM header parsing

/*
header.go - ROM header

Grounded on _examples/original_source/src/nds/cart/cart.h ("twice") and
the header field layout documented alongside it: a fixed 0x170-byte
header carrying the title/game-code/maker-code strings, the ARM9/ARM7
load addresses, entry points, and binary offsets/sizes, followed by the
icon/title offset and a handful of flags this core surfaces read-only
for the boot path in machine.go.
*/

package main

type CartHeader struct {
	GameTitle [12]byte
	GameCode  [4]byte
	MakerCode [2]byte

	Arm9RomOffset  uint32
	Arm9EntryAddr  uint32
	Arm9RamAddr    uint32
	Arm9Size       uint32

	Arm7RomOffset uint32
	Arm7EntryAddr uint32
	Arm7RamAddr   uint32
	Arm7Size      uint32

	IconTitleOffset uint32

	SecureAreaCRC  uint16
	SecureAreaDelay uint16

	RomSize uint32

	UnitCode uint8
}

func (h *CartHeader) gameCode() uint32 {
	return readLE32(h.GameCode[:], 0)
}

// parseCartHeader reads the fixed-layout fields from the first 0x170
// bytes of a ROM image. Fields the core does not act on (region codes,
// save-type hints beyond what config.go's SaveType override provides,
// digital-signature area) are intentionally not modeled, per spec's
// non-goals around anti-piracy and signature verification.
func parseCartHeader(rom []byte) (*CartHeader, error) {
	if len(rom) < 0x170 {
		return nil, newConfigError("cartridge", "rom image shorter than header size")
	}
	h := &CartHeader{}
	copy(h.GameTitle[:], rom[0x00:0x0C])
	copy(h.GameCode[:], rom[0x0C:0x10])
	copy(h.MakerCode[:], rom[0x10:0x12])
	h.UnitCode = rom[0x12]

	h.Arm9RomOffset = readLE32(rom, 0x20)
	h.Arm9EntryAddr = readLE32(rom, 0x24)
	h.Arm9RamAddr = readLE32(rom, 0x28)
	h.Arm9Size = readLE32(rom, 0x2C)

	h.Arm7RomOffset = readLE32(rom, 0x30)
	h.Arm7EntryAddr = readLE32(rom, 0x34)
	h.Arm7RamAddr = readLE32(rom, 0x38)
	h.Arm7Size = readLE32(rom, 0x3C)

	h.IconTitleOffset = readLE32(rom, 0x68)
	h.SecureAreaCRC = uint16(readLE32(rom, 0x6C) & 0xFFFF)
	h.SecureAreaDelay = uint16(readLE32(rom, 0x6E) & 0xFFFF)

	h.RomSize = readLE32(rom, 0x80)

	if h.Arm9RomOffset+h.Arm9Size > uint32(len(rom)) || h.Arm7RomOffset+h.Arm7Size > uint32(len(rom)) {
		return nil, newConfigError("cartridge", "rom image truncated relative to header sizes")
	}
	return h, nil
}
