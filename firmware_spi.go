// firmware_spi.go - Firmware flash over SPI (READ, RDSR only)

/*
firmware_spi.go - firmware chip

Grounded on _examples/original_source/src/nds/spi.{h,cc} ("twice"): the
firmware chip sits on the same SPI bus as the touchscreen and powerman
devices, selected by SPICNT's device-select field. Only the two
commands real boot code and games actually issue against firmware are
implemented: 0x03 READ (3-byte big-endian address followed by a
streamed response) and 0x05 RDSR (status register, always reports
write-protected since this core never writes firmware back).
*/

package main

type firmwareSPI struct {
	data []byte

	command   uint8
	addr      uint32
	phase     int // 0 = command, 1-3 = address bytes, 4+ = data
}

func newFirmwareSPI(data []byte) *firmwareSPI {
	return &firmwareSPI{data: data}
}

func (f *firmwareSPI) Reset() {
	f.command = 0
	f.addr = 0
	f.phase = 0
}

// beginTransfer resets the byte-phase counter when CS transitions low,
// mirroring the chip-select edge handling backup.go uses for AUXSPI.
func (f *firmwareSPI) beginTransfer() {
	f.phase = 0
	f.command = 0
	f.addr = 0
}

// transferByte exchanges one byte over the firmware SPI bus and returns
// the byte the chip drives back (the value read while the byte being
// written is simultaneously clocked out, as with any full-duplex SPI
// device).
func (f *firmwareSPI) transferByte(out uint8) uint8 {
	switch {
	case f.phase == 0:
		f.command = out
		f.phase++
		return 0
	case f.command == 0x03 && f.phase <= 3:
		f.addr = f.addr<<8 | uint32(out)
		f.phase++
		return 0
	case f.command == 0x03:
		value := readArrChecked(f.data, f.addr, 0xFF)
		f.addr++
		return value
	case f.command == 0x05:
		return 0x00 // status register: never busy, never write-enabled
	default:
		return 0xFF
	}
}
