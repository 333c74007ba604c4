package main

import "testing"

func TestParseCartHeaderRejectsShortROM(t *testing.T) {
	_, err := parseCartHeader(make([]byte, 0x100))
	if err == nil {
		t.Fatalf("parseCartHeader accepted a ROM shorter than the header")
	}
}

func TestParseCartHeaderRejectsTruncatedSegment(t *testing.T) {
	rom := buildTestROM()
	writeLE32(rom, 0x2C, uint32(len(rom))) // claim an ARM9 size reaching past EOF
	_, err := parseCartHeader(rom)
	if err == nil {
		t.Fatalf("parseCartHeader accepted a header whose ARM9 segment overruns the ROM")
	}
}

func TestParseCartHeaderReadsFields(t *testing.T) {
	rom := buildTestROM()
	h, err := parseCartHeader(rom)
	if err != nil {
		t.Fatalf("parseCartHeader: %v", err)
	}
	requireU32Equal(t, "Arm9EntryAddr", h.Arm9EntryAddr, testArm9Entry)
	requireU32Equal(t, "Arm9RomOffset", h.Arm9RomOffset, testArm9RomOff)
	requireU32Equal(t, "Arm7RamAddr", h.Arm7RamAddr, testArm7RamAddr)
}
