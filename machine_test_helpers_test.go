package main

// machine_test_helpers_test.go - shared construction rig for Machine-level
// tests, following the teacher's per-subsystem *TestRig idiom
// (cpu_z80_test_helpers_test.go's cpuZ80TestRig).

const (
	testArm9Entry   = 0x02000000
	testArm9RomOff  = 0x200
	testArm9Size    = 0x200
	testArm7RamAddr = 0x02300000
	testArm7RomOff  = 0x400
	testArm7Size    = 0x200

	testArm9Marker = 0x42
	testArm7Marker = 0x99
)

// buildTestROM lays out a minimal header plus the two marker bytes
// scenario A (spec section 8) checks for after boot.
func buildTestROM() []byte {
	rom := make([]byte, 512*1024)
	copy(rom[0x00:0x0C], []byte("TESTGAME"))
	copy(rom[0x0C:0x10], []byte("TEST"))
	rom[0x12] = 0x00 // UnitCode: NDS only

	writeLE32(rom, 0x20, testArm9RomOff)
	writeLE32(rom, 0x24, testArm9Entry)
	writeLE32(rom, 0x28, testArm9Entry)
	writeLE32(rom, 0x2C, testArm9Size)

	writeLE32(rom, 0x30, testArm7RomOff)
	writeLE32(rom, 0x34, testArm7RamAddr)
	writeLE32(rom, 0x38, testArm7RamAddr)
	writeLE32(rom, 0x3C, testArm7Size)

	rom[testArm9RomOff] = testArm9Marker
	rom[testArm7RomOff] = testArm7Marker

	return rom
}

func testConfig() Config {
	return Config{
		Arm9BIOS: make([]byte, 4096),
		Arm7BIOS: make([]byte, 16384),
		Firmware: make([]byte, 262144),
		ROM:      buildTestROM(),
		SaveType: saveEEPROM8K,
		SaveData: make([]byte, saveSizeFor(saveEEPROM8K)),
		Year:     26, Month: 7, Day: 30, Weekday: 4,
		Hour: 12, Minute: 0, Second: 0,
	}
}

func newTestMachine(t testingT) *Machine {
	t.Helper()
	m, err := NewMachine(testConfig())
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

// testingT is the subset of *testing.T this helper needs, so it can be
// called from any _test.go file without an import cycle concern.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}
