// main.go - Command-line front end for the emulator core

/*
main.go - headless runner

Loads the four system files and a ROM from argv, constructs a Machine,
and pumps RunUntilVBlank in a loop, writing the periodic save-dirty
interval out to the .sav file next to the ROM. No video/audio backend
is wired up here: this binary exists to exercise the core end to end
and as a harness for manual testing, not as the project's GUI frontend.
*/

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func usage() {
	fmt.Println("Usage: ndscore <arm9bios> <arm7bios> <firmware> <rom> [frames]")
}

func main() {
	if len(os.Args) < 5 {
		usage()
		os.Exit(1)
	}

	arm9bios := mustReadFile(os.Args[1])
	arm7bios := mustReadFile(os.Args[2])
	firmware := mustReadFile(os.Args[3])
	romPath := os.Args[4]
	rom := mustReadFile(romPath)

	frames := 60
	if len(os.Args) > 5 {
		if n, err := fmt.Sscanf(os.Args[5], "%d", &frames); err != nil || n != 1 {
			fmt.Printf("invalid frame count %q\n", os.Args[5])
			os.Exit(1)
		}
	}

	savePath := strings.TrimSuffix(romPath, filepath.Ext(romPath)) + ".sav"
	saveData, saveType := loadSave(savePath)

	now := time.Now()
	cfg := Config{
		Arm9BIOS: arm9bios,
		Arm7BIOS: arm7bios,
		Firmware: firmware,
		ROM:      rom,
		SaveType: saveType,
		SaveData: saveData,
		Year:     now.Year() - 2000,
		Month:    int(now.Month()),
		Day:      now.Day(),
		Weekday:  int(now.Weekday()),
		Hour:     now.Hour(),
		Minute:   now.Minute(),
		Second:   now.Second(),
	}

	m, err := NewMachine(cfg)
	if err != nil {
		fmt.Printf("failed to start machine: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < frames && !m.ShutdownRequested(); i++ {
		m.RunUntilVBlank()
	}

	if start, end, ok := m.SaveDirtyInterval(); ok {
		flushSave(savePath, m.FlushSave(), start, end)
	}

	fmt.Printf("ran %d frames\n", frames)
}

func mustReadFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("failed to read %s: %v\n", path, err)
		os.Exit(1)
	}
	return data
}

// loadSave reads an existing .sav file back in verbatim (its length
// pins the save type, since no separate metadata file is kept) or
// returns an empty image of the flash-8M ceiling size for a first run.
func loadSave(path string) ([]byte, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		return make([]byte, saveSizeFor(saveFlash512K)), saveFlash512K
	}
	for _, st := range []int{saveEEPROM512B, saveEEPROM8K, saveEEPROM64K, saveEEPROM128K, saveFlash256K, saveFlash512K, saveFlash1M, saveFlash8M} {
		if saveSizeFor(st) == len(data) {
			return data, st
		}
	}
	return make([]byte, saveSizeFor(saveFlash512K)), saveFlash512K
}

func flushSave(path string, data []byte, start, end int) {
	_ = start
	_ = end
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Printf("failed to write save file %s: %v\n", path, err)
	}
}
