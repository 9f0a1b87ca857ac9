package main

import (
	"fmt"
	"os"
)

func openDevice(devicePath string) (*os.File, error) {
	file, err := os.OpenFile(devicePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("uvcdump: open %s: %w", devicePath, err)
	}
	return file, nil
}
