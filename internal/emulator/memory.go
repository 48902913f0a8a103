package emulator

// Device memory for the emulator.
//
// Word devices (D, W, R, ZR, SD) and bit devices (X, Y, M, L, F, B, SM) are
// stored sparsely; unset points read as zero.

import (
	"fmt"
	"sync"

	"github.com/tturner/mcgw/internal/slmp"
)

// DefaultDevicePoints is the address space of every device except ZR.
const DefaultDevicePoints = 0x10000

// FileRegisterPoints is the ZR address space.
const FileRegisterPoints = 0x100000

// Memory holds word and bit device values.
type Memory struct {
	mu    sync.RWMutex
	words map[string]map[uint32]uint16
	bits  map[string]map[uint32]bool
}

// NewMemory creates empty device memory.
func NewMemory() *Memory {
	return &Memory{
		words: make(map[string]map[uint32]uint16),
		bits:  make(map[string]map[uint32]bool),
	}
}

func devicePoints(code string) uint32 {
	if code == "ZR" {
		return FileRegisterPoints
	}
	return DefaultDevicePoints
}

func checkRange(info slmp.DeviceInfo, number uint32, points int) error {
	if uint64(number)+uint64(points) > uint64(devicePoints(info.Code)) {
		return fmt.Errorf("%s: points %d-%d out of range (0-%d)",
			info.Code, number, uint64(number)+uint64(points)-1, devicePoints(info.Code)-1)
	}
	return nil
}

// SetWords stores consecutive word values starting at number.
func (m *Memory) SetWords(code string, number uint32, values ...uint16) error {
	info, ok := slmp.LookupDevice(code)
	if !ok || info.Bit {
		return fmt.Errorf("%s is not a word device", code)
	}
	if err := checkRange(info, number, len(values)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dev := m.words[info.Code]
	if dev == nil {
		dev = make(map[uint32]uint16)
		m.words[info.Code] = dev
	}
	for i, v := range values {
		dev[number+uint32(i)] = v
	}
	return nil
}

// SetBits stores consecutive bit values starting at number.
func (m *Memory) SetBits(code string, number uint32, values ...bool) error {
	info, ok := slmp.LookupDevice(code)
	if !ok || !info.Bit {
		return fmt.Errorf("%s is not a bit device", code)
	}
	if err := checkRange(info, number, len(values)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dev := m.bits[info.Code]
	if dev == nil {
		dev = make(map[uint32]bool)
		m.bits[info.Code] = dev
	}
	for i, v := range values {
		dev[number+uint32(i)] = v
	}
	return nil
}

// ReadWords returns points words. A bit device is read as 16 packed points
// per word, as the CPU does for a word-unit batch read.
func (m *Memory) ReadWords(info slmp.DeviceInfo, number uint32, points uint16) ([]uint16, error) {
	span := int(points)
	if info.Bit {
		span *= 16
	}
	if err := checkRange(info, number, span); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]uint16, points)
	if !info.Bit {
		dev := m.words[info.Code]
		for i := range out {
			out[i] = dev[number+uint32(i)]
		}
		return out, nil
	}
	dev := m.bits[info.Code]
	for i := range out {
		var w uint16
		for b := 0; b < 16; b++ {
			if dev[number+uint32(i*16+b)] {
				w |= 1 << b
			}
		}
		out[i] = w
	}
	return out, nil
}

// ReadBits returns points bits of a bit device.
func (m *Memory) ReadBits(info slmp.DeviceInfo, number uint32, points uint16) ([]bool, error) {
	if !info.Bit {
		return nil, fmt.Errorf("%s is not a bit device", info.Code)
	}
	if err := checkRange(info, number, int(points)); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	dev := m.bits[info.Code]
	out := make([]bool, points)
	for i := range out {
		out[i] = dev[number+uint32(i)]
	}
	return out, nil
}
