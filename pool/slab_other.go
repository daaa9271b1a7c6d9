//go:build !unix

// Package pool
// Author: momentics <momentics@gmail.com>
//
// Portable anonymous mappings (Windows and friends) for off-heap slabs.

package pool

import "github.com/edsrzf/mmap-go"

func mapRegion(size int) ([]byte, error) {
	m, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func unmapRegion(data []byte) error {
	m := mmap.MMap(data)
	return m.Unmap()
}
