//go:build unix

// Package pool
// Author: momentics <momentics@gmail.com>
//
// Unix anonymous mappings for off-heap slabs.

package pool

import "golang.org/x/sys/unix"

func mapRegion(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
}

func unmapRegion(data []byte) error {
	return unix.Munmap(data)
}
