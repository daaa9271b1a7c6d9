// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer for chunkmux.
// Allocates the slabs chunk arenas are carved from, either on the Go heap or
// as anonymous off-heap mappings, and keeps allocation statistics.
// See slab.go for the allocator and slab_unix.go / slab_other.go for mapping.
package pool
