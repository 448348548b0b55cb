package engine

import (
	"sort"

	"github.com/pkg/errors"
)

const (
	// alignment of every block handed out by Malloc
	alignment = 8

	// heapBase keeps address 0 free so it can act as NULL.
	heapBase = alignment
)

var (
	// ErrOutOfMemory is returned when an allocation would exceed the memory limit.
	ErrOutOfMemory = errors.New("engine out of memory")

	// ErrInvalidPointer is returned for addresses that do not start a live block.
	ErrInvalidPointer = errors.New("invalid engine pointer")
)

type span struct {
	start, size int
}

// heap is a first-fit allocator over one growable linear memory.
// It is not safe for concurrent use; Module serializes access.
type heap struct {
	mem    []byte
	limit  int
	allocs map[uint32]int // ptr -> block size
	free   []span         // sorted by start, coalesced
	inUse  int
}

func newHeap(limit int) *heap {
	return &heap{
		mem:    make([]byte, heapBase),
		limit:  limit,
		allocs: make(map[uint32]int),
	}
}

func align(n int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

func (h *heap) malloc(size int) (uint32, error) {
	if size <= 0 {
		return 0, errors.Errorf("malloc of %d bytes", size)
	}
	size = align(size)

	for i, s := range h.free {
		if s.size < size {
			continue
		}
		ptr := s.start
		if s.size == size {
			h.free = append(h.free[:i], h.free[i+1:]...)
		} else {
			h.free[i] = span{start: s.start + size, size: s.size - size}
		}
		clear(h.mem[ptr : ptr+size])
		return h.commit(ptr, size), nil
	}

	ptr := len(h.mem)
	if h.limit > 0 && ptr+size > h.limit {
		return 0, errors.Wrapf(ErrOutOfMemory, "need %d bytes, %d of %d in use", size, h.inUse, h.limit)
	}
	if ptr+size > int(^uint32(0)) {
		return 0, errors.Wrap(ErrOutOfMemory, "address space exhausted")
	}
	h.mem = append(h.mem, make([]byte, size)...)
	return h.commit(ptr, size), nil
}

func (h *heap) commit(ptr, size int) uint32 {
	h.allocs[uint32(ptr)] = size
	h.inUse += size
	return uint32(ptr)
}

func (h *heap) release(ptr uint32) error {
	size, ok := h.allocs[ptr]
	if !ok {
		return errors.Wrapf(ErrInvalidPointer, "free of %d", ptr)
	}
	delete(h.allocs, ptr)
	h.inUse -= size

	s := span{start: int(ptr), size: size}
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].start > s.start })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = s

	// merge with the right neighbour, then the left one
	if i+1 < len(h.free) && h.free[i].start+h.free[i].size == h.free[i+1].start {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].start+h.free[i-1].size == h.free[i].start {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
		i--
	}

	// give a trailing free span back
	if last := h.free[len(h.free)-1]; last.start+last.size == len(h.mem) {
		h.mem = h.mem[:last.start]
		h.free = h.free[:len(h.free)-1]
	}
	return nil
}

// check verifies that [ptr, ptr+n) lies within one live block.
func (h *heap) check(ptr uint32, n int) error {
	if n < 0 {
		return errors.Errorf("negative length %d", n)
	}
	// blocks are few per generator; a scan keeps the bookkeeping simple
	for start, size := range h.allocs {
		if ptr >= start && int(ptr-start)+n <= size {
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidPointer, "range [%d, %d)", ptr, int(ptr)+n)
}

func (h *heap) write(ptr uint32, data []byte) error {
	if err := h.check(ptr, len(data)); err != nil {
		return err
	}
	copy(h.mem[ptr:], data)
	return nil
}

func (h *heap) read(ptr uint32, n int) ([]byte, error) {
	if err := h.check(ptr, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, h.mem[ptr:int(ptr)+n])
	return out, nil
}
