// Package engine is the computation engine that turns signed label masks into
// smoothed, decimated triangle surfaces.
//
// Callers talk to it the way they would talk to a separately compiled
// numerical library: arrays are copied into the engine's linear memory,
// generator contexts are addressed by integer ids, and results are copied back
// out of engine memory into caller-provided buffers. Memory is owned by the
// caller; every Malloc must be paired with a Free.
package engine

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/pkg/logging"
)

// DefaultMemoryLimit bounds the linear memory of a Module.
const DefaultMemoryLimit = 2 << 30

// ErrLoadFailed is returned when a Module cannot be brought up.
var ErrLoadFailed = errors.New("engine failed to load")

// ErrClosed is returned by operations on a closed Module.
var ErrClosed = errors.New("engine closed")

// Options configure a Module.
type Options struct {
	// MemoryLimit is the maximum size of linear memory in bytes; 0 selects DefaultMemoryLimit
	MemoryLimit int
}

// Module is one loaded engine instance.
//
// Memory operations are serialized by an internal mutex. Extraction for a
// generator context runs outside that lock, so distinct contexts may generate
// concurrently; a single context must only be used by one goroutine at a time.
type Module struct {
	mu         sync.Mutex
	heap       *heap
	generators map[uint32]*generator
	nextID     uint32
	closed     bool
}

// Load brings up a new Module.
func Load(ctx context.Context, opts Options) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(ErrLoadFailed, err.Error())
	}
	limit := opts.MemoryLimit
	if limit == 0 {
		limit = DefaultMemoryLimit
	}
	if limit < heapBase {
		return nil, errors.Wrapf(ErrLoadFailed, "memory limit %d too small", limit)
	}
	logging.Debugf("engine loaded with %d byte memory limit", limit)
	return &Module{
		heap:       newHeap(limit),
		generators: make(map[uint32]*generator),
	}, nil
}

var session struct {
	once sync.Once
	mod  *Module
	err  error
}

// Shared returns the Module of this process, loading it on first use.
// A failed load is remembered; later calls report the same error.
func Shared(ctx context.Context) (*Module, error) {
	session.once.Do(func() {
		session.mod, session.err = Load(ctx, Options{})
	})
	return session.mod, session.err
}

// Close releases the linear memory and every generator context.
func (m *Module) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.generators = make(map[uint32]*generator)
	m.heap = newHeap(m.heap.limit)
}

// Malloc reserves size bytes of linear memory.
func (m *Module) Malloc(size int) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.heap.malloc(size)
}

// Free releases a block obtained from Malloc.
func (m *Module) Free(ptr uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.heap.release(ptr)
}

// Write copies data into linear memory at ptr.
func (m *Module) Write(ptr uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.heap.write(ptr, data)
}

// Read copies n bytes of linear memory starting at ptr.
func (m *Module) Read(ptr uint32, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.heap.read(ptr, n)
}

// LiveAllocations returns the number of blocks not yet freed.
func (m *Module) LiveAllocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.heap.allocs)
}

// HeapInUse returns the number of bytes held by live blocks.
func (m *Module) HeapInUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heap.inUse
}

// LiveGenerators returns the number of generator contexts not yet destroyed.
func (m *Module) LiveGenerators() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.generators)
}
