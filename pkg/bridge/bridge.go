// Package bridge marshals typed numeric arrays into and out of the linear
// memory of the computation engine.
//
// Every Allocate must be matched by exactly one Release. Scope tracks the
// handles of one generation attempt and releases all of them when the
// attempt ends, whatever the outcome.
package bridge

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBufferMarshal matches every failure reported by the bridge.
	ErrBufferMarshal = errors.New("buffer marshal error")

	// ErrUnsupportedBufferType is returned when an array has no engine representation.
	ErrUnsupportedBufferType = errors.New("unsupported buffer type")

	// ErrInvalidHandle is returned for zero, foreign or already released handles.
	ErrInvalidHandle = errors.New("invalid buffer handle")
)

// MarshalError describes a failed bridge operation. It matches ErrBufferMarshal
// and unwraps to the underlying cause.
type MarshalError struct {
	Op  string
	Err error
}

func (e *MarshalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrBufferMarshal, e.Op, e.Err)
}

func (e *MarshalError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrBufferMarshal) succeed for every MarshalError.
func (e *MarshalError) Is(target error) bool { return target == ErrBufferMarshal }

func marshalError(op string, err error) error {
	return &MarshalError{Op: op, Err: err}
}

// Memory is the engine-side linear memory the bridge writes into.
type Memory interface {
	// Malloc reserves size bytes and returns their address. Address 0 is never valid.
	Malloc(size int) (uint32, error)
	// Free returns a block obtained from Malloc.
	Free(ptr uint32) error
	// Write copies data to ptr.
	Write(ptr uint32, data []byte) error
	// Read copies n bytes starting at ptr.
	Read(ptr uint32, n int) ([]byte, error)
}

// Handle identifies an engine-resident array.
type Handle struct {
	Ptr   uint32
	Type  ElementType
	Count int
}

// IsZero reports whether h was never allocated.
func (h Handle) IsZero() bool { return h.Ptr == 0 }

// Bytes returns the size of the array in bytes.
func (h Handle) Bytes() int { return h.Count * h.Type.Size() }

// Bridge copies arrays between Go memory and engine memory.
type Bridge struct {
	mem Memory
}

// New returns a Bridge over mem.
func New(mem Memory) *Bridge {
	return &Bridge{mem: mem}
}

// Allocate copies array into engine memory. array must be a slice of one of
// the supported element types.
func (b *Bridge) Allocate(array any) (Handle, error) {
	t, count, err := classify(array)
	if err != nil {
		return Handle{}, marshalError("allocate", err)
	}

	n := count * t.Size()
	// The engine never hands out zero-length blocks; reserve one element.
	reserve := n
	if reserve == 0 {
		reserve = t.Size()
	}
	ptr, err := b.mem.Malloc(reserve)
	if err != nil {
		return Handle{}, marshalError("allocate", errors.Wrapf(err, "malloc %d bytes for %d x %s", reserve, count, t))
	}
	h := Handle{Ptr: ptr, Type: t, Count: count}
	if n == 0 {
		return h, nil
	}

	buf := make([]byte, n)
	if _, err := binary.Encode(buf, binary.LittleEndian, array); err != nil {
		b.mem.Free(ptr)
		return Handle{}, marshalError("allocate", errors.Wrap(err, "encode"))
	}
	if err := b.mem.Write(ptr, buf); err != nil {
		b.mem.Free(ptr)
		return Handle{}, marshalError("allocate", errors.Wrapf(err, "write %d bytes", n))
	}
	return h, nil
}

// Reserve allocates count zeroed elements of type t, typically as an output buffer.
func (b *Bridge) Reserve(t ElementType, count int) (Handle, error) {
	if !t.valid() {
		return Handle{}, marshalError("reserve", errors.Wrapf(ErrUnsupportedBufferType, "%s", t))
	}
	arr, _ := t.makeSlice(count)
	return b.Allocate(arr)
}

// Release frees the memory behind h.
func (b *Bridge) Release(h Handle) error {
	if h.IsZero() {
		return marshalError("release", ErrInvalidHandle)
	}
	if err := b.mem.Free(h.Ptr); err != nil {
		return marshalError("release", errors.Wrapf(err, "ptr %d", h.Ptr))
	}
	return nil
}

// ReadBack copies count elements of type t out of engine memory at h.
// The result is one of []int8, []uint8, []int16, []uint16, []int32, []uint32,
// []float32 or []float64. The engine memory may be reused once the owning
// generator is destroyed, so callers keep only the copy.
func (b *Bridge) ReadBack(h Handle, t ElementType, count int) (any, error) {
	if h.IsZero() {
		return nil, marshalError("readBack", ErrInvalidHandle)
	}
	out, err := t.makeSlice(count)
	if err != nil {
		return nil, marshalError("readBack", err)
	}
	if count < 0 || (h.Count > 0 && count*t.Size() > h.Bytes()) {
		return nil, marshalError("readBack", errors.Errorf("%d x %s exceeds %d byte buffer", count, t, h.Bytes()))
	}
	if count == 0 {
		return out, nil
	}
	raw, err := b.mem.Read(h.Ptr, count*t.Size())
	if err != nil {
		return nil, marshalError("readBack", errors.Wrapf(err, "ptr %d", h.Ptr))
	}
	if _, err := binary.Decode(raw, binary.LittleEndian, out); err != nil {
		return nil, marshalError("readBack", errors.Wrap(err, "decode"))
	}
	return out, nil
}

// ReadBackAs is the typed form of ReadBack.
func ReadBackAs[T Element](b *Bridge, h Handle, count int) ([]T, error) {
	v, err := b.ReadBack(h, TypeOf[T](), count)
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}
