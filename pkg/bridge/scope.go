package bridge

import (
	"sync"

	"github.com/pkg/errors"
)

// Scope tracks the handles allocated during one generation attempt.
//
//	scope := b.NewScope()
//	defer scope.Close()
type Scope struct {
	bridge *Bridge

	mu      sync.Mutex
	handles []Handle
	closed  bool
}

// NewScope returns an empty Scope over b.
func (b *Bridge) NewScope() *Scope {
	return &Scope{bridge: b}
}

// Bridge returns the bridge the scope allocates from.
func (s *Scope) Bridge() *Bridge { return s.bridge }

// Allocate copies array into engine memory and tracks the handle.
func (s *Scope) Allocate(array any) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Handle{}, marshalError("allocate", errors.New("scope already closed"))
	}
	h, err := s.bridge.Allocate(array)
	if err != nil {
		return Handle{}, err
	}
	s.handles = append(s.handles, h)
	return h, nil
}

// Reserve allocates a zeroed output buffer and tracks the handle.
func (s *Scope) Reserve(t ElementType, count int) (Handle, error) {
	if !t.valid() {
		return Handle{}, marshalError("reserve", errors.Wrapf(ErrUnsupportedBufferType, "%s", t))
	}
	arr, err := t.makeSlice(count)
	if err != nil {
		return Handle{}, marshalError("reserve", err)
	}
	return s.Allocate(arr)
}

// Release frees one tracked handle before the scope ends.
func (s *Scope) Release(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tracked := range s.handles {
		if tracked.Ptr == h.Ptr {
			s.handles = append(s.handles[:i], s.handles[i+1:]...)
			return s.bridge.Release(h)
		}
	}
	return marshalError("release", errors.Wrapf(ErrInvalidHandle, "ptr %d not owned by scope", h.Ptr))
}

// Len returns the number of live handles.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close releases every live handle, newest first. Every handle is attempted
// even if an earlier release fails; the first failure is returned.
// Close is idempotent.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var first error
	failed := 0
	for i := len(s.handles) - 1; i >= 0; i-- {
		if err := s.bridge.Release(s.handles[i]); err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	s.handles = nil
	if first != nil {
		return errors.Wrapf(first, "%d handle(s) failed to release", failed)
	}
	return nil
}
