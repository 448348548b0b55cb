package bridge

import (
	"fmt"

	"github.com/pkg/errors"
)

// ElementType is a numeric type the engine can address.
type ElementType int

const (
	Invalid ElementType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
	Float64
)

var elementNames = [...]string{"invalid", "int8", "uint8", "int16", "uint16", "int32", "uint32", "float32", "float64"}

func (t ElementType) String() string {
	if t < 0 || int(t) >= len(elementNames) {
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
	return elementNames[t]
}

// Size returns the width of one element in bytes.
func (t ElementType) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func (t ElementType) valid() bool { return t.Size() > 0 }

func (t ElementType) makeSlice(n int) (any, error) {
	if n < 0 {
		return nil, errors.Errorf("negative element count %d", n)
	}
	switch t {
	case Int8:
		return make([]int8, n), nil
	case Uint8:
		return make([]uint8, n), nil
	case Int16:
		return make([]int16, n), nil
	case Uint16:
		return make([]uint16, n), nil
	case Int32:
		return make([]int32, n), nil
	case Uint32:
		return make([]uint32, n), nil
	case Float32:
		return make([]float32, n), nil
	case Float64:
		return make([]float64, n), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedBufferType, "%s", t)
}

// Element is the set of Go types with an engine representation.
type Element interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | float32 | float64
}

// TypeOf returns the ElementType of T.
func TypeOf[T Element]() ElementType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return Invalid
}

// classify dispatches on the concrete slice type.
func classify(array any) (ElementType, int, error) {
	switch a := array.(type) {
	case []int8:
		return Int8, len(a), nil
	case []uint8:
		return Uint8, len(a), nil
	case []int16:
		return Int16, len(a), nil
	case []uint16:
		return Uint16, len(a), nil
	case []int32:
		return Int32, len(a), nil
	case []uint32:
		return Uint32, len(a), nil
	case []float32:
		return Float32, len(a), nil
	case []float64:
		return Float64, len(a), nil
	}
	return Invalid, 0, errors.Wrapf(ErrUnsupportedBufferType, "%T", array)
}
