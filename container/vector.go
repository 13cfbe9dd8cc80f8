package container

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// Vector is a growable array of integers stored little-endian in heap memory. The zero value
// is not usable; create vectors with NewVector.
type Vector[T constraints.Integer] struct {
	storage storage
	length  int
}

// NewVector creates an empty vector that allocates from heap
func NewVector[T constraints.Integer](heap Allocator) *Vector[T] {
	var zero T
	return &Vector[T]{
		storage: storage{heap: heap, alignment: uint(unsafe.Sizeof(zero))},
	}
}

func (v *Vector[T]) elementSize() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func (v *Vector[T]) load(index int) T {
	size := v.elementSize()
	data := v.storage.data[index*size : (index+1)*size]

	switch size {
	case 1:
		return T(data[0])
	case 2:
		return T(binary.LittleEndian.Uint16(data))
	case 4:
		return T(binary.LittleEndian.Uint32(data))
	default:
		return T(binary.LittleEndian.Uint64(data))
	}
}

func (v *Vector[T]) store(index int, value T) {
	size := v.elementSize()
	data := v.storage.data[index*size : (index+1)*size]

	switch size {
	case 1:
		data[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(data, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(data, uint32(value))
	default:
		binary.LittleEndian.PutUint64(data, uint64(value))
	}
}

// Push appends value to the end of the vector
func (v *Vector[T]) Push(value T) error {
	size := v.elementSize()
	err := v.storage.reserve((v.length+1)*size, v.length*size)
	if err != nil {
		return err
	}

	v.store(v.length, value)
	v.length++
	return nil
}

// Pop removes and returns the last element. The second return value is false if the vector
// is empty.
func (v *Vector[T]) Pop() (T, bool) {
	if v.length == 0 {
		var zero T
		return zero, false
	}

	v.length--
	return v.load(v.length), true
}

// Get returns the element at index
func (v *Vector[T]) Get(index int) (T, error) {
	if index < 0 || index >= v.length {
		var zero T
		return zero, errors.Wrapf(ErrIndexOutOfRange, "index %d of vector with length %d", index, v.length)
	}

	return v.load(index), nil
}

// Set replaces the element at index
func (v *Vector[T]) Set(index int, value T) error {
	if index < 0 || index >= v.length {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d of vector with length %d", index, v.length)
	}

	v.store(index, value)
	return nil
}

// Len returns the number of elements in the vector
func (v *Vector[T]) Len() int { return v.length }

// Release returns the vector's storage to the heap. The vector is empty afterwards and can
// be reused.
func (v *Vector[T]) Release() {
	v.storage.release()
	v.length = 0
}
