// Package container provides growable containers whose storage lives in a heap Allocator
// rather than in the Go heap. Containers grow by allocating a larger region, copying their
// contents and deallocating the old region.
package container

import (
	"github.com/cockroachdb/errors"
	"github.com/pikern/kheap/arena"
)

// ErrIndexOutOfRange is returned when a container is indexed outside of its length
var ErrIndexOutOfRange = errors.New("container: index out of range")

// Allocator is the allocation hook containers obtain their storage from. *allocator.Allocator
// implements it.
type Allocator interface {
	Allocate(size int, alignment uint) (arena.Pointer, error)
	Deallocate(pointer arena.Pointer, size int, alignment uint)
	Bytes(pointer arena.Pointer, n int) ([]byte, error)
}

const minCapacity = 16

// storage is a single heap region owned by a container
type storage struct {
	heap      Allocator
	alignment uint
	pointer   arena.Pointer
	capacity  int
	data      []byte
}

// reserve makes sure the region holds at least needed bytes, preserving the first used bytes
func (s *storage) reserve(needed, used int) error {
	if needed <= s.capacity {
		return nil
	}

	capacity := s.capacity * 2
	if capacity < minCapacity {
		capacity = minCapacity
	}
	for capacity < needed {
		if capacity > int(^uint(0)>>2) {
			capacity = needed
			break
		}
		capacity *= 2
	}

	pointer, err := s.heap.Allocate(capacity, s.alignment)
	if err != nil {
		return errors.Wrapf(err, "growing container to %d bytes", capacity)
	}

	data, err := s.heap.Bytes(pointer, capacity)
	if err != nil {
		s.heap.Deallocate(pointer, capacity, s.alignment)
		return err
	}

	copy(data, s.data[:used])
	s.release()

	s.pointer = pointer
	s.capacity = capacity
	s.data = data
	return nil
}

func (s *storage) release() {
	if s.capacity > 0 {
		s.heap.Deallocate(s.pointer, s.capacity, s.alignment)
	}

	s.pointer = 0
	s.capacity = 0
	s.data = nil
}
