package container

import "github.com/pikern/kheap/memutils"

// Buffer is a growable byte buffer backed by heap memory. It implements io.Writer. The zero
// value is not usable; create buffers with NewBuffer.
type Buffer struct {
	storage storage
	length  int
}

// NewBuffer creates an empty buffer that allocates from heap. No memory is allocated until the
// first write.
func NewBuffer(heap Allocator) *Buffer {
	return &Buffer{
		storage: storage{heap: heap, alignment: 1},
	}
}

// Write appends p to the buffer. It only fails when the heap is out of memory, in which case
// nothing is written.
func (b *Buffer) Write(p []byte) (int, error) {
	err := b.Append(p...)
	if err != nil {
		return 0, err
	}

	return len(p), nil
}

// Append adds bytes to the end of the buffer
func (b *Buffer) Append(bytes ...byte) error {
	needed, err := memutils.CheckedAdd(b.length, len(bytes))
	if err != nil {
		return err
	}

	err = b.storage.reserve(needed, b.length)
	if err != nil {
		return err
	}

	copy(b.storage.data[b.length:], bytes)
	b.length += len(bytes)
	return nil
}

// Bytes returns the buffer's contents. The slice aliases heap memory and is only valid until
// the next call that modifies the buffer.
func (b *Buffer) Bytes() []byte {
	if b.length == 0 {
		return nil
	}

	return b.storage.data[:b.length:b.length]
}

// Len returns the number of bytes in the buffer
func (b *Buffer) Len() int { return b.length }

// Cap returns the number of bytes the buffer can hold before it has to grow
func (b *Buffer) Cap() int { return b.storage.capacity }

// Reset empties the buffer but keeps its storage
func (b *Buffer) Reset() {
	b.length = 0
}

// Release returns the buffer's storage to the heap. The buffer is empty afterwards and can
// be reused.
func (b *Buffer) Release() {
	b.storage.release()
	b.length = 0
}
