package allocator

//go:generate mockgen -destination=../mocks/interrupts.go -package=mocks . InterruptController

// InterruptState is an opaque snapshot of the interrupt mask, returned by
// InterruptController.Disable and handed back to Restore
type InterruptState uint64

// InterruptController masks interrupts on the current core for the duration of every heap
// critical section, so that an interrupt handler that allocates can never observe or re-enter
// a half-updated heap. Disable must return the previous mask so that nested critical sections
// restore it correctly.
type InterruptController interface {
	Disable() InterruptState
	Restore(state InterruptState)
}

// noInterrupts is used when the heap runs somewhere interrupt handlers never allocate
type noInterrupts struct{}

func (noInterrupts) Disable() InterruptState { return 0 }
func (noInterrupts) Restore(InterruptState)  {}
