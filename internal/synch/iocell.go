package synch

// IoCell is the "interrupt-safe borrow" of spec.md §9: a cell that disables
// interrupts on borrow and re-enables on release, used to guard
// shared-mutable device/driver singletons against handler re-entry. Borrow
// returns a release func that must run on every exit path, including a
// deferred call across a panic, so a panicking borrower still restores the
// interrupt state -- the property spec.md §9 calls out explicitly.
type IoCell[T any] struct {
	value T
}

// NewIoCell wraps value.
func NewIoCell[T any](value T) *IoCell[T] {
	return &IoCell[T]{value: value}
}

// Borrow disables interrupts, returning the guarded value and a release
// func. Callers must `defer release()` immediately so the re-enable runs
// even if the borrowed critical section panics.
func (c *IoCell[T]) Borrow() (value T, release func()) {
	prev := NestedDisable()
	return c.value, func() { NestedEnable(prev) }
}
