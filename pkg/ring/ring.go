package ring

// Buffer is a bounded FIFO ring buffer. When full, appending evicts the
// oldest element. Not safe for concurrent use; callers hold their own locks.
type Buffer[T any] struct {
	items []T
	head  int
	size  int
}

// New creates a Buffer with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends a value, evicting the oldest element if the buffer is full.
func (b *Buffer[T]) Push(value T) {
	tail := (b.head + b.size) % len(b.items)
	b.items[tail] = value
	if b.size == len(b.items) {
		b.head = (b.head + 1) % len(b.items)
	} else {
		b.size++
	}
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// At returns the element at logical index i, 0 being the oldest.
func (b *Buffer[T]) At(i int) T {
	return b.items[(b.head+i)%len(b.items)]
}

// Last returns the most recently pushed element.
func (b *Buffer[T]) Last() (T, bool) {
	if b.size == 0 {
		var zero T
		return zero, false
	}
	return b.At(b.size - 1), true
}

// DropFirst discards the n oldest elements.
func (b *Buffer[T]) DropFirst(n int) {
	if n <= 0 {
		return
	}
	if n >= b.size {
		b.Clear()
		return
	}
	b.head = (b.head + n) % len(b.items)
	b.size -= n
}

// Clear removes all elements without releasing the backing array.
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}

// Each calls fn for every element from oldest to newest, stopping early if
// fn returns false.
func (b *Buffer[T]) Each(fn func(i int, value T) bool) {
	for i := 0; i < b.size; i++ {
		if !fn(i, b.At(i)) {
			return
		}
	}
}
