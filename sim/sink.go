package sim

// Sink receives values broadcast on an Output it is connected to.
type Sink[T any] interface {
	Put(v T)
}

// EventSlot keeps only the most recent value broadcast to it. Each value can
// be taken at most once.
type EventSlot[T any] struct {
	value T
	full  bool
}

// NewEventSlot creates an empty slot.
func NewEventSlot[T any]() *EventSlot[T] {
	return &EventSlot[T]{}
}

// Put implements Sink, overwriting any value not yet taken.
func (s *EventSlot[T]) Put(v T) {
	s.value = v
	s.full = true
}

// Next takes the stored value, if any.
func (s *EventSlot[T]) Next() (T, bool) {
	var zero T
	if !s.full {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.full = false
	return v, true
}

// EventBuffer keeps every value broadcast to it, oldest first.
type EventBuffer[T any] struct {
	values []T
	limit  int
}

// NewEventBuffer creates an unbounded buffer.
func NewEventBuffer[T any]() *EventBuffer[T] {
	return &EventBuffer[T]{}
}

// NewBoundedEventBuffer creates a buffer that keeps at most limit values,
// dropping the oldest ones first.
func NewBoundedEventBuffer[T any](limit int) *EventBuffer[T] {
	return &EventBuffer[T]{limit: limit}
}

// Put implements Sink.
func (b *EventBuffer[T]) Put(v T) {
	b.values = append(b.values, v)
	if b.limit > 0 && len(b.values) > b.limit {
		b.values = b.values[len(b.values)-b.limit:]
	}
}

// Next takes the oldest stored value, if any.
func (b *EventBuffer[T]) Next() (T, bool) {
	var zero T
	if len(b.values) == 0 {
		return zero, false
	}
	v := b.values[0]
	b.values[0] = zero
	b.values = b.values[1:]
	return v, true
}

// Len returns the number of stored values.
func (b *EventBuffer[T]) Len() int { return len(b.values) }

// Drain takes every stored value.
func (b *EventBuffer[T]) Drain() []T {
	out := b.values
	b.values = nil
	return out
}
