package smokerlog

import (
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Float | constraints.Integer
}

func Filter[T any](slice []T, predicate func(T) bool) []T {
	filtered := make([]T, 0, len(slice))
	for _, elem := range slice {
		if predicate(elem) {
			filtered = append(filtered, elem)
		}
	}
	return filtered
}

func Min[T Number](a T, b T) T {
	if a > b {
		return b
	}

	return a
}

func Max[T Number](a T, b T) T {
	if a < b {
		return b
	}

	return a
}

// A fixed capacity ring that overwrites its oldest element when full. It is
// not safe for concurrent use; owners guard it themselves.
type Ring[T any] struct {
	items []T
	next  int
	full  bool
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Ring[T]{
		items: make([]T, capacity),
	}
}

func (r *Ring[T]) Push(data T) {
	r.items[r.next] = data
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

func (r *Ring[T]) Len() int {
	if r.full {
		return len(r.items)
	}
	return r.next
}

// ReadAllOrdered returns a copy of the contents, oldest first.
func (r *Ring[T]) ReadAllOrdered() []T {
	arr := make([]T, 0, r.Len())
	if r.full {
		arr = append(arr, r.items[r.next:]...)
	}
	arr = append(arr, r.items[:r.next]...)
	return arr
}

func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.next = 0
	r.full = false
}
