package common

import (
	"sync"

	"golang.org/x/exp/constraints"
)

type Atomic[T any] interface {
	Store(x T)
	Load() T
	CompareAndSwap(old T, new T) (swapped bool)
}

type AtomicNumeric[T constraints.Integer] interface {
	Atomic[T]
	Add(n T) T
	And(n T) T
	Or(n T) T
}

func AtomicSubtract[T constraints.Integer](left AtomicNumeric[T], right T) T {
	return AtomicMorph(left, func(startVal T) (val T, res T) {
		out := startVal - right
		return out, out
	})
}

// atomicNumeric is the concrete backing for AtomicNumeric[T]. The retrieved
// snapshot of the teacher's atomic_operations.go carries the interface and
// AtomicSubtract but not a backing type, so this one is new: a mutex-guarded
// struct rather than a lock-free one, since Go's sync/atomic has no generic
// entry point over arbitrary constraints.Integer widths. Every call site in
// this module is either single-threaded (spec.md §5) or, in tests, a handful
// of goroutines hammering independent counters — a mutex is plenty.
type atomicNumeric[T constraints.Integer] struct {
	mu  sync.Mutex
	val T
}

// NewAtomicNumeric constructs a counter seeded at initial.
func NewAtomicNumeric[T constraints.Integer](initial T) AtomicNumeric[T] {
	return &atomicNumeric[T]{val: initial}
}

func (a *atomicNumeric[T]) Store(x T) {
	a.mu.Lock()
	a.val = x
	a.mu.Unlock()
}

func (a *atomicNumeric[T]) Load() T {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.val
}

func (a *atomicNumeric[T]) CompareAndSwap(old, new T) (swapped bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.val == old {
		a.val = new
		return true
	}
	return false
}

func (a *atomicNumeric[T]) Add(n T) T {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.val += n
	return a.val
}

func (a *atomicNumeric[T]) And(n T) T {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.val &= n
	return a.val
}

func (a *atomicNumeric[T]) Or(n T) T {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.val |= n
	return a.val
}

// AtomicMorph atomically replaces left's value using f, which computes both
// the new value to store and a caller-chosen result derived from the value
// it replaced (e.g. AtomicSubtract returns the post-subtraction value).
func AtomicMorph[T constraints.Integer, R any](left AtomicNumeric[T], f func(startVal T) (val T, result R)) R {
	for {
		start := left.Load()
		newVal, result := f(start)
		if left.CompareAndSwap(start, newVal) {
			return result
		}
	}
}
