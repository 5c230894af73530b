// Copyright 2025 The veris-sentinel Authors
// This file is part of veris-sentinel.
//
// veris-sentinel is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// veris-sentinel is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with veris-sentinel. If not, see <http://www.gnu.org/licenses/>.

// Package ring provides a fixed-capacity FIFO buffer shared between the
// runner (writer) and the API (reader). Readers get snapshot copies so
// they never observe a torn buffer.
package ring

import "sync"

// Buffer is a bounded FIFO with O(1) append. When full, the oldest
// element is evicted. Safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	size  int
}

// New returns a buffer holding at most capacity elements.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tail := (b.head + b.size) % len(b.items)
	b.items[tail] = v
	if b.size == len(b.items) {
		b.head = (b.head + 1) % len(b.items)
	} else {
		b.size++
	}
}

// Len returns the number of buffered elements.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Snapshot returns a copy of the buffered elements, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}
