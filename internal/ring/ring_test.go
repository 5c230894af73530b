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

package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferEviction(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	require.Equal(t, 3, b.Len())
	require.Equal(t, []int{3, 4, 5}, b.Snapshot())
}

func TestBufferSnapshotIsCopy(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	snap := b.Snapshot()
	snap[0] = 99
	require.Equal(t, []int{1}, b.Snapshot())
}

func TestBufferConcurrentPush(t *testing.T) {
	b := New[int](100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Push(n)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 100, b.Len())
}
