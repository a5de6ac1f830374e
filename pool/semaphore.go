/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// capacitySemaphore is the pool's single shared rate-limiting resource: one
// permit per connection currently in the pool, sized to max_connections.
type capacitySemaphore struct {
	w *semaphore.Weighted
	n int64
}

func newCapacitySemaphore(maxConnections int) *capacitySemaphore {
	n := int64(maxConnections)
	return &capacitySemaphore{w: semaphore.NewWeighted(n), n: n}
}

func (s *capacitySemaphore) Weighted() int64 {
	return s.n
}

// acquire suspends until a permit is released.
func (s *capacitySemaphore) acquire(ctx context.Context) error {
	return s.w.Acquire(ctx, 1)
}

// tryAcquire attempts without suspending.
func (s *capacitySemaphore) tryAcquire() bool {
	return s.w.TryAcquire(1)
}

// release never suspends.
func (s *capacitySemaphore) release() {
	s.w.Release(1)
}
