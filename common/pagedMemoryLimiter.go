// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"sync/atomic"
)

// PagedMemoryLimiter bounds the total bytes reserved across every ring in
// the process (spec.md §5: "every allocation is inside the one PagedMemory
// region passed to Create"). It is the process-wide counterpart of a single
// ring's own fixed size: one ring's size is a hard ceiling on that ring;
// this limiter is a hard ceiling on how many such rings may exist at once.
//
// Adapted from the teacher's CacheLimiter (common/cacheLimiter.go in
// azcopy), which additionally supported a "relaxed" tier above a strict
// limit and a context-aware blocking wait. Neither survives here: a ring
// has exactly one limit (its reservation is all-or-nothing, decided once
// inside Create, synchronously — spec.md §5 "no suspension or blocking
// inside the core"), so TryAdd either succeeds immediately or fails
// immediately; there is no caller that would want to block and retry.
type PagedMemoryLimiter interface {
	TryAdd(bytes int64) (added bool)
	Remove(bytes int64)
	Limit() int64
	InUse() int64
}

type pagedMemoryLimiter struct {
	value int64
	limit int64
}

// NewPagedMemoryLimiter caps total ring memory at limit bytes; limit <= 0
// means unbounded (TryAdd always succeeds).
func NewPagedMemoryLimiter(limit int64) PagedMemoryLimiter {
	return &pagedMemoryLimiter{limit: limit}
}

// TryAdd reserves bytes against the limit. Returns false (and leaves the
// limiter unchanged) if the reservation would exceed the limit.
func (c *pagedMemoryLimiter) TryAdd(bytes int64) (added bool) {
	if c.limit <= 0 {
		atomic.AddInt64(&c.value, bytes)
		return true
	}
	if atomic.AddInt64(&c.value, bytes) <= c.limit {
		return true
	}
	// else, we are over the limit, so immediately subtract back what we've added, and return false
	atomic.AddInt64(&c.value, -bytes)
	return false
}

func (c *pagedMemoryLimiter) Remove(bytes int64) {
	atomic.AddInt64(&c.value, -bytes)
}

func (c *pagedMemoryLimiter) Limit() int64 {
	return c.limit
}

func (c *pagedMemoryLimiter) InUse() int64 {
	return atomic.LoadInt64(&c.value)
}
