// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import (
	"sync"

	"coresched.dev/kernel/kthread"
)

// PageSize is the simulated kernel-stack page size. Real page granularity
// and alignment live in the machine, not here; this is a plausible
// stand-in, not a policy this module enforces elsewhere.
const PageSize = 4096

// Page is a page-sized, zeroed buffer standing in for a thread's stack
// page. It satisfies kthread.PageHandle.
type Page struct {
	bytes []byte
	pool  *PageAllocator
}

// Free returns the page to its originating allocator's pool, implementing
// kthread.PageHandle.
func (p *Page) Free() {
	if p.pool == nil {
		return
	}
	for i := range p.bytes {
		p.bytes[i] = 0
	}
	p.pool.pool.Put(p)
}

// PageAllocator is the page-granular allocator contract's concrete
// implementation: a pooled arena of zeroed byte buffers. There is no page
// table or MMU behind it; reusable, garbage-collectible, page-sized
// buffers are all the scheduler needs from it.
type PageAllocator struct {
	pool sync.Pool
}

// NewPageAllocator returns a ready-to-use PageAllocator.
func NewPageAllocator() *PageAllocator {
	a := &PageAllocator{}
	a.pool.New = func() interface{} {
		return &Page{bytes: make([]byte, PageSize)}
	}
	return a
}

// AllocPage returns a page-sized, zeroed buffer. The zeroed parameter
// mirrors the hardware allocator's signature; every page this pool hands
// out is always zeroed, so it never changes behavior here.
func (a *PageAllocator) AllocPage(zeroed bool) kthread.PageHandle {
	p := a.pool.Get().(*Page)
	p.pool = a
	if zeroed {
		for i := range p.bytes {
			p.bytes[i] = 0
		}
	}
	return p
}
