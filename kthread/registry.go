// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kthread

import (
	"sync"

	"v.io/x/lib/uniqueid"
)

// Registry is the global table of live threads, keyed by ID. Its internal
// mutex is the one regular lock inside the core, guarding only the
// monotonic id counter and the registry maps.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	threads map[uint64]*Thread
	cookies map[uint64]uniqueid.ID
}

// NewRegistry returns an empty, ready-to-use Registry. IDs start at 1 so
// that 0 can serve as the distinguished "no thread" / error tid.
func NewRegistry() *Registry {
	return &Registry{
		nextID:  1,
		threads: make(map[uint64]*Thread),
		cookies: make(map[uint64]uniqueid.ID),
	}
}

// AllocID returns the next monotonically increasing thread ID. IDs are never
// reused during a run.
func (r *Registry) AllocID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	return id
}

// Register adds t to the registry under its ID and snapshots its integrity
// cookie, so that later corruption of the thread record can be detected by
// CheckIntegrity.
func (r *Registry) Register(t *Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[t.ID] = t
	r.cookies[t.ID] = t.Cookie
}

// CheckIntegrity reports whether t's cookie still matches the snapshot taken
// at Register time. A false return means the thread record has been
// overwritten, typically by a kernel-stack overflow clobbering the record at
// the base of the stack page.
func (r *Registry) CheckIntegrity(t *Thread) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	want, ok := r.cookies[t.ID]
	return ok && want == t.Cookie
}

// Deregister removes t from the registry. Called from exit(); the thread
// keeps existing (as DYING) until its stack page is reclaimed, it is just no
// longer reachable via Foreach or Lookup.
func (r *Registry) Deregister(t *Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.threads, t.ID)
	delete(r.cookies, t.ID)
}

// Lookup returns the thread with the given ID, or nil if none is registered.
func (r *Registry) Lookup(id uint64) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threads[id]
}

// Foreach applies fn to every registered thread. Callers are expected to
// have interrupts disabled already so the population is stable under fn;
// Registry does not disable them itself, since it has no access to an
// irq.Primitive and a re-entrant disable would be redundant with the
// caller's guard.
func (r *Registry) Foreach(fn func(*Thread)) {
	r.mu.Lock()
	snapshot := make([]*Thread, 0, len(r.threads))
	for _, t := range r.threads {
		snapshot = append(snapshot, t)
	}
	r.mu.Unlock()
	for _, t := range snapshot {
		fn(t)
	}
}

// Len reports the number of currently registered threads.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}
