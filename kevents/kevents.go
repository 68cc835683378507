// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kevents fans out thread lifecycle events (spawn, unblock, exit,
// preempt) to any number of subscribers, for test and CLI observability:
// a single stream forked into per-subscriber channels. The scheduler never
// blocks on a subscriber: publishing is best-effort and drops events for
// any subscriber whose buffer is full.
package kevents

import "sync"

// Kind identifies what happened to a thread.
type Kind int

const (
	Spawned Kind = iota
	Unblocked
	Exited
	Preempted
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Spawned:
		return "spawned"
	case Unblocked:
		return "unblocked"
	case Exited:
		return "exited"
	case Preempted:
		return "preempted"
	default:
		return "unknown"
	}
}

// Event describes a single thread lifecycle transition.
type Event struct {
	Kind       Kind
	ThreadID   uint64
	ThreadName string
	Priority   int32
	Tick       uint64
}

// subscriberBuffer is how many events a slow subscriber may lag behind
// before Publish starts dropping events for it, rather than blocking the
// scheduler.
const subscriberBuffer = 64

// Publisher fans Events out to subscribers.
type Publisher struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewPublisher returns an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener and returns its channel plus a cancel
// function that unregisters it. Subscribe never blocks.
func (p *Publisher) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	ch := make(chan Event, subscriberBuffer)
	p.subs[id] = ch
	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if ch, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish fans e out to every current subscriber. It never blocks: a
// subscriber whose buffer is full simply misses e, since sched must never
// stall waiting on an observer.
func (p *Publisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}
