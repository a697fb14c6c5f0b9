// Package eventbus provides a per-project, bounded, ordered publish/subscribe
// channel for execution events (task_start, task_complete, task_failed, ...).
package eventbus

import (
	"fmt"
	"sync"

	"github.com/vfirsov/agentflow/contracts"
)

// maxSubscribersPerProject bounds how many concurrent readers one project's
// event stream may have.
const maxSubscribersPerProject = 10

// defaultBufferSize is the per-subscriber channel capacity. When a
// subscriber falls behind, the oldest buffered event is dropped to make room
// for the newest one rather than blocking the publisher.
const defaultBufferSize = 256

type subscriber struct {
	ch     chan contracts.Event
	mu     sync.Mutex
	closed bool
}

// Bus fans out published events to per-project subscriber channels.
type Bus struct {
	mu          sync.Mutex
	subscribers map[contracts.ProjectID][]*subscriber
	bufferSize  int
}

// NewBus creates a Bus with the default per-subscriber buffer size.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[contracts.ProjectID][]*subscriber),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers a new reader for a project's events. The returned
// cancel func must be called to release the subscription and its channel.
func (b *Bus) Subscribe(projectID contracts.ProjectID) (<-chan contracts.Event, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subscribers[projectID]) >= maxSubscribersPerProject {
		return nil, nil, fmt.Errorf("project %q: too many subscribers", projectID)
	}

	sub := &subscriber{ch: make(chan contracts.Event, b.bufferSize)}
	b.subscribers[projectID] = append(b.subscribers[projectID], sub)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[projectID]
		for i, s := range subs {
			if s == sub {
				b.subscribers[projectID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subscribers[projectID]) == 0 {
			delete(b.subscribers, projectID)
		}
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		sub.mu.Unlock()
	}

	return sub.ch, cancel, nil
}

// Publish delivers event to every subscriber of event.ProjectID, in FIFO
// order per subscriber (invariant I6). A full subscriber channel drops its
// oldest buffered event to make room, so one slow reader cannot stall
// publication to the others. The Bus does not persist events itself.
func (b *Bus) Publish(event contracts.Event) {
	b.mu.Lock()
	subs := append([]*subscriber{}, b.subscribers[event.ProjectID]...)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			continue
		}
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
		sub.mu.Unlock()
	}
}
