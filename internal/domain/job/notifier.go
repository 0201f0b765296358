// Package job holds the in-process signalling primitives of the job system:
// the work-available notifier used by idle workers and the per-job status broadcaster.
package job

import (
	"sync"
)

// Notifier manages subscriptions for job availability notifications.
type Notifier interface {
	Subscribe() (func(), <-chan struct{})
	Notify()
	StopAll()
}

// DefaultNotifier is the default implementation of Notifier.
//
// Each subscriber channel has a buffer of one, so a notification sent while a
// worker is busy is remembered and the worker re-checks the queue before blocking.
type DefaultNotifier struct {
	mu      sync.Mutex
	subs    map[chan struct{}]struct{}
	stopped bool
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier() *DefaultNotifier {
	return &DefaultNotifier{
		subs: make(map[chan struct{}]struct{}),
	}
}

// Subscribe registers a listener. The returned function unsubscribes and closes the channel.
func (n *DefaultNotifier) Subscribe() (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	if n.stopped {
		close(ch)
		return func() {}, ch
	}
	n.subs[ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[ch]; !ok {
			return
		}
		delete(n.subs, ch)
		drainAndClose(ch)
	}

	return unsub, ch
}

// Notify wakes every subscriber without blocking.
func (n *DefaultNotifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// StopAll closes every subscription; later subscriptions receive a closed channel.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	for ch := range n.subs {
		drainAndClose(ch)
		delete(n.subs, ch)
	}
}

// drainAndClose removes any buffered notifications before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
