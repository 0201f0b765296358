package job

import (
	"log/slog"
	"sync"

	"github.com/espeech/espeech-api/internal/domain/model"
)

const defaultEventBuffer = 16

// SnapshotFunc returns the current state of a job as an event, or false if the job is unknown.
type SnapshotFunc func() (model.StatusEvent, bool)

// BroadcasterOptions configure a Broadcaster.
type BroadcasterOptions struct {
	// Buffer is the per-subscriber channel capacity.
	Buffer int
	Logger *slog.Logger
	// OnDrop is called when a buffered event is discarded for a slow subscriber.
	OnDrop func(jobID string)
}

// Broadcaster fans job status events out to per-job subscribers.
//
// Delivery never blocks the publisher. When a subscriber's buffer is full the
// oldest buffered event is discarded so the newest state, and in particular the
// terminal event, is always retained. After a terminal event every subscription
// for that job is closed.
type Broadcaster struct {
	buffer int
	logger *slog.Logger
	onDrop func(jobID string)

	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// Subscription receives status events for a single job.
type Subscription struct {
	jobID   string
	ch      chan model.StatusEvent
	lastSeq uint64
	done    bool
	b       *Broadcaster
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(opts BroadcasterOptions) *Broadcaster {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		buffer: buffer,
		logger: logger.With("component", "event_broadcaster"),
		onDrop: opts.OnDrop,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber for jobID and emits the job's current state first.
// The snapshot is taken while publishes are held off, so no transition is lost between
// the snapshot and registration. It returns false when the job is unknown.
func (b *Broadcaster) Subscribe(jobID string, snapshot SnapshotFunc) (*Subscription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := snapshot()
	if !ok {
		return nil, false
	}

	sub := &Subscription{
		jobID: jobID,
		ch:    make(chan model.StatusEvent, b.buffer),
		b:     b,
	}
	sub.deliver(current)

	if current.Terminal() || b.closed {
		sub.finish()
		return sub, true
	}

	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[*Subscription]struct{})
	}
	b.subs[jobID][sub] = struct{}{}
	return sub, true
}

// Publish delivers ev to every current subscriber of its job.
func (b *Broadcaster) Publish(ev model.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers := b.subs[ev.JobID]
	for sub := range subscribers {
		if sub.deliver(ev) {
			b.logger.Debug("dropped buffered event for slow subscriber", "job_id", ev.JobID)
			if b.onDrop != nil {
				b.onDrop(ev.JobID)
			}
		}
		if ev.Terminal() {
			sub.finish()
		}
	}
	if ev.Terminal() {
		delete(b.subs, ev.JobID)
	}
}

// SubscriberCount returns the number of open subscriptions for jobID.
func (b *Broadcaster) SubscriberCount(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}

// CloseAll closes every subscription. Later subscriptions receive only the snapshot.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for jobID, subscribers := range b.subs {
		for sub := range subscribers {
			sub.finish()
		}
		delete(b.subs, jobID)
	}
}

// Events returns the event channel. It is closed after the terminal event or on Close.
func (s *Subscription) Events() <-chan model.StatusEvent {
	return s.ch
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers := b.subs[s.jobID]; subscribers != nil {
		delete(subscribers, s)
		if len(subscribers) == 0 {
			delete(b.subs, s.jobID)
		}
	}
	s.finish()
}

// deliver enqueues ev without blocking and reports whether an older event was dropped.
// Events at or below the last delivered sequence are ignored. Callers hold b.mu.
func (s *Subscription) deliver(ev model.StatusEvent) bool {
	if s.done || (s.lastSeq != 0 && ev.Seq <= s.lastSeq) {
		return false
	}
	s.lastSeq = ev.Seq

	select {
	case s.ch <- ev:
		return false
	default:
	}

	// Full: discard the oldest event to make room. The publisher is the only sender.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- ev:
	default:
	}
	return true
}

// finish closes the channel once. Callers hold b.mu.
func (s *Subscription) finish() {
	if s.done {
		return
	}
	s.done = true
	close(s.ch)
}
