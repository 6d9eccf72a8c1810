package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Envelope is one published event, already encoded for the wire.
type Envelope struct {
	Seq     int64
	Kind    string
	Payload any
	Wire    []byte
}

// Recorder receives every published envelope, in order, on the publisher's
// goroutine. Implemented by the optional event journal. Recording failures
// must be handled by the recorder itself; Publish never fails on their
// account.
type Recorder interface {
	Record(investigationID string, env Envelope)
}

// Bus is the ordered event stream of a single investigation. Publish is
// called only from the supervisor goroutine, which gives the stream its
// total order. Subscribers consume through bounded queues; a subscriber that
// falls more than queueLen events behind is disconnected rather than allowed
// to stall the supervisor.
type Bus struct {
	investigationID string
	queueLen        int
	recorder        Recorder

	mu         sync.Mutex
	seq        int64
	subs       map[string]*Subscription
	closed     bool
	snapshotFn func() SnapshotPayload
}

// Subscription is one consumer of the bus. Events arrives on C in publish
// order; C is closed when the bus closes or the subscriber is dropped for
// falling behind.
type Subscription struct {
	ID string
	C  <-chan Envelope

	ch  chan Envelope
	bus *Bus
}

// Cancel detaches the subscription from the bus.
func (s *Subscription) Cancel() {
	s.bus.drop(s.ID, false)
}

// NewBus creates the event bus for one investigation. queueLen bounds each
// subscriber's queue.
func NewBus(investigationID string, queueLen int, recorder Recorder) *Bus {
	if queueLen <= 0 {
		queueLen = 1024
	}
	return &Bus{
		investigationID: investigationID,
		queueLen:        queueLen,
		recorder:        recorder,
		subs:            make(map[string]*Subscription),
	}
}

// SetSnapshotFn installs the callback that builds the snapshot payload for
// late subscribers. Called once by the supervisor before any subscription.
func (b *Bus) SetSnapshotFn(fn func() SnapshotPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshotFn = fn
}

// Publish encodes and delivers an event to all subscribers and the recorder.
// Must only be called from the investigation's supervisor goroutine.
func (b *Bus) Publish(kind string, payload any) (Envelope, error) {
	wire, err := Encode(kind, payload)
	if err != nil {
		return Envelope{}, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Envelope{}, ErrBusClosed
	}
	b.seq++
	env := Envelope{Seq: b.seq, Kind: kind, Payload: payload, Wire: wire}

	var dropped []string
	for id, sub := range b.subs {
		select {
		case sub.ch <- env:
		default:
			// Queue overflow: disconnect the slow subscriber.
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		sub := b.subs[id]
		delete(b.subs, id)
		close(sub.ch)
	}
	b.mu.Unlock()

	if len(dropped) > 0 {
		slog.Warn("Disconnected slow event subscribers",
			"investigation_id", b.investigationID,
			"count", len(dropped),
			"queue_len", b.queueLen)
	}

	if b.recorder != nil {
		b.recorder.Record(b.investigationID, env)
	}
	return env, nil
}

// Seq returns the sequence number of the last published event.
func (b *Bus) Seq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Subscribe attaches a new consumer. A subscriber joining after events have
// been published first receives a snapshot event summarizing current state,
// then live events.
func (b *Bus) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	ch := make(chan Envelope, b.queueLen)
	sub := &Subscription{
		ID:  uuid.New().String(),
		C:   ch,
		ch:  ch,
		bus: b,
	}

	if b.seq > 0 && b.snapshotFn != nil {
		snap := b.snapshotFn()
		if wire, err := Encode(KindSnapshot, snap); err == nil {
			ch <- Envelope{Seq: snap.LastSeq, Kind: KindSnapshot, Payload: snap, Wire: wire}
		}
	}

	b.subs[sub.ID] = sub
	return sub, nil
}

// Close terminates all subscriptions. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) drop(id string, _ bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}
