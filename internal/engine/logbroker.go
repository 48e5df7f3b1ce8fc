package engine

import "sync"

// subscriberBufferSize is how many benchmark output lines a live viewer may
// lag behind before further lines are skipped for it. The store keeps them all.
const subscriberBufferSize = 64

// LogBroker relays the stdout and stderr lines of in-flight executions to live
// viewers. The engine publishes each line as the launcher emits it and closes
// the execution once its completion has been recorded. It is safe for
// concurrent use.
//
// A finished execution stays marked as closed, so a viewer that subscribes
// after the benchmark exited gets a closed channel.
type LogBroker struct {
	mu     sync.Mutex
	topics map[string]*logTopic
}

type logTopic struct {
	subs   map[int]chan string
	nextID int
	closed bool
}

// NewLogBroker creates a new log broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{
		topics: make(map[string]*logTopic),
	}
}

// Subscribe returns the output lines of executionID from now on and a
// function that stops delivery. The channel is closed when the benchmark's
// completion is recorded.
func (b *LogBroker) Subscribe(executionID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok {
		t = &logTopic{subs: make(map[int]chan string)}
		b.topics[executionID] = t
	}

	ch := make(chan string, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish relays one output line to the viewers of executionID. Viewers whose
// buffers are full miss the line.
func (b *LogBroker) Publish(executionID string, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Close ends the output stream of executionID for current and later viewers.
func (b *LogBroker) Close(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok {
		b.topics[executionID] = &logTopic{subs: make(map[int]chan string), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
