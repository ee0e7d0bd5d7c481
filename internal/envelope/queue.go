package envelope

import (
	"sync"

	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// DefaultQueueCapacity bounds the number of chunks waiting for analysis.
const DefaultQueueCapacity = 50

// EnqueueResult describes what Enqueue did with a chunk.
type EnqueueResult int

const (
	// Discarded means nobody was subscribed.
	Discarded EnqueueResult = iota
	// Queued means the chunk was appended.
	Queued
	// QueuedWithEviction means the oldest chunk was dropped to make room.
	QueuedWithEviction
)

// Queue is a bounded FIFO of capture chunks with drop-oldest backpressure.
// While unsubscribed it holds nothing. All methods are safe for concurrent
// use and never block beyond a short critical section.
type Queue struct {
	mu         sync.Mutex
	buf        []audio.Chunk
	head       int // index of the oldest entry
	size       int
	subscribed bool

	notify chan struct{}
}

// NewQueue creates an unsubscribed queue.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	return &Queue{
		buf:    make([]audio.Chunk, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends a chunk, evicting the oldest one when full.
func (q *Queue) Enqueue(c audio.Chunk) EnqueueResult {
	q.mu.Lock()
	if !q.subscribed {
		q.mu.Unlock()

		return Discarded
	}

	result := Queued
	if q.size == len(q.buf) {
		q.buf[q.head] = audio.Chunk{}
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		result = QueuedWithEviction
	}
	q.buf[(q.head+q.size)%len(q.buf)] = c
	q.size++
	q.mu.Unlock()

	q.signal()

	return result
}

// Subscribe enables queuing and wakes the consumer to flush anything pending.
func (q *Queue) Subscribe() {
	q.mu.Lock()
	q.subscribed = true
	q.mu.Unlock()

	q.signal()
}

// Unsubscribe disables queuing and drops every pending chunk.
func (q *Queue) Unsubscribe() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.subscribed = false
	q.clearLocked()
}

// Subscribed reports the subscription flag.
func (q *Queue) Subscribed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.subscribed
}

// Len returns the number of pending chunks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.size
}

// Pop removes the oldest chunk.
func (q *Queue) Pop() (audio.Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.subscribed || q.size == 0 {
		return audio.Chunk{}, false
	}

	c := q.buf[q.head]
	q.buf[q.head] = audio.Chunk{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--

	return c, true
}

// Drain pops chunks in FIFO order and hands each to fn outside the lock,
// stopping when the queue is empty or gets unsubscribed. It returns the
// number of chunks delivered.
func (q *Queue) Drain(fn func(audio.Chunk)) int {
	delivered := 0
	for {
		c, ok := q.Pop()
		if !ok {
			return delivered
		}
		fn(c)
		delivered++
	}
}

// Notify fires after an enqueue or subscribe. It is coalescing: several
// events may produce a single wake-up.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) clearLocked() {
	for i := range q.buf {
		q.buf[i] = audio.Chunk{}
	}
	q.head = 0
	q.size = 0
}
