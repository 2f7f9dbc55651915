package ingest

import "sync"

// Message is one raw inbound Slack message awaiting extraction. The pair
// (Channel, TS) is the natural key for everything derived from it.
type Message struct {
	Text     string `json:"text"`
	User     string `json:"user"`
	Channel  string `json:"channel"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// Queue is an unbounded FIFO buffer of inbound messages. The Socket Mode
// reader enqueues from its own goroutine while a single drainer consumes,
// so access is mutex-guarded.
type Queue struct {
	mu    sync.Mutex
	items []Message
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends msg to the tail. No validation and no backpressure: the
// drainer is expected to keep pace.
func (q *Queue) Enqueue(msg Message) {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
}

// Dequeue removes and returns the head, with ok=false when the queue is empty.
func (q *Queue) Dequeue() (Message, bool) {
	if q == nil {
		return Message{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Message{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// Size reports the current depth.
func (q *Queue) Size() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
