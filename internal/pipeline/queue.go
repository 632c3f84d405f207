package pipeline

import "sync/atomic"

// Queue is a bounded frame queue between the capture callback and the
// sender. When full, Push discards the oldest frame. Push and Close must be
// called from a single producer goroutine.
type Queue struct {
	ch      chan []byte
	dropped atomic.Int64
}

// NewQueue creates a queue holding up to size frames.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan []byte, size)}
}

// Push enqueues frame without blocking and reports whether an older frame
// was discarded to make room.
func (q *Queue) Push(frame []byte) (dropped bool) {
	for {
		select {
		case q.ch <- frame:
			return dropped
		default:
		}
		select {
		case <-q.ch:
			dropped = true
			q.dropped.Add(1)
		default:
		}
	}
}

// C returns the receive side of the queue.
func (q *Queue) C() <-chan []byte {
	return q.ch
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns the number of frames discarded so far.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Close ends the queue; the consumer drains what is left.
func (q *Queue) Close() {
	close(q.ch)
}
