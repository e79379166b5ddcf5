// Package opusrt provides the decode-side jitter buffer for the audio
// pipeline controller: an arrival-ordered min-heap of pending Opus frames,
// bounded by buffered duration rather than frame count.
package opusrt

import (
	"container/heap"
	"io"
	"sync"
	"time"
)

// defaultMaxBuffered is the ceiling on buffered audio if the queue is
// constructed without an explicit duration.
const defaultMaxBuffered = 2 * time.Minute

// queuedFrame is one pending Opus packet plus its declared duration.
type queuedFrame struct {
	stamp    int64 // arrival sequence; the heap orders frames by it alone
	payload  []byte
	duration time.Duration
}

type frameHeap []*queuedFrame

func (h frameHeap) Len() int            { return len(h) }
func (h frameHeap) Less(i, j int) bool  { return h[i].stamp < h[j].stamp }
func (h frameHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *frameHeap) Push(x interface{}) { *h = append(*h, x.(*queuedFrame)) }
func (h *frameHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// AudioFrameQueue holds and bounds pending decoded-audio Opus frames. The
// controller's playback path pushes each frame tagged with its own
// duration; frames are handed back out in arrival order, with no
// reordering and no gap or loss detection, simplified
// from the teacher's general-purpose timestamp buffer (it reordered frames
// across an unreliable network link; every producer here is a single local
// goroutine, so arrival order already is temporal order and only the
// duration bookkeeping and bound survive).
type AudioFrameQueue struct {
	maxBuffered time.Duration

	mu       sync.Mutex
	heap     frameHeap
	buffered time.Duration
	next     int64
}

// NewAudioFrameQueue returns an empty queue bounded by maxBuffered. A zero
// duration uses defaultMaxBuffered.
func NewAudioFrameQueue(maxBuffered time.Duration) *AudioFrameQueue {
	if maxBuffered <= 0 {
		maxBuffered = defaultMaxBuffered
	}
	return &AudioFrameQueue{maxBuffered: maxBuffered}
}

// Push appends a frame with its playback duration, dropping the oldest
// queued frames if the bound is exceeded.
func (q *AudioFrameQueue) Push(payload []byte, duration time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	heap.Push(&q.heap, &queuedFrame{stamp: q.next, payload: payload, duration: duration})
	q.next++
	q.buffered += duration

	for q.buffered > q.maxBuffered && q.heap.Len() > 1 {
		dropped := heap.Pop(&q.heap).(*queuedFrame)
		q.buffered -= dropped.duration
	}
}

// Pop returns the next frame in order, or io.EOF if the queue is empty.
func (q *AudioFrameQueue) Pop() ([]byte, time.Duration, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil, 0, io.EOF
	}
	f := heap.Pop(&q.heap).(*queuedFrame)
	q.buffered -= f.duration
	return f.payload, f.duration, nil
}

// Len reports the number of frames currently queued.
func (q *AudioFrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Empty reports whether the queue has no pending frames.
func (q *AudioFrameQueue) Empty() bool {
	return q.Len() == 0
}

// Clear discards every pending frame.
func (q *AudioFrameQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heap = nil
	q.buffered = 0
}

// Buffered returns the total duration of queued audio.
func (q *AudioFrameQueue) Buffered() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buffered
}
