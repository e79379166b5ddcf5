// Package orchestrator wires the Device State Machine (C6), the Alarm
// Pre-emption Protocol (C7), and the Task Serializer (C8) together into the
// single serialized loop that the rest of the core mutates state through.
package orchestrator

import (
	"sync"

	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
)

// DefaultQueueDepth bounds the serializer's task queue.
const DefaultQueueDepth = 64

// Serializer is a single-consumer FIFO queue of closures: every mutation of
// device state, the alarm store, the audio pipeline, and outgoing protocol
// messages happens on its drain loop, per spec.md §4.1. Grounded on
// chatgear.ClientPort's single-owner-goroutine pattern
// (streamingInputLoop) and HandleCommand's bounded-channel,
// drop-and-log-on-full behavior.
type Serializer struct {
	logger logging.Logger
	tasks  chan func()
	done   chan struct{}

	closeOnce sync.Once
}

// NewSerializer constructs a Serializer with the given queue depth (0 uses
// DefaultQueueDepth) and starts its drain loop.
func NewSerializer(queueDepth int, logger logging.Logger) *Serializer {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if logger == nil {
		logger = logging.Noop()
	}
	s := &Serializer{
		logger: logger,
		tasks:  make(chan func(), queueDepth),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Serializer) run() {
	for task := range s.tasks {
		task()
	}
	close(s.done)
}

// Enqueue posts task onto the queue. It never blocks the caller
// indefinitely: if the queue is full, the task is dropped and logged,
// mirroring ClientPort.HandleCommand's "channel full, drop command"
// fallback — callable safely from any goroutine, including an interrupt
// handler's Go analogue (a hardware-event callback).
func (s *Serializer) Enqueue(task func()) {
	select {
	case s.tasks <- task:
	default:
		s.logger.WarnPrintf("serializer: task queue full, dropping task")
	}
}

// Stop closes the queue and waits for the drain loop to finish processing
// whatever is already enqueued.
func (s *Serializer) Stop() {
	s.closeOnce.Do(func() {
		close(s.tasks)
	})
	<-s.done
}
