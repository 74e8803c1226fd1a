// Package outqueue implements the outbound queue (C4): it buffers
// outbound sends while the WhatsApp adapter is disconnected and
// flushes them, in order, on reconnect, absorbing per-send failures by
// re-queuing.
package outqueue

import (
	"fmt"
	"log/slog"
	"sync"
)

// Sender is the subset of the WhatsApp adapter the queue needs to
// deliver a message (spec §6's send_message).
type Sender interface {
	SendMessage(target, text string) error
}

type queuedMessage struct {
	target string
	text   string
}

// Queue is a thread-safe FIFO of outbound messages, grounded on
// original_source/pykoclaw_whatsapp/queue.py's OutgoingQueue.
type Queue struct {
	mu        sync.Mutex
	pending   []queuedMessage
	connected bool
	flushing  bool
	log       *slog.Logger
}

// New creates an empty, disconnected queue.
func New(log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{log: log}
}

// SetConnected updates the adapter's connection state. The bridge's
// lifecycle supervisor calls this from its Connected/Disconnected
// callbacks.
func (q *Queue) SetConnected(connected bool) {
	q.mu.Lock()
	q.connected = connected
	q.mu.Unlock()
}

// Connected reports the queue's last-known connection state.
func (q *Queue) Connected() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.connected
}

// Len returns the number of messages currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) enqueueLocked(target, text string) {
	q.pending = append(q.pending, queuedMessage{target: target, text: text})
	q.log.Info("message queued", "target", target, "len", len(text), "queue_size", len(q.pending))
}

// Send delivers text to target via sender, queuing it instead if the
// adapter is disconnected or the send itself fails. Errors are logged,
// not returned — callers that only want best-effort delivery (C8's
// agent-reply sends) don't need a result.
func (q *Queue) Send(sender Sender, target, text string) {
	_ = q.SendOrError(sender, target, text)
}

// SendOrError is Send, but reports whether the message was actually
// delivered synchronously. The delivery poller (C9) needs this
// definitive signal to choose between mark_delivered and mark_failed.
// Like Send, it still queues the message when disconnected or when the
// send fails, so a message whose row is marked failed can be delivered
// later by Flush.
func (q *Queue) SendOrError(sender Sender, target, text string) error {
	q.mu.Lock()
	connected := q.connected
	q.mu.Unlock()

	if !connected {
		q.mu.Lock()
		q.enqueueLocked(target, text)
		q.mu.Unlock()
		return fmt.Errorf("not connected")
	}

	if err := sender.SendMessage(target, text); err != nil {
		q.mu.Lock()
		q.enqueueLocked(target, text)
		q.mu.Unlock()
		q.log.Warn("send failed, message queued", "target", target, "error", err)
		return fmt.Errorf("send message: %w", err)
	}

	q.log.Info("message sent", "target", target, "len", len(text))
	return nil
}

// Flush drains the queue via sender, called on reconnect. It is a
// no-op if already flushing (re-entrancy guard — reconnect callbacks
// can fire concurrently) or if the queue is empty. Since Send
// re-enqueues on failure, the loop is bounded to the queue's length at
// the moment Flush started rather than looping until empty — under
// sustained send failures, an unbounded loop would never terminate
// (spec §9).
func (q *Queue) Flush(sender Sender) {
	q.mu.Lock()
	if q.flushing || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	q.flushing = true
	rounds := len(q.pending)
	q.log.Info("flushing outgoing message queue", "count", rounds)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	for i := 0; i < rounds; i++ {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		item := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.Send(sender, item.target, item.text)
	}
}
