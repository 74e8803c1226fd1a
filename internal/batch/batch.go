// Package batch implements the batch accumulator (C5): a per-chat
// debounce timer with a single-flight lock, a pending-reflush bit, and
// an immediate-flush path for hard-mention events.
//
// The accumulator tracks only chat identities, never message content —
// the store is the source of truth for what a batch actually contains
// (spec §4.5). Its job is purely to decide *when* to call the flush
// callback and to guarantee that callback never runs twice
// concurrently for the same chat.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FlushFunc is invoked when a chat's batch should be processed. hard
// reports whether this flush was triggered by a hard-mention event
// rather than the debounce timer expiring.
type FlushFunc func(ctx context.Context, chat string, hard bool)

type chatState struct {
	timer          *time.Timer
	flushing       bool
	pendingReflush bool
	flushMu        sync.Mutex
}

// Accumulator coordinates per-chat debounce timers and single-flight
// flush execution.
type Accumulator struct {
	mu     sync.Mutex
	window time.Duration
	flush  FlushFunc
	chats  map[string]*chatState
	log    *slog.Logger
}

// New creates an accumulator with the given debounce window. flush is
// called — possibly from a timer goroutine — whenever a chat's batch
// should be processed.
func New(window time.Duration, flush FlushFunc, log *slog.Logger) *Accumulator {
	if log == nil {
		log = slog.Default()
	}
	return &Accumulator{
		window: window,
		flush:  flush,
		chats:  make(map[string]*chatState),
		log:    log,
	}
}

func (a *Accumulator) stateLocked(chat string) *chatState {
	st, ok := a.chats[chat]
	if !ok {
		st = &chatState{}
		a.chats[chat] = st
	}
	return st
}

// Add records a new message for chat. If no debounce timer is
// currently pending for this chat, one is started; if a timer is
// already pending, the message rides along with it (the window does
// not reset on every message — it is anchored to the first message of
// the batch). If a flush for this chat is in progress right now, the
// message instead sets the chat's pending-reflush bit, so a fresh
// debounce window starts once the in-flight flush completes.
func (a *Accumulator) Add(chat string) {
	a.mu.Lock()
	st := a.stateLocked(chat)

	if st.flushing {
		st.pendingReflush = true
		a.mu.Unlock()
		return
	}
	if st.timer != nil {
		a.mu.Unlock()
		return
	}

	st.timer = time.AfterFunc(a.window, func() { a.timerExpired(chat) })
	a.mu.Unlock()
}

func (a *Accumulator) timerExpired(chat string) {
	a.mu.Lock()
	if st, ok := a.chats[chat]; ok {
		st.timer = nil
	}
	a.mu.Unlock()

	a.doFlush(context.Background(), chat, false)
}

// FlushNow cancels chat's pending debounce timer, if any, and flushes
// immediately with hard=true. Used for hard-mention events, which must
// not wait out the debounce window.
func (a *Accumulator) FlushNow(ctx context.Context, chat string) {
	a.mu.Lock()
	st := a.stateLocked(chat)
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	a.mu.Unlock()

	a.doFlush(ctx, chat, true)
}

// doFlush runs the flush callback under the chat's single-flight lock:
// a concurrent flush request for the same chat blocks until this one
// finishes rather than running in parallel or being dropped. Once the
// callback returns, a pending-reflush bit set while it was running
// triggers a fresh Add so messages that arrived mid-flush aren't lost.
func (a *Accumulator) doFlush(ctx context.Context, chat string, hard bool) {
	a.mu.Lock()
	st := a.stateLocked(chat)
	st.flushing = true
	a.mu.Unlock()

	st.flushMu.Lock()
	a.runFlush(ctx, chat, hard)
	st.flushMu.Unlock()

	a.mu.Lock()
	st.flushing = false
	reflush := st.pendingReflush
	st.pendingReflush = false
	a.mu.Unlock()

	if reflush {
		a.Add(chat)
	}
}

func (a *Accumulator) runFlush(ctx context.Context, chat string, hard bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("batch flush panicked", "chat", chat, "hard", hard, "panic", r)
		}
	}()
	a.flush(ctx, chat, hard)
}
