package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/pykoclaw/wa-bridge/internal/reply"
	"github.com/pykoclaw/wa-bridge/internal/store"
)

// waChannel is the pending_deliveries channel name this bridge scans.
const waChannel = "wa"

// startPoller launches the delivery poller (C9): a periodic task,
// period cfg.PollInterval (default 10s), scanning every known store
// for pending agent-initiated deliveries. Called by the lifecycle
// supervisor on Connected; stopPoller cancels it on Disconnected. Cancellation is cooperative — the in-progress tick
// always completes (spec §5).
func (b *Bridge) startPoller(ctx context.Context) {
	b.mu.Lock()
	if b.pollerCancel != nil {
		b.mu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	b.pollerCancel = cancel
	b.mu.Unlock()

	go func() {
		ticker := time.NewTicker(b.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				b.pollOnce()
			}
		}
	}()
}

// stopPoller cancels the delivery poller, if running.
func (b *Bridge) stopPoller() {
	b.mu.Lock()
	cancel := b.pollerCancel
	b.pollerCancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// pollOnce runs a single delivery-poll tick across every known store.
// A scan failure on one store never prevents the others from being
// scanned in the same tick (spec §4.9).
func (b *Bridge) pollOnce() {
	for _, s := range b.knownStores() {
		b.pollStore(s)
	}
}

func (b *Bridge) pollStore(s *store.Store) {
	deliveries, err := s.PendingDeliveries(waChannel)
	if err != nil {
		b.log.Error("poller: scan pending deliveries failed", "error", err)
		return
	}

	for _, d := range deliveries {
		b.deliverOne(s, d)
	}
}

func (b *Bridge) deliverOne(s *store.Store, d store.PendingDelivery) {
	agent, chat, legacy := b.routes.ParseConversation(d.Conversation)
	if agent == nil {
		if err := s.MarkFailed(d.ID, "unparseable conversation name"); err != nil {
			b.log.Error("poller: mark failed error", "id", d.ID, "error", err)
		}
		return
	}
	if legacy {
		b.log.Warn("poller: delivering via legacy conversation name", "conversation", d.Conversation, "chat", chat)
	}

	message := d.Message
	if b.routes.IsMulti(chat) {
		message = reply.PrefixAgent(agent.Name, message)
	}

	if err := b.outq.SendOrError(b.adapter, chat, message); err != nil {
		if err := s.MarkFailed(d.ID, fmt.Sprintf("send failed: %v", err)); err != nil {
			b.log.Error("poller: mark failed error", "id", d.ID, "error", err)
		}
		return
	}
	if err := s.MarkDelivered(d.ID); err != nil {
		b.log.Error("poller: mark delivered error", "id", d.ID, "error", err)
	}
}
