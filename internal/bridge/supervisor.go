package bridge

import (
	"context"

	"github.com/pykoclaw/wa-bridge/internal/whatsapp"
)

// Connector is the slice of whatsapp.Adapter the supervisor needs to
// run the connection lifecycle, kept narrow so tests can fake it.
type Connector interface {
	Adapter
	Disconnect()
}

// Supervise builds the lifecycle supervisor's (C10) callbacks for the
// adapter; the caller installs them (whatsapp.Adapter.SetCallbacks).
// It does not block. ctx bounds the delivery poller started on
// Connected. OnMessage hands each event to HandleEvent on a new
// goroutine so the adapter's callback thread is not blocked by
// pipeline work; OnConnected flushes the outbound queue inline on the
// adapter's callback thread.
func (b *Bridge) Supervise(ctx context.Context, connector Connector) whatsapp.Callbacks {
	return whatsapp.Callbacks{
		OnQR: func(code string) {
			b.log.Info("auth: scan this QR code to link the WhatsApp account", "code", code)
		},
		OnConnected: func() {
			b.setSelfJID(connector.SelfJID())
			b.outq.SetConnected(true)
			b.outq.Flush(connector)
			b.startPoller(ctx)
			b.log.Info("bridge: connected", "self_jid", b.SelfJID())
		},
		OnDisconnected: func() {
			b.outq.SetConnected(false)
			b.stopPoller()
			b.log.Warn("bridge: disconnected", "queued", b.outq.Len())
		},
		OnMessage: func(ev whatsapp.Event) {
			go b.HandleEvent(ev)
		},
	}
}
