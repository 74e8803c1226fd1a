package bridge

import (
	"context"
	"time"

	"github.com/pykoclaw/wa-bridge/internal/classify"
	"github.com/pykoclaw/wa-bridge/internal/whatsapp"
)

// tsLayout is full-precision, zero-padded ISO-8601 UTC — ordering this
// format lexicographically matches chronological order (spec §3).
const tsLayout = "2006-01-02T15:04:05.000Z"

// HandleEvent is the inbound handler (C7). It is called from the
// adapter's Message callback; per spec §5 that callback runs on a
// foreign thread and must return quickly, so the adapter wiring in
// Supervise invokes this inside its own goroutine rather than directly
// on whatsmeow's dispatch goroutine.
func (b *Bridge) HandleEvent(ev whatsapp.Event) {
	if ev.ChatJID == whatsapp.StatusBroadcastJID {
		return
	}

	text, ok := whatsapp.ExtractText(ev.Body)
	if !ok {
		return
	}

	ts := time.UnixMilli(ev.TimestampMS).UTC().Format(tsLayout)

	if err := b.store.AppendMessage(ev.ChatJID, ev.SenderJID, text, ts, ev.IsFromMe); err != nil {
		b.log.Error("handler: append message failed", "chat", ev.ChatJID, "error", err)
		return
	}
	if err := b.store.UpdateChatLastTimestamp(ev.ChatJID, ts); err != nil {
		b.log.Error("handler: update chat cursor failed", "chat", ev.ChatJID, "error", err)
		return
	}
	if err := b.store.UpdateGlobalCursor(ts); err != nil {
		b.log.Error("handler: update global cursor failed", "chat", ev.ChatJID, "error", err)
		return
	}

	if ev.IsFromMe {
		return
	}

	if ev.MessageID != "" {
		b.adapter.MarkRead(ev.ChatJID, ev.SenderJID, []string{ev.MessageID})
	}

	selfChat := classify.IsSelfChat(ev.ChatJID, b.SelfJID(), ev.IsGroup)
	mentioned := classify.FindHardMentions(text, b.routes.AllTriggerNames())

	if selfChat || len(mentioned) > 0 {
		b.acc.FlushNow(context.Background(), ev.ChatJID)
		return
	}
	b.acc.Add(ev.ChatJID)
}
