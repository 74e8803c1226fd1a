// Package whatsapp adapts go.mau.fi/whatsmeow to the bridge's external
// adapter contract (spec §6): connect/disconnect, an authenticated-self
// identifier, send_message, send_chat_presence, and callbacks for QR,
// Connected, Disconnected, and Message events.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// StatusBroadcastJID is the synthetic chat identifier for WhatsApp's
// status-update channel. It is never persisted or routed (spec §3).
const StatusBroadcastJID = "status@broadcast"

func init() {
	whatsmeow.KeepAliveMaxFailTime = 30 * time.Second
}

// SetDeviceName sets the name shown in WhatsApp > Linked Devices. Must
// be called before Connect.
func SetDeviceName(name string) {
	store.SetOSInfo(name, [3]uint32{1, 0, 0})
}

// Event carries one inbound WhatsApp message, as handed to the
// Message callback (spec §6): chat_jid, sender_jid, push_name,
// is_from_me, is_group, timestamp_ms, and the raw message body union
// for text extraction (see ExtractText).
type Event struct {
	ChatJID     string
	SenderJID   string
	PushName    string
	IsFromMe    bool
	IsGroup     bool
	TimestampMS int64
	MessageID   string
	Body        *waProto.Message
}

// Callbacks are the adapter's event sinks. Any nil callback is simply
// not invoked.
type Callbacks struct {
	OnQR           func(code string)
	OnConnected    func()
	OnDisconnected func()
	OnMessage      func(Event)
}

// Adapter wraps a whatsmeow client, translating its events into the
// bridge's adapter contract.
type Adapter struct {
	wac *whatsmeow.Client
	log *slog.Logger

	mu        sync.RWMutex
	cb        Callbacks
	connected bool
}

// Connect opens (or creates) the whatsmeow session store at
// sessionDBPath and connects, with no callbacks registered yet — call
// SetCallbacks on the returned adapter. Matching the teacher's
// own internal/daemon wiring (whatsapp.Connect first, then
// client.OnMessage/OnConnectionEvent registered against the returned
// client), this breaks what would otherwise be a construction cycle
// between the adapter and the Bridge that wraps it: the Bridge needs a
// live *Adapter to build, and the adapter's callbacks need a live
// Bridge to call into.
func Connect(ctx context.Context, sessionDBPath string, log *slog.Logger) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}

	container, err := sqlstore.New(ctx, "sqlite3", "file:"+sessionDBPath+"?_foreign_keys=on", waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open whatsmeow session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	wac := whatsmeow.NewClient(deviceStore, waLog.Noop)
	a := &Adapter{wac: wac, log: log}
	a.registerEvents()

	if wac.Store.ID == nil {
		qrChan, _ := wac.GetQRChannel(ctx)
		if err := wac.Connect(); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		go a.pumpQR(qrChan)
	} else {
		if err := wac.Connect(); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	return a, nil
}

// SetCallbacks installs the adapter's event sinks. Safe to call at any
// time after Connect returns; events that fire between construction and
// this call are simply dropped (zero-value Callbacks is all no-ops).
func (a *Adapter) SetCallbacks(cb Callbacks) {
	a.mu.Lock()
	a.cb = cb
	a.mu.Unlock()
}

func (a *Adapter) callbacks() Callbacks {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cb
}

func (a *Adapter) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			if cb := a.callbacks().OnQR; cb != nil {
				cb(item.Code)
			}
		case "success":
			a.log.Info("whatsapp: paired successfully")
		}
	}
}

func (a *Adapter) registerEvents() {
	a.wac.AddEventHandler(func(raw any) {
		switch evt := raw.(type) {
		case *events.Connected:
			a.setConnected(true)
			_ = a.wac.SendPresence(context.Background(), types.PresenceAvailable)
			if cb := a.callbacks().OnConnected; cb != nil {
				cb()
			}
		case *events.Disconnected:
			a.setConnected(false)
			if cb := a.callbacks().OnDisconnected; cb != nil {
				cb()
			}
		case *events.LoggedOut:
			a.setConnected(false)
			if cb := a.callbacks().OnDisconnected; cb != nil {
				cb()
			}
		case *events.Message:
			a.handleMessage(evt)
		}
	})
}

func (a *Adapter) handleMessage(evt *events.Message) {
	cb := a.callbacks().OnMessage
	if cb == nil {
		return
	}
	info := evt.Info
	cb(Event{
		ChatJID:     info.Chat.String(),
		SenderJID:   info.Sender.String(),
		PushName:    info.PushName,
		IsFromMe:    info.IsFromMe,
		IsGroup:     info.IsGroup,
		TimestampMS: info.Timestamp.UnixMilli(),
		MessageID:   info.ID,
		Body:        evt.Message,
	})
}

func (a *Adapter) setConnected(v bool) {
	a.mu.Lock()
	a.connected = v
	a.mu.Unlock()
}

// Connected reports the adapter's last-known connection state.
func (a *Adapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// SelfJID returns the authenticated account's JID, or "" if not yet
// paired.
func (a *Adapter) SelfJID() string {
	if a.wac.Store.ID == nil {
		return ""
	}
	return a.wac.Store.ID.String()
}

// Disconnect closes the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.wac.Disconnect()
}

// SendMessage sends a text message to target. Satisfies
// outqueue.Sender.
func (a *Adapter) SendMessage(target, text string) error {
	jid, err := types.ParseJID(target)
	if err != nil {
		return fmt.Errorf("invalid target JID: %w", err)
	}
	msg := &waProto.Message{Conversation: proto.String(text)}
	_, err = a.wac.SendMessage(context.Background(), jid, msg)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendChatPresence sends a best-effort typing indicator to target.
// Errors are logged, not returned, since presence is cosmetic (spec
// §4.8: "best-effort, errors swallowed").
func (a *Adapter) SendChatPresence(target string, composing bool) {
	jid, err := types.ParseJID(target)
	if err != nil {
		a.log.Warn("whatsapp: invalid presence target", "target", target, "error", err)
		return
	}
	state := types.ChatPresencePaused
	if composing {
		state = types.ChatPresenceComposing
	}
	if err := a.wac.SendChatPresence(context.Background(), jid, state, ""); err != nil {
		a.log.Warn("whatsapp: send presence failed", "target", target, "error", err)
	}
}

// MarkRead sends read receipts for messageIDs in chatJID, best-effort.
func (a *Adapter) MarkRead(chatJID, senderJID string, messageIDs []string) {
	chat, err := types.ParseJID(chatJID)
	if err != nil {
		return
	}
	sender, err := types.ParseJID(senderJID)
	if err != nil {
		return
	}
	if err := a.wac.MarkRead(context.Background(), messageIDs, time.Now(), chat, sender); err != nil {
		a.log.Warn("whatsapp: mark read failed", "chat", chatJID, "error", err)
	}
}

// ConnectForQR opens a fresh (unpaired) session for a web-based QR
// pairing flow (cmd/wabridge's auth subcommand): it returns the raw
// whatsmeow QR channel instead of routing through Callbacks, so a
// caller can stream codes to a browser over a websocket.
func ConnectForQR(ctx context.Context, sessionDBPath string) (*whatsmeow.Client, <-chan whatsmeow.QRChannelItem, error) {
	if err := os.MkdirAll(dirOf(sessionDBPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create session dir: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+sessionDBPath+"?_foreign_keys=on", waLog.Noop)
	if err != nil {
		return nil, nil, fmt.Errorf("open whatsmeow session store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load device: %w", err)
	}
	wac := whatsmeow.NewClient(deviceStore, waLog.Noop)
	if wac.Store.ID != nil {
		return nil, nil, fmt.Errorf("already paired, remove the session database first")
	}
	qrChan, _ := wac.GetQRChannel(ctx)
	if err := wac.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return wac, qrChan, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
