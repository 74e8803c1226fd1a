// Package bridge wires the routing table, store, batch accumulator,
// outbound queue, reply extractor, and agent dispatcher together into
// the running WhatsApp-to-agent pipeline (C7–C10).
package bridge

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pykoclaw/wa-bridge/internal/batch"
	"github.com/pykoclaw/wa-bridge/internal/dispatch"
	"github.com/pykoclaw/wa-bridge/internal/outqueue"
	"github.com/pykoclaw/wa-bridge/internal/router"
	"github.com/pykoclaw/wa-bridge/internal/store"
	"github.com/pykoclaw/wa-bridge/internal/whatsapp"
)

// Adapter is the subset of whatsapp.Adapter the bridge depends on —
// declared narrowly here so tests can supply a fake instead of a real
// whatsmeow connection.
type Adapter interface {
	outqueue.Sender
	SendChatPresence(target string, composing bool)
	SelfJID() string
	MarkRead(chatJID, senderJID string, messageIDs []string)
}

// Bridge owns C7 (inbound handler), C8 (dispatch orchestrator), C9
// (delivery poller), and C10 (lifecycle supervisor). One struct, many
// files — grounded on the teacher's internal/daemon.Daemon, which
// likewise spreads one receiver's methods across several files mapped
// to pipeline stages.
type Bridge struct {
	cfg        BridgeConfig
	routes     *router.Table
	store      *store.Store
	adapter    Adapter
	outq       *outqueue.Queue
	acc        *batch.Accumulator
	dispatcher dispatch.Dispatcher
	log        *slog.Logger

	mu           sync.Mutex
	selfJID      string
	agentStores  map[string]*store.Store
	pollerCancel func()
}

// BridgeConfig carries the knobs the bridge needs beyond its
// collaborators.
type BridgeConfig struct {
	BatchWindow    time.Duration
	PollInterval   time.Duration
	DefaultStore   string
	DefaultDataDir string
}

// New assembles a Bridge. The returned Bridge does not yet run
// anything — install the callbacks returned by Supervise on the
// adapter to start it.
func New(cfg BridgeConfig, routes *router.Table, st *store.Store, adapter Adapter, dispatcher dispatch.Dispatcher, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	b := &Bridge{
		cfg:         cfg,
		routes:      routes,
		store:       st,
		adapter:     adapter,
		outq:        outqueue.New(log),
		dispatcher:  dispatcher,
		log:         log,
		agentStores: make(map[string]*store.Store),
	}
	b.acc = batch.New(cfg.BatchWindow, b.onFlush, log)
	return b
}

// storeFor returns the store an agent's dispatch should use: its own
// lazily-opened, cached store if it declares one, otherwise the
// bridge's own store (spec §9 "Lazy per-agent stores").
func (b *Bridge) storeFor(agent router.Agent) (*store.Store, error) {
	if agent.StorePath == "" {
		return b.store, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.agentStores[agent.Name]; ok {
		return s, nil
	}
	s, err := store.Open(agent.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store for agent %s: %w", agent.Name, err)
	}
	b.agentStores[agent.Name] = s
	return s, nil
}

// knownStores returns the bridge's own store plus every per-agent
// store opened so far, for the delivery poller to scan.
func (b *Bridge) knownStores() []*store.Store {
	b.mu.Lock()
	defer b.mu.Unlock()

	stores := make([]*store.Store, 0, len(b.agentStores)+1)
	stores = append(stores, b.store)
	for _, s := range b.agentStores {
		stores = append(stores, s)
	}
	return stores
}

func (b *Bridge) setSelfJID(jid string) {
	b.mu.Lock()
	b.selfJID = jid
	b.mu.Unlock()
}

// SelfJID returns the authenticated account's JID, set once at
// connect and read thereafter (spec §5).
func (b *Bridge) SelfJID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selfJID
}
