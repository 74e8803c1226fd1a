// Command wabridge runs the WhatsApp-to-agent bridge, and (via the
// auth subcommand) the QR pairing flow used to link a WhatsApp account
// before the bridge can run.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/pykoclaw/wa-bridge/internal/bridge"
	"github.com/pykoclaw/wa-bridge/internal/config"
	"github.com/pykoclaw/wa-bridge/internal/dispatch"
	"github.com/pykoclaw/wa-bridge/internal/qr"
	"github.com/pykoclaw/wa-bridge/internal/router"
	"github.com/pykoclaw/wa-bridge/internal/store"
	"github.com/pykoclaw/wa-bridge/internal/whatsapp"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "auth" {
		webMode := len(os.Args) > 2 && os.Args[2] == "-web"
		var err error
		if webMode {
			err = runAuthWeb()
		} else {
			err = runAuth()
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "auth:", err)
			os.Exit(1)
		}
		return
	}
	if err := runBridge(); err != nil {
		fmt.Fprintln(os.Stderr, "wabridge:", err)
		os.Exit(1)
	}
}

// runAuth drives the QR pairing flow for a fresh session: ASCII art to
// the terminal when stdout is a TTY wide enough to render it legibly,
// a PNG fallback otherwise. Grounded on the teacher's
// internal/whatsapp/auth.go displayQR.
func runAuth() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	wac, qrChan, err := whatsapp.ConnectForQR(ctx, settings.SessionDB)
	if err != nil {
		return err
	}
	defer wac.Disconnect()

	renderASCII := isatty.IsTerminal(os.Stdout.Fd()) && qr.FitsTerminal(int(os.Stdout.Fd()))
	for item := range qrChan {
		switch item.Event {
		case "code":
			if renderASCII {
				if err := qr.DisplayTerminal(item.Code); err != nil {
					return err
				}
			} else {
				path := filepath.Join(os.TempDir(), "wabridge-qr.png")
				if err := qr.DisplayPNG(item.Code, path); err != nil {
					return err
				}
			}
		case "success":
			fmt.Println("Paired successfully.")
			return nil
		case "timeout":
			return errors.New("QR code expired, rerun wabridge auth")
		}
	}
	return nil
}

// runAuthWeb serves the pairing flow over a local HTTP+websocket page
// instead of the terminal, for operators linking a headless instance
// (e.g. over an SSH-forwarded port) with no usable console. Grounded on
// the teacher's cmd/codebutler/main.go handleQRWebSocket.
func runAuthWeb() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println("Serving pairing page on http://localhost:8085 — open it in a browser.")
	return qr.ServeOnce(ctx, "localhost:8085", settings.SessionDB, slog.Default())
}

// runBridge wires config -> routing table -> message store -> WhatsApp
// adapter -> Bridge -> lifecycle supervisor, and blocks until
// interrupted. Grounded on the teacher's cmd/codebutler/main.go daemon
// startup sequence, generalized from its single fixed Slack-facing
// wiring to this spec's multi-agent routing table.
func runBridge() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}

	routes, err := router.Load(settings.AgentRoutes, settings.TriggerName)
	if err != nil {
		return fmt.Errorf("load routing table: %w", err)
	}

	bridgeDB := settings.SessionDB + ".bridge"
	st, err := store.Open(bridgeDB)
	if err != nil {
		return fmt.Errorf("open message store: %w", err)
	}
	defer st.Close()

	log := slog.Default()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	whatsapp.SetDeviceName("wa-bridge:" + settings.TriggerName)
	adapter, err := whatsapp.Connect(ctx, settings.SessionDB, log)
	if err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	defer adapter.Disconnect()

	cfg := bridge.BridgeConfig{
		BatchWindow:    time.Duration(settings.BatchWindowSeconds) * time.Second,
		PollInterval:   10 * time.Second,
		DefaultStore:   bridgeDB,
		DefaultDataDir: settings.AuthDir,
	}
	b := bridge.New(cfg, routes, st, adapter, &placeholderDispatcher{log: log}, log)
	adapter.SetCallbacks(b.Supervise(ctx, adapter))

	log.Info("wabridge: running", "trigger", settings.TriggerName)
	<-ctx.Done()
	log.Info("wabridge: shutting down")
	return nil
}

// placeholderDispatcher satisfies dispatch.Dispatcher with a fixed
// silent reply. The real agent dispatcher is an opaque collaborator
// outside this module's scope (spec §1); operators wire in a genuine
// implementation (e.g. one backed by an agent SDK, mirroring the
// teacher's own internal/agent.LLMProvider indirection) by replacing
// this value before building.
type placeholderDispatcher struct {
	log *slog.Logger
}

func (p *placeholderDispatcher) Dispatch(_ context.Context, req dispatch.Request) (dispatch.Result, error) {
	p.log.Warn("dispatch: no agent dispatcher configured, replying with placeholder", "channel_id", req.ChannelID)
	return dispatch.Result{FullText: "<reply>nothing</reply>"}, nil
}
