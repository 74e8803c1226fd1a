package qr

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pykoclaw/wa-bridge/internal/whatsapp"
)

var upgrader = websocket.Upgrader{
	// Pairing is a local, operator-initiated action (run `wabridge auth
	// -web` yourself, then open the page) rather than a public endpoint,
	// so the teacher's own permissive CheckOrigin is kept as-is.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler streams QR pairing codes to a browser over a
// websocket, for operators pairing a headless wabridge instance without
// terminal access (e.g. over SSH with a forwarded port). Grounded on
// the teacher's cmd/codebutler/main.go handleQRWebSocket, generalized
// from that function's inline http.HandlerFunc into a reusable handler
// parameterized on the session path.
func WebSocketHandler(sessionDBPath string, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("qr: websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ctx := r.Context()
		wac, qrChan, err := whatsapp.ConnectForQR(ctx, sessionDBPath)
		if err != nil {
			conn.WriteJSON(map[string]string{"type": "error", "error": err.Error()})
			return
		}
		defer wac.Disconnect()

		for item := range qrChan {
			switch item.Event {
			case "code":
				conn.WriteJSON(map[string]string{"type": "qr", "code": item.Code})
			case "success":
				conn.WriteJSON(map[string]string{"type": "connected"})
				return
			case "timeout":
				conn.WriteJSON(map[string]string{"type": "error", "error": "qr code expired"})
				return
			}
		}
	}
}

// ServeOnce starts a one-shot HTTP server on addr serving a minimal QR
// pairing page at "/" and the websocket stream at "/ws", and blocks
// until ctx is cancelled.
func ServeOnce(ctx context.Context, addr, sessionDBPath string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", WebSocketHandler(sessionDBPath, log))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(pairingPage))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}

const pairingPage = `<!doctype html>
<html><head><title>wabridge pairing</title></head>
<body>
<h1>Scan to link WhatsApp</h1>
<div id="qr">Connecting...</div>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  const el = document.getElementById("qr");
  if (msg.type === "qr") {
    el.innerHTML = "<pre>" + msg.code + "</pre><p>Paste this code, or scan it via a QR generator, in WhatsApp > Settings > Linked Devices > Link a Device.</p>";
  } else if (msg.type === "connected") {
    el.innerHTML = "<p>Paired successfully. You can close this page.</p>";
  } else if (msg.type === "error") {
    el.innerHTML = "<p>Error: " + msg.error + "</p>";
  }
};
</script>
</body></html>`
