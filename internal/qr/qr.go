// Package qr renders WhatsApp pairing codes for the auth subcommand:
// ASCII art to the terminal, with a PNG fallback for environments
// where the string can't be scanned directly off the screen.
package qr

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/skip2/go-qrcode"
	"golang.org/x/term"
)

// minTerminalWidth is roughly what a medium-density QR needs two
// characters per module; narrower terminals wrap the art into
// unscannable garbage.
const minTerminalWidth = 60

// FitsTerminal reports whether the controlling terminal (fd) is wide
// enough to render ASCII QR art legibly. Mirrors the teacher's own
// internal/daemon/logger.go use of term.GetSize to make a layout
// decision instead of assuming a fixed-size console.
func FitsTerminal(fd int) bool {
	width, _, err := term.GetSize(fd)
	if err != nil {
		return false
	}
	return width >= minTerminalWidth
}

// DisplayTerminal renders code as ASCII art to stdout, matching
// whatsmeow's own CLI example output. Callers should prefer this over
// DisplayPNG only when FitsTerminal reports true for stdout's fd.
func DisplayTerminal(code string) error {
	q, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("generate qr: %w", err)
	}
	fmt.Println(q.ToString(false))
	fmt.Println("Scan with WhatsApp > Settings > Linked Devices > Link a Device")
	return nil
}

// DisplayPNG writes code as a PNG to path and attempts to open it with
// the platform's default image viewer. Used when stdout isn't a
// terminal (spec §6's auth subcommand falls back to this rather than
// printing unreadable ASCII to a pipe or log file).
func DisplayPNG(code, path string) error {
	if err := qrcode.WriteFile(code, qrcode.Medium, 512, path); err != nil {
		return fmt.Errorf("write qr png: %w", err)
	}

	var openCmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		openCmd = exec.Command("open", path)
	case "linux":
		openCmd = exec.Command("xdg-open", path)
	case "windows":
		openCmd = exec.Command("cmd", "/c", "start", path)
	}
	if openCmd != nil {
		if err := openCmd.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "couldn't open QR image automatically, view it at %s\n", path)
		}
	}
	fmt.Printf("QR code written to %s\n", path)
	return nil
}
