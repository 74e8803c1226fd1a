// Package config loads the bridge's environment-backed settings.
//
// All settings live under the PYKOCLAW_WA_ prefix (see spec §6). Unknown
// keys under that prefix are treated as a misconfiguration rather than
// silently ignored, so a typo'd variable name fails fast instead of
// quietly falling back to a default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "PYKOCLAW_WA_"

// Settings holds the bridge's runtime configuration, parsed from
// PYKOCLAW_WA_-prefixed environment variables.
type Settings struct {
	TriggerName        string `env:"TRIGGER_NAME" envDefault:"Andy"`
	BatchWindowSeconds int    `env:"BATCH_WINDOW_SECONDS" envDefault:"90"`
	AuthDir            string `env:"AUTH_DIR"`
	SessionDB          string `env:"SESSION_DB"`
	AgentRoutes        string `env:"AGENT_ROUTES"`
}

// known lists the environment variable suffixes Settings understands,
// used to reject unrecognized PYKOCLAW_WA_* keys.
var known = map[string]bool{
	"TRIGGER_NAME":         true,
	"BATCH_WINDOW_SECONDS": true,
	"AUTH_DIR":             true,
	"SESSION_DB":           true,
	"AGENT_ROUTES":         true,
}

// Load parses Settings from the environment and applies path defaults
// rooted at the user's home directory, matching the original
// ~/.pykoclaw/whatsapp/{auth,session.db} layout.
func Load() (*Settings, error) {
	if err := checkUnknownKeys(); err != nil {
		return nil, err
	}

	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	if s.AuthDir == "" {
		s.AuthDir = filepath.Join(home, ".pykoclaw", "whatsapp", "auth")
	}
	if s.SessionDB == "" {
		s.SessionDB = filepath.Join(home, ".pykoclaw", "whatsapp", "session.db")
	}

	return &s, nil
}

// checkUnknownKeys scans the environment for PYKOCLAW_WA_-prefixed keys
// that Settings does not define, and rejects the whole load if any are
// found — spec §6: "Unknown prefixed keys are rejected."
func checkUnknownKeys() error {
	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		suffix := strings.TrimPrefix(key, envPrefix)
		if !known[suffix] {
			return fmt.Errorf("config: unknown environment variable %q", key)
		}
	}
	return nil
}
