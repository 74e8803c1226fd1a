// Package router maps WhatsApp chats to the agent(s) responsible for
// them, and formats/parses the conversation names used to route
// agent-initiated deliveries back to their originating chat.
package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Agent is a single agent personality: a name, an optional model
// override, and optional per-agent data/store locations.
type Agent struct {
	Name      string
	Model     string
	DataDir   string
	StorePath string
}

// Table is an immutable chat → agent-set routing table (C1).
type Table struct {
	defaultAgent string
	agents       map[string]Agent
	routes       map[string][]string
}

// fileConfig mirrors the JSON shape described in spec §6.
type fileConfig struct {
	DefaultAgent string                    `json:"default_agent"`
	Agents       map[string]fileAgentEntry `json:"agents"`
	Routes       map[string][]string       `json:"routes"`
}

type fileAgentEntry struct {
	Model     string `json:"model"`
	DataDir   string `json:"dataDir"`
	StorePath string `json:"storePath"`
}

// Load builds a Table from the JSON routing config at path. If path is
// empty or does not exist, a degenerate single-agent table is produced
// using fallbackTrigger as the sole agent name.
func Load(path string, fallbackTrigger string) (*Table, error) {
	if path == "" {
		return singleAgentTable(fallbackTrigger), nil
	}
	if _, err := os.Stat(path); err != nil {
		return singleAgentTable(fallbackTrigger), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing config: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse routing config: %w", err)
	}

	agents := make(map[string]Agent, len(fc.Agents))
	for name, e := range fc.Agents {
		agents[name] = Agent{Name: name, Model: e.Model, DataDir: e.DataDir, StorePath: e.StorePath}
	}

	defaultName := fc.DefaultAgent
	if defaultName == "" {
		defaultName = fallbackTrigger
	}
	if _, ok := agents[defaultName]; !ok {
		agents[defaultName] = Agent{Name: defaultName}
	}

	routes := make(map[string][]string, len(fc.Routes))
	for chat, names := range fc.Routes {
		var valid []string
		for _, name := range names {
			if _, ok := agents[name]; ok {
				valid = append(valid, name)
			} else {
				slog.Warn("routing: dropping unknown agent reference", "chat", chat, "agent", name)
			}
		}
		if len(valid) > 0 {
			routes[chat] = valid
		} else if len(names) > 0 {
			slog.Warn("routing: dropping empty route entry after filtering", "chat", chat)
		}
	}

	slog.Info("routing: loaded config", "agents", len(agents), "routes", len(routes), "default", defaultName)

	return &Table{defaultAgent: defaultName, agents: agents, routes: routes}, nil
}

func singleAgentTable(name string) *Table {
	return &Table{
		defaultAgent: name,
		agents:       map[string]Agent{name: {Name: name}},
		routes:       map[string][]string{},
	}
}

// AgentsFor returns the ordered agent set responsible for chat. Chats
// absent from the routing table (including all direct-message chats)
// get the default agent.
func (t *Table) AgentsFor(chat string) []Agent {
	names, ok := t.routes[chat]
	if !ok {
		return []Agent{t.agents[t.defaultAgent]}
	}
	out := make([]Agent, 0, len(names))
	for _, n := range names {
		out = append(out, t.agents[n])
	}
	return out
}

// IsMulti reports whether chat is routed to more than one agent.
func (t *Table) IsMulti(chat string) bool {
	return len(t.routes[chat]) >= 2
}

// AllTriggerNames returns every known agent name, used by the trigger
// classifier to find hard mentions against any configured agent.
func (t *Table) AllTriggerNames() []string {
	out := make([]string, 0, len(t.agents))
	for name := range t.agents {
		out = append(out, name)
	}
	return out
}

// DefaultAgent returns the table's default agent.
func (t *Table) DefaultAgent() Agent {
	return t.agents[t.defaultAgent]
}

// ConversationName builds the agent-scoped conversation key used to tag
// outbound agent sessions and to route pending deliveries back to their
// originating chat (spec §3, §4.1).
func ConversationName(agent Agent, chat string) string {
	return "wa-" + strings.ToLower(agent.Name) + "-" + chat
}

// ParseConversation inverts ConversationName against the table's known
// agents. A name that starts with "wa-" but matches no known agent
// prefix is read as the legacy (agent-less) "wa-<chat>" form and
// resolves to the default agent, with legacy reported as true. It
// returns (nil, "", false) only if name doesn't start with "wa-".
func (t *Table) ParseConversation(name string) (agent *Agent, chat string, legacy bool) {
	for n, a := range t.agents {
		prefix := "wa-" + strings.ToLower(n) + "-"
		if strings.HasPrefix(name, prefix) {
			a := a
			return &a, strings.TrimPrefix(name, prefix), false
		}
	}

	if strings.HasPrefix(name, "wa-") {
		def := t.DefaultAgent()
		return &def, strings.TrimPrefix(name, "wa-"), true
	}

	return nil, "", false
}
