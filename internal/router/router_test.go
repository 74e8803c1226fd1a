package router

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "routes.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadNoPathDegenerate(t *testing.T) {
	tbl, err := Load("", "Andy")
	if err != nil {
		t.Fatal(err)
	}
	agents := tbl.AgentsFor("anything@s.whatsapp.net")
	if len(agents) != 1 || agents[0].Name != "Andy" {
		t.Errorf("got %+v, want single Andy agent", agents)
	}
}

func TestLoadMissingPathDegenerate(t *testing.T) {
	tbl, err := Load(filepath.Join(t.TempDir(), "missing.json"), "Andy")
	if err != nil {
		t.Fatal(err)
	}
	if tbl.DefaultAgent().Name != "Andy" {
		t.Errorf("default = %q, want Andy", tbl.DefaultAgent().Name)
	}
}

func TestAgentsForNonRoutedChatUsesDefault(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"default_agent": "Ressu",
		"agents":        map[string]any{"Ressu": map[string]any{}, "Tyko": map[string]any{"model": "claude-opus-4-6"}},
		"routes":        map[string]any{"120363@g.us": []string{"Ressu"}},
	})
	tbl, err := Load(path, "Andy")
	if err != nil {
		t.Fatal(err)
	}
	agents := tbl.AgentsFor("555@s.whatsapp.net")
	if len(agents) != 1 || agents[0].Name != "Ressu" {
		t.Errorf("got %+v, want default Ressu", agents)
	}
}

func TestIsMulti(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"default_agent": "Ressu",
		"agents":        map[string]any{"Ressu": map[string]any{}, "Tyko": map[string]any{}},
		"routes":        map[string]any{"g@g.us": []string{"Ressu", "Tyko"}, "solo@g.us": []string{"Ressu"}},
	})
	tbl, err := Load(path, "Andy")
	if err != nil {
		t.Fatal(err)
	}
	if !tbl.IsMulti("g@g.us") {
		t.Error("expected g@g.us to be multi-agent")
	}
	if tbl.IsMulti("solo@g.us") {
		t.Error("expected solo@g.us to be single-agent")
	}
	if tbl.IsMulti("unrouted@g.us") {
		t.Error("expected unrouted chat to be single-agent")
	}
}

func TestUnknownAgentReferenceDropped(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"default_agent": "Ressu",
		"agents":        map[string]any{"Ressu": map[string]any{}},
		"routes":        map[string]any{"g@g.us": []string{"Ressu", "Ghost"}},
	})
	tbl, err := Load(path, "Andy")
	if err != nil {
		t.Fatal(err)
	}
	agents := tbl.AgentsFor("g@g.us")
	if len(agents) != 1 || agents[0].Name != "Ressu" {
		t.Errorf("got %+v, want only Ressu survives", agents)
	}
}

func TestRouteEntryDroppedWhenEmptyAfterFilter(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"default_agent": "Ressu",
		"agents":        map[string]any{"Ressu": map[string]any{}},
		"routes":        map[string]any{"g@g.us": []string{"Ghost"}},
	})
	tbl, err := Load(path, "Andy")
	if err != nil {
		t.Fatal(err)
	}
	if tbl.IsMulti("g@g.us") {
		t.Error("entry should have been dropped, not treated as multi")
	}
	agents := tbl.AgentsFor("g@g.us")
	if len(agents) != 1 || agents[0].Name != "Ressu" {
		t.Errorf("got %+v, want fallback to default", agents)
	}
}

func TestDefaultAgentSynthesizedWhenMissing(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"default_agent": "Ghost",
		"agents":        map[string]any{"Ressu": map[string]any{}},
		"routes":        map[string]any{},
	})
	tbl, err := Load(path, "Andy")
	if err != nil {
		t.Fatal(err)
	}
	if tbl.DefaultAgent().Name != "Ghost" {
		t.Errorf("default = %q, want synthesized Ghost", tbl.DefaultAgent().Name)
	}
}

func TestConversationNameRoundTrip(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"default_agent": "Ressu",
		"agents":        map[string]any{"Ressu": map[string]any{}, "Tyko": map[string]any{}},
		"routes":        map[string]any{},
	})
	tbl, err := Load(path, "Andy")
	if err != nil {
		t.Fatal(err)
	}
	agent := tbl.AgentsFor("120363@g.us")[0] // default Ressu
	name := ConversationName(agent, "120363@g.us")
	if name != "wa-ressu-120363@g.us" {
		t.Errorf("name = %q", name)
	}

	got, chat, legacy := tbl.ParseConversation(name)
	if got == nil || got.Name != "Ressu" || chat != "120363@g.us" || legacy {
		t.Errorf("parsed = %+v, %q, legacy=%v", got, chat, legacy)
	}
}

func TestParseConversationLegacyFallback(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"default_agent": "Ressu",
		"agents":        map[string]any{"Ressu": map[string]any{}},
		"routes":        map[string]any{},
	})
	tbl, err := Load(path, "Andy")
	if err != nil {
		t.Fatal(err)
	}
	agent, chat, legacy := tbl.ParseConversation("wa-120363@g.us")
	if agent == nil || agent.Name != "Ressu" || chat != "120363@g.us" || !legacy {
		t.Errorf("parsed = %+v, %q, legacy=%v", agent, chat, legacy)
	}
}

func TestParseConversationUnknown(t *testing.T) {
	tbl, err := Load("", "Andy")
	if err != nil {
		t.Fatal(err)
	}
	agent, chat, legacy := tbl.ParseConversation("not-a-conversation")
	if agent != nil || chat != "" || legacy {
		t.Errorf("expected no match, got %+v %q %v", agent, chat, legacy)
	}
}
