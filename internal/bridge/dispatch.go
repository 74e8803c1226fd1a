package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/pykoclaw/wa-bridge/internal/classify"
	"github.com/pykoclaw/wa-bridge/internal/dispatch"
	"github.com/pykoclaw/wa-bridge/internal/reply"
	"github.com/pykoclaw/wa-bridge/internal/router"
	"github.com/pykoclaw/wa-bridge/internal/store"
	"github.com/pykoclaw/wa-bridge/internal/xmlmsg"
)

// onFlush is the dispatch orchestrator (C8), registered with the batch
// accumulator as its FlushFunc.
func (b *Bridge) onFlush(ctx context.Context, chat string, hard bool) {
	agents := b.routes.AgentsFor(chat)
	multi := b.routes.IsMulti(chat)

	messages, err := b.store.MessagesSinceAgentCursor(chat)
	if err != nil {
		b.log.Error("dispatch: read messages since cursor failed", "chat", chat, "error", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	var mentioned map[string]struct{}
	if hard {
		mentioned = classify.FindHardMentions(concatText(messages), b.routes.AllTriggerNames())
	}

	for _, agent := range agents {
		b.runAgent(ctx, agent, chat, agents, multi, hard, mentioned, messages)
	}

	last := messages[len(messages)-1].Timestamp
	if err := b.store.UpdateAgentCursor(chat, last); err != nil {
		b.log.Error("dispatch: advance agent cursor failed", "chat", chat, "error", err)
	}
}

// runAgent handles one agent's turn on the batch. It recovers from
// panics and swallows errors so a single agent's failure never stops
// the remaining agents in the route (spec §4.8, §7).
func (b *Bridge) runAgent(ctx context.Context, agent router.Agent, chat string, agents []router.Agent, multi, hard bool, mentioned map[string]struct{}, messages []store.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("dispatch: agent turn panicked", "agent", agent.Name, "chat", chat, "panic", r)
		}
	}()

	_, isMentioned := mentioned[agent.Name]
	agentHard := hard && (len(mentioned) == 0 || isMentioned)

	systemPrompt := buildSystemPrompt(agent, chat, multi, agents)
	userPrompt := buildUserPrompt(messages, agentHard)

	b.adapter.SendChatPresence(chat, true)
	defer b.adapter.SendChatPresence(chat, false)

	// Opening (and caching) the agent's store here — even though the
	// dispatcher itself only receives a path — is what makes it visible
	// to the delivery poller's knownStores() scan (spec §9: "opened
	// lazily on first reference by C8").
	if _, err := b.storeFor(agent); err != nil {
		b.log.Error("dispatch: open agent store failed", "agent", agent.Name, "error", err)
		return
	}

	dataDir := agent.DataDir
	if dataDir == "" {
		dataDir = b.cfg.DefaultDataDir
	}
	storePath := agent.StorePath
	if storePath == "" {
		storePath = b.cfg.DefaultStore
	}

	req := dispatch.Request{
		Prompt:        userPrompt,
		ChannelPrefix: "wa-" + strings.ToLower(agent.Name),
		ChannelID:     chat,
		Store:         storePath,
		DataDir:       dataDir,
		SystemPrompt:  systemPrompt,
		Model:         agent.Model,
	}

	result, err := b.dispatcher.Dispatch(ctx, req)
	if err != nil {
		b.log.Error("dispatch: agent dispatch failed", "agent", agent.Name, "chat", chat, "error", err)
		return
	}

	full := reply.Extract(result.FullText)
	if reply.IsSilence(full) {
		b.log.Info("dispatch: agent chose silence", "agent", agent.Name, "chat", chat)
		return
	}
	if multi {
		full = reply.PrefixAgent(agent.Name, full)
	}
	b.outq.Send(b.adapter, chat, full)
}

func concatText(messages []store.Message) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = m.Text
	}
	return strings.Join(parts, "\n")
}

func buildUserPrompt(messages []store.Message, mandatoryReply bool) string {
	xmlMessages := make([]xmlmsg.Message, len(messages))
	for i, m := range messages {
		xmlMessages[i] = xmlmsg.Message{Sender: m.Sender, Timestamp: m.Timestamp, Content: m.Text}
	}
	prompt := xmlmsg.FormatBatch(xmlMessages)
	if mandatoryReply {
		prompt += "\n\nYou were directly addressed. You MUST respond with a <reply> span."
	}
	return prompt
}

func buildSystemPrompt(agent router.Agent, chat string, multi bool, agents []router.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, responding in WhatsApp chat %s.\n", agent.Name, chat)
	b.WriteString("Only text inside <reply>...</reply> tags reaches the chat; everything else is discarded. ")
	b.WriteString("If you have nothing worth saying, emit no <reply> tag at all.\n")
	if multi {
		b.WriteString("This chat is shared with other agents: ")
		var others []string
		for _, a := range agents {
			if a.Name != agent.Name {
				others = append(others, a.Name)
			}
		}
		fmt.Fprintf(&b, "%s. Do not address them directly or simulate a conversation with them; ", strings.Join(others, ", "))
		b.WriteString("messages prefixed \"[Name]: \" are their replies, not user input.\n")
	}
	return b.String()
}
