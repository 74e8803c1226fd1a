// Package dispatch declares the agent-dispatch collaborator's
// interface. The dispatcher itself — prompt in, reply text out — is
// explicitly out of scope (spec §1): this package only fixes the
// boundary C8 calls across.
package dispatch

import "context"

// Request is everything the dispatch orchestrator (C8) hands to the
// agent dispatcher for a single agent's turn on a batch.
type Request struct {
	Prompt        string // XML-serialized message batch, plus a mandatory-reply directive if applicable
	ChannelPrefix string // "wa-" + lower(agent.name)
	ChannelID     string // the chat identifier
	Store         string // agent.StorePath, or the bridge's default store
	DataDir       string // agent.DataDir, or the bridge's default data directory
	SystemPrompt  string
	Model         string // agent.Model, or the dispatcher's own default if empty
}

// Result is what the agent dispatcher returns for a turn.
type Result struct {
	FullText  string // raw output, including any non-<reply> narration
	SessionID string // opaque session handle the dispatcher may reuse on resumption
}

// Dispatcher is the opaque agent-dispatch collaborator (spec §1, §4.8).
// Its implementation — the prompt → reply-text tool-use loop — lives
// entirely outside this module.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (Result, error)
}
