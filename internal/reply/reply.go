// Package reply implements the agent-output reply extractor (C6):
// pulling the allowlisted <reply>...</reply> spans out of raw agent
// output, since tool-call narration and internal reasoning must never
// reach WhatsApp.
package reply

import (
	"regexp"
	"strings"
)

// replyTag matches every <reply>...</reply> span, case-sensitive,
// ungreedy, spanning newlines.
var replyTag = regexp.MustCompile(`(?s)<reply>(.*?)</reply>`)

// Extract pulls every <reply> span out of raw agent output, trims each,
// drops empty spans, and joins what remains with single newlines. If
// nothing survives, it returns "nothing" — the bridge's silence marker.
func Extract(rawOutput string) string {
	matches := replyTag.FindAllStringSubmatch(rawOutput, -1)
	var spans []string
	for _, m := range matches {
		span := strings.TrimSpace(m[1])
		if span != "" {
			spans = append(spans, span)
		}
	}
	if len(spans) == 0 {
		return "nothing"
	}
	return strings.Join(spans, "\n")
}

// IsSilence reports whether an extracted reply is the silence marker,
// i.e. the agent produced no allowlisted output.
func IsSilence(text string) bool {
	return text == "nothing"
}

// PrefixAgent prepends "[name]: " to text for multi-agent chats, where
// replies must be attributed to the agent that produced them.
func PrefixAgent(name, text string) string {
	return "[" + name + "]: " + text
}
