// Package xmlmsg serializes a chat's message batch into the XML block
// the agent dispatcher receives as part of its user prompt.
package xmlmsg

import "strings"

// Message is one inbound message in a batch, ready for serialization.
type Message struct {
	Sender    string
	Timestamp string
	Content   string
}

// escaper mirrors Python's html.escape(s, quote=True): &, <, > and both
// quote characters. strings.Replacer replaces in a single pass over the
// input, so the ampersands it introduces are never escaped again.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

func escape(s string) string {
	return escaper.Replace(s)
}

// FormatMessage renders a single message as a <message> element.
func FormatMessage(m Message) string {
	var b strings.Builder
	b.WriteString(`<message sender="`)
	b.WriteString(escape(m.Sender))
	b.WriteString(`" time="`)
	b.WriteString(escape(m.Timestamp))
	b.WriteString(`">`)
	b.WriteString(escape(m.Content))
	b.WriteString(`</message>`)
	return b.String()
}

// FormatBatch renders a full <messages> block from a chat's message
// batch, in order, for inclusion in the agent's user prompt.
func FormatBatch(messages []Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = FormatMessage(m)
	}
	return "<messages>\n" + strings.Join(lines, "\n") + "\n</messages>"
}
