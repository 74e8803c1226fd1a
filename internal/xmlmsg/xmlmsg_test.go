package xmlmsg

import (
	"strings"
	"testing"
)

func TestFormatMessageEscapesAttributesAndContent(t *testing.T) {
	got := FormatMessage(Message{
		Sender:    `A & "B"`,
		Timestamp: "2026-07-30T10:00:00Z",
		Content:   `<script> & 'quote'`,
	})
	want := `<message sender="A &amp; &quot;B&quot;" time="2026-07-30T10:00:00Z">&lt;script&gt; &amp; &#x27;quote&#x27;</message>`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestFormatBatchWrapsAndJoins(t *testing.T) {
	got := FormatBatch([]Message{
		{Sender: "Alice", Timestamp: "t1", Content: "hi"},
		{Sender: "Bob", Timestamp: "t2", Content: "there"},
	})
	if !strings.HasPrefix(got, "<messages>\n") || !strings.HasSuffix(got, "\n</messages>") {
		t.Errorf("unexpected envelope: %s", got)
	}
	if strings.Count(got, "<message ") != 2 {
		t.Errorf("expected 2 message elements, got: %s", got)
	}
}

func TestFormatBatchEmpty(t *testing.T) {
	got := FormatBatch(nil)
	if got != "<messages>\n\n</messages>" {
		t.Errorf("got %q", got)
	}
}
