package classify

import "testing"

func TestIsHardMentionAtMarker(t *testing.T) {
	if !IsHardMention("hey @Andy can you look at this", "Andy") {
		t.Error("expected @Andy to be a hard mention")
	}
	if !IsHardMention("@andy", "Andy") {
		t.Error("expected case-insensitive @mention match")
	}
}

func TestIsHardMentionSentenceInitial(t *testing.T) {
	cases := []string{
		"Andy, can you check the logs?",
		"Andy can you check the logs",
		"Please help. Andy take a look",
		"Done!\nAndy what's next",
	}
	for _, text := range cases {
		if !IsHardMention(text, "Andy") {
			t.Errorf("expected hard mention in %q", text)
		}
	}
}

func TestIsHardMentionBareMidSentenceIsAmbient(t *testing.T) {
	if IsHardMention("I told Andy about it yesterday", "Andy") {
		t.Error("mid-sentence bare name should not be a hard mention")
	}
}

func TestIsHardMentionSuperstringNotMatched(t *testing.T) {
	if IsHardMention("Andyman is coming over", "Andy") {
		t.Error("Andyman should not match Andy")
	}
	if IsHardMention("ask @Andyman", "Andy") {
		t.Error("@Andyman should not match Andy")
	}
}

func TestIsHardMentionEmptyName(t *testing.T) {
	if IsHardMention("anything", "") {
		t.Error("empty name should never match")
	}
}

func TestFindHardMentionsMultipleAgents(t *testing.T) {
	found := FindHardMentions("@Ressu can you ping Tyko", []string{"Ressu", "Tyko"})
	if _, ok := found["Ressu"]; !ok {
		t.Error("expected Ressu to be found")
	}
	if _, ok := found["Tyko"]; ok {
		t.Error("Tyko is only mentioned ambiently, not hard-mentioned")
	}
}

func TestIsSelfChatDirectMatch(t *testing.T) {
	if !IsSelfChat("12345@s.whatsapp.net", "12345@s.whatsapp.net", false) {
		t.Error("expected self chat to match")
	}
	if IsSelfChat("12345@g.us", "12345@s.whatsapp.net", true) {
		t.Error("group chats are never self chats")
	}
	if IsSelfChat("99999@s.whatsapp.net", "12345@s.whatsapp.net", false) {
		t.Error("different user should not match")
	}
}
