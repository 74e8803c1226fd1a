// Package classify implements the trigger classifier (C2): deciding
// whether an inbound message hard-mentions a known agent name, as
// opposed to merely containing that name ambiently.
//
// Two hard-mention patterns exist in the ported prior art: a narrow
// "@Name anywhere" test (original_source/handler.py's should_trigger) and
// a richer sentence-initial-address test. Per spec §9's Open Questions,
// this package adopts the richer pattern.
package classify

import (
	"regexp"
	"strings"
	"sync"
)

// mentionPatterns caches the two hard-mention regexps per agent name, so
// IsHardMention — called once per agent per inbound message — compiles
// each name's patterns at most once instead of on every call. The
// teacher's internal/router/filter.go precompiles its one fixed
// @codebutler.<role> pattern as a package var; names here are only
// known at routing-config load time, so a cache stands in for that.
var mentionPatterns sync.Map // name string -> *hardMentionRegexps

type hardMentionRegexps struct {
	at       *regexp.Regexp
	sentence *regexp.Regexp
}

func patternsFor(name string) *hardMentionRegexps {
	if v, ok := mentionPatterns.Load(name); ok {
		return v.(*hardMentionRegexps)
	}
	quoted := regexp.QuoteMeta(name)
	p := &hardMentionRegexps{
		at:       regexp.MustCompile(`(?i)@` + quoted + `\b`),
		sentence: regexp.MustCompile(`(?i)(^|[.!?\n]\s*)` + quoted + `(\z|\s|[,:!?])`),
	}
	actual, _ := mentionPatterns.LoadOrStore(name, p)
	return actual.(*hardMentionRegexps)
}

// IsHardMention reports whether name is hard-mentioned in text: either
// as a literal "@name" anywhere (case-insensitive), or as the first word
// of a sentence (start of string, or right after '.', '!', '?', or a
// newline, possibly with leading whitespace) followed by end-of-string,
// whitespace, or one of ",:!?". A bare occurrence mid-sentence
// ("I told Andy yesterday") or as part of a longer word ("Andyman") is
// never a hard mention.
func IsHardMention(text, name string) bool {
	if name == "" {
		return false
	}
	re := patternsFor(name)
	return re.at.MatchString(text) || re.sentence.MatchString(text)
}

// FindHardMentions returns the subset of names hard-mentioned in text.
func FindHardMentions(text string, names []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, n := range names {
		if IsHardMention(text, n) {
			out[n] = struct{}{}
		}
	}
	return out
}

// IsSelfChat reports whether chat is a direct chat whose user part
// matches the authenticated account's user part (spec §4.2).
func IsSelfChat(chat, selfJID string, isGroup bool) bool {
	if isGroup || selfJID == "" {
		return false
	}
	return userPart(chat) == userPart(selfJID)
}

func userPart(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
