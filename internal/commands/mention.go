package commands

import (
	"regexp"
	"strings"
)

var (
	userMentionRe = regexp.MustCompile(`^<@!?(\d+)>$`)
	customEmojiRe = regexp.MustCompile(`^<a?:\w+:(\d+)>$`)
	snowflakeRe   = regexp.MustCompile(`^\d{15,21}$`)
)

// parseUser accepts a <@id> or <@!id> mention or a bare snowflake.
func parseUser(s string) (string, bool) {
	if m := userMentionRe.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if snowflakeRe.MatchString(s) {
		return s, true
	}
	return "", false
}

// parseEmojiKey returns the key a reaction is stored under: the ID of a custom
// emoji, or the text of a unicode one.
func parseEmojiKey(s string) string {
	s = strings.TrimSpace(s)
	if m := customEmojiRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// formatEmojiKey renders a stored key back into something Discord displays.
func formatEmojiKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if snowflakeRe.MatchString(key) {
		return "<:_:" + key + ">"
	}
	return key
}

func mention(userID string) string {
	return "<@" + userID + ">"
}
