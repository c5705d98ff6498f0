package dispatch

import "strings"

// Parse splits text into a command token and its arguments when it starts
// with prefix. The prefix comparison is literal and case-sensitive; the
// remainder is split on any run of whitespace, so empty tokens never appear.
// ok is false when text lacks the prefix or nothing follows it.
func Parse(prefix, text string) (name string, args []string, ok bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(text[len(prefix):])
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}
