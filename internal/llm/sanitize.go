package llm

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// StripThinkingTags removes <think>...</think> reasoning blocks some models
// emit before the answer. An unclosed block drops everything after it.
func StripThinkingTags(s string) string {
	var b strings.Builder
	for {
		before, rest, found := strings.Cut(s, thinkOpen)
		b.WriteString(before)
		if !found {
			break
		}
		_, after, closed := strings.Cut(rest, thinkClose)
		if !closed {
			break
		}
		s = after
	}
	return strings.TrimSpace(b.String())
}
