package core

import (
	"fmt"

	"talkwise.app/circles/internal/store"
)

const DefaultContextSize = 5

// BuildContext takes a newest-first feed and returns up to n of its newest
// messages, oldest first.
func BuildContext(feed []store.Message, n int) []store.Message {
	if n <= 0 || len(feed) == 0 {
		return []store.Message{}
	}
	if n > len(feed) {
		n = len(feed)
	}
	out := make([]store.Message, n)
	for i := 0; i < n; i++ {
		out[i] = feed[n-1-i]
	}
	return out
}

func isAIMessage(msg store.Message) bool {
	return msg.Author == store.AIAuthor
}

// transcriptLine renders a participant message with its author so the model
// can tell the speakers of a group discussion apart.
func transcriptLine(msg store.Message) string {
	if isAIMessage(msg) {
		return msg.Body
	}
	return fmt.Sprintf("%s: %s", msg.Author, msg.Body)
}
