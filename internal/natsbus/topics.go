package natsbus

import (
	"fmt"
	"strings"
)

// TopicEventsCouncil carries the progress events of runs in one conversation.
func TopicEventsCouncil(conversationID string) string {
	return fmt.Sprintf("events.council.%s", sanitizeToken(conversationID))
}

const (
	TopicEventsAll      = "events.>"
	TopicEventsCouncils = "events.council.*"
)

// ConversationFromTopic extracts the conversation token from an events.council subject.
func ConversationFromTopic(topic string) string {
	return strings.TrimPrefix(topic, "events.council.")
}

// sanitizeToken keeps a subject token free of the separators and wildcards NATS reserves.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
