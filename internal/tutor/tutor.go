// Package tutor adapts tutoring backends into a single turn-in, reply-out contract.
package tutor

import (
	"context"
	"strings"
	"sync"
)

// historyLimit bounds the conversation context sent with each turn.
const historyLimit = 10

// Role identifies a conversation participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation entry.
type Message struct {
	Role    Role
	Content string
}

// Reply is the tutor's answer to one user turn.
type Reply struct {
	Text     string
	Emotion  string
	Strategy string
}

// Responder answers one finished user turn.
type Responder interface {
	Respond(ctx context.Context, text string) (Reply, error)
}

// Greeter is implemented by responders that open with a greeting.
type Greeter interface {
	Greeting(ctx context.Context) (Reply, error)
}

// Profile describes the learner for prompt and query construction.
type Profile struct {
	Subject    string
	GradeLevel int
	AgeGroup   string
}

// DetectEmotion picks a voice emotion preset from the reply wording.
func DetectEmotion(reply string) string {
	lower := strings.ToLower(reply)
	for _, word := range []string{"great", "excellent", "awesome", "fantastic"} {
		if strings.Contains(lower, word) {
			return "excited"
		}
	}
	for _, phrase := range []string{"let's try", "think about", "consider"} {
		if strings.Contains(lower, phrase) {
			return "encouraging"
		}
	}
	return "friendly"
}

// history is a bounded, concurrency-safe transcript of the conversation.
type history struct {
	mu       sync.Mutex
	messages []Message
}

func (h *history) add(role Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, Message{Role: role, Content: content})
	if len(h.messages) > historyLimit {
		h.messages = append([]Message(nil), h.messages[len(h.messages)-historyLimit:]...)
	}
}

func (h *history) snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.messages...)
}
