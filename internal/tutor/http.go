package tutor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rbright/studyvoice/internal/backend"
)

// ChatClient is the subset of the backend client used by HTTPResponder.
type ChatClient interface {
	TutorChat(ctx context.Context, req backend.TutorRequest) (backend.TutorReply, error)
}

// HTTPResponder asks the backend's adaptive tutor endpoint.
type HTTPResponder struct {
	client  ChatClient
	subject string
	started time.Time
	now     func() time.Time
}

// NewHTTPResponder builds a responder for subject.
func NewHTTPResponder(client ChatClient, subject string) *HTTPResponder {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "general"
	}
	return &HTTPResponder{client: client, subject: subject, started: time.Now(), now: time.Now}
}

// Respond sends text as the learner's question.
func (h *HTTPResponder) Respond(ctx context.Context, text string) (Reply, error) {
	resp, err := h.client.TutorChat(ctx, backend.TutorRequest{
		Subject:   h.subject,
		Question:  text,
		TimeSpent: int(h.now().Sub(h.started).Seconds()),
	})
	if err != nil {
		return Reply{}, err
	}
	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return Reply{}, errors.New("tutor returned an empty reply")
	}
	return Reply{Text: content, Emotion: DetectEmotion(content), Strategy: resp.Strategy}, nil
}
