package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures an OpenAI-compatible chat tutor.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Profile Profile
}

// OpenAIResponder answers turns with a chat completion over a bounded history.
type OpenAIResponder struct {
	client  *openai.Client
	model   string
	system  string
	history history
}

// NewOpenAIResponder builds a responder; an API key is required.
func NewOpenAIResponder(cfg OpenAIConfig) (*OpenAIResponder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIResponder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		system: systemPrompt(cfg.Profile),
	}, nil
}

// Model returns the resolved model id.
func (o *OpenAIResponder) Model() string {
	return o.model
}

// Respond appends text to the history and asks for the next tutor turn.
func (o *OpenAIResponder) Respond(ctx context.Context, text string) (Reply, error) {
	o.history.add(RoleUser, text)

	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: o.system}}
	for _, m := range o.history.snapshot() {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("tutor chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, errors.New("tutor chat completion: no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return Reply{}, errors.New("tutor chat completion: empty reply")
	}
	o.history.add(RoleAssistant, content)
	return Reply{Text: content, Emotion: DetectEmotion(content)}, nil
}

func systemPrompt(p Profile) string {
	var b strings.Builder
	b.WriteString("You are a warm, patient voice tutor. Answer in two or three short spoken sentences, ")
	b.WriteString("without markdown, lists, or emoji. Guide the student with questions instead of giving everything away.")
	if p.GradeLevel > 0 {
		fmt.Fprintf(&b, " The student is in grade %d.", p.GradeLevel)
	}
	if subject := strings.TrimSpace(p.Subject); subject != "" {
		fmt.Fprintf(&b, " The current subject is %s.", subject)
	}
	return b.String()
}
