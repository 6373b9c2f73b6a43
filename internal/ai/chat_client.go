package ai

import (
	"RahimBot/internal/service/session"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"go.uber.org/zap"
)

// ChatClient отправляет историю диалога в Chat Completions и возвращает ответ ассистента.
type ChatClient struct {
	client *openai.Client
	model  string
	logger *zap.SugaredLogger
}

func NewChatClient(client *openai.Client, model string, logger *zap.SugaredLogger) *ChatClient {
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	return &ChatClient{client: client, model: model, logger: logger}
}

func (c *ChatClient) Complete(ctx context.Context, history []session.Turn) (string, error) {
	if c.client == nil {
		return "", errors.New("nil openai client")
	}
	messages, err := chatMessages(history)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	dur := time.Since(start)
	if err != nil {
		c.logger.Errorw("OpenAI completion failed", "duration", dur.String(), "turns", len(history), "error", err)
		return "", err
	}
	c.logger.Debugw("OpenAI completion received", "duration", dur.String(), "turns", len(history))

	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("openai returned empty answer")
	}
	return out, nil
}

// chatMessages переводит реплики истории в сообщения Chat Completions один к одному.
func chatMessages(history []session.Turn) ([]openai.ChatCompletionMessageParamUnion, error) {
	if len(history) == 0 {
		return nil, errors.New("empty history")
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case session.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Text))
		case session.RoleUser:
			messages = append(messages, openai.UserMessage(t.Text))
		case session.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Text))
		default:
			return nil, fmt.Errorf("unknown role %q", t.Role)
		}
	}
	return messages, nil
}
