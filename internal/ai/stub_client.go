package ai

import (
	"RahimBot/internal/service/session"
	"context"
	"errors"
)

// ErrStub — заглушка не умеет определять диалект, используется дефолтный.
var ErrStub = errors.New("stub client: classification unavailable")

// StubClient заглушка, которая не делает реальных запросов
type StubClient struct{}

func NewStubClient() *StubClient { return &StubClient{} }

func (c *StubClient) Complete(_ context.Context, history []session.Turn) (string, error) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleUser {
			return "запрос получен: " + history[i].Text, nil
		}
	}
	return "запрос получен", nil
}

func (c *StubClient) Classify(_ context.Context, _ string) (string, error) {
	return "", ErrStub
}
