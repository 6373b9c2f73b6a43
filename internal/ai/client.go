package ai

import (
	"RahimBot/internal/service/session"
	"context"
)

// Completer получает ответ ассистента по истории диалога. Все реализации должны быть взаимозаменяемыми.
type Completer interface {
	Complete(ctx context.Context, history []session.Turn) (string, error)
}

// Classifier определяет язык или диалект текста.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}
