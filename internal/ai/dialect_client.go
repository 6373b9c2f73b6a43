package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"
	"go.uber.org/zap"
)

const dialectInstructions = "Identify the language of the user's message. " +
	"If it is Arabic, name the regional dialect (for example: Sudanese Arabic, Egyptian Arabic, Gulf Arabic, Levantine Arabic, Maghrebi Arabic, Modern Standard Arabic). " +
	"Answer with the name only, no explanation."

// DialectClient определяет язык/диалект сообщения через Responses API.
type DialectClient struct {
	client *openai.Client
	model  string
	logger *zap.SugaredLogger
}

func NewDialectClient(client *openai.Client, model string, logger *zap.SugaredLogger) *DialectClient {
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &DialectClient{client: client, model: model, logger: logger}
}

func (c *DialectClient) Classify(ctx context.Context, text string) (string, error) {
	if c.client == nil {
		return "", errors.New("nil openai client")
	}
	start := time.Now()
	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(
					responses.ResponseInputMessageContentListParam{
						{OfInputText: &responses.ResponseInputTextParam{Text: dialectInstructions}},
					},
					responses.EasyInputMessageRoleSystem,
				),
				responses.ResponseInputItemParamOfMessage(
					responses.ResponseInputMessageContentListParam{
						{OfInputText: &responses.ResponseInputTextParam{Text: text}},
					},
					responses.EasyInputMessageRoleUser,
				),
			},
		},
	})
	if err != nil {
		return "", err
	}
	c.logger.Debugw("Dialect classified", "duration", time.Since(start).String())

	dialect := normalizeDialect(resp.OutputText())
	if dialect == "" {
		return "", errors.New("empty dialect in response")
	}
	return dialect, nil
}

// normalizeDialect оставляет первую непустую строку без кавычек и точек по краям.
func normalizeDialect(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i := strings.Index(line, ":"); i >= 0 && strings.EqualFold(strings.TrimSpace(line[:i]), "dialect") {
			line = line[i+1:]
		}
		return strings.Trim(line, " \t\"'«».,:;*`")
	}
	return ""
}
