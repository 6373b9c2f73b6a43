package ai

import (
	"RahimBot/internal/service/session"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	_ Completer  = (*ChatClient)(nil)
	_ Completer  = (*StubClient)(nil)
	_ Classifier = (*DialectClient)(nil)
	_ Classifier = (*StubClient)(nil)

	_ session.Classifier = (*DialectClient)(nil)
)

func TestChatMessagesKeepsOrderAndRoles(t *testing.T) {
	msgs, err := chatMessages([]session.Turn{
		{Role: session.RoleSystem, Text: "be nice"},
		{Role: session.RoleUser, Text: "hi"},
		{Role: session.RoleAssistant, Text: "hello"},
		{Role: session.RoleUser, Text: "and?"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
	assert.NotNil(t, msgs[3].OfUser)
}

func TestChatMessagesRejectsBadInput(t *testing.T) {
	_, err := chatMessages(nil)
	assert.Error(t, err)

	_, err = chatMessages([]session.Turn{{Role: "tool", Text: "x"}})
	assert.Error(t, err)
}

func TestNilClientsFail(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	_, err := NewChatClient(nil, "", logger).Complete(context.Background(), []session.Turn{{Role: session.RoleUser, Text: "x"}})
	assert.Error(t, err)
	_, err = NewDialectClient(nil, "", logger).Classify(context.Background(), "x")
	assert.Error(t, err)
}

func TestNormalizeDialect(t *testing.T) {
	cases := map[string]string{
		"Sudanese Arabic":                "Sudanese Arabic",
		"  \n\"Egyptian Arabic\".\nmore": "Egyptian Arabic",
		"Dialect: Gulf Arabic":           "Gulf Arabic",
		"«English»":                      "English",
		"   \n \n":                       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeDialect(in), "input %q", in)
	}
}

func TestStubClient(t *testing.T) {
	s := NewStubClient()
	out, err := s.Complete(context.Background(), []session.Turn{
		{Role: session.RoleSystem, Text: "sys"},
		{Role: session.RoleUser, Text: "ping"},
	})
	require.NoError(t, err)
	assert.Equal(t, "запрос получен: ping", out)

	_, err = s.Classify(context.Background(), "ping")
	assert.ErrorIs(t, err, ErrStub)
}
