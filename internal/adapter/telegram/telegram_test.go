package telegram

import (
	"RahimBot/internal/app/dispatcher"
	"RahimBot/internal/service/session"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeHandler struct {
	inbound  []dispatcher.Inbound
	started  []session.Key
	trends   []string
	resetBy  []int64
	replyErr error
}

func (f *fakeHandler) HandleText(_ context.Context, in dispatcher.Inbound) (string, error) {
	f.inbound = append(f.inbound, in)
	if f.replyErr != nil {
		return "", f.replyErr
	}
	return "answer", nil
}

func (f *fakeHandler) Start(key session.Key) string {
	f.started = append(f.started, key)
	return "hello"
}

func (f *fakeHandler) Trend(_ context.Context, category string) (string, error) {
	f.trends = append(f.trends, category)
	return "trend:" + category, nil
}

func (f *fakeHandler) ResetTrends(_ context.Context, userID int64) (string, error) {
	f.resetBy = append(f.resetBy, userID)
	return "reset", nil
}

func (f *fakeHandler) ErrorText() string { return "oops" }

type fakeSender struct {
	sent    []*bot.SendMessageParams
	actions int
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.sent = append(f.sent, params)
	return &models.Message{}, nil
}

func (f *fakeSender) SendChatAction(context.Context, *bot.SendChatActionParams) (bool, error) {
	f.actions++
	return true, nil
}

func newTestBot(t *testing.T) (*Bot, *fakeHandler, *fakeSender) {
	h := &fakeHandler{}
	s := &fakeSender{}
	return &Bot{handler: h, logger: zaptest.NewLogger(t).Sugar(), send: s}, h, s
}

func privateMsg(text string) *models.Message {
	return &models.Message{
		ID:   10,
		Chat: models.Chat{ID: 100, Type: models.ChatTypePrivate},
		From: &models.User{ID: 7},
		Text: text,
	}
}

func groupMsg(text string) *models.Message {
	return &models.Message{
		ID:   11,
		Chat: models.Chat{ID: -500, Type: models.ChatTypeSupergroup},
		From: &models.User{ID: 8},
		Text: text,
	}
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, session.Key("chat:100"), keyFor(privateMsg("x")))
	assert.Equal(t, session.Key("group:-500:user:8"), keyFor(groupMsg("x")))

	anon := groupMsg("x")
	anon.From = nil
	assert.Equal(t, session.Key("chat:-500"), keyFor(anon))
}

func TestInboundTakesReplyText(t *testing.T) {
	msg := groupMsg("why?")
	msg.ReplyToMessage = &models.Message{Caption: "photo caption"}
	in := inbound(msg)
	assert.Equal(t, "why?", in.Text)
	assert.Equal(t, "photo caption", in.ReplyTo)
	assert.Equal(t, session.Key("group:-500:user:8"), in.Key)
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text, cmd, arg string
		ok             bool
	}{
		{"/start", "start", "", true},
		{"/trend sport", "trend", "sport", true},
		{"/Trend@RahimBot  news ", "trend", "news", true},
		{"/reset_trends", "reset_trends", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}
	for _, c := range cases {
		cmd, arg, ok := parseCommand(c.text)
		assert.Equal(t, c.ok, ok, c.text)
		assert.Equal(t, c.cmd, cmd, c.text)
		assert.Equal(t, c.arg, arg, c.text)
	}
}

func TestPrivateTextIsAnswered(t *testing.T) {
	b, h, s := newTestBot(t)
	b.handleMessage(context.Background(), privateMsg("hi"))

	require.Len(t, h.inbound, 1)
	require.Len(t, s.sent, 1)
	assert.Equal(t, "answer", s.sent[0].Text)
	assert.Nil(t, s.sent[0].ReplyParameters)
	assert.Equal(t, 1, s.actions)
}

func TestGroupAnswerIsReply(t *testing.T) {
	b, _, s := newTestBot(t)
	b.handleMessage(context.Background(), groupMsg("hi"))

	require.Len(t, s.sent, 1)
	require.NotNil(t, s.sent[0].ReplyParameters)
	assert.Equal(t, 11, s.sent[0].ReplyParameters.MessageID)
}

func TestHandlerErrorSendsErrorText(t *testing.T) {
	b, h, s := newTestBot(t)
	h.replyErr = errors.New("model down")
	b.handleMessage(context.Background(), privateMsg("hi"))

	require.Len(t, s.sent, 1)
	assert.Equal(t, "oops", s.sent[0].Text)
}

func TestBlankMessageIgnored(t *testing.T) {
	b, h, s := newTestBot(t)
	b.handleMessage(context.Background(), privateMsg("   "))
	assert.Empty(t, h.inbound)
	assert.Empty(t, s.sent)
}

func TestCommands(t *testing.T) {
	b, h, s := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, privateMsg("/start"))
	b.handleMessage(ctx, privateMsg("/trend"))
	b.handleMessage(ctx, groupMsg("/trend@RahimBot sport"))
	b.handleMessage(ctx, privateMsg("/reset_trends"))
	b.handleMessage(ctx, privateMsg("/unknown"))

	assert.Equal(t, []session.Key{"chat:100"}, h.started)
	assert.Equal(t, []string{"", "sport"}, h.trends)
	assert.Equal(t, []int64{7}, h.resetBy)
	assert.Empty(t, h.inbound, "commands never reach the model")

	var texts []string
	for _, p := range s.sent {
		texts = append(texts, p.Text)
	}
	assert.Equal(t, []string{"hello", "trend:", "trend:sport", "reset"}, texts)
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 10))

	parts := splitText(strings.Repeat("ع", 25), 10)
	assert.Equal(t, []string{strings.Repeat("ع", 10), strings.Repeat("ع", 10), strings.Repeat("ع", 5)}, parts)

	parts = splitText("aaaaaaa\nbbbbbbbbbb", 10)
	assert.Equal(t, []string{"aaaaaaa\n", "bbbbbbbbbb"}, parts)
}

func TestUpdateHandledOnce(t *testing.T) {
	b, h, s := newTestBot(t)
	ctx := context.Background()

	b.onUpdate(ctx, nil, &models.Update{Message: privateMsg("/trend sport")})
	b.onUpdate(ctx, nil, &models.Update{Message: privateMsg("hi")})
	b.onUpdate(ctx, nil, &models.Update{})

	assert.Equal(t, []string{"sport"}, h.trends)
	assert.Len(t, h.inbound, 1)
	assert.Len(t, s.sent, 2)
}
