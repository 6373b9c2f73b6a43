package session

import (
	"fmt"
	"strings"
)

// Role — роль реплики в истории диалога.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn — одна реплика диалога.
type Turn struct {
	Role Role
	Text string
}

// Key идентифицирует диалог: личный чат, участника группы или канал Twitch.
type Key string

// ChatKey — ключ личного чата.
func ChatKey(chatID int64) Key { return Key(fmt.Sprintf("chat:%d", chatID)) }

// MemberKey — ключ участника группового чата: у каждого своя история внутри группы.
func MemberKey(groupID, userID int64) Key {
	return Key(fmt.Sprintf("group:%d:user:%d", groupID, userID))
}

// TwitchKey — ключ зрителя в канале Twitch.
func TwitchKey(channel, user string) Key {
	return Key("twitch:" + strings.ToLower(channel) + ":" + strings.ToLower(user))
}

// Session — ограниченная история одного диалога и состояние определения диалекта.
// history[0] всегда системная реплика, отрендеренная для текущего диалекта.
type Session struct {
	history  []Turn
	dialect  string
	resolved bool
}

// History возвращает копию истории.
func (s Session) History() []Turn {
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Dialect возвращает определённый диалект и признак того, что он определён.
func (s Session) Dialect() (string, bool) { return s.dialect, s.resolved }

// BuildContext склеивает текст сообщения с цитатой сообщения, на которое отвечают.
func BuildContext(text, replyTo, label string) string {
	replyTo = strings.TrimSpace(replyTo)
	if replyTo == "" {
		return text
	}
	return text + "\n\n" + label + "\n«" + replyTo + "»"
}
