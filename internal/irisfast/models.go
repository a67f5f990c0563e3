package irisfast

import (
	"strings"

	"github.com/park285/Cheese-TicTacToe-bot/internal/keyboard"
)

// Message is one inbound chat event pushed over the websocket.
type Message struct {
	Msg    string       `json:"msg"`
	Room   string       `json:"room"`
	Sender *string      `json:"sender,omitempty"`
	JSON   *MessageJSON `json:"json,omitempty"`
	// Callback carries button data when the client pressed an inline key instead of typing.
	Callback string `json:"callback,omitempty"`
}

type MessageJSON struct {
	UserID    string `json:"user_id"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"id,omitempty"`
}

// UserID prefers the structured sender id and falls back to the display name.
func (m *Message) UserID() string {
	if m.JSON != nil && strings.TrimSpace(m.JSON.UserID) != "" {
		return strings.TrimSpace(m.JSON.UserID)
	}
	return m.SenderName()
}

func (m *Message) SenderName() string {
	if m.Sender == nil {
		return ""
	}
	return strings.TrimSpace(*m.Sender)
}

// ChatID is the address replies go to.
func (m *Message) ChatID() string {
	if m.JSON != nil && strings.TrimSpace(m.JSON.ChatID) != "" {
		return strings.TrimSpace(m.JSON.ChatID)
	}
	return strings.TrimSpace(m.Room)
}

type Config struct {
	BotName           string `json:"bot_name"`
	BotHTTPPort       int    `json:"bot_http_port"`
	WebServerEndpoint string `json:"web_server_endpoint"`
	DBRate            int    `json:"db_polling_rate"`
	SendRate          int    `json:"message_send_rate"`
}

type ReplyRequest struct {
	Type     string           `json:"type"`
	Room     string           `json:"room"`
	Data     string           `json:"data"`
	Keyboard *keyboard.Layout `json:"keyboard,omitempty"`
}

type ReplyResponse struct {
	MessageID string `json:"message_id"`
}

type EditRequest struct {
	Room      string           `json:"room"`
	MessageID string           `json:"message_id"`
	Data      string           `json:"data"`
	Keyboard  *keyboard.Layout `json:"keyboard,omitempty"`
}

type DeleteRequest struct {
	Room      string `json:"room"`
	MessageID string `json:"message_id"`
}

type WebSocketState int

const (
	WSStateDisconnected WebSocketState = iota
	WSStateConnecting
	WSStateConnected
	WSStateReconnecting
	WSStateFailed
)

func (s WebSocketState) String() string {
	switch s {
	case WSStateConnecting:
		return "connecting"
	case WSStateConnected:
		return "connected"
	case WSStateReconnecting:
		return "reconnecting"
	case WSStateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}
