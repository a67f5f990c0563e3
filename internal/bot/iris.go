package bot

import (
	"context"
	"strings"

	"github.com/park285/Cheese-TicTacToe-bot/internal/irisfast"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"go.uber.org/zap"
)

// EventFromMessage converts an inbound Iris message. Typed text must carry the prefix;
// button callbacks are accepted as-is.
func EventFromMessage(msg *irisfast.Message, prefix string) (Event, bool) {
	if msg == nil {
		return Event{}, false
	}
	ev := Event{
		UserID:   msg.UserID(),
		ChatID:   msg.ChatID(),
		Room:     strings.TrimSpace(msg.Room),
		Name:     msg.SenderName(),
		Callback: strings.TrimSpace(msg.Callback),
	}
	if ev.UserID == "" || ev.ChatID == "" {
		return Event{}, false
	}
	if ev.Callback != "" {
		return ev, true
	}
	text := strings.TrimSpace(msg.Msg)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Event{}, false
	}
	ev.Text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	return ev, true
}

// OnMessage is the websocket callback. Each message is handled on its own goroutine.
func (b *Bot) OnMessage(msg *irisfast.Message) {
	ev, ok := EventFromMessage(msg, b.prefix)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.Handle(ctx, ev); err != nil {
			obslog.L().Debug("bot_event_rejected",
				zap.String("user_id", ev.UserID),
				zap.String("room", ev.Room),
				zap.Error(err),
			)
		}
	}()
}
