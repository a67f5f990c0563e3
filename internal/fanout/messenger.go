package fanout

import (
	"context"

	"github.com/park285/Cheese-TicTacToe-bot/internal/keyboard"
)

// Messenger is the chat transport. Each participant is addressed by their own chat id.
type Messenger interface {
	Send(ctx context.Context, chatID, text string, layout keyboard.Layout) (messageID string, err error)
	Edit(ctx context.Context, chatID, messageID, text string, layout keyboard.Layout) error
	Delete(ctx context.Context, chatID, messageID string) error
}

// ImageSender is implemented by transports that can post pictures.
type ImageSender interface {
	SendImage(ctx context.Context, chatID string, png []byte, caption string) error
}

// Snapshotter renders a picture of a finished board.
type Snapshotter interface {
	Snapshot(ctx context.Context, view View) ([]byte, error)
}
