package irisfast

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/park285/Cheese-TicTacToe-bot/internal/keyboard"
	"go.uber.org/zap"
)

// Egress is the outbound side of the transport: everything fan-out and the bot need to reply.
type Egress interface {
	Send(ctx context.Context, chatID, text string, layout keyboard.Layout) (string, error)
	Edit(ctx context.Context, chatID, messageID, text string, layout keyboard.Layout) error
	Delete(ctx context.Context, chatID, messageID string) error
	SendImage(ctx context.Context, chatID string, png []byte, caption string) error
}

// NewEgress returns c, or a logging stand-in when dryrun is set.
func NewEgress(dryrun bool, c *Client, logger *zap.Logger) Egress {
	if !dryrun {
		return c
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &dryRunEgress{logger: logger}
}

// dryRunEgress logs every outbound call and hands out local message ids.
type dryRunEgress struct {
	logger *zap.Logger
	seq    atomic.Int64
}

func (d *dryRunEgress) Send(ctx context.Context, chatID, text string, layout keyboard.Layout) (string, error) {
	id := "dry-" + strconv.FormatInt(d.seq.Add(1), 10)
	d.logger.Info("egress_dryrun", zap.String("op", "send"), zap.String("room", chatID), zap.String("message_id", id), zap.String("text", text))
	return id, nil
}

func (d *dryRunEgress) Edit(ctx context.Context, chatID, messageID, text string, layout keyboard.Layout) error {
	d.logger.Info("egress_dryrun", zap.String("op", "edit"), zap.String("room", chatID), zap.String("message_id", messageID), zap.String("text", text))
	return nil
}

func (d *dryRunEgress) Delete(ctx context.Context, chatID, messageID string) error {
	d.logger.Info("egress_dryrun", zap.String("op", "delete"), zap.String("room", chatID), zap.String("message_id", messageID))
	return nil
}

func (d *dryRunEgress) SendImage(ctx context.Context, chatID string, png []byte, caption string) error {
	d.logger.Info("egress_dryrun", zap.String("op", "image"), zap.String("room", chatID), zap.Int("bytes", len(png)))
	return nil
}
