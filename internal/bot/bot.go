package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/fanout"
	"github.com/park285/Cheese-TicTacToe-bot/internal/kakaotext"
	"github.com/park285/Cheese-TicTacToe-bot/internal/keyboard"
	"github.com/park285/Cheese-TicTacToe-bot/internal/msgcat"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"go.uber.org/zap"
)

// Event is one inbound user action, already stripped of the command prefix.
type Event struct {
	UserID   string
	ChatID   string
	Room     string
	Name     string
	Text     string
	Callback string
}

func (e Event) participant() session.Participant {
	return session.Participant{UserID: e.UserID, ChatID: e.ChatID, Name: e.Name}
}

type Bot struct {
	mgr     *session.Manager
	steps   StepStore
	out     fanout.Messenger
	cat     *msgcat.Catalog
	prefix  string
	allowed func(room string) bool
	timeout time.Duration
	fold    bool
}

type Option func(*Bot)

// WithRoomFilter rejects events from rooms the predicate refuses.
func WithRoomFilter(allowed func(room string) bool) Option {
	return func(b *Bot) { b.allowed = allowed }
}

// WithFoldedMenu folds the command list behind the client's "see more" link.
func WithFoldedMenu(on bool) Option {
	return func(b *Bot) { b.fold = on }
}

// WithTimeout bounds each asynchronously handled message.
func WithTimeout(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func New(mgr *session.Manager, steps StepStore, out fanout.Messenger, cat *msgcat.Catalog, prefix string, opts ...Option) *Bot {
	b := &Bot{
		mgr:     mgr,
		steps:   steps,
		out:     out,
		cat:     cat,
		prefix:  prefix,
		timeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Handle runs one event to completion. Domain errors are answered in chat and
// also returned so callers can log them.
func (b *Bot) Handle(ctx context.Context, ev Event) error {
	if strings.TrimSpace(ev.UserID) == "" || strings.TrimSpace(ev.ChatID) == "" {
		return session.ErrInvalidArgs
	}
	if b.allowed != nil && !b.allowed(ev.Room) {
		b.reply(ctx, ev, "menu.room_denied", nil)
		return nil
	}

	cmd := Parse(ev.Text, ev.Callback)
	step, err := b.steps.Get(ctx, ev.UserID)
	if err != nil {
		obslog.L().Warn("step_get_error", zap.String("user_id", ev.UserID), zap.Error(err))
		step = StepMenu
	}
	// While a code is expected, typed digits are a session number, not a cell.
	if step == StepAwaitCode && ev.Callback == "" && (cmd.Kind == KindMove || cmd.Kind == KindBadMove) {
		cmd = Command{Kind: KindText, Arg: strings.TrimSpace(ev.Text)}
	}
	obslog.L().Debug("bot_command",
		zap.String("user_id", ev.UserID),
		zap.Int("kind", int(cmd.Kind)),
		zap.String("step", string(step)),
	)

	switch cmd.Kind {
	case KindMenu:
		if step == StepAwaitCode {
			b.setStep(ctx, ev.UserID, StepMenu)
		}
		b.reply(ctx, ev, "menu.welcome", nil)
		return nil
	case KindNew:
		return b.create(ctx, ev)
	case KindJoin:
		if cmd.Arg == "" {
			b.setStep(ctx, ev.UserID, StepAwaitCode)
			b.reply(ctx, ev, "menu.await_code", nil)
			return nil
		}
		return b.join(ctx, ev, cmd.Arg, step)
	case KindText:
		if step == StepAwaitCode {
			return b.join(ctx, ev, cmd.Arg, step)
		}
		b.reply(ctx, ev, "errors.unknown", nil)
		return nil
	case KindMove:
		return b.move(ctx, ev, cmd.Row, cmd.Col)
	case KindExit:
		return b.exit(ctx, ev)
	case KindStatus:
		return b.status(ctx, ev)
	case KindBadMove:
		b.reply(ctx, ev, "errors.bad_move", nil)
		return nil
	default:
		b.reply(ctx, ev, "errors.unknown", nil)
		return nil
	}
}

func (b *Bot) create(ctx context.Context, ev Event) error {
	if _, err := b.mgr.Create(ctx, ev.participant()); err != nil {
		return b.fail(ctx, ev, err)
	}
	b.setStep(ctx, ev.UserID, StepInGame)
	return nil
}

func (b *Bot) join(ctx context.Context, ev Event, ref string, step Step) error {
	_, err := b.mgr.Join(ctx, ev.participant(), ref)
	if err == nil {
		b.setStep(ctx, ev.UserID, StepInGame)
		return nil
	}
	// a mistyped code keeps the prompt open; anything else ends it
	if step == StepAwaitCode && !errors.Is(err, session.ErrSessionNotFound) {
		b.setStep(ctx, ev.UserID, StepMenu)
	}
	return b.fail(ctx, ev, err)
}

func (b *Bot) move(ctx context.Context, ev Event, row, col int) error {
	rec, err := b.mgr.CurrentFor(ctx, ev.UserID)
	if err != nil {
		return b.fail(ctx, ev, err)
	}
	if rec == nil {
		b.reply(ctx, ev, "menu.no_session", nil)
		return nil
	}
	next, err := b.mgr.ApplyMove(ctx, rec.ID, ev.UserID, row, col)
	if err != nil {
		return b.fail(ctx, ev, err)
	}
	if next.Status.Terminal() {
		b.setStep(ctx, ev.UserID, StepMenu)
		if opp, ok := next.Opponent(ev.UserID); ok {
			b.setStep(ctx, opp.UserID, StepMenu)
		}
	}
	return nil
}

func (b *Bot) exit(ctx context.Context, ev Event) error {
	rec, err := b.mgr.Leave(ctx, ev.UserID)
	if err != nil {
		return b.fail(ctx, ev, err)
	}
	b.setStep(ctx, ev.UserID, StepMenu)
	if rec == nil {
		b.reply(ctx, ev, "menu.welcome", nil)
		return nil
	}
	if p, ok := rec.Participant(ev.UserID); ok && p.MessageID != "" {
		if err := b.out.Delete(ctx, p.ChatID, p.MessageID); err != nil {
			obslog.L().Debug("board_delete_error", zap.Int64("session_id", rec.ID), zap.Error(err))
		}
	}
	b.reply(ctx, ev, "menu.left", map[string]any{"ID": rec.ID})
	return nil
}

func (b *Bot) status(ctx context.Context, ev Event) error {
	rec, err := b.mgr.CurrentFor(ctx, ev.UserID)
	if err != nil {
		return b.fail(ctx, ev, err)
	}
	if rec == nil {
		b.reply(ctx, ev, "menu.no_session", nil)
		return nil
	}
	if _, err := b.mgr.Refresh(ctx, rec.ID); err != nil {
		return b.fail(ctx, ev, err)
	}
	return nil
}

// fail answers the actor only; the other participant never sees a rejected action.
func (b *Bot) fail(ctx context.Context, ev Event, err error) error {
	switch {
	case session.IsPrecondition(err):
		b.reply(ctx, ev, "errors."+string(session.CodeOf(err)), nil)
	case errors.Is(err, session.ErrInvalidArgs):
		obslog.L().Warn("bot_invalid_args", zap.String("user_id", ev.UserID), zap.Error(err))
		b.reply(ctx, ev, "errors.bad_move", nil)
	default:
		obslog.L().Error("bot_command_error",
			zap.String("user_id", ev.UserID),
			zap.Bool("retryable", session.IsRetryable(err)),
			zap.Error(err),
		)
		b.reply(ctx, ev, "errors.retry", nil)
	}
	return err
}

func (b *Bot) reply(ctx context.Context, ev Event, key string, data map[string]any) {
	if data == nil {
		data = make(map[string]any, 1)
	}
	data["Prefix"] = b.prefix
	text := b.cat.Text(key, data)
	if b.fold && key == "menu.welcome" {
		text = kakaotext.FoldFirstLine(text)
	}
	if _, err := b.out.Send(ctx, ev.ChatID, text, keyboard.Layout{}); err != nil {
		obslog.L().Warn("bot_reply_error", zap.String("chat_id", ev.ChatID), zap.String("key", key), zap.Error(err))
	}
}

func (b *Bot) setStep(ctx context.Context, userID string, step Step) {
	if err := b.steps.Set(ctx, userID, step); err != nil {
		obslog.L().Warn("step_set_error", zap.String("user_id", userID), zap.String("step", string(step)), zap.Error(err))
	}
}
