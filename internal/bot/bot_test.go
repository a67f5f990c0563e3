package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/park285/Cheese-TicTacToe-bot/internal/fanout"
	"github.com/park285/Cheese-TicTacToe-bot/internal/kakaotext"
	"github.com/park285/Cheese-TicTacToe-bot/internal/keyboard"
	"github.com/park285/Cheese-TicTacToe-bot/internal/msgcat"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
)

type outMsg struct {
	chatID string
	text   string
}

type chatLog struct {
	mu      sync.Mutex
	seq     int
	sent    []outMsg
	edits   []outMsg
	deleted []string
}

func (c *chatLog) Send(ctx context.Context, chatID, text string, layout keyboard.Layout) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.sent = append(c.sent, outMsg{chatID: chatID, text: text})
	return fmt.Sprintf("m%d", c.seq), nil
}

func (c *chatLog) Edit(ctx context.Context, chatID, messageID, text string, layout keyboard.Layout) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, outMsg{chatID: chatID, text: text})
	return nil
}

func (c *chatLog) Delete(ctx context.Context, chatID, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, chatID+"/"+messageID)
	return nil
}

// last returns the latest newly sent text in chatID.
func (c *chatLog) last(chatID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := ""
	for _, m := range c.sent {
		if m.chatID == chatID {
			out = m.text
		}
	}
	return out
}

func (c *chatLog) lastEdit(chatID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := ""
	for _, m := range c.edits {
		if m.chatID == chatID {
			out = m.text
		}
	}
	return out
}

func (c *chatLog) countTo(chatID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.sent {
		if m.chatID == chatID {
			n++
		}
	}
	for _, m := range c.edits {
		if m.chatID == chatID {
			n++
		}
	}
	return n
}

type harness struct {
	bot   *Bot
	mgr   *session.Manager
	out   *chatLog
	steps *MemoryStepStore
	cat   *msgcat.Catalog
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	out := &chatLog{}
	mgr := session.NewManager(session.NewMemoryStore(), session.NewMemoryUserIndex(),
		session.WithNotifier(fanout.NewDispatcher(out, cat, "!ttt")))
	steps := NewMemoryStepStore()
	return &harness{bot: New(mgr, steps, out, cat, "!ttt", opts...), mgr: mgr, out: out, steps: steps, cat: cat}
}

func (h *harness) say(t *testing.T, user, text string) error {
	t.Helper()
	return h.bot.Handle(context.Background(), Event{UserID: user, ChatID: "chat-" + user, Name: user, Text: text})
}

func (h *harness) step(t *testing.T, user string) Step {
	t.Helper()
	st, err := h.steps.Get(context.Background(), user)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	return st
}

func (h *harness) errText(code session.Code) string {
	return h.cat.Text("errors."+string(code), map[string]any{"Prefix": "!ttt"})
}

func TestParse(t *testing.T) {
	cases := []struct {
		text, cb string
		want     Command
	}{
		{"", "", Command{Kind: KindMenu}},
		{"help", "", Command{Kind: KindMenu}},
		{"NEW", "", Command{Kind: KindNew}},
		{"join", "", Command{Kind: KindJoin}},
		{"join ttt-abc234", "", Command{Kind: KindJoin, Arg: "ttt-abc234"}},
		{"12", "", Command{Kind: KindMove, Row: 1, Col: 2}},
		{"2 0", "", Command{Kind: KindMove, Row: 2, Col: 0}},
		{"move 1 1", "", Command{Kind: KindMove, Row: 1, Col: 1}},
		{"39", "", Command{Kind: KindBadMove, Arg: "39"}},
		{"exit", "", Command{Kind: KindExit}},
		{"status", "", Command{Kind: KindStatus}},
		{"TTT-ABC234", "", Command{Kind: KindText, Arg: "TTT-ABC234"}},
		{"ignored", "21", Command{Kind: KindMove, Row: 2, Col: 1}},
		{"", keyboard.ExitData, Command{Kind: KindExit}},
	}
	for _, tc := range cases {
		if got := Parse(tc.text, tc.cb); got != tc.want {
			t.Fatalf("Parse(%q, %q) = %+v, want %+v", tc.text, tc.cb, got, tc.want)
		}
	}
}

func TestFlow_NewJoinPlayToWin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.say(t, "A", "new"); err != nil {
		t.Fatalf("new: %v", err)
	}
	if h.step(t, "A") != StepInGame {
		t.Fatalf("creator should be in game")
	}
	rec, err := h.mgr.CurrentFor(ctx, "A")
	if err != nil || rec == nil {
		t.Fatalf("CurrentFor: %v %v", rec, err)
	}
	if !strings.Contains(h.out.last("chat-A"), rec.JoinToken) {
		t.Fatalf("waiting view must show the token: %q", h.out.last("chat-A"))
	}

	if err := h.say(t, "B", "join"); err != nil {
		t.Fatalf("join prompt: %v", err)
	}
	if h.step(t, "B") != StepAwaitCode {
		t.Fatalf("expected await_code, got %s", h.step(t, "B"))
	}
	err = h.say(t, "B", "TTT-ZZZZZZ")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if h.step(t, "B") != StepAwaitCode {
		t.Fatalf("wrong code must keep the prompt")
	}
	if got := h.out.last("chat-B"); got != h.errText(session.CodeSessionNotFound) {
		t.Fatalf("unexpected reply %q", got)
	}

	if err := h.say(t, "B", strings.ToLower(rec.JoinToken)); err != nil {
		t.Fatalf("join with code: %v", err)
	}
	if h.step(t, "B") != StepInGame {
		t.Fatalf("joiner should be in game")
	}
	if !strings.Contains(h.out.lastEdit("chat-A"), "Your turn") {
		t.Fatalf("creator's board should be edited to their turn: %q", h.out.lastEdit("chat-A"))
	}

	for _, mv := range []struct{ user, cell string }{
		{"A", "00"}, {"B", "01"}, {"A", "11"}, {"B", "02"}, {"A", "22"},
	} {
		if err := h.say(t, mv.user, mv.cell); err != nil {
			t.Fatalf("move %s %s: %v", mv.user, mv.cell, err)
		}
	}
	final, err := h.mgr.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != session.StatusFinished || final.Winner != "A" {
		t.Fatalf("unexpected final record: %+v", final)
	}
	if h.step(t, "A") != StepMenu || h.step(t, "B") != StepMenu {
		t.Fatalf("both players return to the menu after the game")
	}
	if !strings.Contains(h.out.lastEdit("chat-A"), "You won!") {
		t.Fatalf("winner view: %q", h.out.lastEdit("chat-A"))
	}

	if err := h.say(t, "A", "new"); err != nil {
		t.Fatalf("new after finish: %v", err)
	}
}

func TestRejectionGoesToActorOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.say(t, "A", "new"); err != nil {
		t.Fatal(err)
	}
	rec, _ := h.mgr.CurrentFor(ctx, "A")
	if err := h.say(t, "B", "join "+rec.JoinToken); err != nil {
		t.Fatal(err)
	}
	before := h.out.countTo("chat-A")

	err := h.say(t, "B", "11")
	if !errors.Is(err, session.ErrNotYourTurn) {
		t.Fatalf("expected not your turn, got %v", err)
	}
	if got := h.out.last("chat-B"); got != h.errText(session.CodeNotYourTurn) {
		t.Fatalf("unexpected reply %q", got)
	}
	if h.out.countTo("chat-A") != before {
		t.Fatalf("opponent must not be notified of a rejected move")
	}

	if err := h.say(t, "A", "11"); err != nil {
		t.Fatal(err)
	}
	if err := h.say(t, "B", "11"); !errors.Is(err, session.ErrIllegalMove) {
		t.Fatalf("expected illegal move, got %v", err)
	}
}

func TestJoinBusyUserLeavesPrompt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.say(t, "A", "new"); err != nil {
		t.Fatal(err)
	}
	if err := h.say(t, "B", "new"); err != nil {
		t.Fatal(err)
	}
	rec, _ := h.mgr.CurrentFor(ctx, "A")
	if err := h.say(t, "B", "join"); err != nil {
		t.Fatal(err)
	}
	if err := h.say(t, "B", rec.JoinToken); !errors.Is(err, session.ErrAlreadyInSession) {
		t.Fatalf("expected already in session, got %v", err)
	}
	if h.step(t, "B") != StepMenu {
		t.Fatalf("non-retryable join failure should leave the prompt")
	}
}

func TestAwaitCodeAcceptsNumericID(t *testing.T) {
	h := newHarness(t)
	if err := h.say(t, "A", "new"); err != nil {
		t.Fatal(err)
	}
	if err := h.say(t, "B", "join"); err != nil {
		t.Fatal(err)
	}
	// bare session number
	if err := h.say(t, "B", "1"); err != nil {
		t.Fatalf("join by id: %v", err)
	}
	if h.step(t, "B") != StepInGame {
		t.Fatalf("expected in game")
	}
}

func TestExitDeletesBoardAndReplies(t *testing.T) {
	h := newHarness(t)
	if err := h.say(t, "A", "new"); err != nil {
		t.Fatal(err)
	}
	if err := h.say(t, "A", "exit"); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if len(h.out.deleted) != 1 || !strings.HasPrefix(h.out.deleted[0], "chat-A/") {
		t.Fatalf("board message not deleted: %v", h.out.deleted)
	}
	if !strings.Contains(h.out.last("chat-A"), "You left session #1") {
		t.Fatalf("unexpected reply %q", h.out.last("chat-A"))
	}
	if h.step(t, "A") != StepMenu {
		t.Fatalf("expected menu step")
	}
	if err := h.say(t, "A", "11"); err != nil {
		t.Fatalf("move without session: %v", err)
	}
	if !strings.Contains(h.out.last("chat-A"), "not in a session") {
		t.Fatalf("unexpected reply %q", h.out.last("chat-A"))
	}
}

func TestBadMoveAndUnknown(t *testing.T) {
	h := newHarness(t)
	if err := h.say(t, "A", "39"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h.out.last("chat-A"), "row and column") {
		t.Fatalf("unexpected reply %q", h.out.last("chat-A"))
	}
	if err := h.say(t, "A", "dance"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h.out.last("chat-A"), "Unknown command") {
		t.Fatalf("unexpected reply %q", h.out.last("chat-A"))
	}
}

func TestRoomFilter(t *testing.T) {
	h := newHarness(t, WithRoomFilter(func(room string) bool { return room == "ok" }))
	err := h.bot.Handle(context.Background(), Event{UserID: "A", ChatID: "chat-A", Room: "other", Text: "new"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h.out.last("chat-A"), "not enabled") {
		t.Fatalf("unexpected reply %q", h.out.last("chat-A"))
	}
	if rec, _ := h.mgr.CurrentFor(context.Background(), "A"); rec != nil {
		t.Fatalf("denied room must not create a session")
	}
}

func TestFoldedMenu(t *testing.T) {
	h := newHarness(t, WithFoldedMenu(true))
	if err := h.say(t, "A", ""); err != nil {
		t.Fatal(err)
	}
	got := h.out.last("chat-A")
	if !strings.HasPrefix(got, "Tic-tac-toe"+kakaotext.ZeroWidthSpace) {
		t.Fatalf("menu not folded: %q", got[:20])
	}
	if !strings.Contains(kakaotext.Unfold(got), "!ttt new") {
		t.Fatalf("menu body lost")
	}
}

func TestStatusRefreshesBoard(t *testing.T) {
	h := newHarness(t)
	if err := h.say(t, "A", "new"); err != nil {
		t.Fatal(err)
	}
	before := h.out.countTo("chat-A")
	if err := h.say(t, "A", "status"); err != nil {
		t.Fatal(err)
	}
	if h.out.countTo("chat-A") != before+1 {
		t.Fatalf("status should redraw the board once")
	}
}
