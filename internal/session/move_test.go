package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
)

type memoryArchive struct {
	mu    sync.Mutex
	saved []*Record
	err   error
}

func (a *memoryArchive) SaveResult(ctx context.Context, rec *Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.saved = append(a.saved, rec.Clone())
	return nil
}

// playDiagonal plays A(0,0) B(0,1) A(1,1) B(0,2) A(2,2): X wins on the main diagonal.
func playDiagonal(t *testing.T, m *Manager) *Record {
	t.Helper()
	rec := startGame(t, m)
	return playMoves(t, m, rec.ID, []string{"A00", "B01", "A11", "B02", "A22"})
}

func playMoves(t *testing.T, m *Manager, id int64, moves []string) *Record {
	t.Helper()
	var rec *Record
	var err error
	for _, mv := range moves {
		row, col := int(mv[1]-'0'), int(mv[2]-'0')
		rec, err = m.ApplyMove(context.Background(), id, mv[:1], row, col)
		if err != nil {
			t.Fatalf("ApplyMove %s: %v", mv, err)
		}
	}
	return rec
}

func TestApplyMove_Alternates(t *testing.T) {
	m, _ := newMemoryManager(t)
	ctx := context.Background()
	rec := startGame(t, m)

	got, err := m.ApplyMove(ctx, rec.ID, "A", 1, 1)
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if got.Board[1][1] != board.X || got.CurrentTurn != "B" || got.Status != StatusInProgress {
		t.Fatalf("unexpected state after X move: %s turn=%s", got.Board, got.CurrentTurn)
	}
	got, err = m.ApplyMove(ctx, rec.ID, "B", 0, 0)
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if got.Board[0][0] != board.O || got.CurrentTurn != "A" {
		t.Fatalf("unexpected state after O move: %s turn=%s", got.Board, got.CurrentTurn)
	}
}

func TestApplyMove_DiagonalWin(t *testing.T) {
	archive := &memoryArchive{}
	n := &recordingNotifier{}
	m, _ := newMemoryManager(t, WithArchive(archive), WithNotifier(n))
	rec := playDiagonal(t, m)
	if rec.Status != StatusFinished || rec.Winner != "A" {
		t.Fatalf("expected A to win, got %s winner=%q", rec.Status, rec.Winner)
	}
	if rec.Board.String() != "XOO/.X./..X" {
		t.Fatalf("board=%s", rec.Board)
	}
	if len(archive.saved) != 1 || archive.saved[0].ID != rec.ID {
		t.Fatalf("terminal record must be archived once, got %d", len(archive.saved))
	}
	if last := n.last(); last == nil || last.Status != StatusFinished {
		t.Fatalf("final state must be fanned out")
	}
}

func TestApplyMove_SecondPlayerWins(t *testing.T) {
	m, _ := newMemoryManager(t)
	rec := startGame(t, m)
	got := playMoves(t, m, rec.ID, []string{"A00", "B20", "A01", "B11", "A12", "B02"})
	if got.Status != StatusFinished || got.Winner != "B" {
		t.Fatalf("expected B to win on the anti-diagonal, got %s/%s", got.Status, got.Winner)
	}
	w, ok := got.WinnerParticipant()
	if !ok || w.Symbol != board.O {
		t.Fatalf("winner participant: %+v", w)
	}
}

func TestApplyMove_Draw(t *testing.T) {
	archive := &memoryArchive{}
	m, _ := newMemoryManager(t, WithArchive(archive))
	rec := startGame(t, m)
	// X O X / X O O / O X X
	got := playMoves(t, m, rec.ID, []string{"A00", "B01", "A02", "B11", "A10", "B12", "A21", "B20", "A22"})
	if got.Status != StatusDraw || got.Winner != DrawMarker {
		t.Fatalf("expected draw, got %s winner=%q board=%s", got.Status, got.Winner, got.Board)
	}
	if len(archive.saved) != 1 || archive.saved[0].Status != StatusDraw {
		t.Fatalf("draw must be archived")
	}
}

func TestApplyMove_WinOnLastCellIsNotDraw(t *testing.T) {
	m, _ := newMemoryManager(t)
	rec := startGame(t, m)
	// X O X / O X O / O X X: the ninth mark completes the main diagonal.
	got := playMoves(t, m, rec.ID, []string{"A00", "B01", "A02", "B10", "A11", "B12", "A21", "B20", "A22"})
	if !got.Board.IsFull() {
		t.Fatalf("board should be full: %s", got.Board)
	}
	if got.Status != StatusFinished || got.Winner != "A" {
		t.Fatalf("win must take precedence over draw, got %s", got.Status)
	}
}

func TestApplyMove_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("waiting", func(t *testing.T) {
		m, _ := newMemoryManager(t)
		rec, err := m.Create(ctx, alice())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := m.ApplyMove(ctx, rec.ID, "A", 0, 0); !errors.Is(err, ErrNotEnoughPlayers) {
			t.Fatalf("expected ErrNotEnoughPlayers, got %v", err)
		}
	})

	cases := []struct {
		name  string
		actor string
		row   int
		col   int
		want  error
		setup []string
	}{
		{name: "out of turn", actor: "B", row: 0, col: 0, want: ErrNotYourTurn},
		{name: "stranger", actor: "C", row: 0, col: 0, want: ErrNotYourTurn},
		{name: "occupied", actor: "B", row: 1, col: 1, want: ErrIllegalMove, setup: []string{"A11"}},
		{name: "out of range", actor: "A", row: 3, col: 0, want: ErrIllegalMove},
		{name: "negative", actor: "A", row: 0, col: -1, want: ErrIllegalMove},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := &recordingNotifier{}
			m, _ := newMemoryManager(t, WithNotifier(n))
			rec := startGame(t, m)
			if len(tc.setup) > 0 {
				playMoves(t, m, rec.ID, tc.setup)
			}
			before, _ := m.Get(ctx, rec.ID)
			calls := n.count()

			_, err := m.ApplyMove(ctx, rec.ID, tc.actor, tc.row, tc.col)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !IsPrecondition(err) || IsRetryable(err) {
				t.Fatalf("rejection must be a precondition error: %v", err)
			}
			after, _ := m.Get(ctx, rec.ID)
			if after.Board != before.Board || after.CurrentTurn != before.CurrentTurn || after.Status != before.Status {
				t.Fatalf("rejected move mutated state: %s -> %s", before.Board, after.Board)
			}
			if n.count() != calls {
				t.Fatalf("rejected move must not notify")
			}
		})
	}
}

func TestApplyMove_TerminalIsAbsorbing(t *testing.T) {
	m, _ := newMemoryManager(t)
	ctx := context.Background()
	rec := playDiagonal(t, m)
	for _, actor := range []string{"A", "B"} {
		if _, err := m.ApplyMove(ctx, rec.ID, actor, 2, 0); !errors.Is(err, ErrGameAlreadyOver) {
			t.Fatalf("%s: expected ErrGameAlreadyOver, got %v", actor, err)
		}
	}
	stored, _ := m.Get(ctx, rec.ID)
	if stored.Board != rec.Board || stored.Winner != "A" {
		t.Fatalf("terminal record changed")
	}
}

func TestApplyMove_UnknownSession(t *testing.T) {
	m, _ := newMemoryManager(t)
	if _, err := m.ApplyMove(context.Background(), 7, "A", 0, 0); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestApplyMove_ArchiveFailureIsNotFatal(t *testing.T) {
	m, _ := newMemoryManager(t, WithArchive(&memoryArchive{err: errors.New("db down")}))
	rec := playDiagonal(t, m)
	if rec.Status != StatusFinished {
		t.Fatalf("archive failure must not affect the game result")
	}
}

// Both players hammer the same cell at once; exactly one move is applied.
func TestApplyMove_ConcurrentSameCell(t *testing.T) {
	m, _ := newMemoryManager(t)
	ctx := context.Background()
	rec := startGame(t, m)

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := "A"
			if i%2 == 1 {
				actor = "B"
			}
			if _, err := m.ApplyMove(ctx, rec.ID, actor, 1, 1); err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if applied != 1 {
		t.Fatalf("expected exactly one applied move, got %d", applied)
	}
	stored, _ := m.Get(ctx, rec.ID)
	if stored.Board.Count(board.X) != 1 || stored.Board.Count(board.O) != 0 || stored.CurrentTurn != "B" {
		t.Fatalf("unexpected board %s turn=%s", stored.Board, stored.CurrentTurn)
	}
}

// Concurrent moves on different cells still alternate strictly.
func TestApplyMove_ConcurrentAlternation(t *testing.T) {
	m, _ := newRedisManager(t)
	ctx := context.Background()
	rec := startGame(t, m)

	var wg sync.WaitGroup
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			for _, actor := range []string{"A", "B"} {
				wg.Add(1)
				go func(actor string, r, c int) {
					defer wg.Done()
					_, _ = m.ApplyMove(ctx, rec.ID, actor, r, c)
				}(actor, r, c)
			}
		}
	}
	wg.Wait()
	stored, err := m.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	x, o := stored.Board.Count(board.X), stored.Board.Count(board.O)
	if x != o && x != o+1 {
		t.Fatalf("turns did not alternate: x=%d o=%d board=%s", x, o, stored.Board)
	}
	if err := stored.Validate(); err != nil {
		t.Fatalf("stored record invalid: %v", err)
	}
}

func TestValidate_RejectsBrokenRecords(t *testing.T) {
	good := startGame(t, func() *Manager { m, _ := newMemoryManager(t); return m }())
	mutations := map[string]func(r *Record){
		"swapped symbols": func(r *Record) { r.Participants[0].Symbol, r.Participants[1].Symbol = board.O, board.X },
		"third seat":      func(r *Record) { r.Participants = append(r.Participants, carol()) },
		"stranger turn":   func(r *Record) { r.CurrentTurn = "C" },
		"early winner":    func(r *Record) { r.Winner = "A" },
		"draw no marker":  func(r *Record) { r.Status = StatusDraw },
		"unknown status":  func(r *Record) { r.Status = "PAUSED" },
	}
	for name, mutate := range mutations {
		r := good.Clone()
		mutate(r)
		if err := r.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
}

func TestCheckTransition(t *testing.T) {
	m, _ := newMemoryManager(t)
	prev := startGame(t, m)

	regress := prev.Clone()
	regress.Status = StatusWaiting
	if checkTransition(prev, regress) == nil {
		t.Fatalf("status regression accepted")
	}

	prev.Board[0][0] = board.X
	overwrite := prev.Clone()
	overwrite.Board[0][0] = board.O
	if checkTransition(prev, overwrite) == nil {
		t.Fatalf("cell overwrite accepted")
	}

	done := prev.Clone()
	done.Status = StatusFinished
	done.Winner = "A"
	reopened := done.Clone()
	reopened.Board[2][2] = board.O
	if checkTransition(done, reopened) == nil {
		t.Fatalf("terminal mutation accepted")
	}
}

func TestRecord_Opponent(t *testing.T) {
	m, _ := newMemoryManager(t)
	rec := startGame(t, m)
	for _, tc := range [][2]string{{"A", "B"}, {"B", "A"}} {
		opp, ok := rec.Opponent(tc[0])
		if !ok || opp.UserID != tc[1] {
			t.Fatalf("opponent of %s: %+v", tc[0], opp)
		}
	}
}
