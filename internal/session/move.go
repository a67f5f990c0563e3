package session

import (
	"context"
	"errors"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"go.uber.org/zap"
)

// ApplyMove places the actor's symbol at (row, col) and derives the next status.
// Rejections leave the stored record untouched and notify nobody.
func (m *Manager) ApplyMove(ctx context.Context, id int64, actorID string, row, col int) (*Record, error) {
	unlock, err := m.lock(ctx, sessionLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, ErrGameAlreadyOver
	}
	if len(rec.Participants) < MaxParticipants {
		return nil, ErrNotEnoughPlayers
	}
	if rec.CurrentTurn != actorID {
		return nil, ErrNotYourTurn
	}
	sym := symbolFor(rec, actorID)

	next := rec.Clone()
	placed, err := next.Board.Place(row, col, sym)
	if errors.Is(err, board.ErrIllegalMove) {
		return nil, ErrIllegalMove
	}
	if err != nil {
		return nil, err
	}
	next.Board = placed
	next.UpdatedAt = m.now()

	// A winning move can also fill the last cell, so the win check comes first.
	switch {
	case placed.Winner(sym):
		next.Status = StatusFinished
		next.Winner = actorID
	case placed.IsFull():
		next.Status = StatusDraw
		next.Winner = DrawMarker
	default:
		opp, _ := next.Opponent(actorID)
		next.CurrentTurn = opp.UserID
	}

	if err := m.commit(ctx, rec, next); err != nil {
		return nil, err
	}
	obslog.L().Info("session_move",
		zap.Int64("session_id", id),
		zap.String("user_id", actorID),
		zap.Int("row", row),
		zap.Int("col", col),
		zap.String("board", next.Board.String()),
		zap.String("status", string(next.Status)),
		zap.String("winner", next.Winner),
	)
	if next.Status.Terminal() {
		m.persistIfFinal(ctx, next)
	}
	m.deliver(ctx, next)
	return next, nil
}

// persistIfFinal archives a terminal record; failures are logged only.
func (m *Manager) persistIfFinal(ctx context.Context, rec *Record) {
	if m.archive == nil || rec == nil || !rec.Status.Terminal() {
		return
	}
	if err := m.archive.SaveResult(ctx, rec); err != nil {
		obslog.L().Error("session_result_persist_error", zap.Int64("session_id", rec.ID), zap.Error(err))
		return
	}
	obslog.L().Info("session_result_persist", zap.Int64("session_id", rec.ID), zap.String("status", string(rec.Status)))
}
