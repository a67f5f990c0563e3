package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS ttt_results (
    session_id   BIGINT PRIMARY KEY,
    join_token   TEXT NOT NULL,
    x_user_id    TEXT NOT NULL,
    x_name       TEXT NOT NULL,
    o_user_id    TEXT NOT NULL,
    o_name       TEXT NOT NULL,
    status       TEXT NOT NULL,
    result       TEXT NOT NULL,
    winner_id    TEXT,
    board        TEXT NOT NULL,
    participants JSONB NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    ended_at     TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT NOT NULL
)`

// Repository archives terminal sessions in Postgres. The hot state stays in the Store.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// resultRow is the archived shape of one finished session.
type resultRow struct {
	SessionID    int64     `db:"session_id"`
	JoinToken    string    `db:"join_token"`
	XUserID      string    `db:"x_user_id"`
	XName        string    `db:"x_name"`
	OUserID      string    `db:"o_user_id"`
	OName        string    `db:"o_name"`
	Status       string    `db:"status"`
	Result       string    `db:"result"`
	WinnerID     *string   `db:"winner_id"`
	Board        string    `db:"board"`
	Participants string    `db:"participants"`
	StartedAt    time.Time `db:"started_at"`
	EndedAt      time.Time `db:"ended_at"`
	DurationMS   int64     `db:"duration_ms"`
}

// SaveResult upserts the final state of a terminal session.
func (r *Repository) SaveResult(ctx context.Context, rec *Record) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	row, err := newResultRow(rec)
	if err != nil {
		return err
	}
	const q = `INSERT INTO ttt_results (
        session_id, join_token, x_user_id, x_name, o_user_id, o_name,
        status, result, winner_id, board, participants,
        started_at, ended_at, duration_ms
      ) VALUES (
        :session_id, :join_token, :x_user_id, :x_name, :o_user_id, :o_name,
        :status, :result, :winner_id, :board, CAST(:participants AS JSONB),
        :started_at, :ended_at, :duration_ms
      ) ON CONFLICT (session_id) DO UPDATE SET
        status=EXCLUDED.status,
        result=EXCLUDED.result,
        winner_id=EXCLUDED.winner_id,
        board=EXCLUDED.board,
        participants=EXCLUDED.participants,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func newResultRow(rec *Record) (*resultRow, error) {
	if !rec.Status.Terminal() || len(rec.Participants) != MaxParticipants {
		return nil, fmt.Errorf("session %d is not archivable in status %s", rec.ID, rec.Status)
	}
	raw, err := json.Marshal(rec.Participants)
	if err != nil {
		return nil, fmt.Errorf("marshal participants: %w", err)
	}
	x, o := rec.Participants[0], rec.Participants[1]
	row := &resultRow{
		SessionID:    rec.ID,
		JoinToken:    rec.JoinToken,
		XUserID:      x.UserID,
		XName:        x.DisplayName(),
		OUserID:      o.UserID,
		OName:        o.DisplayName(),
		Status:       string(rec.Status),
		Result:       resultToken(rec),
		Board:        rec.Board.String(),
		Participants: string(raw),
		StartedAt:    rec.CreatedAt,
		EndedAt:      rec.UpdatedAt,
	}
	if w, ok := rec.WinnerParticipant(); ok {
		id := w.UserID
		row.WinnerID = &id
	}
	if d := rec.UpdatedAt.Sub(rec.CreatedAt).Milliseconds(); d > 0 {
		row.DurationMS = d
	}
	return row, nil
}

// resultToken is "x", "o" or "draw", in the style of a PGN result tag.
func resultToken(rec *Record) string {
	if rec.Status == StatusDraw {
		return "draw"
	}
	if w, ok := rec.WinnerParticipant(); ok {
		return strings.ToLower(string(w.Symbol))
	}
	return ""
}
