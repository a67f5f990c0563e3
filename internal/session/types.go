package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
)

// Status represents a session lifecycle state.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
	StatusDraw       Status = "DRAW"
)

// Terminal reports whether no further mutation is possible.
func (s Status) Terminal() bool { return s == StatusFinished || s == StatusDraw }

func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusInProgress:
		return 1
	case StatusFinished, StatusDraw:
		return 2
	default:
		return -1
	}
}

// DrawMarker is stored in Record.Winner when the board fills without a winner.
const DrawMarker = "draw"

// MaxParticipants is the seat count of a session.
const MaxParticipants = 2

// Participant is a player bound to a session together with the chat address their view is delivered to.
type Participant struct {
	UserID    string       `json:"user_id"`
	ChatID    string       `json:"chat_id"`
	MessageID string       `json:"message_id,omitempty"`
	Name      string       `json:"name"`
	Symbol    board.Symbol `json:"symbol"`
}

// DisplayName falls back to the user id when no name is known.
func (p Participant) DisplayName() string {
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	return p.UserID
}

// seatSymbols assigns symbols positionally: first seat X, second O.
var seatSymbols = [MaxParticipants]board.Symbol{board.X, board.O}

// Record is the persisted state of a session, stored as JSON.
type Record struct {
	ID           int64         `json:"id"`
	Status       Status        `json:"status"`
	Participants []Participant `json:"participants"`
	CurrentTurn  string        `json:"current_turn,omitempty"`
	Board        board.Board   `json:"board"`
	Winner       string        `json:"winner,omitempty"`
	JoinToken    string        `json:"join_token"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Participant returns the participant with the given user id.
func (r *Record) Participant(userID string) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

// Turn resolves CurrentTurn to the participant whose move is expected.
func (r *Record) Turn() (*Participant, bool) {
	if r.CurrentTurn == "" {
		return nil, false
	}
	return r.Participant(r.CurrentTurn)
}

// Opponent returns the other seated participant.
func (r *Record) Opponent(userID string) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].UserID != userID {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

// WinnerParticipant returns the winning participant of a finished session.
func (r *Record) WinnerParticipant() (*Participant, bool) {
	if r.Status != StatusFinished || r.Winner == "" || r.Winner == DrawMarker {
		return nil, false
	}
	return r.Participant(r.Winner)
}

// Clone returns a deep copy so callers can mutate without aliasing the participants slice.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Participants = append([]Participant(nil), r.Participants...)
	return &cp
}

// Validate checks the structural invariants every persisted record must satisfy.
func (r *Record) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("invalid session id %d", r.ID)
	}
	if r.Status.rank() < 0 {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if len(r.Participants) == 0 || len(r.Participants) > MaxParticipants {
		return fmt.Errorf("session %d has %d participants", r.ID, len(r.Participants))
	}
	seen := make(map[string]struct{}, len(r.Participants))
	for i, p := range r.Participants {
		if strings.TrimSpace(p.UserID) == "" {
			return fmt.Errorf("session %d participant %d has no identity", r.ID, i)
		}
		if _, dup := seen[p.UserID]; dup {
			return fmt.Errorf("session %d has duplicate participant %s", r.ID, p.UserID)
		}
		seen[p.UserID] = struct{}{}
		if p.Symbol != seatSymbols[i] {
			return fmt.Errorf("session %d seat %d holds symbol %q", r.ID, i, p.Symbol)
		}
	}
	if r.CurrentTurn == "" {
		if len(r.Participants) == MaxParticipants {
			return fmt.Errorf("session %d has no current turn", r.ID)
		}
	} else if _, ok := r.Participant(r.CurrentTurn); !ok {
		return fmt.Errorf("session %d turn assigned to non-participant %s", r.ID, r.CurrentTurn)
	}
	if r.Status == StatusWaiting && len(r.Participants) != 1 {
		return fmt.Errorf("session %d waiting with %d participants", r.ID, len(r.Participants))
	}
	if r.Status != StatusWaiting && len(r.Participants) != MaxParticipants {
		return fmt.Errorf("session %d %s with %d participants", r.ID, r.Status, len(r.Participants))
	}
	switch r.Status {
	case StatusFinished:
		if _, ok := r.Participant(r.Winner); !ok {
			return fmt.Errorf("session %d finished without a winning participant", r.ID)
		}
	case StatusDraw:
		if r.Winner != DrawMarker {
			return fmt.Errorf("session %d draw without draw marker", r.ID)
		}
	default:
		if r.Winner != "" {
			return fmt.Errorf("session %d has winner before termination", r.ID)
		}
	}
	return nil
}

// checkTransition enforces monotonic status and terminal immutability between two versions of a record.
func checkTransition(prev, next *Record) error {
	if prev == nil {
		return nil
	}
	if prev.ID != next.ID || prev.JoinToken != next.JoinToken {
		return fmt.Errorf("session %d identity changed", prev.ID)
	}
	if next.Status.rank() < prev.Status.rank() {
		return fmt.Errorf("session %d status regressed %s -> %s", prev.ID, prev.Status, next.Status)
	}
	if prev.Status.Terminal() && (next.Status != prev.Status || next.Board != prev.Board || next.Winner != prev.Winner) {
		return fmt.Errorf("session %d is terminal", prev.ID)
	}
	if len(next.Participants) < len(prev.Participants) {
		return fmt.Errorf("session %d participants shrank", prev.ID)
	}
	for i, p := range prev.Participants {
		if next.Participants[i].UserID != p.UserID || next.Participants[i].Symbol != p.Symbol {
			return fmt.Errorf("session %d seat %d reassigned", prev.ID, i)
		}
	}
	for _, rc := range prev.Board.Diff(next.Board) {
		if prev.Board[rc[0]][rc[1]] != board.Empty {
			return fmt.Errorf("session %d cell %d,%d overwritten", prev.ID, rc[0], rc[1])
		}
	}
	return nil
}
