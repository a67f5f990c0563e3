package fanout

import (
	"strconv"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
	"github.com/park285/Cheese-TicTacToe-bot/internal/keyboard"
	"github.com/park285/Cheese-TicTacToe-bot/internal/msgcat"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
)

// Outcome is the state of a session as seen by one participant.
type Outcome string

const (
	OutcomeWaiting   Outcome = "waiting"
	OutcomeYourTurn  Outcome = "your_turn"
	OutcomeTheirTurn Outcome = "their_turn"
	OutcomeWon       Outcome = "won"
	OutcomeLost      Outcome = "lost"
	OutcomeDraw      Outcome = "draw"
)

// View is what one participant is shown after a mutation.
type View struct {
	SessionID int64
	Outcome   Outcome
	Header    string
	Text      string
	Board     board.Board
	Layout    keyboard.Layout
}

// Terminal reports whether the view closes the game.
func (v View) Terminal() bool {
	return v.Outcome == OutcomeWon || v.Outcome == OutcomeLost || v.Outcome == OutcomeDraw
}

// Render builds the view of rec for viewerID. Both participants get a view of the same record,
// so they always observe identical board state.
func Render(cat *msgcat.Catalog, prefix string, rec *session.Record, viewerID string) View {
	v := View{SessionID: rec.ID, Board: rec.Board}
	me, _ := rec.Participant(viewerID)
	opp, hasOpp := rec.Opponent(viewerID)

	if !hasOpp || rec.Status == session.StatusWaiting {
		v.Outcome = OutcomeWaiting
		v.Layout = keyboard.ExitOnly()
		v.Text = cat.Text("view.waiting", map[string]any{
			"ID":     strconv.FormatInt(rec.ID, 10),
			"Symbol": symbolOf(me),
			"Token":  rec.JoinToken,
			"Prefix": prefix,
		})
		return v
	}

	x, o := rec.Participants[0], rec.Participants[1]
	v.Header = cat.Text("view.header", map[string]any{
		"ID":    strconv.FormatInt(rec.ID, 10),
		"XName": x.DisplayName(),
		"OName": o.DisplayName(),
	})
	v.Layout = keyboard.Render(rec.Board)

	switch {
	case rec.Status == session.StatusDraw:
		v.Outcome = OutcomeDraw
	case rec.Status == session.StatusFinished && rec.Winner == viewerID:
		v.Outcome = OutcomeWon
	case rec.Status == session.StatusFinished:
		v.Outcome = OutcomeLost
	case rec.CurrentTurn == viewerID:
		v.Outcome = OutcomeYourTurn
	default:
		v.Outcome = OutcomeTheirTurn
	}
	v.Text = cat.Text("view."+string(v.Outcome), map[string]any{
		"Header":         v.Header,
		"Symbol":         symbolOf(me),
		"Opponent":       opp.DisplayName(),
		"OpponentSymbol": string(opp.Symbol),
	})
	return v
}

func symbolOf(p *session.Participant) string {
	if p == nil {
		return ""
	}
	return string(p.Symbol)
}
