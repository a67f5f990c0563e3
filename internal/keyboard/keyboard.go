package keyboard

import (
	"strconv"
	"strings"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
)

// ExitData is the callback data of the leave button.
const ExitData = "back_to_menu"

// ExitLabel is the label of the leave button.
const ExitLabel = "Leave game"

// Button is one keyboard key. Data is what the chat client sends back when it is pressed.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Layout is an inline keyboard: board rows followed by the exit row.
type Layout struct {
	Rows [][]Button `json:"rows"`
}

// Render builds the keyboard for b. Cell data is "<row><col>"; empty cells get a blank label.
func Render(b board.Board) Layout {
	rows := make([][]Button, 0, board.Size+1)
	for r := 0; r < board.Size; r++ {
		row := make([]Button, 0, board.Size)
		for c := 0; c < board.Size; c++ {
			label := string(b[r][c])
			if label == "" {
				label = " "
			}
			row = append(row, Button{Label: label, Data: CellData(r, c)})
		}
		rows = append(rows, row)
	}
	rows = append(rows, []Button{{Label: ExitLabel, Data: ExitData}})
	return Layout{Rows: rows}
}

// CellData encodes a cell the way Render does.
func CellData(row, col int) string {
	return strconv.Itoa(row) + strconv.Itoa(col)
}

// ParseCell decodes "<row><col>" (or "<row> <col>") callback data.
func ParseCell(data string) (row, col int, ok bool) {
	s := strings.Join(strings.Fields(data), "")
	if len(s) != 2 {
		return 0, 0, false
	}
	row, col = int(s[0]-'0'), int(s[1]-'0')
	if !board.InRange(row, col) {
		return 0, 0, false
	}
	return row, col, true
}

// Empty reports whether the layout carries no buttons.
func (l Layout) Empty() bool { return len(l.Rows) == 0 }

// Text draws the layout for transports without inline keyboards. Blank cells show their
// coordinates so the player can type them back.
func (l Layout) Text() string {
	var b strings.Builder
	for _, row := range l.Rows {
		if len(row) == 1 && row[0].Data == ExitData {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		cells := make([]string, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Label)
			if label == "" {
				label = btn.Data
			}
			cells = append(cells, label)
		}
		b.WriteString(strings.Join(cells, " | "))
	}
	return b.String()
}

// ExitOnly is the layout shown while no board is playable yet.
func ExitOnly() Layout {
	return Layout{Rows: [][]Button{{{Label: ExitLabel, Data: ExitData}}}}
}
