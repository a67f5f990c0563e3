package board

import (
	"errors"
	"strings"
)

// Size is the side length of the grid.
const Size = 3

// Symbol is a mark placed on a cell. The zero value is an empty cell.
type Symbol string

const (
	Empty Symbol = ""
	X     Symbol = "X"
	O     Symbol = "O"
)

// Other returns the alternate symbol; Empty maps to Empty.
func (s Symbol) Other() Symbol {
	switch s {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

// ErrIllegalMove is returned when a cell is occupied or outside the grid.
var ErrIllegalMove = errors.New("illegal move")

// Board is a 3x3 grid. It is a value type: Place returns a modified copy.
type Board [Size][Size]Symbol

var lines = [8][3][2]int{
	{{0, 0}, {0, 1}, {0, 2}},
	{{1, 0}, {1, 1}, {1, 2}},
	{{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}},
	{{0, 1}, {1, 1}, {2, 1}},
	{{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}},
	{{2, 0}, {1, 1}, {0, 2}},
}

func InRange(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

// IsEmpty reports whether the cell holds no symbol. Out-of-range cells are never empty.
func (b Board) IsEmpty(row, col int) bool {
	if !InRange(row, col) {
		return false
	}
	return b[row][col] == Empty
}

// Place puts sym on an empty in-range cell.
func (b Board) Place(row, col int, sym Symbol) (Board, error) {
	if sym != X && sym != O {
		return b, ErrIllegalMove
	}
	if !b.IsEmpty(row, col) {
		return b, ErrIllegalMove
	}
	b[row][col] = sym
	return b, nil
}

// Winner reports whether any row, column or diagonal is fully occupied by sym.
func (b Board) Winner(sym Symbol) bool {
	if sym == Empty {
		return false
	}
	for _, line := range lines {
		won := true
		for _, cell := range line {
			if b[cell[0]][cell[1]] != sym {
				won = false
				break
			}
		}
		if won {
			return true
		}
	}
	return false
}

func (b Board) IsFull() bool {
	for r := range b {
		for c := range b[r] {
			if b[r][c] == Empty {
				return false
			}
		}
	}
	return true
}

// Count returns the number of cells holding sym.
func (b Board) Count(sym Symbol) int {
	n := 0
	for r := range b {
		for c := range b[r] {
			if b[r][c] == sym {
				n++
			}
		}
	}
	return n
}

// Diff returns the coordinates of cells that differ between b and other.
func (b Board) Diff(other Board) [][2]int {
	var out [][2]int
	for r := range b {
		for c := range b[r] {
			if b[r][c] != other[r][c] {
				out = append(out, [2]int{r, c})
			}
		}
	}
	return out
}

// String renders rows separated by '/', empty cells as '.', e.g. "X.O/.X./..O".
func (b Board) String() string {
	var sb strings.Builder
	for r := range b {
		if r > 0 {
			sb.WriteByte('/')
		}
		for c := range b[r] {
			if b[r][c] == Empty {
				sb.WriteByte('.')
				continue
			}
			sb.WriteString(string(b[r][c]))
		}
	}
	return sb.String()
}
