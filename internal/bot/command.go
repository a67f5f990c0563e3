package bot

import (
	"strings"

	"github.com/park285/Cheese-TicTacToe-bot/internal/keyboard"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindMenu
	KindNew
	KindJoin
	KindMove
	KindExit
	KindStatus
	// KindBadMove looks like a move but names no cell on the board.
	KindBadMove
	// KindText is free text; it is a join code while the user is at StepAwaitCode.
	KindText
)

type Command struct {
	Kind Kind
	Arg  string
	Row  int
	Col  int
}

// Parse reads a command from the text after the prefix, or from keyboard callback data.
// Callback data wins when both are present.
func Parse(text, callback string) Command {
	if cb := strings.TrimSpace(callback); cb != "" {
		if cb == keyboard.ExitData {
			return Command{Kind: KindExit}
		}
		if r, c, ok := keyboard.ParseCell(cb); ok {
			return Command{Kind: KindMove, Row: r, Col: c}
		}
		return Command{Kind: KindBadMove, Arg: cb}
	}

	raw := strings.TrimSpace(text)
	if raw == "" {
		return Command{Kind: KindMenu}
	}
	if r, c, ok := keyboard.ParseCell(raw); ok {
		return Command{Kind: KindMove, Row: r, Col: c}
	}
	if looksLikeCell(raw) {
		return Command{Kind: KindBadMove, Arg: raw}
	}
	parts := strings.Fields(raw)
	switch strings.ToLower(parts[0]) {
	case "start", "menu", "help":
		return Command{Kind: KindMenu}
	case "new", "create":
		return Command{Kind: KindNew}
	case "join":
		if len(parts) > 1 {
			return Command{Kind: KindJoin, Arg: parts[1]}
		}
		return Command{Kind: KindJoin}
	case "exit", "leave", keyboard.ExitData:
		return Command{Kind: KindExit}
	case "status", "board":
		return Command{Kind: KindStatus}
	case "move":
		if r, c, ok := keyboard.ParseCell(strings.Join(parts[1:], "")); ok {
			return Command{Kind: KindMove, Row: r, Col: c}
		}
		return Command{Kind: KindBadMove, Arg: raw}
	}
	return Command{Kind: KindText, Arg: raw}
}

func looksLikeCell(s string) bool {
	s = strings.Join(strings.Fields(s), "")
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
