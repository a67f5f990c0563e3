package fanout

import (
	"context"

	"github.com/park285/Cheese-TicTacToe-bot/internal/boardimg"
)

// PNGSnapshots adapts boardimg.Renderer to Snapshotter, captioning the picture with the view header.
type PNGSnapshots struct {
	Renderer *boardimg.Renderer
}

func (s PNGSnapshots) Snapshot(ctx context.Context, view View) ([]byte, error) {
	return s.Renderer.RenderPNG(ctx, view.Board, view.Header)
}
