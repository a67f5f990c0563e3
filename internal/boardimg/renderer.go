package boardimg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	cellSize    = 120
	gridWidth   = 6
	margin      = 24
	captionH    = 28
	markPadding = 18
)

var (
	backgroundColor = color.RGBA{250, 248, 240, 255}
	gridColor       = color.RGBA{60, 64, 80, 255}
	captionColor    = color.RGBA{40, 44, 60, 255}
	coordColor      = color.RGBA{150, 154, 170, 255}
)

// SVG sources for the marks, drawn in a 100x100 viewBox.
var markSVG = map[board.Symbol]string{
	board.X: `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">` +
		`<path d="M15 15 L85 85 M85 15 L15 85" stroke="#d6455d" stroke-width="14" stroke-linecap="round" fill="none"/></svg>`,
	board.O: `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">` +
		`<circle cx="50" cy="50" r="34" stroke="#2f7fd6" stroke-width="14" fill="none"/></svg>`,
}

type markKey struct {
	sym  board.Symbol
	size int
}

// Renderer draws PNG snapshots of a board. It is safe for concurrent use.
type Renderer struct {
	// Width of the output image; 0 keeps the native size.
	Width int

	mu    sync.RWMutex
	marks map[markKey]image.Image
}

func NewRenderer(width int) *Renderer {
	return &Renderer{Width: width, marks: make(map[markKey]image.Image)}
}

// RenderPNG draws b with an optional caption line above the grid.
func (r *Renderer) RenderPNG(ctx context.Context, b board.Board, caption string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	gridSize := cellSize * board.Size
	width := gridSize + margin*2
	height := gridSize + margin*2 + captionH
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, xdraw.Src)

	origin := image.Point{X: margin, Y: margin + captionH}
	drawCaption(img, caption)
	drawGrid(img, origin)
	for row := 0; row < board.Size; row++ {
		for col := 0; col < board.Size; col++ {
			x := origin.X + col*cellSize
			y := origin.Y + row*cellSize
			sym := b[row][col]
			if sym == board.Empty {
				drawLabel(img, fmt.Sprintf("%d%d", row, col), x+6, y+16, coordColor)
				continue
			}
			mark, err := r.mark(sym, cellSize-markPadding*2)
			if err != nil {
				return nil, err
			}
			dst := image.Rect(x+markPadding, y+markPadding, x+cellSize-markPadding, y+cellSize-markPadding)
			xdraw.Draw(img, dst, mark, image.Point{}, xdraw.Over)
		}
	}

	out := image.Image(img)
	if r.Width > 0 && r.Width != width {
		h := height * r.Width / width
		scaled := image.NewRGBA(image.Rect(0, 0, r.Width, h))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		out = scaled
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) mark(sym board.Symbol, size int) (image.Image, error) {
	key := markKey{sym: sym, size: size}
	r.mu.RLock()
	if img, ok := r.marks[key]; ok {
		r.mu.RUnlock()
		return img, nil
	}
	r.mu.RUnlock()

	src, ok := markSVG[sym]
	if !ok {
		return nil, fmt.Errorf("no mark for symbol %q", sym)
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse mark svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	r.mu.Lock()
	r.marks[key] = img
	r.mu.Unlock()
	return img, nil
}

func drawGrid(img *image.RGBA, origin image.Point) {
	line := image.NewUniform(gridColor)
	span := cellSize * board.Size
	for i := 1; i < board.Size; i++ {
		x := origin.X + i*cellSize - gridWidth/2
		xdraw.Draw(img, image.Rect(x, origin.Y, x+gridWidth, origin.Y+span), line, image.Point{}, xdraw.Src)
		y := origin.Y + i*cellSize - gridWidth/2
		xdraw.Draw(img, image.Rect(origin.X, y, origin.X+span, y+gridWidth), line, image.Point{}, xdraw.Src)
	}
}

func drawCaption(img *image.RGBA, caption string) {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return
	}
	drawLabel(img, caption, margin, margin+captionH/2, captionColor)
}

func drawLabel(img *image.RGBA, text string, x, y int, clr color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
