// Package render draws board snapshots to PNG for desync diagnostics.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/Connect4-Screen-bot/internal/vision"
)

const (
	CellSize    = 48
	discInset   = 4
	margin      = 16
	labelHeight = 20
	boardGap    = 32
	titleHeight = 18
)

var (
	backgroundColor = color.RGBA{R: 24, G: 26, B: 38, A: 255}
	boardColor      = color.RGBA{R: 30, G: 80, B: 200, A: 255}
	labelColor      = color.RGBA{R: 236, G: 239, B: 255, A: 255}
	diffLabelColor  = color.RGBA{R: 255, G: 64, B: 80, A: 255}
)

// Panel is one labelled board in a rendering.
type Panel struct {
	Label    string
	Snapshot vision.Snapshot
}

func boardSize() image.Point {
	return image.Point{X: vision.Columns * CellSize, Y: vision.Rows * CellSize}
}

// Size returns the image size for n panels.
func Size(n int) image.Point {
	b := boardSize()
	return image.Point{
		X: 2*margin + n*b.X + (n-1)*boardGap,
		Y: 2*margin + titleHeight + labelHeight + b.Y,
	}
}

// BoardOrigin is the top-left pixel of panel i's board.
func BoardOrigin(i int) image.Point {
	return image.Point{X: margin + i*(boardSize().X+boardGap), Y: margin + titleHeight + labelHeight}
}

// RenderPNG draws panels side by side. Cells that differ from the first panel
// are ringed in every later panel.
func RenderPNG(ctx context.Context, title string, panels ...Panel) ([]byte, error) {
	if len(panels) == 0 {
		return nil, fmt.Errorf("render: no panels")
	}
	size := Size(len(panels))
	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	drawText(img, title, image.Point{X: margin, Y: margin + 13}, labelColor)

	for i, p := range panels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		origin := BoardOrigin(i)
		var diff []vision.Cell
		if i > 0 {
			diff = panels[0].Snapshot.Diff(p.Snapshot)
		}
		clr := labelColor
		if len(diff) > 0 {
			clr = diffLabelColor
		}
		drawText(img, p.Label, image.Point{X: origin.X, Y: origin.Y - 6}, clr)
		if err := drawBoard(img, origin, p.Snapshot, diff); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBoard(dst draw.Image, origin image.Point, snap vision.Snapshot, diff []vision.Cell) error {
	b := boardSize()
	draw.Draw(dst, image.Rect(origin.X, origin.Y, origin.X+b.X, origin.Y+b.Y), image.NewUniform(boardColor), image.Point{}, draw.Src)

	discSize := CellSize - 2*discInset
	for c := 0; c < vision.Columns; c++ {
		for r := 0; r < vision.Rows; r++ {
			kind := discOccupied
			if snap.IsEmpty(c, r) {
				kind = discEmpty
			}
			icon, err := discImage(kind, discSize)
			if err != nil {
				return err
			}
			at := cellRect(origin, c, r, discSize)
			draw.Draw(dst, at, icon, image.Point{}, draw.Over)
		}
	}
	if len(diff) == 0 {
		return nil
	}
	ring, err := discImage(discDiff, discSize)
	if err != nil {
		return err
	}
	for _, cell := range diff {
		draw.Draw(dst, cellRect(origin, cell.Col, cell.Row, discSize), ring, image.Point{}, draw.Over)
	}
	return nil
}

func cellRect(origin image.Point, col, row, discSize int) image.Rectangle {
	x := origin.X + col*CellSize + discInset
	y := origin.Y + row*CellSize + discInset
	return image.Rect(x, y, x+discSize, y+discSize)
}

func drawText(dst draw.Image, text string, baseline image.Point, clr color.Color) {
	if strings.TrimSpace(text) == "" {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(clr),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(baseline.X, baseline.Y),
	}
	d.DrawString(text)
}

// Diagnostics writes desync renderings into Dir.
type Diagnostics struct {
	Dir    string
	logger *zap.Logger
	now    func() time.Time
}

func NewDiagnostics(dir string, logger *zap.Logger) *Diagnostics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Diagnostics{Dir: dir, logger: logger, now: time.Now}
}

func (d *Diagnostics) Desync(ctx context.Context, sessionID string, expected, observed vision.Snapshot) (string, error) {
	ts := d.now()
	title := fmt.Sprintf("desync %s %s", shortID(sessionID), ts.Format("2006-01-02 15:04:05"))
	data, err := RenderPNG(ctx, title,
		Panel{Label: "expected", Snapshot: expected},
		Panel{Label: "observed", Snapshot: observed},
	)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create diagnostics dir: %w", err)
	}
	name := fmt.Sprintf("desync-%s-%s.png", shortID(sessionID), ts.Format("20060102-150405.000"))
	path := filepath.Join(d.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write desync png: %w", err)
	}
	d.logger.Debug("desync_png_written", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "nosession"
	}
	return id
}
