package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/park285/Connect4-Screen-bot/internal/vision"
)

func centre(panel, col, row int) image.Point {
	o := BoardOrigin(panel)
	return image.Point{X: o.X + col*CellSize + CellSize/2, Y: o.Y + row*CellSize + CellSize/2}
}

func brightness(img image.Image, p image.Point) uint32 {
	r, g, b, _ := img.At(p.X, p.Y).RGBA()
	return (r + g + b) / 3 >> 8
}

func TestRenderPNGDrawsDiscs(t *testing.T) {
	expected := vision.EmptySnapshot().WithOccupied(3, 5)
	observed := expected.WithOccupied(0, 5)

	data, err := RenderPNG(context.Background(), "test", Panel{Label: "expected", Snapshot: expected}, Panel{Label: "observed", Snapshot: observed})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, want := img.Bounds().Size(), Size(2); got != want {
		t.Fatalf("size = %v, want %v", got, want)
	}
	if b := brightness(img, centre(0, 3, 5)); b > 90 {
		t.Fatalf("occupied cell too bright: %d", b)
	}
	if b := brightness(img, centre(0, 0, 5)); b < 200 {
		t.Fatalf("empty cell too dark: %d", b)
	}
	if b := brightness(img, centre(1, 0, 5)); b > 90 {
		t.Fatalf("observed disc missing: %d", b)
	}

	// 차이 나는 칸은 빨간 링
	o := BoardOrigin(1)
	ring := image.Point{X: o.X + discInset + 3, Y: o.Y + 5*CellSize + CellSize/2}
	r, g, _, _ := img.At(ring.X, ring.Y).RGBA()
	if r>>8 < 200 || g>>8 > 120 {
		t.Fatalf("diff ring not drawn at %v: r=%d g=%d", ring, r>>8, g>>8)
	}
}

func TestRenderPNGNeedsPanels(t *testing.T) {
	if _, err := RenderPNG(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderPNGHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RenderPNG(ctx, "x", Panel{Snapshot: vision.EmptySnapshot()}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestDiagnosticsWritesFile(t *testing.T) {
	dir := t.TempDir()
	d := NewDiagnostics(dir+"/nested", nil)
	d.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	path, err := d.Desync(context.Background(), "0123456789abcdef", vision.EmptySnapshot(), vision.EmptySnapshot().WithOccupied(6, 5))
	if err != nil {
		t.Fatalf("Desync: %v", err)
	}
	if !strings.Contains(path, "desync-01234567-20260102-030405") {
		t.Fatalf("path = %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(b)); err != nil {
		t.Fatalf("not a png: %v", err)
	}
}
