package screen

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/kbinani/screenshot"
)

// LocalSampler reads pixels straight from the local display. It has no
// pointer control; pair it with an agent via Combine.
type LocalSampler struct {
	capture func(image.Rectangle) (*image.RGBA, error)
}

var _ ColorSampler = (*LocalSampler)(nil)

func NewLocalSampler() *LocalSampler {
	return &LocalSampler{capture: screenshot.CaptureRect}
}

func (s *LocalSampler) SampleColor(ctx context.Context, p Point) (RGB, error) {
	if err := ctx.Err(); err != nil {
		return RGB{}, err
	}
	img, err := s.capture(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
	if err != nil {
		return RGB{}, fmt.Errorf("capture %s: %w", p, err)
	}
	b := img.Bounds()
	if b.Empty() {
		return RGB{}, fmt.Errorf("capture %s: empty image", p)
	}
	c := color.RGBAModel.Convert(img.At(b.Min.X, b.Min.Y)).(color.RGBA)
	return RGB{R: c.R, G: c.G, B: c.B}, nil
}

// DisplayBounds lists the active displays, for diagnostics.
func DisplayBounds() []image.Rectangle {
	n := screenshot.NumActiveDisplays()
	out := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, screenshot.GetDisplayBounds(i))
	}
	return out
}

type combined struct {
	ColorSampler
	Pointer
}

// Combine builds a Screen from separate sampling and pointer backends.
func Combine(s ColorSampler, p Pointer) Screen { return combined{ColorSampler: s, Pointer: p} }
