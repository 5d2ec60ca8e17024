package screen

import (
	"context"
	"fmt"
)

// Point is a screen coordinate in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func (c RGB) String() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }

// Near reports whether every channel differs by at most tol.
func (c RGB) Near(o RGB, tol uint8) bool {
	return absDiff(c.R, o.R) <= tol && absDiff(c.G, o.G) <= tol && absDiff(c.B, o.B) <= tol
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

type ColorSampler interface {
	SampleColor(ctx context.Context, p Point) (RGB, error)
}

type Pointer interface {
	MovePointer(ctx context.Context, p Point) error
	Click(ctx context.Context) error
	// PointerPosition is used by calibration to read the operator's anchors.
	PointerPosition(ctx context.Context) (Point, error)
}

// Screen is the full capability set the bot needs from the host.
type Screen interface {
	ColorSampler
	Pointer
}
