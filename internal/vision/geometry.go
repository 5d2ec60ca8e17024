package vision

import (
	"errors"
	"fmt"

	"github.com/park285/Connect4-Screen-bot/internal/screen"
)

const (
	Columns = 7
	Rows    = 6
	Cells   = Columns * Rows
)

var (
	ErrInvalidAnchors = errors.New("bottom-right anchor must be strictly below and right of top-left")
	ErrZeroPitch      = errors.New("calibration pitch is zero")
)

// Calibration maps logical cells to screen pixels. Created once per run and
// read-only afterwards.
type Calibration struct {
	TopLeft     screen.Point
	BottomRight screen.Point
	Pitch       screen.Point
	EmptyColor  screen.RGB
	// Tolerance is the per-channel slack when comparing against EmptyColor.
	Tolerance uint8
}

// NewCalibration derives the pitch from the two anchors. Pitch is floored so
// clicks land inside the painted cells.
func NewCalibration(topLeft, bottomRight screen.Point) (*Calibration, error) {
	if bottomRight.X <= topLeft.X || bottomRight.Y <= topLeft.Y {
		return nil, fmt.Errorf("%w: top_left=%s bottom_right=%s", ErrInvalidAnchors, topLeft, bottomRight)
	}
	pitch := screen.Point{
		X: (bottomRight.X - topLeft.X) / (Columns - 1),
		Y: (bottomRight.Y - topLeft.Y) / (Rows - 1),
	}
	if pitch.X == 0 || pitch.Y == 0 {
		return nil, fmt.Errorf("%w: pitch=%s", ErrZeroPitch, pitch)
	}
	return &Calibration{TopLeft: topLeft, BottomRight: bottomRight, Pitch: pitch}, nil
}

// CellPosition returns the sampling and click point of a cell. Row 0 is the
// top row on screen.
func (c *Calibration) CellPosition(col, row int) screen.Point {
	return screen.Point{
		X: c.TopLeft.X + col*c.Pitch.X,
		Y: c.TopLeft.Y + row*c.Pitch.Y,
	}
}

// ParkPosition is one pitch left of the top-left cell, off the board.
func (c *Calibration) ParkPosition() screen.Point {
	return screen.Point{X: c.TopLeft.X - c.Pitch.X, Y: c.TopLeft.Y}
}

func (c *Calibration) IsEmptyColor(clr screen.RGB) bool {
	return clr.Near(c.EmptyColor, c.Tolerance)
}
