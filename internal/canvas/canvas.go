package canvas

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidStroke = errors.New("invalid stroke")
var ErrStaleStroke = errors.New("stale stroke")

// Stroke is a single line segment drawn by the current drawer.
type Stroke struct {
	X0, Y0 float64
	X1, Y1 float64
	Color  string
	Width  float64
	Seq    uint64
}

type Bounds struct {
	Width    float64
	Height   float64
	MaxWidth float64
}

var DefaultBounds = Bounds{Width: 800, Height: 600, MaxWidth: 50}

func (s Stroke) Validate(b Bounds) error {
	for _, v := range []float64{s.X0, s.Y0, s.X1, s.Y1, s.Width} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidStroke)
		}
	}
	if !inRange(s.X0, b.Width) || !inRange(s.X1, b.Width) ||
		!inRange(s.Y0, b.Height) || !inRange(s.Y1, b.Height) {
		return fmt.Errorf("%w: point outside %vx%v", ErrInvalidStroke, b.Width, b.Height)
	}
	if s.Width < 1 || s.Width > b.MaxWidth {
		return fmt.Errorf("%w: width %v", ErrInvalidStroke, s.Width)
	}
	if !validColor(s.Color) {
		return fmt.Errorf("%w: color %q", ErrInvalidStroke, s.Color)
	}
	if s.Seq == 0 {
		return fmt.Errorf("%w: seq must start at 1", ErrInvalidStroke)
	}
	return nil
}

func inRange(v, max float64) bool { return v >= 0 && v <= max }

// validColor accepts "#rrggbb" only.
func validColor(c string) bool {
	if len(c) != 7 || c[0] != '#' {
		return false
	}
	for i := 1; i < len(c); i++ {
		switch ch := c[i]; {
		case ch >= '0' && ch <= '9', ch >= 'a' && ch <= 'f', ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}

// Canvas accumulates the strokes of the current epoch. A clear starts a new
// epoch and resets the sequence window.
type Canvas struct {
	epoch   uint64
	lastSeq uint64
	strokes []Stroke
}

func (c *Canvas) Epoch() uint64 { return c.epoch }

func (c *Canvas) LastSeq() uint64 { return c.lastSeq }

func (c *Canvas) Len() int { return len(c.strokes) }

// Append rejects duplicated or out-of-order strokes.
func (c *Canvas) Append(s Stroke) error {
	if s.Seq <= c.lastSeq {
		return fmt.Errorf("%w: seq %d <= %d", ErrStaleStroke, s.Seq, c.lastSeq)
	}
	c.lastSeq = s.Seq
	c.strokes = append(c.strokes, s)
	return nil
}

func (c *Canvas) Clear() uint64 {
	c.epoch++
	c.lastSeq = 0
	c.strokes = nil
	return c.epoch
}

// Strokes returns a copy, safe to hand to other goroutines.
func (c *Canvas) Strokes() []Stroke {
	out := make([]Stroke, len(c.strokes))
	copy(out, c.strokes)
	return out
}
