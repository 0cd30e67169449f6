package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point2D is a landmark position normalized to [0,1] relative to the frame.
type Point2D struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Vec returns p as a gonum vector.
func (p Point2D) Vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// Scale maps a normalized point to pixel coordinates of a w*h frame.
func (p Point2D) Scale(w, h int) (int, int) {
	return int(p.X * float64(w)), int(p.Y * float64(h))
}

// Angle returns the unsigned angle at vertex b between the rays b->a and b->c,
// in degrees. The result is always within [0,180] for finite input.
//
// No validation is done: non-finite coordinates yield NaN.
func Angle(a, b, c Point2D) float64 {
	ba := r2.Sub(a.Vec(), b.Vec())
	bc := r2.Sub(c.Vec(), b.Vec())

	radians := math.Atan2(bc.Y, bc.X) - math.Atan2(ba.Y, ba.X)
	angle := math.Abs(radians * 180.0 / math.Pi)

	if angle > 180.0 {
		angle = 360.0 - angle
	}

	return angle
}
