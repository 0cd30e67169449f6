package overlay

import (
	"image"
	"image/color"

	"github.com/charlie0129/formcoach/pkg/pose"
)

// SkeletonRenderer draws a detected body onto a frame.
type SkeletonRenderer interface {
	Render(dst *image.RGBA, lm *pose.LandmarkSet)
}

// LineSkeleton joins pose.Connections with lines and marks each joint.
type LineSkeleton struct {
	LineColor  color.RGBA
	JointColor color.RGBA
	JointSize  int
	// MinVisibility hides landmarks the estimator is unsure about.
	MinVisibility float64
}

// NewLineSkeleton returns a renderer with the usual MediaPipe-like colours.
func NewLineSkeleton() *LineSkeleton {
	return &LineSkeleton{
		LineColor:     color.RGBA{R: 245, G: 66, B: 230, A: 255},
		JointColor:    color.RGBA{R: 245, G: 117, B: 66, A: 255},
		JointSize:     2,
		MinVisibility: 0.5,
	}
}

func (s *LineSkeleton) Render(dst *image.RGBA, lm *pose.LandmarkSet) {
	b := dst.Bounds()
	px := func(l pose.Landmark) (image.Point, bool) {
		p, ok := lm.Get(l)
		if !ok || lm.Visibility(l) < s.MinVisibility {
			return image.Point{}, false
		}
		x, y := p.Scale(b.Dx(), b.Dy())
		return image.Pt(b.Min.X+x, b.Min.Y+y), true
	}

	for _, c := range pose.Connections {
		from, ok1 := px(c[0])
		to, ok2 := px(c[1])
		if ok1 && ok2 {
			drawLine(dst, from, to, s.LineColor)
		}
	}

	for _, l := range lm.Landmarks() {
		p, ok := px(l)
		if !ok {
			continue
		}
		r := image.Rect(p.X-s.JointSize, p.Y-s.JointSize, p.X+s.JointSize+1, p.Y+s.JointSize+1)
		fillRect(dst, r.Intersect(b), s.JointColor)
	}
}

// drawLine uses Bresenham's algorithm. Points outside dst are clipped by SetRGBA.
func drawLine(dst *image.RGBA, p0, p1 image.Point, c color.RGBA) {
	dx := abs(p1.X - p0.X)
	dy := -abs(p1.Y - p0.Y)
	sx, sy := 1, 1
	if p0.X > p1.X {
		sx = -1
	}
	if p0.Y > p1.Y {
		sy = -1
	}
	e := dx + dy

	x, y := p0.X, p0.Y
	for {
		dst.SetRGBA(x, y, c)
		if x == p1.X && y == p1.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetRGBA(x, y, c)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
