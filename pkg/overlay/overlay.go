// Package overlay draws the rep counter, feedback messages and skeleton onto
// frames in place.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/charlie0129/formcoach/pkg/pose"
	"github.com/charlie0129/formcoach/pkg/posture"
)

var (
	// CounterColor is the color of the rep counter line.
	CounterColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	// FeedbackColor is the color of the per-exercise feedback lines.
	FeedbackColor = color.RGBA{G: 255, A: 255}
)

// Fixed text positions, as (x, baseline y) in pixels.
var (
	counterPos     = image.Pt(10, 30)
	feedbackOrigin = image.Pt(10, 60)
	feedbackStep   = 30
)

// Annotator overlays session output onto frames.
type Annotator struct {
	// Skeleton draws the landmarks. Nil disables skeleton drawing.
	Skeleton SkeletonRenderer
	// TextScale is an integer magnification of the 7x13 bitmap font.
	TextScale int
}

// NewAnnotator returns an Annotator with the default skeleton renderer.
func NewAnnotator(textScale int) *Annotator {
	if textScale < 1 {
		textScale = 1
	}
	return &Annotator{
		Skeleton:  NewLineSkeleton(),
		TextScale: textScale,
	}
}

// Annotate draws the skeleton for lm, the counter and every non-empty
// feedback line onto img. Feedback i is drawn at its own fixed row; an empty
// string leaves its row untouched.
func (a *Annotator) Annotate(img *image.RGBA, lm *pose.LandmarkSet, counter int, feedback [posture.NumExercises]string) {
	if a.Skeleton != nil && lm != nil {
		a.Skeleton.Render(img, lm)
	}

	// The counter is drawn one step larger than feedback.
	DrawText(img, fmt.Sprintf("Reps: %d", counter), counterPos, CounterColor, a.TextScale+1)

	for i, msg := range feedback {
		if msg == "" {
			continue
		}
		pos := feedbackOrigin.Add(image.Pt(0, i*feedbackStep))
		DrawText(img, msg, pos, FeedbackColor, a.TextScale)
	}
}

// DrawText renders s with its baseline starting at pos, magnified by scale.
func DrawText(dst *image.RGBA, s string, pos image.Point, c color.Color, scale int) {
	if s == "" {
		return
	}
	if scale < 1 {
		scale = 1
	}

	face := basicfont.Face7x13
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	w := font.MeasureString(face, s).Ceil()
	h := metrics.Height.Ceil()

	glyphs := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(s)

	top := pos.Y - ascent*scale
	r := image.Rect(pos.X, top, pos.X+w*scale, top+h*scale)
	xdraw.NearestNeighbor.Scale(dst, r, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}
