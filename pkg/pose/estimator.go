package pose

import (
	"context"
	"image"
)

// Estimator runs pose estimation on a single frame.
//
// A nil LandmarkSet with a nil error means no person was detected.
type Estimator interface {
	Estimate(ctx context.Context, img image.Image) (*LandmarkSet, error)
	Close() error
}

// RGB24 packs img into tightly packed 8-bit RGB triples, row by row. This is
// the pixel layout pose models expect.
func RGB24(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):rgba.PixOffset(b.Max.X, y)]
			for i := 0; i < len(row); i += 4 {
				out = append(out, row[i], row[i+1], row[i+2])
			}
		}
		return out
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return out
}
