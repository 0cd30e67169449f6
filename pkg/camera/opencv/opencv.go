// Package opencv provides a camera.Source backed by an OpenCV VideoCapture.
// Importing it registers the "opencv" backend.
package opencv

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/charlie0129/formcoach/pkg/camera"
)

func init() {
	camera.Register(camera.BackendOpenCV, func(cfg camera.Config) (camera.Source, error) {
		return Open(cfg)
	})
}

// Source reads frames from a webcam index or a video URL.
type Source struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// Open opens cfg.Device. A numeric device is treated as a camera index.
func Open(cfg camera.Config) (*Source, error) {
	var device interface{} = cfg.Device
	if cfg.Device == "" {
		device = 0
	} else if idx, err := strconv.Atoi(cfg.Device); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture %v: %w", device, err)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	logrus.WithField("device", device).Info("opened opencv capture")

	return &Source{vc: vc, mat: gocv.NewMat()}, nil
}

func (s *Source) Read(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, camera.ErrClosed
	}

	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("failed to read frame from video capture")
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return camera.ToRGBA(img), nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.mat.Close()
	return s.vc.Close()
}
