// Package gstreamer provides a camera.Source that pulls RGBA frames from a
// GStreamer appsink. Importing it registers the "gstreamer" backend.
package gstreamer

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/charlie0129/formcoach/pkg/camera"
)

func init() {
	camera.Register(camera.BackendGStreamer, func(cfg camera.Config) (camera.Source, error) {
		return Open(cfg)
	})
}

// stopPipeline moves a pipeline to NULL, releasing the device.
var stopPipeline = func(p *gst.Pipeline) error {
	return p.SetState(gst.StateNull)
}

// DefaultPipeline builds a v4l2 capture pipeline for device.
func DefaultPipeline(device string, width, height int) string {
	if device == "" {
		device = "/dev/video0"
	}
	caps := "video/x-raw,format=RGBA"
	if width > 0 && height > 0 {
		caps = fmt.Sprintf("%s,width=%d,height=%d", caps, width, height)
	}
	return fmt.Sprintf(
		"v4l2src device=%s ! videoconvert ! videoscale ! %s ! appsink name=sink sync=false max-buffers=1 drop=true",
		device, caps,
	)
}

// Source reads frames from a running pipeline.
type Source struct {
	pipeline *gst.Pipeline
	sink     *app.Sink

	mu     sync.Mutex
	closed bool
}

// Open parses and starts the pipeline. cfg.Pipeline takes precedence over the
// default v4l2 pipeline.
func Open(cfg camera.Config) (*Source, error) {
	gst.Init(nil)

	desc := cfg.Pipeline
	if desc == "" {
		desc = DefaultPipeline(cfg.Device, cfg.Width, cfg.Height)
	}

	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	started := false
	defer func() {
		if !started {
			_ = stopPipeline(pipeline)
		}
	}()

	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return nil, fmt.Errorf("pipeline has no appsink named sink: %w", err)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		return nil, fmt.Errorf("element sink is not an appsink")
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}
	started = true
	logrus.WithField("pipeline", desc).Info("started gstreamer pipeline")

	return &Source{pipeline: pipeline, sink: sink}, nil
}

func (s *Source) Read(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, camera.ErrClosed
	}

	sample := s.sink.PullSample()
	if sample == nil {
		if s.sink.IsEOS() {
			return nil, io.EOF
		}
		return nil, camera.ErrClosed
	}

	width, height, err := sampleSize(sample)
	if err != nil {
		return nil, err
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, fmt.Errorf("sample has no buffer")
	}
	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()
	data := mapInfo.Bytes()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if len(data) < len(img.Pix) {
		return nil, fmt.Errorf("short buffer: got %d bytes, want %d", len(data), len(img.Pix))
	}
	copy(img.Pix, data)
	return img, nil
}

func sampleSize(sample *gst.Sample) (int, int, error) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, fmt.Errorf("sample has no caps")
	}
	st := caps.GetStructureAt(0)
	w, err := st.GetValue("width")
	if err != nil {
		return 0, 0, fmt.Errorf("caps have no width: %w", err)
	}
	h, err := st.GetValue("height")
	if err != nil {
		return 0, 0, fmt.Errorf("caps have no height: %w", err)
	}
	width, ok1 := w.(int)
	height, ok2 := h.(int)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("unexpected caps size types %T, %T", w, h)
	}
	return width, height, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return stopPipeline(s.pipeline)
}
