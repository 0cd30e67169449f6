package gstreamer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/charlie0129/formcoach/pkg/camera"
)

func countStops(t *testing.T) *int {
	t.Helper()
	gst.Init(nil)
	if gst.Find("videotestsrc") == nil || gst.Find("appsink") == nil {
		t.Skip("gstreamer base plugins not installed")
	}

	stops := 0
	orig := stopPipeline
	stopPipeline = func(p *gst.Pipeline) error {
		stops++
		return orig(p)
	}
	t.Cleanup(func() { stopPipeline = orig })
	return &stops
}

func TestDefaultPipeline(t *testing.T) {
	assert.Equal(t,
		"v4l2src device=/dev/video0 ! videoconvert ! videoscale ! video/x-raw,format=RGBA,width=640,height=480 ! appsink name=sink sync=false max-buffers=1 drop=true",
		DefaultPipeline("", 640, 480))
}

func TestOpenReleasesPipelineWithoutSink(t *testing.T) {
	stops := countStops(t)

	_, err := Open(camera.Config{Pipeline: "videotestsrc ! fakesink"})
	assert.ErrorContains(t, err, "no appsink named sink")
	assert.Equal(t, 1, *stops)
}

func TestOpenReadClose(t *testing.T) {
	stops := countStops(t)

	src, err := Open(camera.Config{
		Pipeline: "videotestsrc num-buffers=2 ! videoconvert ! video/x-raw,format=RGBA,width=32,height=24 ! appsink name=sink",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, *stops)

	img, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.Equal(t, 1, *stops)

	_, err = src.Read(context.Background())
	assert.ErrorIs(t, err, camera.ErrClosed)
}
