package estimator

import (
	"context"
	"errors"
	"image"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/formcoach/pkg/geometry"
	"github.com/charlie0129/formcoach/pkg/pose"
)

// fakeSidecar answers every request with respond(req).
func fakeSidecar(t *testing.T, respond func(Request) *Response) (*conn, func()) {
	t.Helper()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	go func() {
		defer respW.Close()
		for {
			var req Request
			if err := readMessage(reqR, &req); err != nil {
				return
			}
			resp := respond(req)
			if resp == nil {
				// Simulate a hung model: keep reading but never answer.
				continue
			}
			if err := writeMessage(respW, resp); err != nil {
				return
			}
		}
	}()

	c := newConn(respR, reqW, 200*time.Millisecond)
	return c, func() {
		_ = reqW.Close()
		_ = respR.Close()
	}
}

func frame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 4, 2))
}

func TestConnEstimate(t *testing.T) {
	vis := 0.9
	var got Request
	c, stop := fakeSidecar(t, func(req Request) *Response {
		got = req
		return &Response{
			Seq: req.Seq,
			Landmarks: []WireLandmark{
				{Name: "LEFT_SHOULDER", X: 0.4, Y: 0.3, Visibility: &vis},
				{Name: "left_elbow", X: 0.5, Y: 0.5},
				{Name: "TAIL", X: 0, Y: 0},
			},
			Timing: map[string]float64{"total_ms": 12.5},
		}
	})
	defer stop()

	lm, err := c.estimate(context.Background(), frame())
	require.NoError(t, err)
	require.NotNil(t, lm)

	assert.Equal(t, uint64(1), got.Seq)
	assert.Equal(t, 4, got.Width)
	assert.Equal(t, 2, got.Height)
	assert.Equal(t, "rgb24", got.Format)
	assert.Len(t, got.FrameData, 4*2*3)

	assert.Equal(t, 2, lm.Len())
	p, ok := lm.Get(pose.LeftShoulder)
	require.True(t, ok)
	assert.Equal(t, geometry.Point2D{X: 0.4, Y: 0.3}, p)
	assert.Equal(t, 0.9, lm.Visibility(pose.LeftShoulder))
	assert.True(t, lm.Has(pose.LeftElbow))

	// Sequence numbers keep increasing.
	_, err = c.estimate(context.Background(), frame())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Seq)
}

func TestConnNoPerson(t *testing.T) {
	c, stop := fakeSidecar(t, func(req Request) *Response {
		return &Response{Seq: req.Seq}
	})
	defer stop()

	lm, err := c.estimate(context.Background(), frame())
	assert.NoError(t, err)
	assert.Nil(t, lm)
}

func TestConnModelError(t *testing.T) {
	c, stop := fakeSidecar(t, func(req Request) *Response {
		return &Response{Seq: req.Seq, Error: "model not loaded"}
	})
	defer stop()

	_, err := c.estimate(context.Background(), frame())
	assert.ErrorContains(t, err, "model not loaded")

	// A model error does not break the connection.
	_, err = c.estimate(context.Background(), frame())
	assert.ErrorContains(t, err, "model not loaded")
}

func TestConnTimeout(t *testing.T) {
	c, stop := fakeSidecar(t, func(Request) *Response { return nil })
	defer stop()

	_, err := c.estimate(context.Background(), frame())
	assert.ErrorIs(t, err, ErrEstimatorTimeout)

	// Still waiting on the first answer.
	_, err = c.estimate(context.Background(), frame())
	assert.ErrorIs(t, err, ErrEstimatorTimeout)
	assert.EqualValues(t, 1, c.seq)
}

func TestConnRecoversAfterSlowFrame(t *testing.T) {
	c, stop := fakeSidecar(t, func(req Request) *Response {
		if req.Seq == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		return &Response{Seq: req.Seq, Landmarks: []WireLandmark{{Name: "nose", X: 0.5, Y: 0.5}}}
	})
	defer stop()

	_, err := c.estimate(context.Background(), frame())
	require.ErrorIs(t, err, ErrEstimatorTimeout)

	for i := 0; i < 3; i++ {
		lm, err := c.estimate(context.Background(), frame())
		require.NoError(t, err, "frame %d", i+2)
		assert.True(t, lm.Has(pose.Nose))
	}
	assert.EqualValues(t, 4, c.seq)
}

func TestConnSeqMismatch(t *testing.T) {
	c, stop := fakeSidecar(t, func(req Request) *Response {
		return &Response{Seq: req.Seq + 10}
	})
	defer stop()

	_, err := c.estimate(context.Background(), frame())
	assert.ErrorContains(t, err, "expected 1")
}

func TestConnSidecarGone(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() {
		var req Request
		_ = readMessage(reqR, &req)
		_ = respW.Close()
	}()

	c := newConn(respR, reqW, time.Second)
	_, err := c.estimate(context.Background(), frame())
	assert.ErrorIs(t, err, ErrEstimatorClosed)
}

func TestConnContextCancelled(t *testing.T) {
	c, stop := fakeSidecar(t, func(Request) *Response { return nil })
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.estimate(ctx, frame())
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrEstimatorTimeout))
}

func TestReadMessageTooLarge(t *testing.T) {
	r, w := io.Pipe()
	go func() {
		_, _ = w.Write([]byte{0xff, 0xff, 0xff, 0xff})
		_ = w.Close()
	}()
	var resp Response
	assert.ErrorContains(t, readMessage(r, &resp), "exceeds limit")
}

// cat echoes the request back; decoded as a Response it carries the same seq
// and no landmarks.
func TestSubprocessEcho(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	s, err := Start(context.Background(), Config{Command: []string{"cat"}, Timeout: 2 * time.Second})
	require.NoError(t, err)

	lm, err := s.Estimate(context.Background(), frame())
	assert.NoError(t, err)
	assert.Nil(t, lm)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestStartRequiresCommand(t *testing.T) {
	_, err := Start(context.Background(), Config{})
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	a := pose.NewLandmarkSet()
	s := NewStatic(false, a, nil)

	lm, err := s.Estimate(context.Background(), frame())
	assert.NoError(t, err)
	assert.Same(t, a, lm)
	lm, _ = s.Estimate(context.Background(), frame())
	assert.Nil(t, lm)
	lm, _ = s.Estimate(context.Background(), frame())
	assert.Nil(t, lm)

	loop := NewStatic(true, a)
	for i := 0; i < 3; i++ {
		lm, _ = loop.Estimate(context.Background(), frame())
		assert.Same(t, a, lm)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loop.Estimate(ctx, frame())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, loop.Close())
}
