package client

import (
	"bufio"
	"context"
	"errors"
	"image"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/formcoach/pkg/camera"
	"github.com/charlie0129/formcoach/pkg/config"
	"github.com/charlie0129/formcoach/pkg/daemon"
	"github.com/charlie0129/formcoach/pkg/estimator"
	"github.com/charlie0129/formcoach/pkg/events"
	"github.com/charlie0129/formcoach/pkg/pose"
	"github.com/charlie0129/formcoach/pkg/posture"
	"github.com/charlie0129/formcoach/pkg/version"
)

type blockingCamera struct{}

func (blockingCamera) Read(ctx context.Context) (*image.RGBA, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingCamera) Close() error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	conf := config.NewFileFromConfig(nil, filepath.Join(t.TempDir(), "formcoach.json"))
	d := daemon.New(conf, func(camera.Config) (camera.Source, error) {
		return blockingCamera{}, nil
	}, func(context.Context, config.Config) (pose.Estimator, error) {
		return estimator.NewStatic(false), nil
	})
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL)
}

func TestClientAPIs(t *testing.T) {
	_, c := newTestServer(t)

	sess, err := c.Reset()
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	ex, err := c.Select("push-up", false)
	require.NoError(t, err)
	assert.Equal(t, posture.Pushup, ex.Exercise)

	sess, err = c.GetSession()
	require.NoError(t, err)
	assert.Equal(t, posture.Pushup, sess.Selected)

	_, err = c.Select("yoga", false)
	assert.ErrorIs(t, err, ErrNotFound)

	names, err := c.GetExercises()
	require.NoError(t, err)
	assert.Len(t, names, 3)

	conf, err := c.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "opencv", *conf.CameraBackend)

	v, err := c.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, version.Version, v)

	stats, err := c.GetStats()
	require.NoError(t, err)
	assert.False(t, stats.Active)
	assert.Nil(t, stats.Stream)
}

func TestClientConflict(t *testing.T) {
	srv, c := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/video_feed", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		stats, err := c.GetStats()
		return err == nil && stats.Active
	}, 2*time.Second, 10*time.Millisecond)

	_, err = c.Get("/video_feed")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestClientDaemonNotRunning(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = NewClient(addr).GetVersion()
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestSubscribeEvents(t *testing.T) {
	_, c := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := c.SubscribeEvents(ctx)

	// Publish until the subscription is live.
	var ev events.Event
	require.Eventually(t, func() bool {
		if _, err := c.Reset(); err != nil {
			return false
		}
		select {
		case ev = <-ch:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, events.SessionReset, ev.Name)
	payload, err := events.DecodeAs[events.SessionResetEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, "manual", payload.Reason)

	cancel()
	for range ch {
	}
}

func TestReadSSE(t *testing.T) {
	in := ": keepalive\n\nevent: a\ndata: {\"x\":1}\n\nevent:b\ndata:line1\ndata:line2\n\n"
	ch := make(chan events.Event, 4)
	require.NoError(t, readSSE(context.Background(), bufio.NewScanner(strings.NewReader(in)), ch))
	close(ch)

	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.JSONEq(t, `{"x":1}`, string(got[0].Data))
	assert.Equal(t, "b", got[1].Name)
	assert.Equal(t, "line1\nline2", string(got[1].Data))
}

func TestStatusError(t *testing.T) {
	assert.NoError(t, statusError(http.StatusCreated, ""))
	assert.True(t, errors.Is(statusError(http.StatusNotFound, "x"), ErrNotFound))
	assert.ErrorContains(t, statusError(http.StatusInternalServerError, "boom"), "got 500: boom")
}
