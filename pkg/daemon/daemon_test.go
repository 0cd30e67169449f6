package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/formcoach/pkg/camera"
	"github.com/charlie0129/formcoach/pkg/config"
	"github.com/charlie0129/formcoach/pkg/estimator"
	"github.com/charlie0129/formcoach/pkg/events"
	"github.com/charlie0129/formcoach/pkg/geometry"
	"github.com/charlie0129/formcoach/pkg/pose"
	"github.com/charlie0129/formcoach/pkg/posture"
	"github.com/charlie0129/formcoach/pkg/stream"
	"github.com/charlie0129/formcoach/pkg/utils/ptr"
	"github.com/charlie0129/formcoach/pkg/version"
)

type fakeCamera struct {
	frames int
	closes atomic.Int32
}

func (c *fakeCamera) Read(ctx context.Context) (*image.RGBA, error) {
	if c.frames == 0 {
		return nil, errors.New("no more frames")
	}
	c.frames--
	return image.NewRGBA(image.Rect(0, 0, 32, 24)), nil
}

func (c *fakeCamera) Close() error {
	c.closes.Add(1)
	return nil
}

func elbowAt(deg float64) *pose.LandmarkSet {
	lm := pose.NewLandmarkSet()
	elbow := geometry.Point2D{X: 0.5, Y: 0.5}
	rad := (deg - 90) * math.Pi / 180
	lm.Set(pose.LeftShoulder, geometry.Point2D{X: 0.5, Y: 0.3})
	lm.Set(pose.LeftElbow, elbow)
	lm.Set(pose.LeftWrist, geometry.Point2D{X: elbow.X + 0.2*math.Cos(rad), Y: elbow.Y + 0.2*math.Sin(rad)})
	return lm
}

func newTestDaemon(t *testing.T, cam *fakeCamera, frames ...*pose.LandmarkSet) (*Daemon, *config.File) {
	t.Helper()
	conf := config.NewFileFromConfig(&config.RawFileConfig{
		CameraBackend: ptr.To("fake"),
	}, filepath.Join(t.TempDir(), "formcoach.json"))

	d := New(conf, func(cfg camera.Config) (camera.Source, error) {
		assert.Equal(t, camera.Backend("fake"), cfg.Backend)
		return cam, nil
	}, func(context.Context, config.Config) (pose.Estimator, error) {
		return estimator.NewStatic(false, frames...), nil
	})
	return d, conf
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestSessionRoutes(t *testing.T) {
	d, _ := newTestDaemon(t, &fakeCamera{})
	h := d.Handler()

	rec := do(t, h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	start := decode[SessionResponse](t, rec)
	assert.NotEmpty(t, start.ID)
	assert.Equal(t, posture.ModeSelected, start.Mode)
	assert.Equal(t, posture.ArmCurl, start.Selected)
	assert.Nil(t, start.NextReset)

	d.currentSession().Process(elbowAt(170))
	d.currentSession().Process(elbowAt(20))
	got := decode[SessionResponse](t, do(t, h, http.MethodGet, "/session"))
	assert.Equal(t, 1, got.Counter)

	rec = do(t, h, http.MethodPost, "/session/reset")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 0, decode[SessionResponse](t, rec).Counter)
}

func TestSelectExercise(t *testing.T) {
	d, conf := newTestDaemon(t, &fakeCamera{})
	h := d.Handler()
	sub := d.hub.Subscribe()

	rec := do(t, h, http.MethodGet, "/exercise/pushup?persist=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ExerciseResponse{Exercise: posture.Pushup, Title: "Pushup", VideoFeed: "/video_feed"}, decode[ExerciseResponse](t, rec))
	assert.Equal(t, posture.Pushup, d.currentSession().Selected())
	assert.Equal(t, "pushup", conf.DefaultExercise())

	ev := <-sub
	assert.Equal(t, events.ExerciseSelected, ev.Name)

	rec = do(t, h, http.MethodGet, "/exercise/yoga")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, posture.Pushup, d.currentSession().Selected())

	var names []string
	require.NoError(t, json.Unmarshal(do(t, h, http.MethodGet, "/exercises").Body.Bytes(), &names))
	assert.Equal(t, []string{"arm_curl", "pushup", "weightlifting"}, names)
}

func TestVideoFeed(t *testing.T) {
	cam := &fakeCamera{frames: 3}
	d, _ := newTestDaemon(t, cam, elbowAt(170), elbowAt(20), nil)
	h := d.Handler()
	sub := d.hub.Subscribe()

	rec := do(t, h, http.MethodGet, "/video_feed")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, stream.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, 3, bytes.Count(rec.Body.Bytes(), []byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")))
	assert.EqualValues(t, 1, cam.closes.Load())

	var names []string
	for len(sub) > 0 {
		names = append(names, (<-sub).Name)
	}
	assert.Equal(t, []string{events.RepCompleted, events.StreamEnded}, names)

	stats := decode[StatsResponse](t, do(t, h, http.MethodGet, "/stats"))
	assert.False(t, stats.Active)
	require.NotNil(t, stats.Stream)
	assert.Equal(t, 3, stats.Stream.Frames)
	assert.Equal(t, 2, stats.Stream.FramesWithPerson)
	assert.Equal(t, 1, stats.Stream.Reps)
	assert.Equal(t, "camera", stats.Stream.EndReason)

	assert.Equal(t, 1, d.currentSession().Counter())
}

func TestVideoFeedBusy(t *testing.T) {
	d, _ := newTestDaemon(t, &fakeCamera{frames: 1})
	d.streamMu.Lock()
	defer d.streamMu.Unlock()

	rec := do(t, d.Handler(), http.MethodGet, "/video_feed")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrStreamBusy.Error())
}

func TestVideoFeedOpenErrors(t *testing.T) {
	conf := config.NewFileFromConfig(nil, "")
	d := New(conf, func(camera.Config) (camera.Source, error) {
		return nil, errors.New("no camera")
	}, nil)
	rec := do(t, d.Handler(), http.MethodGet, "/video_feed")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "no camera")

	cam := &fakeCamera{frames: 1}
	d = New(conf, func(camera.Config) (camera.Source, error) {
		return cam, nil
	}, func(context.Context, config.Config) (pose.Estimator, error) {
		return nil, errors.New("no model")
	})
	rec = do(t, d.Handler(), http.MethodGet, "/video_feed")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.EqualValues(t, 1, cam.closes.Load())

	// The lock is released on every path.
	assert.True(t, d.streamMu.TryLock())
	d.streamMu.Unlock()
}

func TestConfigAndVersion(t *testing.T) {
	d, _ := newTestDaemon(t, &fakeCamera{})
	h := d.Handler()

	raw := decode[config.RawFileConfig](t, do(t, h, http.MethodGet, "/config"))
	require.NotNil(t, raw.CameraBackend)
	assert.Equal(t, "fake", *raw.CameraBackend)
	assert.Equal(t, 80, *raw.JPEGQuality)

	assert.Equal(t, version.Version, decode[string](t, do(t, h, http.MethodGet, "/version")))
}

func TestApplyConfig(t *testing.T) {
	d, conf := newTestDaemon(t, &fakeCamera{})
	before := d.currentSession()

	conf.SetResetSchedule("@every 1h")
	conf.SetDetectorMode("legacy")
	require.NoError(t, d.applyConfig())

	after := d.currentSession()
	assert.NotSame(t, before, after)
	assert.Equal(t, posture.ModeLegacy, after.Mode())

	got := decode[SessionResponse](t, do(t, d.Handler(), http.MethodGet, "/session"))
	require.NotNil(t, got.NextReset)
	assert.True(t, got.NextReset.After(time.Now()))

	conf.SetDetectorMode("bogus")
	assert.Error(t, d.applyConfig())
}

// gatedCamera hands out one frame per send on gate and fails once gate is
// closed.
type gatedCamera struct {
	gate chan struct{}
}

func (c *gatedCamera) Read(ctx context.Context) (*image.RGBA, error) {
	select {
	case _, ok := <-c.gate:
		if !ok {
			return nil, errors.New("camera unplugged")
		}
		return image.NewRGBA(image.Rect(0, 0, 32, 24)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *gatedCamera) Close() error { return nil }

func nextEvent(t *testing.T, sub chan events.Event, name string) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", name)
		}
	}
}

func TestVideoFeedFollowsReloadedSession(t *testing.T) {
	cam := &gatedCamera{gate: make(chan struct{})}
	conf := config.NewFileFromConfig(&config.RawFileConfig{}, filepath.Join(t.TempDir(), "formcoach.json"))
	d := New(conf, func(camera.Config) (camera.Source, error) {
		return cam, nil
	}, func(context.Context, config.Config) (pose.Estimator, error) {
		return estimator.NewStatic(false, elbowAt(170), elbowAt(20), elbowAt(170), elbowAt(20)), nil
	})
	h := d.Handler()
	sub := d.hub.Subscribe()

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/video_feed", nil))
	}()

	cam.gate <- struct{}{}
	cam.gate <- struct{}{}
	rep, err := events.DecodeAs[events.RepCompletedEvent](nextEvent(t, sub, events.RepCompleted))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Counter)

	conf.SetDetectorMode("independent")
	require.NoError(t, d.applyConfig())
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/session/reset").Code)

	cam.gate <- struct{}{}
	cam.gate <- struct{}{}
	rep, err = events.DecodeAs[events.RepCompletedEvent](nextEvent(t, sub, events.RepCompleted))
	require.NoError(t, err)
	assert.Equal(t, string(posture.ArmCurl), rep.Exercise)
	assert.Equal(t, 1, rep.Counter)

	got := decode[SessionResponse](t, do(t, h, http.MethodGet, "/session"))
	assert.Equal(t, posture.ModeIndependent, got.Mode)
	assert.Equal(t, 1, got.Counter)

	close(cam.gate)
	<-done

	stats := decode[StatsResponse](t, do(t, h, http.MethodGet, "/stats"))
	require.NotNil(t, stats.Stream)
	// One curl before the reload, then curl, pushup and weightlifting.
	assert.Equal(t, 4, stats.Stream.Reps)
	assert.Equal(t, 1, d.currentSession().Counter())
}

func TestEventsSSE(t *testing.T) {
	d, _ := newTestDaemon(t, &fakeCamera{})
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return d.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	d.resetSession("manual")

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "event:"+events.SessionReset, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data:"))
	assert.Contains(t, lines[1], `"reason":"manual"`)
}
