package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/formcoach/pkg/config"
	"github.com/charlie0129/formcoach/pkg/events"
	"github.com/charlie0129/formcoach/pkg/overlay"
	"github.com/charlie0129/formcoach/pkg/posture"
	"github.com/charlie0129/formcoach/pkg/stream"
	"github.com/charlie0129/formcoach/pkg/version"
)

// ErrStreamBusy is returned when a second viewer asks for the video feed.
// Sharing one camera and one session between viewers is not supported.
var ErrStreamBusy = errors.New("another video feed is active")

// SessionResponse is the body of the session routes.
type SessionResponse struct {
	posture.Snapshot
	NextReset *time.Time `json:"nextReset,omitempty"`
}

// ExerciseResponse is the body of GET /exercise/:name.
type ExerciseResponse struct {
	Exercise  posture.Exercise `json:"exercise"`
	Title     string           `json:"title"`
	VideoFeed string           `json:"videoFeed"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Active      bool          `json:"active"`
	Stream      *stream.Stats `json:"stream,omitempty"`
	Subscribers int           `json:"subscribers"`
}

func abortWith(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func (d *Daemon) sessionResponse(snap posture.Snapshot) SessionResponse {
	resp := SessionResponse{Snapshot: snap}
	if next, _ := d.scheduler.Status(); !next.IsZero() {
		resp.NextReset = &next
	}
	return resp
}

func (d *Daemon) startSession(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.sessionResponse(d.resetSession("start")))
}

func (d *Daemon) postReset(c *gin.Context) {
	c.IndentedJSON(http.StatusCreated, d.sessionResponse(d.resetSession("manual")))
}

func (d *Daemon) getSession(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.sessionResponse(d.currentSession().Snapshot()))
}

func (d *Daemon) selectExercise(c *gin.Context) {
	ex, err := posture.ParseExercise(c.Param("name"))
	if err != nil {
		abortWith(c, http.StatusNotFound, err)
		return
	}

	if err := d.currentSession().Select(ex); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	if c.Query("persist") == "true" {
		d.conf.SetDefaultExercise(string(ex))
		if err := d.conf.Save(); err != nil {
			logrus.Errorf("saveConfig failed: %v", err)
			abortWith(c, http.StatusInternalServerError, err)
			return
		}
	}

	d.hub.Publish(events.ExerciseSelected, events.ExerciseSelectedEvent{
		Exercise: string(ex),
		Ts:       time.Now().Unix(),
	})
	logrus.Infof("selected exercise %s", ex)

	c.IndentedJSON(http.StatusOK, ExerciseResponse{
		Exercise:  ex,
		Title:     ex.Title(),
		VideoFeed: "/video_feed",
	})
}

func getExercises(c *gin.Context) {
	names := make([]posture.Exercise, 0, posture.NumExercises)
	names = append(names, posture.Exercises[:]...)
	c.IndentedJSON(http.StatusOK, names)
}

func (d *Daemon) videoFeed(c *gin.Context) {
	if !d.streamMu.TryLock() {
		abortWith(c, http.StatusConflict, ErrStreamBusy)
		return
	}
	defer d.streamMu.Unlock()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	cam, err := d.openCamera(d.cameraConfig())
	if err != nil {
		abortWith(c, http.StatusInternalServerError, fmt.Errorf("failed to open camera: %w", err))
		return
	}
	est, err := d.openEstimator(ctx, d.conf)
	if err != nil {
		_ = cam.Close()
		abortWith(c, http.StatusInternalServerError, fmt.Errorf("failed to start pose estimator: %w", err))
		return
	}

	p := stream.NewProducer(cam, est, d.currentSession(), overlay.NewAnnotator(d.conf.TextScale()), stream.Options{
		JPEGQuality: d.conf.JPEGQuality(),
		OnRep: func(ev posture.RepEvent) {
			d.hub.Publish(events.RepCompleted, events.RepCompletedEvent{
				Exercise: string(ev.Exercise),
				Counter:  ev.Counter,
				Ts:       time.Now().Unix(),
			})
		},
		SessionSource: d.currentSession,
	})

	d.mu.Lock()
	d.producer = p
	d.streamCancel = cancel
	d.mu.Unlock()

	logrus.WithField("camera", d.conf.CameraBackend()).Info("video feed started")

	c.Header("Content-Type", stream.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	err = p.Pipe(ctx, c.Writer)
	stats := p.Stats()

	d.mu.Lock()
	d.producer = nil
	d.streamCancel = nil
	d.lastStats = &stats
	d.mu.Unlock()

	d.hub.Publish(events.StreamEnded, events.StreamEndedEvent{
		Reason: stats.EndReason,
		Frames: stats.Frames,
		Reps:   stats.Reps,
		Ts:     time.Now().Unix(),
	})

	entry := logrus.WithFields(logrus.Fields{
		"frames": stats.Frames,
		"reps":   stats.Reps,
		"reason": stats.EndReason,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		entry.WithError(err).Warn("video feed ended")
		return
	}
	entry.Info("video feed ended")
}

func (d *Daemon) streamEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (d *Daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (d *Daemon) getStats(c *gin.Context) {
	d.mu.Lock()
	resp := StatsResponse{Subscribers: d.hub.Subscribers()}
	if d.producer != nil {
		s := d.producer.Stats()
		resp.Active = true
		resp.Stream = &s
	} else if d.lastStats != nil {
		s := *d.lastStats
		resp.Stream = &s
	}
	d.mu.Unlock()

	c.IndentedJSON(http.StatusOK, resp)
}
