// Package daemon serves the exercise session and the annotated video feed
// over HTTP.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/formcoach/pkg/camera"
	"github.com/charlie0129/formcoach/pkg/config"
	"github.com/charlie0129/formcoach/pkg/estimator"
	"github.com/charlie0129/formcoach/pkg/events"
	"github.com/charlie0129/formcoach/pkg/pose"
	"github.com/charlie0129/formcoach/pkg/posture"
	"github.com/charlie0129/formcoach/pkg/stream"
)

// CameraOpener opens the camera for one stream.
type CameraOpener func(cfg camera.Config) (camera.Source, error)

// EstimatorOpener starts a pose estimator for one stream. It is stopped when
// ctx is done.
type EstimatorOpener func(ctx context.Context, conf config.Config) (pose.Estimator, error)

// Daemon holds the single exercise session and at most one active stream.
type Daemon struct {
	conf          config.Config
	openCamera    CameraOpener
	openEstimator EstimatorOpener
	hub           *events.EventHub
	scheduler     *Scheduler

	mu           sync.Mutex
	session      *posture.Session
	producer     *stream.Producer
	streamCancel context.CancelFunc
	lastStats    *stream.Stats

	// streamMu is held by the active video feed.
	streamMu sync.Mutex
}

// New builds a Daemon. Nil openers fall back to camera.Open and the
// configured estimator subprocess.
func New(conf config.Config, openCamera CameraOpener, openEstimator EstimatorOpener) *Daemon {
	if openCamera == nil {
		openCamera = camera.Open
	}
	if openEstimator == nil {
		openEstimator = startEstimator
	}

	d := &Daemon{
		conf:          conf,
		openCamera:    openCamera,
		openEstimator: openEstimator,
		hub:           events.NewEventHub(),
	}
	d.session = newSession(conf)
	d.scheduler = NewScheduler(d.scheduledReset, func(err error) {
		logrus.WithError(err).Error("scheduled reset failed")
	})
	return d
}

func newSession(conf config.Config) *posture.Session {
	mode, err := posture.ParseMode(conf.DetectorMode())
	if err != nil {
		logrus.WithError(err).Warn("falling back to selected detector mode")
		mode = posture.ModeSelected
	}
	ex, err := posture.ParseExercise(conf.DefaultExercise())
	if err != nil {
		logrus.WithError(err).Warn("falling back to arm curl")
		ex = posture.ArmCurl
	}
	return posture.NewSession(mode, ex)
}

func startEstimator(ctx context.Context, conf config.Config) (pose.Estimator, error) {
	return estimator.Start(ctx, estimator.Config{
		Command: conf.EstimatorCommand(),
		Timeout: time.Duration(conf.EstimatorTimeoutMs()) * time.Millisecond,
	})
}

func (d *Daemon) cameraConfig() camera.Config {
	return camera.Config{
		Backend:  camera.Backend(d.conf.CameraBackend()),
		Device:   d.conf.CameraDevice(),
		Pipeline: d.conf.CameraPipeline(),
		Dir:      d.conf.ImageDir(),
	}
}

func (d *Daemon) currentSession() *posture.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

func (d *Daemon) resetSession(reason string) posture.Snapshot {
	s := d.currentSession()
	s.Reset()
	d.hub.Publish(events.SessionReset, events.SessionResetEvent{
		SessionID: s.ID(),
		Reason:    reason,
		Ts:        time.Now().Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"session": s.ID(),
		"reason":  reason,
	}).Info("session reset")
	return s.Snapshot()
}

func (d *Daemon) scheduledReset() error {
	d.resetSession("schedule")
	return nil
}

// applyConfig brings the session and the reset schedule in line with the
// current config.
func (d *Daemon) applyConfig() error {
	mode, err := posture.ParseMode(d.conf.DetectorMode())
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.session.Mode() != mode {
		logrus.WithField("mode", mode).Info("detector mode changed, starting new session")
		selected := d.session.Selected()
		d.session = posture.NewSession(mode, selected)
	}
	d.mu.Unlock()

	return d.scheduler.Schedule(d.conf.ResetSchedule())
}

func (d *Daemon) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/", d.startSession)
	router.POST("/session/reset", d.postReset)
	router.GET("/session", d.getSession)
	router.GET("/exercise/:name", d.selectExercise)
	router.GET("/exercises", getExercises)
	router.GET("/video_feed", d.videoFeed)
	router.GET("/events", d.streamEvents)
	router.GET("/config", d.getConfig)
	router.GET("/version", getVersion)
	router.GET("/stats", d.getStats)

	return router
}

// Handler returns the HTTP handler of the daemon.
func (d *Daemon) Handler() http.Handler {
	return d.setupRoutes()
}

// Run loads the config, serves on addr (or the configured listen address)
// and blocks until SIGINT or SIGTERM.
func Run(configPath string, addr string) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to parse config during startup: %w", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	d := New(conf, nil, nil)
	if err := d.applyConfig(); err != nil {
		return err
	}
	d.scheduler.Start()
	defer d.scheduler.Stop()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := conf.Load(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			if err := d.applyConfig(); err != nil {
				logrus.Errorf("failed to apply config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	if addr == "" {
		addr = conf.ListenAddr()
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	// SSE subscribers and the video feed would otherwise hold Shutdown open.
	d.hub.Close()
	d.stopStream()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("exiting")
	return nil
}

// stopStream cancels the active feed, if any. The feed releases its camera
// on its own goroutine.
func (d *Daemon) stopStream() {
	d.mu.Lock()
	cancel := d.streamCancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
