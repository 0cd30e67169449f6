// Package stream turns a camera into an annotated multipart JPEG stream.
//
// A Producer is a pull-based, single-consumer sequence of chunks. Each call to
// Next reads one frame, runs pose estimation and the posture session on it,
// annotates it and returns the encoded chunk. Nothing is buffered or replayed.
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/formcoach/pkg/camera"
	"github.com/charlie0129/formcoach/pkg/estimator"
	"github.com/charlie0129/formcoach/pkg/overlay"
	"github.com/charlie0129/formcoach/pkg/pose"
	"github.com/charlie0129/formcoach/pkg/posture"
)

const (
	// Boundary separates frames in the multipart body.
	Boundary = "frame"
	// ContentType is the media type of a stream response.
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

	DefaultJPEGQuality = 80
)

var chunkHeader = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")

// Chunk frames one JPEG payload for the multipart body.
func Chunk(payload []byte) []byte {
	buf := make([]byte, 0, len(chunkHeader)+len(payload)+2)
	buf = append(buf, chunkHeader...)
	buf = append(buf, payload...)
	return append(buf, '\r', '\n')
}

// Options tune a Producer.
type Options struct {
	// JPEGQuality is 1-100. Zero means DefaultJPEGQuality.
	JPEGQuality int
	// OnRep is called synchronously for every completed rep.
	OnRep func(posture.RepEvent)
	// SessionSource, when set, is asked for the session on every frame. The
	// session passed to NewProducer is used while it returns nil.
	SessionSource func() *posture.Session
}

// Stats describe one producer's lifetime.
type Stats struct {
	StartedAt        time.Time `json:"startedAt"`
	LastFrameAt      time.Time `json:"lastFrameAt,omitempty"`
	Frames           int       `json:"frames"`
	FramesWithPerson int       `json:"framesWithPerson"`
	Reps             int       `json:"reps"`
	Active           bool      `json:"active"`
	EndReason        string    `json:"endReason,omitempty"`
}

// Producer owns its camera and estimator and releases both in Close.
type Producer struct {
	cam       camera.Source
	est       pose.Estimator
	session   *posture.Session
	annotator *overlay.Annotator
	opts      Options

	// err is the terminal error. Once set every Next returns it.
	err error

	closeOnce sync.Once
	closeErr  error

	mu    sync.RWMutex
	stats Stats
}

// NewProducer builds a Producer. cam and est are released by Close.
func NewProducer(cam camera.Source, est pose.Estimator, session *posture.Session, annotator *overlay.Annotator, opts Options) *Producer {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if annotator == nil {
		annotator = overlay.NewAnnotator(1)
	}
	return &Producer{
		cam:       cam,
		est:       est,
		session:   session,
		annotator: annotator,
		opts:      opts,
		stats: Stats{
			StartedAt: time.Now(),
			Active:    true,
		},
	}
}

func (p *Producer) currentSession() *posture.Session {
	if p.opts.SessionSource != nil {
		if s := p.opts.SessionSource(); s != nil {
			return s
		}
	}
	return p.session
}

// Next produces the next chunk. It returns io.EOF once the camera fails and
// ctx.Err() when ctx is done. Both are terminal and release the camera.
func (p *Producer) Next(ctx context.Context) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	if err := ctx.Err(); err != nil {
		return nil, p.fail(err, "cancelled")
	}

	img, err := p.cam.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, p.fail(ctxErr, "cancelled")
		}
		logrus.WithError(err).Info("camera read failed, ending stream")
		return nil, p.fail(io.EOF, "camera")
	}

	lm, err := p.est.Estimate(ctx, img)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, p.fail(ctx.Err(), "cancelled")
	case errors.Is(err, estimator.ErrEstimatorClosed):
		return nil, p.fail(fmt.Errorf("pose estimation unavailable: %w", err), "estimator")
	default:
		// The frame is streamed as if nobody was in it.
		logrus.WithError(err).Warn("pose estimation failed for frame")
		lm = nil
	}

	var reps int
	if lm != nil {
		res := p.currentSession().Process(lm)
		p.annotator.Annotate(img, lm, res.Counter, res.Feedback)
		for _, ev := range res.Completed {
			logrus.WithFields(logrus.Fields{
				"exercise": ev.Exercise,
				"counter":  ev.Counter,
			}).Info("rep completed")
			if p.opts.OnRep != nil {
				p.opts.OnRep(ev)
			}
		}
		reps = len(res.Completed)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.opts.JPEGQuality}); err != nil {
		return nil, p.fail(fmt.Errorf("failed to encode frame: %w", err), "encode")
	}

	p.mu.Lock()
	p.stats.Frames++
	p.stats.LastFrameAt = time.Now()
	p.stats.Reps += reps
	if lm != nil {
		p.stats.FramesWithPerson++
	}
	p.mu.Unlock()

	return Chunk(buf.Bytes()), nil
}

func (p *Producer) fail(err error, reason string) error {
	p.err = err
	p.mu.Lock()
	p.stats.EndReason = reason
	p.mu.Unlock()
	_ = p.Close()
	return err
}

// Close releases the camera and the estimator. It is safe to call more than
// once; only the first call has an effect.
func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.stats.Active = false
		if p.stats.EndReason == "" {
			p.stats.EndReason = "closed"
		}
		p.mu.Unlock()

		p.closeErr = errors.Join(p.cam.Close(), p.est.Close())
		if p.err == nil {
			p.err = io.EOF
		}
		logrus.WithFields(p.logrusFields()).Debug("stream producer closed")
	})
	return p.closeErr
}

// Stats returns a copy of the producer's counters.
func (p *Producer) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

func (p *Producer) logrusFields() logrus.Fields {
	s := p.Stats()
	return logrus.Fields{
		"frames":           s.Frames,
		"framesWithPerson": s.FramesWithPerson,
		"reps":             s.Reps,
		"reason":           s.EndReason,
		"duration":         time.Since(s.StartedAt).Round(time.Millisecond),
	}
}

// Pipe writes chunks to w until the stream ends, ctx is done or a write
// fails. It flushes after each chunk when w is an http.Flusher and always
// closes the producer. A camera-ended stream returns nil.
func (p *Producer) Pipe(ctx context.Context, w io.Writer) error {
	defer p.Close()

	flusher, _ := w.(http.Flusher)
	for {
		chunk, err := p.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := w.Write(chunk); err != nil {
			p.mu.Lock()
			p.stats.EndReason = "client"
			p.mu.Unlock()
			return fmt.Errorf("failed to write frame: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
