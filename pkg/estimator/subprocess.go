// Package estimator bridges to the external pose model.
//
// The model runs in a sidecar process (typically a Python MediaPipe script).
// Frames go to its stdin and landmarks come back on stdout, both as MsgPack
// messages with a 4-byte big-endian length prefix. One frame is in flight at
// a time.
package estimator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/formcoach/pkg/pose"
)

var (
	// ErrEstimatorTimeout is returned when the sidecar does not answer in time.
	// The late answer is dropped by the next call.
	ErrEstimatorTimeout = errors.New("pose estimator timed out")
	// ErrEstimatorClosed is returned after Close or after the connection broke.
	ErrEstimatorClosed = errors.New("pose estimator closed")
)

const (
	defaultTimeout = 2 * time.Second
	stopTimeout    = 2 * time.Second
)

// Config configures a sidecar estimator.
type Config struct {
	// Command is the argv of the sidecar, e.g. ["models/run_pose.sh", "--model", "full"].
	Command []string
	// Timeout bounds a single Estimate call. Zero means 2s.
	Timeout time.Duration
}

// conn is the framed request/response channel to a sidecar.
type conn struct {
	mu      sync.Mutex
	w       io.WriteCloser
	r       io.Reader
	timeout time.Duration
	seq     uint64
	broken  bool
	// pending holds the round trip of a request that timed out. Its answer
	// is read and dropped before the next request goes out.
	pending <-chan roundTrip
}

type roundTrip struct {
	resp Response
	err  error
}

func newConn(r io.Reader, w io.WriteCloser, timeout time.Duration) *conn {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &conn{w: w, r: r, timeout: timeout}
}

func (c *conn) transportError(err error) error {
	c.broken = true
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return ErrEstimatorClosed
	}
	return fmt.Errorf("pose estimator round trip failed: %w", err)
}

// drain waits for the answer to a timed out request and drops it.
func (c *conn) drain(ctx context.Context, timer <-chan time.Time) error {
	select {
	case res := <-c.pending:
		c.pending = nil
		if res.err != nil {
			return c.transportError(res.err)
		}
		logrus.WithField("seq", res.resp.Seq).Debug("dropped late pose estimate")
		return nil
	case <-timer:
		return ErrEstimatorTimeout
	case <-ctx.Done():
		c.broken = true
		return ctx.Err()
	}
}

func (c *conn) estimate(ctx context.Context, img image.Image) (*pose.LandmarkSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil, ErrEstimatorClosed
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	if c.pending != nil {
		if err := c.drain(ctx, timer.C); err != nil {
			return nil, err
		}
	}

	c.seq++
	b := img.Bounds()
	req := Request{
		Seq:       c.seq,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    "rgb24",
		FrameData: pose.RGB24(img),
	}

	done := make(chan roundTrip, 1)
	go func() {
		var res roundTrip
		if res.err = writeMessage(c.w, &req); res.err == nil {
			res.err = readMessage(c.r, &res.resp)
		}
		done <- res
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, c.transportError(res.err)
		}
		if res.resp.Seq != req.Seq {
			c.broken = true
			return nil, fmt.Errorf("pose estimator answered seq %d, expected %d", res.resp.Seq, req.Seq)
		}
		if res.resp.Error != "" {
			return nil, fmt.Errorf("pose estimator: %s", res.resp.Error)
		}
		if total, ok := res.resp.Timing["total_ms"]; ok {
			logrus.WithFields(logrus.Fields{
				"seq":       req.Seq,
				"totalMs":   total,
				"landmarks": len(res.resp.Landmarks),
			}).Trace("pose estimated")
		}
		return res.resp.toLandmarkSet(), nil
	case <-timer.C:
		c.pending = done
		return nil, ErrEstimatorTimeout
	case <-ctx.Done():
		c.broken = true
		return nil, ctx.Err()
	}
}

// Subprocess is an Estimator backed by a sidecar process.
type Subprocess struct {
	*conn
	cmd       *exec.Cmd
	waitDone  chan struct{}
	waitErr   error
	closeOnce sync.Once
}

// Start spawns the sidecar. The process is killed when ctx is cancelled.
func Start(ctx context.Context, cfg Config) (*Subprocess, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("estimator command is required")
	}

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start pose estimator %s: %w", cfg.Command[0], err)
	}

	logrus.WithFields(logrus.Fields{
		"command": strings.Join(cfg.Command, " "),
		"pid":     cmd.Process.Pid,
	}).Info("pose estimator started")

	s := &Subprocess{
		conn:     newConn(bufio.NewReader(stdout), stdin, cfg.Timeout),
		cmd:      cmd,
		waitDone: make(chan struct{}),
	}

	go logStderr(stderr)
	go func() {
		s.waitErr = cmd.Wait()
		close(s.waitDone)
		if s.waitErr != nil && ctx.Err() == nil {
			logrus.Errorf("pose estimator exited unexpectedly: %v", s.waitErr)
		} else {
			logrus.Debug("pose estimator exited")
		}
	}()

	return s, nil
}

// Estimate implements pose.Estimator.
func (s *Subprocess) Estimate(ctx context.Context, img image.Image) (*pose.LandmarkSet, error) {
	return s.estimate(ctx, img)
}

// Close closes the sidecar's stdin and waits for it to exit, killing it if it
// does not within 2s.
func (s *Subprocess) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if cerr := s.w.Close(); cerr != nil {
			logrus.Debugf("failed to close estimator stdin: %v", cerr)
		}

		select {
		case <-s.waitDone:
		case <-time.After(stopTimeout):
			logrus.Warn("pose estimator did not exit in time, killing it")
			if kerr := s.cmd.Process.Kill(); kerr != nil {
				err = fmt.Errorf("failed to kill pose estimator: %w", kerr)
				return
			}
			<-s.waitDone
		}
	})
	return err
}

// logStderr forwards sidecar log lines, mapping their level prefix.
func logStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		entry := logrus.WithField("source", "estimator")
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			entry.Error(line)
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			entry.Warn(line)
		default:
			entry.Debug(line)
		}
	}
}
