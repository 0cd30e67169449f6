package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// idleWait is how long the scheduler sleeps when nothing is scheduled.
const idleWait = time.Hour * 10000

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs a task on a cron schedule. The schedule can be replaced or
// cleared while running.
type Scheduler struct {
	Task    TaskFunc    // task callback
	OnError func(error) // called on task error

	parser cron.Parser

	mu       sync.Mutex
	schedule cron.Schedule
	nextRun  time.Time
	running  bool

	controlCh chan struct{}
	stopCh    chan struct{}
}

func NewScheduler(task TaskFunc, onError func(error)) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		Task:      task,
		OnError:   onError,
		parser:    cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		controlCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.runScheduled()
}

// Schedule replaces the schedule. An empty expression clears it.
func (s *Scheduler) Schedule(cronExpr string) error {
	var sh cron.Schedule
	if cronExpr != "" {
		var err error
		sh, err = s.parser.Parse(cronExpr)
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cronExpr, err)
		}
	}

	s.mu.Lock()
	s.schedule = sh
	if sh != nil {
		s.nextRun = sh.Next(time.Now())
	} else {
		s.nextRun = time.Time{}
	}
	s.mu.Unlock()

	s.wake()
	return nil
}

// Status reports the next run, zero when nothing is scheduled.
func (s *Scheduler) Status() (nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextRun = s.nextRun
	running = s.running
	return
}

func (s *Scheduler) runScheduled() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		_, nextRun := s.snapshot()
		wait := idleWait
		if !nextRun.IsZero() {
			wait = time.Until(nextRun)
			if wait < 0 {
				wait = 0
			}
		}
		timer := time.NewTimer(wait)

		select {
		case <-timer.C:
			if nextRun.IsZero() {
				continue
			}
			logrus.Debugf("running scheduled task at %s", nextRun.Format(time.DateTime))
			if err := s.Task(); err != nil && s.OnError != nil {
				s.OnError(fmt.Errorf("task failed: %w", err))
			}
			s.advanceNextRun(nextRun)
		case <-s.controlCh:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

// advanceNextRun moves past ran, unless the schedule changed meanwhile.
func (s *Scheduler) advanceNextRun(ran time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil || !s.nextRun.Equal(ran) {
		return
	}
	s.nextRun = s.schedule.Next(ran)
}

func (s *Scheduler) wake() {
	select {
	case s.controlCh <- struct{}{}:
	default:
	}
}
