package posture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charlie0129/formcoach/pkg/pose"
)

// Mode decides how detectors share state and which of them run per frame.
type Mode string

const (
	// ModeSelected keeps one SessionState per exercise and runs only the
	// selected exercise's detector.
	ModeSelected Mode = "selected"
	// ModeIndependent keeps one SessionState per exercise and runs every
	// detector on every frame.
	ModeIndependent Mode = "independent"
	// ModeLegacy runs every detector, in Exercises order, against a single
	// shared SessionState. Detectors overwrite each other's stage, so at most
	// one of them wins a transition on any frame.
	ModeLegacy Mode = "legacy"
)

// ParseMode validates a mode name. Empty means ModeSelected.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSelected:
		return ModeSelected, nil
	case ModeIndependent, ModeLegacy:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown detector mode %q", s)
}

// RepEvent reports a rep completed on a frame.
type RepEvent struct {
	Exercise Exercise `json:"exercise"`
	Counter  int      `json:"counter"`
}

// Result is the outcome of processing one frame.
type Result struct {
	// Counter is the value shown on the frame: the shared counter in
	// ModeLegacy, the selected exercise's counter otherwise.
	Counter int
	// Feedback is indexed by Exercise.Index. Messages are never carried over
	// between frames.
	Feedback  [NumExercises]string
	Completed []RepEvent
}

// Snapshot is a point-in-time copy of a Session for status reporting.
type Snapshot struct {
	ID        string                    `json:"id"`
	Mode      Mode                      `json:"mode"`
	Selected  Exercise                  `json:"selected"`
	StartedAt time.Time                 `json:"startedAt"`
	Counter   int                       `json:"counter"`
	Shared    *SessionState             `json:"shared,omitempty"`
	States    map[Exercise]SessionState `json:"states,omitempty"`
}

// Session is the explicit per-viewer state: created when a session starts,
// reset on demand and mutated once per processed frame.
//
// Session is safe for concurrent use, but is meant to be fed by a single
// frame producer. Two producers feeding the same Session interleave their
// frames into one rep count.
type Session struct {
	mu        sync.Mutex
	id        string
	mode      Mode
	selected  Exercise
	startedAt time.Time

	detectors [NumExercises]Detector
	shared    SessionState
	states    [NumExercises]SessionState
}

// NewSession returns a fresh session. An invalid selected exercise falls
// back to ArmCurl.
func NewSession(mode Mode, selected Exercise) *Session {
	if selected.Index() < 0 {
		selected = ArmCurl
	}
	s := &Session{
		mode:     mode,
		selected: selected,
	}
	for i, ex := range Exercises {
		// NewDetector never fails for entries of Exercises.
		s.detectors[i], _ = NewDetector(ex)
	}
	s.resetLocked()
	return s
}

func (s *Session) resetLocked() {
	s.id = uuid.New().String()
	s.startedAt = time.Now()
	s.shared.Reset()
	for i := range s.states {
		s.states[i].Reset()
	}
}

// Reset zeroes every counter, returns every stage to idle and starts a new
// session id. The selected exercise is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// ID returns the current session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Mode returns the session mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// Select changes the exercise shown to the viewer. In ModeSelected it also
// changes which detector runs.
func (s *Session) Select(e Exercise) error {
	if e.Index() < 0 {
		return fmt.Errorf("unknown exercise %q", e)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = e
	return nil
}

// Selected returns the selected exercise.
func (s *Session) Selected() Exercise {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Counter returns the counter that would be drawn on the next frame.
func (s *Session) Counter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterLocked()
}

func (s *Session) counterLocked() int {
	if s.mode == ModeLegacy {
		return s.shared.Counter
	}
	return s.states[s.selected.Index()].Counter
}

// stateFor returns the state detector i mutates.
func (s *Session) stateFor(i int) *SessionState {
	if s.mode == ModeLegacy {
		return &s.shared
	}
	return &s.states[i]
}

func (s *Session) runs(i int) bool {
	if s.mode == ModeSelected {
		return i == s.selected.Index()
	}
	return true
}

// Process runs the detectors on one frame's landmarks. A nil landmark set
// runs nothing and only reports the current counter.
func (s *Session) Process(lm *pose.LandmarkSet) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result
	if lm == nil {
		res.Counter = s.counterLocked()
		return res
	}

	for i, d := range s.detectors {
		if !s.runs(i) {
			continue
		}
		st := s.stateFor(i)
		before := st.Counter
		res.Feedback[i] = d.Check(lm, st)
		if st.Counter > before {
			res.Completed = append(res.Completed, RepEvent{
				Exercise: d.Exercise(),
				Counter:  st.Counter,
			})
		}
	}

	res.Counter = s.counterLocked()
	return res
}

// Snapshot copies the session for reporting.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		Mode:      s.mode,
		Selected:  s.selected,
		StartedAt: s.startedAt,
		Counter:   s.counterLocked(),
	}
	if s.mode == ModeLegacy {
		shared := s.shared
		snap.Shared = &shared
		return snap
	}
	snap.States = make(map[Exercise]SessionState, NumExercises)
	for i, ex := range Exercises {
		snap.States[ex] = s.states[i]
	}
	return snap
}
