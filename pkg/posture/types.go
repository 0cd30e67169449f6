package posture

import (
	"fmt"
	"strings"
)

// Stage is the hysteresis memory of a rep cycle.
type Stage string

const (
	StageNone Stage = ""
	StageDown Stage = "down"
	StageUp   Stage = "up"
)

func (s Stage) String() string {
	if s == StageNone {
		return "none"
	}
	return string(s)
}

// Exercise names a posture detector variant.
type Exercise string

const (
	ArmCurl       Exercise = "arm_curl"
	Pushup        Exercise = "pushup"
	Weightlifting Exercise = "weightlifting"
)

// NumExercises is the number of known exercises.
const NumExercises = 3

// Exercises lists every exercise in evaluation order.
var Exercises = [NumExercises]Exercise{ArmCurl, Pushup, Weightlifting}

// Index returns the position of e in Exercises, or -1.
func (e Exercise) Index() int {
	for i, ex := range Exercises {
		if ex == e {
			return i
		}
	}
	return -1
}

// Title returns a human readable name.
func (e Exercise) Title() string {
	switch e {
	case ArmCurl:
		return "Arm Curl"
	case Pushup:
		return "Pushup"
	case Weightlifting:
		return "Weightlifting"
	}
	return string(e)
}

// ParseExercise accepts the canonical names plus a few spellings used in URLs
// ("arm-curl", "ArmCurl", "push-up").
func ParseExercise(s string) (Exercise, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer("-", "", "_", "", " ", "").Replace(n)
	switch n {
	case "armcurl", "curl":
		return ArmCurl, nil
	case "pushup":
		return Pushup, nil
	case "weightlifting", "weights":
		return Weightlifting, nil
	}
	return "", fmt.Errorf("unknown exercise %q", s)
}

// SessionState is the counter and stage of one rep cycle.
type SessionState struct {
	Counter int   `json:"counter"`
	Stage   Stage `json:"stage"`
}

// Reset sets the counter to zero and the stage back to idle.
func (s *SessionState) Reset() {
	s.Counter = 0
	s.Stage = StageNone
}
