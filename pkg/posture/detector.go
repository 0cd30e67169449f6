package posture

import (
	"fmt"
	"strings"

	"github.com/charlie0129/formcoach/pkg/geometry"
	"github.com/charlie0129/formcoach/pkg/pose"
)

const straightBodyWarning = "Keep your body straight!"

// Detector checks one exercise against the landmarks of a frame, mutating st
// and returning the feedback for this frame. Empty feedback means nothing to
// say. A frame missing the required landmarks leaves st untouched.
type Detector interface {
	Exercise() Exercise
	Check(lm *pose.LandmarkSet, st *SessionState) string
}

// cycle is a two-threshold rep counter over one angle.
type cycle struct {
	upper, lower float64
	primed       Stage
	completed    Stage
	primeMsg     string
	doneMsg      string // fmt string, receives the new counter
}

func (c cycle) step(angle float64, st *SessionState) string {
	switch {
	case angle > c.upper:
		st.Stage = c.primed
		return c.primeMsg
	case angle < c.lower && st.Stage == c.primed:
		st.Stage = c.completed
		st.Counter++
		return fmt.Sprintf(c.doneMsg, st.Counter)
	}
	return ""
}

var (
	armCurlCycle = cycle{
		upper: 160, lower: 30,
		primed: StageDown, completed: StageUp,
		primeMsg: "Keep your arms straight!",
		doneMsg:  "Good job! Reps: %d",
	}
	pushupCycle = cycle{
		upper: 160, lower: 90,
		primed: StageUp, completed: StageDown,
		primeMsg: "Lower your body!",
		doneMsg:  "Great! Push up again! Reps: %d",
	}
	weightliftingCycle = cycle{
		upper: 160, lower: 90,
		primed: StageUp, completed: StageDown,
		primeMsg: "Lower the weights!",
		doneMsg:  "Excellent! Lift again! Reps: %d",
	}
)

func angleOf(lm *pose.LandmarkSet, a, b, c pose.Landmark) (float64, bool) {
	if !lm.Has(a, b, c) {
		return 0, false
	}
	pa, _ := lm.Get(a)
	pb, _ := lm.Get(b)
	pc, _ := lm.Get(c)
	return geometry.Angle(pa, pb, pc), true
}

func leftElbowAngle(lm *pose.LandmarkSet) (float64, bool) {
	return angleOf(lm, pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist)
}

func leftBodyAngle(lm *pose.LandmarkSet) (float64, bool) {
	return angleOf(lm, pose.LeftShoulder, pose.LeftHip, pose.LeftAnkle)
}

// ArmCurlDetector counts curls on the left elbow.
type ArmCurlDetector struct{}

func (ArmCurlDetector) Exercise() Exercise { return ArmCurl }

func (ArmCurlDetector) Check(lm *pose.LandmarkSet, st *SessionState) string {
	elbow, ok := leftElbowAngle(lm)
	if !ok {
		return ""
	}
	return armCurlCycle.step(elbow, st)
}

// PushupDetector counts pushups on the left elbow and warns when the
// shoulder-hip-ankle line sags.
type PushupDetector struct{}

func (PushupDetector) Exercise() Exercise { return Pushup }

func (PushupDetector) Check(lm *pose.LandmarkSet, st *SessionState) string {
	elbow, ok := leftElbowAngle(lm)
	if !ok {
		return ""
	}
	body, ok := leftBodyAngle(lm)
	if !ok {
		return ""
	}

	feedback := pushupCycle.step(elbow, st)
	if body < 160 {
		feedback = joinFeedback(feedback, straightBodyWarning)
	}
	return feedback
}

// WeightliftingDetector counts lifts on the left elbow.
type WeightliftingDetector struct{}

func (WeightliftingDetector) Exercise() Exercise { return Weightlifting }

func (WeightliftingDetector) Check(lm *pose.LandmarkSet, st *SessionState) string {
	elbow, ok := leftElbowAngle(lm)
	if !ok {
		return ""
	}
	return weightliftingCycle.step(elbow, st)
}

// NewDetector returns the detector for e.
func NewDetector(e Exercise) (Detector, error) {
	switch e {
	case ArmCurl:
		return ArmCurlDetector{}, nil
	case Pushup:
		return PushupDetector{}, nil
	case Weightlifting:
		return WeightliftingDetector{}, nil
	}
	return nil, fmt.Errorf("no detector for exercise %q", e)
}

func joinFeedback(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
