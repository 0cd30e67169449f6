// Package pose defines the body landmarks produced by an external pose
// estimator and the contract such an estimator must satisfy.
//
// Landmark indices follow the 33-point MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
package pose

import (
	"strings"

	"github.com/charlie0129/formcoach/pkg/geometry"
)

// Landmark identifies a named anatomical point.
type Landmark int

const (
	Nose Landmark = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex
	NumLandmarks
)

var landmarkNames = [NumLandmarks]string{
	"NOSE",
	"LEFT_EYE_INNER",
	"LEFT_EYE",
	"LEFT_EYE_OUTER",
	"RIGHT_EYE_INNER",
	"RIGHT_EYE",
	"RIGHT_EYE_OUTER",
	"LEFT_EAR",
	"RIGHT_EAR",
	"MOUTH_LEFT",
	"MOUTH_RIGHT",
	"LEFT_SHOULDER",
	"RIGHT_SHOULDER",
	"LEFT_ELBOW",
	"RIGHT_ELBOW",
	"LEFT_WRIST",
	"RIGHT_WRIST",
	"LEFT_PINKY",
	"RIGHT_PINKY",
	"LEFT_INDEX",
	"RIGHT_INDEX",
	"LEFT_THUMB",
	"RIGHT_THUMB",
	"LEFT_HIP",
	"RIGHT_HIP",
	"LEFT_KNEE",
	"RIGHT_KNEE",
	"LEFT_ANKLE",
	"RIGHT_ANKLE",
	"LEFT_HEEL",
	"RIGHT_HEEL",
	"LEFT_FOOT_INDEX",
	"RIGHT_FOOT_INDEX",
}

func (l Landmark) String() string {
	if l < 0 || l >= NumLandmarks {
		return "UNKNOWN"
	}
	return landmarkNames[l]
}

// ParseLandmark looks up a landmark by its wire name. Matching is case-insensitive.
func ParseLandmark(name string) (Landmark, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range landmarkNames {
		if n == name {
			return Landmark(i), true
		}
	}
	return 0, false
}

// Connections are the skeleton edges drawn between landmarks.
var Connections = [][2]Landmark{
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
	{LeftShoulder, LeftHip},
	{RightShoulder, RightHip},
	{LeftHip, RightHip},
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
	{LeftAnkle, LeftHeel},
	{LeftHeel, LeftFootIndex},
	{RightAnkle, RightHeel},
	{RightHeel, RightFootIndex},
	{LeftWrist, LeftIndex},
	{RightWrist, RightIndex},
	{Nose, LeftEye},
	{Nose, RightEye},
	{LeftEye, LeftEar},
	{RightEye, RightEar},
	{MouthLeft, MouthRight},
}

// LandmarkSet maps landmarks to their positions for a single detected person.
// Insertion order is kept.
type LandmarkSet struct {
	order      []Landmark
	points     map[Landmark]geometry.Point2D
	visibility map[Landmark]float64
}

// NewLandmarkSet returns an empty set.
func NewLandmarkSet() *LandmarkSet {
	return &LandmarkSet{
		points:     make(map[Landmark]geometry.Point2D),
		visibility: make(map[Landmark]float64),
	}
}

// Set stores the position of l, overwriting any previous value.
func (s *LandmarkSet) Set(l Landmark, p geometry.Point2D) {
	if _, ok := s.points[l]; !ok {
		s.order = append(s.order, l)
	}
	s.points[l] = p
}

// SetVisibility records the estimator's visibility score for l.
func (s *LandmarkSet) SetVisibility(l Landmark, v float64) {
	s.visibility[l] = v
}

// Get returns the position of l.
func (s *LandmarkSet) Get(l Landmark) (geometry.Point2D, bool) {
	if s == nil {
		return geometry.Point2D{}, false
	}
	p, ok := s.points[l]
	return p, ok
}

// Visibility returns the visibility score of l, or 1 if the estimator did not
// report one.
func (s *LandmarkSet) Visibility(l Landmark) float64 {
	if v, ok := s.visibility[l]; ok {
		return v
	}
	return 1
}

// Has reports whether every given landmark is present.
func (s *LandmarkSet) Has(ls ...Landmark) bool {
	if s == nil {
		return false
	}
	for _, l := range ls {
		if _, ok := s.points[l]; !ok {
			return false
		}
	}
	return true
}

// Landmarks returns the landmarks in insertion order.
func (s *LandmarkSet) Landmarks() []Landmark {
	if s == nil {
		return nil
	}
	return append([]Landmark(nil), s.order...)
}

// Len returns the number of landmarks in the set.
func (s *LandmarkSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}
