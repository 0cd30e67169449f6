package config

import "github.com/sirupsen/logrus"

// Config is the daemon configuration. Getters fall back to defaults for
// unset keys.
type Config interface {
	ListenAddr() string
	CameraBackend() string
	CameraDevice() string
	CameraPipeline() string
	ImageDir() string
	EstimatorCommand() []string
	EstimatorTimeoutMs() int
	JPEGQuality() int
	DetectorMode() string
	DefaultExercise() string
	ResetSchedule() string
	TextScale() int

	SetDetectorMode(string)
	SetDefaultExercise(string)
	SetResetSchedule(string)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error

	LogrusFields() logrus.Fields
}
