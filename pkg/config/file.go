package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/formcoach/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		ListenAddr:         ptr.To("127.0.0.1:5000"),
		CameraBackend:      ptr.To("opencv"),
		CameraDevice:       ptr.To("0"),
		CameraPipeline:     ptr.To(""),
		ImageDir:           ptr.To(""),
		EstimatorCommand:   []string{"formcoach-pose"},
		EstimatorTimeoutMs: ptr.To(2000),
		JPEGQuality:        ptr.To(80),
		DetectorMode:       ptr.To("selected"),
		DefaultExercise:    ptr.To("arm_curl"),
		ResetSchedule:      ptr.To(""),
		TextScale:          ptr.To(1),
	}
)

var _ Config = &File{}

// File is a Config backed by a JSON file, or a YAML file when the path ends
// in .yaml or .yml.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	ListenAddr         *string  `json:"listenAddr,omitempty" yaml:"listenAddr,omitempty"`
	CameraBackend      *string  `json:"cameraBackend,omitempty" yaml:"cameraBackend,omitempty"`
	CameraDevice       *string  `json:"cameraDevice,omitempty" yaml:"cameraDevice,omitempty"`
	CameraPipeline     *string  `json:"cameraPipeline,omitempty" yaml:"cameraPipeline,omitempty"`
	ImageDir           *string  `json:"imageDir,omitempty" yaml:"imageDir,omitempty"`
	EstimatorCommand   []string `json:"estimatorCommand,omitempty" yaml:"estimatorCommand,omitempty"`
	EstimatorTimeoutMs *int     `json:"estimatorTimeoutMs,omitempty" yaml:"estimatorTimeoutMs,omitempty"`
	JPEGQuality        *int     `json:"jpegQuality,omitempty" yaml:"jpegQuality,omitempty"`
	DetectorMode       *string  `json:"detectorMode,omitempty" yaml:"detectorMode,omitempty"`
	DefaultExercise    *string  `json:"defaultExercise,omitempty" yaml:"defaultExercise,omitempty"`
	ResetSchedule      *string  `json:"resetSchedule,omitempty" yaml:"resetSchedule,omitempty"`
	TextScale          *int     `json:"textScale,omitempty" yaml:"textScale,omitempty"`
}

// NewRawFileConfigFromConfig resolves every key of c, defaults included.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		ListenAddr:         ptr.To(c.ListenAddr()),
		CameraBackend:      ptr.To(c.CameraBackend()),
		CameraDevice:       ptr.To(c.CameraDevice()),
		CameraPipeline:     ptr.To(c.CameraPipeline()),
		ImageDir:           ptr.To(c.ImageDir()),
		EstimatorCommand:   c.EstimatorCommand(),
		EstimatorTimeoutMs: ptr.To(c.EstimatorTimeoutMs()),
		JPEGQuality:        ptr.To(c.JPEGQuality()),
		DetectorMode:       ptr.To(c.DetectorMode()),
		DefaultExercise:    ptr.To(c.DefaultExercise()),
		ResetSchedule:      ptr.To(c.ResetSchedule()),
		TextScale:          ptr.To(c.TextScale()),
	}

	return rawConfig, nil
}

// valueOr reads a field under the read lock, falling back to its default.
func valueOr[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

func (f *File) ListenAddr() string {
	return valueOr(f, func(c *RawFileConfig) *string { return c.ListenAddr })
}

func (f *File) CameraBackend() string {
	return valueOr(f, func(c *RawFileConfig) *string { return c.CameraBackend })
}

func (f *File) CameraDevice() string {
	return valueOr(f, func(c *RawFileConfig) *string { return c.CameraDevice })
}

func (f *File) CameraPipeline() string {
	return valueOr(f, func(c *RawFileConfig) *string { return c.CameraPipeline })
}

func (f *File) ImageDir() string {
	return valueOr(f, func(c *RawFileConfig) *string { return c.ImageDir })
}

func (f *File) EstimatorCommand() []string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	cmd := f.c.EstimatorCommand
	if len(cmd) == 0 {
		cmd = defaultFileConfig.EstimatorCommand
	}
	return append([]string(nil), cmd...)
}

func (f *File) EstimatorTimeoutMs() int {
	ms := valueOr(f, func(c *RawFileConfig) *int { return c.EstimatorTimeoutMs })
	if ms <= 0 {
		return *defaultFileConfig.EstimatorTimeoutMs
	}
	return ms
}

func (f *File) JPEGQuality() int {
	q := valueOr(f, func(c *RawFileConfig) *int { return c.JPEGQuality })
	if q < 1 || q > 100 {
		return *defaultFileConfig.JPEGQuality
	}
	return q
}

func (f *File) DetectorMode() string {
	return valueOr(f, func(c *RawFileConfig) *string { return c.DetectorMode })
}

func (f *File) DefaultExercise() string {
	return valueOr(f, func(c *RawFileConfig) *string { return c.DefaultExercise })
}

func (f *File) ResetSchedule() string {
	return valueOr(f, func(c *RawFileConfig) *string { return c.ResetSchedule })
}

func (f *File) TextScale() int {
	s := valueOr(f, func(c *RawFileConfig) *int { return c.TextScale })
	if s < 1 {
		return 1
	}
	return s
}

func (f *File) SetDetectorMode(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.DetectorMode = &s
}

func (f *File) SetDefaultExercise(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.DefaultExercise = &s
}

func (f *File) SetResetSchedule(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.ResetSchedule = &s
}

func (f *File) isYAML() bool {
	switch strings.ToLower(filepath.Ext(f.filepath)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using a streaming decoder
	// will not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if f.isYAML() {
		err = yaml.Unmarshal(b, &conf)
	} else {
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	if f.isYAML() {
		enc := yaml.NewEncoder(fp)
		enc.SetIndent(2)
		err = enc.Encode(f.c)
		if err == nil {
			err = enc.Close()
		}
	} else {
		enc := json.NewEncoder(fp)
		enc.SetIndent("", "  ")
		err = enc.Encode(f.c)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"listenAddr":         f.ListenAddr(),
		"cameraBackend":      f.CameraBackend(),
		"cameraDevice":       f.CameraDevice(),
		"imageDir":           f.ImageDir(),
		"estimatorCommand":   strings.Join(f.EstimatorCommand(), " "),
		"estimatorTimeoutMs": f.EstimatorTimeoutMs(),
		"jpegQuality":        f.JPEGQuality(),
		"detectorMode":       f.DetectorMode(),
		"defaultExercise":    f.DefaultExercise(),
		"resetSchedule":      f.ResetSchedule(),
	}
}
