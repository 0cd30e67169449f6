// Package camera defines the frame source contract used by the stream
// producer and a backend-independent factory.
//
// A Source is owned by exactly one producer. Any error from Read is terminal:
// the owner stops reading and calls Close.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("camera closed")

// Source produces frames from a capture device.
type Source interface {
	// Read blocks until the next frame is available.
	Read(ctx context.Context) (*image.RGBA, error)
	// Close releases the device.
	Close() error
}

// Backend names a Source implementation.
type Backend string

const (
	BackendOpenCV    Backend = "opencv"
	BackendGStreamer Backend = "gstreamer"
	BackendDir       Backend = "dir"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend
	// Device is a device index ("0") or URL for opencv, or a device path for
	// the default gstreamer pipeline.
	Device string
	// Pipeline overrides the gstreamer pipeline. It must end in an appsink
	// named "sink" producing video/x-raw,format=RGBA.
	Pipeline string
	Width    int
	Height   int
	// Dir and Loop configure the dir backend.
	Dir  string
	Loop bool
}

// Opener opens a Source for a Config.
type Opener func(cfg Config) (Source, error)

var openers = map[Backend]Opener{
	BackendDir: func(cfg Config) (Source, error) {
		return OpenDir(cfg.Dir, cfg.Loop)
	},
}

// Register makes a backend available to Open. Backends with native
// dependencies register themselves from their own packages so that importing
// this package stays cgo-free.
func Register(b Backend, o Opener) {
	openers[b] = o
}

// Open opens the configured backend.
func Open(cfg Config) (Source, error) {
	o, ok := openers[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported camera backend %q", cfg.Backend)
	}
	return o(cfg)
}
