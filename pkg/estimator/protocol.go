package estimator

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/charlie0129/formcoach/pkg/geometry"
	"github.com/charlie0129/formcoach/pkg/pose"
)

// maxMessageSize bounds a single response. Landmark replies are tiny; a bogus
// length prefix must not make us allocate gigabytes.
const maxMessageSize = 16 << 20

// Request is sent to the sidecar for every frame.
type Request struct {
	Seq       uint64 `msgpack:"seq"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	Format    string `msgpack:"format"`
	FrameData []byte `msgpack:"frame_data"`
}

// WireLandmark is one landmark as reported by the sidecar.
type WireLandmark struct {
	Name       string   `msgpack:"name"`
	X          float64  `msgpack:"x"`
	Y          float64  `msgpack:"y"`
	Visibility *float64 `msgpack:"visibility,omitempty"`
}

// Response is the sidecar's answer. An empty Landmarks list means no person.
type Response struct {
	Seq       uint64             `msgpack:"seq"`
	Landmarks []WireLandmark     `msgpack:"landmarks"`
	Error     string             `msgpack:"error,omitempty"`
	Timing    map[string]float64 `msgpack:"timing,omitempty"`
}

// writeMessage writes v as MsgPack behind a 4-byte big-endian length prefix.
func writeMessage(w io.Writer, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack message: %w", err)
	}

	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(b)))
	if _, err := w.Write(prefix); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write msgpack data: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed MsgPack message into v.
func readMessage(r io.Reader, v any) error {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return err
	}

	n := binary.BigEndian.Uint32(prefix)
	if n > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit", n)
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return fmt.Errorf("failed to read msgpack data (expected %d bytes): %w", n, err)
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to unmarshal msgpack message: %w", err)
	}
	return nil
}

// toLandmarkSet converts a response. Unknown landmark names are ignored.
func (r *Response) toLandmarkSet() *pose.LandmarkSet {
	if len(r.Landmarks) == 0 {
		return nil
	}
	lm := pose.NewLandmarkSet()
	for _, w := range r.Landmarks {
		l, ok := pose.ParseLandmark(w.Name)
		if !ok {
			continue
		}
		lm.Set(l, geometry.Point2D{X: w.X, Y: w.Y})
		if w.Visibility != nil {
			lm.SetVisibility(l, *w.Visibility)
		}
	}
	if lm.Len() == 0 {
		return nil
	}
	return lm
}
