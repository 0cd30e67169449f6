package events

import "encoding/json"

// Event names
const (
	RepCompleted     = "rep.completed"
	SessionReset     = "session.reset"
	ExerciseSelected = "exercise.selected"
	StreamEnded      = "stream.ended"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// RepCompletedEvent is published for every counted rep.
type RepCompletedEvent struct {
	Exercise string `json:"exercise"`
	Counter  int    `json:"counter"`
	Ts       int64  `json:"ts"`
}

// SessionResetEvent is published when the session counters are cleared.
type SessionResetEvent struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
	Ts        int64  `json:"ts"`
}

type ExerciseSelectedEvent struct {
	Exercise string `json:"exercise"`
	Ts       int64  `json:"ts"`
}

// StreamEndedEvent is published when a video feed stops.
type StreamEndedEvent struct {
	Reason string `json:"reason"`
	Frames int    `json:"frames"`
	Reps   int    `json:"reps"`
	Ts     int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.RepCompletedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Exercise, payload.Counter)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
