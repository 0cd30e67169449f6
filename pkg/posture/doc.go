// Package posture implements the per-exercise repetition counters.
//
// Each exercise is a small hysteresis state machine over one joint angle:
//
//   - Idle (StageNone): initial state after a reset
//   - Primed: the limb is extended past the upper threshold
//   - Completed: the limb contracted below the lower threshold after being
//     primed; the counter is incremented on entry
//
// Completed has no self-loop. The next rep requires going through Primed
// again. There is no terminal state.
//
// Session owns the SessionState values and decides which detectors run on a
// frame, see Mode.
package posture
