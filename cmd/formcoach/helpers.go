package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/charlie0129/formcoach/pkg/client"
	"github.com/charlie0129/formcoach/pkg/events"
	"github.com/charlie0129/formcoach/pkg/posture"
	"github.com/charlie0129/formcoach/pkg/version"
)

func apiClient() *client.Client {
	return client.NewClient(daemonAddr)
}

func getVersion() (string, string, error) {
	daemonVersion, err := apiClient().GetVersion()
	if err != nil {
		return version.Version, "", err
	}
	return version.Version, daemonVersion, nil
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func exerciseTitle(name string) string {
	if ex, err := posture.ParseExercise(name); err == nil {
		return ex.Title()
	}
	return name
}

// formatEvent renders one daemon event as a single line.
func formatEvent(ev events.Event) string {
	switch ev.Name {
	case events.RepCompleted:
		p, err := events.DecodeAs[events.RepCompletedEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s %s rep %s", stamp(p.Ts), exerciseTitle(p.Exercise), color.New(color.Bold, color.FgGreen).Sprintf("#%d", p.Counter))
	case events.SessionReset:
		p, err := events.DecodeAs[events.SessionResetEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s session reset (%s)", stamp(p.Ts), p.Reason)
	case events.ExerciseSelected:
		p, err := events.DecodeAs[events.ExerciseSelectedEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s switched to %s", stamp(p.Ts), bold("%s", exerciseTitle(p.Exercise)))
	case events.StreamEnded:
		p, err := events.DecodeAs[events.StreamEndedEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s video feed ended: %s (%d frames, %d reps)", stamp(p.Ts), color.YellowString(p.Reason), p.Frames, p.Reps)
	}
	return fmt.Sprintf("%s %s", ev.Name, string(ev.Data))
}

func stamp(ts int64) string {
	return time.Unix(ts, 0).Format(time.TimeOnly)
}
