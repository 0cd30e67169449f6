package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/formcoach/pkg/config"
	"github.com/charlie0129/formcoach/pkg/daemon"
	"github.com/charlie0129/formcoach/pkg/posture"
)

type statusData struct {
	session *daemon.SessionResponse
	stats   *daemon.StatsResponse
	config  *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	c := apiClient()

	sess, err := c.GetSession()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	stats, err := c.GetStats()
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	conf, err := c.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		session: sess,
		stats:   stats,
		config:  conf,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current session status",
		Long:    `Get the rep counters, video feed statistics and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), data)
			return nil
		},
	}
}

func printStatus(w io.Writer, data *statusData) {
	sess := data.session
	conf := config.NewFileFromConfig(data.config, "")

	fmt.Fprintln(w, bold("Session:"))
	fmt.Fprintf(w, "  ID: %s\n", sess.ID)
	fmt.Fprintf(w, "  Started: %s\n", sess.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  Exercise: %s\n", bold("%s", sess.Selected.Title()))
	fmt.Fprintf(w, "  Reps: %s\n", color.New(color.Bold, color.FgGreen).Sprintf("%d", sess.Counter))
	if sess.NextReset != nil {
		fmt.Fprintf(w, "  Next reset: %s\n", sess.NextReset.Local().Format(time.DateTime))
	}

	if sess.Shared != nil {
		fmt.Fprintf(w, "  Shared stage: %s\n", stageText(sess.Shared.Stage))
	}
	if len(sess.States) > 0 {
		names := make([]string, 0, len(sess.States))
		for ex := range sess.States {
			names = append(names, string(ex))
		}
		sort.Strings(names)
		for _, name := range names {
			ex := posture.Exercise(name)
			st := sess.States[ex]
			fmt.Fprintf(w, "    %-14s reps %-4d stage %s\n", ex.Title(), st.Counter, stageText(st.Stage))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, bold("Video feed:"))
	fmt.Fprintf(w, "  Active: %s\n", bool2Text(data.stats.Active))
	if s := data.stats.Stream; s != nil {
		fmt.Fprintf(w, "  Frames: %d (%d with a person)\n", s.Frames, s.FramesWithPerson)
		fmt.Fprintf(w, "  Reps counted: %d\n", s.Reps)
		if !s.Active && s.EndReason != "" {
			fmt.Fprintf(w, "  Ended: %s\n", color.YellowString(s.EndReason))
		}
	}
	fmt.Fprintf(w, "  Event subscribers: %d\n", data.stats.Subscribers)

	fmt.Fprintln(w)
	fmt.Fprintln(w, bold("Configuration:"))
	fmt.Fprintf(w, "  Detector mode: %s\n", bold("%s", conf.DetectorMode()))
	fmt.Fprintf(w, "  Camera: %s %s\n", conf.CameraBackend(), cameraTarget(conf))
	fmt.Fprintf(w, "  JPEG quality: %d\n", conf.JPEGQuality())
	if s := conf.ResetSchedule(); s != "" {
		fmt.Fprintf(w, "  Reset schedule: %s\n", s)
	}
}

func cameraTarget(conf config.Config) string {
	switch conf.CameraBackend() {
	case "dir":
		return conf.ImageDir()
	case "gstreamer":
		if p := conf.CameraPipeline(); p != "" {
			return p
		}
	}
	return conf.CameraDevice()
}

func stageText(s posture.Stage) string {
	switch s {
	case posture.StageUp:
		return color.CyanString("up")
	case posture.StageDown:
		return color.MagentaString("down")
	}
	return "-"
}
