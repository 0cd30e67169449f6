package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/formcoach/pkg/posture"
	"github.com/charlie0129/formcoach/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "reset",
		Short:   "Reset the rep counter",
		GroupID: gBasic,
		Long: `Reset the rep counter and stage of the current session.

The selected exercise is kept.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sess, err := apiClient().Reset()
			if err != nil {
				return fmt.Errorf("failed to reset session: %w", err)
			}

			logrus.WithField("session", sess.ID).Infof("successfully reset session")
			return nil
		},
	}
}

func NewSelectCommand() *cobra.Command {
	persist := false

	cmd := &cobra.Command{
		Use:     "select [exercise]",
		Short:   "Select the exercise to count",
		GroupID: gBasic,
		Long: `Select the exercise to count.

Valid exercises are arm_curl, pushup and weightlifting.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(posture.ArmCurl), string(posture.Pushup), string(posture.Weightlifting)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ret, err := apiClient().Select(args[0], persist)
			if err != nil {
				return fmt.Errorf("failed to select exercise: %w", err)
			}

			logrus.Infof("successfully selected %s", ret.Title)
			cmd.Printf("Open http://%s%s to watch the annotated video.\n", daemonAddr, ret.VideoFeed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "Also make this exercise the default in the config file.")

	return cmd
}
