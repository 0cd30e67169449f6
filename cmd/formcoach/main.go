package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/formcoach/pkg/client"
)

const defaultDaemonAddr = "127.0.0.1:5000"

var (
	logLevel   = "info"
	daemonAddr = defaultDaemonAddr
	configPath = "/etc/formcoach.json"
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gInstallation,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: formcoach daemon is not running")
		fmt.Fprintf(os.Stderr, "Is the daemon running on %s? Start it with 'formcoach serve' or 'formcoach install'.\n", daemonAddr)
	case errors.Is(err, client.ErrConflict):
		fmt.Fprintln(os.Stderr, "\nError: the video feed is already being watched")
		fmt.Fprintln(os.Stderr, "Only one viewer per camera is supported. Close the other viewer first.")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formcoach",
		Short: "formcoach counts exercise reps and corrects your form from a webcam",
		Long: `formcoach counts exercise reps and corrects your form from a webcam.

It estimates your pose on every camera frame, counts arm curls, pushups and
weightlifting reps, and streams the annotated video to your browser.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			if cmd.Name() == "serve" || cmd.GroupID == gInstallation {
				return nil
			}

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. formcoach may not work as expected.")
				}
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path (.json, .yaml or .yml)")
	globalFlags.StringVar(&daemonAddr, "addr", daemonAddr, "daemon address (host:port)")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewServeCommand(),
		NewVersionCommand(),
		NewResetCommand(),
		NewSelectCommand(),
		NewStatusCommand(),
		NewWatchCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
