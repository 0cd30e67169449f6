package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/formcoach/pkg/daemon"
	"github.com/charlie0129/formcoach/pkg/version"
)

// NewServeCommand .
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run formcoach daemon in the foreground",
		GroupID: gAdvanced,
		Long: `Run formcoach daemon in the foreground.

The daemon listens on the configured listenAddr unless --addr is given. Send
SIGHUP to reload the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("formcoach daemon starting")

			addr := ""
			if cmd.Flags().Changed("addr") {
				addr = daemonAddr
			}
			return daemon.Run(configPath, addr)
		},
	}

	return cmd
}
