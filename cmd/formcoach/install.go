package main

import (
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/formcoach/pkg/config"
	daemonutils "github.com/charlie0129/formcoach/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install formcoach as a systemd service",
		GroupID: gInstallation,
		Long: `Install formcoach daemon as a systemd service (system-wide).

This makes formcoach run in the background and automatically start on boot. You must run this command as root.

The config file is created with defaults if it does not exist yet.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			absConfig, err := filepath.Abs(configPath)
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to resolve config path %s", configPath)
			}

			conf, err := config.NewFile(absConfig)
			if err != nil {
				return err
			}
			raw, err := config.NewRawFileConfigFromConfig(conf)
			if err != nil {
				return err
			}

			err = daemonutils.Install(absConfig)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			if _, err := os.Stat(absConfig); os.IsNotExist(err) {
				if err := config.NewFileFromConfig(raw, absConfig).Save(); err != nil {
					return pkgerrors.Wrapf(err, "failed to save config")
				}
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `formcoach install' again.\n", exePath)

			return nil
		},
	}

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall formcoach systemd service",
		GroupID: gInstallation,
		Long: `Uninstall formcoach daemon from systemd (system-wide).

This stops formcoach and removes its unit file.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			fmt.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, in case you want to use `formcoach' again. If you want a complete uninstall, you can remove both config file and formcoach itself manually.\n", configPath)

			return nil
		},
	}

	return cmd
}
