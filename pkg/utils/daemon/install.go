// Package daemon installs formcoach as a systemd service.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const unitName = "formcoach.service"

var (
	unitPath = "/etc/systemd/system/" + unitName

	// runSystemctl is swapped in tests.
	runSystemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

const unitTemplate = `[Unit]
Description=formcoach exercise form feedback daemon
After=network.target

[Service]
Type=simple
ExecStart=/path/to/formcoach serve --config /path/to/config
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// UnitFile renders the systemd unit for exePath and configPath.
func UnitFile(exePath, configPath string) string {
	tmpl := strings.ReplaceAll(unitTemplate, "/path/to/formcoach", exePath)
	return strings.ReplaceAll(tmpl, "/path/to/config", configPath)
}

func Install(configPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	err = os.MkdirAll(filepath.Dir(unitPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	// warn if the file already exists
	if _, err := os.Stat(unitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	logrus.Infof("writing systemd unit to %s", unitPath)
	err = os.WriteFile(unitPath, []byte(UnitFile(exePath, configPath)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	if err := runSystemctl("daemon-reload"); err != nil {
		return err
	}

	logrus.Infof("starting formcoach")
	return runSystemctl("enable", "--now", unitName)
}
