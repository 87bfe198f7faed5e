package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/josiahkernel/provision/internal/cmdutils"
	"github.com/josiahkernel/provision/internal/fileutils"
)

const applyTimeout = 30 * time.Second

// mimeappsList wires the classroom default applications.
const mimeappsList = `[Default Applications]
text/html=firefox.desktop
application/pdf=org.kde.okular.desktop
application/x-python-code=thonny.desktop
`

// Apply runs every policy writer in order. Each failure is logged and the
// remaining writers still run.
func (a Applier) Apply(ctx context.Context) {
	a.opts.log.Debug("applying classroom policies")

	if a.settings.SafeSearch {
		if err := a.enableSafeSearch(); err != nil {
			a.opts.log.Warn("failed to configure DNS safe search", "error", err)
		}
		if err := a.writeBrowserPolicy(); err != nil {
			a.opts.log.Warn("failed to configure browser policy", "error", err)
		}
	}

	if err := a.writeDefaultApps(); err != nil {
		a.opts.log.Warn("failed to configure default applications", "error", err)
	}

	if a.settings.ParentalControls {
		if err := a.enableFocusMode(ctx); err != nil {
			a.opts.log.Warn("failed to enable focus mode", "error", err)
		}
	}

	if err := a.setupStudyTimer(ctx); err != nil {
		a.opts.log.Warn("failed to set up study timer service", "error", err)
	}
}

// enableSafeSearch appends the filtering resolvers to resolv.conf.
func (a Applier) enableSafeSearch() error {
	path := filepath.Join(a.opts.root, "etc/resolv.conf")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString("\n# Safe search resolvers\nnameserver 8.8.8.8\nnameserver 8.8.4.4\n")
	return err
}

// writeBrowserPolicy writes the managed Firefox policy file.
func (a Applier) writeBrowserPolicy() error {
	policy := map[string]any{
		"policies": map[string]any{
			"SafeBrowsingEnabled": true,
			"TrackingProtection":  true,
			"BlockAboutAddons":    true,
		},
	}

	data, err := json.MarshalIndent(policy, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Join(a.opts.root, "etc/firefox")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return fileutils.AtomicWrite(filepath.Join(dir, "policies.json"), data)
}

// writeDefaultApps writes the system-wide default applications list.
func (a Applier) writeDefaultApps() error {
	dir := filepath.Join(a.opts.root, "etc/xdg")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return fileutils.AtomicWrite(filepath.Join(dir, "mimeapps.list"), []byte(mimeappsList))
}

// enableFocusMode appends the blocklist to the hosts file and restarts the
// network manager so the rewrite takes effect.
func (a Applier) enableFocusMode(ctx context.Context) error {
	path := filepath.Join(a.opts.root, "etc/hosts")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString("\n# Focus mode blocklist\n"); err != nil {
		return err
	}
	for _, host := range a.settings.BlockedHosts {
		if _, err := fmt.Fprintf(f, "127.0.0.1 %s\n", host); err != nil {
			return err
		}
	}

	if !a.cfg.HasFirmwareAccess {
		a.opts.log.Info("shim environment, network manager not restarted")
		return nil
	}

	cmd := append(a.opts.systemctlCmd, "restart", "network-manager")
	_, _, err = cmdutils.RunWithTimeout(ctx, applyTimeout, cmd[0], cmd[1:]...)
	return err
}

// setupStudyTimer installs and enables the study timer unit. Skipped in
// shim environments without a service manager worth talking to.
func (a Applier) setupStudyTimer(ctx context.Context) error {
	if !a.cfg.HasFirmwareAccess {
		a.opts.log.Info("shim environment, skipping study timer service")
		return nil
	}

	unit := fmt.Sprintf(`[Unit]
Description=Study Timer Service
After=graphical.target

[Service]
ExecStart=%s --study %d --break %d
Restart=always

[Install]
WantedBy=multi-user.target
`, a.opts.timerCmd, a.settings.StudyMinutes, a.settings.BreakMinutes)

	dir := filepath.Join(a.opts.root, "etc/systemd/system")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := fileutils.AtomicWrite(filepath.Join(dir, "study-timer.service"), []byte(unit)); err != nil {
		return err
	}

	cmd := append(a.opts.systemctlCmd, "enable", "study-timer.service")
	_, _, err := cmdutils.RunWithTimeout(ctx, applyTimeout, cmd[0], cmd[1:]...)
	return err
}

// StartStudyTimer records the session start and launches the study timer
// detached from this run. The launch is fire and forget: the process is not
// awaited and a failed launch only logs.
func (a Applier) StartStudyTimer() {
	if err := a.logSessionStart(); err != nil {
		a.opts.log.Warn("failed to record session start", "error", err)
	}

	if !a.cfg.HasFirmwareAccess {
		a.opts.log.Info("shim environment, study timer not started")
		return
	}

	err := cmdutils.StartDetached(a.opts.timerCmd,
		"--study", strconv.Itoa(a.settings.StudyMinutes),
		"--break", strconv.Itoa(a.settings.BreakMinutes))
	if err != nil {
		a.opts.log.Warn("failed to start study timer", "error", err)
	}
}

// logSessionStart appends a timestamped line to the session log.
func (a Applier) logSessionStart() error {
	dir := filepath.Join(a.opts.root, "var/log")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, "study-sessions.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "Session started at %s\n", time.Now().Format(time.ANSIC))
	return err
}
