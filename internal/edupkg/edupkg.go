// Package edupkg installs the educational software catalog and the drivers
// for detected classroom peripherals. Installation is best effort per
// package: a failed install is logged and the rest of the catalog still
// goes in.
package edupkg

import (
	"context"
	"log/slog"
	"os/exec"
	"sort"
	"time"

	"github.com/josiahkernel/provision/internal/cmdutils"
)

const installTimeout = 10 * time.Minute

// catalog is the educational software preload, by category.
var catalog = map[string][]string{
	"math":        {"kalgebra", "geogebra", "gnuplot"},
	"science":     {"stellarium", "avogadro", "kalzium"},
	"programming": {"thonny", "scratch", "jupyter-notebook"},
	"writing":     {"libreoffice", "lyx", "focuswriter"},
	"misc":        {"gcompris", "kturtle", "kodu"},
}

// Installer handles dependencies for installing packages.
type Installer struct {
	opts options
}

// Options is the variadic options available to the Installer.
type Options func(*options)

type options struct {
	aptCmd   []string
	lookPath func(string) (string, error)
	log      *slog.Logger
}

// WithLogger overrides the default logger.
func WithLogger(logger slog.Handler) Options {
	return func(o *options) {
		o.log = slog.New(logger)
	}
}

// WithApt overrides the default package manager command.
func WithApt(cmd []string) Options {
	return func(o *options) {
		o.aptCmd = cmd
	}
}

// WithLookPath overrides the executable lookup.
func WithLookPath(f func(string) (string, error)) Options {
	return func(o *options) {
		o.lookPath = f
	}
}

// New returns a new Installer.
func New(args ...Options) Installer {
	opts := &options{
		aptCmd:   []string{"apt-get"},
		lookPath: exec.LookPath,
		log:      slog.Default(),
	}
	for _, opt := range args {
		opt(opts)
	}

	return Installer{opts: *opts}
}

// InstallDefaults installs the educational software catalog and returns the
// packages that went in. A missing package manager skips everything with a
// log, a failed package only skips itself.
func (i Installer) InstallDefaults(ctx context.Context) []string {
	installed := []string{}

	if _, err := i.opts.lookPath(i.opts.aptCmd[0]); err != nil {
		i.opts.log.Warn("package manager not found, skipping software preload", "error", err)
		return installed
	}

	categories := make([]string, 0, len(catalog))
	for category := range catalog {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		i.opts.log.Info("installing educational software", "category", category)
		for _, pkg := range catalog[category] {
			if err := i.install(ctx, pkg, "--no-install-recommends"); err != nil {
				i.opts.log.Warn("failed to install package", "package", pkg, "error", err)
				continue
			}
			installed = append(installed, pkg)
		}
	}

	return installed
}

// InstallPeripheralDrivers installs the driver bundle of every peripheral
// category with at least one detected device.
func (i Installer) InstallPeripheralDrivers(ctx context.Context, peripherals map[string][]string) {
	if _, err := i.opts.lookPath(i.opts.aptCmd[0]); err != nil {
		i.opts.log.Warn("package manager not found, skipping driver provisioning", "error", err)
		return
	}

	categories := make([]string, 0, len(peripherals))
	for category := range peripherals {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		if len(peripherals[category]) == 0 {
			continue
		}

		i.opts.log.Info("peripheral detected, installing drivers", "category", category, "devices", len(peripherals[category]))
		pkg := "school-" + category + "-drivers"
		if err := i.install(ctx, pkg); err != nil {
			i.opts.log.Warn("failed to install drivers", "category", category, "error", err)
		}
	}
}

func (i Installer) install(ctx context.Context, pkg string, extraArgs ...string) error {
	args := append([]string{"install", "-y"}, extraArgs...)
	args = append(args, pkg)
	cmd := append(i.opts.aptCmd, args...)

	_, _, err := cmdutils.RunWithTimeout(ctx, installTimeout, cmd[0], cmd[1:]...)
	return err
}
