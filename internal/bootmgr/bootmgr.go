// Package bootmgr sequences the privileged boot environment mutations:
// firmware partition mount, bootloader installation, initramfs generation
// and the managed-mode boot theme. The sequence is linear with conditional
// skips and always runs to completion; every failure degrades functionality
// and is surfaced through logs and the run result, never as an error.
package bootmgr

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/josiahkernel/provision/internal/cmdutils"
	"github.com/josiahkernel/provision/internal/constants"
	"github.com/josiahkernel/provision/internal/fileutils"
	"github.com/josiahkernel/provision/internal/hardware"
	"github.com/josiahkernel/provision/internal/initramfs"
	"github.com/josiahkernel/provision/internal/platform"
)

const stepTimeout = 2 * time.Minute

// Step identifies one state of the boot setup sequence.
type Step string

const (
	// StepEfiMount mounts the firmware partition.
	StepEfiMount Step = "efi-mount"
	// StepBootloader installs the bootloader and regenerates its config.
	StepBootloader Step = "bootloader"
	// StepInitramfs builds the early-boot image.
	StepInitramfs Step = "initramfs"
	// StepTheme applies the managed-mode bootloader theme.
	StepTheme Step = "theme"
)

// Status is the outcome of a single step.
type Status string

const (
	// StatusDone means the step completed.
	StatusDone Status = "done"
	// StatusSkipped means the step did not apply to this environment.
	StatusSkipped Status = "skipped"
	// StatusFailed means the step failed and the run continued degraded.
	StatusFailed Status = "failed"
)

// StepResult is the recorded outcome of one step.
type StepResult struct {
	Step   Step   `json:"step"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Result aggregates the outcome of a full boot setup run.
type Result struct {
	Steps []StepResult `json:"steps"`
}

// Degraded reports whether any step failed.
func (r Result) Degraded() bool {
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			return true
		}
	}
	return false
}

func (r *Result) record(step Step, status Status, detail string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Status: status, Detail: detail})
}

// Manager drives the boot setup sequence for one provisioning run.
type Manager struct {
	cfg  *platform.Configuration
	opts options
}

// Options is the variadic options available to the Manager.
type Options func(*options)

type options struct {
	root            string
	efiMountpoint   string
	initramfsPath   string
	themeDir        string
	mountCmd        []string
	grubInstallCmd  []string
	grubMkconfigCmd []string
	themeCmd        []string
	builder         imageBuilder
	log             *slog.Logger
}

type imageBuilder interface {
	Build(target string) error
}

// WithLogger overrides the default logger.
func WithLogger(logger slog.Handler) Options {
	return func(o *options) {
		o.log = slog.New(logger)
	}
}

// WithRoot overrides the default root directory of the system. The
// restricted-mode sentinel, the bootloader defaults file, the firmware
// mountpoint and the initramfs target are all resolved against it.
func WithRoot(root string) Options {
	return func(o *options) {
		o.root = root
	}
}

// WithBuilder overrides the default initramfs builder.
func WithBuilder(b imageBuilder) Options {
	return func(o *options) {
		o.builder = b
	}
}

// WithMount overrides the default mount command.
func WithMount(cmd []string) Options {
	return func(o *options) {
		o.mountCmd = cmd
	}
}

// WithGrubInstall overrides the default bootloader installer command.
func WithGrubInstall(cmd []string) Options {
	return func(o *options) {
		o.grubInstallCmd = cmd
	}
}

// WithGrubMkconfig overrides the default bootloader config generator command.
func WithGrubMkconfig(cmd []string) Options {
	return func(o *options) {
		o.grubMkconfigCmd = cmd
	}
}

// WithTheme overrides the default theme generator command.
func WithTheme(cmd []string) Options {
	return func(o *options) {
		o.themeCmd = cmd
	}
}

// New returns a Manager operating on cfg.
func New(cfg *platform.Configuration, args ...Options) Manager {
	opts := &options{
		root:            "/",
		mountCmd:        []string{"mount"},
		grubInstallCmd:  []string{"grub-install"},
		grubMkconfigCmd: []string{"grub-mkconfig"},
		themeCmd:        []string{"grub-mktheme"},
		log:             slog.Default(),
	}
	for _, opt := range args {
		opt(opts)
	}
	if opts.efiMountpoint == "" {
		opts.efiMountpoint = filepath.Join(opts.root, constants.EfiMountpoint)
	}
	if opts.initramfsPath == "" {
		opts.initramfsPath = filepath.Join(opts.root, constants.InitramfsPath)
	}
	if opts.themeDir == "" {
		opts.themeDir = filepath.Join(opts.root, constants.GrubThemeDir)
	}
	if opts.builder == nil {
		opts.builder = initramfs.New(initramfs.WithLogger(opts.log.Handler()))
	}

	return Manager{cfg: cfg, opts: *opts}
}

// Run executes the boot setup sequence. It always reaches its terminal
// state: failures are logged, recorded in the result and never propagated.
func (m Manager) Run(ctx context.Context) Result {
	var res Result

	efiMounted := m.mountESP(ctx, &res)
	m.installBootloader(ctx, &res, efiMounted)
	m.buildInitramfs(&res)
	m.applyTheme(ctx, &res)

	m.opts.log.Info("boot environment configured", "degraded", res.Degraded())
	return res
}

// mountESP mounts the firmware partition. Skipped without firmware access.
// A mount failure is tolerated: some bootloader layouts install fine
// without a separately mounted ESP, so the sequence proceeds regardless.
func (m Manager) mountESP(ctx context.Context, res *Result) bool {
	if !m.cfg.HasFirmwareAccess {
		m.opts.log.Info("no firmware access, skipping firmware partition mount")
		res.record(StepEfiMount, StatusSkipped, "no firmware access")
		return false
	}

	if err := os.MkdirAll(m.opts.efiMountpoint, 0755); err != nil {
		m.opts.log.Warn("could not create firmware mountpoint", "mountpoint", m.opts.efiMountpoint, "error", err)
		res.record(StepEfiMount, StatusFailed, err.Error())
		return false
	}

	cmd := append(m.opts.mountCmd, m.cfg.Partitions.Boot, m.opts.efiMountpoint)
	if _, stderr, err := cmdutils.RunWithTimeout(ctx, stepTimeout, cmd[0], cmd[1:]...); err != nil {
		m.opts.log.Warn("failed to mount firmware partition", "device", m.cfg.Partitions.Boot, "error", err, "stderr", stderr)
		res.record(StepEfiMount, StatusFailed, err.Error())
		return false
	}

	res.record(StepEfiMount, StatusDone, "")
	return true
}

// installBootloader installs grub for the detected firmware mode and
// regenerates its configuration. Skipped without firmware access.
func (m Manager) installBootloader(ctx context.Context, res *Result, efiMounted bool) {
	if !m.cfg.HasFirmwareAccess {
		m.opts.log.Info("no firmware access, skipping bootloader installation")
		res.record(StepBootloader, StatusSkipped, "no firmware access")
		return
	}
	if !efiMounted {
		// Attempt the install anyway, the tooling can cope in some layouts.
		m.opts.log.Debug("installing bootloader without a mounted firmware partition")
	}

	target := "--target=i386-pc"
	if m.cfg.Hardware.Firmware == hardware.UEFI {
		target = "--target=x86_64-efi"
	}

	device := m.cfg.Partitions.Boot
	if fields := strings.Fields(device); len(fields) > 0 {
		device = fields[0]
	}

	failed := ""
	cmd := append(m.opts.grubInstallCmd, target, device)
	if _, stderr, err := cmdutils.RunWithTimeout(ctx, stepTimeout, cmd[0], cmd[1:]...); err != nil {
		m.opts.log.Warn("bootloader installation failed", "device", device, "target", target, "error", err, "stderr", stderr)
		failed = err.Error()
	}

	if err := m.regenerateGrubConfig(ctx); err != nil {
		m.opts.log.Warn("bootloader configuration regeneration failed", "error", err)
		if failed == "" {
			failed = err.Error()
		}
	}

	if failed != "" {
		res.record(StepBootloader, StatusFailed, failed)
		return
	}
	res.record(StepBootloader, StatusDone, "")
}

// buildInitramfs always runs; a failed build is a degraded-boot condition.
func (m Manager) buildInitramfs(res *Result) {
	if err := m.opts.builder.Build(m.opts.initramfsPath); err != nil {
		m.opts.log.Warn("failed to build initramfs", "target", m.opts.initramfsPath, "error", err)
		res.record(StepInitramfs, StatusFailed, err.Error())
		return
	}
	res.record(StepInitramfs, StatusDone, "")
}

// applyTheme installs the managed-mode bootloader skin. Only runs when the
// restricted-mode sentinel exists.
func (m Manager) applyTheme(ctx context.Context, res *Result) {
	if !fileutils.Exists(filepath.Join(m.opts.root, constants.RestrictedModeSentinel)) {
		m.opts.log.Debug("restricted mode not enabled, skipping boot theme")
		res.record(StepTheme, StatusSkipped, "restricted mode not enabled")
		return
	}

	cmd := append(m.opts.themeCmd, "-o", m.opts.themeDir, "-t", "education", "-i", "fonts")
	if _, stderr, err := cmdutils.RunWithTimeout(ctx, stepTimeout, cmd[0], cmd[1:]...); err != nil {
		m.opts.log.Warn("boot theme generation failed", "error", err, "stderr", stderr)
		res.record(StepTheme, StatusFailed, err.Error())
		return
	}

	if err := m.setGrubTheme(filepath.Join(constants.GrubThemeDir, "theme.txt")); err != nil {
		m.opts.log.Warn("could not point bootloader at theme", "error", err)
		res.record(StepTheme, StatusFailed, err.Error())
		return
	}

	if err := m.regenerateGrubConfig(ctx); err != nil {
		m.opts.log.Warn("bootloader configuration regeneration failed", "error", err)
		res.record(StepTheme, StatusFailed, err.Error())
		return
	}

	res.record(StepTheme, StatusDone, "")
}

func (m Manager) regenerateGrubConfig(ctx context.Context) error {
	cmd := append(m.opts.grubMkconfigCmd, "-o", filepath.Join(m.opts.root, constants.GrubConfigPath))
	_, _, err := cmdutils.RunWithTimeout(ctx, stepTimeout, cmd[0], cmd[1:]...)
	return err
}
