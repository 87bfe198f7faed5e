// Package platform assembles the configuration record every provisioning
// step consumes: the hardware snapshot, the partition assignment, the boot
// identity and the derived capability flags. The configuration is built once
// at the start of a run and is read-only afterwards.
package platform

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ubuntu/decorate"

	"github.com/josiahkernel/provision/internal/bootid"
	"github.com/josiahkernel/provision/internal/constants"
	"github.com/josiahkernel/provision/internal/fileutils"
	"github.com/josiahkernel/provision/internal/hardware"
)

// CollectorT describes a type that collects a hardware snapshot.
type CollectorT interface {
	Collect() (hardware.Info, error)
}

// Configuration is the aggregate record of a provisioning run.
// BootKey is nil when the run is degraded to unsigned boot.
type Configuration struct {
	RunID      string                     `json:"runId"`
	Hardware   hardware.Info              `json:"hardware"`
	Partitions bootid.PartitionAssignment `json:"partitions"`
	BootKey    []byte                     `json:"-"`

	TPMPresent        bool `json:"tpmPresent"`
	SafeMode          bool `json:"safeMode"`
	HasFirmwareAccess bool `json:"hasFirmwareAccess"`
}

// SignedBoot reports whether a boot identity is available for signing.
func (c *Configuration) SignedBoot() bool {
	return len(c.BootKey) > 0
}

// Options is the variadic options available to New.
type Options func(*options)

type options struct {
	root       string
	keyPath    string
	hw         CollectorT
	partitions func(hardware.FirmwareMode) bootid.PartitionAssignment
	loadKey    func(string) ([]byte, error)
	log        *slog.Logger
}

// WithLogger overrides the default logger.
func WithLogger(logger slog.Handler) Options {
	return func(o *options) {
		o.log = slog.New(logger)
	}
}

// WithRoot overrides the default root directory of the system.
func WithRoot(root string) Options {
	return func(o *options) {
		o.root = root
	}
}

// WithKeyPath overrides the canonical boot key location.
func WithKeyPath(path string) Options {
	return func(o *options) {
		o.keyPath = path
	}
}

// WithHardware overrides the default hardware collector.
func WithHardware(hw CollectorT) Options {
	return func(o *options) {
		o.hw = hw
	}
}

// New builds the platform configuration for this provisioning run.
// The only fatal condition is the hardware probe failing on the CPU; a
// missing boot identity degrades the run to unsigned boot with a warning.
func New(args ...Options) (cfg *Configuration, err error) {
	defer decorate.OnError(&err, "could not build platform configuration")

	opts := &options{
		root:    "/",
		keyPath: constants.DefaultBootKeyPath(),
		partitions: func(mode hardware.FirmwareMode) bootid.PartitionAssignment {
			return bootid.ResolvePartitions(mode)
		},
		loadKey: bootid.LoadOrCreateKey,
		log:     slog.Default(),
	}
	for _, opt := range args {
		opt(opts)
	}
	if opts.hw == nil {
		opts.hw = hardware.New(hardware.WithRoot(opts.root), hardware.WithLogger(opts.log.Handler()))
	}

	hwInfo, err := opts.hw.Collect()
	if err != nil {
		return nil, err
	}

	cfg = &Configuration{
		RunID:      uuid.NewString(),
		Hardware:   hwInfo,
		Partitions: opts.partitions(hwInfo.Firmware),

		TPMPresent:        fileutils.Exists(filepath.Join(opts.root, "dev/tpm0")),
		SafeMode:          true,
		HasFirmwareAccess: hasFirmwareAccess(opts.root, opts.log),
	}

	cfg.BootKey, err = opts.loadKey(opts.keyPath)
	if err != nil {
		opts.log.Warn("boot identity unavailable, continuing with unsigned boot", "error", err)
		cfg.BootKey = nil
	}

	opts.log.Debug("platform configuration built", "run", cfg.RunID, "firmware", cfg.Hardware.Firmware,
		"boot", cfg.Partitions.Boot, "root", cfg.Partitions.Root, "signed", cfg.SignedBoot())

	return cfg, nil
}

// hasFirmwareAccess reports whether the environment exposes real firmware.
// Virtualization shims such as WSL advertise themselves in the kernel
// version string and get the bootloader steps skipped. An unreadable
// version string assumes real firmware.
func hasFirmwareAccess(root string, log *slog.Logger) bool {
	version := fileutils.ReadFileLogError(filepath.Join(root, "proc/version"), log)

	v := strings.ToLower(version)
	return !strings.Contains(v, "microsoft") && !strings.Contains(v, "wsl")
}
