// Package constants defines the constants used across the provisioner.
// It also provides utility functions to get the default state paths.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "josiah-provision"

	// DefaultAppFolder is the name of the default root folder.
	DefaultAppFolder = "josiah-kernel"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// BootKeyFileName is the base name of the persistent boot signing key.
	BootKeyFileName = "boot_key.pem"

	// PolicyFileName is the base name of the classroom policy settings file.
	PolicyFileName = "policy.toml"

	// ReportExtension is the extension of provisioning run reports.
	ReportExtension = ".json"

	// DefaultBootPartition is the boot device used when label lookup fails
	// or the machine boots in legacy BIOS mode.
	DefaultBootPartition = "/dev/sda1"

	// DefaultRootPartition is the root device counterpart of DefaultBootPartition.
	DefaultRootPartition = "/dev/sda2"

	// EfiMountpoint is where the firmware partition gets mounted.
	EfiMountpoint = "/boot/efi"

	// InitramfsPath is where the generated early-boot image is written.
	InitramfsPath = "/boot/initrd.img"

	// GrubConfigPath is the generated bootloader configuration.
	GrubConfigPath = "/boot/grub/grub.cfg"

	// GrubDefaultsPath is the key-value file feeding grub-mkconfig.
	GrubDefaultsPath = "/etc/default/grub"

	// GrubThemeDir is where the managed-mode bootloader theme is installed.
	GrubThemeDir = "/boot/grub/themes/student"

	// RestrictedModeSentinel gates the managed-mode boot customization.
	// Only its existence matters, its content is never read.
	RestrictedModeSentinel = "/etc/student-mode"
)

// DefaultBootKeyPath is the canonical location of the boot signing key.
func DefaultBootKeyPath() string {
	return filepath.Join("/etc", DefaultAppFolder, BootKeyFileName)
}

// DefaultPolicyPath is the canonical location of the classroom policy file.
func DefaultPolicyPath() string {
	return filepath.Join("/etc", DefaultAppFolder, PolicyFileName)
}

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// GetDefaultCachePath is the default directory for provisioning run reports.
func GetDefaultCachePath(opts ...option) string {
	o := options{baseDir: os.UserCacheDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// getBaseDir is a helper function to handle the case where the baseDir function
// returns an error, and instead return an empty string.
func getBaseDir(baseDirFunc func() (string, error)) string {
	dir, err := baseDirFunc()
	if err != nil {
		return ""
	}
	return dir
}
