// Package hardware probes the host and produces an immutable snapshot of what
// was found. Every sub-probe is best effort: a missing tool or unreadable
// kernel interface degrades the corresponding field to its zero value. The
// only fatal condition is a CPU model that cannot be determined.
package hardware

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaypipes/ghw"
	"golang.org/x/sys/unix"
)

// ErrCPUNotDetected is returned by Collect when the CPU model cannot be read.
// It is the only error Collect can return.
var ErrCPUNotDetected = errors.New("CPU not detected")

// FirmwareMode is how the machine was booted.
type FirmwareMode string

const (
	// UEFI firmware, detected through the efivars interface.
	UEFI FirmwareMode = "uefi"
	// BIOS is the legacy fallback when no efivars are exposed.
	BIOS FirmwareMode = "bios"
)

// Info is the hardware snapshot. It is never mutated after Collect returns it.
type Info struct {
	CPU         string              `json:"cpu"`
	RAMGiB      float64             `json:"ramGiB"`
	StorageGiB  float64             `json:"storageGiB"`
	Network     []string            `json:"network,omitempty"`
	GPUs        []string            `json:"gpus,omitempty"`
	USB         []string            `json:"usb,omitempty"`
	Firmware    FirmwareMode        `json:"firmware"`
	Peripherals map[string][]string `json:"peripherals,omitempty"`
}

// Collector handles dependencies for probing hardware information.
type Collector struct {
	opts options
}

// Options is the variadic options available to the Collector.
type Options func(*options)

type options struct {
	root       string
	lspciCmd   []string
	lsusbCmd   []string
	lpstatCmd  []string
	statfs     func(path string, buf *unix.Statfs_t) error
	memoryInfo func(opts ...*ghw.WithOption) (*ghw.MemoryInfo, error)
	log        *slog.Logger
}

// defaultOptions returns options for when running under a normal environment.
func defaultOptions() *options {
	return &options{
		root:       "/",
		lspciCmd:   []string{"lspci"},
		lsusbCmd:   []string{"lsusb"},
		lpstatCmd:  []string{"lpstat", "-p"},
		statfs:     unix.Statfs,
		memoryInfo: ghw.Memory,
		log:        slog.Default(),
	}
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

// New returns a new Collector.
func New(args ...Options) Collector {
	opts := defaultOptions()
	for _, opt := range args {
		opt(opts)
	}

	return Collector{opts: *opts}
}

// Collect probes the host and aggregates the findings into a snapshot.
// Only a failed CPU probe makes it fail; everything else degrades to an
// empty default with a warning.
func (c Collector) Collect() (info Info, err error) {
	c.opts.log.Debug("probing hardware")

	info.CPU, err = c.collectCPU()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrCPUNotDetected, err)
	}

	info.RAMGiB, err = c.collectRAM()
	if err != nil {
		c.opts.log.Warn("failed to probe memory", "error", err)
		info.RAMGiB = 0
	}

	info.StorageGiB, err = c.collectStorage()
	if err != nil {
		c.opts.log.Warn("failed to probe storage", "error", err)
		info.StorageGiB = 0
	}

	info.Network, err = c.collectNetwork()
	if err != nil {
		c.opts.log.Warn("failed to probe network interfaces", "error", err)
		info.Network = []string{}
	}

	info.GPUs, err = c.collectGPUs()
	if err != nil {
		c.opts.log.Warn("failed to probe GPUs", "error", err)
		info.GPUs = []string{}
	}

	info.USB, err = c.collectUSB()
	if err != nil {
		c.opts.log.Warn("failed to probe USB devices", "error", err)
		info.USB = []string{}
	}

	// The firmware probe only checks for efivars and cannot fail.
	info.Firmware = c.collectFirmwareMode()

	info.Peripherals = c.classifyPeripherals(info.USB)

	return info, nil
}
