package hardware

import (
	"github.com/jaypipes/ghw"
	"golang.org/x/sys/unix"
)

// WithLspci overrides the default GPU listing command.
func WithLspci(cmd []string) Options {
	return func(o *options) {
		o.lspciCmd = cmd
	}
}

// WithLsusb overrides the default USB listing command.
func WithLsusb(cmd []string) Options {
	return func(o *options) {
		o.lsusbCmd = cmd
	}
}

// WithLpstat overrides the default print spooler query command.
func WithLpstat(cmd []string) Options {
	return func(o *options) {
		o.lpstatCmd = cmd
	}
}

// WithStatfs overrides the default filesystem stat syscall.
func WithStatfs(statfs func(path string, buf *unix.Statfs_t) error) Options {
	return func(o *options) {
		o.statfs = statfs
	}
}

// WithMemoryInfo overrides the default memory prober.
func WithMemoryInfo(f func(opts ...*ghw.WithOption) (*ghw.MemoryInfo, error)) Options {
	return func(o *options) {
		o.memoryInfo = f
	}
}
