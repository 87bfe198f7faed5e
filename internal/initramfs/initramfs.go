// Package initramfs assembles the minimal early-boot root filesystem image:
// a handful of required executables plus a generated init script, packed as
// a gzip compressed newc cpio archive.
package initramfs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cavaliergopher/cpio"
	"github.com/klauspost/compress/gzip"
	"github.com/ubuntu/decorate"
)

// initScript mounts the kernel pseudo-filesystems and a device tree before
// handing control to the real init.
const initScript = `#!/bin/busybox sh
mount -t proc proc /proc
mount -t sysfs sysfs /sys
mount -t devtmpfs devtmpfs /dev
exec /sbin/init
`

// Builder handles dependencies for assembling the early-boot image.
type Builder struct {
	opts options
}

// Options is the variadic options available to the Builder.
type Options func(*options)

type options struct {
	binDir      string
	executables []string
	log         *slog.Logger
}

// WithLogger overrides the default logger.
func WithLogger(logger slog.Handler) Options {
	return func(o *options) {
		o.log = slog.New(logger)
	}
}

// WithBinDir overrides the directory the early-boot executables are copied from.
func WithBinDir(dir string) Options {
	return func(o *options) {
		o.binDir = dir
	}
}

// New returns a new Builder.
func New(args ...Options) Builder {
	opts := &options{
		binDir:      "/bin",
		executables: []string{"busybox", "modprobe", "mount"},
		log:         slog.Default(),
	}
	for _, opt := range args {
		opt(opts)
	}

	return Builder{opts: *opts}
}

// Build produces the compressed image at target. A missing executable only
// reduces the image's capability and is logged, the build carries on. The
// returned error covers staging and archiving failures; callers treat it as
// a degraded-boot condition, not a provisioning abort.
func (b Builder) Build(target string) (err error) {
	defer decorate.OnError(&err, "initramfs build failed")

	staging, err := os.MkdirTemp("", "initramfs-")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			b.opts.log.Warn("could not clean up staging directory", "dir", staging, "error", err)
		}
	}()

	for _, exe := range b.opts.executables {
		src := filepath.Join(b.opts.binDir, exe)
		if err := copyFile(src, filepath.Join(staging, exe), 0755); err != nil {
			b.opts.log.Warn("early-boot executable missing, image will have reduced capability", "executable", exe, "error", err)
		}
	}

	if err := os.WriteFile(filepath.Join(staging, "init"), []byte(initScript), 0755); err != nil {
		return fmt.Errorf("could not write init script: %v", err)
	}

	return b.archive(staging, target)
}

// archive streams the staging directory into a gzip compressed newc cpio
// archive, written next to target and renamed into place once complete.
func (b Builder) archive(staging, target string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), "initrd-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			b.opts.log.Warn("could not remove temporary image", "file", tmp.Name(), "error", err)
		}
	}()

	gz := gzip.NewWriter(tmp)
	cw := cpio.NewWriter(gz)

	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := addEntry(cw, staging, entry.Name()); err != nil {
			return fmt.Errorf("could not archive %s: %v", entry.Name(), err)
		}
	}

	if err := cw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), target)
}

func addEntry(cw *cpio.Writer, dir, name string) error {
	path := filepath.Join(dir, name)

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}

	hdr, err := cpio.FileInfoHeader(fi, "")
	if err != nil {
		return err
	}
	hdr.Name = name

	if err := cw.WriteHeader(hdr); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(cw, f)
	return err
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}
