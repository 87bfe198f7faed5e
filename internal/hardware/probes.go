package hardware

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaypipes/ghw"
	"golang.org/x/sys/unix"

	"github.com/josiahkernel/provision/internal/cmdutils"
	"github.com/josiahkernel/provision/internal/fileutils"
)

const probeTimeout = 15 * time.Second

// collectCPU reads the CPU model from cpuinfo. An unreadable file or a
// missing model name is an error, the caller treats it as fatal.
func (c Collector) collectCPU() (string, error) {
	f, err := os.Open(filepath.Join(c.opts.root, "proc/cpuinfo"))
	if err != nil {
		return "", fmt.Errorf("failed to read cpuinfo: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "model name") {
			continue
		}

		_, model, found := strings.Cut(line, ":")
		if model = strings.TrimSpace(model); found && model != "" {
			return model, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to scan cpuinfo: %v", err)
	}

	return "", fmt.Errorf("cpuinfo has no model name")
}

// collectRAM returns the usable memory size in GiB.
func (c Collector) collectRAM() (float64, error) {
	mem, err := c.opts.memoryInfo(ghw.WithChroot(c.opts.root), ghw.WithDisableWarnings())
	if err != nil {
		return 0, fmt.Errorf("failed to read memory info: %v", err)
	}
	if mem.TotalUsableBytes <= 0 {
		return 0, fmt.Errorf("memory info reports no usable memory")
	}

	return float64(mem.TotalUsableBytes) / (1 << 30), nil
}

// collectStorage returns the capacity of the root filesystem in GiB.
func (c Collector) collectStorage() (float64, error) {
	var st unix.Statfs_t
	if err := c.opts.statfs(c.opts.root, &st); err != nil {
		return 0, fmt.Errorf("statfs failed: %v", err)
	}

	return float64(st.Blocks) * float64(st.Frsize) / (1 << 30), nil
}

// collectNetwork returns the names of interfaces whose operstate is up.
func (c Collector) collectNetwork() ([]string, error) {
	ds, err := os.ReadDir(filepath.Join(c.opts.root, "sys/class/net"))
	if err != nil {
		return nil, fmt.Errorf("failed to read net directory in sysfs: %v", err)
	}

	active := []string{}
	for _, d := range ds {
		state := fileutils.ReadFileLogError(filepath.Join(c.opts.root, "sys/class/net", d.Name(), "operstate"), c.opts.log)
		if state == "up" {
			active = append(active, d.Name())
		}
	}

	return active, nil
}

// collectGPUs uses lspci to find display controllers.
func (c Collector) collectGPUs() ([]string, error) {
	stdout, stderr, err := cmdutils.RunWithTimeout(context.Background(), probeTimeout, c.opts.lspciCmd[0], c.opts.lspciCmd[1:]...)
	if err != nil {
		return nil, fmt.Errorf("failed to run lspci: %v", err)
	}
	if stderr.Len() > 0 {
		c.opts.log.Info("lspci output to stderr", "stderr", stderr)
	}

	gpus := []string{}
	for _, line := range strings.Split(stdout.String(), "\n") {
		if strings.Contains(strings.ToLower(line), "vga compatible controller") {
			gpus = append(gpus, strings.TrimSpace(line))
		}
	}

	return gpus, nil
}

// collectUSB uses lsusb to list attached USB devices.
func (c Collector) collectUSB() ([]string, error) {
	stdout, stderr, err := cmdutils.RunWithTimeout(context.Background(), probeTimeout, c.opts.lsusbCmd[0], c.opts.lsusbCmd[1:]...)
	if err != nil {
		return nil, fmt.Errorf("failed to run lsusb: %v", err)
	}
	if stderr.Len() > 0 {
		c.opts.log.Info("lsusb output to stderr", "stderr", stderr)
	}

	devices := []string{}
	for _, line := range strings.Split(stdout.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			devices = append(devices, line)
		}
	}

	return devices, nil
}

// collectFirmwareMode reports UEFI when the kernel exposes efivars.
func (c Collector) collectFirmwareMode() FirmwareMode {
	if fileutils.Exists(filepath.Join(c.opts.root, "sys/firmware/efi")) {
		return UEFI
	}
	return BIOS
}
