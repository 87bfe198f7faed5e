package bootid

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/josiahkernel/provision/internal/cmdutils"
	"github.com/josiahkernel/provision/internal/constants"
	"github.com/josiahkernel/provision/internal/hardware"
)

const lookupTimeout = 15 * time.Second

func defaultOptions() *options {
	return &options{
		blkidCmd:    []string{"blkid"},
		defaultBoot: constants.DefaultBootPartition,
		defaultRoot: constants.DefaultRootPartition,
		log:         slog.Default(),
	}
}

// ResolvePartitions derives the boot and root device assignment from the
// firmware mode. UEFI machines get a label lookup for the EFI and ROOT
// partitions; a lookup that fails or matches nothing falls back to the
// legacy defaults, as does legacy BIOS firmware. It never fails and both
// devices are always non-empty.
func ResolvePartitions(mode hardware.FirmwareMode, args ...Options) PartitionAssignment {
	opts := defaultOptions()
	for _, opt := range args {
		opt(opts)
	}

	assignment := PartitionAssignment{
		Boot: opts.defaultBoot,
		Root: opts.defaultRoot,
	}

	if mode != hardware.UEFI {
		return assignment
	}

	if boot := opts.lookupLabel("EFI"); boot != "" {
		assignment.Boot = boot
	}
	if root := opts.lookupLabel("ROOT"); root != "" {
		assignment.Root = root
	}

	return assignment
}

// lookupLabel asks blkid for the device carrying label. Any subprocess
// failure or empty output resolves to "" so the caller falls back.
func (o options) lookupLabel(label string) string {
	cmd := append(o.blkidCmd, "-L", label)

	stdout, stderr, err := cmdutils.RunWithTimeout(context.Background(), lookupTimeout, cmd[0], cmd[1:]...)
	if err != nil {
		o.log.Warn("partition label lookup failed", "label", label, "error", err)
		return ""
	}
	if stderr.Len() > 0 {
		o.log.Info("blkid output to stderr", "label", label, "stderr", stderr)
	}

	return strings.TrimSpace(stdout.String())
}
