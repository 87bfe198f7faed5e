package bootmgr_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josiahkernel/provision/internal/bootid"
	"github.com/josiahkernel/provision/internal/bootmgr"
	"github.com/josiahkernel/provision/internal/constants"
	"github.com/josiahkernel/provision/internal/hardware"
	"github.com/josiahkernel/provision/internal/platform"
	"github.com/josiahkernel/provision/internal/testutils"
)

type stubBuilder struct {
	err    error
	target string
}

func (s *stubBuilder) Build(target string) error {
	s.target = target
	return s.err
}

func TestRun(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		firmware     hardware.FirmwareMode
		boot         string
		noFirmware   bool
		sentinel     bool
		mountMode    string
		installMode  string
		mkconfigMode string
		themeMode    string
		builderErr   error

		wantStatuses     map[bootmgr.Step]bootmgr.Status
		wantDegraded     bool
		wantInstallArgs  string
		wantThemeApplied bool
	}{
		"UEFI restricted machine completes every step": {
			firmware: hardware.UEFI,
			boot:     "/dev/nvme0n1p1",
			sentinel: true,
			wantStatuses: map[bootmgr.Step]bootmgr.Status{
				bootmgr.StepEfiMount:   bootmgr.StatusDone,
				bootmgr.StepBootloader: bootmgr.StatusDone,
				bootmgr.StepInitramfs:  bootmgr.StatusDone,
				bootmgr.StepTheme:      bootmgr.StatusDone,
			},
			wantInstallArgs:  "--target=x86_64-efi /dev/nvme0n1p1",
			wantThemeApplied: true,
		},
		"BIOS machine installs the legacy bootloader": {
			firmware: hardware.BIOS,
			wantStatuses: map[bootmgr.Step]bootmgr.Status{
				bootmgr.StepEfiMount:   bootmgr.StatusDone,
				bootmgr.StepBootloader: bootmgr.StatusDone,
				bootmgr.StepInitramfs:  bootmgr.StatusDone,
				bootmgr.StepTheme:      bootmgr.StatusSkipped,
			},
			wantInstallArgs: "--target=i386-pc /dev/sda1",
		},
		"Boot device with trailing metadata is trimmed to its first token": {
			firmware: hardware.BIOS,
			boot:     "/dev/sda1 (legacy)",
			wantStatuses: map[bootmgr.Step]bootmgr.Status{
				bootmgr.StepEfiMount:   bootmgr.StatusDone,
				bootmgr.StepBootloader: bootmgr.StatusDone,
				bootmgr.StepInitramfs:  bootmgr.StatusDone,
				bootmgr.StepTheme:      bootmgr.StatusSkipped,
			},
			wantInstallArgs: "--target=i386-pc /dev/sda1",
		},
		"No firmware access skips the privileged steps": {
			firmware:   hardware.UEFI,
			noFirmware: true,
			wantStatuses: map[bootmgr.Step]bootmgr.Status{
				bootmgr.StepEfiMount:   bootmgr.StatusSkipped,
				bootmgr.StepBootloader: bootmgr.StatusSkipped,
				bootmgr.StepInitramfs:  bootmgr.StatusDone,
				bootmgr.StepTheme:      bootmgr.StatusSkipped,
			},
		},

		"Mount failure does not stop the sequence": {
			firmware:  hardware.UEFI,
			mountMode: "error",
			wantStatuses: map[bootmgr.Step]bootmgr.Status{
				bootmgr.StepEfiMount:   bootmgr.StatusFailed,
				bootmgr.StepBootloader: bootmgr.StatusDone,
				bootmgr.StepInitramfs:  bootmgr.StatusDone,
				bootmgr.StepTheme:      bootmgr.StatusSkipped,
			},
			wantDegraded:    true,
			wantInstallArgs: "--target=x86_64-efi /dev/sda1",
		},
		"Bootloader installation failure degrades the run": {
			firmware:    hardware.BIOS,
			installMode: "error",
			wantStatuses: map[bootmgr.Step]bootmgr.Status{
				bootmgr.StepEfiMount:   bootmgr.StatusDone,
				bootmgr.StepBootloader: bootmgr.StatusFailed,
				bootmgr.StepInitramfs:  bootmgr.StatusDone,
				bootmgr.StepTheme:      bootmgr.StatusSkipped,
			},
			wantDegraded: true,
		},
		"Config regeneration failure degrades the bootloader step": {
			firmware:     hardware.BIOS,
			mkconfigMode: "error",
			wantStatuses: map[bootmgr.Step]bootmgr.Status{
				bootmgr.StepEfiMount:   bootmgr.StatusDone,
				bootmgr.StepBootloader: bootmgr.StatusFailed,
				bootmgr.StepInitramfs:  bootmgr.StatusDone,
				bootmgr.StepTheme:      bootmgr.StatusSkipped,
			},
			wantDegraded: true,
		},
		"Image build failure degrades the run": {
			firmware:   hardware.BIOS,
			builderErr: fmt.Errorf("requested error"),
			wantStatuses: map[bootmgr.Step]bootmgr.Status{
				bootmgr.StepEfiMount:   bootmgr.StatusDone,
				bootmgr.StepBootloader: bootmgr.StatusDone,
				bootmgr.StepInitramfs:  bootmgr.StatusFailed,
				bootmgr.StepTheme:      bootmgr.StatusSkipped,
			},
			wantDegraded: true,
		},
		"Theme generation failure degrades the run": {
			firmware:  hardware.UEFI,
			sentinel:  true,
			themeMode: "error",
			wantStatuses: map[bootmgr.Step]bootmgr.Status{
				bootmgr.StepEfiMount:   bootmgr.StatusDone,
				bootmgr.StepBootloader: bootmgr.StatusDone,
				bootmgr.StepInitramfs:  bootmgr.StatusDone,
				bootmgr.StepTheme:      bootmgr.StatusFailed,
			},
			wantDegraded: true,
		},
		"Every step failing still yields a complete result": {
			firmware:     hardware.UEFI,
			sentinel:     true,
			mountMode:    "error",
			installMode:  "error",
			mkconfigMode: "error",
			themeMode:    "error",
			builderErr:   fmt.Errorf("requested error"),
			wantStatuses: map[bootmgr.Step]bootmgr.Status{
				bootmgr.StepEfiMount:   bootmgr.StatusFailed,
				bootmgr.StepBootloader: bootmgr.StatusFailed,
				bootmgr.StepInitramfs:  bootmgr.StatusFailed,
				bootmgr.StepTheme:      bootmgr.StatusFailed,
			},
			wantDegraded: true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			if tc.sentinel {
				require.NoError(t, os.MkdirAll(filepath.Join(root, "etc/default"), 0750), "setup: could not create etc dir")
				require.NoError(t, os.WriteFile(filepath.Join(root, "etc/student-mode"), []byte{}, 0600), "setup: could not create sentinel")
			}
			if tc.boot == "" {
				tc.boot = constants.DefaultBootPartition
			}
			if tc.mountMode == "" {
				tc.mountMode = "regular"
			}
			if tc.installMode == "" {
				tc.installMode = "regular"
			}
			if tc.mkconfigMode == "" {
				tc.mkconfigMode = "regular"
			}
			if tc.themeMode == "" {
				tc.themeMode = "regular"
			}

			installArgs := filepath.Join(root, "grub-install.args")
			cfg := &platform.Configuration{
				Hardware:          hardware.Info{Firmware: tc.firmware},
				Partitions:        bootid.PartitionAssignment{Boot: tc.boot, Root: constants.DefaultRootPartition},
				HasFirmwareAccess: !tc.noFirmware,
			}
			builder := &stubBuilder{err: tc.builderErr}

			m := bootmgr.New(cfg,
				bootmgr.WithRoot(root),
				bootmgr.WithBuilder(builder),
				bootmgr.WithMount(testutils.SetupFakeCmdArgs("TestFakeBootCmd", tc.mountMode, "-")),
				bootmgr.WithGrubInstall(testutils.SetupFakeCmdArgs("TestFakeBootCmd", tc.installMode, installArgs)),
				bootmgr.WithGrubMkconfig(testutils.SetupFakeCmdArgs("TestFakeBootCmd", tc.mkconfigMode, "-")),
				bootmgr.WithTheme(testutils.SetupFakeCmdArgs("TestFakeBootCmd", tc.themeMode, "-")))

			res := m.Run(context.Background())

			require.Len(t, res.Steps, 4, "every step should be accounted for")
			got := make(map[bootmgr.Step]bootmgr.Status, len(res.Steps))
			for _, s := range res.Steps {
				got[s.Step] = s.Status
			}
			assert.Equal(t, tc.wantStatuses, got, "unexpected step outcomes")
			assert.Equal(t, tc.wantDegraded, res.Degraded(), "unexpected degraded state")

			assert.Equal(t, filepath.Join(root, constants.InitramfsPath), builder.target, "unexpected initramfs target")

			if tc.wantInstallArgs != "" {
				recorded, err := os.ReadFile(installArgs)
				require.NoError(t, err, "bootloader installer should have been invoked")
				assert.Equal(t, tc.wantInstallArgs, strings.TrimSpace(string(recorded)), "unexpected bootloader installer arguments")
			}

			defaults := filepath.Join(root, constants.GrubDefaultsPath)
			if tc.wantThemeApplied {
				content, err := os.ReadFile(defaults)
				require.NoError(t, err, "bootloader defaults should have been written")
				assert.Contains(t, string(content), "GRUB_THEME="+filepath.Join(constants.GrubThemeDir, "theme.txt"),
					"defaults should point at the installed theme")
			} else {
				assert.NoFileExists(t, defaults, "defaults should not be touched when the theme does not apply")
			}
		})
	}
}

func TestRunPreservesGrubDefaults(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc/default"), 0750), "setup: could not create etc dir")
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc/student-mode"), []byte{}, 0600), "setup: could not create sentinel")

	defaults := filepath.Join(root, constants.GrubDefaultsPath)
	seed := "GRUB_TIMEOUT=5\nGRUB_CMDLINE_LINUX_DEFAULT=\"quiet splash\"\n"
	require.NoError(t, os.WriteFile(defaults, []byte(seed), 0600), "setup: could not seed bootloader defaults")

	cfg := &platform.Configuration{
		Hardware:          hardware.Info{Firmware: hardware.UEFI},
		Partitions:        bootid.PartitionAssignment{Boot: constants.DefaultBootPartition, Root: constants.DefaultRootPartition},
		HasFirmwareAccess: true,
	}
	m := bootmgr.New(cfg,
		bootmgr.WithRoot(root),
		bootmgr.WithBuilder(&stubBuilder{}),
		bootmgr.WithMount(testutils.SetupFakeCmdArgs("TestFakeBootCmd", "regular", "-")),
		bootmgr.WithGrubInstall(testutils.SetupFakeCmdArgs("TestFakeBootCmd", "regular", "-")),
		bootmgr.WithGrubMkconfig(testutils.SetupFakeCmdArgs("TestFakeBootCmd", "regular", "-")),
		bootmgr.WithTheme(testutils.SetupFakeCmdArgs("TestFakeBootCmd", "regular", "-")))

	res := m.Run(context.Background())
	require.False(t, res.Degraded(), "run should not be degraded")

	content, err := os.ReadFile(defaults)
	require.NoError(t, err, "bootloader defaults should still exist")

	assert.Contains(t, string(content), "GRUB_TIMEOUT=5", "unrelated keys should be carried over")
	assert.Contains(t, string(content), `GRUB_CMDLINE_LINUX_DEFAULT="quiet splash"`, "quoted values should stay quoted")
	assert.Contains(t, string(content), "GRUB_THEME="+filepath.Join(constants.GrubThemeDir, "theme.txt"), "theme should be set")
}

// TestFakeBootCmd is a fake command. Its first argument selects the behavior,
// the second names a file the remaining arguments get appended to ("-" to
// disable recording).
func TestFakeBootCmd(_ *testing.T) {
	args, err := testutils.GetFakeCmdArgs()
	if err != nil {
		return
	}
	defer os.Exit(0)

	mode, argfile, rest := args[0], args[1], args[2:]
	if argfile != "-" {
		f, err := os.OpenFile(argfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err == nil {
			fmt.Fprintln(f, strings.Join(rest, " "))
			f.Close()
		}
	}

	if mode == "error" {
		fmt.Fprint(os.Stderr, "Error requested in fake command")
		os.Exit(1)
	}
}
