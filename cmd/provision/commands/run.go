package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/josiahkernel/provision/internal/bootmgr"
	"github.com/josiahkernel/provision/internal/edupkg"
	"github.com/josiahkernel/provision/internal/platform"
	"github.com/josiahkernel/provision/internal/policy"
	"github.com/josiahkernel/provision/internal/report"
)

func installRunCmd(app *App) {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full provisioning sequence",
		Long: `Probes the hardware, derives the boot identity, configures the boot
environment and applies the classroom policies. Only an undetectable CPU
aborts the run; every other failure degrades it and is reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runProvision(cmd.Context())
		},
	}

	app.cmd.AddCommand(runCmd)
}

func (a App) runProvision(ctx context.Context) error {
	cfg, err := platform.New(
		platform.WithRoot(a.config.Root),
		platform.WithKeyPath(a.config.KeyPath),
	)
	if err != nil {
		return err
	}

	slog.Info("platform configuration ready",
		"run", cfg.RunID,
		"firmware", cfg.Hardware.Firmware,
		"cpu", cfg.Hardware.CPU,
		"ramGiB", cfg.Hardware.RAMGiB,
		"signedBoot", cfg.SignedBoot())

	bootOpts := append([]bootmgr.Options{bootmgr.WithRoot(a.config.Root)}, a.opts.bootmgr...)
	boot := bootmgr.New(cfg, bootOpts...)
	result := boot.Run(ctx)

	installer := edupkg.New(a.opts.edupkg...)
	installer.InstallDefaults(ctx)
	installer.InstallPeripheralDrivers(ctx, cfg.Hardware.Peripherals)

	settings, err := policy.LoadSettings(a.config.PolicyPath)
	if err != nil {
		slog.Warn("invalid policy file, falling back to defaults", "error", err)
	}
	policyOpts := append([]policy.Options{policy.WithRoot(a.config.Root)}, a.opts.policy...)
	applier := policy.New(cfg, settings, policyOpts...)
	applier.Apply(ctx)
	applier.StartStudyTimer()

	path, err := report.Write(a.config.ReportDir, report.New(cfg, result))
	if err != nil {
		slog.Warn("could not persist provisioning report", "error", err)
		return nil
	}
	slog.Info("provisioning complete", "report", path, "degraded", result.Degraded())

	return nil
}
