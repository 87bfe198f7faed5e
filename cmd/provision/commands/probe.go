package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josiahkernel/provision/internal/hardware"
)

func installProbeCmd(app *App) {
	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe the hardware and print the snapshot",
		Long: `Probes the host hardware and prints the resulting snapshot as JSON.
Nothing on the system is modified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			collector := hardware.New(hardware.WithRoot(app.config.Root))
			info, err := collector.Collect()
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("could not serialize snapshot: %v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	app.cmd.AddCommand(probeCmd)
}
