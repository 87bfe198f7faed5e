package cli_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josiahkernel/provision/internal/cli"
	"github.com/josiahkernel/provision/internal/constants"
)

func TestInitViperConfig(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		configContent string
		noConfigFile  bool

		wantErr bool
	}{
		"No configuration file only uses defaults": {noConfigFile: true},
		"Valid configuration file is loaded":       {configContent: "verbose: 2\nroot: /tmp\n"},

		"Error on invalid configuration file": {configContent: "verbose: [not yaml", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			vip := viper.New()
			cmd := &cobra.Command{
				Use:           "provision-test",
				SilenceErrors: true,
				SilenceUsage:  true,
				RunE: func(cmd *cobra.Command, args []string) error {
					return cli.InitViperConfig("provision-test", cmd, vip)
				},
			}
			configPath := cli.InstallConfigFlag(cmd)
			require.NotNil(t, configPath, "config flag should be installed")

			var args []string
			if !tc.noConfigFile {
				path := filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tc.configContent), 0600), "setup: could not write config file")
				args = append(args, "--config", path)
			}
			cmd.SetArgs(args)

			err := cmd.Execute()
			if tc.wantErr {
				require.Error(t, err, "InitViperConfig should return an error and didn't")
				return
			}
			require.NoError(t, err, "InitViperConfig should not return an error")

			if !tc.noConfigFile {
				assert.Equal(t, 2, vip.GetInt("verbose"), "config file values should be loaded")
			}
		})
	}
}

func TestSetVerbosity(t *testing.T) {
	// Global logger state, no parallel subtests.
	tests := map[string]struct {
		level int

		wantLevel slog.Level
	}{
		"Default level": {level: 0, wantLevel: constants.DefaultLogLevel},
		"Info level":    {level: 1, wantLevel: slog.LevelInfo},
		"Debug level":   {level: 2, wantLevel: slog.LevelDebug},
		"Above debug":   {level: 3, wantLevel: slog.LevelDebug},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Cleanup(func() { slog.SetLogLoggerLevel(constants.DefaultLogLevel) })

			cli.SetVerbosity(tc.level)

			assert.True(t, slog.Default().Enabled(context.Background(), tc.wantLevel), "selected level should be enabled")
			assert.False(t, slog.Default().Enabled(context.Background(), tc.wantLevel-1), "levels below the selected one should be disabled")
		})
	}
}
