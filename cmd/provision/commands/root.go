// Package commands defines the provisioner's command line surface.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubuntu/decorate"

	"github.com/josiahkernel/provision/internal/bootmgr"
	"github.com/josiahkernel/provision/internal/cli"
	"github.com/josiahkernel/provision/internal/constants"
	"github.com/josiahkernel/provision/internal/edupkg"
	"github.com/josiahkernel/provision/internal/policy"
)

// App encapsulates the commands and the configuration of the application.
type App struct {
	cmd   *cobra.Command
	viper *viper.Viper

	config appConfig
	opts   options
}

// Options is the variadic options available to New.
type Options func(*options)

// options carries extra constructor arguments for the provisioning
// collaborators, appended after the config-derived ones.
type options struct {
	bootmgr []bootmgr.Options
	edupkg  []edupkg.Options
	policy  []policy.Options
}

// appConfig holds the fields set by flags or the configuration file.
type appConfig struct {
	Verbose int

	Root       string
	KeyPath    string
	PolicyPath string
	ReportDir  string
}

// New registers commands and returns a new App.
func New(args ...Options) (a *App, err error) {
	defer decorate.OnError(&err, "could not create app")

	a = &App{viper: viper.New()}
	for _, opt := range args {
		opt(&a.opts)
	}
	a.cmd = &cobra.Command{
		Use:   constants.CmdName + " [COMMAND]",
		Short: "Provision a school machine into a bootable, policy-compliant state",
		Long: `Probes the host hardware, derives its boot identity and sequences the
bootloader, initramfs and classroom policy setup of a freshly imaged machine.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing passed, real errors are no usage errors anymore.
			a.cmd.SilenceUsage = true

			if err := cli.InitViperConfig(constants.CmdName, cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return err
			}

			cli.SetVerbosity(a.config.Verbose)
			return nil
		},
	}
	a.viper.SetDefault("Root", "/")
	a.viper.SetDefault("KeyPath", constants.DefaultBootKeyPath())
	a.viper.SetDefault("PolicyPath", constants.DefaultPolicyPath())
	a.viper.SetDefault("ReportDir", constants.GetDefaultCachePath())

	if err := installRootFlags(a); err != nil {
		return nil, err
	}
	cli.InstallConfigFlag(a.cmd)

	installRunCmd(a)
	installProbeCmd(a)

	return a, nil
}

func installRootFlags(app *App) error {
	app.cmd.PersistentFlags().CountP("verbose", "v", "issue INFO (-v), DEBUG (-vv) output")
	app.cmd.PersistentFlags().String("root", "/", "root directory of the system to provision")
	app.cmd.PersistentFlags().String("key-path", constants.DefaultBootKeyPath(), "location of the persistent boot signing key")
	app.cmd.PersistentFlags().String("policy-path", constants.DefaultPolicyPath(), "location of the classroom policy file")
	app.cmd.PersistentFlags().String("report-dir", constants.GetDefaultCachePath(), "directory provisioning reports are written to")

	if err := app.viper.BindPFlag("Verbose", app.cmd.PersistentFlags().Lookup("verbose")); err != nil {
		return err
	}
	if err := app.viper.BindPFlag("Root", app.cmd.PersistentFlags().Lookup("root")); err != nil {
		return err
	}
	if err := app.viper.BindPFlag("KeyPath", app.cmd.PersistentFlags().Lookup("key-path")); err != nil {
		return err
	}
	if err := app.viper.BindPFlag("PolicyPath", app.cmd.PersistentFlags().Lookup("policy-path")); err != nil {
		return err
	}
	return app.viper.BindPFlag("ReportDir", app.cmd.PersistentFlags().Lookup("report-dir"))
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

// SetArgs changes the root command args. Shouldn't be in general necessary apart for integration tests.
func (a *App) SetArgs(args []string) {
	a.cmd.SetArgs(args)
}
