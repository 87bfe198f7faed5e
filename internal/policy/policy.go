// Package policy applies the classroom desktop policies: safe-search DNS,
// browser hardening, default applications, the focus-mode host blocklist
// and the study timer service. Each writer is an independent best-effort
// side effect consuming the platform configuration read-only; failures are
// logged and never abort the run.
package policy

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/BurntSushi/toml"
	"github.com/ubuntu/decorate"

	"github.com/josiahkernel/provision/internal/platform"
)

// Settings are the classroom policy knobs, loaded from a TOML file.
type Settings struct {
	SafeSearch       bool     `toml:"safe_search"`
	ParentalControls bool     `toml:"parental_controls"`
	StudyMinutes     int      `toml:"study_minutes"`
	BreakMinutes     int      `toml:"break_minutes"`
	AllowedWebsites  []string `toml:"allowed_websites"`
	BlockedHosts     []string `toml:"blocked_hosts"`
}

// DefaultSettings returns the settings applied when no policy file exists.
func DefaultSettings() Settings {
	return Settings{
		SafeSearch:   true,
		StudyMinutes: 45,
		BreakMinutes: 10,
		AllowedWebsites: []string{
			"wikipedia.org",
			"khanacademy.org",
			"wolframalpha.com",
			"geeksforgeeks.org",
			"josiahkernel.org/edu",
		},
		BlockedHosts: []string{
			"facebook.com",
			"twitter.com",
			"instagram.com",
		},
	}
}

// LoadSettings reads the policy file at path. A missing file is not an
// error and yields the defaults.
func LoadSettings(path string) (s Settings, err error) {
	defer decorate.OnError(&err, "could not load policy settings")

	s = DefaultSettings()

	meta, err := toml.DecodeFile(path, &s)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return DefaultSettings(), err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		slog.Info("policy file has unknown keys", "keys", undecoded)
	}

	return s, nil
}

// Applier writes the policy files for one provisioning run.
type Applier struct {
	cfg      *platform.Configuration
	settings Settings
	opts     options
}

// Options is the variadic options available to the Applier.
type Options func(*options)

type options struct {
	root         string
	systemctlCmd []string
	timerCmd     string
	log          *slog.Logger
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

// WithSystemctl overrides the default service manager command.
func WithSystemctl(cmd []string) Options {
	return func(o *options) {
		o.systemctlCmd = cmd
	}
}

// WithTimerCmd overrides the study timer executable path.
func WithTimerCmd(path string) Options {
	return func(o *options) {
		o.timerCmd = path
	}
}

// New returns an Applier for cfg with the given settings.
func New(cfg *platform.Configuration, settings Settings, args ...Options) Applier {
	opts := &options{
		root:         "/",
		systemctlCmd: []string{"systemctl"},
		timerCmd:     "/usr/bin/study-timer",
		log:          slog.Default(),
	}
	for _, opt := range args {
		opt(opts)
	}

	return Applier{cfg: cfg, settings: settings, opts: *opts}
}
