package bootmgr

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/ubuntu/decorate"
	"gopkg.in/ini.v1"

	"github.com/josiahkernel/provision/internal/constants"
	"github.com/josiahkernel/provision/internal/fileutils"
)

func init() {
	// /etc/default/grub is sourced by shell: no padding around '='.
	ini.PrettyFormat = false
}

// setGrubTheme points GRUB_THEME in the bootloader defaults file at
// themePath through a structured read-modify-write. Unrelated keys are
// carried over untouched; a missing defaults file is created.
func (m Manager) setGrubTheme(themePath string) (err error) {
	defer decorate.OnError(&err, "could not update bootloader defaults")

	path := filepath.Join(m.opts.root, constants.GrubDefaultsPath)

	cfg, err := ini.Load(path)
	if err != nil {
		cfg = ini.Empty()
	}

	section := cfg.Section("")
	section.Key("GRUB_THEME").SetValue(themePath)

	// Values with whitespace must stay quoted for the shell.
	for _, key := range section.Keys() {
		v := key.Value()
		if strings.ContainsAny(v, " \t") && !strings.HasPrefix(v, `"`) {
			key.SetValue(`"` + v + `"`)
		}
	}

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return err
	}

	return fileutils.AtomicWrite(path, buf.Bytes())
}
