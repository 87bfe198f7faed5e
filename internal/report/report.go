// Package report compiles and persists the outcome of a provisioning run.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ubuntu/decorate"

	"github.com/josiahkernel/provision/internal/bootid"
	"github.com/josiahkernel/provision/internal/bootmgr"
	"github.com/josiahkernel/provision/internal/constants"
	"github.com/josiahkernel/provision/internal/fileutils"
	"github.com/josiahkernel/provision/internal/hardware"
	"github.com/josiahkernel/provision/internal/platform"
)

// Report is the persisted record of one provisioning run.
type Report struct {
	RunID       string                     `json:"runId"`
	CompletedAt time.Time                  `json:"completedAt"`
	Hardware    hardware.Info              `json:"hardware"`
	Partitions  bootid.PartitionAssignment `json:"partitions"`
	SignedBoot  bool                       `json:"signedBoot"`
	SafeMode    bool                       `json:"safeMode"`
	TPMPresent  bool                       `json:"tpmPresent"`
	Boot        bootmgr.Result             `json:"boot"`
}

// New compiles a report from the run's configuration and boot result.
func New(cfg *platform.Configuration, boot bootmgr.Result) Report {
	return Report{
		RunID:       cfg.RunID,
		CompletedAt: time.Now(),
		Hardware:    cfg.Hardware,
		Partitions:  cfg.Partitions,
		SignedBoot:  cfg.SignedBoot(),
		SafeMode:    cfg.SafeMode,
		TPMPresent:  cfg.TPMPresent,
		Boot:        boot,
	}
}

// Write persists the report as JSON under dir, named after the run ID, and
// returns the written path.
func Write(dir string, r Report) (path string, err error) {
	defer decorate.OnError(&err, "report write failed")

	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}

	path = filepath.Join(dir, r.RunID+constants.ReportExtension)
	if err := fileutils.AtomicWrite(path, data); err != nil {
		return "", err
	}

	return path, nil
}
