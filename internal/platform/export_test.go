package platform

import (
	"github.com/josiahkernel/provision/internal/bootid"
	"github.com/josiahkernel/provision/internal/hardware"
)

// WithPartitionResolver overrides the default partition resolution.
func WithPartitionResolver(f func(hardware.FirmwareMode) bootid.PartitionAssignment) Options {
	return func(o *options) {
		o.partitions = f
	}
}

// WithKeyLoader overrides the default boot key loader.
func WithKeyLoader(f func(string) ([]byte, error)) Options {
	return func(o *options) {
		o.loadKey = f
	}
}
