package commands

import (
	"github.com/josiahkernel/provision/internal/bootmgr"
	"github.com/josiahkernel/provision/internal/edupkg"
	"github.com/josiahkernel/provision/internal/policy"
)

// WithBootManagerOptions appends extra options to the boot manager constructor.
func WithBootManagerOptions(opts ...bootmgr.Options) Options {
	return func(o *options) {
		o.bootmgr = append(o.bootmgr, opts...)
	}
}

// WithInstallerOptions appends extra options to the package installer constructor.
func WithInstallerOptions(opts ...edupkg.Options) Options {
	return func(o *options) {
		o.edupkg = append(o.edupkg, opts...)
	}
}

// WithPolicyOptions appends extra options to the policy applier constructor.
func WithPolicyOptions(opts ...policy.Options) Options {
	return func(o *options) {
		o.policy = append(o.policy, opts...)
	}
}
