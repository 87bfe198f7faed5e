package bootid

// WithBlkid overrides the default block device identification command.
func WithBlkid(cmd []string) Options {
	return func(o *options) {
		o.blkidCmd = cmd
	}
}
