// Package bootid manages the durable boot identity of a machine: the
// persistent boot signing key and the boot/root partition assignment.
package bootid

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ubuntu/decorate"

	"github.com/josiahkernel/provision/internal/fileutils"
)

// LoadOrCreateKey returns the PEM serialized boot signing key stored at path.
// When no key exists yet, a fresh EC P-256 private key is generated, written
// as an unencrypted PKCS#8 container and returned. An existing key is
// returned verbatim without validation: parse errors are deferred to
// whoever signs with it.
//
// It fails only when the key can neither be read nor created. Callers are
// expected to treat that as a degraded, unsigned-boot state rather than
// aborting.
func LoadOrCreateKey(path string) (key []byte, err error) {
	defer decorate.OnError(&err, "could not load or create boot key")

	key, err = os.ReadFile(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		// The key exists but is unreadable. Never overwrite it.
		return nil, err
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("could not serialize key: %v", err)
	}
	key = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := fileutils.AtomicWrite(path, key); err != nil {
		return nil, err
	}

	return key, nil
}

// PartitionAssignment names the boot and root block devices for this run.
type PartitionAssignment struct {
	Boot string `json:"boot"`
	Root string `json:"root"`
}

// Options is the variadic options available to ResolvePartitions.
type Options func(*options)

type options struct {
	blkidCmd    []string
	defaultBoot string
	defaultRoot string
	log         *slog.Logger
}

// WithLogger overrides the default logger.
func WithLogger(logger slog.Handler) Options {
	return func(o *options) {
		o.log = slog.New(logger)
	}
}
