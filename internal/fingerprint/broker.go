// Package fingerprint derives encryption key material from the device
// identity. The material is owned by a single broker goroutine and never
// leaves it; callers only ever see PBKDF2-derived keys.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"os/user"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	derivedKeyLen    = 32
)

var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

var ErrClosed = errors.New("fingerprint broker closed")

type request struct {
	salt  []byte
	reply chan []byte
}

// Broker serves key-derivation requests over a channel. The fingerprint
// string lives only on the serve goroutine's stack.
type Broker struct {
	requests  chan request
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*config)

type config struct {
	material string
}

// WithMaterial overrides the device fingerprint. Test seam.
func WithMaterial(material string) Option {
	return func(c *config) { c.material = material }
}

func NewBroker(opts ...Option) *Broker {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.material == "" {
		cfg.material = collectMaterial()
	}

	b := &Broker{
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	go b.serve(cfg.material)
	return b
}

func (b *Broker) serve(material string) {
	for {
		select {
		case <-b.done:
			return
		case req := <-b.requests:
			req.reply <- pbkdf2.Key([]byte(material), req.salt, pbkdf2Iterations, derivedKeyLen, sha256.New)
		}
	}
}

// DeriveKey returns a 32-byte key bound to this device and the given salt.
// A different device, or a different salt, yields a different key.
func (b *Broker) DeriveKey(ctx context.Context, salt []byte) ([]byte, error) {
	req := request{
		salt:  append([]byte(nil), salt...),
		reply: make(chan []byte, 1),
	}

	select {
	case b.requests <- req:
	case <-b.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case key := <-req.reply:
		return key, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Broker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// collectMaterial assembles the device identity. None of the inputs are
// secret on their own; the derived key is only as private as the machine.
func collectMaterial() string {
	hostname, _ := os.Hostname()

	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	parts := []string{hostname, username, runtime.GOOS, runtime.GOARCH, machineID()}
	return strings.Join(parts, "|")
}

func machineID() string {
	for _, path := range machineIDPaths {
		if data, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id
			}
		}
	}
	return ""
}
