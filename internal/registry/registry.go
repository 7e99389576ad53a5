// Package registry hands out a shared transport handle to independently
// mounted chat consumers. The physical connection is reference-counted:
// the first acquire dials, the last release tears down, and everything
// in between shares one socket.
package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tradeguard/chatsync/internal/config"
	"github.com/tradeguard/chatsync/internal/stats"
	"github.com/tradeguard/chatsync/internal/transport"
)

const connectTimeout = 10 * time.Second

type Registry struct {
	log   *log.Logger
	cfg   *config.Config
	stats stats.StatsProvider

	mu     sync.Mutex
	refs   int
	handle *transport.Handle

	// dial is replaceable in tests.
	dial func(token string) (*transport.Handle, error)
}

func NewRegistry(logger *log.Logger, cfg *config.Config, sp stats.StatsProvider) *Registry {
	r := &Registry{
		log:   logger,
		cfg:   cfg,
		stats: sp,
	}
	r.dial = r.dialTransport

	return r
}

func (r *Registry) dialTransport(token string) (*transport.Handle, error) {
	h, err := transport.NewHandle(r.cfg.ServerURL, token, r.log, transport.Options{
		ReconnectAttempts: r.cfg.ReconnectAttempts,
		ReconnectDelay:    r.cfg.ReconnectDelay,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := h.Connect(ctx); err != nil {
		h.Close()
		return nil, err
	}

	h.OnReconnect(func() {
		r.stats.Incr(stats.MetricReconnects)
	})

	return h, nil
}

// Ref is one consumer's hold on the shared transport. Release is
// idempotent, so a double release from a re-rendering caller cannot
// decrement the refcount twice.
type Ref struct {
	reg     *Registry
	handle  *transport.Handle
	release sync.Once
}

func (ref *Ref) Handle() *transport.Handle {
	return ref.handle
}

func (ref *Ref) Release() {
	ref.release.Do(func() {
		ref.reg.releaseOne()
	})
}

// Acquire returns a reference to the shared transport, dialing a fresh
// connection only when no live one exists.
func (r *Registry) Acquire(token string) (*Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		h, err := r.dial(token)
		if err != nil {
			return nil, fmt.Errorf("acquire transport: %w", err)
		}
		r.handle = h
		r.log.Println("opened shared transport")
	}

	r.refs++
	return &Ref{reg: r, handle: r.handle}, nil
}

func (r *Registry) releaseOne() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refs == 0 {
		return
	}

	r.refs--
	if r.refs == 0 && r.handle != nil {
		r.log.Println("last consumer detached, closing shared transport")
		r.handle.Close()
		r.handle = nil
	}
}

// Refs reports the number of active consumers.
func (r *Registry) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

// Open reports whether a live shared transport exists.
func (r *Registry) Open() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle != nil
}
