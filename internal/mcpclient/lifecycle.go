package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/optimnow-labs/finops-assistant/internal/domain"
	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

// ErrShutDown is returned by operations on a registry that has been torn down.
var ErrShutDown = errors.New("mcpclient: registry is shut down")

// Service owns the aggregate tool registry's lifetime: one-time
// initialization, idempotent re-entry, and orderly teardown. It is the only
// component that mutates the connection list; everything else reads.
type Service struct {
	mu          sync.Mutex
	state       domain.RegistryState
	descriptors []ServerDescriptor
	dialer      Dialer
	local       []tools.Tool

	conns    []*ServerConnection // acquisition order, for reverse teardown
	registry map[string]tools.Tool
}

// NewService creates an uninitialized registry service. Local tools are
// always part of the aggregate regardless of server outcomes.
func NewService(descriptors []ServerDescriptor, dialer Dialer, local []tools.Tool) *Service {
	return &Service{
		state:       domain.RegistryUninitialized,
		descriptors: descriptors,
		dialer:      dialer,
		local:       local,
	}
}

// Initialize connects every declared server and builds the aggregate
// registry. Each server is attempted independently under its own handshake
// timeout; a failing server is logged and skipped, never aborting the
// others. Re-entering while READY or DEGRADED is a no-op; concurrent
// initialization attempts are serialized.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.RegistryReady, domain.RegistryDegraded:
		return nil
	case domain.RegistryShutDown:
		return ErrShutDown
	}
	s.state = domain.RegistryInitializing

	results := make([]*ServerConnection, len(s.descriptors))
	g, gctx := errgroup.WithContext(ctx)
	for i, desc := range s.descriptors {
		g.Go(func() error {
			conn, err := s.dialer.Connect(gctx, desc)
			if err != nil {
				slog.Warn("tool server failed, skipping", "server", desc.Name, "error", err)
				return nil
			}
			results[i] = conn
			return nil
		})
	}
	_ = g.Wait() // per-server failures never propagate

	var remote []tools.RemoteSet
	for _, conn := range results { // descriptor order
		if conn == nil {
			continue
		}
		s.conns = append(s.conns, conn)
		remote = append(remote, tools.RemoteSet{Server: conn.Descriptor.Name, Tools: conn.Tools()})
	}

	registry, err := tools.Aggregate(s.local, remote)
	if err != nil {
		// Colliding tool names are an operator error. Drop the remote
		// servers, keep the session usable on local tools, and surface
		// the collision.
		slog.Error("tool aggregation rejected, falling back to local tools", "error", err)
		s.closeConnsLocked()
		s.registry, _ = tools.Aggregate(s.local, nil)
		s.state = domain.RegistryDegraded
		return fmt.Errorf("mcpclient: initialize: %w", err)
	}
	s.registry = registry

	if len(s.conns) > 0 {
		s.state = domain.RegistryReady
	} else {
		s.state = domain.RegistryDegraded
	}
	slog.Info("tool registry initialized",
		"state", s.state,
		"servers_declared", len(s.descriptors),
		"servers_connected", len(s.conns),
		"tools", len(s.registry))
	return nil
}

// Shutdown closes all live connections in reverse order of acquisition,
// logging but not propagating individual close failures. Safe to call in any
// state; calling on an uninitialized registry is a no-op.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.RegistryShutDown {
		return
	}
	s.closeConnsLocked()
	s.registry = nil
	s.state = domain.RegistryShutDown
	slog.Info("tool registry shut down")
}

func (s *Service) closeConnsLocked() {
	for i := len(s.conns) - 1; i >= 0; i-- {
		if err := s.conns[i].Close(); err != nil {
			slog.Warn("closing tool server", "server", s.conns[i].Descriptor.Name, "error", err)
		}
	}
	s.conns = nil
}

// State returns the current lifecycle state.
func (s *Service) State() domain.RegistryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Usable reports whether the registry can serve tool calls: READY, or
// DEGRADED with a non-empty local tool set.
func (s *Service) Usable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Usable() && len(s.registry) > 0
}

// Tools returns a snapshot of the aggregate registry. Empty after shutdown,
// so stale callers fail cleanly rather than hang.
func (s *Service) Tools() map[string]tools.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]tools.Tool, len(s.registry))
	for name, t := range s.registry {
		out[name] = t
	}
	return out
}

// ConnectedServers returns the names of servers with live connections, in
// acquisition order.
func (s *Service) ConnectedServers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.conns))
	for _, c := range s.conns {
		names = append(names, c.Descriptor.Name)
	}
	return names
}

// DeclaredServers returns the configured descriptors in registry order.
func (s *Service) DeclaredServers() []ServerDescriptor {
	return s.descriptors
}
