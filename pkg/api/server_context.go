package api

import (
	"sync"
	"time"

	"github.com/SUNET/fedtrust/pkg/facade"
	"github.com/SUNET/fedtrust/pkg/logging"
	"github.com/SUNET/fedtrust/pkg/registry"
)

// ServerContext holds the shared state for the API server. It provides
// thread-safe access to the Federation Entity Façade and the trust
// registry used for AuthZEN evaluation requests.
//
// The ServerContext always has a configured Logger for API operations. If
// none is provided during initialization, a default logger is used.
type ServerContext struct {
	mu           sync.RWMutex
	Facade       *facade.Facade      // This entity's Façade; nil until configured
	Registry     registry.TrustRegistry // AuthZEN evaluation target; nil means no registry is configured
	LastResolved time.Time              // Timestamp of the last successful registry Refresh
	Logger       logging.Logger         // Logger for API operations (never nil)
	RateLimiter  *RateLimiter           // Rate limiter for API endpoints (optional)
	Metrics      *Metrics               // Prometheus metrics (optional)
	BaseURL      string                 // This entity's own id / base URL, for .well-known discovery
}

// Lock locks the ServerContext for writing.
func (s *ServerContext) Lock() {
	s.mu.Lock()
}

// Unlock unlocks the ServerContext after writing.
func (s *ServerContext) Unlock() {
	s.mu.Unlock()
}

// RLock locks the ServerContext for reading.
func (s *ServerContext) RLock() {
	s.mu.RLock()
}

// RUnlock unlocks the ServerContext after reading.
func (s *ServerContext) RUnlock() {
	s.mu.RUnlock()
}

// WithLogger returns a copy of the ServerContext with the specified logger.
func (s *ServerContext) WithLogger(logger logging.Logger) *ServerContext {
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	s.RLock()
	defer s.RUnlock()

	return &ServerContext{
		Facade:       s.Facade,
		Registry:     s.Registry,
		LastResolved: s.LastResolved,
		Logger:       logger,
		BaseURL:      s.BaseURL,
	}
}
