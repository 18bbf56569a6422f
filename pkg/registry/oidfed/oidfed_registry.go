// Package oidfed adapts a pkg/facade.Facade into the registry.TrustRegistry
// interface, so OpenID Federation trust resolution can be composed alongside
// other trust registries (ETSI TSL, DID methods, ...) under one
// registry.CompositeRegistry.
package oidfed

import (
	"context"
	"fmt"

	"github.com/SUNET/fedtrust/pkg/authzen"
	"github.com/SUNET/fedtrust/pkg/registry"
)

// Facade is the subset of *facade.Facade this registry depends on. Declared
// locally (rather than importing pkg/facade's concrete type) so pkg/facade
// need not import pkg/registry/oidfed.
type Facade interface {
	Evaluate(ctx context.Context, req *authzen.EvaluationRequest) (*authzen.EvaluationResponse, error)
	Healthy() bool
	Refresh(ctx context.Context) error
}

// OIDFedRegistry implements registry.TrustRegistry by delegating to an
// OpenID Federation Façade.
type OIDFedRegistry struct {
	facade             Facade
	requiredTrustMarks []string
	entityTypes        []string
	description        string
}

// Config holds configuration for creating an OIDFedRegistry.
type Config struct {
	// RequiredTrustMarks is an optional list of trust mark ids that must be present.
	RequiredTrustMarks []string `json:"required_trust_marks,omitempty"`

	// EntityTypes filters entities by type (e.g., "openid_provider", "openid_relying_party").
	EntityTypes []string `json:"entity_types,omitempty"`

	// Description of this registry instance.
	Description string `json:"description,omitempty"`
}

// NewOIDFedRegistry creates a new OpenID Federation trust registry wrapping f.
func NewOIDFedRegistry(f Facade, config Config) (*OIDFedRegistry, error) {
	if f == nil {
		return nil, fmt.Errorf("facade must not be nil")
	}

	description := config.Description
	if description == "" {
		description = "OpenID Federation Registry"
	}

	return &OIDFedRegistry{
		facade:             f,
		requiredTrustMarks: config.RequiredTrustMarks,
		entityTypes:        config.EntityTypes,
		description:        description,
	}, nil
}

// Name returns the registry name.
func (r *OIDFedRegistry) Name() string { return "oidfed-registry" }

// Description returns a human-readable description.
func (r *OIDFedRegistry) Description() string { return r.description }

// SupportedResourceTypes returns the resource types this registry can evaluate.
func (r *OIDFedRegistry) SupportedResourceTypes() []string {
	return []string{
		"entity",
		"openid_provider",
		"relying_party",
		"oauth_client",
		"oauth_server",
		"federation_entity",
	}
}

// Evaluate delegates to the underlying Façade's AuthZEN evaluation.
func (r *OIDFedRegistry) Evaluate(ctx context.Context, req *authzen.EvaluationRequest) (*authzen.EvaluationResponse, error) {
	return r.facade.Evaluate(ctx, req)
}

// Info returns registry information.
func (r *OIDFedRegistry) Info() registry.RegistryInfo {
	return registry.RegistryInfo{
		Name:        r.Name(),
		Type:        "openid_federation",
		Description: r.description,
	}
}

// Healthy returns true if the underlying Façade is operational.
func (r *OIDFedRegistry) Healthy() bool {
	return r.facade.Healthy()
}

// Refresh triggers an update of cached data in the underlying Façade.
func (r *OIDFedRegistry) Refresh(ctx context.Context) error {
	return r.facade.Refresh(ctx)
}
