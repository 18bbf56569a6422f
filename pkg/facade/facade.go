// Package facade implements the Federation Entity Façade (spec.md section
// 4.9): the single entry point that combines the Collector, Chain Verifier,
// Policy Engine, Trust Mark Verifier, and Statement Issuer into the handful
// of operations a federation participant's HTTP surface actually needs.
package facade

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SUNET/fedtrust/pkg/authzen"
	"github.com/SUNET/fedtrust/pkg/chainverify"
	"github.com/SUNET/fedtrust/pkg/collector"
	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/issuer"
	"github.com/SUNET/fedtrust/pkg/logging"
	"github.com/SUNET/fedtrust/pkg/registry"
	"github.com/SUNET/fedtrust/pkg/trustmark"
)

// Collector is the subset of *collector.Collector the Façade depends on.
type Collector interface {
	Collect(ctx context.Context, target federation.Identifier) *collector.Node
}

// ChainVerifier is the subset of *chainverify.Verifier the Façade depends on.
type ChainVerifier interface {
	VerifyTree(root *collector.Node) []*chainverify.VerifiedChain
}

// TrustMarkVerifier is the subset of *trustmark.Verifier the Façade depends on.
type TrustMarkVerifier interface {
	Verify(ctx context.Context, mark string, anchor federation.Identifier) (*federation.TrustMarkClaim, error)
}

// Issuer is the subset of *issuer.Issuer the Façade depends on.
type Issuer interface {
	IssueEntityConfiguration() (string, error)
	IssueSubordinateStatement(sub federation.Identifier) (string, error)
}

// metrics holds the Façade's prometheus instrumentation. New registers it
// on a private registry; WithMetrics registers it on the given Registerer
// instead (a nil Registerer creates the collectors without registering them).
type metrics struct {
	resolveTotal    *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec
	trustMarkTotal  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		resolveTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fedtrust_resolve_total",
			Help: "Total number of Resolve calls, labeled by outcome.",
		}, []string{"outcome"}),
		resolveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fedtrust_resolve_duration_seconds",
			Help:    "Resolve call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		trustMarkTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fedtrust_trust_mark_verify_total",
			Help: "Total number of trust mark verifications, labeled by outcome.",
		}, []string{"outcome"}),
	}
}

// Facade is the Federation Entity Façade: this entity's single point of
// contact with the rest of the federation.
type Facade struct {
	entityID   federation.Identifier
	collector  Collector
	chains     ChainVerifier
	trustMarks TrustMarkVerifier
	issuer     Issuer
	logger     logging.Logger
	metrics    *metrics
}

// Option configures a Facade at construction time.
type Option func(*Facade)

// WithLogger overrides the Façade's logger.
func WithLogger(logger logging.Logger) Option { return func(f *Facade) { f.logger = logger } }

// WithMetrics registers the Façade's prometheus instrumentation against reg.
// Without this option, metrics are collected against a private registry and
// never exposed.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(f *Facade) { f.metrics = newMetrics(reg) }
}

// New constructs a Facade.
func New(entityID federation.Identifier, c Collector, cv ChainVerifier, tm TrustMarkVerifier, iss Issuer, opts ...Option) *Facade {
	f := &Facade{
		entityID:   entityID,
		collector:  c,
		chains:     cv,
		trustMarks: tm,
		issuer:     iss,
		logger:     logging.DefaultLogger(),
		metrics:    newMetrics(prometheus.NewRegistry()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Resolution is the result of resolving an entity: its effective metadata
// (leaf metadata with every superior's metadata_policy applied) and the
// verified chain that produced it.
type Resolution struct {
	Metadata federation.Metadata
	Chain    *chainverify.VerifiedChain
}

// Resolve builds, verifies, and policy-composes a trust chain for target,
// returning the best (shortest, most-preferred-anchor) verified chain's
// effective metadata (spec.md section 4.9 item 1).
func (f *Facade) Resolve(ctx context.Context, target federation.Identifier) (*Resolution, error) {
	start := time.Now()
	correlationID := uuid.New().String()
	logger := f.logger

	root := f.collector.Collect(ctx, target)
	chains := f.chains.VerifyTree(root)
	if len(chains) == 0 {
		f.observeResolve("no_chain", start)
		logger.Warn("resolve found no verified chain",
			logging.F("entity_id", target.String()), logging.F("correlation_id", correlationID))
		return nil, federation.NewError(federation.KindUntrustedAnchor, "no verified trust chain for "+target.String(), nil)
	}

	chosen := chains[0]
	effective, err := chosen.EffectiveMetadata()
	if err != nil {
		f.observeResolve("policy_error", start)
		logger.Warn("resolve policy composition failed",
			logging.F("entity_id", target.String()), logging.F("correlation_id", correlationID), logging.F("error", err.Error()))
		return nil, err
	}

	f.observeResolve("ok", start)
	logger.Info("resolve succeeded",
		logging.F("entity_id", target.String()), logging.F("correlation_id", correlationID),
		logging.F("anchor", chosen.AnchorID.String()), logging.F("chain_length", len(chosen.Nodes)))
	return &Resolution{Metadata: effective, Chain: chosen}, nil
}

func (f *Facade) observeResolve(outcome string, start time.Time) {
	if f.metrics == nil {
		return
	}
	f.metrics.resolveTotal.WithLabelValues(outcome).Inc()
	f.metrics.resolveDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// VerifyTrustMark verifies mark resolves to a chain ending at anchor and
// returns its decoded claim on success (spec.md section 4.9 item 2).
func (f *Facade) VerifyTrustMark(ctx context.Context, mark string, anchor federation.Identifier) (*federation.TrustMarkClaim, error) {
	claim, err := f.trustMarks.Verify(ctx, mark, anchor)
	outcome := "ok"
	if err != nil {
		outcome = "invalid"
	}
	if f.metrics != nil {
		f.metrics.trustMarkTotal.WithLabelValues(outcome).Inc()
	}
	return claim, err
}

// IssueEntityConfiguration returns this entity's own signed entity
// configuration (spec.md section 4.9 item 3).
func (f *Facade) IssueEntityConfiguration() (string, error) {
	return f.issuer.IssueEntityConfiguration()
}

// EntityConfigurationEndpointHandler serves the .well-known/openid-federation
// endpoint (spec.md section 4.9 item 5): identical to
// IssueEntityConfiguration, named separately because it is the thing an HTTP
// handler calls directly.
func (f *Facade) EntityConfigurationEndpointHandler() (string, error) {
	return f.IssueEntityConfiguration()
}

// FetchEndpointHandler serves the federation fetch endpoint for a
// registered subordinate (spec.md section 4.9 item 4). iss must equal this
// entity's own id, otherwise a KindMalformedResponse error is returned;
// for a matching iss the issuer's statement about sub, or its error for an
// unregistered sub, is returned. The HTTP layer answers 404 for any error.
func (f *Facade) FetchEndpointHandler(iss, sub federation.Identifier) (string, error) {
	if !iss.Equal(f.entityID) {
		return "", federation.NewError(federation.KindMalformedResponse, "fetch endpoint iss mismatch", nil)
	}
	return f.issuer.IssueSubordinateStatement(sub)
}

// The remainder of this file adapts the Façade to registry.TrustRegistry so
// it can be composed alongside non-federation trust registries (spec.md is
// silent on AuthZEN composition; this generalizes go-trust's own
// oidfed-registry-as-TrustRegistry shape to this engine).
var _ registry.TrustRegistry = (*Facade)(nil)

// Name returns the registry name under which this Façade is registered.
func (f *Facade) Name() string { return "openid-federation" }

// Info describes this Façade as a registry.TrustRegistry.
func (f *Facade) Info() registry.RegistryInfo {
	return registry.RegistryInfo{
		Name:         f.Name(),
		Type:         "openid_federation",
		Description:  "OpenID Federation trust chain resolution for " + f.entityID.String(),
		TrustAnchors: nil,
	}
}

// SupportedResourceTypes reports the AuthZEN resource types this registry understands.
func (f *Facade) SupportedResourceTypes() []string {
	return []string{"jwk", "x5c"}
}

// Healthy reports whether the Façade can currently serve requests.
func (f *Facade) Healthy() bool {
	return f.collector != nil && f.chains != nil
}

// Refresh is a no-op: the Collector's cache expires statements by TTL on its
// own and there is no separate refresh cycle to trigger.
func (f *Facade) Refresh(ctx context.Context) error { return nil }

// Evaluate implements registry.TrustRegistry by resolving req.Subject.ID as
// an entity id and deciding trust based on whether a verified chain exists.
func (f *Facade) Evaluate(ctx context.Context, req *authzen.EvaluationRequest) (*authzen.EvaluationResponse, error) {
	entityID, err := f.extractEntityID(req)
	if err != nil {
		return &authzen.EvaluationResponse{
			Decision: false,
			Context:  &authzen.EvaluationResponseContext{Reason: map[string]interface{}{"message": err.Error()}},
		}, nil
	}

	resolution, err := f.Resolve(ctx, entityID)
	if err != nil {
		return &authzen.EvaluationResponse{
			Decision: false,
			Context: &authzen.EvaluationResponseContext{
				Reason: map[string]interface{}{"message": "no valid trust chain found", "entity_id": entityID.String()},
			},
		}, nil
	}

	return &authzen.EvaluationResponse{
		Decision: true,
		Context: &authzen.EvaluationResponseContext{
			Reason: map[string]interface{}{
				"entity_id":           entityID.String(),
				"trust_anchor":        resolution.Chain.AnchorID.String(),
				"trust_chain_length":  len(resolution.Chain.Nodes),
			},
		},
	}, nil
}

func (f *Facade) extractEntityID(req *authzen.EvaluationRequest) (federation.Identifier, error) {
	candidate := req.Subject.ID
	if candidate == "" || !(strings.HasPrefix(candidate, "http://") || strings.HasPrefix(candidate, "https://")) {
		candidate = req.Resource.ID
	}
	return federation.NewIdentifier(candidate)
}
