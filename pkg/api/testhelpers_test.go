package api

import (
	"context"

	"github.com/SUNET/fedtrust/pkg/authzen"
	"github.com/SUNET/fedtrust/pkg/chainverify"
	"github.com/SUNET/fedtrust/pkg/collector"
	"github.com/SUNET/fedtrust/pkg/facade"
	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/registry"
)

// mockTrustRegistry is a configurable registry.TrustRegistry test double.
type mockTrustRegistry struct {
	decision bool
	err      error
	healthy  bool
}

func (m *mockTrustRegistry) Evaluate(_ context.Context, _ *authzen.EvaluationRequest) (*authzen.EvaluationResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &authzen.EvaluationResponse{Decision: m.decision}, nil
}

func (m *mockTrustRegistry) SupportedResourceTypes() []string { return []string{"x5c", "jwk"} }

func (m *mockTrustRegistry) Info() registry.RegistryInfo {
	return registry.RegistryInfo{Name: "mock-registry", Type: "mock", Description: "test registry"}
}

func (m *mockTrustRegistry) Healthy() bool { return m.healthy }

func (m *mockTrustRegistry) Refresh(_ context.Context) error { return m.err }

// stubCollector and stubChainVerifier satisfy facade.Collector/ChainVerifier
// without exercising real fetch/verify logic. Tests that need an actual
// resolution stub chains directly via their fields.
type stubCollector struct{}

func (stubCollector) Collect(_ context.Context, _ federation.Identifier) *collector.Node {
	return &collector.Node{}
}

type stubChainVerifier struct {
	chains []*chainverify.VerifiedChain
}

func (s stubChainVerifier) VerifyTree(_ *collector.Node) []*chainverify.VerifiedChain {
	return s.chains
}

type stubTrustMarkVerifier struct{}

func (stubTrustMarkVerifier) Verify(_ context.Context, _ string, _ federation.Identifier) (*federation.TrustMarkClaim, error) {
	return nil, federation.NewError(federation.KindMalformedResponse, "stub: not implemented", nil)
}

type stubIssuer struct {
	entityConfig string
	subStatement string
	err          error
}

func (s stubIssuer) IssueEntityConfiguration() (string, error) {
	return s.entityConfig, s.err
}

func (s stubIssuer) IssueSubordinateStatement(_ federation.Identifier) (string, error) {
	return s.subStatement, s.err
}

// newTestFacade builds a Façade backed entirely by stubs, healthy by
// construction (both Collector and ChainVerifier are non-nil).
func newTestFacade(entityIDStr string) *facade.Facade {
	entityID, err := federation.NewIdentifier(entityIDStr)
	if err != nil {
		panic(err)
	}
	return facade.New(entityID, stubCollector{}, stubChainVerifier{}, stubTrustMarkVerifier{}, stubIssuer{entityConfig: "stub.jwt"})
}
