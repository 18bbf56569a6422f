// Package trustmark implements trust mark verification (spec.md section
// 4.7), including the delegation check grounded in fedservice's
// trust_mark_verifier function: a trust mark signed by someone other than
// its nominal owner is only valid if the owner's entity configuration
// delegated trust_mark_id to that issuer.
package trustmark

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/SUNET/fedtrust/pkg/chainverify"
	"github.com/SUNET/fedtrust/pkg/collector"
	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/jws"
	"github.com/SUNET/fedtrust/pkg/keydir"
	"github.com/SUNET/fedtrust/pkg/logging"
)

// Collector is the subset of *collector.Collector the Verifier depends on.
type Collector interface {
	Collect(ctx context.Context, target federation.Identifier) *collector.Node
}

// ChainVerifier is the subset of *chainverify.Verifier the Verifier depends on.
type ChainVerifier interface {
	VerifyTree(root *collector.Node) []*chainverify.VerifiedChain
}

// Verifier resolves and verifies trust marks per spec.md section 4.7.
type Verifier struct {
	keys      *keydir.Directory
	collector Collector
	chains    ChainVerifier
	clockSkew time.Duration
	clock     clockwork.Clock
	logger    logging.Logger
}

// Option configures a Verifier at construction time.
type Option func(*Verifier)

func WithClockSkew(d time.Duration) Option   { return func(v *Verifier) { v.clockSkew = d } }
func WithClock(clock clockwork.Clock) Option { return func(v *Verifier) { v.clock = clock } }
func WithLogger(logger logging.Logger) Option { return func(v *Verifier) { v.logger = logger } }

// New constructs a Verifier.
func New(keys *keydir.Directory, c Collector, cv ChainVerifier, opts ...Option) *Verifier {
	v := &Verifier{
		keys:      keys,
		collector: c,
		chains:    cv,
		clockSkew: 30 * time.Second,
		clock:     clockwork.NewRealClock(),
		logger:    logging.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify resolves and verifies mark against anchor, returning the decoded
// claim on success. Every failure is logged and reported as (nil, err);
// callers that only care about pass/fail should treat a non-nil error as
// "no trust mark" per spec.md section 4.7's "return nothing" contract.
func (v *Verifier) Verify(ctx context.Context, mark string, anchor federation.Identifier) (*federation.TrustMarkClaim, error) {
	claim, err := v.decodeUnverified(mark)
	if err != nil {
		v.logger.Warn("trust mark decode failed", logging.F("error", err.Error()))
		return nil, err
	}
	if err := v.checkStructure(claim); err != nil {
		v.logger.Warn("trust mark structurally invalid", logging.F("trust_mark_id", claim.TrustMarkID), logging.F("error", err.Error()))
		return nil, err
	}
	if err := v.checkExpiry(claim); err != nil {
		v.logger.Warn("trust mark expired", logging.F("trust_mark_id", claim.TrustMarkID))
		return nil, err
	}

	root := v.collector.Collect(ctx, claim.Issuer)
	var chosen *chainverify.VerifiedChain
	for _, chain := range v.chains.VerifyTree(root) {
		if chain.AnchorID.Equal(anchor) {
			chosen = chain
			break
		}
	}
	if chosen == nil {
		err := federation.NewError(federation.KindUntrustedAnchor, "no verified chain from "+claim.Issuer.String()+" to "+anchor.String(), nil)
		v.logger.Warn("trust mark issuer not chained to anchor", logging.F("iss", claim.Issuer.String()), logging.F("anchor", anchor.String()))
		return nil, err
	}

	issuerKeys := v.resolveIssuerKeys(claim.Issuer, chosen)
	if _, err := jws.Verify(mark, issuerKeys); err != nil {
		v.logger.Warn("trust mark signature invalid", logging.F("iss", claim.Issuer.String()))
		return nil, err
	}

	if claim.Delegation != "" {
		if err := v.verifyDelegation(ctx, claim, chosen); err != nil {
			v.logger.Warn("trust mark delegation invalid", logging.F("trust_mark_id", claim.TrustMarkID), logging.F("error", err.Error()))
			return nil, err
		}
	}

	return claim, nil
}

func (v *Verifier) decodeUnverified(mark string) (*federation.TrustMarkClaim, error) {
	payload, err := jws.PeekPayload(mark)
	if err != nil {
		return nil, err
	}
	var claim federation.TrustMarkClaim
	if err := json.Unmarshal(payload, &claim); err != nil {
		return nil, federation.NewError(federation.KindMalformedResponse, "decode trust mark payload", err)
	}
	return &claim, nil
}

func (v *Verifier) checkStructure(claim *federation.TrustMarkClaim) error {
	if claim.Issuer.IsZero() || claim.Subject.IsZero() || claim.TrustMarkID == "" || claim.IssuedAt == 0 {
		return federation.NewError(federation.KindMalformedResponse, "trust mark missing required claims", nil)
	}
	return nil
}

func (v *Verifier) checkExpiry(claim *federation.TrustMarkClaim) error {
	if !claim.HasExpiration() {
		return nil
	}
	if v.clock.Now().After(time.Unix(claim.Expiration, 0).Add(v.clockSkew)) {
		return federation.NewError(federation.KindExpired, "trust mark expired", nil)
	}
	return nil
}

// resolveIssuerKeys tries the Key Directory first, then falls back to the
// verified chain's leaf jwks (spec.md section 4.7 item 4).
func (v *Verifier) resolveIssuerKeys(issuer federation.Identifier, chain *chainverify.VerifiedChain) jwk.Set {
	if v.keys != nil {
		if keys := v.keys.VerificationKeysAll(issuer.String()); keys != nil && keys.Len() > 0 {
			return keys
		}
	}
	return chain.Leaf().JWKS
}

// verifyDelegation implements fedservice's verify_delegation: trust_mark_id
// must appear in the anchor's trust_mark_issuers (naming iss as permitted)
// and trust_mark_owners (giving the owner's keys); the delegation JWS must
// verify under those owner keys.
func (v *Verifier) verifyDelegation(_ context.Context, claim *federation.TrustMarkClaim, chain *chainverify.VerifiedChain) error {
	anchorStatement := chain.Anchor()

	permittedIssuers, ok := anchorStatement.TrustMarkIssuers[claim.TrustMarkID]
	if !ok {
		return federation.NewError(federation.KindDelegationInvalid, "trust_mark_id not listed in trust_mark_issuers", nil)
	}
	found := false
	for _, iss := range permittedIssuers {
		if iss.Equal(claim.Issuer) {
			found = true
			break
		}
	}
	if !found {
		return federation.NewError(federation.KindDelegationInvalid, "issuer not permitted for trust_mark_id", nil)
	}

	owner, ok := anchorStatement.TrustMarkOwners[claim.TrustMarkID]
	if !ok {
		return federation.NewError(federation.KindDelegationInvalid, "trust_mark_id has no registered owner", nil)
	}

	if _, err := jws.Verify(claim.Delegation, owner.JWKS); err != nil {
		return federation.NewError(federation.KindDelegationInvalid, "delegation signature invalid", err)
	}
	return nil
}
