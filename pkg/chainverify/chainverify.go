// Package chainverify implements chain verification (spec.md section 4.5):
// turning a collector.Node tree into one chain per root-to-anchor path and
// discarding any chain whose signatures, timestamps, linkage, or
// constraints do not hold.
package chainverify

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/SUNET/fedtrust/pkg/collector"
	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/jws"
)

// VerifiedChain is a fully verified trust chain, ordered leaf first and
// trust anchor last, alongside the anchor entity id it resolved to.
type VerifiedChain struct {
	Nodes   []*collector.Node
	AnchorID federation.Identifier
}

// Leaf returns the chain's leaf statement.
func (c *VerifiedChain) Leaf() *federation.EntityStatement {
	return c.Nodes[0].Statement
}

// Anchor returns the chain's trust-anchor statement.
func (c *VerifiedChain) Anchor() *federation.EntityStatement {
	return c.Nodes[len(c.Nodes)-1].Statement
}

// Verifier verifies chains against a pinned set of trust-anchor keys —
// deliberately distinct from whatever jwks an anchor's own entity
// configuration happens to self-report, since self-report is not trust
// (spec.md section 4.5 item 2).
type Verifier struct {
	anchorKeys map[string]jwk.Set
	anchorOrder []string
	clockSkew  time.Duration
	clock      clockwork.Clock
}

// Option configures a Verifier at construction time.
type Option func(*Verifier)

func WithClockSkew(d time.Duration) Option   { return func(v *Verifier) { v.clockSkew = d } }
func WithClock(clock clockwork.Clock) Option { return func(v *Verifier) { v.clock = clock } }

// New constructs a Verifier. anchorOrder lists configured trust anchors in
// caller-preference order, used for tie-breaking; anchorKeys must have an
// entry for every id in anchorOrder.
func New(anchorOrder []federation.Identifier, anchorKeys map[string]jwk.Set, opts ...Option) *Verifier {
	order := make([]string, len(anchorOrder))
	for i, a := range anchorOrder {
		order[i] = a.String()
	}
	v := &Verifier{
		anchorKeys:  anchorKeys,
		anchorOrder: order,
		clockSkew:   30 * time.Second,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyTree verifies every root-to-anchor chain in root and returns only
// the chains that fully pass, ordered per the tie-breaking rule: shorter
// chains first, then by the anchor's position in anchorOrder.
func (v *Verifier) VerifyTree(root *collector.Node) []*VerifiedChain {
	var out []*VerifiedChain
	for _, raw := range root.Chains() {
		vc, err := v.verifyChain(raw)
		if err != nil {
			continue
		}
		out = append(out, vc)
	}
	sortChains(out, v.anchorOrder)
	return out
}

func (v *Verifier) verifyChain(nodes []*collector.Node) (*VerifiedChain, error) {
	if len(nodes) == 0 {
		return nil, federation.NewError(federation.KindMalformedResponse, "empty chain", nil)
	}
	leaf := nodes[0]
	if leaf.Statement == nil {
		return nil, federation.NewError(federation.KindMalformedResponse, "leaf statement missing", nil)
	}
	if _, err := jws.Verify(leaf.RawConfig, leaf.Statement.JWKS); err != nil {
		return nil, err
	}

	anchorNode := nodes[len(nodes)-1]
	anchorKeys, ok := v.anchorKeys[anchorNode.EntityID.String()]
	if !ok {
		return nil, federation.NewError(federation.KindUntrustedAnchor, "no pinned keys for "+anchorNode.EntityID.String(), nil)
	}
	if _, err := jws.Verify(anchorNode.RawConfig, anchorKeys); err != nil {
		return nil, err
	}

	// Key-provenance invariant (spec.md section 3): for every adjacent pair
	// of subordinate statements (one by P about C, the next by G about P),
	// the keys that verify the first must come from the jwks of the
	// second, never from P's own self-declared entity configuration —
	// otherwise an entity that only controls its own well-known endpoint
	// could unilaterally swap in a new signing key for everything it
	// issues. collector.collectViaAuthority already splices intermediate
	// authorities' own entity configurations out of the chain, so the
	// superior at nodes[i+1] is always either the next subordinate
	// statement up, or (per spec.md section 4.5 item 2) the trust anchor's
	// self-signed configuration, verified against the pinned anchor keys
	// rather than its own jwks claim.
	for i, node := range nodes {
		if node.RawSubord == "" {
			continue
		}
		superior := nodes[i+1]
		var superiorKeys jwk.Set
		if superior.IsAnchor {
			superiorKeys = anchorKeys
		} else {
			superiorKeys = superior.Statement.JWKS
		}
		if _, err := jws.Verify(node.RawSubord, superiorKeys); err != nil {
			return nil, err
		}
		if node.Statement.Issuer.String() != superior.EntityID.String() {
			return nil, federation.NewError(federation.KindMalformedResponse, "issuer does not match superior", nil)
		}
	}

	if err := v.checkTimestamps(nodes); err != nil {
		return nil, err
	}
	if err := v.checkLinkage(nodes); err != nil {
		return nil, err
	}
	if err := v.checkConstraints(nodes); err != nil {
		return nil, err
	}

	return &VerifiedChain{Nodes: nodes, AnchorID: anchorNode.EntityID}, nil
}

func (v *Verifier) checkTimestamps(nodes []*collector.Node) error {
	now := v.clock.Now()
	for _, node := range nodes {
		s := node.Statement
		if s == nil {
			continue
		}
		exp := time.Unix(s.Expiration, 0)
		iat := time.Unix(s.IssuedAt, 0)
		if now.After(exp.Add(v.clockSkew)) {
			return federation.NewError(federation.KindExpired, "statement expired: "+node.EntityID.String(), nil)
		}
		if now.Before(iat.Add(-v.clockSkew)) {
			return federation.NewError(federation.KindNotYetValid, "statement not yet valid: "+node.EntityID.String(), nil)
		}
	}
	return nil
}

// checkLinkage verifies sub-of-subordinate equals iss-of-statement-below,
// and iss equals sub-of-statement-above, across the whole chain.
func (v *Verifier) checkLinkage(nodes []*collector.Node) error {
	for i := 0; i < len(nodes)-1; i++ {
		cur, next := nodes[i], nodes[i+1]
		if cur.Statement.Subject.String() != cur.EntityID.String() {
			return federation.NewError(federation.KindMalformedResponse, "subject does not match entity position in chain", nil)
		}
		if cur.RawSubord != "" && cur.Statement.Issuer.String() != next.EntityID.String() {
			return federation.NewError(federation.KindMalformedResponse, "issuer/subject linkage broken between chain links", nil)
		}
	}
	return nil
}

func (v *Verifier) checkConstraints(nodes []*collector.Node) error {
	leaf := nodes[0].Statement
	for i := len(nodes) - 1; i >= 0; i-- {
		c := nodes[i].Statement.Constraints
		if c == nil {
			continue
		}
		if c.MaxPathLength != nil {
			// Path length is measured from this statement's position down
			// to the leaf, not counting this statement itself.
			if i > *c.MaxPathLength {
				return federation.NewError(federation.KindConstraintViolation, "max_path_length exceeded", nil)
			}
		}
		if len(c.AllowedLeafEntityTypes) > 0 {
			if !leafTypeAllowed(leaf, c.AllowedLeafEntityTypes) {
				return federation.NewError(federation.KindConstraintViolation, "leaf entity type not permitted", nil)
			}
		}
	}
	return nil
}

func leafTypeAllowed(leaf *federation.EntityStatement, allowed []federation.EntityType) bool {
	for _, et := range allowed {
		if _, ok := leaf.Metadata[et]; ok {
			return true
		}
	}
	return false
}

// sortChains implements the tie-breaking rule: shorter chain first, then
// by anchor position in anchorOrder.
func sortChains(chains []*VerifiedChain, anchorOrder []string) {
	rank := make(map[string]int, len(anchorOrder))
	for i, id := range anchorOrder {
		rank[id] = i
	}
	less := func(i, j int) bool {
		a, b := chains[i], chains[j]
		if len(a.Nodes) != len(b.Nodes) {
			return len(a.Nodes) < len(b.Nodes)
		}
		ra, oka := rank[a.AnchorID.String()]
		rb, okb := rank[b.AnchorID.String()]
		if oka && okb {
			return ra < rb
		}
		return oka && !okb
	}
	insertionSort(chains, less)
}

func insertionSort(chains []*VerifiedChain, less func(i, j int) bool) {
	for i := 1; i < len(chains); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			chains[j], chains[j-1] = chains[j-1], chains[j]
		}
	}
}
