// Package collector implements statement tree construction (spec.md
// section 4.4): starting from a target entity id, it walks authority_hints
// upward until it reaches a configured trust anchor, a dead end, or a
// cycle, fetching and self-verifying each entity configuration and
// subordinate statement along the way.
package collector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/TwiN/gocache/v2"
	"github.com/jonboulle/clockwork"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/fetcher"
	"github.com/SUNET/fedtrust/pkg/jws"
	"github.com/SUNET/fedtrust/pkg/logging"
	"github.com/SUNET/fedtrust/pkg/utils"
)

// Fetcher is the subset of *fetcher.Fetcher the Collector depends on, kept
// as an interface so tests can substitute a fixture.
type Fetcher interface {
	GetEntityConfiguration(ctx context.Context, entityID federation.Identifier) (string, error)
	FetchSubordinate(ctx context.Context, fetchEndpoint string, issuer, sub federation.Identifier) (string, error)
}

var _ Fetcher = (*fetcher.Fetcher)(nil)

// Persist is the subset of *cachestore.Store the Collector depends on,
// kept as an interface so the in-memory cache never has a hard dependency
// on Redis. A nil Persist disables the second tier entirely.
type Persist interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// Collector builds statement trees, caching fetched statements by
// (iss, sub) and collapsing duplicate concurrent fetches for the same key.
type Collector struct {
	fetcher        Fetcher
	cache          *gocache.Cache
	persist        Persist
	group          singleflight.Group
	anchors        map[string]struct{}
	maxCacheTTL    time.Duration
	clockSkew      time.Duration
	maxConcurrency int
	clock          clockwork.Clock
	logger         logging.Logger
}

// Option configures a Collector at construction time.
type Option func(*Collector)

func WithMaxCacheTTL(d time.Duration) Option  { return func(c *Collector) { c.maxCacheTTL = d } }
func WithClockSkew(d time.Duration) Option    { return func(c *Collector) { c.clockSkew = d } }
func WithMaxConcurrency(n int) Option         { return func(c *Collector) { c.maxConcurrency = n } }
func WithClock(clock clockwork.Clock) Option  { return func(c *Collector) { c.clock = clock } }
func WithLogger(logger logging.Logger) Option { return func(c *Collector) { c.logger = logger } }

// WithPersist adds a second cache tier behind the in-memory one, so cached
// statements survive a restart of this process.
func WithPersist(p Persist) Option { return func(c *Collector) { c.persist = p } }

// New constructs a Collector. anchors lists the entity ids configured as
// trust anchors; recursion up authority_hints stops upon reaching one.
func New(f Fetcher, anchors []federation.Identifier, opts ...Option) *Collector {
	anchorSet := make(map[string]struct{}, len(anchors))
	for _, a := range anchors {
		anchorSet[a.String()] = struct{}{}
	}
	c := &Collector{
		fetcher:        f,
		cache:          gocache.NewCache(),
		anchors:        anchorSet,
		maxCacheTTL:    1 * time.Hour,
		clockSkew:      30 * time.Second,
		maxConcurrency: 8,
		clock:          clockwork.NewRealClock(),
		logger:         logging.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cacheKey formats the (iss, sub) cache key used throughout this package.
func cacheKey(iss, sub string) string {
	return iss + "\x00" + sub
}

// Collect builds the statement tree rooted at target. It never returns an
// error: failures are recorded on the affected branch's Node.Err so that
// sibling branches can still succeed (spec.md section 4.4, item 6).
func (c *Collector) Collect(ctx context.Context, target federation.Identifier) *Node {
	path := utils.NewSet[string]()
	return c.collectSelf(ctx, target, path)
}

// collectSelf fetches and self-verifies entityID's own entity
// configuration, then (unless entityID is an anchor) fans out to its
// authorities.
func (c *Collector) collectSelf(ctx context.Context, entityID federation.Identifier, path *utils.Set[string]) *Node {
	node := &Node{EntityID: entityID}

	if path.Has(entityID.String()) {
		node.Err = federation.NewError(federation.KindMalformedResponse, "authority_hints cycle detected at "+entityID.String(), nil)
		return node
	}

	token, err := c.fetchSelfSigned(ctx, entityID)
	if err != nil {
		node.Err = err
		return node
	}
	node.RawConfig = token

	statement, err := c.selfVerify(token)
	if err != nil {
		node.Err = err
		return node
	}
	node.Statement = statement

	if _, isAnchor := c.anchors[entityID.String()]; isAnchor {
		node.IsAnchor = true
		return node
	}
	if len(statement.AuthorityHints) == 0 {
		node.Err = federation.NewError(federation.KindUntrustedAnchor, "no authority_hints and not a configured trust anchor: "+entityID.String(), nil)
		return node
	}

	childPath := utils.NewSet(append(path.Items(), entityID.String())...)

	children := make([]*Node, len(statement.AuthorityHints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for i, hint := range statement.AuthorityHints {
		i, hint := i, hint
		g.Go(func() error {
			children[i] = c.collectViaAuthority(gctx, entityID, hint, childPath)
			return nil
		})
	}
	_ = g.Wait()
	node.Children = children

	return node
}

// collectViaAuthority fetches authority's own subtree, then the
// subordinate statement authority issued about entityID, and returns the
// node that represents entityID as seen by authority (spec.md section 4.4
// item 3): Statement is the subordinate statement.
//
// The Trust Chain (spec.md section 3) is [leaf EC, statement by A about
// leaf, statement by B about A, ..., anchor EC]: an intermediate
// authority's own self-signed entity configuration is never itself a
// member of that sequence, only a means to discover its fetch endpoint and
// further authority_hints. So authorityNode is spliced out of the returned
// node's Children — its own children (the statements vouching for
// *authority*) take its place — except when authority is itself the
// configured trust anchor, whose self-signed configuration is the chain's
// terminal node and must be kept. Splicing it out here, rather than
// filtering it during tree-to-chains traversal, is what lets the Chain
// Verifier's per-statement provenance check walk one hop at a time without
// ever consulting an authority's self-declared jwks for its own keys.
func (c *Collector) collectViaAuthority(ctx context.Context, entityID, authority federation.Identifier, path *utils.Set[string]) *Node {
	authorityNode := c.collectSelf(ctx, authority, path)
	if authorityNode.Err != nil {
		return &Node{EntityID: entityID, Err: authorityNode.Err, Children: []*Node{authorityNode}}
	}

	fetchEndpoint, ok := federationFetchEndpoint(authorityNode.Statement)
	if !ok {
		return &Node{
			EntityID: entityID,
			Err:      federation.NewError(federation.KindMalformedResponse, "authority "+authority.String()+" has no federation_fetch_endpoint", nil),
			Children: []*Node{authorityNode},
		}
	}

	raw, err := c.fetchSubordinate(ctx, authority, entityID, fetchEndpoint)
	if err != nil {
		return &Node{EntityID: entityID, Err: err, Children: []*Node{authorityNode}}
	}

	statement, err := c.verifyAgainst(raw, authorityNode.Statement.JWKS)
	if err != nil {
		return &Node{EntityID: entityID, Err: err, Children: []*Node{authorityNode}}
	}
	if statement.Issuer.String() != authority.String() || statement.Subject.String() != entityID.String() {
		return &Node{
			EntityID: entityID,
			Err:      federation.NewError(federation.KindMalformedResponse, "subordinate statement iss/sub mismatch", nil),
			Children: []*Node{authorityNode},
		}
	}

	children := []*Node{authorityNode}
	if !authorityNode.IsAnchor {
		children = authorityNode.Children
	}

	return &Node{
		EntityID:  entityID,
		Statement: statement,
		RawSubord: raw,
		Children:  children,
	}
}

func federationFetchEndpoint(statement *federation.EntityStatement) (string, bool) {
	fe, ok := statement.Metadata[federation.EntityTypeFederationEntity]
	if !ok {
		return "", false
	}
	ep, ok := fe["federation_fetch_endpoint"].(string)
	if !ok || ep == "" {
		return "", false
	}
	return ep, true
}

func (c *Collector) fetchSelfSigned(ctx context.Context, entityID federation.Identifier) (string, error) {
	key := cacheKey(entityID.String(), entityID.String())
	return c.fetchCached(ctx, key, func() (string, error) {
		return c.fetcher.GetEntityConfiguration(ctx, entityID)
	})
}

func (c *Collector) fetchSubordinate(ctx context.Context, authority, entityID federation.Identifier, endpoint string) (string, error) {
	key := cacheKey(authority.String(), entityID.String())
	return c.fetchCached(ctx, key, func() (string, error) {
		return c.fetcher.FetchSubordinate(ctx, endpoint, authority, entityID)
	})
}

// fetchCached serves token from cache when present; otherwise it performs
// exactly one in-flight fetch per key (singleflight) and caches the result
// with TTL = min(statement exp - now, maxCacheTTL) - clockSkew.
func (c *Collector) fetchCached(ctx context.Context, key string, do func() (string, error)) (string, error) {
	if cached, ok := c.cache.Get(key); ok {
		if token, ok := cached.(string); ok {
			return token, nil
		}
	}
	if c.persist != nil {
		if token, ok, err := c.persist.Get(ctx, key); err == nil && ok {
			c.cache.SetWithTTL(key, token, c.maxCacheTTL)
			return token, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		token, err := do()
		if err != nil {
			return "", err
		}
		c.cacheToken(ctx, key, token)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Collector) cacheToken(ctx context.Context, key, token string) {
	payload, err := jws.PeekPayload(token)
	if err != nil {
		return
	}
	var stmt federation.EntityStatement
	if err := json.Unmarshal(payload, &stmt); err != nil {
		return
	}
	ttl := time.Unix(stmt.Expiration, 0).Sub(c.clock.Now())
	if ttl > c.maxCacheTTL {
		ttl = c.maxCacheTTL
	}
	ttl -= c.clockSkew
	if ttl <= 0 {
		return
	}
	c.cache.SetWithTTL(key, token, ttl)
	if c.persist != nil {
		if err := c.persist.Set(ctx, key, token, ttl); err != nil {
			c.logger.Warn("failed to persist cached statement", logging.F("key", key), logging.F("error", err.Error()))
		}
	}
}

// selfVerify decodes token's unverified payload to obtain the jwks it
// claims as its own, then verifies the signature against that same jwks —
// the self-consistency check required of every entity configuration
// (spec.md section 4.4 item 1).
func (c *Collector) selfVerify(token string) (*federation.EntityStatement, error) {
	stmt, err := decodeUnverified(token)
	if err != nil {
		return nil, err
	}
	if _, err := jws.Verify(token, stmt.JWKS); err != nil {
		return nil, err
	}
	return stmt, nil
}

// verifyAgainst verifies token (a subordinate statement) against keys, the
// issuing authority's jwks, and returns its decoded payload.
func (c *Collector) verifyAgainst(token string, keys jwk.Set) (*federation.EntityStatement, error) {
	raw, err := jws.Verify(token, keys)
	if err != nil {
		return nil, err
	}
	var stmt federation.EntityStatement
	if err := json.Unmarshal(raw, &stmt); err != nil {
		return nil, federation.NewError(federation.KindMalformedResponse, "decode subordinate statement", err)
	}
	return &stmt, nil
}

func decodeUnverified(token string) (*federation.EntityStatement, error) {
	payload, err := jws.PeekPayload(token)
	if err != nil {
		return nil, err
	}
	var stmt federation.EntityStatement
	if err := json.Unmarshal(payload, &stmt); err != nil {
		return nil, federation.NewError(federation.KindMalformedResponse, "decode entity configuration", err)
	}
	return &stmt, nil
}
