// Package bootstrap wires a Config into the concrete components a
// federation participant needs at runtime: the Collector, Chain Verifier,
// Trust Mark Verifier, Statement Issuer and the Façade built from them. Both
// the fedtrustd server and the fedctl CLI construct their runtime state
// through this package so the two never drift apart.
package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/redis/go-redis/v9"

	"github.com/SUNET/fedtrust/pkg/cachestore"
	"github.com/SUNET/fedtrust/pkg/chainverify"
	"github.com/SUNET/fedtrust/pkg/collector"
	"github.com/SUNET/fedtrust/pkg/config"
	"github.com/SUNET/fedtrust/pkg/dsig"
	"github.com/SUNET/fedtrust/pkg/facade"
	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/fetcher"
	"github.com/SUNET/fedtrust/pkg/issuer"
	"github.com/SUNET/fedtrust/pkg/keydir"
	"github.com/SUNET/fedtrust/pkg/logging"
	"github.com/SUNET/fedtrust/pkg/trustmark"
)

// Components bundles the runtime objects built from a Config. Issuer and
// Facade are nil when no signing key pair is configured: an entity can
// still collect and verify other entities' chains without being able to
// issue its own statements.
type Components struct {
	EntityID   federation.Identifier
	Collector  *collector.Collector
	Verifier   *chainverify.Verifier
	KeyDir     *keydir.Directory
	TrustMark  *trustmark.Verifier
	Issuer     *issuer.Issuer
	Facade     *facade.Facade
	CacheStore *cachestore.Store // nil unless federation.cache_redis_addr is configured
}

// Close releases any resources Build opened (currently, the Redis
// connection backing CacheStore, if configured).
func (c *Components) Close() error {
	if c.CacheStore != nil {
		return c.CacheStore.Close()
	}
	return nil
}

// Build constructs Components from cfg. logger defaults to
// logging.DefaultLogger() when nil.
func Build(cfg *config.Config, logger logging.Logger) (*Components, error) {
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	entityID, err := federation.NewIdentifier(cfg.Federation.EntityID)
	if err != nil {
		return nil, fmt.Errorf("invalid federation entity_id: %w", err)
	}

	var anchorIDs []federation.Identifier
	anchorKeys := map[string]jwk.Set{}
	if cfg.Federation.TrustAnchorsPath != "" {
		anchors, err := config.LoadTrustAnchors(cfg.Federation.TrustAnchorsPath)
		if err != nil {
			return nil, fmt.Errorf("load trust anchors: %w", err)
		}
		anchorIDs, err = config.Identifiers(anchors)
		if err != nil {
			return nil, fmt.Errorf("parse trust anchor identifiers: %w", err)
		}
		for _, a := range anchors {
			f, err := os.Open(a.JWKSPath)
			if err != nil {
				return nil, fmt.Errorf("open trust anchor jwks for %q: %w", a.EntityID, err)
			}
			dir := keydir.New(nil, logger)
			importErr := dir.ImportFromReader(a.EntityID, f)
			f.Close()
			if importErr != nil {
				return nil, fmt.Errorf("parse trust anchor jwks for %q: %w", a.EntityID, importErr)
			}
			anchorKeys[a.EntityID] = dir.VerificationKeysAll(a.EntityID)
		}
	}

	client := resty.New().SetTimeout(cfg.Federation.FetchTimeout)
	fetcherOpts := []fetcher.Option{
		fetcher.WithMaxRedirects(cfg.Federation.MaxRedirects),
		fetcher.WithRetries(3, 200*time.Millisecond, 2*time.Second),
	}
	if cfg.Federation.InsecureSkipVerify {
		fetcherOpts = append(fetcherOpts, fetcher.WithInsecureSkipVerify())
	}
	fetch := fetcher.New(client, logger, fetcherOpts...)

	collOpts := []collector.Option{
		collector.WithMaxCacheTTL(cfg.Federation.MaxCacheTTL),
		collector.WithClockSkew(cfg.Federation.ClockSkew),
		collector.WithMaxConcurrency(cfg.Federation.MaxConcurrentFetch),
		collector.WithLogger(logger),
	}
	var store *cachestore.Store
	if cfg.Federation.CacheRedisAddr != "" {
		store = cachestore.New(redis.NewClient(&redis.Options{Addr: cfg.Federation.CacheRedisAddr}), "fedtrust:cache:")
		collOpts = append(collOpts, collector.WithPersist(store))
	}

	coll := collector.New(fetch, anchorIDs, collOpts...)

	verifier := chainverify.New(anchorIDs, anchorKeys, chainverify.WithClockSkew(cfg.Federation.ClockSkew))

	keys := keydir.New(client, logger)
	tmVerifier := trustmark.New(keys, coll, verifier,
		trustmark.WithClockSkew(cfg.Federation.ClockSkew),
		trustmark.WithLogger(logger),
	)

	comp := &Components{
		EntityID:   entityID,
		Collector:  coll,
		Verifier:   verifier,
		KeyDir:     keys,
		TrustMark:  tmVerifier,
		CacheStore: store,
	}

	if cfg.Federation.SigningCertPath != "" && cfg.Federation.SigningKeyPath != "" {
		iss, jwks, err := loadIssuer(entityID, cfg.Federation.SigningCertPath, cfg.Federation.SigningKeyPath)
		if err != nil {
			return nil, err
		}
		comp.Issuer = iss
		comp.Facade = facade.New(entityID, coll, verifier, tmVerifier, iss)
		_ = jwks // jwks is already captured on iss.JWKS; kept for callers inspecting it via comp.Issuer.JWKS
	}

	return comp, nil
}

// loadIssuer loads the entity's signing key pair from disk and derives the
// single-key JWKS an Issuer publishes under "jwks" in its own entity
// configuration.
func loadIssuer(entityID federation.Identifier, certPath, keyPath string) (*issuer.Issuer, jwk.Set, error) {
	signer := dsig.NewFileSigner(certPath, keyPath)
	signingKey, err := signer.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load signing key: %w", err)
	}

	pub, err := jwk.Import(signingKey.Signer.Public())
	if err != nil {
		return nil, nil, fmt.Errorf("derive public key: %w", err)
	}
	if err := pub.Set(jwk.KeyIDKey, signingKey.KeyID); err != nil {
		return nil, nil, fmt.Errorf("set key id: %w", err)
	}
	jwks := jwk.NewSet()
	if err := jwks.AddKey(pub); err != nil {
		return nil, nil, fmt.Errorf("build jwks: %w", err)
	}

	return issuer.New(entityID, jwks, signingKey), jwks, nil
}
