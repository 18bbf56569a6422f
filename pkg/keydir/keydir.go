// Package keydir implements the Key Directory (spec.md section 4.2): a
// per-issuer collection of public keys, populated by inline import or by
// fetching a JWKS (plain or signed) from a URL.
package keydir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/jws"
	"github.com/SUNET/fedtrust/pkg/logging"
)

// Directory maps entity id to its known key set. Reads (VerificationKeys)
// dominate writes (Import*), so a single RWMutex is sufficient; rotation is
// handled by replace-on-import rather than any merge logic.
type Directory struct {
	mu     sync.RWMutex
	keys   map[string]jwk.Set
	client *resty.Client
	logger logging.Logger
}

// New returns an empty Directory. client is used for ImportFromURL and
// ImportSignedJWKS; if nil, a default resty client is created.
func New(client *resty.Client, logger logging.Logger) *Directory {
	if client == nil {
		client = resty.New()
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Directory{
		keys:   make(map[string]jwk.Set),
		client: client,
		logger: logger,
	}
}

// Import adds or replaces the key set for entityID.
func (d *Directory) Import(entityID string, set jwk.Set) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[entityID] = set
	d.logger.Debug("imported keys", logging.F("entity_id", entityID), logging.F("count", set.Len()))
}

// ImportFromURL fetches a plain JWKS document from url and imports it under
// entityID.
func (d *Directory) ImportFromURL(ctx context.Context, entityID, url string) error {
	resp, err := d.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return federation.NewError(federation.KindNetworkError, "fetch jwks", err)
	}
	if resp.IsError() {
		return federation.NewHTTPError(resp.StatusCode(), "fetch jwks")
	}
	set, err := jwk.Parse(resp.Body())
	if err != nil {
		return federation.NewError(federation.KindMalformedResponse, "parse jwks", err)
	}
	d.Import(entityID, set)
	return nil
}

// ImportSignedJWKS fetches a signed JWKS container (a compact JWS whose
// payload is a JWKS document) from url, verifies it using whatever keys are
// already known for entityID, and imports the payload on success.
func (d *Directory) ImportSignedJWKS(ctx context.Context, entityID, url string) error {
	existing := d.VerificationKeysAll(entityID)
	if existing == nil || existing.Len() == 0 {
		return federation.NewError(federation.KindUnknownKey, "no existing keys to verify signed jwks container", nil)
	}

	resp, err := d.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return federation.NewError(federation.KindNetworkError, "fetch signed jwks", err)
	}
	if resp.IsError() {
		return federation.NewHTTPError(resp.StatusCode(), "fetch signed jwks")
	}

	payload, err := jws.Verify(string(resp.Body()), existing)
	if err != nil {
		return err
	}
	set, err := jwk.Parse(payload)
	if err != nil {
		return federation.NewError(federation.KindMalformedResponse, "parse signed jwks payload", err)
	}
	d.Import(entityID, set)
	return nil
}

// ImportFromReader decodes a JWKS document from r and imports it under
// entityID. Convenience for tests and config-file loading.
func (d *Directory) ImportFromReader(entityID string, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read jwks: %w", err)
	}
	set, err := jwk.Parse(body)
	if err != nil {
		return federation.NewError(federation.KindMalformedResponse, "parse jwks", err)
	}
	d.Import(entityID, set)
	return nil
}

// VerificationKeys returns the keys known for entityID whose JWK key type
// (kty, e.g. "RSA" or "EC") equals keyType; an empty keyType returns all of
// them. Returns an empty set (never nil) if entityID is unknown.
func (d *Directory) VerificationKeys(entityID string, keyType string) jwk.Set {
	d.mu.RLock()
	defer d.mu.RUnlock()
	all, ok := d.keys[entityID]
	out := jwk.NewSet()
	if !ok {
		return out
	}
	it := all.Keys(nil)
	for it.Next(nil) {
		key, ok := it.Pair().Value.(jwk.Key)
		if !ok {
			continue
		}
		if keyType == "" || key.KeyType().String() == keyType {
			_ = out.AddKey(key)
		}
	}
	return out
}

// VerificationKeysAll returns every key known for entityID, or nil if none.
func (d *Directory) VerificationKeysAll(entityID string) jwk.Set {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set, ok := d.keys[entityID]
	if !ok {
		return nil
	}
	return set
}

// Has reports whether any keys are known for entityID.
func (d *Directory) Has(entityID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.keys[entityID]
	return ok
}

// Snapshot decodes a raw JSON JWKS document, useful when parsing trust
// anchor configuration at startup.
func Snapshot(raw json.RawMessage) (jwk.Set, error) {
	return jwk.Parse(raw)
}
