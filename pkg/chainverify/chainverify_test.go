package chainverify

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/require"

	"github.com/SUNET/fedtrust/pkg/collector"
	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/jws"
)

type entity struct {
	id     federation.Identifier
	priv   *ecdsa.PrivateKey
	pubSet jwk.Set
}

func newEntity(t *testing.T, id string) *entity {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub, err := jwk.Import(priv.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, id))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	ident, err := federation.NewIdentifier(id)
	require.NoError(t, err)
	return &entity{id: ident, priv: priv, pubSet: set}
}

func (e *entity) sign(t *testing.T, stmt federation.EntityStatement) string {
	t.Helper()
	token, err := jws.Sign(stmt, jws.SigningKey{KeyID: e.id.String(), Algorithm: jwa.ES256(), Signer: e.priv}, federation.EntityStatementHeaderType)
	require.NoError(t, err)
	return token
}

type fixtureFetcher struct {
	configs      map[string]string
	subordinates map[string]string
}

func (f *fixtureFetcher) GetEntityConfiguration(_ context.Context, entityID federation.Identifier) (string, error) {
	token, ok := f.configs[entityID.String()]
	if !ok {
		return "", federation.NewHTTPError(404, "no such entity")
	}
	return token, nil
}

func (f *fixtureFetcher) FetchSubordinate(_ context.Context, _ string, _, sub federation.Identifier) (string, error) {
	token, ok := f.subordinates[sub.String()]
	if !ok {
		return "", federation.NewHTTPError(404, "no such subordinate")
	}
	return token, nil
}

func fetchEndpointMetadata(id federation.Identifier) federation.Metadata {
	return federation.Metadata{
		federation.EntityTypeFederationEntity: {"federation_fetch_endpoint": id.String() + "/fetch"},
	}
}

func TestVerifyTreeAcceptsValidChainAndPinsAnchorKeys(t *testing.T) {
	anchor := newEntity(t, "https://anchor.example.com")
	leaf := newEntity(t, "https://leaf.example.com")
	now := time.Now()

	anchorConfig := anchor.sign(t, federation.EntityStatement{
		Issuer: anchor.id, Subject: anchor.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(),
		JWKS: anchor.pubSet,
		Metadata: federation.Metadata{
			federation.EntityTypeFederationEntity: {"federation_fetch_endpoint": "https://anchor.example.com/fetch"},
		},
	})
	leafConfig := leaf.sign(t, federation.EntityStatement{
		Issuer: leaf.id, Subject: leaf.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(),
		JWKS: leaf.pubSet, AuthorityHints: []federation.Identifier{anchor.id},
	})
	subordinate := anchor.sign(t, federation.EntityStatement{
		Issuer: anchor.id, Subject: leaf.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(), JWKS: leaf.pubSet,
	})

	f := &fixtureFetcher{
		configs:      map[string]string{anchor.id.String(): anchorConfig, leaf.id.String(): leafConfig},
		subordinates: map[string]string{leaf.id.String(): subordinate},
	}
	root := collector.New(f, []federation.Identifier{anchor.id}).Collect(context.Background(), leaf.id)
	require.NoError(t, root.Err)

	verifier := New([]federation.Identifier{anchor.id}, map[string]jwk.Set{anchor.id.String(): anchor.pubSet})
	chains := verifier.VerifyTree(root)
	require.Len(t, chains, 1)
	require.True(t, chains[0].Leaf().Subject.Equal(leaf.id))
	require.True(t, chains[0].AnchorID.Equal(anchor.id))
}

func TestVerifyTreeRejectsUnpinnedAnchorKeys(t *testing.T) {
	anchor := newEntity(t, "https://anchor.example.com")
	impostorAnchorKey := newEntity(t, "https://anchor.example.com") // same id, different key pair
	leaf := newEntity(t, "https://leaf.example.com")
	now := time.Now()

	anchorConfig := anchor.sign(t, federation.EntityStatement{
		Issuer: anchor.id, Subject: anchor.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(),
		JWKS: anchor.pubSet,
		Metadata: federation.Metadata{
			federation.EntityTypeFederationEntity: {"federation_fetch_endpoint": "https://anchor.example.com/fetch"},
		},
	})
	leafConfig := leaf.sign(t, federation.EntityStatement{
		Issuer: leaf.id, Subject: leaf.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(),
		JWKS: leaf.pubSet, AuthorityHints: []federation.Identifier{anchor.id},
	})
	subordinate := anchor.sign(t, federation.EntityStatement{
		Issuer: anchor.id, Subject: leaf.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(), JWKS: leaf.pubSet,
	})

	f := &fixtureFetcher{
		configs:      map[string]string{anchor.id.String(): anchorConfig, leaf.id.String(): leafConfig},
		subordinates: map[string]string{leaf.id.String(): subordinate},
	}
	root := collector.New(f, []federation.Identifier{anchor.id}).Collect(context.Background(), leaf.id)
	require.NoError(t, root.Err)

	// Operator pinned a different key for this anchor id than the one it
	// actually used: the chain must be rejected even though the anchor's
	// self-reported jwks is internally consistent.
	verifier := New([]federation.Identifier{anchor.id}, map[string]jwk.Set{anchor.id.String(): impostorAnchorKey.pubSet})
	chains := verifier.VerifyTree(root)
	require.Empty(t, chains)
}

func TestVerifyTreeAcceptsThreeLevelChain(t *testing.T) {
	anchor := newEntity(t, "https://anchor.example.com")
	intermediate := newEntity(t, "https://intermediate.example.com")
	leaf := newEntity(t, "https://leaf.example.com")
	now := time.Now()

	anchorConfig := anchor.sign(t, federation.EntityStatement{
		Issuer: anchor.id, Subject: anchor.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(),
		JWKS: anchor.pubSet, Metadata: fetchEndpointMetadata(anchor.id),
	})
	intermediateConfig := intermediate.sign(t, federation.EntityStatement{
		Issuer: intermediate.id, Subject: intermediate.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(),
		JWKS: intermediate.pubSet, AuthorityHints: []federation.Identifier{anchor.id},
		Metadata: fetchEndpointMetadata(intermediate.id),
	})
	anchorAboutIntermediate := anchor.sign(t, federation.EntityStatement{
		Issuer: anchor.id, Subject: intermediate.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(), JWKS: intermediate.pubSet,
	})
	leafConfig := leaf.sign(t, federation.EntityStatement{
		Issuer: leaf.id, Subject: leaf.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(),
		JWKS: leaf.pubSet, AuthorityHints: []federation.Identifier{intermediate.id},
	})
	intermediateAboutLeaf := intermediate.sign(t, federation.EntityStatement{
		Issuer: intermediate.id, Subject: leaf.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(), JWKS: leaf.pubSet,
	})

	f := &fixtureFetcher{
		configs: map[string]string{
			anchor.id.String():       anchorConfig,
			intermediate.id.String(): intermediateConfig,
			leaf.id.String():         leafConfig,
		},
		subordinates: map[string]string{
			intermediate.id.String(): anchorAboutIntermediate,
			leaf.id.String():         intermediateAboutLeaf,
		},
	}
	root := collector.New(f, []federation.Identifier{anchor.id}).Collect(context.Background(), leaf.id)
	require.NoError(t, root.Err)

	verifier := New([]federation.Identifier{anchor.id}, map[string]jwk.Set{anchor.id.String(): anchor.pubSet})
	chains := verifier.VerifyTree(root)
	require.Len(t, chains, 1)
	require.Len(t, chains[0].Nodes, 4, "chain must be exactly [leaf EC, SS(intermediate->leaf), SS(anchor->intermediate), anchor EC]")
	require.True(t, chains[0].Leaf().Subject.Equal(leaf.id))
	require.True(t, chains[0].AnchorID.Equal(anchor.id))
}

// TestVerifyTreeRejectsForgedIntermediateSelfKey covers the key-provenance
// invariant in spec.md section 3: an intermediate authority that controls
// its own well-known endpoint, but not its superior's fetch endpoint,
// cannot unilaterally swap in a new signing key for statements it issues.
// The anchor genuinely vouches for the intermediate's real key; the
// intermediate's own self-published configuration (and everything it signs
// with the forged key) must not be trusted as a substitute key source.
func TestVerifyTreeRejectsForgedIntermediateSelfKey(t *testing.T) {
	anchor := newEntity(t, "https://anchor.example.com")
	genuineIntermediate := newEntity(t, "https://intermediate.example.com")
	forgedIntermediate := newEntity(t, "https://intermediate.example.com") // same id, attacker-controlled key
	leaf := newEntity(t, "https://leaf.example.com")
	now := time.Now()

	anchorConfig := anchor.sign(t, federation.EntityStatement{
		Issuer: anchor.id, Subject: anchor.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(),
		JWKS: anchor.pubSet, Metadata: fetchEndpointMetadata(anchor.id),
	})
	// The attacker republishes the intermediate's own entity configuration
	// with a new key, via the well-known endpoint only the intermediate
	// controls.
	forgedIntermediateConfig := forgedIntermediate.sign(t, federation.EntityStatement{
		Issuer: forgedIntermediate.id, Subject: forgedIntermediate.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(),
		JWKS: forgedIntermediate.pubSet, AuthorityHints: []federation.Identifier{anchor.id},
		Metadata: fetchEndpointMetadata(forgedIntermediate.id),
	})
	// The anchor's subordinate statement about the intermediate is
	// untouched by the attacker and still vouches for the real key.
	anchorAboutIntermediate := anchor.sign(t, federation.EntityStatement{
		Issuer: anchor.id, Subject: genuineIntermediate.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(), JWKS: genuineIntermediate.pubSet,
	})
	leafConfig := leaf.sign(t, federation.EntityStatement{
		Issuer: leaf.id, Subject: leaf.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(),
		JWKS: leaf.pubSet, AuthorityHints: []federation.Identifier{genuineIntermediate.id},
	})
	// The attacker signs the statement about the leaf with the forged key.
	forgedAboutLeaf := forgedIntermediate.sign(t, federation.EntityStatement{
		Issuer: genuineIntermediate.id, Subject: leaf.id,
		IssuedAt: now.Unix(), Expiration: now.Add(time.Hour).Unix(), JWKS: leaf.pubSet,
	})

	f := &fixtureFetcher{
		configs: map[string]string{
			anchor.id.String():              anchorConfig,
			genuineIntermediate.id.String(): forgedIntermediateConfig,
			leaf.id.String():                leafConfig,
		},
		subordinates: map[string]string{
			genuineIntermediate.id.String(): anchorAboutIntermediate,
			leaf.id.String():                forgedAboutLeaf,
		},
	}
	root := collector.New(f, []federation.Identifier{anchor.id}).Collect(context.Background(), leaf.id)
	require.NoError(t, root.Err)

	verifier := New([]federation.Identifier{anchor.id}, map[string]jwk.Set{anchor.id.String(): anchor.pubSet})
	chains := verifier.VerifyTree(root)
	require.Empty(t, chains, "a statement signed with the intermediate's self-published (forged) key must not verify against the anchor-attested key")
}
