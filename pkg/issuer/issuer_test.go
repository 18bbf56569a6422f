package issuer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/require"

	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/jws"
)

func newKeySet(t *testing.T) (*ecdsa.PrivateKey, jwk.Set) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub, err := jwk.Import(priv.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "k1"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	return priv, set
}

func TestIssueEntityConfigurationRoundTrips(t *testing.T) {
	priv, set := newKeySet(t)
	id, err := federation.NewIdentifier("https://rp.example.com")
	require.NoError(t, err)

	iss := New(id, set, jws.SigningKey{KeyID: "k1", Algorithm: jwa.ES256(), Signer: priv})
	iss.Clock = clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))

	token, err := iss.IssueEntityConfiguration()
	require.NoError(t, err)

	payload, err := jws.Verify(token, set)
	require.NoError(t, err)

	var stmt federation.EntityStatement
	require.NoError(t, json.Unmarshal(payload, &stmt))
	require.True(t, stmt.IsEntityConfiguration())
	require.Equal(t, int64(1_700_000_000), stmt.IssuedAt)
}

func TestIssueSubordinateStatementRequiresRegistration(t *testing.T) {
	priv, set := newKeySet(t)
	id, err := federation.NewIdentifier("https://authority.example.com")
	require.NoError(t, err)
	sub, err := federation.NewIdentifier("https://leaf.example.com")
	require.NoError(t, err)

	iss := New(id, set, jws.SigningKey{KeyID: "k1", Algorithm: jwa.ES256(), Signer: priv})
	_, err = iss.IssueSubordinateStatement(sub)
	require.Error(t, err)

	iss.RegisterSubordinate(Subordinate{EntityID: sub, JWKS: set})
	token, err := iss.IssueSubordinateStatement(sub)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}
