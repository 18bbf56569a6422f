// Package issuer implements the Statement Issuer (spec.md section 4.8):
// producing this entity's own signed entity configuration, subordinate
// statements about its registered subordinates, and trust marks.
package issuer

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/jws"
)

// Subordinate is a registered subordinate this entity can issue statements
// about.
type Subordinate struct {
	EntityID       federation.Identifier
	JWKS           jwk.Set
	MetadataPolicy federation.MetadataPolicy
	Constraints    *federation.Constraints
}

// Lifetimes controls the exp horizon issued for each statement kind.
type Lifetimes struct {
	EntityConfiguration  time.Duration
	SubordinateStatement time.Duration
	TrustMark            time.Duration
}

// DefaultLifetimes mirrors common OpenID Federation deployment defaults.
var DefaultLifetimes = Lifetimes{
	EntityConfiguration:  24 * time.Hour,
	SubordinateStatement: 24 * time.Hour,
	TrustMark:            24 * time.Hour,
}

// Issuer produces signed statements on behalf of one entity.
type Issuer struct {
	EntityID       federation.Identifier
	JWKS           jwk.Set
	Metadata       federation.Metadata
	AuthorityHints []federation.Identifier
	TrustMarks     []string

	SigningKey jws.SigningKey
	Lifetimes  Lifetimes
	Clock      clockwork.Clock

	Subordinates map[string]Subordinate
}

// New constructs an Issuer with DefaultLifetimes and a real clock.
func New(entityID federation.Identifier, jwks jwk.Set, signingKey jws.SigningKey) *Issuer {
	return &Issuer{
		EntityID:     entityID,
		JWKS:         jwks,
		SigningKey:   signingKey,
		Lifetimes:    DefaultLifetimes,
		Clock:        clockwork.NewRealClock(),
		Subordinates: map[string]Subordinate{},
	}
}

// IssueEntityConfiguration produces this entity's self-signed entity
// configuration.
func (i *Issuer) IssueEntityConfiguration() (string, error) {
	now := i.Clock.Now()
	stmt := federation.EntityStatement{
		Issuer:         i.EntityID,
		Subject:        i.EntityID,
		IssuedAt:       now.Unix(),
		Expiration:     now.Add(i.Lifetimes.EntityConfiguration).Unix(),
		JWKS:           i.JWKS,
		Metadata:       i.Metadata,
		AuthorityHints: i.AuthorityHints,
		TrustMarks:     i.TrustMarks,
	}
	return jws.Sign(stmt, i.SigningKey, federation.EntityStatementHeaderType)
}

// IssueSubordinateStatement produces a subordinate statement about sub, or
// an error if sub is not a registered subordinate.
func (i *Issuer) IssueSubordinateStatement(sub federation.Identifier) (string, error) {
	s, ok := i.Subordinates[sub.String()]
	if !ok {
		return "", federation.NewError(federation.KindMalformedResponse, "not a registered subordinate: "+sub.String(), nil)
	}
	now := i.Clock.Now()
	stmt := federation.EntityStatement{
		Issuer:         i.EntityID,
		Subject:        s.EntityID,
		IssuedAt:       now.Unix(),
		Expiration:     now.Add(i.Lifetimes.SubordinateStatement).Unix(),
		JWKS:           s.JWKS,
		MetadataPolicy: s.MetadataPolicy,
		Constraints:    s.Constraints,
	}
	return jws.Sign(stmt, i.SigningKey, federation.EntityStatementHeaderType)
}

// IssueTrustMark produces a trust mark for sub with the given trust_mark_id
// and optional delegation payload (a pre-signed delegation JWS, or empty).
func (i *Issuer) IssueTrustMark(trustMarkID string, sub federation.Identifier, delegation string) (string, error) {
	now := i.Clock.Now()
	claim := federation.TrustMarkClaim{
		Issuer:      i.EntityID,
		Subject:     sub,
		TrustMarkID: trustMarkID,
		IssuedAt:    now.Unix(),
		Expiration:  now.Add(i.Lifetimes.TrustMark).Unix(),
		Delegation:  delegation,
	}
	return jws.Sign(claim, i.SigningKey, federation.TrustMarkHeaderType)
}

// RegisterSubordinate adds or replaces a subordinate's issuance record.
func (i *Issuer) RegisterSubordinate(s Subordinate) {
	i.Subordinates[s.EntityID.String()] = s
}
