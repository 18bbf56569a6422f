package federation

import (
	"encoding/json"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// EntityType is a tagged enumeration of the entity types a federation
// statement's metadata/metadata_policy claims may key on. The source
// implementation dispatches on these dynamically at runtime; here they are
// a closed set of string constants so the Policy Engine can stay agnostic
// to any particular entity type's internal claim shape (spec.md section 9).
type EntityType string

const (
	EntityTypeOpenIDProvider     EntityType = "openid_provider"
	EntityTypeOpenIDRelyingParty EntityType = "openid_relying_party"
	EntityTypeFederationEntity   EntityType = "federation_entity"
	EntityTypeTrustMarkIssuer    EntityType = "trust_mark_issuer"
	EntityTypeOAuthClient        EntityType = "oauth_client"
	EntityTypeOAuthServer        EntityType = "oauth_authorization_server"
)

// Well-known header/content-type/path constants.
// https://openid.net/specs/openid-federation-1_0-41.html#section-5.1.1
const (
	EntityStatementHeaderType      = "entity-statement+jwt"
	TrustMarkHeaderType            = "trust-mark+jwt"
	EntityConfigurationPath        = "/.well-known/openid-federation"
	EntityConfigurationContentType = "application/entity-statement+jwt"
)

// Metadata is a flat per-entity-type claim map, e.g.
// Metadata{"openid_relying_party": {"redirect_uris": [...]}}.
type Metadata map[EntityType]map[string]any

// MetadataPolicy is shaped like Metadata but each claim's value is a policy
// object (the operator map described in spec.md section 4.6) rather than a
// literal value.
type MetadataPolicy map[EntityType]map[string]PolicyObject

// PolicyObject is the set of operators that may apply to a single claim.
// Unknown keys are kept in Extra on decode; this engine does not apply
// them, and Extra is not written back out when a PolicyObject is encoded.
type PolicyObject struct {
	Value       any            `json:"value,omitempty"`
	Add         []any          `json:"add,omitempty"`
	Default     any            `json:"default,omitempty"`
	OneOf       []any          `json:"one_of,omitempty"`
	SubsetOf    []any          `json:"subset_of,omitempty"`
	SupersetOf  []any          `json:"superset_of,omitempty"`
	Essential   *bool          `json:"essential,omitempty"`
	Extra       map[string]any `json:"-"`
}

// UnmarshalJSON decodes known operators into the named fields and keeps any
// remaining keys in Extra.
func (p *PolicyObject) UnmarshalJSON(b []byte) error {
	type alias PolicyObject
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, known := range []string{"value", "add", "default", "one_of", "subset_of", "superset_of", "essential"} {
		delete(raw, known)
	}
	a.Extra = raw
	*p = PolicyObject(a)
	return nil
}

// Constraints restricts which chains a subordinate's statements may
// validly be part of (spec.md section 3/6).
type Constraints struct {
	MaxPathLength       *int     `json:"max_path_length,omitempty"`
	NamingConstraints    *Naming `json:"naming_constraints,omitempty"`
	AllowedLeafEntityTypes []EntityType `json:"allowed_leaf_entity_types,omitempty"`
}

// Naming holds permitted/excluded entity-identifier prefixes.
type Naming struct {
	Permitted []string `json:"permitted,omitempty"`
	Excluded  []string `json:"excluded,omitempty"`
}

// TrustMarkOwner identifies the holder of a trust mark id's delegation
// authority, carried in an entity configuration's trust_mark_owners claim.
type TrustMarkOwner struct {
	Subject Identifier `json:"sub"`
	JWKS    jwk.Set    `json:"jwks"`
}

// EntityStatement is the decoded payload of a signed statement: either an
// Entity Configuration (Issuer == Subject) or a Subordinate Statement
// (Issuer != Subject). See spec.md section 3.
type EntityStatement struct {
	Issuer            Identifier            `json:"iss"`
	Subject           Identifier            `json:"sub"`
	IssuedAt          int64                 `json:"iat"`
	Expiration        int64                 `json:"exp"`
	JWKS              jwk.Set               `json:"jwks"`
	Metadata          Metadata              `json:"metadata,omitempty"`
	MetadataPolicy    MetadataPolicy        `json:"metadata_policy,omitempty"`
	AuthorityHints    []Identifier          `json:"authority_hints,omitempty"`
	TrustMarks        []string              `json:"trust_marks,omitempty"`
	Constraints       *Constraints          `json:"constraints,omitempty"`
	TrustMarkIssuers  map[string][]Identifier          `json:"trust_mark_issuers,omitempty"`
	TrustMarkOwners   map[string]TrustMarkOwner        `json:"trust_mark_owners,omitempty"`

	// TrustAnchorID carries a registration response's anchor claim. Both
	// spellings are read; see DESIGN.md open-question resolution.
	TrustAnchorID string `json:"trust_anchor_id,omitempty"`
	TrustAnchor   string `json:"trust_anchor,omitempty"`
}

// IsEntityConfiguration reports whether this statement is self-signed.
func (s *EntityStatement) IsEntityConfiguration() bool {
	return s.Issuer.Equal(s.Subject)
}

// ResolvedTrustAnchorID returns TrustAnchorID, falling back to the legacy
// TrustAnchor spelling.
func (s *EntityStatement) ResolvedTrustAnchorID() string {
	if s.TrustAnchorID != "" {
		return s.TrustAnchorID
	}
	return s.TrustAnchor
}

// TrustMarkClaim is the decoded payload of a signed trust mark.
type TrustMarkClaim struct {
	Issuer      Identifier `json:"iss"`
	Subject     Identifier `json:"sub"`
	TrustMarkID string     `json:"trust_mark_id"`
	IssuedAt    int64      `json:"iat"`
	Expiration  int64      `json:"exp,omitempty"`
	Delegation  string     `json:"delegation,omitempty"`
}

// HasExpiration reports whether the trust mark carries an exp claim.
func (t *TrustMarkClaim) HasExpiration() bool {
	return t.Expiration != 0
}
