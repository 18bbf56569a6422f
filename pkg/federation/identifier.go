// Package federation defines the core OpenID Federation data model: entity
// identifiers, signed-statement payloads, entity-type tags, and the error
// kinds shared by every other package in this module.
package federation

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Identifier is a validated OpenID Federation entity identifier: an https
// or http URL with no fragment or query component.
//
// https://openid.net/specs/openid-federation-1_0-41.html#section-1.2-3.4
type Identifier struct {
	url url.URL
}

// NewIdentifier validates identifier and returns an Identifier, or an error
// describing which constraint failed.
func NewIdentifier(identifier string) (Identifier, error) {
	u, err := url.Parse(identifier)
	if err != nil {
		return Identifier{}, fmt.Errorf("entity identifier %q: %w", identifier, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return Identifier{}, fmt.Errorf("entity identifier %q: scheme must be https or http", identifier)
	}
	if u.Fragment != "" {
		return Identifier{}, fmt.Errorf("entity identifier %q: must not have a fragment", identifier)
	}
	if len(u.Query()) > 0 {
		return Identifier{}, fmt.Errorf("entity identifier %q: must not have a query", identifier)
	}
	return Identifier{url: *u}, nil
}

// MustIdentifier panics if identifier is not valid. Intended for tests and
// static configuration, never for data arriving over the network.
func MustIdentifier(identifier string) Identifier {
	id, err := NewIdentifier(identifier)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical string form of the identifier.
func (i Identifier) String() string {
	return i.url.String()
}

// Equal reports whether two identifiers denote the same entity.
func (i Identifier) Equal(other Identifier) bool {
	return i.url.String() == other.url.String()
}

// IsZero reports whether i is the zero value.
func (i Identifier) IsZero() bool {
	return i.url.String() == ""
}

// WellKnownURL returns the URL of this entity's published entity
// configuration document.
func (i Identifier) WellKnownURL() string {
	u := i.url
	u.Path = joinPath(u.Path, ".well-known/openid-federation")
	return u.String()
}

func joinPath(base, suffix string) string {
	if base == "" {
		return "/" + suffix
	}
	if base[len(base)-1] == '/' {
		return base + suffix
	}
	return base + "/" + suffix
}

func (i Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Identifier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	id, err := NewIdentifier(s)
	if err != nil {
		return err
	}
	*i = id
	return nil
}
