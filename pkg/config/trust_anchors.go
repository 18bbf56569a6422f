package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SUNET/fedtrust/pkg/federation"
)

// TrustAnchor pins one federation trust anchor: its identifier and the
// local JWKS file carrying its verification keys. Anchor keys are loaded
// from disk rather than fetched, since fetching them would make the root
// of trust dependent on the network path it is supposed to anchor.
type TrustAnchor struct {
	EntityID string `yaml:"entity_id"`
	JWKSPath string `yaml:"jwks_path"`
}

// trustAnchorsFile is the on-disk shape of TrustAnchorsPath.
type trustAnchorsFile struct {
	Anchors []TrustAnchor `yaml:"anchors"`
}

// LoadTrustAnchors reads the trust anchor list from path.
func LoadTrustAnchors(path string) ([]TrustAnchor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust anchors file: %w", err)
	}
	var parsed trustAnchorsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse trust anchors file: %w", err)
	}
	return parsed.Anchors, nil
}

// Identifiers extracts the parsed entity ids, failing on the first
// malformed one.
func Identifiers(anchors []TrustAnchor) ([]federation.Identifier, error) {
	ids := make([]federation.Identifier, 0, len(anchors))
	for _, a := range anchors {
		id, err := federation.NewIdentifier(a.EntityID)
		if err != nil {
			return nil, fmt.Errorf("trust anchor %q: %w", a.EntityID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
