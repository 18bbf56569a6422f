package chainverify

import (
	"github.com/SUNET/fedtrust/pkg/collector"
	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/policy"
)

// nodeAdapter satisfies policy.ChainNode over a collector.Node, letting the
// policy engine stay ignorant of the collector's tree shape.
type nodeAdapter struct{ node *collector.Node }

func (a nodeAdapter) Metadata() federation.Metadata             { return a.node.Statement.Metadata }
func (a nodeAdapter) MetadataPolicy() federation.MetadataPolicy { return a.node.Statement.MetadataPolicy }

// EffectiveMetadata applies the policy engine to this verified chain,
// producing the leaf's effective metadata per spec.md section 4.6.
func (c *VerifiedChain) EffectiveMetadata() (federation.Metadata, error) {
	adapted := make([]policy.ChainNode, len(c.Nodes))
	for i, n := range c.Nodes {
		adapted[i] = nodeAdapter{node: n}
	}
	return policy.Apply(adapted)
}
