package collector

import "github.com/SUNET/fedtrust/pkg/federation"

// Node is one entity's position in a statement tree. The root is the
// initially requested target; every other node was reached by walking
// authority_hints upward. Err is set when this branch could not be
// completed; such a node contributes no chain, although it may still carry
// the authority node it failed on in Children, and the tree as a whole still
// surfaces successfully resolved siblings.
type Node struct {
	EntityID   federation.Identifier
	Statement  *federation.EntityStatement
	RawConfig  string // this node's own entity configuration, raw compact JWS
	RawSubord  string // the subordinate statement its parent authority issued about it, raw compact JWS (empty at the tree root)
	IsAnchor   bool
	Children   []*Node
	Err        error
}

// Chains performs the tree-to-chains depth-first traversal described in
// spec.md section 4.5: one chain per root-to-anchor path, ordered leaf
// first, anchor last. Branches ending in Err, or not terminating at an
// anchor, contribute no chain. Every node in a chain other than the first
// and last is a subordinate statement, never an intermediate authority's
// own entity configuration — collectViaAuthority splices those out when it
// builds the tree, so a chain's elements already match the Trust Chain
// sequence in spec.md section 3.
func (n *Node) Chains() [][]*Node {
	if n == nil {
		return nil
	}
	if n.Err != nil {
		return nil
	}
	if n.IsAnchor {
		return [][]*Node{{n}}
	}
	var out [][]*Node
	for _, child := range n.Children {
		for _, chain := range child.Chains() {
			out = append(out, append([]*Node{n}, chain...))
		}
	}
	return out
}
