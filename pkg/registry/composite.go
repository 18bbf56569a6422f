package registry

import (
	"context"

	"github.com/SUNET/fedtrust/pkg/authzen"
)

// LogicOperator combines the decisions of a CompositeRegistry's children.
type LogicOperator string

const (
	// LogicAND requires every child registry to agree.
	LogicAND LogicOperator = "and"
	// LogicOR requires at least one child registry to agree.
	LogicOR LogicOperator = "or"
	// LogicMAJORITY requires more than half the child registries to agree.
	LogicMAJORITY LogicOperator = "majority"
	// LogicQUORUM requires at least threshold child registries to agree.
	LogicQUORUM LogicOperator = "quorum"
)

// CompositeRegistry aggregates the decisions of multiple child TrustRegistry
// instances under a single LogicOperator, so registries of different kinds
// (federation, TSL, DID) can be composed into one trust decision.
type CompositeRegistry struct {
	name      string
	operator  LogicOperator
	children  []TrustRegistry
	threshold int // only meaningful for LogicQUORUM
}

// NewCompositeRegistry builds a CompositeRegistry over children combined by operator.
func NewCompositeRegistry(name string, operator LogicOperator, children ...TrustRegistry) *CompositeRegistry {
	return &CompositeRegistry{name: name, operator: operator, children: children}
}

// Name returns the composite registry's name.
func (c *CompositeRegistry) Name() string { return c.name }

// Info returns metadata describing this composite registry.
func (c *CompositeRegistry) Info() RegistryInfo {
	return RegistryInfo{
		Name:        c.name,
		Type:        "composite",
		Description: "Composite registry combining " + string(c.operator),
	}
}

// SupportedResourceTypes unions the resource types of every child.
func (c *CompositeRegistry) SupportedResourceTypes() []string {
	seen := map[string]bool{}
	var out []string
	for _, child := range c.children {
		for _, t := range child.SupportedResourceTypes() {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Evaluate queries every child registry and combines their decisions per c.operator.
func (c *CompositeRegistry) Evaluate(ctx context.Context, req *authzen.EvaluationRequest) (*authzen.EvaluationResponse, error) {
	agreed := 0
	errored := 0
	total := len(c.children)

	for _, child := range c.children {
		resp, err := child.Evaluate(ctx, req)
		if err != nil || resp == nil {
			errored++
			continue
		}
		if resp.Decision {
			agreed++
		}
	}

	var decision bool
	reason := map[string]interface{}{
		"operator":     string(c.operator),
		"agreed_count": agreed,
		"total_count":  total,
		"error_count":  errored,
	}

	switch c.operator {
	case LogicAND:
		decision = errored == 0 && agreed == total && total > 0
	case LogicOR:
		decision = agreed > 0
	case LogicMAJORITY:
		hasMajority := total > 0 && agreed*2 > total
		decision = hasMajority
		reason["has_majority"] = hasMajority
	case LogicQUORUM:
		meetsQuorum := agreed >= c.threshold
		decision = meetsQuorum
		reason["quorum_threshold"] = c.threshold
		reason["meets_quorum"] = meetsQuorum
	default:
		decision = false
	}

	return &authzen.EvaluationResponse{
		Decision: decision,
		Context:  &authzen.EvaluationResponseContext{Reason: reason},
	}, nil
}

// Healthy reports true only if every child registry is healthy.
func (c *CompositeRegistry) Healthy() bool {
	for _, child := range c.children {
		if !child.Healthy() {
			return false
		}
	}
	return true
}

// Refresh refreshes every child registry, returning the first error encountered.
func (c *CompositeRegistry) Refresh(ctx context.Context) error {
	for _, child := range c.children {
		if err := child.Refresh(ctx); err != nil {
			return err
		}
	}
	return nil
}
