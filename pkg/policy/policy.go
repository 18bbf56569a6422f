// Package policy implements the metadata policy engine (spec.md section
// 4.6): combining each superior's metadata_policy into a single composite
// policy while walking a chain leaf-upward, then applying that composite to
// the leaf's declared metadata.
package policy

import (
	"fmt"

	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/utils"
)

// composite accumulates the combined operators for one claim as policy
// objects are merged in, leaf-to-anchor order.
type composite struct {
	hasValue    bool
	value       any
	add         *utils.Set[string]
	addOrder    []any // preserves addition order for non-comparable values
	hasDefault  bool
	defaultVal  any
	oneOf       *utils.Set[string]
	oneOfVals   []any
	hasOneOf    bool
	subsetOf    *utils.Set[string]
	subsetVals  []any
	hasSubset   bool
	supersetOf  *utils.Set[string]
	supersetVal []any
	essential   bool
}

// Apply computes the effective metadata for a chain: start from leaf, then
// walk superiors leaf-upward combining metadata_policy, then apply the
// composite policy to the leaf metadata. nodes must be ordered leaf first,
// anchor last, and every entry's Statement must be non-nil.
func Apply(nodes []ChainNode) (federation.Metadata, error) {
	if len(nodes) == 0 {
		return nil, federation.NewError(federation.KindMalformedResponse, "empty chain", nil)
	}
	leafMetadata := cloneMetadata(nodes[0].Metadata())

	composites := map[federation.EntityType]map[string]*composite{}
	for _, node := range nodes[1:] {
		for entityType, claims := range node.MetadataPolicy() {
			for claim, obj := range claims {
				if err := mergeInto(composites, entityType, claim, obj); err != nil {
					return nil, err
				}
			}
		}
	}

	effective := federation.Metadata{}
	for entityType, claims := range leafMetadata {
		out := map[string]any{}
		for claim, value := range claims {
			out[claim] = value
		}
		effective[entityType] = out
	}

	for entityType, claims := range composites {
		if _, ok := effective[entityType]; !ok {
			effective[entityType] = map[string]any{}
		}
		for claim, c := range claims {
			v, present := effective[entityType][claim]
			newVal, newPresent, err := c.apply(v, present)
			if err != nil {
				return nil, fmt.Errorf("claim %s/%s: %w", entityType, claim, err)
			}
			if c.essential && !newPresent {
				return nil, federation.NewError(federation.KindEssentialMissing, string(entityType)+"/"+claim, nil)
			}
			if newPresent {
				effective[entityType][claim] = newVal
			}
		}
	}

	return effective, nil
}

// ChainNode is the minimal view Apply needs of one chain link; satisfied
// by *collector.Node via an adapter in the caller to avoid an import cycle.
type ChainNode interface {
	Metadata() federation.Metadata
	MetadataPolicy() federation.MetadataPolicy
}

func cloneMetadata(m federation.Metadata) federation.Metadata {
	if m == nil {
		return federation.Metadata{}
	}
	out := make(federation.Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeInto(composites map[federation.EntityType]map[string]*composite, entityType federation.EntityType, claim string, obj federation.PolicyObject) error {
	if composites[entityType] == nil {
		composites[entityType] = map[string]*composite{}
	}
	c, ok := composites[entityType][claim]
	if !ok {
		c = &composite{}
		composites[entityType][claim] = c
	}
	return c.merge(obj)
}

func (c *composite) merge(obj federation.PolicyObject) error {
	if obj.Value != nil {
		if c.hasValue && !equalAny(c.value, obj.Value) {
			return federation.NewError(federation.KindPolicyConflict, "conflicting value operators", nil)
		}
		c.hasValue = true
		c.value = obj.Value
	}
	if len(obj.Add) > 0 {
		for _, v := range obj.Add {
			if !containsAny(c.addOrder, v) {
				c.addOrder = append(c.addOrder, v)
			}
		}
	}
	if obj.Default != nil && !c.hasDefault {
		c.hasDefault = true
		c.defaultVal = obj.Default
	}
	if len(obj.OneOf) > 0 {
		if !c.hasOneOf {
			c.hasOneOf = true
			c.oneOfVals = obj.OneOf
		} else {
			c.oneOfVals = intersectAny(c.oneOfVals, obj.OneOf)
			if len(c.oneOfVals) == 0 {
				return federation.NewError(federation.KindPolicyConflict, "one_of intersection empty", nil)
			}
		}
	}
	if len(obj.SubsetOf) > 0 {
		if !c.hasSubset {
			c.hasSubset = true
			c.subsetVals = obj.SubsetOf
		} else {
			c.subsetVals = intersectAny(c.subsetVals, obj.SubsetOf)
		}
	}
	if len(obj.SupersetOf) > 0 {
		for _, v := range obj.SupersetOf {
			if !containsAny(c.supersetVal, v) {
				c.supersetVal = append(c.supersetVal, v)
			}
		}
	}
	if obj.Essential != nil && *obj.Essential {
		c.essential = true
	}
	return nil
}

// apply runs the operator pipeline in the fixed order value -> add/default
// -> one_of/subset_of/superset_of -> essential, against the claim's
// current value v (present reports whether the leaf declared it at all).
func (c *composite) apply(v any, present bool) (any, bool, error) {
	if c.hasValue {
		v, present = c.value, true
	}

	if len(c.addOrder) > 0 {
		list, ok := asList(v)
		if !ok {
			list = nil
		}
		for _, item := range c.addOrder {
			if !containsAny(list, item) {
				list = append(list, item)
			}
		}
		v, present = list, true
	}
	if c.hasDefault && !present {
		v, present = c.defaultVal, true
	}

	if c.hasOneOf && present {
		if !containsAny(c.oneOfVals, v) {
			return nil, false, fmt.Errorf("value not in one_of set")
		}
	}
	if c.hasSubset && present {
		list, ok := asList(v)
		if ok {
			v = intersectAny(list, c.subsetVals)
		}
	}
	if len(c.supersetVal) > 0 && present {
		list, ok := asList(v)
		if !ok {
			return nil, false, fmt.Errorf("superset_of requires a list value")
		}
		for _, want := range c.supersetVal {
			if !containsAny(list, want) {
				return nil, false, fmt.Errorf("superset_of requires %v", want)
			}
		}
	}

	return v, present, nil
}

func asList(v any) ([]any, bool) {
	list, ok := v.([]any)
	return list, ok
}

func equalAny(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func containsAny(list []any, v any) bool {
	for _, item := range list {
		if equalAny(item, v) {
			return true
		}
	}
	return false
}

func intersectAny(a, b []any) []any {
	var out []any
	for _, item := range a {
		if containsAny(b, item) {
			out = append(out, item)
		}
	}
	return out
}
