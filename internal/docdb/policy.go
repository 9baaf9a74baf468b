package docdb

import (
	"reflect"
)

// DefaultIndexingPolicy returns the policy the service applies when a collection
// is created without one
func DefaultIndexingPolicy() *IndexingPolicy {
	automatic := true
	return &IndexingPolicy{
		Mode:      IndexingModeConsistent,
		Automatic: &automatic,
	}
}

// Clone returns a deep copy of the policy
func (p *IndexingPolicy) Clone() *IndexingPolicy {
	if p == nil {
		return nil
	}
	out := &IndexingPolicy{Mode: p.Mode}
	if p.Automatic != nil {
		automatic := *p.Automatic
		out.Automatic = &automatic
	}
	if len(p.IncludedPaths) > 0 {
		out.IncludedPaths = make([]IncludedPath, len(p.IncludedPaths))
		for i, included := range p.IncludedPaths {
			out.IncludedPaths[i] = IncludedPath{
				Path:    included.Path,
				Indexes: append([]Index(nil), included.Indexes...),
			}
		}
	}
	if len(p.ExcludedPaths) > 0 {
		out.ExcludedPaths = append([]ExcludedPath(nil), p.ExcludedPaths...)
	}
	return out
}

// normalized fills in service defaults so that two policies describing the
// same behaviour compare equal
func (p *IndexingPolicy) normalized() *IndexingPolicy {
	out := p.Clone()
	if out == nil {
		out = &IndexingPolicy{}
	}
	if out.Mode == "" {
		out.Mode = IndexingModeConsistent
	}
	if out.Automatic == nil {
		automatic := true
		out.Automatic = &automatic
	}
	for i := range out.IncludedPaths {
		if len(out.IncludedPaths[i].Indexes) == 0 {
			out.IncludedPaths[i].Indexes = nil
		}
	}
	return out
}

// IndexingPolicyEqual reports whether two policies are equivalent once
// defaults are applied
func IndexingPolicyEqual(a, b *IndexingPolicy) bool {
	return reflect.DeepEqual(a.normalized(), b.normalized())
}

func cloneCollection(c *CollectionInfo) *CollectionInfo {
	out := *c
	out.IndexingPolicy = c.IndexingPolicy.Clone()
	if c.PartitionKey != nil {
		out.PartitionKey = &PartitionKey{Paths: append([]string(nil), c.PartitionKey.Paths...)}
	}
	if c.DefaultTTL != nil {
		ttl := *c.DefaultTTL
		out.DefaultTTL = &ttl
	}
	return &out
}

func cloneDocument(d *Document) *Document {
	out := *d
	if d.Body != nil {
		out.Body = make(map[string]any, len(d.Body))
		for k, v := range d.Body {
			out.Body[k] = v
		}
	}
	return &out
}

func samePartitionKey(a, b *PartitionKey) bool {
	var pa, pb []string
	if a != nil {
		pa = a.Paths
	}
	if b != nil {
		pb = b.Paths
	}
	if len(pa) != len(pb) {
		return false
	}
	for i := range pa {
		if pa[i] != pb[i] {
			return false
		}
	}
	return true
}
