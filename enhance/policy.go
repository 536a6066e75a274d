// Package enhance rewrites Maggie class files at definition time to add
// persistence support: lazy attribute loading, inline dirty tracking and
// bidirectional association management.
//
// The entry point is ClassTransformer.Transform, which a class loader calls
// once per definition. Each call scopes the long-lived Policy to the
// loading namespace and runs a fresh Enhancer.
package enhance

import (
	"sort"

	"github.com/chazu/mender/classfile"
)

// Namespace is the class-resolution scope of one definition event.
type Namespace interface {
	Name() string
	ResolveType(name string) (classfile.TypeInfo, bool)
}

// Policy answers the questions the enhancer asks about a class and its
// fields. Implementations must be safe for concurrent use and must not keep
// per-class state between calls.
type Policy interface {
	LoadingNamespace() Namespace

	IsEntityType(c *classfile.Class) bool
	IsEmbeddableType(c *classfile.Class) bool
	IsMappedSuperclass(c *classfile.Class) bool
	HasLazyLoadableAttributes(c *classfile.Class) bool
	InlineDirtyChecking(c *classfile.Class) bool
	ExtendedEnhancement(c *classfile.Class) bool

	IsPersistentField(f *classfile.Field) bool
	IsLazyLoadableField(f *classfile.Field) bool
	IsManagedCollectionField(f *classfile.Field) bool
	ManageBidirectionalAssociation(f *classfile.Field) bool

	// OrderPersistentFields returns a permutation of fields. The position of
	// a field in the result is its attribute index.
	OrderPersistentFields(fields []*classfile.Field) []*classfile.Field
}

// ---------------------------------------------------------------------------
// Pragma names understood by DefaultPolicy
// ---------------------------------------------------------------------------

const (
	PragmaEntity           = "entity"
	PragmaEmbeddable       = "embeddable"
	PragmaMappedSuperclass = "mappedSuperclass"
	PragmaTransient        = "transient"
	PragmaLazy             = "lazy"
	PragmaMappedBy         = "mappedBy:"
)

// DefaultPolicy classifies by pragmas. Dirty checking is inline,
// associations are managed whenever a field names its inverse, extended
// enhancement is off and attributes are ordered by name.
type DefaultPolicy struct{}

var _ Policy = DefaultPolicy{}

// LoadingNamespace returns nil; use Scope to bind one.
func (DefaultPolicy) LoadingNamespace() Namespace { return nil }

func (DefaultPolicy) IsEntityType(c *classfile.Class) bool {
	_, ok := c.Pragma(PragmaEntity)
	return ok
}

func (DefaultPolicy) IsEmbeddableType(c *classfile.Class) bool {
	_, ok := c.Pragma(PragmaEmbeddable)
	return ok
}

func (DefaultPolicy) IsMappedSuperclass(c *classfile.Class) bool {
	_, ok := c.Pragma(PragmaMappedSuperclass)
	return ok
}

// HasLazyLoadableAttributes asks the DefaultPolicy field queries, not those
// of a type embedding it. The engine instruments a field whenever
// IsLazyLoadableField holds, so an override only needs the field query.
func (p DefaultPolicy) HasLazyLoadableAttributes(c *classfile.Class) bool {
	for _, f := range c.Fields {
		if p.IsPersistentField(f) && p.IsLazyLoadableField(f) {
			return true
		}
	}
	return false
}

func (DefaultPolicy) InlineDirtyChecking(*classfile.Class) bool { return true }

func (DefaultPolicy) ExtendedEnhancement(*classfile.Class) bool { return false }

func (DefaultPolicy) IsPersistentField(f *classfile.Field) bool {
	if f.IsStatic() || f.IsSynthetic() {
		return false
	}
	_, transient := f.Pragma(PragmaTransient)
	return !transient
}

func (DefaultPolicy) IsLazyLoadableField(f *classfile.Field) bool {
	_, ok := f.Pragma(PragmaLazy)
	return ok
}

func (DefaultPolicy) IsManagedCollectionField(f *classfile.Field) bool {
	ref, err := f.TypeRef()
	return err == nil && ref.IsCollection()
}

func (DefaultPolicy) ManageBidirectionalAssociation(f *classfile.Field) bool {
	_, ok := f.Pragma(PragmaMappedBy)
	return ok
}

// OrderPersistentFields sorts by field name.
func (DefaultPolicy) OrderPersistentFields(fields []*classfile.Field) []*classfile.Field {
	out := append([]*classfile.Field(nil), fields...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
