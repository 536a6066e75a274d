// Package policy provides the enhancement policies used by the mender
// command: the pragma policy alone, or the pragma policy with a mender.toml
// configuration layered on top.
package policy

import (
	"github.com/chazu/mender/classfile"
	"github.com/chazu/mender/enhance"
	"github.com/chazu/mender/manifest"
)

// Pragmas returns the policy that classifies classes and fields by their
// pragmas alone.
func Pragmas() enhance.Policy {
	return enhance.DefaultPolicy{}
}

// Configured is the pragma policy adjusted by a manifest. Class lists add
// to the pragmas, exclude patterns override both, and feature switches
// turn whole enhancements off.
type Configured struct {
	enhance.DefaultPolicy

	manifest    *manifest.Manifest
	entities    map[string]bool
	embeddables map[string]bool
	mapped      map[string]bool
}

var _ enhance.Policy = (*Configured)(nil)

func set(names []string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// FromManifest builds a policy from m. A nil manifest means the defaults.
// The result is read-only and safe for concurrent use.
func FromManifest(m *manifest.Manifest) *Configured {
	if m == nil {
		m = manifest.Default()
	}
	return &Configured{
		manifest:    m,
		entities:    set(m.Classes.Entities),
		embeddables: set(m.Classes.Embeddables),
		mapped:      set(m.Classes.MappedSuperclasses),
	}
}

// Excluded reports whether the configuration keeps a class unenhanced.
func (p *Configured) Excluded(c *classfile.Class) bool {
	return p.manifest.Excluded(c.Name)
}

func (p *Configured) IsEntityType(c *classfile.Class) bool {
	return !p.Excluded(c) && (p.entities[c.Name] || p.DefaultPolicy.IsEntityType(c))
}

func (p *Configured) IsEmbeddableType(c *classfile.Class) bool {
	return !p.Excluded(c) && (p.embeddables[c.Name] || p.DefaultPolicy.IsEmbeddableType(c))
}

func (p *Configured) IsMappedSuperclass(c *classfile.Class) bool {
	return !p.Excluded(c) && (p.mapped[c.Name] || p.DefaultPolicy.IsMappedSuperclass(c))
}

func (p *Configured) HasLazyLoadableAttributes(c *classfile.Class) bool {
	return p.manifest.Enhance.LazyLoading && p.DefaultPolicy.HasLazyLoadableAttributes(c)
}

func (p *Configured) IsLazyLoadableField(f *classfile.Field) bool {
	return p.manifest.Enhance.LazyLoading && p.DefaultPolicy.IsLazyLoadableField(f)
}

func (p *Configured) InlineDirtyChecking(*classfile.Class) bool {
	return p.manifest.Enhance.DirtyTracking
}

func (p *Configured) ManageBidirectionalAssociation(f *classfile.Field) bool {
	return p.manifest.Enhance.AssociationManagement && p.DefaultPolicy.ManageBidirectionalAssociation(f)
}

func (p *Configured) ExtendedEnhancement(*classfile.Class) bool {
	return p.manifest.Enhance.Extended
}
