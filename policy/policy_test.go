package policy

import (
	"testing"

	"github.com/chazu/mender/classfile"
	"github.com/chazu/mender/enhance"
	"github.com/chazu/mender/manifest"
)

func class(name string, pragmas ...string) *classfile.Class {
	c := &classfile.Class{Name: name, Superclass: "Object"}
	for _, p := range pragmas {
		c.Pragmas = append(c.Pragmas, classfile.Pragma{Name: p})
	}
	return c
}

func TestPragmas(t *testing.T) {
	p := Pragmas()
	if !p.IsEntityType(class("Shop::Order", enhance.PragmaEntity)) {
		t.Error("entity pragma ignored")
	}
	if p.IsEntityType(class("Shop::Order")) {
		t.Error("class without pragma classified")
	}
}

func TestFromManifestClassLists(t *testing.T) {
	m := manifest.Default()
	m.Classes = manifest.Classes{
		Entities:           []string{"Shop::Order"},
		Embeddables:        []string{"Shop::Address"},
		MappedSuperclasses: []string{"Shop::Base"},
		Exclude:            []string{"Shop::Legacy*"},
	}
	p := FromManifest(m)

	tests := []struct {
		class              *classfile.Class
		entity, embed, msc bool
	}{
		{class("Shop::Order"), true, false, false},
		{class("Shop::Address"), false, true, false},
		{class("Shop::Base"), false, false, true},
		{class("Shop::Customer", enhance.PragmaEntity), true, false, false},
		{class("Shop::LegacyOrder", enhance.PragmaEntity), false, false, false},
		{class("Shop::Helper"), false, false, false},
	}
	for _, tc := range tests {
		c := tc.class
		if got := p.IsEntityType(c); got != tc.entity {
			t.Errorf("IsEntityType(%s) = %v", c.Name, got)
		}
		if got := p.IsEmbeddableType(c); got != tc.embed {
			t.Errorf("IsEmbeddableType(%s) = %v", c.Name, got)
		}
		if got := p.IsMappedSuperclass(c); got != tc.msc {
			t.Errorf("IsMappedSuperclass(%s) = %v", c.Name, got)
		}
	}
}

func TestFromManifestFeatureSwitches(t *testing.T) {
	lazy := &classfile.Field{Name: "notes", Type: "String", Pragmas: []classfile.Pragma{{Name: enhance.PragmaLazy}}}
	inverse := &classfile.Field{Name: "customer", Type: "Shop::Customer",
		Pragmas: []classfile.Pragma{{Name: enhance.PragmaMappedBy, Args: []string{"#orders"}}}}
	c := class("Shop::Order", enhance.PragmaEntity)
	c.AddField(lazy)
	c.AddField(inverse)

	on := FromManifest(nil)
	if !on.HasLazyLoadableAttributes(c) || !on.IsLazyLoadableField(lazy) {
		t.Error("lazy loading off by default")
	}
	if !on.InlineDirtyChecking(c) || !on.ManageBidirectionalAssociation(inverse) {
		t.Error("defaults disabled a feature")
	}
	if on.ExtendedEnhancement(c) {
		t.Error("extended enhancement on by default")
	}

	m := manifest.Default()
	m.Enhance = manifest.Features{Extended: true}
	off := FromManifest(m)
	if off.HasLazyLoadableAttributes(c) || off.IsLazyLoadableField(lazy) {
		t.Error("lazy loading not switched off")
	}
	if off.InlineDirtyChecking(c) || off.ManageBidirectionalAssociation(inverse) {
		t.Error("feature not switched off")
	}
	if !off.ExtendedEnhancement(c) {
		t.Error("extended enhancement not switched on")
	}
}
