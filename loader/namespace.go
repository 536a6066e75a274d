// Package loader provides loading namespaces and a minimal class loader
// that runs registered transformers before a class becomes visible.
package loader

import (
	"sort"
	"sync"

	"github.com/chazu/mender/classfile"
)

// ---------------------------------------------------------------------------
// Namespace: Class-resolution scope
// ---------------------------------------------------------------------------

// Namespace is a registry of visible types. Lookups that miss delegate to
// the parent, so a child sees everything its ancestors define.
// It's thread-safe for concurrent access.
type Namespace struct {
	name   string
	parent *Namespace

	mu    sync.RWMutex
	types map[string]classfile.TypeInfo
}

// NewNamespace creates an empty namespace. parent may be nil.
func NewNamespace(name string, parent *Namespace) *Namespace {
	return &Namespace{
		name:   name,
		parent: parent,
		types:  make(map[string]classfile.TypeInfo),
	}
}

// Name returns the namespace name.
func (ns *Namespace) Name() string {
	return ns.name
}

// Parent returns the delegation parent, or nil.
func (ns *Namespace) Parent() *Namespace {
	return ns.parent
}

// Define registers types in this namespace.
// Returns true if any existing definition was replaced.
func (ns *Namespace) Define(types ...classfile.TypeInfo) bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	replaced := false
	for _, t := range types {
		if _, ok := ns.types[t.Name]; ok {
			replaced = true
		}
		ns.types[t.Name] = t
	}
	return replaced
}

// ResolveType finds a type by qualified name, delegating to the parent on
// a miss.
func (ns *Namespace) ResolveType(name string) (classfile.TypeInfo, bool) {
	for current := ns; current != nil; current = current.parent {
		current.mu.RLock()
		t, ok := current.types[name]
		current.mu.RUnlock()
		if ok {
			return t, true
		}
	}
	return classfile.TypeInfo{}, false
}

// Has reports whether name is defined in this namespace itself.
func (ns *Namespace) Has(name string) bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	_, ok := ns.types[name]
	return ok
}

// Names returns the types defined directly in this namespace, sorted.
func (ns *Namespace) Names() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	names := make([]string, 0, len(ns.types))
	for name := range ns.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of types defined directly in this namespace.
func (ns *Namespace) Len() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.types)
}

// String implements the Stringer interface.
func (ns *Namespace) String() string {
	return ns.name
}

// ---------------------------------------------------------------------------
// System namespace
// ---------------------------------------------------------------------------

// coreClasses are the VM classes every namespace can see, with their
// superclasses.
var coreClasses = [][2]string{
	{"Object", ""},
	{"UndefinedObject", "Object"},
	{"Boolean", "Object"},
	{"True", "Boolean"},
	{"False", "Boolean"},
	{"Magnitude", "Object"},
	{"Number", "Magnitude"},
	{"SmallInteger", "Number"},
	{"Float", "Number"},
	{"Character", "Magnitude"},
	{"String", "Object"},
	{"Symbol", "String"},
	{"Block", "Object"},
	{"Collection", "Object"},
	{"Array", "Collection"},
	{"OrderedCollection", "Collection"},
	{"SortedCollection", "OrderedCollection"},
	{"Set", "Collection"},
	{"Bag", "Collection"},
	{"Dictionary", "Collection"},
	{"Channel", "Object"},
	{"Process", "Object"},
	{"Mutex", "Object"},
	{"Result", "Object"},
	{"Success", "Result"},
	{"Failure", "Result"},
	{"Exception", "Object"},
	{"Error", "Exception"},
	{"DateTime", "Magnitude"},
}

// SystemName is the name of the root namespace.
const SystemName = "System"

// NewSystemNamespace creates a root namespace holding the core classes.
func NewSystemNamespace() *Namespace {
	ns := NewNamespace(SystemName, nil)
	for _, c := range coreClasses {
		ns.Define(classfile.TypeInfo{Name: c[0], Superclass: c[1]})
	}
	return ns
}

// IsCoreClass reports whether name is one of the VM core classes.
func IsCoreClass(name string) bool {
	for _, c := range coreClasses {
		if c[0] == name {
			return true
		}
	}
	return false
}
