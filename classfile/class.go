// Package classfile reads and writes compiled Maggie class files.
//
// A class file holds one class: its qualified name, superclass, traits,
// pragmas, fields and compiled methods. The encoding is canonical, so a
// descriptor parsed from valid bytes serializes back to the same bytes.
package classfile

import "strings"

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

// ClassFlags describe class-level modifiers.
type ClassFlags uint32

const (
	ClassAbstract  ClassFlags = 1 << 0
	ClassTrait     ClassFlags = 1 << 1 // trait, cannot be instantiated
	ClassSynthetic ClassFlags = 1 << 2
)

// FieldFlags describe field modifiers.
type FieldFlags uint32

const (
	FieldStatic    FieldFlags = 1 << 0 // class-side variable
	FieldSynthetic FieldFlags = 1 << 1 // generated, not declared in source
	FieldReadOnly  FieldFlags = 1 << 2
)

// MethodFlags describe method modifiers.
type MethodFlags uint32

const (
	MethodClassSide MethodFlags = 1 << 0
	MethodSynthetic MethodFlags = 1 << 1
	MethodPrimitive MethodFlags = 1 << 2 // body is a VM primitive, bytecode is a fallback
)

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

// Class is the in-memory view of one class file.
type Class struct {
	Flags      ClassFlags
	Name       string // qualified, e.g. "Shop::Customer"
	Superclass string // empty for root classes
	Interfaces []string
	Pragmas    []Pragma
	Fields     []*Field
	Methods    []*Method
	Attributes []Attribute
}

// Field is one instance or class-side variable.
type Field struct {
	Owner      *Class // back-reference, set by Parse and AddField
	Flags      FieldFlags
	Name       string
	Type       string // type reference, see ParseTypeRef
	Pragmas    []Pragma
	Attributes []Attribute
}

// Method is one compiled method.
type Method struct {
	Owner      *Class
	Flags      MethodFlags
	Selector   string
	Arity      int
	NumTemps   int // arguments + locals
	Literals   []Literal
	Bytecode   []byte
	Pragmas    []Pragma
	Attributes []Attribute
}

// Attribute is an opaque named blob carried through unchanged.
type Attribute struct {
	Name string
	Data []byte
}

// Pragma is declaration metadata: <name: arg arg>.
type Pragma struct {
	Name string
	Args []string
}

// ---------------------------------------------------------------------------
// Naming helpers
// ---------------------------------------------------------------------------

// SplitName splits a qualified name into namespace and simple name.
// "Shop::Orders::Line" -> ("Shop::Orders", "Line").
func SplitName(qualified string) (namespace, name string) {
	idx := strings.LastIndex(qualified, "::")
	if idx < 0 {
		return "", qualified
	}
	return qualified[:idx], qualified[idx+2:]
}

// SimpleName returns the unqualified class name.
func (c *Class) SimpleName() string {
	_, name := SplitName(c.Name)
	return name
}

// Namespace returns the namespace part of the class name.
func (c *Class) Namespace() string {
	ns, _ := SplitName(c.Name)
	return ns
}

// String implements the Stringer interface.
func (c *Class) String() string {
	return c.Name
}

// IsTrait reports whether the class is a trait.
func (c *Class) IsTrait() bool {
	return c.Flags&ClassTrait != 0
}

// ---------------------------------------------------------------------------
// Lookup and mutation
// ---------------------------------------------------------------------------

// Field returns the field with the given name, or nil.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Method returns the instance-side method with the given selector, or nil.
func (c *Class) Method(selector string) *Method {
	for _, m := range c.Methods {
		if m.Selector == selector && m.Flags&MethodClassSide == 0 {
			return m
		}
	}
	return nil
}

// Pragma returns the first class pragma with the given name.
func (c *Class) Pragma(name string) (Pragma, bool) {
	return findPragma(c.Pragmas, name)
}

// Attribute returns the named class attribute.
func (c *Class) Attribute(name string) (Attribute, bool) {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// HasInterface reports whether the class lists the given trait.
func (c *Class) HasInterface(name string) bool {
	for _, i := range c.Interfaces {
		if i == name {
			return true
		}
	}
	return false
}

// AddField appends a field and sets its owner.
func (c *Class) AddField(f *Field) {
	f.Owner = c
	c.Fields = append(c.Fields, f)
}

// AddMethod appends a method and sets its owner.
func (c *Class) AddMethod(m *Method) {
	m.Owner = c
	c.Methods = append(c.Methods, m)
}

// AddInterface appends a trait if it is not already listed.
func (c *Class) AddInterface(name string) {
	if !c.HasInterface(name) {
		c.Interfaces = append(c.Interfaces, name)
	}
}

// SetAttribute replaces or appends a class attribute.
func (c *Class) SetAttribute(name string, data []byte) {
	for i := range c.Attributes {
		if c.Attributes[i].Name == name {
			c.Attributes[i].Data = data
			return
		}
	}
	c.Attributes = append(c.Attributes, Attribute{Name: name, Data: data})
}

// Pragma returns the first field pragma with the given name.
func (f *Field) Pragma(name string) (Pragma, bool) {
	return findPragma(f.Pragmas, name)
}

// IsStatic reports whether the field is class-side.
func (f *Field) IsStatic() bool { return f.Flags&FieldStatic != 0 }

// IsSynthetic reports whether the field was generated.
func (f *Field) IsSynthetic() bool { return f.Flags&FieldSynthetic != 0 }

// TypeRef parses the declared type.
func (f *Field) TypeRef() (TypeRef, error) {
	return ParseTypeRef(f.Type)
}

// Pragma returns the first method pragma with the given name.
func (m *Method) Pragma(name string) (Pragma, bool) {
	return findPragma(m.Pragmas, name)
}

// IsSynthetic reports whether the method was generated.
func (m *Method) IsSynthetic() bool { return m.Flags&MethodSynthetic != 0 }

// IsClassSide reports whether the method is defined on the metaclass.
func (m *Method) IsClassSide() bool { return m.Flags&MethodClassSide != 0 }

// AddLiteral returns the index of lit in the literal frame, appending it
// when not present.
func (m *Method) AddLiteral(lit Literal) int {
	for i, l := range m.Literals {
		if l == lit {
			return i
		}
	}
	m.Literals = append(m.Literals, lit)
	return len(m.Literals) - 1
}

// Arg returns the pragma argument at i with a leading '#' stripped,
// or "" when out of range.
func (p Pragma) Arg(i int) string {
	if i < 0 || i >= len(p.Args) {
		return ""
	}
	return strings.TrimPrefix(p.Args[i], "#")
}

// String renders the pragma in source form.
func (p Pragma) String() string {
	if len(p.Args) == 0 {
		return "<" + p.Name + ">"
	}
	return "<" + p.Name + " " + strings.Join(p.Args, " ") + ">"
}

func findPragma(ps []Pragma, name string) (Pragma, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return Pragma{}, false
}
