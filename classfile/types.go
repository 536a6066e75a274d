package classfile

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// LiteralKind tags a literal frame entry.
type LiteralKind byte

const (
	LitSymbol  LiteralKind = 0x1 // selector or symbol
	LitString  LiteralKind = 0x2
	LitInteger LiteralKind = 0x3
	LitClass   LiteralKind = 0x4 // reference to a class by qualified name
	LitField   LiteralKind = 0x5 // symbolic reference to a field of the receiver
)

// Literal is one entry of a method's literal frame.
// Text holds the payload of every kind except LitInteger.
type Literal struct {
	Kind LiteralKind
	Text string
	Int  int64
}

// Symbol returns a symbol literal.
func Symbol(s string) Literal { return Literal{Kind: LitSymbol, Text: s} }

// String returns a string literal.
func String(s string) Literal { return Literal{Kind: LitString, Text: s} }

// Integer returns an integer literal.
func Integer(v int64) Literal { return Literal{Kind: LitInteger, Int: v} }

// ClassRef returns a class reference literal.
func ClassRef(name string) Literal { return Literal{Kind: LitClass, Text: name} }

// FieldRef returns a field reference literal.
func FieldRef(name string) Literal { return Literal{Kind: LitField, Text: name} }

func (l Literal) String() string {
	switch l.Kind {
	case LitSymbol:
		return "#" + l.Text
	case LitString:
		return fmt.Sprintf("%q", l.Text)
	case LitInteger:
		return fmt.Sprintf("%d", l.Int)
	case LitClass:
		return "class " + l.Text
	case LitField:
		return "field " + l.Text
	default:
		return fmt.Sprintf("literal(%d)", l.Kind)
	}
}

// ---------------------------------------------------------------------------
// Type references
// ---------------------------------------------------------------------------

// collectionTypes are the core classes whose type references take an
// element parameter.
var collectionTypes = map[string]bool{
	"Collection":        true,
	"OrderedCollection": true,
	"Array":             true,
	"Set":               true,
	"Bag":               true,
	"SortedCollection":  true,
}

// TypeRef is a parsed field type: a class name with an optional element type,
// e.g. "OrderedCollection<Shop::Order>".
type TypeRef struct {
	Name    string
	Element *TypeRef
}

// ParseTypeRef parses a type reference. The empty string is the dynamic
// type and parses as "Object".
func ParseTypeRef(s string) (TypeRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeRef{Name: "Object"}, nil
	}
	open := strings.IndexByte(s, '<')
	if open < 0 {
		if strings.ContainsAny(s, "<> ,") {
			return TypeRef{}, fmt.Errorf("%w: malformed type reference %q", ErrCorruptData, s)
		}
		return TypeRef{Name: s}, nil
	}
	if !strings.HasSuffix(s, ">") || open == 0 {
		return TypeRef{}, fmt.Errorf("%w: malformed type reference %q", ErrCorruptData, s)
	}
	elem, err := ParseTypeRef(s[open+1 : len(s)-1])
	if err != nil {
		return TypeRef{}, err
	}
	return TypeRef{Name: s[:open], Element: &elem}, nil
}

// IsCollection reports whether the reference names a core collection class.
func (t TypeRef) IsCollection() bool {
	return collectionTypes[t.Name]
}

// Names returns every class name mentioned by the reference, outermost first.
func (t TypeRef) Names() []string {
	names := []string{t.Name}
	if t.Element != nil {
		names = append(names, t.Element.Names()...)
	}
	return names
}

// Target returns the associated entity type: the element type for
// collections, the type itself otherwise.
func (t TypeRef) Target() string {
	if t.Element != nil {
		return t.Element.Target()
	}
	return t.Name
}

func (t TypeRef) String() string {
	if t.Element == nil {
		return t.Name
	}
	return t.Name + "<" + t.Element.String() + ">"
}

// ---------------------------------------------------------------------------
// TypeInfo: The resolved view of a class
// ---------------------------------------------------------------------------

// TypeInfo is what a namespace knows about a visible class.
type TypeInfo struct {
	Name       string
	Superclass string
	Interfaces []string
	Fields     []FieldInfo
}

// FieldInfo describes one field of a resolved type.
type FieldInfo struct {
	Name string
	Type string
}

// Field returns the named field.
func (t TypeInfo) Field(name string) (FieldInfo, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// TypeInfo summarizes the class for registration in a namespace.
func (c *Class) TypeInfo() TypeInfo {
	info := TypeInfo{
		Name:       c.Name,
		Superclass: c.Superclass,
		Interfaces: append([]string(nil), c.Interfaces...),
	}
	for _, f := range c.Fields {
		if f.IsStatic() {
			continue
		}
		info.Fields = append(info.Fields, FieldInfo{Name: f.Name, Type: f.Type})
	}
	return info
}

// References returns every class name the class depends on: superclass,
// traits, field types and class literals, in declaration order without
// duplicates.
func (c *Class) References() ([]string, error) {
	seen := make(map[string]bool)
	var refs []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	}

	add(c.Superclass)
	for _, i := range c.Interfaces {
		add(i)
	}
	for _, f := range c.Fields {
		ref, err := f.TypeRef()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		for _, n := range ref.Names() {
			add(n)
		}
	}
	for _, m := range c.Methods {
		for _, lit := range m.Literals {
			if lit.Kind == LitClass {
				add(lit.Text)
			}
		}
	}
	return refs, nil
}
