package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// ---------------------------------------------------------------------------
// Class File Format Constants
// ---------------------------------------------------------------------------

// Magic is the magic number identifying a Maggie class file.
var Magic = [4]byte{'M', 'A', 'G', 'C'}

// Class file format version
// v1: initial format
const Version uint32 = 1

// Extension is the conventional file extension for class files.
const Extension = ".magc"

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

type writer struct {
	buf bytes.Buffer
	err error
}

func (w *writer) u32(v uint32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (w *writer) length(n int, what string) {
	if uint64(n) > math.MaxUint32 {
		if w.err == nil {
			w.err = fmt.Errorf("%w: %s too long (%d)", ErrCorruptData, what, n)
		}
		return
	}
	w.u32(uint32(n))
}

func (w *writer) str(s string) {
	w.length(len(s), "string")
	w.buf.WriteString(s)
}

func (w *writer) blob(b []byte) {
	w.length(len(b), "blob")
	w.buf.Write(b)
}

func (w *writer) strs(ss []string) {
	w.length(len(ss), "string table")
	for _, s := range ss {
		w.str(s)
	}
}

func (w *writer) pragmas(ps []Pragma) {
	w.length(len(ps), "pragma table")
	for _, p := range ps {
		w.str(p.Name)
		w.strs(p.Args)
	}
}

func (w *writer) attributes(as []Attribute) {
	w.length(len(as), "attribute table")
	for _, a := range as {
		w.str(a.Name)
		w.blob(a.Data)
	}
}

func (w *writer) literal(l Literal) {
	switch l.Kind {
	case LitInteger:
		w.buf.WriteByte(byte(l.Kind))
		w.buf.Write(binary.LittleEndian.AppendUint64(nil, uint64(l.Int)))
	case LitSymbol, LitString, LitClass, LitField:
		w.buf.WriteByte(byte(l.Kind))
		w.str(l.Text)
	default:
		if w.err == nil {
			w.err = fmt.Errorf("%w: invalid literal kind %d", ErrCorruptData, l.Kind)
		}
	}
}

func (w *writer) field(f *Field) {
	w.u32(uint32(f.Flags))
	w.str(f.Name)
	w.str(f.Type)
	w.pragmas(f.Pragmas)
	w.attributes(f.Attributes)
}

func (w *writer) method(m *Method) {
	if m.Arity < 0 || m.NumTemps < m.Arity {
		if w.err == nil {
			w.err = fmt.Errorf("%w: method %s has %d temps for %d arguments", ErrCorruptData, m.Selector, m.NumTemps, m.Arity)
		}
		return
	}
	w.u32(uint32(m.Flags))
	w.str(m.Selector)
	w.length(m.Arity, "arity")
	w.length(m.NumTemps, "temps")
	w.length(len(m.Literals), "literal frame")
	for _, l := range m.Literals {
		w.literal(l)
	}
	w.blob(m.Bytecode)
	w.pragmas(m.Pragmas)
	w.attributes(m.Attributes)
}

// Serialize encodes a class descriptor. Serialize(Parse(b)) == b for every
// valid class file b.
func Serialize(c *Class) ([]byte, error) {
	if c == nil || c.Name == "" {
		return nil, fmt.Errorf("%w: class has no name", ErrCorruptData)
	}
	w := &writer{}
	w.buf.Write(Magic[:])
	w.u32(Version)
	w.u32(uint32(c.Flags))
	w.str(c.Name)
	w.str(c.Superclass)
	w.strs(c.Interfaces)
	w.pragmas(c.Pragmas)

	w.length(len(c.Fields), "field table")
	for _, f := range c.Fields {
		w.field(f)
	}
	w.length(len(c.Methods), "method table")
	for _, m := range c.Methods {
		w.method(m)
	}
	w.attributes(c.Attributes)

	if w.err != nil {
		return nil, fmt.Errorf("serializing %s: %w", c.Name, w.err)
	}
	return w.buf.Bytes(), nil
}

// WriteFile serializes c to path.
func WriteFile(path string, c *Class) error {
	data, err := Serialize(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
