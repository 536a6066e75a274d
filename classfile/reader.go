package classfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// ---------------------------------------------------------------------------
// Class File Error Types
// ---------------------------------------------------------------------------

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected MAGC")
	ErrVersionMismatch = errors.New("class file version mismatch")
	ErrUnexpectedEOF   = errors.New("unexpected end of class data")
	ErrCorruptData     = errors.New("corrupt class data")
)

// ParseError reports where in the input parsing failed.
type ParseError struct {
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("classfile: offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

type reader struct {
	data   []byte
	offset int
}

func (r *reader) fail(err error) error {
	return &ParseError{Offset: r.offset, Err: err}
}

func (r *reader) need(n int) error {
	if n < 0 || r.offset+n > len(r.data) {
		return r.fail(ErrUnexpectedEOF)
	}
	return nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *reader) i64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return int64(v), nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.offset]
	r.offset++
	return b, nil
}

// count reads a table length and sanity-checks it against the bytes left,
// given the smallest possible encoded entry.
func (r *reader) count(minEntry int) (int, error) {
	n, err := r.u32()
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minEntry) > uint64(len(r.data)-r.offset) {
		return 0, r.fail(fmt.Errorf("%w: table of %d entries exceeds input", ErrCorruptData, n))
	}
	return int(n), nil
}

// blob reads a length-prefixed byte string. The result never aliases the input.
func (r *reader) blob() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := bytes.Clone(r.data[r.offset : r.offset+int(n)])
	r.offset += int(n)
	return b, nil
}

func (r *reader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.data[r.offset : r.offset+int(n)])
	r.offset += int(n)
	return s, nil
}

func (r *reader) strs() ([]string, error) {
	n, err := r.count(4)
	if err != nil {
		return nil, err
	}
	var out []string
	for i := 0; i < n; i++ {
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *reader) pragmas() ([]Pragma, error) {
	n, err := r.count(8)
	if err != nil {
		return nil, err
	}
	var out []Pragma
	for i := 0; i < n; i++ {
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		args, err := r.strs()
		if err != nil {
			return nil, err
		}
		out = append(out, Pragma{Name: name, Args: args})
	}
	return out, nil
}

func (r *reader) attributes() ([]Attribute, error) {
	n, err := r.count(8)
	if err != nil {
		return nil, err
	}
	var out []Attribute
	for i := 0; i < n; i++ {
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		data, err := r.blob()
		if err != nil {
			return nil, err
		}
		out = append(out, Attribute{Name: name, Data: data})
	}
	return out, nil
}

func (r *reader) literal() (Literal, error) {
	kind, err := r.u8()
	if err != nil {
		return Literal{}, err
	}
	switch LiteralKind(kind) {
	case LitInteger:
		v, err := r.i64()
		if err != nil {
			return Literal{}, err
		}
		return Integer(v), nil
	case LitSymbol, LitString, LitClass, LitField:
		s, err := r.str()
		if err != nil {
			return Literal{}, err
		}
		return Literal{Kind: LiteralKind(kind), Text: s}, nil
	default:
		r.offset--
		return Literal{}, r.fail(fmt.Errorf("%w: invalid literal tag 0x%02X", ErrCorruptData, kind))
	}
}

func (r *reader) field(owner *Class) (*Field, error) {
	flags, err := r.u32()
	if err != nil {
		return nil, err
	}
	f := &Field{Owner: owner, Flags: FieldFlags(flags)}
	if f.Name, err = r.str(); err != nil {
		return nil, err
	}
	if f.Type, err = r.str(); err != nil {
		return nil, err
	}
	if f.Pragmas, err = r.pragmas(); err != nil {
		return nil, err
	}
	if f.Attributes, err = r.attributes(); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *reader) method(owner *Class) (*Method, error) {
	flags, err := r.u32()
	if err != nil {
		return nil, err
	}
	m := &Method{Owner: owner, Flags: MethodFlags(flags)}
	if m.Selector, err = r.str(); err != nil {
		return nil, err
	}
	arity, err := r.u32()
	if err != nil {
		return nil, err
	}
	temps, err := r.u32()
	if err != nil {
		return nil, err
	}
	if temps < arity {
		return nil, r.fail(fmt.Errorf("%w: method %s has %d temps for %d arguments", ErrCorruptData, m.Selector, temps, arity))
	}
	m.Arity, m.NumTemps = int(arity), int(temps)

	n, err := r.count(5)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		lit, err := r.literal()
		if err != nil {
			return nil, err
		}
		m.Literals = append(m.Literals, lit)
	}
	if m.Bytecode, err = r.blob(); err != nil {
		return nil, err
	}
	if m.Pragmas, err = r.pragmas(); err != nil {
		return nil, err
	}
	if m.Attributes, err = r.attributes(); err != nil {
		return nil, err
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Parse
// ---------------------------------------------------------------------------

// Parse decodes a class file. The returned descriptor shares no memory
// with data. Errors are *ParseError values wrapping one of the sentinel
// errors of this package.
func Parse(data []byte) (*Class, error) {
	r := &reader{data: data}
	if len(data) < len(Magic) {
		return nil, r.fail(ErrUnexpectedEOF)
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, r.fail(fmt.Errorf("%w: got %q", ErrInvalidMagic, data[:len(Magic)]))
	}
	r.offset = len(Magic)

	version, err := r.u32()
	if err != nil {
		return nil, err
	}
	if version != Version {
		r.offset -= 4
		return nil, r.fail(fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, Version, version))
	}

	flags, err := r.u32()
	if err != nil {
		return nil, err
	}
	c := &Class{Flags: ClassFlags(flags)}
	if c.Name, err = r.str(); err != nil {
		return nil, err
	}
	if c.Name == "" {
		return nil, r.fail(fmt.Errorf("%w: empty class name", ErrCorruptData))
	}
	if c.Superclass, err = r.str(); err != nil {
		return nil, err
	}
	if c.Interfaces, err = r.strs(); err != nil {
		return nil, err
	}
	if c.Pragmas, err = r.pragmas(); err != nil {
		return nil, err
	}

	nFields, err := r.count(20)
	if err != nil {
		return nil, err
	}
	for i := 0; i < nFields; i++ {
		f, err := r.field(c)
		if err != nil {
			return nil, err
		}
		c.Fields = append(c.Fields, f)
	}

	nMethods, err := r.count(32)
	if err != nil {
		return nil, err
	}
	for i := 0; i < nMethods; i++ {
		m, err := r.method(c)
		if err != nil {
			return nil, err
		}
		c.Methods = append(c.Methods, m)
	}

	if c.Attributes, err = r.attributes(); err != nil {
		return nil, err
	}
	if r.offset != len(data) {
		return nil, r.fail(fmt.Errorf("%w: %d trailing bytes", ErrCorruptData, len(data)-r.offset))
	}
	return c, nil
}

// ReadFile parses the class file at path.
func ReadFile(path string) (*Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
