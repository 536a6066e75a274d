package enhance

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/mender/classfile"
)

var log = commonlog.GetLogger("mender.enhance")

// Codec converts between class file bytes and descriptors.
type Codec interface {
	Parse(data []byte) (*classfile.Class, error)
	Serialize(c *classfile.Class) ([]byte, error)
}

type binaryCodec struct{}

func (binaryCodec) Parse(data []byte) (*classfile.Class, error) {
	return classfile.Parse(data)
}

func (binaryCodec) Serialize(c *classfile.Class) ([]byte, error) {
	return classfile.Serialize(c)
}

// BinaryCodec reads and writes the .magc format.
var BinaryCodec Codec = binaryCodec{}

// Option configures an Enhancer or ClassTransformer.
type Option func(*options)

type options struct {
	codec Codec
}

// WithCodec replaces the class file codec.
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

func buildOptions(opts []Option) options {
	o := options{codec: BinaryCodec}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Enhancer rewrites class files according to a policy. An Enhancer holds
// no per-class state and may be reused, but ClassTransformer builds a new
// one for every definition so that each sees its own scoped policy.
type Enhancer struct {
	policy Policy
	codec  Codec
}

// NewEnhancer creates an enhancer for p. p.LoadingNamespace must be non-nil
// by the time Enhance is called.
func NewEnhancer(p Policy, opts ...Option) *Enhancer {
	o := buildOptions(opts)
	return &Enhancer{policy: p, codec: o.codec}
}

// Enhance returns the enhanced form of the class file. Classes the policy
// does not classify, and classes that carry an enhancement record already,
// are returned as the original slice.
func (e *Enhancer) Enhance(className string, original []byte) ([]byte, error) {
	c, err := e.codec.Parse(original)
	if err != nil {
		return nil, newError(ErrEnhancement, className, err, "cannot parse class file")
	}
	if c.Name != className {
		return nil, newError(ErrUnsupportedConstruct, className, nil, "class file defines %s", c.Name)
	}

	ns := e.policy.LoadingNamespace()
	if ns == nil {
		return nil, newError(ErrTypeResolution, className, nil, "no loading namespace")
	}
	types := &resolver{self: c, ns: ns}
	refs, err := c.References()
	if err != nil {
		return nil, newError(ErrUnsupportedConstruct, className, err, "unreadable type reference")
	}
	for _, ref := range refs {
		if _, err := types.resolve(ref); err != nil {
			return nil, err
		}
	}

	if _, ok := c.Attribute(RecordAttribute); ok {
		log.Debugf("%s is already enhanced", className)
		return original, nil
	}

	kind, err := e.classify(c)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		log.Debugf("%s is not persistent", className)
		return original, nil
	}

	en := &enhancement{class: c, kind: kind, policy: e.policy, types: types}
	if err := en.run(); err != nil {
		return nil, err
	}

	record, err := MarshalRecord(en.record)
	if err != nil {
		return nil, newError(ErrEnhancement, className, err, "cannot encode enhancement record")
	}
	c.SetAttribute(RecordAttribute, record)

	out, err := e.codec.Serialize(c)
	if err != nil {
		return nil, newError(ErrEnhancement, className, err, "cannot serialize class file")
	}
	log.Infof("enhanced %s as %s with %d attributes in %s", className, kind, len(en.attrs), ns.Name())
	return out, nil
}

func (e *Enhancer) classify(c *classfile.Class) (Kind, error) {
	var kinds []Kind
	if e.policy.IsEntityType(c) {
		kinds = append(kinds, KindEntity)
	}
	if e.policy.IsEmbeddableType(c) {
		kinds = append(kinds, KindEmbeddable)
	}
	if e.policy.IsMappedSuperclass(c) {
		kinds = append(kinds, KindMappedSuperclass)
	}

	switch len(kinds) {
	case 0:
		return "", nil
	case 1:
		if c.IsTrait() {
			return "", newError(ErrUnsupportedConstruct, c.Name, nil, "trait cannot be %s", kinds[0])
		}
		return kinds[0], nil
	default:
		return "", newError(ErrPolicyContract, c.Name, nil, "class classified as both %s and %s", kinds[0], kinds[1])
	}
}

// resolver looks types up in the loading namespace. The class being defined
// resolves to itself.
type resolver struct {
	self *classfile.Class
	ns   Namespace
}

func (r *resolver) resolve(name string) (classfile.TypeInfo, error) {
	if name == r.self.Name {
		return r.self.TypeInfo(), nil
	}
	info, ok := r.ns.ResolveType(name)
	if !ok {
		return classfile.TypeInfo{}, newError(ErrTypeResolution, r.self.Name, nil,
			"cannot resolve %s in namespace %s", name, r.ns.Name())
	}
	return info, nil
}

// inherits reports whether a superclass already declares the field.
func (r *resolver) inherits(field string) (bool, error) {
	seen := map[string]bool{r.self.Name: true}
	name := r.self.Superclass
	for name != "" && !seen[name] {
		seen[name] = true
		info, err := r.resolve(name)
		if err != nil {
			return false, err
		}
		if _, ok := info.Field(field); ok {
			return true, nil
		}
		name = info.Superclass
	}
	return false, nil
}
