package enhance

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/mender/classfile"
)

// attribute is one persistent field and the instrumentation planned for it.
type attribute struct {
	field       *classfile.Field
	index       int
	lazy        bool
	collection  bool
	association *Association
}

// enhancement holds the state of one Enhance call.
type enhancement struct {
	class  *classfile.Class
	kind   Kind
	policy Policy
	types  *resolver

	attrs        []*attribute
	byName       map[string]*attribute
	interception bool
	dirty        bool
	extended     bool
	redirected   map[*classfile.Method]bool
	record       *Record
}

func (en *enhancement) fail(kind, cause error, format string, args ...any) error {
	return newError(kind, en.class.Name, cause, format, args...)
}

func (en *enhancement) run() error {
	passes := []func() error{
		en.checkReserved,
		en.planAttributes,
		en.addSupport,
		en.generateAccessors,
		en.redirectAccessors,
		en.extendFieldAccess,
	}
	for _, pass := range passes {
		if err := pass(); err != nil {
			return err
		}
	}
	return nil
}

// checkReserved rejects classes that already use generated member names.
func (en *enhancement) checkReserved() error {
	for _, f := range en.class.Fields {
		if strings.HasPrefix(f.Name, syntheticPrefix) {
			return en.fail(ErrUnsupportedConstruct, nil, "field %s uses the reserved prefix %s", f.Name, syntheticPrefix)
		}
	}
	for _, m := range en.class.Methods {
		if strings.HasPrefix(m.Selector, syntheticPrefix) {
			return en.fail(ErrUnsupportedConstruct, nil, "method %s uses the reserved prefix %s", m.Selector, syntheticPrefix)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Planning
// ---------------------------------------------------------------------------

func (en *enhancement) planAttributes() error {
	c := en.class

	var persistent []*classfile.Field
	for _, f := range c.Fields {
		if !en.policy.IsPersistentField(f) {
			continue
		}
		if f.IsStatic() {
			return en.fail(ErrUnsupportedConstruct, nil, "class-side field %s cannot be persistent", f.Name)
		}
		persistent = append(persistent, f)
	}

	ordered := en.policy.OrderPersistentFields(persistent)
	if err := checkPermutation(persistent, ordered); err != nil {
		return en.fail(ErrPolicyContract, err, "invalid persistent field order")
	}

	en.interception = en.policy.HasLazyLoadableAttributes(c)
	en.dirty = en.policy.InlineDirtyChecking(c)
	en.extended = en.policy.ExtendedEnhancement(c)
	en.byName = make(map[string]*attribute, len(ordered))
	en.redirected = make(map[*classfile.Method]bool)
	en.record = &Record{
		Version:       recordVersion,
		Kind:          en.kind,
		Attributes:    []string{},
		DirtyTracking: en.dirty,
		Extended:      en.extended,
	}

	for i, f := range ordered {
		a := &attribute{
			field:      f,
			index:      i,
			lazy:       en.policy.IsLazyLoadableField(f),
			collection: en.policy.IsManagedCollectionField(f),
		}
		if en.policy.ManageBidirectionalAssociation(f) {
			assoc, err := en.planAssociation(f)
			if err != nil {
				return err
			}
			a.association = assoc
		}

		en.attrs = append(en.attrs, a)
		en.byName[f.Name] = a
		en.record.Attributes = append(en.record.Attributes, f.Name)
		if a.lazy {
			en.interception = true
			en.record.Lazy = append(en.record.Lazy, f.Name)
		}
		if a.association != nil {
			en.record.Associations = append(en.record.Associations, *a.association)
		}
		log.Debugf("%s.%s: index %d lazy=%t collection=%t association=%t",
			c.Name, f.Name, i, a.lazy, a.collection, a.association != nil)
	}
	return nil
}

// checkPermutation verifies that out holds exactly the fields of in,
// compared by identity.
func checkPermutation(in, out []*classfile.Field) error {
	if len(out) != len(in) {
		return fmt.Errorf("got %d fields, want %d", len(out), len(in))
	}
	pending := make(map[*classfile.Field]bool, len(in))
	for _, f := range in {
		pending[f] = true
	}
	for i, f := range out {
		if f == nil {
			return fmt.Errorf("nil field at position %d", i)
		}
		if !pending[f] {
			return fmt.Errorf("field %s at position %d is unknown or repeated", f.Name, i)
		}
		delete(pending, f)
	}
	return nil
}

// planAssociation finds the inverse side of a bidirectional association.
// It returns nil when the field does not name its inverse.
func (en *enhancement) planAssociation(f *classfile.Field) (*Association, error) {
	p, _ := f.Pragma(PragmaMappedBy)
	inverse := p.Arg(0)
	if inverse == "" {
		log.Warningf("%s.%s: bidirectional association has no mappedBy, leaving it unmanaged", en.class.Name, f.Name)
		return nil, nil
	}

	ref, err := f.TypeRef()
	if err != nil {
		return nil, en.fail(ErrUnsupportedConstruct, err, "field %s", f.Name)
	}
	target := ref.Target()
	info, err := en.types.resolve(target)
	if err != nil {
		return nil, err
	}
	if _, ok := info.Field(inverse); !ok {
		return nil, en.fail(ErrUnsupportedConstruct, nil,
			"field %s: inverse %s not found on %s", f.Name, inverse, target)
	}
	return &Association{Field: f.Name, Target: target, Inverse: inverse, ToMany: ref.IsCollection()}, nil
}

// ---------------------------------------------------------------------------
// Support members
// ---------------------------------------------------------------------------

var kindMarkers = map[Kind]string{
	KindEntity:           ManagedEntityType,
	KindEmbeddable:       ManagedCompositeType,
	KindMappedSuperclass: ManagedMappedSuperclassType,
}

func (en *enhancement) implement(trait string) error {
	if _, err := en.types.resolve(trait); err != nil {
		return err
	}
	en.class.AddInterface(trait)
	return nil
}

func (en *enhancement) addField(name, typ string) {
	en.class.AddField(&classfile.Field{Flags: classfile.FieldSynthetic, Name: name, Type: typ})
}

// addMethod assembles a generated instance method. Every class the body
// refers to must resolve.
func (en *enhancement) addMethod(selector string, arity int, pragmas []classfile.Pragma, body func(b *classfile.Builder)) error {
	m := &classfile.Method{
		Flags:    classfile.MethodSynthetic,
		Selector: selector,
		Arity:    arity,
		NumTemps: arity,
		Pragmas:  append([]classfile.Pragma{{Name: pragmaEnhancedMethod}}, pragmas...),
	}
	b := classfile.NewBuilder(m)
	body(b)
	bc, err := b.Bytes()
	if err != nil {
		return en.fail(ErrUnsupportedConstruct, err, "cannot assemble %s", selector)
	}
	m.Bytecode = bc
	for _, lit := range m.Literals {
		if lit.Kind == classfile.LitClass {
			if _, err := en.types.resolve(lit.Text); err != nil {
				return err
			}
		}
	}
	en.class.AddMethod(m)
	return nil
}

func (en *enhancement) addSupport() error {
	if err := en.implement(kindMarkers[en.kind]); err != nil {
		return err
	}
	if en.interception {
		if err := en.addInterception(); err != nil {
			return err
		}
	}
	if !en.dirty {
		return nil
	}
	if en.kind == KindEmbeddable {
		return en.addCompositeTracking()
	}
	return en.addSelfTracking()
}

func (en *enhancement) addInterception() error {
	if err := en.implement(InterceptableType); err != nil {
		return err
	}
	inherited, err := en.types.inherits(fieldInterceptor)
	if err != nil || inherited {
		return err
	}

	en.addField(fieldInterceptor, "Object")
	if err := en.addMethod(selGetInterceptor, 0, nil, func(b *classfile.Builder) {
		b.PushField(fieldInterceptor).Emit(classfile.OpReturnTop)
	}); err != nil {
		return err
	}
	return en.addMethod(selSetInterceptor, 1, nil, func(b *classfile.Builder) {
		b.PushTemp(0).StoreField(fieldInterceptor).Emit(classfile.OpPOP).Emit(classfile.OpReturnSelf)
	})
}

// addSelfTracking gives entities and mapped superclasses their own set of
// changed attribute names.
func (en *enhancement) addSelfTracking() error {
	if err := en.implement(SelfDirtinessTrackerType); err != nil {
		return err
	}
	inherited, err := en.types.inherits(fieldTracker)
	if err != nil || inherited {
		return err
	}

	en.addField(fieldTracker, DirtyTrackerType)
	methods := []struct {
		selector string
		arity    int
		body     func(b *classfile.Builder)
	}{
		{selTrackChange, 1, func(b *classfile.Builder) {
			ready := b.NewLabel()
			b.PushField(fieldTracker).Jump(classfile.OpJumpNotNil, ready)
			b.PushGlobal(DirtyTrackerType).Send(selNew, 0).StoreField(fieldTracker).Emit(classfile.OpPOP)
			b.Mark(ready)
			b.PushField(fieldTracker).PushTemp(0).Send(selTrackerAdd, 1).Emit(classfile.OpPOP)
			b.Emit(classfile.OpReturnSelf)
		}},
		{selHasDirty, 0, func(b *classfile.Builder) {
			clean := b.NewLabel()
			b.PushField(fieldTracker).Jump(classfile.OpJumpNil, clean)
			b.PushField(fieldTracker).Send(selTrackerIsEmpty, 0).Jump(classfile.OpJumpTrue, clean)
			b.Emit(classfile.OpPushTrue).Emit(classfile.OpReturnTop)
			b.Mark(clean)
			b.Emit(classfile.OpPushFalse).Emit(classfile.OpReturnTop)
		}},
		{selDirtyAttributes, 0, func(b *classfile.Builder) {
			none := b.NewLabel()
			b.PushField(fieldTracker).Jump(classfile.OpJumpNil, none)
			b.PushField(fieldTracker).Send(selTrackerNames, 0).Emit(classfile.OpReturnTop)
			b.Mark(none)
			b.PushGlobal(emptyDirtyResultClass).Send(selNew, 0).Emit(classfile.OpReturnTop)
		}},
		{selClearDirty, 0, func(b *classfile.Builder) {
			done := b.NewLabel()
			b.PushField(fieldTracker).Jump(classfile.OpJumpNil, done)
			b.PushField(fieldTracker).Send(selTrackerClear, 0).Emit(classfile.OpPOP)
			b.Mark(done)
			b.Emit(classfile.OpReturnSelf)
		}},
	}
	for _, m := range methods {
		if err := en.addMethod(m.selector, m.arity, nil, m.body); err != nil {
			return err
		}
	}
	return nil
}

// addCompositeTracking makes an embeddable report changes to the entity
// that owns it.
func (en *enhancement) addCompositeTracking() error {
	if err := en.implement(CompositeTrackerType); err != nil {
		return err
	}
	inherited, err := en.types.inherits(fieldOwner)
	if err != nil || inherited {
		return err
	}

	en.addField(fieldOwner, "Object")
	en.addField(fieldOwnerAttribute, "Symbol")

	if err := en.addMethod(selSetOwner, 2, nil, func(b *classfile.Builder) {
		b.PushTemp(0).StoreField(fieldOwner).Emit(classfile.OpPOP)
		b.PushTemp(1).StoreField(fieldOwnerAttribute).Emit(classfile.OpPOP)
		b.Emit(classfile.OpReturnSelf)
	}); err != nil {
		return err
	}
	if err := en.addMethod(selClearOwner, 0, nil, func(b *classfile.Builder) {
		b.Emit(classfile.OpPushNil).StoreField(fieldOwner).Emit(classfile.OpPOP)
		b.Emit(classfile.OpPushNil).StoreField(fieldOwnerAttribute).Emit(classfile.OpPOP)
		b.Emit(classfile.OpReturnSelf)
	}); err != nil {
		return err
	}
	return en.addMethod(selTrackChange, 1, nil, func(b *classfile.Builder) {
		orphan := b.NewLabel()
		b.PushField(fieldOwner).Jump(classfile.OpJumpNil, orphan)
		b.PushField(fieldOwner).PushField(fieldOwnerAttribute).Send(selTrackChange, 1).Emit(classfile.OpPOP)
		b.Mark(orphan)
		b.Emit(classfile.OpReturnSelf)
	})
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func indexPragma(i int) []classfile.Pragma {
	return []classfile.Pragma{{Name: pragmaAttributeIndex, Args: []string{strconv.Itoa(i)}}}
}

// generateAccessors emits a reader and a writer per attribute. Writer
// instrumentation runs lazy interception first, then association
// management, then dirty tracking, then the store.
func (en *enhancement) generateAccessors() error {
	for _, a := range en.attrs {
		if err := en.addMethod(readerSelector(a.field.Name), 0, indexPragma(a.index), en.readerBody(a)); err != nil {
			return err
		}
		if err := en.addMethod(writerSelector(a.field.Name), 1, indexPragma(a.index), en.writerBody(a)); err != nil {
			return err
		}
	}
	return nil
}

func (en *enhancement) readerBody(a *attribute) func(b *classfile.Builder) {
	name := a.field.Name
	return func(b *classfile.Builder) {
		if a.lazy {
			loaded := b.NewLabel()
			b.PushField(fieldInterceptor).Jump(classfile.OpJumpNil, loaded)
			b.PushField(fieldInterceptor).PushSelf().PushSymbol(name).PushField(name).
				Send(selInterceptorRead, 3).StoreField(name).Emit(classfile.OpPOP)
			b.Mark(loaded)
		}
		b.PushField(name).Emit(classfile.OpReturnTop)
	}
}

func (en *enhancement) writerBody(a *attribute) func(b *classfile.Builder) {
	name := a.field.Name
	return func(b *classfile.Builder) {
		if a.lazy {
			direct := b.NewLabel()
			b.PushField(fieldInterceptor).Jump(classfile.OpJumpNil, direct)
			b.PushField(fieldInterceptor).PushSelf().PushSymbol(name).PushField(name).PushTemp(0).
				Send(selInterceptorWrite, 4).StoreTemp(0).Emit(classfile.OpPOP)
			b.Mark(direct)
		}
		if assoc := a.association; assoc != nil {
			sel := selAssociateOne
			if assoc.ToMany {
				sel = selAssociateMany
			}
			b.PushGlobal(AssociationsType).PushSelf().PushSymbol(assoc.Inverse).PushField(name).PushTemp(0).
				Send(sel, 4).Emit(classfile.OpPOP)
		}
		if en.dirty {
			if a.collection {
				b.PushSelf().PushSymbol(name).Send(selTrackChange, 1).Emit(classfile.OpPOP)
			} else {
				unchanged := b.NewLabel()
				b.PushField(name).PushTemp(0).Send(selEqual, 1).Jump(classfile.OpJumpTrue, unchanged)
				b.PushSelf().PushSymbol(name).Send(selTrackChange, 1).Emit(classfile.OpPOP)
				b.Mark(unchanged)
			}
		}
		b.PushTemp(0).StoreField(name).Emit(classfile.OpPOP)
		b.PushTemp(0).Emit(classfile.OpReturnTop)
	}
}

// ---------------------------------------------------------------------------
// Rewriting existing methods
// ---------------------------------------------------------------------------

// instrumentable reports whether a method body may be rewritten.
func instrumentable(m *classfile.Method) bool {
	return !m.IsSynthetic() && !m.IsClassSide() && m.Flags&classfile.MethodPrimitive == 0
}

// fieldOperand returns the persistent field named by a field instruction.
func (en *enhancement) fieldOperand(m *classfile.Method, inst classfile.Instruction) (*attribute, bool) {
	if inst.Op != classfile.OpPushField && inst.Op != classfile.OpStoreField {
		return nil, false
	}
	if inst.Operand < 0 || inst.Operand >= len(m.Literals) {
		return nil, false
	}
	lit := m.Literals[inst.Operand]
	if lit.Kind != classfile.LitField {
		return nil, false
	}
	a, ok := en.byName[lit.Text]
	return a, ok
}

func (en *enhancement) decode(m *classfile.Method) ([]classfile.Instruction, error) {
	insts, err := classfile.Decode(m.Bytecode)
	if err != nil {
		return nil, en.fail(ErrUnsupportedConstruct, err, "cannot decode %s", m.Selector)
	}
	for _, inst := range insts {
		if (inst.Op == classfile.OpPushField || inst.Op == classfile.OpStoreField) &&
			(inst.Operand >= len(m.Literals) || m.Literals[inst.Operand].Kind != classfile.LitField) {
			return nil, en.fail(ErrUnsupportedConstruct, nil, "%s: %s operand is not a field literal", m.Selector, inst.Op)
		}
	}
	return insts, nil
}

// redirectAccessors points trivial getters and setters of persistent
// fields at the generated accessors.
func (en *enhancement) redirectAccessors() error {
	for _, m := range en.class.Methods {
		if !instrumentable(m) {
			continue
		}
		insts, err := en.decode(m)
		if err != nil {
			return err
		}
		a, setter, ok := en.trivialAccessor(m, insts)
		if !ok {
			continue
		}

		b := classfile.NewBuilder(m)
		if setter {
			b.PushSelf().PushTemp(0).Send(writerSelector(a.field.Name), 1).Emit(classfile.OpPOP).Emit(classfile.OpReturnSelf)
		} else {
			b.PushSelf().Send(readerSelector(a.field.Name), 0).Emit(classfile.OpReturnTop)
		}
		bc, err := b.Bytes()
		if err != nil {
			return en.fail(ErrUnsupportedConstruct, err, "cannot redirect %s", m.Selector)
		}
		m.Bytecode = bc
		en.redirected[m] = true
		en.record.Rewritten = append(en.record.Rewritten, m.Selector)
		log.Debugf("%s>>%s redirected to generated accessor", en.class.Name, m.Selector)
	}
	return nil
}

// trivialAccessor matches "^field" and "field := arg" method bodies.
func (en *enhancement) trivialAccessor(m *classfile.Method, insts []classfile.Instruction) (*attribute, bool, bool) {
	switch {
	case m.Arity == 0 && len(insts) == 2 &&
		insts[0].Op == classfile.OpPushField &&
		insts[1].Op == classfile.OpReturnTop:
		a, ok := en.fieldOperand(m, insts[0])
		return a, false, ok
	case m.Arity == 1 && len(insts) == 4 &&
		insts[0].Op == classfile.OpPushTemp && insts[0].Operand == 0 &&
		insts[1].Op == classfile.OpStoreField &&
		insts[2].Op == classfile.OpPOP &&
		insts[3].Op == classfile.OpReturnSelf:
		a, ok := en.fieldOperand(m, insts[1])
		return a, true, ok
	}
	return nil, false, false
}

// extendFieldAccess routes every remaining read and write of a persistent
// field through the generated accessors.
func (en *enhancement) extendFieldAccess() error {
	if !en.extended {
		return nil
	}
	for _, m := range en.class.Methods {
		if !instrumentable(m) || en.redirected[m] {
			continue
		}
		insts, err := en.decode(m)
		if err != nil {
			return err
		}
		out, changed := en.redirectFieldAccess(m, insts)
		if !changed {
			continue
		}
		bc, err := classfile.Encode(out)
		if err != nil {
			return en.fail(ErrUnsupportedConstruct, err, "cannot relocate %s", m.Selector)
		}
		m.Bytecode = bc
		en.record.Rewritten = append(en.record.Rewritten, m.Selector)
		log.Debugf("%s>>%s field access routed through accessors", en.class.Name, m.Selector)
	}
	return nil
}

// redirectFieldAccess replaces field instructions and relocates jumps.
// A store leaves the stored value on the stack, and so does the writer.
func (en *enhancement) redirectFieldAccess(m *classfile.Method, insts []classfile.Instruction) ([]classfile.Instruction, bool) {
	moved := make([]int, len(insts)+1)
	out := make([]classfile.Instruction, 0, len(insts))
	changed := false

	for i, inst := range insts {
		moved[i] = len(out)
		a, ok := en.fieldOperand(m, inst)
		if !ok {
			out = append(out, inst)
			continue
		}
		changed = true
		if inst.Op == classfile.OpPushField {
			out = append(out,
				classfile.Instruction{Op: classfile.OpPushSelf},
				classfile.Instruction{Op: classfile.OpSend, Operand: m.AddLiteral(classfile.Symbol(readerSelector(a.field.Name)))})
		} else {
			out = append(out,
				classfile.Instruction{Op: classfile.OpPushSelf},
				classfile.Instruction{Op: classfile.OpSWAP},
				classfile.Instruction{Op: classfile.OpSend, Operand: m.AddLiteral(classfile.Symbol(writerSelector(a.field.Name))), Argc: 1})
		}
	}
	moved[len(insts)] = len(out)

	for i := range out {
		if out[i].Op.IsJump() {
			out[i].Target = moved[out[i].Target]
		}
	}
	return out, changed
}
