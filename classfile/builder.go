package classfile

import "fmt"

// ---------------------------------------------------------------------------
// Builder: Helper for constructing method bodies
// ---------------------------------------------------------------------------

// Builder assembles instructions for one method, interning literals into
// the method's literal frame as it goes.
type Builder struct {
	method *Method
	insts  []Instruction
	labels []int       // label id -> instruction index (-1 while unresolved)
	jumps  map[int]int // instruction index -> label id
}

// Label is a jump target that may be marked after the jumps that use it.
type Label int

// NewBuilder creates a builder that appends literals to m.
func NewBuilder(m *Method) *Builder {
	return &Builder{method: m, jumps: make(map[int]int)}
}

// Emit appends an instruction with no operands.
func (b *Builder) Emit(op Opcode) *Builder {
	b.insts = append(b.insts, Instruction{Op: op})
	return b
}

// EmitOperand appends an instruction with a single operand.
func (b *Builder) EmitOperand(op Opcode, operand int) *Builder {
	b.insts = append(b.insts, Instruction{Op: op, Operand: operand})
	return b
}

// Append copies already-decoded instructions (without jumps) into the body.
func (b *Builder) Append(insts ...Instruction) *Builder {
	b.insts = append(b.insts, insts...)
	return b
}

// PushSelf pushes the receiver.
func (b *Builder) PushSelf() *Builder { return b.Emit(OpPushSelf) }

// PushInt8 pushes a small integer.
func (b *Builder) PushInt8(v int) *Builder { return b.EmitOperand(OpPushInt8, v) }

// PushTemp pushes an argument or temporary.
func (b *Builder) PushTemp(i int) *Builder { return b.EmitOperand(OpPushTemp, i) }

// StoreTemp stores the top of stack into a temporary.
func (b *Builder) StoreTemp(i int) *Builder { return b.EmitOperand(OpStoreTemp, i) }

// PushField pushes a field of self.
func (b *Builder) PushField(name string) *Builder {
	return b.EmitOperand(OpPushField, b.method.AddLiteral(FieldRef(name)))
}

// StoreField stores the top of stack into a field of self.
func (b *Builder) StoreField(name string) *Builder {
	return b.EmitOperand(OpStoreField, b.method.AddLiteral(FieldRef(name)))
}

// PushGlobal pushes a class by qualified name.
func (b *Builder) PushGlobal(class string) *Builder {
	return b.EmitOperand(OpPushGlobal, b.method.AddLiteral(ClassRef(class)))
}

// PushSymbol pushes a symbol literal.
func (b *Builder) PushSymbol(s string) *Builder {
	return b.EmitOperand(OpPushLiteral, b.method.AddLiteral(Symbol(s)))
}

// Send sends selector with argc arguments already on the stack.
func (b *Builder) Send(selector string, argc int) *Builder {
	b.insts = append(b.insts, Instruction{Op: OpSend, Operand: b.method.AddLiteral(Symbol(selector)), Argc: argc})
	return b
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Mark resolves a label to the next instruction.
func (b *Builder) Mark(l Label) *Builder {
	if b.labels[l] >= 0 {
		panic("label already resolved")
	}
	b.labels[l] = len(b.insts)
	return b
}

// Jump emits a jump instruction to a label.
func (b *Builder) Jump(op Opcode, l Label) *Builder {
	if !op.IsJump() {
		panic(fmt.Sprintf("Builder.Jump: %s is not a jump", op))
	}
	b.jumps[len(b.insts)] = int(l)
	b.insts = append(b.insts, Instruction{Op: op})
	return b
}

// Instructions resolves labels and returns the instruction list.
func (b *Builder) Instructions() ([]Instruction, error) {
	out := make([]Instruction, len(b.insts))
	copy(out, b.insts)
	for idx, l := range b.jumps {
		target := b.labels[l]
		if target < 0 {
			return nil, fmt.Errorf("%w: unresolved label %d", ErrCorruptData, l)
		}
		out[idx].Target = target
	}
	return out, nil
}

// Bytes resolves labels and encodes the body.
func (b *Builder) Bytes() ([]byte, error) {
	insts, err := b.Instructions()
	if err != nil {
		return nil, err
	}
	return Encode(insts)
}
