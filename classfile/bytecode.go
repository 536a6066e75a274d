package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNOP  Opcode = 0x00 // no operation
	OpPOP  Opcode = 0x01 // discard top of stack
	OpDUP  Opcode = 0x02 // duplicate top of stack
	OpSWAP Opcode = 0x03 // exchange the two topmost values
)

// Push Constants
const (
	OpPushNil     Opcode = 0x10 // push nil
	OpPushTrue    Opcode = 0x11 // push true
	OpPushFalse   Opcode = 0x12 // push false
	OpPushSelf    Opcode = 0x13 // push self
	OpPushInt8    Opcode = 0x14 // push 8-bit signed integer
	OpPushLiteral Opcode = 0x15 // push literal (16-bit literal index)
)

// Variable Operations
const (
	OpPushTemp   Opcode = 0x20 // push temporary/argument (8-bit index)
	OpStoreTemp  Opcode = 0x21 // store top into temporary, value stays (8-bit index)
	OpPushField  Opcode = 0x22 // push field of self (16-bit index of a field literal)
	OpStoreField Opcode = 0x23 // store top into field of self, value stays (16-bit field literal)
	OpPushGlobal Opcode = 0x24 // push class (16-bit index of a class literal)
)

// Message Sends
const (
	OpSend      Opcode = 0x30 // send message (16-bit selector literal, 8-bit argc)
	OpSendSuper Opcode = 0x31 // send to super (16-bit selector literal, 8-bit argc)
)

// Control Flow
const (
	OpJump       Opcode = 0x60 // unconditional jump (16-bit offset)
	OpJumpTrue   Opcode = 0x61 // pop, jump if true (16-bit offset)
	OpJumpFalse  Opcode = 0x62 // pop, jump if false (16-bit offset)
	OpJumpNil    Opcode = 0x63 // pop, jump if nil (16-bit offset)
	OpJumpNotNil Opcode = 0x64 // pop, jump if not nil (16-bit offset)
)

// Returns
const (
	OpReturnTop  Opcode = 0x70 // return top of stack
	OpReturnSelf Opcode = 0x71 // return self
	OpReturnNil  Opcode = 0x72 // return nil
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (-1 = variable)
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:  {"NOP", 0, 0},
	OpPOP:  {"POP", 0, -1},
	OpDUP:  {"DUP", 0, 1},
	OpSWAP: {"SWAP", 0, 0},

	OpPushNil:     {"PUSH_NIL", 0, 1},
	OpPushTrue:    {"PUSH_TRUE", 0, 1},
	OpPushFalse:   {"PUSH_FALSE", 0, 1},
	OpPushSelf:    {"PUSH_SELF", 0, 1},
	OpPushInt8:    {"PUSH_INT8", 1, 1},
	OpPushLiteral: {"PUSH_LITERAL", 2, 1},

	OpPushTemp:   {"PUSH_TEMP", 1, 1},
	OpStoreTemp:  {"STORE_TEMP", 1, 0},
	OpPushField:  {"PUSH_FIELD", 2, 1},
	OpStoreField: {"STORE_FIELD", 2, 0},
	OpPushGlobal: {"PUSH_GLOBAL", 2, 1},

	OpSend:      {"SEND", 3, -1}, // pops receiver + args, pushes result
	OpSendSuper: {"SEND_SUPER", 3, -1},

	OpJump:       {"JUMP", 2, 0},
	OpJumpTrue:   {"JUMP_TRUE", 2, -1},
	OpJumpFalse:  {"JUMP_FALSE", 2, -1},
	OpJumpNil:    {"JUMP_NIL", 2, -1},
	OpJumpNotNil: {"JUMP_NOT_NIL", 2, -1},

	OpReturnTop:  {"RETURN_TOP", 0, -1},
	OpReturnSelf: {"RETURN_SELF", 0, 0},
	OpReturnNil:  {"RETURN_NIL", 0, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Known reports whether the opcode is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeTable[op]
	return ok
}

// IsJump reports whether the opcode carries a jump offset.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpNotNil
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instruction is one decoded instruction. Jump targets are instruction
// indices, not byte offsets, so instruction lists can be edited freely and
// re-encoded with Encode.
type Instruction struct {
	Op      Opcode
	Operand int // temp index, literal index or int8 value
	Argc    int // sends only
	Target  int // jumps only: index of the target instruction (len = end of code)
}

// ErrJumpRange is returned by Encode when a jump no longer fits in 16 bits.
var ErrJumpRange = errors.New("jump offset out of range")

// Decode splits bytecode into instructions and converts jump offsets into
// instruction indices.
func Decode(bc []byte) ([]Instruction, error) {
	var (
		insts   []Instruction
		starts  = make(map[int]int) // byte offset -> instruction index
		targets []int               // byte target per instruction (-1 if not a jump)
	)

	pos := 0
	for pos < len(bc) {
		op := Opcode(bc[pos])
		info, ok := opcodeTable[op]
		if !ok {
			return nil, fmt.Errorf("%w: unknown opcode 0x%02X at %d", ErrCorruptData, byte(op), pos)
		}
		if pos+1+info.OperandBytes > len(bc) {
			return nil, fmt.Errorf("%w: truncated %s at %d", ErrCorruptData, op, pos)
		}
		starts[pos] = len(insts)
		operands := bc[pos+1 : pos+1+info.OperandBytes]
		inst := Instruction{Op: op}
		target := -1

		switch {
		case op == OpPushInt8:
			inst.Operand = int(int8(operands[0]))
		case op == OpPushTemp || op == OpStoreTemp:
			inst.Operand = int(operands[0])
		case op == OpSend || op == OpSendSuper:
			inst.Operand = int(binary.LittleEndian.Uint16(operands))
			inst.Argc = int(operands[2])
		case op.IsJump():
			offset := int(int16(binary.LittleEndian.Uint16(operands)))
			target = pos + 3 + offset
		case info.OperandBytes == 2:
			inst.Operand = int(binary.LittleEndian.Uint16(operands))
		}

		insts = append(insts, inst)
		targets = append(targets, target)
		pos += 1 + info.OperandBytes
	}

	for i, t := range targets {
		if !insts[i].Op.IsJump() {
			continue
		}
		if t == len(bc) {
			insts[i].Target = len(insts)
			continue
		}
		idx, ok := starts[t]
		if !ok {
			return nil, fmt.Errorf("%w: jump at instruction %d lands inside an instruction", ErrCorruptData, i)
		}
		insts[i].Target = idx
	}
	return insts, nil
}

// Encode serializes instructions, recomputing jump offsets.
func Encode(insts []Instruction) ([]byte, error) {
	offsets := make([]int, len(insts)+1)
	for i, inst := range insts {
		info, ok := opcodeTable[inst.Op]
		if !ok {
			return nil, fmt.Errorf("%w: unknown opcode 0x%02X", ErrCorruptData, byte(inst.Op))
		}
		offsets[i+1] = offsets[i] + 1 + info.OperandBytes
	}

	out := make([]byte, 0, offsets[len(insts)])
	for i, inst := range insts {
		out = append(out, byte(inst.Op))
		switch {
		case inst.Op == OpPushInt8:
			if inst.Operand < math.MinInt8 || inst.Operand > math.MaxInt8 {
				return nil, fmt.Errorf("%w: int8 operand %d", ErrCorruptData, inst.Operand)
			}
			out = append(out, byte(int8(inst.Operand)))
		case inst.Op == OpPushTemp || inst.Op == OpStoreTemp:
			if inst.Operand < 0 || inst.Operand > math.MaxUint8 {
				return nil, fmt.Errorf("%w: temp index %d", ErrCorruptData, inst.Operand)
			}
			out = append(out, byte(inst.Operand))
		case inst.Op == OpSend || inst.Op == OpSendSuper:
			if inst.Operand < 0 || inst.Operand > math.MaxUint16 || inst.Argc < 0 || inst.Argc > math.MaxUint8 {
				return nil, fmt.Errorf("%w: send operands %d/%d", ErrCorruptData, inst.Operand, inst.Argc)
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(inst.Operand))
			out = append(out, byte(inst.Argc))
		case inst.Op.IsJump():
			if inst.Target < 0 || inst.Target > len(insts) {
				return nil, fmt.Errorf("%w: jump target %d", ErrCorruptData, inst.Target)
			}
			offset := offsets[inst.Target] - offsets[i+1]
			if offset < math.MinInt16 || offset > math.MaxInt16 {
				return nil, fmt.Errorf("%w: instruction %d offset %d", ErrJumpRange, i, offset)
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(int16(offset)))
		case inst.Op.Info().OperandBytes == 2:
			if inst.Operand < 0 || inst.Operand > math.MaxUint16 {
				return nil, fmt.Errorf("%w: literal index %d", ErrCorruptData, inst.Operand)
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(inst.Operand))
		}
	}
	return out, nil
}
