package classfile

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOpcodeInfo(t *testing.T) {
	if OpSend.Info().OperandBytes != 3 {
		t.Errorf("SEND operand bytes = %d, want 3", OpSend.Info().OperandBytes)
	}
	if !OpJumpNil.IsJump() || OpSend.IsJump() {
		t.Error("IsJump classification wrong")
	}
	if Opcode(0xEE).Known() {
		t.Error("0xEE should be unknown")
	}
	if got := Opcode(0xEE).String(); got != "UNKNOWN_EE" {
		t.Errorf("unknown opcode name = %q", got)
	}
}

func TestBuilderForwardAndBackwardJumps(t *testing.T) {
	m := &Method{Selector: "loop"}
	b := NewBuilder(m)
	top := b.NewLabel()
	end := b.NewLabel()
	b.Mark(top).
		PushField("n").
		Jump(OpJumpNil, end).
		PushSelf().Send("step", 0).Emit(OpPOP).
		Jump(OpJump, top).
		Mark(end).
		Emit(OpReturnSelf)

	code, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	insts, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if insts[1].Target != 6 {
		t.Errorf("forward jump target = %d, want 6", insts[1].Target)
	}
	if insts[5].Target != 0 {
		t.Errorf("backward jump target = %d, want 0", insts[5].Target)
	}
	if len(m.Literals) != 2 {
		t.Errorf("literals = %v, want field n and #step", m.Literals)
	}
}

func TestBuilderInternsLiterals(t *testing.T) {
	m := &Method{}
	NewBuilder(m).PushField("a").PushField("a").Send("a", 0).PushGlobal("a")
	want := []Literal{FieldRef("a"), Symbol("a"), ClassRef("a")}
	if diff := cmp.Diff(want, m.Literals); diff != "" {
		t.Errorf("literals (-want +got):\n%s", diff)
	}
}

func TestUnresolvedLabel(t *testing.T) {
	b := NewBuilder(&Method{})
	b.Jump(OpJump, b.NewLabel())
	if _, err := b.Bytes(); !errors.Is(err, ErrCorruptData) {
		t.Errorf("Bytes error = %v, want ErrCorruptData", err)
	}
}

func TestEncodeRelocatesJumpsAfterInsertion(t *testing.T) {
	m := &Method{}
	b := NewBuilder(m)
	skip := b.NewLabel()
	b.PushTemp(0).Jump(OpJumpFalse, skip).PushField("x").Emit(OpPOP).Mark(skip).Emit(OpReturnSelf)
	code, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	insts, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}

	// Replace PUSH_FIELD x with a two-instruction send; the jump must follow.
	send := Instruction{Op: OpSend, Operand: m.AddLiteral(Symbol("x")), Argc: 0}
	edited := append([]Instruction{}, insts[:2]...)
	edited = append(edited, Instruction{Op: OpPushSelf}, send)
	edited = append(edited, insts[3:]...)
	edited[1].Target++

	out, err := Encode(edited)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	if back[1].Target != 5 || back[5].Op != OpReturnSelf {
		t.Errorf("relocated jump target = %d (op %s)", back[1].Target, back[back[1].Target].Op)
	}
}

func TestEncodeJumpRange(t *testing.T) {
	insts := []Instruction{{Op: OpJump, Target: 40001}}
	for i := 0; i < 40000; i++ {
		insts = append(insts, Instruction{Op: OpPushNil})
	}
	insts = append(insts, Instruction{Op: OpReturnNil})
	if _, err := Encode(insts); !errors.Is(err, ErrJumpRange) {
		t.Errorf("Encode error = %v, want ErrJumpRange", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"unknown opcode", []byte{0xEE}},
		{"truncated operand", []byte{byte(OpPushField), 0x01}},
		{"jump into operand", []byte{byte(OpJump), 0x01, 0x00, byte(OpPushTemp), 0x00}},
		{"jump before start", []byte{byte(OpJump), 0xF0, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.code); !errors.Is(err, ErrCorruptData) {
				t.Errorf("Decode error = %v, want ErrCorruptData", err)
			}
		})
	}
}

func TestDecodeJumpToEnd(t *testing.T) {
	code := []byte{byte(OpJump), 0x00, 0x00}
	insts, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	if insts[0].Target != 1 {
		t.Errorf("target = %d, want 1 (end of code)", insts[0].Target)
	}
	out, err := Encode(insts)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(code) {
		t.Errorf("re-encoded %v, want %v", out, code)
	}
}

func TestDisassemble(t *testing.T) {
	m := &Method{Selector: "check"}
	b := NewBuilder(m)
	l := b.NewLabel()
	b.PushInt8(-3).PushTemp(1).Jump(OpJumpTrue, l).PushGlobal("Shop::Order").Mark(l).Emit(OpReturnTop)
	code, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	m.Bytecode = code
	out := Disassemble(m)
	for _, want := range []string{"PUSH_INT8 -3", "PUSH_TEMP 1", "JUMP_TRUE -> 0004", "PUSH_GLOBAL class Shop::Order"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}

	m.Bytecode = []byte{0xEE}
	if !strings.Contains(Disassemble(m), "unknown opcode") {
		t.Error("undecodable body not reported")
	}
}
