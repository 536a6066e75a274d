package classfile

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders one instruction, resolving literal
// operands against the method's literal frame when possible.
func DisassembleInstruction(m *Method, index int, inst Instruction) string {
	name := inst.Op.Info().Name
	lit := func(i int) string {
		if m != nil && i >= 0 && i < len(m.Literals) {
			return m.Literals[i].String()
		}
		return fmt.Sprintf("?%d", i)
	}

	switch {
	case inst.Op == OpPushInt8, inst.Op == OpPushTemp, inst.Op == OpStoreTemp:
		return fmt.Sprintf("%04d  %s %d", index, name, inst.Operand)
	case inst.Op == OpSend, inst.Op == OpSendSuper:
		return fmt.Sprintf("%04d  %s %s argc=%d", index, name, lit(inst.Operand), inst.Argc)
	case inst.Op.IsJump():
		return fmt.Sprintf("%04d  %s -> %04d", index, name, inst.Target)
	case inst.Op.Info().OperandBytes == 2:
		return fmt.Sprintf("%04d  %s %s", index, name, lit(inst.Operand))
	default:
		return fmt.Sprintf("%04d  %s", index, name)
	}
}

// Disassemble returns a listing of a method body. Undecodable bodies are
// reported inline rather than as an error.
func Disassemble(m *Method) string {
	insts, err := Decode(m.Bytecode)
	if err != nil {
		return fmt.Sprintf("  <%v>", err)
	}
	lines := make([]string, 0, len(insts))
	for i, inst := range insts {
		lines = append(lines, "  "+DisassembleInstruction(m, i, inst))
	}
	return strings.Join(lines, "\n")
}

// Dump renders a whole class in a readable form.
func Dump(c *Class) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "class %s", c.Name)
	if c.Superclass != "" {
		fmt.Fprintf(&sb, " : %s", c.Superclass)
	}
	sb.WriteByte('\n')
	if len(c.Interfaces) > 0 {
		fmt.Fprintf(&sb, "  traits: %s\n", strings.Join(c.Interfaces, ", "))
	}
	for _, p := range c.Pragmas {
		fmt.Fprintf(&sb, "  %s\n", p)
	}
	for _, f := range c.Fields {
		fmt.Fprintf(&sb, "  field %s %s", f.Name, f.Type)
		for _, p := range f.Pragmas {
			fmt.Fprintf(&sb, " %s", p)
		}
		if f.IsStatic() {
			sb.WriteString(" [static]")
		}
		if f.IsSynthetic() {
			sb.WriteString(" [synthetic]")
		}
		sb.WriteByte('\n')
	}
	for _, m := range c.Methods {
		side := ""
		if m.IsClassSide() {
			side = "class "
		}
		fmt.Fprintf(&sb, "  %smethod %s (arity %d, temps %d)", side, m.Selector, m.Arity, m.NumTemps)
		for _, p := range m.Pragmas {
			fmt.Fprintf(&sb, " %s", p)
		}
		sb.WriteByte('\n')
		if len(m.Bytecode) > 0 {
			sb.WriteString(Disassemble(m))
			sb.WriteByte('\n')
		}
	}
	for _, a := range c.Attributes {
		fmt.Fprintf(&sb, "  attribute %s (%d bytes)\n", a.Name, len(a.Data))
	}
	return sb.String()
}
