// Package disasm renders a compiled instruction stream as a tree
// grouped by originating source line, for the CLI's `unassemble`
// subcommand.
package disasm

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/kristofer/nutshell/pkg/bytecode"
	"github.com/kristofer/nutshell/pkg/value"
)

// Tree walks every instruction in buf from offset 0 to its end,
// grouping instructions under the source line xref attributes them to
// (grounded in the retrieved bytecode/AST dumper's use of treeprint for
// exactly this kind of grouped instruction listing). xref may be nil,
// in which case every instruction is printed under a single "line 0"
// branch.
func Tree(buf *value.Buffer, xref []bytecode.XrefEntry) (treeprint.Tree, error) {
	root := treeprint.New()
	root.SetValue("bytecode")

	var lineNode treeprint.Tree
	lastLine := -1

	var offset uint32
	for offset < uint32(len(buf.Code)) {
		in, err := bytecode.Decode(buf, offset)
		if err != nil {
			return nil, err
		}
		line := bytecode.LineForOffset(xref, offset)
		if lineNode == nil || line != lastLine {
			lineNode = root.AddBranch(fmt.Sprintf("line %d", line))
			lastLine = line
		}
		lineNode.AddNode(formatInstruction(in))
		offset += in.Len
	}
	return root, nil
}

func formatInstruction(in bytecode.Instruction) string {
	s := fmt.Sprintf("%04d  %s", in.Offset, in.Op)
	for _, op := range in.Operands {
		s += " " + formatOperand(op)
	}
	return s
}

func formatOperand(op bytecode.Operand) string {
	switch op.Tag {
	case bytecode.TagInscription:
		text, err := op.Text.Text()
		if err != nil {
			return "<bad inscription>"
		}
		return fmt.Sprintf("%q", text)
	case bytecode.TagDouble:
		return fmt.Sprintf("%g", op.F64)
	case bytecode.TagBoolean:
		return fmt.Sprintf("%t", op.Bool)
	case bytecode.TagUndefined, bytecode.TagNull, bytecode.TagEmptyArray, bytecode.TagEmptyObject:
		return op.Tag.String()
	default:
		return fmt.Sprintf("%d", op.U32)
	}
}
