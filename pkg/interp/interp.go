// Package interp is the per-process instruction interpreter: it
// executes one Instruction at a time against a process's symbol table
// and, for READ/WRITE, against the shared Pager. Its structure mirrors
// a switch-over-opcode dispatch with sentinel errors for control-flow
// terminations, adapted from a 32-bit register machine to this
// emulator's 16-bit, symbol-table-addressed instruction set.
package interp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/csopesy/emulator/pkg/memory"
	"github.com/csopesy/emulator/pkg/process"
)

// ErrShutdown is returned by Step when the instruction just executed
// triggered a memory access violation; the process has already been
// marked shut down by the time this error surfaces to the caller.
var ErrShutdown = fmt.Errorf("interp: process shut down on invalid memory access")

// Interpreter executes instructions for every process against a
// shared Pager and a MEM_TOTAL bound used to validate addresses.
type Interpreter struct {
	Pager    *memory.Pager
	MemTotal int
}

// New returns an interpreter bound to the given pager and total
// physical memory size, used to validate addresses fall in
// [0, MEM_TOTAL).
func New(pager *memory.Pager, memTotal int) *Interpreter {
	return &Interpreter{Pager: pager, MemTotal: memTotal}
}

// Step executes the single instruction at p.IP, advances p.IP, and
// returns the log line to record for it. It returns ErrShutdown (with
// the process already marked ShutDown) if the instruction was a
// memory access violation; the caller must not advance scheduling for
// this process further.
func (in *Interpreter) Step(p *process.Process, now time.Time) (logLine string, err error) {
	if p.IP >= len(p.Instructions) {
		return "", nil
	}
	inst := p.Instructions[p.IP]

	switch inst.Op {
	case process.OpDeclare:
		logLine = in.execDeclare(p, inst)
	case process.OpPrint:
		logLine = in.execPrint(p, inst)
	case process.OpAdd:
		logLine = in.execAdd(p, inst)
	case process.OpSub:
		logLine = in.execSub(p, inst)
	case process.OpSleep:
		logLine = fmt.Sprintf("Slept for %d ticks.", inst.SleepTicks)
	case process.OpRead:
		if shutdownErr := in.execRead(p, inst, now); shutdownErr != nil {
			p.IP++
			return p.ShutDownMessage, ErrShutdown
		}
		logLine = fmt.Sprintf("Read value %d from %s into %s",
			p.Symbols.Get(inst.Dst.Name), inst.AddressText, inst.Dst.Name)
	case process.OpWrite:
		if shutdownErr := in.execWrite(p, inst, now); shutdownErr != nil {
			p.IP++
			return p.ShutDownMessage, ErrShutdown
		}
		logLine = fmt.Sprintf("Wrote value %d to %s", in.resolveValue(p, inst.Src2), inst.AddressText)
	default:
		logLine = fmt.Sprintf("skipped: unknown opcode %v", inst.Op)
	}

	p.IP++
	return logLine, nil
}

func (in *Interpreter) execDeclare(p *process.Process, inst process.Instruction) string {
	if p.Symbols.Full(inst.Dst.Name) {
		return "DECLARE skipped: symbol table full."
	}
	p.Symbols.Set(inst.Dst.Name, inst.Src1.Literal)
	return fmt.Sprintf("Declared %s = %d", inst.Dst.Name, inst.Src1.Literal)
}

func (in *Interpreter) execPrint(p *process.Process, inst process.Instruction) string {
	if inst.Dst.Name == "" && inst.Message == "" {
		out := fmt.Sprintf("Hello world from %s!", p.Name)
		p.AppendLog(out)
		return out
	}
	var b strings.Builder
	b.WriteString(inst.Message)
	if inst.Dst.Name != "" {
		if v, ok := p.Symbols.Declared(inst.Dst.Name); ok {
			fmt.Fprintf(&b, "%d", v)
		} else {
			b.WriteString("undefined")
		}
	}
	out := b.String()
	p.AppendLog(out)
	return out
}

func (in *Interpreter) execAdd(p *process.Process, inst process.Instruction) string {
	a := p.Symbols.Get(inst.Src1.Name)
	b := in.resolveValue(p, inst.Src2)
	result := a + b // uint16 wraps around automatically (mod 2^16)
	p.Symbols.Set(inst.Dst.Name, result)
	return fmt.Sprintf("Added: %s = %d", inst.Dst.Name, result)
}

func (in *Interpreter) execSub(p *process.Process, inst process.Instruction) string {
	a := p.Symbols.Get(inst.Src1.Name)
	b := in.resolveValue(p, inst.Src2)
	result := a - b // uint16 wraps around automatically (mod 2^16)
	p.Symbols.Set(inst.Dst.Name, result)
	return fmt.Sprintf("Subtracted: %s = %d", inst.Dst.Name, result)
}

func (in *Interpreter) resolveValue(p *process.Process, op process.Operand) uint16 {
	if op.IsLiteral {
		return op.Literal
	}
	return p.Symbols.Get(op.Name)
}

// parseAddress parses a hex address literal such as "0x500". It
// returns the parsed value and whether parsing succeeded; an address
// that fails to parse is itself a memory access violation.
func parseAddress(text string) (int, bool) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	v, err := strconv.ParseInt(trimmed, 16, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return int(v), true
}

func (in *Interpreter) execRead(p *process.Process, inst process.Instruction, now time.Time) error {
	addr, ok := parseAddress(inst.AddressText)
	if !ok || addr < 0 || addr >= in.MemTotal {
		p.Shutdown(now, inst.AddressText)
		return ErrShutdown
	}
	// ReadFault services the fault and reads the word in one critical
	// section, so another process's concurrent fault cannot evict this
	// frame before the value is read.
	val, err := in.Pager.ReadFault(p.Name, addr, p)
	if err != nil {
		p.Shutdown(now, inst.AddressText)
		return ErrShutdown
	}
	p.Symbols.Set(inst.Dst.Name, val)
	return nil
}

func (in *Interpreter) execWrite(p *process.Process, inst process.Instruction, now time.Time) error {
	addr, ok := parseAddress(inst.AddressText)
	if !ok || addr < 0 || addr >= in.MemTotal {
		p.Shutdown(now, inst.AddressText)
		return ErrShutdown
	}
	val := in.resolveValue(p, inst.Src2)
	// WriteFault services the fault and writes the word in one critical
	// section; see execRead's comment on ReadFault.
	if err := in.Pager.WriteFault(p.Name, addr, val, p); err != nil {
		p.Shutdown(now, inst.AddressText)
		return ErrShutdown
	}
	return nil
}

// FormatInstruction renders a decoded instruction as a compact, human
// readable line, used for verbose/debug tracing.
func FormatInstruction(inst process.Instruction) string {
	switch inst.Op {
	case process.OpDeclare:
		return fmt.Sprintf("DECLARE %s %d", inst.Dst.Name, inst.Src1.Literal)
	case process.OpAdd:
		return fmt.Sprintf("ADD %s %s %s", inst.Dst.Name, inst.Src1.Name, operandText(inst.Src2))
	case process.OpSub:
		return fmt.Sprintf("SUBTRACT %s %s %s", inst.Dst.Name, inst.Src1.Name, operandText(inst.Src2))
	case process.OpSleep:
		return fmt.Sprintf("SLEEP %d", inst.SleepTicks)
	case process.OpPrint:
		return "PRINT"
	case process.OpRead:
		return fmt.Sprintf("READ %s %s", inst.Dst.Name, inst.AddressText)
	case process.OpWrite:
		return fmt.Sprintf("WRITE %s %s", inst.AddressText, operandText(inst.Src2))
	default:
		return "<unknown instruction>"
	}
}

func operandText(op process.Operand) string {
	if op.IsLiteral {
		return strconv.Itoa(int(op.Literal))
	}
	return op.Name
}
