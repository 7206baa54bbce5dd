package interp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/csopesy/emulator/pkg/process"
)

// ParseProgram parses the `screen -c` instruction text grammar:
// space-separated tokens, `;`-separated statements. `DECLARE v lit`,
// `ADD v v|lit v|lit`, `SUBTRACT v v v`, `SLEEP n`, `PRINT` or
// `PRINT ("msg" + var)`, `READ v 0xADDR`, `WRITE 0xADDR v|lit`. It
// enforces a 1-50 instruction count per program.
func ParseProgram(text string) ([]process.Instruction, error) {
	var out []process.Instruction
	for _, stmt := range strings.Split(text, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		inst, err := parseStatement(stmt)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("interp: program must contain at least one instruction")
	}
	if len(out) > 50 {
		return nil, fmt.Errorf("interp: program has %d instructions, maximum is 50", len(out))
	}
	return out, nil
}

func parseStatement(stmt string) (process.Instruction, error) {
	upper := strings.ToUpper(stmt)
	switch {
	case strings.HasPrefix(upper, "PRINT"):
		return parsePrint(stmt)
	}

	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return process.Instruction{}, fmt.Errorf("interp: empty statement")
	}
	op := strings.ToUpper(fields[0])
	switch op {
	case "DECLARE":
		return parseDeclare(fields)
	case "ADD":
		return parseArith(process.OpAdd, fields)
	case "SUBTRACT", "SUB":
		return parseArith(process.OpSub, fields)
	case "SLEEP":
		return parseSleep(fields)
	case "READ":
		return parseRead(fields)
	case "WRITE":
		return parseWrite(fields)
	default:
		return process.Instruction{}, fmt.Errorf("interp: unknown opcode %q", fields[0])
	}
}

func parseDeclare(fields []string) (process.Instruction, error) {
	if len(fields) != 3 {
		return process.Instruction{}, fmt.Errorf("interp: DECLARE wants `DECLARE name literal`, got %q", strings.Join(fields, " "))
	}
	lit, err := strconv.ParseUint(fields[2], 10, 16)
	if err != nil {
		return process.Instruction{}, fmt.Errorf("interp: DECLARE literal %q: %w", fields[2], err)
	}
	return process.Instruction{Op: process.OpDeclare, Dst: process.Var(fields[1]), Src1: process.Lit(uint16(lit))}, nil
}

func parseArith(op process.Opcode, fields []string) (process.Instruction, error) {
	if len(fields) != 4 {
		return process.Instruction{}, fmt.Errorf("interp: %s wants `%s dst src1 src2`, got %q", fields[0], fields[0], strings.Join(fields, " "))
	}
	src2, err := parseVarOrLiteral(fields[3])
	if err != nil {
		return process.Instruction{}, err
	}
	return process.Instruction{
		Op:   op,
		Dst:  process.Var(fields[1]),
		Src1: process.Var(fields[2]),
		Src2: src2,
	}, nil
}

func parseSleep(fields []string) (process.Instruction, error) {
	if len(fields) != 2 {
		return process.Instruction{}, fmt.Errorf("interp: SLEEP wants `SLEEP ticks`, got %q", strings.Join(fields, " "))
	}
	ticks, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return process.Instruction{}, fmt.Errorf("interp: SLEEP ticks %q: %w", fields[1], err)
	}
	return process.Instruction{Op: process.OpSleep, SleepTicks: uint8(ticks)}, nil
}

func parseRead(fields []string) (process.Instruction, error) {
	if len(fields) != 3 {
		return process.Instruction{}, fmt.Errorf("interp: READ wants `READ dst 0xADDR`, got %q", strings.Join(fields, " "))
	}
	return process.Instruction{Op: process.OpRead, Dst: process.Var(fields[1]), AddressText: fields[2]}, nil
}

func parseWrite(fields []string) (process.Instruction, error) {
	if len(fields) != 3 {
		return process.Instruction{}, fmt.Errorf("interp: WRITE wants `WRITE 0xADDR src`, got %q", strings.Join(fields, " "))
	}
	src2, err := parseVarOrLiteral(fields[2])
	if err != nil {
		return process.Instruction{}, err
	}
	return process.Instruction{Op: process.OpWrite, AddressText: fields[1], Src2: src2}, nil
}

// parsePrint handles both bare `PRINT` and `PRINT ("msg" + var)`.
func parsePrint(stmt string) (process.Instruction, error) {
	rest := strings.TrimSpace(stmt[len("PRINT"):])
	if rest == "" {
		return process.Instruction{Op: process.OpPrint}, nil
	}
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	parts := strings.SplitN(rest, "+", 2)
	message := strings.TrimSpace(parts[0])
	message = strings.Trim(message, `"`)
	if len(parts) == 1 {
		return process.Instruction{Op: process.OpPrint, Message: message}, nil
	}
	varName := strings.TrimSpace(parts[1])
	return process.Instruction{Op: process.OpPrint, Message: message, Dst: process.Var(varName)}, nil
}

func parseVarOrLiteral(tok string) (process.Operand, error) {
	if v, err := strconv.ParseUint(tok, 10, 16); err == nil {
		return process.Lit(uint16(v)), nil
	}
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		v, err := strconv.ParseUint(tok[2:], 16, 16)
		if err != nil {
			return process.Operand{}, fmt.Errorf("interp: invalid hex literal %q", tok)
		}
		return process.Lit(uint16(v)), nil
	}
	return process.Var(tok), nil
}
