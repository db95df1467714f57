package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedInstruction = errors.New("console: expected <index> <command>")
	ErrUnknownIndex         = errors.New("console: no instrument at index")
)

// Instruction is one "<index> <command>" entry from an input line.
type Instruction struct {
	Index   int
	Command string
	// Err is set when the entry could not be parsed; the rest of the line
	// is still processed.
	Err error
}

// IsQuit reports whether line asks to end the session.
func IsQuit(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "Q" || trimmed == "q"
}

// ParseLine splits line on ';' into instructions. Empty segments are skipped.
func ParseLine(line string) []Instruction {
	var out []Instruction
	for _, segment := range strings.Split(line, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		out = append(out, parseInstruction(segment))
	}
	return out
}

func parseInstruction(segment string) Instruction {
	indexRaw, command, ok := strings.Cut(segment, " ")
	command = strings.TrimSpace(command)
	if !ok || command == "" {
		return Instruction{Err: fmt.Errorf("%w: %q", ErrMalformedInstruction, segment)}
	}
	index, err := strconv.Atoi(indexRaw)
	if err != nil {
		return Instruction{Err: fmt.Errorf("%w: %q", ErrMalformedInstruction, segment)}
	}
	return Instruction{Index: index, Command: command}
}
