package game

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError reports a malformed game file line.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

type sourceLine struct {
	num  int
	text string
}

// Parse reads the plain-text game format:
//
//	# comments and blank lines are ignored
//	2
//	Prisoner's Dilemma
//	quiet   3 3  0 5
//	confess 5 0  1 1
//
// The first line is the choice count, the second the title, then one row per
// choice: a label followed by row/column payoff pairs for each column.
func Parse(r io.Reader) (*Spec, error) {
	var lines []sourceLine
	scanner := bufio.NewScanner(r)
	num := 0
	for scanner.Scan() {
		num++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, sourceLine{num: num, text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading game file: %w", err)
	}

	if len(lines) < 2 {
		return nil, &ParseError{Line: num, Reason: "expected choice count and title"}
	}

	count, err := strconv.Atoi(lines[0].text)
	if err != nil {
		return nil, &ParseError{Line: lines[0].num, Reason: fmt.Sprintf("choice count %q is not an integer", lines[0].text)}
	}
	if count < 2 {
		return nil, Configf("choice_count", "need at least 2 choices, got %d", count)
	}

	title := lines[1].text
	rows := lines[2:]
	if len(rows) < count {
		return nil, &ParseError{Line: num, Reason: fmt.Sprintf("expected %d payoff rows, got %d", count, len(rows))}
	}
	if len(rows) > count {
		return nil, &ParseError{Line: rows[count].num, Reason: fmt.Sprintf("unexpected extra row after %d payoff rows", count)}
	}

	names := make([]string, 0, count)
	matrix := make([][]Payoff, 0, count)
	for _, row := range rows {
		fields := strings.Fields(row.text)
		label, nums := fields[0], fields[1:]
		if len(nums) != 2*count {
			return nil, &ParseError{
				Line:   row.num,
				Reason: fmt.Sprintf("row %q should have %d payoff numbers, got %d", label, 2*count, len(nums)),
			}
		}

		cells := make([]Payoff, count)
		for c := 0; c < count; c++ {
			rp, err := strconv.Atoi(nums[2*c])
			if err != nil {
				return nil, &ParseError{Line: row.num, Reason: fmt.Sprintf("payoff %q is not an integer", nums[2*c])}
			}
			cp, err := strconv.Atoi(nums[2*c+1])
			if err != nil {
				return nil, &ParseError{Line: row.num, Reason: fmt.Sprintf("payoff %q is not an integer", nums[2*c+1])}
			}
			cells[c] = Payoff{Row: rp, Col: cp}
		}
		names = append(names, label)
		matrix = append(matrix, cells)
	}

	return NewSpecWithCount(count, title, names, matrix)
}

// ParseYAML decodes a YAML game definition.
func ParseYAML(data []byte) (*Spec, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parsing yaml game: %w", err)
	}
	return def.Spec()
}

// LoadFile reads a game from disk. Files ending in .yaml or .yml are decoded
// as YAML definitions; anything else uses the plain-text format.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading game file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		spec, err := Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return spec, nil
	}
}

// Resolve returns the built-in game called name, or loads it from disk.
func Resolve(name string) (*Spec, error) {
	if spec, ok := Builtin(name); ok {
		return spec, nil
	}
	return LoadFile(name)
}
