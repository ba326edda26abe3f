// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Argument parsing shared by the rigrun-stream commands.

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser parses a command's arguments into flags and positionals.
// It handles:
//   - Long flags: --flag value or --flag=value
//   - Short flags: -f value
//   - Switches: flags declared boolean never consume the next argument
//   - Positional arguments, the first of which is the subcommand
//   - A bare "--" ends flag parsing
type ArgParser struct {
	subcommand string
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
}

// NewArgParser parses raw. Names listed in switches are treated as boolean
// flags, so "ask --json hello" keeps "hello" as a positional.
//
// Example:
//
//	p := NewArgParser([]string{"show", "abc123", "--markdown"}, "markdown")
//	p.Subcommand()        // "show"
//	p.Positional(1)       // "abc123"
//	p.BoolFlag("markdown") // true
func NewArgParser(raw []string, switches ...string) *ArgParser {
	parser := &ArgParser{
		flags:      make(map[string]string),
		boolFlags:  make(map[string]bool),
		positional: make([]string, 0, len(raw)),
	}

	isSwitch := make(map[string]bool, len(switches))
	for _, s := range switches {
		isSwitch[s] = true
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		if arg == "--" {
			parser.positional = append(parser.positional, raw[i+1:]...)
			break
		}

		// "-" alone is a positional (stdin marker)
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			parser.positional = append(parser.positional, arg)
			continue
		}

		if name, value, ok := strings.Cut(arg, "="); ok {
			name = strings.TrimLeft(name, "-")
			if b, err := ParseBoolString(value); err == nil && (isSwitch[name] || value == "true" || value == "false") {
				parser.boolFlags[name] = b
			} else {
				parser.flags[name] = value
			}
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if !isSwitch[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			parser.flags[name] = raw[i+1]
			i++
			continue
		}
		parser.boolFlags[name] = true
	}

	if len(parser.positional) > 0 {
		parser.subcommand = parser.positional[0]
	}
	return parser
}

// Subcommand returns the first positional argument, or "".
func (p *ArgParser) Subcommand() string {
	return p.subcommand
}

// Flag returns the value of the first present name, or "".
// Pass the long and short spellings together: p.Flag("model", "m").
func (p *ArgParser) Flag(names ...string) string {
	for _, name := range names {
		if v, ok := p.flags[name]; ok {
			return v
		}
	}
	return ""
}

// FlagOrDefault returns the flag value or defaultValue when absent.
func (p *ArgParser) FlagOrDefault(name, defaultValue string) string {
	if v, ok := p.flags[name]; ok {
		return v
	}
	return defaultValue
}

// FlagInt parses a flag as an integer. Returns (0, false, nil) when absent.
func (p *ArgParser) FlagInt(names ...string) (int, bool, error) {
	for _, name := range names {
		v, ok := p.flags[name]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, true, &ValidationError{Field: "--" + name, Value: v, Reason: "must be an integer"}
		}
		return n, true, nil
	}
	return 0, false, nil
}

// FlagFloat parses a flag as a float. Returns (0, false, nil) when absent.
func (p *ArgParser) FlagFloat(names ...string) (float64, bool, error) {
	for _, name := range names {
		v, ok := p.flags[name]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, true, &ValidationError{Field: "--" + name, Value: v, Reason: "must be a number"}
		}
		return f, true, nil
	}
	return 0, false, nil
}

// BoolFlag reports whether any of the names was given as a switch.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, name := range names {
		if p.boolFlags[name] {
			return true
		}
	}
	return false
}

// Positional returns the positional argument at index, or "".
// Index 0 is the subcommand.
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns the positional arguments from index on.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return nil
	}
	return p.positional[index:]
}

// HasFlag reports whether name appeared either as a value flag or a switch.
func (p *ArgParser) HasFlag(name string) bool {
	_, isFlag := p.flags[name]
	_, isBool := p.boolFlags[name]
	return isFlag || isBool
}

// ParseBoolString parses yes/no style booleans.
func ParseBoolString(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "on", "1", "enabled":
		return true, nil
	case "false", "no", "off", "0", "disabled":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %q (use true/false, yes/no, on/off, 1/0)", value)
	}
}
