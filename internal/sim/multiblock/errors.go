package multiblock

import (
	"fmt"
	"strings"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// Validation error codes shared by every cuboid kind. Kind layouts add their
// own, prefixed with the kind name.
const (
	CodeTooFewParts     = "too_few_parts"
	CodeTooLarge        = "machine_too_large"
	CodeTooSmall        = "machine_too_small"
	CodeInvalidPart     = "invalid_part"
	CodeNotLoaded       = "not_loaded"
	CodeInvalidFrame    = "invalid_part_for_frame"
	CodeInvalidTop      = "invalid_part_for_top"
	CodeInvalidBottom   = "invalid_part_for_bottom"
	CodeInvalidSides    = "invalid_part_for_sides"
	CodeInvalidInterior = "invalid_part_for_interior"
)

// ValidationError is the first structural failure found by a scan.
type ValidationError struct {
	Code   string
	Pos    cube.Pos
	HasPos bool
	Args   []any
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.HasPos {
		fmt.Fprintf(&b, " at %d,%d,%d", e.Pos[0], e.Pos[1], e.Pos[2])
	}
	if len(e.Args) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.TrimSuffix(fmt.Sprintln(e.Args...), "\n"))
	}
	return b.String()
}

// Fail builds a ValidationError that names no cell.
func Fail(code string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Args: args}
}

// FailAt builds a ValidationError naming the offending cell.
func FailAt(code string, pos cube.Pos, args ...any) *ValidationError {
	return &ValidationError{Code: code, Pos: pos, HasPos: true, Args: args}
}

func roleCode(r Role) string {
	switch r {
	case RoleFrame:
		return CodeInvalidFrame
	case RoleTop:
		return CodeInvalidTop
	case RoleBottom:
		return CodeInvalidBottom
	case RoleSides:
		return CodeInvalidSides
	default:
		return CodeInvalidInterior
	}
}
