// internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	SyntaxError           ErrorType = "SyntaxError"
	UnknownOperationError ErrorType = "UnknownOperationError"
	ExpressionError       ErrorType = "ExpressionEvaluationError"
	HandlerError          ErrorType = "HandlerError"
	AbortError            ErrorType = "AbortError"
	MissingVariable       ErrorType = "MissingVariableWarning"
)

// SourceLocation represents a location in source code
type SourceLocation struct {
	File string
	Line int
}

// ScriptError represents an error with source location information
type ScriptError struct {
	Type      ErrorType
	Message   string
	Location  SourceLocation
	PC        int // -1 when raised at compile time
	CallStack []StackFrame
	Source    string // The source line where error occurred
	Err       error
}

// StackFrame is one include level the error travelled through.
type StackFrame struct {
	File string
	Line int
	PC   int
}

// Error implements the error interface
func (e *ScriptError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s", e.Type, e.Message))

	if e.Location.File != "" || e.Location.Line > 0 {
		sb.WriteString(fmt.Sprintf("\n  at %s:%d", e.Location.File, e.Location.Line))
		if e.PC >= 0 {
			sb.WriteString(fmt.Sprintf(" (pc %d)", e.PC))
		}
		if e.Source != "" {
			sb.WriteString(fmt.Sprintf("\n\n  %d | %s", e.Location.Line, e.Source))
		}
	}

	if len(e.CallStack) > 0 {
		sb.WriteString("\n\nInclude Stack:")
		for _, frame := range e.CallStack {
			sb.WriteString(fmt.Sprintf("\n  included from %s:%d", frame.File, frame.Line))
			if frame.PC >= 0 {
				sb.WriteString(fmt.Sprintf(" (pc %d)", frame.PC))
			}
		}
	}

	return sb.String()
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Line returns the source line the error refers to.
func (e *ScriptError) Line() int {
	return e.Location.Line
}

func newError(t ErrorType, message, file string, line int) *ScriptError {
	return &ScriptError{
		Type:    t,
		Message: message,
		Location: SourceLocation{
			File: file,
			Line: line,
		},
		PC: -1,
	}
}

// NewSyntaxError creates a new syntax error
func NewSyntaxError(message string, file string, line int) *ScriptError {
	return newError(SyntaxError, message, file, line)
}

// NewUnknownOperationError reports a name that resolves to neither an
// operation nor a keyword.
func NewUnknownOperationError(name string, file string, line int) *ScriptError {
	return newError(UnknownOperationError, fmt.Sprintf("unknown operation '%s'", name), file, line)
}

// NewRuntimeError creates an error raised while executing instruction pc.
func NewRuntimeError(t ErrorType, message string, file string, line, pc int) *ScriptError {
	e := newError(t, message, file, line)
	e.PC = pc
	return e
}

// WithSource adds source code context to the error
func (e *ScriptError) WithSource(source string) *ScriptError {
	e.Source = source
	return e
}

// WithCause records the underlying error.
func (e *ScriptError) WithCause(err error) *ScriptError {
	e.Err = err
	return e
}

// AddStackFrame adds a single include frame
func (e *ScriptError) AddStackFrame(file string, line, pc int) *ScriptError {
	e.CallStack = append(e.CallStack, StackFrame{
		File: file,
		Line: line,
		PC:   pc,
	})
	return e
}

// Is reports whether err is a *ScriptError of type t.
func Is(err error, t ErrorType) bool {
	var se *ScriptError
	if stderrors.As(err, &se) {
		return se.Type == t
	}
	return false
}

// As is errors.As specialised to *ScriptError.
func As(err error) (*ScriptError, bool) {
	var se *ScriptError
	ok := stderrors.As(err, &se)
	return se, ok
}
