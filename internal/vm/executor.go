// Package vm executes compiled scripts against a device session.
package vm

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"dtscript/internal/api"
	"dtscript/internal/bytecode"
	"dtscript/internal/config"
	"dtscript/internal/device"
	"dtscript/internal/errors"
	"dtscript/internal/results"
)

// State is the executor's position in its lifecycle.
type State int

const (
	Running State = iota
	AwaitingJump
	Halted
	Aborted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case AwaitingJump:
		return "awaiting-jump"
	case Halted:
		return "halted"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// maxIncludeDepth bounds nested includes of scripts that bypassed the
// compiler's cycle check.
const maxIncludeDepth = 64

// Loader returns the compiled form of an include target.
type Loader interface {
	Load(path string) (*bytecode.CompiledScript, error)
}

// Option configures an Executor.
type Option func(*Executor)

func WithSession(s device.Session) Option {
	return func(e *Executor) { e.session = s }
}

func WithRegistry(r *api.Registry) Option {
	return func(e *Executor) { e.registry = r }
}

func WithLoader(l Loader) Option {
	return func(e *Executor) { e.loader = l }
}

func WithRecorder(r results.Recorder) Option {
	return func(e *Executor) { e.results = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

func WithHook(h Hook) Option {
	return func(e *Executor) { e.hook = h }
}

// WithVars seeds the runtime variables.
func WithVars(vars map[string]string) Option {
	return func(e *Executor) { e.vars = NewVars(vars) }
}

func WithMissingPolicy(p config.MissingPolicy) Option {
	return func(e *Executor) { e.missing = p }
}

func WithRunID(id string) Option {
	return func(e *Executor) { e.runID = id }
}

// Executor runs one CompiledScript. Its pc, stack and variables belong to it
// alone; includes run in child executors.
type Executor struct {
	script   *bytecode.CompiledScript
	pc       int
	state    State
	stack    *Stack
	vars     *Vars
	session  device.Session
	registry *api.Registry
	loader   Loader
	results  results.Recorder
	log      *slog.Logger
	hook     Hook
	missing  config.MissingPolicy
	runID    string
	device   string
	depth    int

	stop        *atomic.Bool
	abortReason string
}

// New prepares script for execution.
func New(script *bytecode.CompiledScript, opts ...Option) *Executor {
	e := &Executor{
		script:  script,
		state:   Running,
		stack:   &Stack{},
		missing: config.MissingWarn,
		stop:    new(atomic.Bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.vars == nil {
		e.vars = NewVars(nil)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	return e
}

func (e *Executor) State() State { return e.state }

// PC is the index of the next instruction to run.
func (e *Executor) PC() int { return e.pc }

func (e *Executor) Vars() *Vars { return e.vars }

func (e *Executor) Stack() *Stack { return e.stack }

func (e *Executor) RunID() string { return e.runID }

// Device is the section the executor last switched to.
func (e *Executor) Device() string { return e.device }

// AbortReason is set once the executor has aborted.
func (e *Executor) AbortReason() string { return e.abortReason }

// Stop asks the executor, and any include running under it, to abort before
// the next instruction. Safe to call from another goroutine.
func (e *Executor) Stop() {
	e.stop.Store(true)
}

// Run executes until the script halts or aborts. A nil error means the
// script ran off its end.
func (e *Executor) Run(ctx context.Context) error {
	code := e.script.Instructions
	for e.state == Running {
		if e.pc >= len(code) {
			e.state = Halted
			break
		}
		if reason, stopped := e.stopped(ctx); stopped {
			return e.abort(reason)
		}

		at := e.pc
		err := e.step(ctx, code[at])
		if err != nil {
			e.state = Aborted
			return err
		}
		if e.abortReason != "" {
			e.state = Aborted
			return errors.NewRuntimeError(errors.AbortError, e.abortReason, e.script.Path, code[at].Line, at)
		}
	}

	e.log.Debug("script halted", "script", e.script.Path, "run", e.runID)
	return nil
}

func (e *Executor) stopped(ctx context.Context) (string, bool) {
	if e.stop.Load() {
		return "stop requested", true
	}
	if err := ctx.Err(); err != nil {
		return err.Error(), true
	}
	return "", false
}

func (e *Executor) abort(reason string) error {
	e.state = Aborted
	e.abortReason = reason
	return errors.NewRuntimeError(errors.AbortError, reason, e.script.Path, e.line(), e.pc)
}

func (e *Executor) step(ctx context.Context, code *bytecode.VMCode) error {
	params, err := e.interpolateParams(code.Op, code.Params)
	if err != nil {
		return e.wrap(errors.MissingVariable, err)
	}
	if e.hook != nil {
		e.hook.OnInstruction(e.pc, &bytecode.VMCode{Line: code.Line, Op: code.Op, Params: params})
	}

	switch code.Op {
	case bytecode.OpDevice:
		return e.switchDevice(ctx, params)
	case bytecode.OpCommand:
		return e.command(ctx, params)
	case bytecode.OpInclude:
		return e.include(ctx, code, params)
	case bytecode.OpIfNotGoto:
		return e.ifNotGoto(params)
	case bytecode.OpElseIf:
		return e.elseIf(params)
	case bytecode.OpElse:
		return e.elseBranch(params)
	case bytecode.OpFi:
		if _, err := e.stack.Pop(); err != nil {
			return e.wrap(errors.HandlerError, err)
		}
		e.pc++
		return nil
	case bytecode.OpLoop:
		return e.loop(params)
	case bytecode.OpEndWhile, bytecode.OpUntil:
		return e.loopEnd(code.Op, params)
	}
	return e.dispatch(ctx, code, params)
}

func (e *Executor) switchDevice(ctx context.Context, params []any) error {
	name := operand(params[0])
	if e.session != nil {
		if err := e.session.SwitchDevice(ctx, name); err != nil {
			return e.deviceError(ctx, err)
		}
	}
	e.device = name
	e.log.Debug("device", "name", name, "line", e.line())
	e.pc++
	return nil
}

func (e *Executor) command(ctx context.Context, params []any) error {
	if e.session == nil {
		return e.wrap(errors.HandlerError, fmt.Errorf("command: %w", device.ErrNoSession))
	}
	out, err := e.session.SendCommand(ctx, operand(params[0]))
	if err != nil {
		return e.deviceError(ctx, err)
	}
	e.vars.Set(api.OutputVar, out)
	e.pc++
	return nil
}

func (e *Executor) include(ctx context.Context, code *bytecode.VMCode, params []any) error {
	path := operand(params[0])
	if e.loader == nil {
		return e.wrap(errors.HandlerError, fmt.Errorf("include %s: no loader configured", path))
	}
	if e.depth >= maxIncludeDepth {
		return e.wrap(errors.HandlerError, fmt.Errorf("include %s: nesting deeper than %d", path, maxIncludeDepth))
	}
	script, err := e.loader.Load(path)
	if err != nil {
		return e.wrap(errors.SyntaxError, err)
	}

	child := e.child(script)
	e.log.Debug("include", "path", path, "depth", child.depth)
	if err := child.Run(ctx); err != nil {
		if se, ok := errors.As(err); ok {
			if se.Type == errors.AbortError {
				e.abortReason = se.Message
			}
			cp := *se
			cp.CallStack = append(append([]errors.StackFrame(nil), se.CallStack...),
				errors.StackFrame{File: e.script.Path, Line: code.Line, PC: e.pc})
			return &cp
		}
		return e.wrap(errors.HandlerError, err)
	}

	// the child may have left the session on another device
	if e.session != nil && e.device != "" && child.device != e.device {
		if err := e.session.SwitchDevice(ctx, e.device); err != nil {
			return e.deviceError(ctx, err)
		}
	}
	e.pc++
	return nil
}

func (e *Executor) child(script *bytecode.CompiledScript) *Executor {
	return &Executor{
		script:   script,
		state:    Running,
		stack:    &Stack{},
		vars:     e.vars.Clone(),
		session:  e.session,
		registry: e.registry,
		loader:   e.loader,
		results:  e.results,
		log:      e.log,
		hook:     e.hook,
		missing:  e.missing,
		runID:    e.runID,
		device:   e.device,
		depth:    e.depth + 1,
		stop:     e.stop,
	}
}

func (e *Executor) ifNotGoto(params []any) error {
	cond, target, err := splitTarget(params)
	if err != nil {
		return e.wrap(errors.HandlerError, err)
	}
	ok, err := evaluate(cond)
	if err != nil {
		return e.wrap(errors.ExpressionError, err)
	}
	e.stack.Push(ok)
	if ok {
		e.pc++
		return nil
	}
	return e.jumpForward(target)
}

func (e *Executor) elseIf(params []any) error {
	cond, target, err := splitTarget(params)
	if err != nil {
		return e.wrap(errors.HandlerError, err)
	}
	taken, err := e.stack.Peek()
	if err != nil {
		return e.wrap(errors.HandlerError, err)
	}
	if taken {
		return e.jumpForward(target)
	}
	ok, err := evaluate(cond)
	if err != nil {
		return e.wrap(errors.ExpressionError, err)
	}
	if !ok {
		return e.jumpForward(target)
	}
	if err := e.stack.Replace(true); err != nil {
		return e.wrap(errors.HandlerError, err)
	}
	e.pc++
	return nil
}

func (e *Executor) elseBranch(params []any) error {
	_, target, err := splitTarget(params)
	if err != nil {
		return e.wrap(errors.HandlerError, err)
	}
	taken, err := e.stack.Peek()
	if err != nil {
		return e.wrap(errors.HandlerError, err)
	}
	if taken {
		return e.jumpForward(target)
	}
	e.pc++
	return nil
}

// loop is the head of <loop> and <while>. A while guard that fails skips
// the body and its endwhile.
func (e *Executor) loop(params []any) error {
	cond, target, err := splitTarget(params)
	if err != nil {
		return e.wrap(errors.HandlerError, err)
	}
	if len(cond) == 0 {
		e.pc++
		return nil
	}
	ok, err := evaluate(cond)
	if err != nil {
		return e.wrap(errors.ExpressionError, err)
	}
	if ok {
		e.pc++
		return nil
	}
	if err := e.jumpForward(target); err != nil {
		return err
	}
	e.pc++
	return nil
}

// loopEnd handles endwhile and until. Params are the loop head's line
// followed by an optional exit condition.
func (e *Executor) loopEnd(op string, params []any) error {
	if len(params) == 0 {
		return e.wrap(errors.HandlerError, fmt.Errorf("%s: missing loop start", op))
	}
	start, ok := params[0].(int)
	if !ok {
		return e.wrap(errors.HandlerError, fmt.Errorf("%s: loop start %v is not a line", op, params[0]))
	}
	cond := params[1:]
	if len(cond) == 0 {
		return e.jumpBackward(start)
	}
	done, err := evaluate(cond)
	if err != nil {
		return e.wrap(errors.ExpressionError, err)
	}
	if done {
		e.pc++
		return nil
	}
	return e.jumpBackward(start)
}

func splitTarget(params []any) ([]any, int, error) {
	if len(params) == 0 {
		return nil, 0, fmt.Errorf("missing jump target")
	}
	target, ok := params[len(params)-1].(int)
	if !ok {
		return nil, 0, fmt.Errorf("jump target %v is not a line", params[len(params)-1])
	}
	return params[:len(params)-1], target, nil
}

func (e *Executor) jumpForward(line int) error {
	return e.jump(line, 1)
}

func (e *Executor) jumpBackward(line int) error {
	return e.jump(line, -1)
}

// jump scans from pc one instruction at a time for the given source line.
func (e *Executor) jump(line, dir int) error {
	e.state = AwaitingJump
	code := e.script.Instructions
	for i := e.pc + dir; i >= 0 && i < len(code); i += dir {
		if code[i].Line == line {
			e.pc = i
			e.state = Running
			return nil
		}
	}
	e.state = Running
	return e.wrap(errors.HandlerError, fmt.Errorf("jump target line %d not found", line))
}

func (e *Executor) dispatch(ctx context.Context, code *bytecode.VMCode, params []any) error {
	if e.registry == nil {
		return errors.NewRuntimeError(errors.UnknownOperationError,
			fmt.Sprintf("unknown operation '%s'", code.Op), e.script.Path, code.Line, e.pc)
	}
	desc, ok := e.registry.Lookup(code.Op)
	if !ok {
		return errors.NewRuntimeError(errors.UnknownOperationError,
			fmt.Sprintf("unknown operation '%s'", code.Op), e.script.Path, code.Line, e.pc)
	}
	p, err := api.Bind(desc.Spec, params)
	if err != nil {
		return e.wrap(errors.HandlerError, err)
	}

	c := &api.Context{
		Ctx:     ctx,
		Vars:    e.vars,
		Session: e.session,
		Results: e.results,
		Log:     e.log,
		RunID:   e.runID,
		Script:  e.script.Path,
		Line:    code.Line,
		Op:      code.Op,
		Device:  e.device,
		AbortFunc: func(reason string) {
			e.abortReason = reason
		},
	}
	if _, err := desc.Handler(c, p); err != nil {
		return e.deviceError(ctx, err)
	}
	e.pc++
	return nil
}

// deviceError classifies a handler or session failure. Fatal device errors
// and cancellation abort; anything else is a handler error.
func (e *Executor) deviceError(ctx context.Context, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, device.ErrFatal) || ctx.Err() != nil {
		e.abortReason = err.Error()
		return e.wrap(errors.AbortError, err)
	}
	return e.wrap(errors.HandlerError, err)
}

func (e *Executor) wrap(t errors.ErrorType, err error) error {
	if se, ok := errors.As(err); ok {
		if se.PC < 0 && se.Type != errors.SyntaxError {
			se.PC = e.pc
		}
		return se
	}
	return errors.NewRuntimeError(t, err.Error(), e.script.Path, e.line(), e.pc).WithCause(err)
}

// line is the source line of the current instruction.
func (e *Executor) line() int {
	code := e.script.Instructions
	if e.pc >= 0 && e.pc < len(code) {
		return code[e.pc].Line
	}
	if len(code) > 0 {
		return code[len(code)-1].Line
	}
	return 0
}
