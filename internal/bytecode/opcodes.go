package bytecode

// Op names of the VM instructions the executor implements itself. Every other
// op name is dispatched through the API registry.
const (
	OpDevice    = "device"
	OpCommand   = "command"
	OpInclude   = "include"
	OpIfNotGoto = "if_not_goto"
	OpElseIf    = "elseif"
	OpElse      = "else"
	OpFi        = "fi"
	OpLoop      = "loop"
	OpEndWhile  = "endwhile"
	OpUntil     = "until"
)

// IsInternal reports whether op is handled by the executor rather than the
// API registry.
func IsInternal(op string) bool {
	switch op {
	case OpDevice, OpCommand, OpInclude,
		OpIfNotGoto, OpElseIf, OpElse, OpFi,
		OpLoop, OpEndWhile, OpUntil:
		return true
	}
	return false
}

// IsContextSwitch reports whether op is exempt from runtime interpolation.
func IsContextSwitch(op string) bool {
	return op == OpDevice || op == OpInclude
}
