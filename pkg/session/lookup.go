package session

import (
	log "github.com/sirupsen/logrus"
	"github.com/solo-io/squash-session/pkg/debuggers"
)

// Lookups are conveniences for tooltips and inspection: a lookup that fails for
// any reason reports not found.

// GetVariableFromName looks name up among the paused frame's local variables.
func (c *Controller) GetVariableFromName(name string) (debuggers.Variable, bool) {
	engine := c.currentEngine()
	if engine == nil || engine.IsRunning() {
		return debuggers.Variable{}, false
	}
	vars, err := engine.LocalVariables()
	if err != nil || vars == nil {
		if err != nil {
			log.WithFields(log.Fields{"name": name, "err": err}).Debug("local variables unavailable")
		}
		return debuggers.Variable{}, false
	}
	v, err := vars.Get(name)
	if err != nil || v == nil {
		if err != nil {
			log.WithFields(log.Fields{"name": name, "err": err}).Debug("variable lookup failed")
		}
		return debuggers.Variable{}, false
	}
	return *v, true
}

// GetValueAsString returns the display value of the named variable.
func (c *Controller) GetValueAsString(name string) (string, bool) {
	v, ok := c.GetVariableFromName(name)
	if !ok {
		return "", false
	}
	return v.Value, true
}

func (c *Controller) selectedFunctionWhilePaused() debuggers.Function {
	engine := c.currentEngine()
	if engine == nil || !engine.IsPaused() {
		return nil
	}
	return engine.SelectedFunction()
}

func (c *Controller) CanSetInstructionPointer(file string, line, column int) bool {
	fn := c.selectedFunctionWhilePaused()
	if fn == nil {
		return false
	}
	_, ok := fn.CanSetIP(file, line, column)
	return ok
}

// SetInstructionPointer moves execution to file:line:column. It returns false,
// without touching the debuggee, when the move is not possible.
func (c *Controller) SetInstructionPointer(file string, line, column int) bool {
	fn := c.selectedFunctionWhilePaused()
	if fn == nil {
		return false
	}
	if _, ok := fn.CanSetIP(file, line, column); !ok {
		return false
	}
	_, ok := fn.SetIP(file, line, column)
	return ok
}
