package dlv

import (
	"github.com/go-delve/delve/service/api"
	"github.com/pkg/errors"
	"github.com/solo-io/squash-session/pkg/debuggers"
)

// variables is a snapshot of the stopped frame's arguments and locals.
type variables map[string]debuggers.Variable

func (v variables) Get(name string) (*debuggers.Variable, error) {
	found, ok := v[name]
	if !ok {
		return nil, errors.Errorf("could not find symbol value for %s", name)
	}
	return &found, nil
}

func toVariables(lists ...[]api.Variable) variables {
	out := make(variables)
	for _, list := range lists {
		for i := range list {
			v := &list[i]
			out[v.Name] = debuggers.Variable{Name: v.Name, Type: v.Type, Value: v.SinglelineString()}
		}
	}
	return out
}

func (e *Engine) LocalVariables() (debuggers.Variables, error) {
	e.mu.Lock()
	if e.client == nil || e.running {
		e.mu.Unlock()
		return nil, errors.New("debuggee is not stopped")
	}
	client := e.client
	cfg := *e.opts.LoadConfig
	e.evaluating = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.evaluating = false
		e.mu.Unlock()
	}()

	scope := api.EvalScope{GoroutineID: -1}
	args, err := client.ListFunctionArgs(scope, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "listing function arguments")
	}
	locals, err := client.ListLocalVariables(scope, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "listing local variables")
	}
	return toVariables(args, locals), nil
}
