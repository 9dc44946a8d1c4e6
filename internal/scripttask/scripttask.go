// Package scripttask compiles operator-defined JavaScript into automation
// task handlers. Scripts are compiled once at registration; each execution
// runs in a fresh interpreter with the task context injected.
package scripttask

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/CryptoStream-Network/stream_layer/internal/automation"
	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// Compile turns a script body into an automation handler. Compilation
// errors surface at registration time, not on the first firing.
func Compile(id, source string, log *logger.Logger) (automation.Handler, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("script task id required")
	}
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("script task %s: empty source", id)
	}
	if log == nil {
		log = logger.NewDefault("scripttask")
	}
	program, err := goja.Compile(id, source, true)
	if err != nil {
		return nil, fmt.Errorf("compile script task %s: %w", id, err)
	}

	taskLog := log.WithField("task_id", id)
	return func(ctx context.Context) error {
		vm := goja.New()
		if err := bindRuntime(vm, id, taskLog); err != nil {
			return fmt.Errorf("script task %s: %w", id, err)
		}

		// Interrupt the interpreter when the task context expires so a
		// busy-looping script cannot pin a worker.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				vm.Interrupt(ctx.Err())
			case <-done:
			}
		}()

		if _, err := vm.RunProgram(program); err != nil {
			if ie, ok := err.(*goja.InterruptedError); ok {
				return fmt.Errorf("script task %s interrupted: %v", id, ie.Value())
			}
			return fmt.Errorf("script task %s: %w", id, err)
		}
		return nil
	}, nil
}

// bindRuntime injects the console and task globals scripts rely on.
func bindRuntime(vm *goja.Runtime, id string, log *logger.Logger) error {
	console := vm.NewObject()
	logFn := func(level func(args ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			level(strings.Join(parts, " "))
			return goja.Undefined()
		}
	}
	if err := console.Set("log", logFn(log.Info)); err != nil {
		return err
	}
	if err := console.Set("warn", logFn(log.Warn)); err != nil {
		return err
	}
	if err := console.Set("error", logFn(log.Error)); err != nil {
		return err
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	task := vm.NewObject()
	if err := task.Set("id", id); err != nil {
		return err
	}
	if err := task.Set("firedAt", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return vm.Set("task", task)
}
