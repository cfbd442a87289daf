// Package shelltest provides a scripted [shell.Executor] for tests.
package shelltest

import (
	"context"
	"strings"
	"sync"

	"github.com/cruciblehq/zkb/internal/shell"
)

// Decides the outcome of a recorded command.
//
// Returning a nil result is equivalent to a successful run with no output.
type HandlerFunc func(cmd shell.Command) (*shell.Result, error)

// Records every command and answers through a list of rules.
//
// The first rule whose substring occurs in the command line wins. Commands
// matching no rule succeed.
type Recorder struct {
	mu       sync.Mutex
	commands []shell.Command
	rules    []rule
}

type rule struct {
	match   string
	handler HandlerFunc
}

// Registers a handler for command lines containing match.
func (r *Recorder) On(match string, handler HandlerFunc) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{match: match, handler: handler})
	return r
}

// Makes command lines containing match exit with code.
func (r *Recorder) Fail(match string, code int) *Recorder {
	return r.On(match, func(shell.Command) (*shell.Result, error) {
		return &shell.Result{ExitCode: code, Stderr: "scripted failure"}, nil
	})
}

// Implements [shell.Executor].
func (r *Recorder) Exec(ctx context.Context, cmd shell.Command) (*shell.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	rules := append([]rule(nil), r.rules...)
	r.mu.Unlock()

	for _, rl := range rules {
		if strings.Contains(cmd.Line, rl.match) {
			res, err := rl.handler(cmd)
			if err != nil {
				return nil, err
			}
			if res == nil {
				res = &shell.Result{}
			}
			return res, nil
		}
	}
	return &shell.Result{}, nil
}

// Returns the recorded commands in execution order.
func (r *Recorder) Commands() []shell.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shell.Command(nil), r.commands...)
}

// Returns the recorded command lines in execution order.
func (r *Recorder) Lines() []string {
	cmds := r.Commands()
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.Line
	}
	return lines
}

// Returns the number of recorded command lines containing match.
func (r *Recorder) Count(match string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.Contains(line, match) {
			n++
		}
	}
	return n
}
