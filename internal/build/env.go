package build

import (
	"maps"
	"slices"
	"strings"

	"github.com/cruciblehq/zkb/internal/shell"
)

// Tracks the environment accumulated while stages run.
//
// State flows linearly through the stages. apply persists variables for all
// later commands.
type buildEnv struct {
	workdir string            // Working directory of commands.
	env     map[string]string // Exported variables.
	path    []string          // Directories prepended to PATH, highest priority first.
}

// Creates an empty [buildEnv].
func newBuildEnv() *buildEnv {
	return &buildEnv{
		env: make(map[string]string),
	}
}

// Persists variables into the environment.
func (e *buildEnv) apply(vars map[string]string) {
	maps.Copy(e.env, vars)
}

// Sets the working directory of later commands.
func (e *buildEnv) chdir(dir string) {
	e.workdir = dir
}

// Puts dir in front of PATH for later commands. Repeated directories are
// ignored.
func (e *buildEnv) prependPath(dir string) {
	if dir == "" || slices.Contains(e.path, dir) {
		return
	}
	e.path = append([]string{dir}, e.path...)
}

// Formats the variables as sorted "key=value" strings.
func (e *buildEnv) environ() []string {
	env := make([]string, 0, len(e.env))
	for _, k := range slices.Sorted(maps.Keys(e.env)) {
		env = append(env, k+"="+e.env[k])
	}
	return env
}

// Builds a command running line in this environment.
//
// PATH is exported at the start of the command line so it expands against
// the PATH of whichever machine runs the command and reaches every process of
// a pipeline.
func (e *buildEnv) command(line string) shell.Command {
	if len(e.path) > 0 {
		quoted := make([]string, len(e.path))
		for i, p := range e.path {
			quoted[i] = shell.Quote(p)
		}
		line = `export PATH=` + strings.Join(quoted, ":") + `:"$PATH"; ` + line
	}
	return shell.Command{
		Line: line,
		Env:  e.environ(),
		Dir:  e.workdir,
	}
}
