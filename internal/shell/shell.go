package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Default shell used to interpret command lines.
const DefaultShell = "/bin/sh"

// Returned when a command exits with a non-zero code.
var ErrCommandFailed = errors.New("command failed")

// A command line to run through a shell.
type Command struct {
	Line string   // Command line passed to "sh -c".
	Env  []string // Additional "KEY=value" entries overriding the inherited environment.
	Dir  string   // Working directory. Empty uses the executor default.
}

// Output of a finished command.
type Result struct {
	ExitCode int    // Exit code of the process.
	Stdout   string // Captured standard output.
	Stderr   string // Captured standard error.
}

// Runs commands and reports their outcome.
//
// A non-zero exit code is not an error; implementations return an error only
// when the command could not be run at all.
type Executor interface {
	Exec(ctx context.Context, cmd Command) (*Result, error)
}

// Runs a command and converts a non-zero exit code into [ErrCommandFailed].
//
// The error carries desc, the exit code and the tail of stderr.
func Run(ctx context.Context, ex Executor, desc string, cmd Command) (*Result, error) {
	res, err := ex.Exec(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", desc, err)
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("%w: %s: exit code %d: %s", ErrCommandFailed, desc, res.ExitCode, Tail(res.Stderr, 20))
	}
	return res, nil
}

// Runs commands on the host through os/exec.
type Host struct {
	Shell  string    // Shell binary. Empty uses [DefaultShell].
	Dir    string    // Default working directory.
	Stream io.Writer // Optional writer receiving live stdout and stderr.
}

// Implements [Executor].
func (h *Host) Exec(ctx context.Context, cmd Command) (*Result, error) {
	sh := h.Shell
	if sh == "" {
		sh = DefaultShell
	}

	c := exec.CommandContext(ctx, sh, "-c", cmd.Line)
	c.Env = MergeEnv(os.Environ(), cmd.Env)
	c.Dir = cmd.Dir
	if c.Dir == "" {
		c.Dir = h.Dir
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = tee(&stdout, h.Stream)
	c.Stderr = tee(&stderr, h.Stream)

	err := c.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, err
	}
}

// Merges override env vars on top of a base env slice.
//
// Order of the base is preserved; overridden keys keep their position and new
// keys are appended in override order. Malformed entries are dropped.
func MergeEnv(base, overrides []string) []string {
	index := make(map[string]int, len(base)+len(overrides))
	result := make([]string, 0, len(base)+len(overrides))

	add := func(entry string) {
		k, _, ok := strings.Cut(entry, "=")
		if !ok {
			return
		}
		if i, seen := index[k]; seen {
			result[i] = entry
			return
		}
		index[k] = len(result)
		result = append(result, entry)
	}

	for _, entry := range base {
		add(entry)
	}
	for _, entry := range overrides {
		add(entry)
	}
	return result
}

// Quotes s for safe use as a single POSIX shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()*?[]#~!{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Returns the last n lines of s.
func Tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func tee(buf *bytes.Buffer, stream io.Writer) io.Writer {
	if stream == nil {
		return buf
	}
	return io.MultiWriter(buf, stream)
}
