// Package shell runs external commands on the device or through adb/su.
// Everything that touches the Android settings provider, the package manager
// or the notification service goes through a Runner so it can be faked.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Result holds the outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts command execution for testability.
type Runner interface {
	// Run executes a command. A non-zero exit is reported both in
	// Result.ExitCode and as an *ExitError.
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExitError is returned when a command ran but exited non-zero.
type ExitError struct {
	Command string
	Result  Result
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Result.Stdout)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Result.ExitCode, msg)
}

// ExecRunner uses os/exec for real command execution.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Command: Join(name, args...), Result: res}
		}
		res.ExitCode = -1
		return res, fmt.Errorf("running %s: %w", name, err)
	}
	return res, nil
}

// Join renders a command line the way it is keyed in MockRunner.
func Join(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// Wrapped prefixes every command, e.g. with "adb -s SERIAL shell" or "su -c".
// Both adb shell and su -c hand the command to a device shell, so every
// argument after the prefix is shell-quoted.
type Wrapped struct {
	Runner Runner
	Prefix []string
	// Quote joins the command into a single argument, which "su -c" needs.
	Quote bool
}

func (w *Wrapped) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if len(w.Prefix) == 0 {
		return w.Runner.Run(ctx, name, args...)
	}
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, Quote(name))
	for _, a := range args {
		quoted = append(quoted, Quote(a))
	}
	full := append([]string{}, w.Prefix[1:]...)
	if w.Quote {
		full = append(full, strings.Join(quoted, " "))
	} else {
		full = append(full, quoted...)
	}
	return w.Runner.Run(ctx, w.Prefix[0], full...)
}

// Quote returns s as a single POSIX shell word. Plain words pass through
// unchanged.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	plain := true
	for _, r := range s {
		if !isShellSafe(r) {
			plain = false
			break
		}
	}
	if plain {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("_@%+=:,./-", r)
}

// MockResponse holds a predefined response for MockRunner.
type MockResponse struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// MockRunner maps "name arg1 arg2" keys to predefined responses. For testing.
// Handler, when set, is consulted for keys missing from Responses.
type MockRunner struct {
	mu        sync.Mutex
	Responses map[string]MockResponse
	Handler   func(name string, args ...string) (MockResponse, bool)
	Calls     []string
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	k := Join(name, args...)

	m.mu.Lock()
	m.Calls = append(m.Calls, k)
	resp, ok := m.Responses[k]
	handler := m.Handler
	m.mu.Unlock()

	if !ok && handler != nil {
		resp, ok = handler(name, args...)
	}
	if !ok {
		return Result{ExitCode: -1}, fmt.Errorf("mock: unknown command %q", k)
	}

	res := Result{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}
	if resp.Err != nil {
		return res, resp.Err
	}
	if resp.ExitCode != 0 {
		return res, &ExitError{Command: k, Result: res}
	}
	return res, nil
}

// CallLog returns a copy of the recorded calls.
func (m *MockRunner) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}
