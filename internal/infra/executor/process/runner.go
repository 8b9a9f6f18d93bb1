package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	domain "github.com/bryanwahyu/finsight/internal/domain/analysis"
)

// InputEnv names the variable that carries the working file path
const InputEnv = "ANALYSIS_INPUT"

// ErrOutputLimit reports stdout beyond Runner.MaxStdout
var ErrOutputLimit = errors.New("analysis output limit exceeded")

// Runner executes the external analysis process with a fixed command line
type Runner struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	// WaitDelay bounds how long Run waits for output pipes after the process
	// is killed, e.g. when a grandchild keeps stdout open
	WaitDelay time.Duration
	// MaxStdout caps the captured result, 0 means no cap. Output past the
	// cap is drained and the run fails with ErrOutputLimit.
	MaxStdout int64
	// MaxStderr caps the captured diagnostics, the rest is dropped
	MaxStderr int64
}

func NewRunner(command string, args []string, dir string, env []string) *Runner {
	return &Runner{
		Command:   command,
		Args:      args,
		Dir:       dir,
		Env:       env,
		WaitDelay: 2 * time.Second,
		MaxStdout: 32 << 20,
		MaxStderr: 64 << 10,
	}
}

// Run blocks until the process exits. A non-zero exit is reported through
// RunResult.ExitCode; the error return is reserved for launch failures and
// context expiry.
func (r *Runner) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	start := time.Now()

	args := make([]string, 0, len(r.Args)+len(req.ExtraArgs))
	args = append(args, r.Args...)
	args = append(args, req.ExtraArgs...)

	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)
	if req.InputPath != "" {
		cmd.Env = append(cmd.Env, InputEnv+"="+req.InputPath)
	}
	cmd.WaitDelay = r.WaitDelay

	stdout := &capBuffer{max: r.MaxStdout}
	stderr := &capBuffer{max: r.MaxStderr}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	res := domain.RunResult{
		Stdout:     stdout.Bytes(),
		Stderr:     stderr.Bytes(),
		ExitCode:   0,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err == nil {
		if stdout.dropped > 0 {
			res.ExitCode = -1
			return res, fmt.Errorf("%w: more than %d bytes on stdout", ErrOutputLimit, r.MaxStdout)
		}
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("analysis process aborted after %dms: %w", res.DurationMS, ctxErr)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	return res, fmt.Errorf("start analysis process %q: %w", r.Command, err)
}

// LookPath reports whether the configured command can be resolved
func (r *Runner) LookPath() (string, error) {
	return exec.LookPath(r.Command)
}

// capBuffer keeps the first max bytes written and counts the rest
type capBuffer struct {
	buf     bytes.Buffer
	max     int64
	dropped int64
}

func (b *capBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.max > 0 {
		room := b.max - int64(b.buf.Len())
		if room < int64(len(p)) {
			if room < 0 {
				room = 0
			}
			b.dropped += int64(len(p)) - room
			p = p[:room]
		}
	}
	b.buf.Write(p)
	return n, nil
}

func (b *capBuffer) Bytes() []byte { return b.buf.Bytes() }
