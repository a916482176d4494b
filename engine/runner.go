package engine

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"gif-proxy/pool"
)

const (
	defaultStderrLines = 20
	// waitDelay bounds how long output pipes are drained after the tool is killed.
	waitDelay = time.Second
)

// Result is the captured outcome of one external tool run.
type Result struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// Runner runs an external binary to completion, feeding stdin and capturing
// its output. A non-zero exit is reported through Result.ExitCode, not err;
// err is reserved for failures to start or wait on the process.
type Runner interface {
	Run(ctx context.Context, path string, args []string, stdin []byte) (Result, error)
}

// ExecRunner runs tools as child processes. The zero value is ready to use.
type ExecRunner struct {
	// StderrLines is how many trailing stderr lines are kept (default 20).
	StderrLines int
}

func (r ExecRunner) Run(ctx context.Context, path string, args []string, stdin []byte) (Result, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	// wrapper scripts may leave children holding stdout, kill the whole group
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	stdout := pool.GetBuffer()
	defer pool.PutBuffer(stdout)
	cmd.Stdout = stdout

	nrLines := r.StderrLines
	if nrLines == 0 {
		nrLines = defaultStderrLines
	}
	stderr := newLastLines(nrLines)
	cmd.Stderr = stderr

	err := cmd.Run()
	stderr.Close()
	res := Result{Stderr: stderr.String()}

	if err != nil {
		// a killed process also surfaces as an ExitError, check the context first
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}

	res.Stdout = bytes.Clone(stdout.Bytes())
	return res, nil
}
