package measure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	pkgerrors "speedtest-exporter/pkg/errors"
)

// Prober performs one network measurement.
type Prober interface {
	// Name identifies the prober in logs.
	Name() string
	// Probe runs a measurement. It must honour ctx cancellation.
	Probe(ctx context.Context) (Measurement, error)
}

// stderrTailBytes bounds how much of the command's stderr ends up in an error.
const stderrTailBytes = 512

// waitDelay bounds how long Probe waits for output pipes after the process
// has been killed.
const waitDelay = 5 * time.Second

// CommandProber runs an external speed-test command and parses its JSON output.
type CommandProber struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// NewCommandProber creates a CommandProber. A non-positive timeout falls back
// to three minutes.
func NewCommandProber(command string, args []string, timeout time.Duration) *CommandProber {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &CommandProber{
		Command: command,
		Args:    append([]string(nil), args...),
		Timeout: timeout,
	}
}

func (p *CommandProber) Name() string { return "command" }

// String renders the command line for log output.
func (p *CommandProber) String() string {
	return strings.TrimSpace(p.Command + " " + strings.Join(p.Args, " "))
}

// Probe runs the command once. Every failure is returned as a
// *pkgerrors.MeasurementError.
func (p *CommandProber) Probe(ctx context.Context) (Measurement, error) {
	path, err := exec.LookPath(p.Command)
	if err != nil {
		return Measurement{}, p.fail(0, "", fmt.Errorf("%w: %v", pkgerrors.ErrCommandNotFound, err))
	}

	runCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, p.Args...)
	isolateProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		switch {
		case ctx.Err() != nil:
			return Measurement{}, p.fail(0, stderr.String(), ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return Measurement{}, p.fail(0, stderr.String(),
				fmt.Errorf("%w after %s", pkgerrors.ErrCommandTimeout, p.Timeout))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Measurement{}, p.fail(exitErr.ExitCode(), stderr.String(), pkgerrors.ErrCommandFailed)
		}
		return Measurement{}, p.fail(0, stderr.String(), fmt.Errorf("%w: %v", pkgerrors.ErrCommandFailed, err))
	}

	m, err := Parse(stdout.Bytes())
	if err != nil {
		return Measurement{}, p.fail(0, stderr.String(), err)
	}
	return m, nil
}

func (p *CommandProber) fail(exitCode int, stderr string, err error) error {
	return &pkgerrors.MeasurementError{
		Command:  p.Command,
		ExitCode: exitCode,
		Stderr:   stderr,
		Err:      err,
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
