package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"
)

const commandStopTimeout = 2 * time.Second

// CommandSource runs an external counter utility (ifstat, sar) whose
// standard output becomes the sample log.
type CommandSource struct {
	Argv []string

	cmd  *exec.Cmd
	done chan error
}

func NewCommandSource(argv []string) *CommandSource {
	return &CommandSource{Argv: argv}
}

func (c *CommandSource) Start(ctx context.Context, log io.Writer) error {
	if len(c.Argv) == 0 {
		return errors.New("no sampler command configured")
	}
	if c.cmd != nil {
		return errors.New("sampler command already running")
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdout = log
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Argv[0], err)
	}

	c.cmd = cmd
	c.done = make(chan error, 1)
	go func() {
		c.done <- cmd.Wait()
	}()
	return nil
}

// Stop terminates the utility, escalating to SIGKILL if it lingers. Exit
// caused by the termination signal is not an error.
func (c *CommandSource) Stop() error {
	if c.cmd == nil {
		return nil
	}
	defer func() {
		c.cmd = nil
		c.done = nil
	}()

	select {
	case err := <-c.done:
		// exited on its own before the window closed
		return exitError(err)
	default:
	}

	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal %s: %w", c.Argv[0], err)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(commandStopTimeout):
		if err := c.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill %s: %w", c.Argv[0], err)
		}
		<-c.done
		return nil
	}
}

func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !exitErr.Exited() {
		return nil
	}
	return err
}
