// Package cacheflush invokes the external command that drops file system
// caches before a cold trial, locally or on a set of remote hosts.
package cacheflush

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"sweep-bench/internal/logging"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	StrategyNone   = "none"
	StrategyLocal  = "local"
	StrategyRemote = "remote"
)

var (
	DefaultLocalCommand  = []string{"sudo", "drop_caches"}
	DefaultRemoteCommand = []string{"/usr/local/bin/flush_fs_caches"}
	DefaultSSH           = []string{"ssh", "-o", "BatchMode=yes", "-o", "ConnectTimeout=10", "-o", "LogLevel=ERROR"}
)

type Flusher interface {
	Flush(ctx context.Context) error
}

// execFunc runs one argv to completion.
type execFunc func(ctx context.Context, argv []string) error

func runArgv(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, s)
		}
		return fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}
	return nil
}

// Noop never flushes anything.
type Noop struct{}

func (Noop) Flush(context.Context) error { return nil }

// Local runs the flush command on this machine.
type Local struct {
	Command []string
	exec    execFunc
}

func NewLocal(command []string) *Local {
	if len(command) == 0 {
		command = DefaultLocalCommand
	}
	return &Local{Command: command, exec: runArgv}
}

func (l *Local) Flush(ctx context.Context) error {
	logging.GetLogger().WithField("command", strings.Join(l.Command, " ")).Debug("Flushing local caches")
	return l.exec(ctx, l.Command)
}

// Remote runs the flush command on every host over ssh, concurrently, and
// returns once all hosts are done. A failing host does not cancel the
// others; every failure is reported.
type Remote struct {
	Hosts   []string
	Command []string
	SSH     []string
	exec    execFunc
}

func NewRemote(hosts, command, ssh []string) *Remote {
	if len(command) == 0 {
		command = DefaultRemoteCommand
	}
	if len(ssh) == 0 {
		ssh = DefaultSSH
	}
	return &Remote{Hosts: hosts, Command: command, SSH: ssh, exec: runArgv}
}

// Argv returns the command line used for one host.
func (r *Remote) Argv(host string) []string {
	argv := make([]string, 0, len(r.SSH)+2+len(r.Command))
	argv = append(argv, r.SSH...)
	argv = append(argv, host, "--")
	return append(argv, r.Command...)
}

func (r *Remote) Flush(ctx context.Context) error {
	logger := logging.GetLogger()
	errs := make([]error, len(r.Hosts))
	var g errgroup.Group
	for i, host := range r.Hosts {
		g.Go(func() error {
			logger.WithFields(logrus.Fields{
				"host":    host,
				"command": strings.Join(r.Command, " "),
			}).Debug("Flushing remote caches")
			if err := r.exec(ctx, r.Argv(host)); err != nil {
				errs[i] = fmt.Errorf("flush %s: %w", host, err)
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// New builds the flusher for a configured strategy.
func New(strategy string, command, hosts, ssh []string) (Flusher, error) {
	switch strings.ToLower(strategy) {
	case "", StrategyNone:
		return Noop{}, nil
	case StrategyLocal:
		return NewLocal(command), nil
	case StrategyRemote:
		if len(hosts) == 0 {
			return nil, errors.New("remote flush strategy requires at least one host")
		}
		return NewRemote(hosts, command, ssh), nil
	default:
		return nil, fmt.Errorf("unknown flush strategy %q", strategy)
	}
}
