package watchdog

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lalithlochan/pitchside/internal/observ"
)

// ExecLauncher starts the prediction service as a detached child process.
// The child runs in its own session so signals aimed at the supervisor do
// not take the service down with it; its output is forwarded into the
// structured log.
type ExecLauncher struct {
	argv   []string
	dir    string
	logger *zap.Logger
}

// NewExecLauncher builds a launcher for the given command line. argv must be
// non-empty; dir may be empty to inherit the supervisor's working directory.
func NewExecLauncher(argv []string, dir string, logger *zap.Logger) (*ExecLauncher, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("launcher requires a command")
	}
	return &ExecLauncher{
		argv:   argv,
		dir:    dir,
		logger: logger,
	}, nil
}

func (l *ExecLauncher) Launch(ctx context.Context) (Handle, error) {
	cmd := exec.Command(l.argv[0], l.argv[1:]...)
	cmd.Dir = l.dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	stdout := observ.ForwardWriter(l.logger, "prediction-service", zapcore.InfoLevel)
	stderr := observ.ForwardWriter(l.logger, "prediction-service", zapcore.WarnLevel)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start %s: %w", l.argv[0], err)
	}

	pid := cmd.Process.Pid
	l.logger.Info("prediction service launched",
		zap.Int("pid", pid),
		zap.Strings("argv", l.argv),
	)

	// Reap the child when it exits so it never lingers as a zombie.
	go func() {
		err := cmd.Wait()
		stdout.Close()
		stderr.Close()
		if err != nil {
			l.logger.Warn("prediction service exited",
				zap.Int("pid", pid),
				zap.Error(err),
			)
			return
		}
		l.logger.Info("prediction service exited cleanly", zap.Int("pid", pid))
	}()

	return processHandle{pid: pid}, nil
}

type processHandle struct {
	pid int
}

func (h processHandle) PID() int { return h.pid }
